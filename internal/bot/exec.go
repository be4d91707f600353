package bot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/luxfi/log"

	"github.com/MikeLuu99/auction-arena/internal/protocol"
)

// Exec runs a bot program as a child process. Each request is written to
// its stdin as one JSON line; the program answers each with one line, either
// {"bid": <number>} or a bare number. Answers to requests that already timed
// out are skipped.
type Exec struct {
	path   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	done   chan struct{}
	logger log.Logger

	mu        sync.Mutex
	stale     int
	closeOnce sync.Once
}

// StartExec starts the program at path
func StartExec(path string, logger log.Logger) (*Exec, error) {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin of %s: %w", path, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout of %s: %w", path, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start bot %s: %w", path, err)
	}

	e := &Exec{
		path:   path,
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string),
		done:   make(chan struct{}),
		logger: logger.New("bot", path),
	}
	go e.readLoop(stdout)
	return e, nil
}

func (e *Exec) readLoop(stdout io.Reader) {
	defer close(e.lines)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case e.lines <- scanner.Text():
		case <-e.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		e.logger.Warn("bot output stopped", "error", err)
	}
}

func (e *Exec) Bid(ctx context.Context, req *protocol.BidRequest) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}
	if _, err := e.stdin.Write(append(payload, '\n')); err != nil {
		return 0, fmt.Errorf("failed to write to bot %s: %w", e.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			e.stale++
			return 0, ctx.Err()
		case line, ok := <-e.lines:
			if !ok {
				return 0, fmt.Errorf("bot %s exited", e.path)
			}
			if e.stale > 0 {
				e.stale--
				continue
			}
			return parseBidLine(line)
		}
	}
}

// Close stops the child process
func (e *Exec) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.stdin.Close()
		if e.cmd.Process != nil {
			e.cmd.Process.Kill()
		}
		e.cmd.Wait()
	})
	return nil
}

func parseBidLine(line string) (float64, error) {
	line = strings.TrimSpace(line)
	if amount, err := strconv.ParseFloat(line, 64); err == nil {
		return amount, nil
	}
	var reply struct {
		Bid *float64 `json:"bid"`
	}
	if err := json.Unmarshal([]byte(line), &reply); err != nil || reply.Bid == nil {
		return 0, fmt.Errorf("%w: %q", protocol.ErrMalformedBid, line)
	}
	return *reply.Bid, nil
}
