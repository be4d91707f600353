package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/MikeLuu99/auction-arena/internal/protocol"
	"github.com/MikeLuu99/auction-arena/pkg/models"
)

const (
	writeWait   = 10 * time.Second
	inboxLength = 16
)

var (
	// ErrTimeout means no usable reply arrived before the round deadline.
	// The session stays connected.
	ErrTimeout = errors.New("bid request timed out")

	// ErrDisconnected means the connection is gone for good
	ErrDisconnected = errors.New("participant disconnected")

	// ErrTransport wraps write failures on the underlying connection
	ErrTransport = errors.New("transport error")
)

// Conn is the part of a websocket connection a Session needs
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session owns one participant connection. A reader goroutine feeds
// inbound frames to RequestBid; writes are serialized. A Session never
// touches game state, it only returns bid values.
type Session struct {
	id     models.ParticipantID
	name   string
	conn   Conn
	codec  protocol.Codec
	logger log.Logger

	inbox     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	requestMu sync.Mutex
}

// New wraps conn and starts reading from it
func New(id models.ParticipantID, name string, conn Conn, codec protocol.Codec, logger log.Logger) *Session {
	s := &Session{
		id:     id,
		name:   name,
		conn:   conn,
		codec:  codec,
		logger: logger.New("participant", int(id), "name", name),
		inbox:  make(chan []byte, inboxLength),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Session) ID() models.ParticipantID { return s.id }
func (s *Session) Name() string             { return s.name }
func (s *Session) Codec() protocol.Codec    { return s.codec }

// Done is closed once the connection is lost or closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Disconnected() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) readLoop() {
	defer s.Close()
	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("read loop stopped", "error", err)
			return
		}
		select {
		case s.inbox <- frame:
		case <-s.done:
			return
		}
	}
}

// Send writes one envelope. A failed write closes the session.
func (s *Session) Send(kind protocol.Kind, round *int, data any) error {
	if s.Disconnected() {
		return ErrDisconnected
	}
	frame, err := s.codec.Encode(kind, round, data)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.Close()
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := s.conn.WriteMessage(s.codec.FrameType(), frame); err != nil {
		s.Close()
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	s.logger.Debug("sent", "kind", kind, "bytes", len(frame))
	return nil
}

// RequestBid sends req and waits for the matching bid until ctx expires.
// Frames left over from earlier rounds, and replies echoing another round,
// are discarded.
func (s *Session) RequestBid(ctx context.Context, req protocol.BidRequest) (float64, error) {
	s.requestMu.Lock()
	defer s.requestMu.Unlock()

	s.drain()
	if err := s.Send(protocol.KindBidRequest, protocol.Round(req.RoundIndex), req); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return 0, ErrTimeout
			}
			return 0, ctx.Err()
		case <-s.done:
			return 0, ErrDisconnected
		case frame := <-s.inbox:
			env, err := s.codec.Decode(frame)
			if err != nil {
				return 0, err
			}
			if env.Round != nil && *env.Round != req.RoundIndex {
				s.logger.Debug("stale reply ignored", "round", *env.Round, "open", req.RoundIndex)
				continue
			}
			return protocol.ParseBid(env)
		}
	}
}

func (s *Session) drain() {
	for {
		select {
		case <-s.inbox:
		default:
			return
		}
	}
}

// Close shuts the connection; it is safe to call more than once
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
