package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/luxfi/log"
	"github.com/nats-io/nats.go"
)

const (
	SubjectRound = "arena.round"
	SubjectFinal = "arena.final"
)

// Publisher broadcasts arena events to observers outside the auction
type Publisher interface {
	Publish(subject string, payload any) error
	Close() error
}

// AuctionFinished is the payload of SubjectFinal
type AuctionFinished struct {
	SeriesID    string   `json:"series_id"`
	AuctionID   string   `json:"auction_id"`
	Index       int      `json:"index"`
	Reason      string   `json:"reason"`
	Rounds      int      `json:"rounds"`
	Winners     []int    `json:"winners"`
	WinnerNames []string `json:"winner_names"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
}

// Nop drops every event
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }
func (Nop) Close() error              { return nil }

// NATSPublisher publishes JSON payloads on a NATS connection
type NATSPublisher struct {
	nc     *nats.Conn
	logger log.Logger
}

// NewNATSPublisher connects to url. Once connected it reconnects forever.
func NewNATSPublisher(url string, logger log.Logger) (*NATSPublisher, error) {
	logger = logger.New("module", "events")
	nc, err := nats.Connect(url,
		nats.Name("auction-arena"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(1*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Info("Connected to NATS", "url", nc.ConnectedUrl())
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

func (p *NATSPublisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending events and closes the connection
func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}
