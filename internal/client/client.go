package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"

	"github.com/MikeLuu99/auction-arena/internal/bot"
	"github.com/MikeLuu99/auction-arena/internal/protocol"
	"github.com/MikeLuu99/auction-arena/internal/telemetry"
	"github.com/MikeLuu99/auction-arena/pkg/models"
)

// ErrConnectionLost is returned when the arena goes away before the
// requested number of auctions was played.
var ErrConnectionLost = errors.New("connection to arena lost")

// Conn is the part of a websocket connection the client needs
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Summary counts the auctions a client took part in
type Summary struct {
	ParticipantID int
	Total         int
	Won           int
	Ignored       int
}

func (s Summary) WinRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Won) / float64(s.Total)
}

// Client plays auctions with a Bot until NumAuctions final reports arrived
type Client struct {
	cfg     *models.ClientConfig
	factory bot.Factory
	codec   protocol.Codec
	logger  log.Logger
}

func New(cfg *models.ClientConfig, factory bot.Factory, logger log.Logger) (*Client, error) {
	codec, err := protocol.CodecFor(cfg.Encoding)
	if err != nil {
		return nil, models.NewConfigError("%v", err)
	}
	if cfg.Username == "" {
		return nil, models.NewConfigError("username is required")
	}
	if cfg.NumAuctions < 1 {
		return nil, models.NewConfigError("number of auctions must be positive, got %d", cfg.NumAuctions)
	}
	if cfg.BotTimeout < 0 {
		return nil, models.NewConfigError("bot timeout must not be negative, got %s", cfg.BotTimeout)
	}
	return &Client{
		cfg:     cfg,
		factory: factory,
		codec:   codec,
		logger:  logger.New("module", "client", "username", cfg.Username),
	}, nil
}

// ArenaURL builds the websocket URL of the arena at addr
func ArenaURL(addr, username, encoding string) string {
	q := url.Values{}
	q.Set("username", username)
	if encoding != "" && encoding != protocol.JSON.Name() {
		q.Set("encoding", encoding)
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws", RawQuery: q.Encode()}
	return u.String()
}

// Dial connects to the arena configured in c
func (c *Client) Dial(ctx context.Context) (*websocket.Conn, error) {
	target := ArenaURL(c.cfg.Addr, c.cfg.Username, c.codec.Name())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	c.logger.Info("Connected to arena", "url", target)
	return conn, nil
}

type state struct {
	summary  Summary
	bot      bot.Bot
	exporter *telemetry.CSVExporter
	start    protocol.Start
}

// Run handles arena messages on conn until the requested number of auctions
// finished, the connection drops or ctx is done. conn is closed on return.
func (c *Client) Run(ctx context.Context, conn Conn) (Summary, error) {
	st := &state{}
	defer conn.Close()
	defer c.endAuction(st)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return st.summary, ctx.Err()
			}
			return st.summary, fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}

		env, err := c.codec.Decode(frame)
		if err != nil {
			c.logger.Warn("Undecodable message", "error", err)
			continue
		}

		done, err := c.handle(ctx, conn, st, env)
		if err != nil {
			return st.summary, err
		}
		if done {
			c.logger.Info("Finished",
				"winRate", st.summary.WinRate(),
				"totalAuctions", st.summary.Total,
				"auctionsWon", st.summary.Won)
			return st.summary, nil
		}
	}
}

func (c *Client) handle(ctx context.Context, conn Conn, st *state, env protocol.Envelope) (bool, error) {
	switch env.Kind {
	case protocol.KindInfo, protocol.KindWarning:
		var notice protocol.Notice
		if err := env.Data(&notice); err != nil {
			return false, nil
		}
		if env.Kind == protocol.KindWarning {
			c.logger.Warn(notice.Message)
		} else {
			c.logger.Info(notice.Message)
		}

	case protocol.KindQueued:
		var queued protocol.Queued
		if err := env.Data(&queued); err != nil {
			return false, err
		}
		st.summary.ParticipantID = queued.ID
		c.logger.Info("Waiting in the queue", "participant", queued.ID)

	case protocol.KindStart:
		c.endAuction(st)
		if err := env.Data(&st.start); err != nil {
			return false, err
		}
		b, err := c.factory()
		if err != nil {
			return false, fmt.Errorf("failed to create bot: %w", err)
		}
		st.bot = b
		if c.cfg.TelemetryDir != "" {
			exporter, err := telemetry.NewAuctionExporter(c.cfg.TelemetryDir)
			if err != nil {
				c.logger.Warn("Telemetry disabled for this auction", "error", err)
			}
			st.exporter = exporter
		}
		c.logger.Info("Auction starting", "auction", st.start.AuctionID, "index", st.start.Index, "bot", bot.Describe(b))

	case protocol.KindBidRequest:
		var req protocol.BidRequest
		if err := env.Data(&req); err != nil {
			c.logger.Warn("Unreadable bid request", "error", err)
			return false, nil
		}
		return false, c.bid(ctx, conn, st, &req)

	case protocol.KindRoundResult:
		var rr protocol.RoundResult
		if err := env.Data(&rr); err != nil {
			return false, nil
		}
		c.logger.Debug("Round result", "round", rr.RoundIndex, "winner", rr.WinnerID, "paid", rr.AmountPaid)
		if st.exporter != nil {
			err := st.exporter.WriteRecord(telemetry.Record{
				AuctionStart: rr.AuctionStart,
				Round:        rr.RoundIndex,
				WinnerIsYou:  rr.WinnerID == st.summary.ParticipantID,
				Winner:       rr.WinnerID,
				Painting:     rr.Painting,
				AmountPaid:   rr.AmountPaid,
			})
			if err != nil {
				c.logger.Warn("Failed to write telemetry", "error", err)
			}
		}

	case protocol.KindFinalReport:
		var report protocol.FinalReport
		if err := env.Data(&report); err != nil {
			return false, err
		}
		c.endAuction(st)
		if len(report.Participants) == 1 {
			st.summary.Ignored++
			c.logger.Info("Auction had a single participant, ignored", "auction", report.AuctionID)
			return false, nil
		}
		st.summary.Total++
		if report.Won {
			st.summary.Won++
		}
		c.logger.Info("Auction ended", "auction", report.AuctionID, "reason", report.Reason, "won", report.Won)
		return st.summary.Total >= c.cfg.NumAuctions, nil

	default:
		c.logger.Debug("Ignoring message", "kind", env.Kind)
	}
	return false, nil
}

func (c *Client) bid(ctx context.Context, conn Conn, st *state, req *protocol.BidRequest) error {
	amount := 0.0
	if st.bot != nil {
		if c.cfg.BotTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.BotTimeout)
			defer cancel()
		}
		var err error
		amount, err = st.bot.Bid(ctx, req)
		if err != nil {
			c.logger.Warn("Bot failed, bidding zero", "round", req.RoundIndex, "error", err)
			amount = 0
		}
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	c.logger.Debug("Bidding", "round", req.RoundIndex, "amount", amount)

	frame, err := c.codec.Encode(protocol.KindBid, protocol.Round(req.RoundIndex), protocol.BidResponse{Bid: amount})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(c.codec.FrameType(), frame); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (c *Client) endAuction(st *state) {
	if st.exporter != nil {
		if err := st.exporter.Close(); err != nil {
			c.logger.Warn("Failed to close telemetry file", "error", err)
		}
		st.exporter = nil
	}
	if closer, ok := st.bot.(io.Closer); ok {
		closer.Close()
	}
	st.bot = nil
}
