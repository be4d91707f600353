package round

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/luxfi/log"
	"github.com/shopspring/decimal"

	"github.com/MikeLuu99/auction-arena/internal/auction"
	"github.com/MikeLuu99/auction-arena/internal/metrics"
	"github.com/MikeLuu99/auction-arena/internal/protocol"
	"github.com/MikeLuu99/auction-arena/internal/session"
	"github.com/MikeLuu99/auction-arena/pkg/models"
)

// Requester is one participant able to answer bid requests. *session.Session
// is the networked implementation.
type Requester interface {
	ID() models.ParticipantID
	RequestBid(ctx context.Context, req protocol.BidRequest) (float64, error)
}

// Result is what one round collected
type Result struct {
	// Bids has an entry for every live participant that did not disconnect
	Bids models.Bids

	// Disconnected lists participants lost while the round was open
	Disconnected []models.ParticipantID
}

// Coordinator runs the bid collection of one round at a time
type Coordinator struct {
	logger  log.Logger
	metrics metrics.Recorder
}

func NewCoordinator(logger log.Logger, recorder metrics.Recorder) *Coordinator {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Coordinator{
		logger:  logger.New("module", "round"),
		metrics: recorder,
	}
}

type outcome struct {
	id           models.ParticipantID
	bid          models.Bid
	disconnected bool
}

// Run asks every live participant of snap for a bid concurrently, each
// bounded by the per-round timeout, and returns once all of them resolved.
// Participants without a requester are treated as disconnected.
func (c *Coordinator) Run(ctx context.Context, snap auction.Snapshot, requesters map[models.ParticipantID]Requester) Result {
	live := snap.LiveIDs()
	outcomes := make(chan outcome, len(live))

	var wg sync.WaitGroup
	for _, id := range live {
		r, ok := requesters[id]
		if !ok {
			outcomes <- outcome{id: id, disconnected: true}
			continue
		}

		wg.Add(1)
		go func(id models.ParticipantID, r Requester) {
			defer wg.Done()
			outcomes <- c.request(ctx, snap, id, r)
		}(id, r)
	}

	// Barrier: the round closes only when every request resolved
	wg.Wait()
	close(outcomes)

	result := Result{Bids: make(models.Bids, len(live))}
	for o := range outcomes {
		if o.disconnected {
			result.Disconnected = append(result.Disconnected, o.id)
			continue
		}
		result.Bids[o.id] = o.bid
	}
	return result
}

func (c *Coordinator) request(ctx context.Context, snap auction.Snapshot, id models.ParticipantID, r Requester) outcome {
	ctx, cancel := context.WithTimeout(ctx, snap.Config.PerRoundTimeout)
	defer cancel()

	start := time.Now()
	amount, err := r.RequestBid(ctx, protocol.NewBidRequest(snap, id))
	latency := time.Since(start)
	if err == nil && (math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0) {
		err = protocol.ErrMalformedBid
	}

	logger := c.logger.New("auction", snap.AuctionID, "round", snap.Round, "participant", int(id))
	switch {
	case err == nil:
		c.metrics.RecordBid(metrics.BidReceived, latency)
		logger.Debug("bid received", "amount", amount, "latency", latency)
		return outcome{id: id, bid: models.ReceivedBid(decimal.NewFromFloat(amount))}

	case errors.Is(err, session.ErrDisconnected):
		c.metrics.RecordDisconnect()
		logger.Info("participant disconnected during round")
		return outcome{id: id, disconnected: true}

	case errors.Is(err, session.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.metrics.RecordBid(metrics.BidTimeout, latency)
		logger.Warn("bid timed out, counting zero", "timeout", snap.Config.PerRoundTimeout)
		return outcome{id: id, bid: models.NoResponse(models.BidTimedOut)}

	default:
		c.metrics.RecordBid(metrics.BidMalformed, latency)
		logger.Warn("malformed bid, counting zero", "error", err)
		return outcome{id: id, bid: models.NoResponse(models.BidMalformed)}
	}
}
