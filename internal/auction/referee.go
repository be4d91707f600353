package auction

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeLuu99/auction-arena/pkg/models"
)

// Bidder decides the bid of participant self from a snapshot of the auction
type Bidder interface {
	Bid(ctx context.Context, snap Snapshot, self models.ParticipantID) (float64, error)
}

// BidderFunc adapts a function to Bidder
type BidderFunc func(ctx context.Context, snap Snapshot, self models.ParticipantID) (float64, error)

func (f BidderFunc) Bid(ctx context.Context, snap Snapshot, self models.ParticipantID) (float64, error) {
	return f(ctx, snap, self)
}

// Referee plays a whole auction in process. It feeds the same engine the
// arena uses, only the bids come from local Bidders instead of sessions.
type Referee struct {
	bidders map[models.ParticipantID]Bidder
}

func NewReferee(bidders map[models.ParticipantID]Bidder) *Referee {
	return &Referee{bidders: bidders}
}

// Run plays the auction to termination. Bidders are asked in id order;
// an error, an invalid amount or exceeding the per-round timeout counts as
// a zero bid.
func (r *Referee) Run(ctx context.Context, id string, cfg models.GameConfig, participants []models.Participant) (*Auction, error) {
	a, err := New(id, cfg, participants, time.Now())
	if err != nil {
		return nil, err
	}

	for !a.Finished() {
		if err := ctx.Err(); err != nil {
			a.Cancel()
			break
		}

		snap := a.Snapshot()
		bids := make(models.Bids)
		for _, pid := range snap.LiveIDs() {
			bidder, ok := r.bidders[pid]
			if !ok {
				bids[pid] = models.NoResponse(models.BidTimedOut)
				continue
			}
			bids[pid] = r.ask(ctx, bidder, snap, pid)
		}
		if _, err := a.Apply(bids); err != nil {
			return a, err
		}
	}
	return a, nil
}

func (r *Referee) ask(ctx context.Context, bidder Bidder, snap Snapshot, pid models.ParticipantID) models.Bid {
	ctx, cancel := context.WithTimeout(ctx, snap.Config.PerRoundTimeout)
	defer cancel()

	amount, err := bidder.Bid(ctx, snap, pid)
	switch {
	case ctx.Err() != nil:
		return models.NoResponse(models.BidTimedOut)
	case err != nil, math.IsNaN(amount), math.IsInf(amount, 0), amount < 0:
		return models.NoResponse(models.BidMalformed)
	}
	return models.ReceivedBid(decimal.NewFromFloat(amount))
}
