package round

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/MikeLuu99/auction-arena/internal/auction"
	"github.com/MikeLuu99/auction-arena/internal/protocol"
	"github.com/MikeLuu99/auction-arena/internal/session"
	"github.com/MikeLuu99/auction-arena/pkg/models"
)

type fakeRequester struct {
	id    models.ParticipantID
	delay time.Duration
	bid   float64
	err   error
	hang  bool

	mu       sync.Mutex
	requests []protocol.BidRequest
}

func (f *fakeRequester) ID() models.ParticipantID { return f.id }

func (f *fakeRequester) RequestBid(ctx context.Context, req protocol.BidRequest) (float64, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.hang {
		<-ctx.Done()
		return 0, session.ErrTimeout
	}
	select {
	case <-time.After(f.delay):
		return f.bid, f.err
	case <-ctx.Done():
		return 0, session.ErrTimeout
	}
}

func testCoordinator() *Coordinator {
	level, _ := log.ToLevel("debug")
	return NewCoordinator(log.NewTestLogger(level), nil)
}

func newAuction(t *testing.T, timeout time.Duration, ids ...models.ParticipantID) *auction.Auction {
	cfg := models.DefaultGameConfig()
	cfg.RoundLimit = 3
	cfg.PaintingOrder = []string{"Picasso", "Van Gogh", "Da Vinci"}
	cfg.StartingBudget = decimal.NewFromInt(100)
	cfg.PerRoundTimeout = timeout

	ps := make([]models.Participant, 0, len(ids))
	for _, id := range ids {
		ps = append(ps, models.Participant{ID: id, DisplayName: "bot"})
	}
	a, err := auction.New("auction", cfg, ps, time.Now())
	assert.NoError(t, err)
	return a
}

func requesters(rs ...*fakeRequester) map[models.ParticipantID]Requester {
	out := make(map[models.ParticipantID]Requester, len(rs))
	for _, r := range rs {
		out[r.id] = r
	}
	return out
}

func TestRun_CollectsEveryOutcome(t *testing.T) {
	a := newAuction(t, 200*time.Millisecond, 1, 2, 3, 4, 5)
	rs := requesters(
		&fakeRequester{id: 1, bid: 30},
		&fakeRequester{id: 2, bid: 20, delay: 20 * time.Millisecond},
		&fakeRequester{id: 3, hang: true},
		&fakeRequester{id: 4, err: protocol.ErrMalformedBid},
		&fakeRequester{id: 5, err: session.ErrDisconnected},
	)

	start := time.Now()
	result := testCoordinator().Run(context.Background(), a.Snapshot(), rs)
	elapsed := time.Since(start)

	// Bounded by one timeout, not the sum of them
	check.True(t, elapsed < time.Second)

	check.Equal(t, 4, len(result.Bids))
	check.Equal(t, "30", result.Bids[1].Amount.String())
	check.Equal(t, models.BidReceived, result.Bids[2].Status)
	check.Equal(t, models.BidTimedOut, result.Bids[3].Status)
	check.Equal(t, models.BidMalformed, result.Bids[4].Status)
	_, has5 := result.Bids[5]
	check.False(t, has5)
	check.Equal(t, []models.ParticipantID{5}, result.Disconnected)
}

func TestRun_TimeoutSubstitution(t *testing.T) {
	a := newAuction(t, 50*time.Millisecond, 1, 2, 3)
	slow := &fakeRequester{id: 3, hang: true}
	rs := requesters(
		&fakeRequester{id: 1, bid: 5},
		&fakeRequester{id: 2, bid: 8},
		slow,
	)
	c := testCoordinator()

	for !a.Finished() {
		result := c.Run(context.Background(), a.Snapshot(), rs)
		for _, id := range result.Disconnected {
			a.MarkDisconnected(id)
		}
		check.Equal(t, models.BidTimedOut, result.Bids[3].Status)

		res, err := a.Apply(result.Bids)
		assert.NoError(t, err)
		check.Equal(t, models.ParticipantID(2), res.Outcome.WinnerID)
	}

	// The silent participant stayed connected and was asked every round
	check.Equal(t, []models.ParticipantID{1, 2, 3}, a.LiveIDs())
	check.Equal(t, 3, len(slow.requests))
	check.Equal(t, 3, len(a.History()))
}

func TestRun_SkipsDisconnectedParticipants(t *testing.T) {
	a := newAuction(t, time.Second, 1, 2)
	a.MarkDisconnected(2)
	gone := &fakeRequester{id: 2, bid: 50}
	rs := requesters(&fakeRequester{id: 1, bid: 1}, gone)

	result := testCoordinator().Run(context.Background(), a.Snapshot(), rs)
	check.Equal(t, 1, len(result.Bids))
	check.Equal(t, 0, len(gone.requests))
}

func TestRun_MissingRequesterCountsAsDisconnected(t *testing.T) {
	a := newAuction(t, time.Second, 1, 2)
	result := testCoordinator().Run(context.Background(), a.Snapshot(), requesters(&fakeRequester{id: 1, bid: 1}))
	check.Equal(t, []models.ParticipantID{2}, result.Disconnected)
}

func TestRun_InvalidAmountsAreMalformed(t *testing.T) {
	a := newAuction(t, time.Second, 1)
	result := testCoordinator().Run(context.Background(), a.Snapshot(), requesters(&fakeRequester{id: 1, bid: -4}))
	check.Equal(t, models.BidMalformed, result.Bids[1].Status)
}

func TestRun_RequestsCarryTheRoundView(t *testing.T) {
	a := newAuction(t, time.Second, 1, 2)
	r1 := &fakeRequester{id: 1, bid: 10}
	r2 := &fakeRequester{id: 2, bid: 3}
	c := testCoordinator()

	result := c.Run(context.Background(), a.Snapshot(), requesters(r1, r2))
	_, err := a.Apply(result.Bids)
	assert.NoError(t, err)
	c.Run(context.Background(), a.Snapshot(), requesters(r1, r2))

	req := r2.requests[1]
	check.Equal(t, 1, req.RoundIndex)
	check.Equal(t, "Van Gogh", req.CurrentPainting)
	check.Equal(t, []int{1}, req.WinnerIDsHistory)
	check.Equal(t, []float64{10}, req.AmountsPaidHistory)
	check.Equal(t, 2, req.MyDetails.ID)
}

// Arrival order of replies must not change the outcome
func TestRun_ArrivalOrderDoesNotMatter(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	c := testCoordinator()

	for i := 0; i < 10; i++ {
		a := newAuction(t, time.Second, 1, 2, 3)
		rs := requesters(
			&fakeRequester{id: 1, bid: 30, delay: time.Duration(rng.Intn(20)) * time.Millisecond},
			&fakeRequester{id: 2, bid: 30, delay: time.Duration(rng.Intn(20)) * time.Millisecond},
			&fakeRequester{id: 3, bid: 10, delay: time.Duration(rng.Intn(20)) * time.Millisecond},
		)
		result := c.Run(context.Background(), a.Snapshot(), rs)
		res, err := a.Apply(result.Bids)
		assert.NoError(t, err)
		check.Equal(t, models.ParticipantID(1), res.Outcome.WinnerID)
		check.Equal(t, "30", res.Outcome.AmountPaid.String())
	}
}

func TestRun_ParentCancellation(t *testing.T) {
	a := newAuction(t, time.Minute, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := testCoordinator().Run(ctx, a.Snapshot(), requesters(&fakeRequester{id: 1, hang: true}))
	check.True(t, errors.Is(ctx.Err(), context.Canceled))
	check.Equal(t, models.BidTimedOut, result.Bids[1].Status)
}
