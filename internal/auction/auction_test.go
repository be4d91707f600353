package auction

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/MikeLuu99/auction-arena/pkg/models"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(models.FirstPrice)
	cfg.RoundLimit = 4 // only three paintings in the order

	_, err := New("a1", cfg, testParticipants(0, 1, 2), time.Now())
	check.Error(t, err)
	check.True(t, errors.Is(err, models.ErrConfig))

	var cfgErr *models.ConfigError
	check.True(t, errors.As(err, &cfgErr))
}

func TestNew_RejectsDuplicateParticipants(t *testing.T) {
	_, err := New("a1", testConfig(models.FirstPrice), testParticipants(0, 1, 1), time.Now())
	check.True(t, errors.Is(err, models.ErrConfig))

	_, err = New("a1", testConfig(models.FirstPrice), testParticipants(0, 0), time.Now())
	check.True(t, errors.Is(err, models.ErrConfig))
}

func TestNew_ResetsBudgetsAndCollections(t *testing.T) {
	ps := testParticipants(5, 2, 1)
	ps[0].CollectedPaintings = []string{"Picasso"}

	a, err := New("a1", testConfig(models.FirstPrice), ps, time.Now())
	assert.NoError(t, err)

	got := a.Participants()
	check.Equal(t, models.ParticipantID(1), got[0].ID)
	check.Equal(t, models.ParticipantID(2), got[1].ID)
	for _, p := range got {
		check.Equal(t, "100", p.Budget.String())
		check.Equal(t, 0, len(p.CollectedPaintings))
	}
	check.Equal(t, AwaitingRound, a.State())
	check.Equal(t, "Van Gogh", a.CurrentPainting())
}

func TestAuction_RunsToRoundLimit(t *testing.T) {
	a, err := New("a1", testConfig(models.FirstPrice), testParticipants(0, 1, 2), time.Now())
	assert.NoError(t, err)

	rounds := 0
	for !a.Finished() {
		_, err := a.Apply(models.Bids{1: bid(10), 2: bid(5)})
		assert.NoError(t, err)
		rounds++
	}

	check.Equal(t, 3, rounds)
	check.Equal(t, models.ReasonRoundLimit, a.Reason())
	check.Equal(t, 3, len(a.History()))
	for i, outcome := range a.History() {
		check.Equal(t, i, outcome.Round)
		check.Equal(t, models.ParticipantID(1), outcome.WinnerID)
	}
	check.Equal(t, "70", a.Participants()[0].Budget.String())
	check.Equal(t, []string{"Van Gogh", "Picasso", "Da Vinci"}, a.Participants()[0].CollectedPaintings)

	_, err = a.Apply(models.Bids{})
	check.True(t, errors.Is(err, ErrTerminated))
}

func TestAuction_BudgetsExhausted(t *testing.T) {
	cfg := testConfig(models.FirstPrice)
	cfg.StartingBudget = decimal.NewFromInt(10)

	a, err := New("a1", cfg, testParticipants(0, 1, 2), time.Now())
	assert.NoError(t, err)

	_, err = a.Apply(models.Bids{1: bid(10), 2: bid(3)})
	assert.NoError(t, err)
	check.False(t, a.Finished())

	_, err = a.Apply(models.Bids{1: bid(0), 2: bid(10)})
	assert.NoError(t, err)
	check.True(t, a.Finished())
	check.Equal(t, models.ReasonBudgetsExhausted, a.Reason())
	check.Equal(t, 2, len(a.History()))
}

func TestAuction_ZeroBudgetTerminatesImmediately(t *testing.T) {
	cfg := testConfig(models.FirstPrice)
	cfg.StartingBudget = decimal.Zero

	a, err := New("a1", cfg, testParticipants(0, 1, 2), time.Now())
	assert.NoError(t, err)
	check.True(t, a.Finished())
	check.Equal(t, models.ReasonBudgetsExhausted, a.Reason())
	check.Equal(t, 0, len(a.History()))
}

func TestAuction_DisconnectedParticipantsAreSkipped(t *testing.T) {
	a, err := New("a1", testConfig(models.FirstPrice), testParticipants(0, 1, 2), time.Now())
	assert.NoError(t, err)

	a.MarkDisconnected(1)
	check.Equal(t, []models.ParticipantID{2}, a.LiveIDs())

	// A stray entry for the disconnected participant is ignored
	result, err := a.Apply(models.Bids{1: bid(90), 2: bid(5)})
	assert.NoError(t, err)
	check.Equal(t, models.ParticipantID(2), result.Outcome.WinnerID)
	check.Equal(t, "100", result.Participants[0].Budget.String())
	check.Equal(t, models.Disconnected, result.Participants[0].ConnectionState)

	a.MarkDisconnected(2)
	check.True(t, a.Finished())
	check.Equal(t, models.ReasonCohortUnreachable, a.Reason())
	check.Equal(t, 2, len(a.Standings()))
}

func TestAuction_CohortLostBeforeFirstRound(t *testing.T) {
	a, err := New("a1", testConfig(models.FirstPrice), testParticipants(0, 1, 2), time.Now())
	assert.NoError(t, err)

	a.MarkDisconnected(1)
	a.MarkDisconnected(2)
	check.True(t, a.Finished())
	check.True(t, a.Aborted())

	result := a.Result(0, time.Now())
	check.Equal(t, models.ReasonCohortUnreachable, result.Reason)
	check.Equal(t, 0, len(result.History))
	check.Equal(t, 0, len(result.Winners))
	check.True(t, result.Aborted())
	for _, s := range result.Standings {
		check.False(t, s.Winner)
	}

	series := models.NewSeriesResult("s1", 1)
	check.False(t, series.AddAuctionResult(result))
	check.Equal(t, 0, series.CompletedAuctions)
	check.Equal(t, 0, len(series.PlayerStats))
}

func TestAuction_CohortLostMidAuctionHasNoWinners(t *testing.T) {
	a, err := New("a1", testConfig(models.FirstPrice), testParticipants(0, 1, 2), time.Now())
	assert.NoError(t, err)

	_, err = a.Apply(models.Bids{1: bid(10), 2: bid(5)})
	assert.NoError(t, err)
	a.MarkDisconnected(1)
	a.MarkDisconnected(2)

	result := a.Result(0, time.Now())
	check.Equal(t, 1, len(result.History))
	check.Equal(t, 0, len(result.Winners))
	check.True(t, result.Aborted())
}

func TestAuction_TimeoutMarksTimedOut(t *testing.T) {
	a, err := New("a1", testConfig(models.FirstPrice), testParticipants(0, 1, 2), time.Now())
	assert.NoError(t, err)

	result, err := a.Apply(models.Bids{1: models.NoResponse(models.BidTimedOut), 2: bid(5)})
	assert.NoError(t, err)
	check.Equal(t, models.TimedOut, result.Participants[0].ConnectionState)
	check.Equal(t, models.Connected, result.Participants[1].ConnectionState)

	// Timed out participants stay in the auction
	check.Equal(t, []models.ParticipantID{1, 2}, a.LiveIDs())
	check.Equal(t, models.TimedOut, a.Standings()[0].ConnectionState)

	result, err = a.Apply(models.Bids{1: bid(20), 2: bid(5)})
	assert.NoError(t, err)
	check.Equal(t, models.Connected, result.Participants[0].ConnectionState)
	check.Equal(t, models.ParticipantID(1), result.Outcome.WinnerID)
}

func TestAuction_StopOnCompleteCollection(t *testing.T) {
	cfg := testConfig(models.FirstPrice)
	cfg.StopOnCompleteCollection = true

	ps := testParticipants(0, 1, 2)
	ps[0].TargetCollection = map[string]int{"Van Gogh": 1}
	ps[1].TargetCollection = map[string]int{"Picasso": 2}

	a, err := New("a1", cfg, ps, time.Now())
	assert.NoError(t, err)

	_, err = a.Apply(models.Bids{1: bid(10), 2: bid(5)})
	assert.NoError(t, err)
	check.True(t, a.Finished())
	check.Equal(t, models.ReasonCollectionComplete, a.Reason())

	result := a.Result(0, time.Now())
	check.Equal(t, []models.ParticipantID{1}, result.Winners)
	check.True(t, result.IsWinner(1))
	check.False(t, result.IsWinner(2))
}

func TestAuction_SnapshotIsDetached(t *testing.T) {
	a, err := New("a1", testConfig(models.FirstPrice), testParticipants(0, 1, 2), time.Now())
	assert.NoError(t, err)

	snap := a.Snapshot()
	snap.Participants[0].CollectedPaintings = append(snap.Participants[0].CollectedPaintings, "Picasso")
	snap.Config.PaintingOrder[0] = "Rembrandt"

	check.Equal(t, 0, len(a.Participants()[0].CollectedPaintings))
	check.Equal(t, "Van Gogh", a.CurrentPainting())

	p, ok := a.Snapshot().Participant(2)
	check.True(t, ok)
	check.Equal(t, models.ParticipantID(2), p.ID)
	_, ok = a.Snapshot().Participant(9)
	check.False(t, ok)
}

func TestAuction_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, rule := range []models.WinnerPaysRule{models.FirstPrice, models.SecondPrice} {
		cfg := models.DefaultGameConfig()
		cfg.RoundLimit = 60
		cfg.WinnerPays = rule
		cfg = Prepare(cfg, rng)

		a, err := New("inv", cfg, testParticipants(0, 1, 2, 3, 4), time.Now())
		assert.NoError(t, err)

		for !a.Finished() {
			bids := models.Bids{}
			for _, id := range a.LiveIDs() {
				// Some bids deliberately exceed the remaining budget
				bids[id] = bid(int64(rng.Intn(400)))
			}
			before := a.Participants()
			result, err := a.Apply(bids)
			assert.NoError(t, err)

			o := result.Outcome
			check.True(t, o.AmountPaid.LessThanOrEqual(o.WinningBid))
			if o.Awarded() {
				for _, p := range before {
					if p.ID == o.WinnerID {
						check.True(t, o.WinningBid.LessThanOrEqual(p.Budget))
					}
				}
			}
			for _, p := range result.Participants {
				check.False(t, p.Budget.IsNegative())
			}
		}
		check.True(t, len(a.History()) <= cfg.RoundLimit)
	}
}
