package auction

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/MikeLuu99/auction-arena/pkg/models"
)

// RoundResult is the output of evaluating one round
type RoundResult struct {
	// Participants after payment and painting award, ordered by id
	Participants []models.Participant

	Outcome models.RoundOutcome

	// OverBudget lists bidders whose bid exceeded their budget and was
	// counted as zero.
	OverBudget []models.ParticipantID
}

// EvaluateRound applies one round of the sealed-bid game. It is a pure
// function of its inputs: before is not modified and the same inputs always
// give the same result, whatever order the bids arrived in.
//
// Processing flow:
//  1. Zero out missing, timed out, malformed and over-budget bids
//  2. Pick the strictly highest bid, lowest participant id among ties
//  3. Price the win according to the winner-pays rule
//  4. Charge the winner and award the painting
func EvaluateRound(cfg models.GameConfig, round int, before []models.Participant, bids models.Bids) RoundResult {
	after := make([]models.Participant, len(before))
	for i, p := range before {
		after[i] = p.Clone()
	}
	slices.SortFunc(after, func(a, b models.Participant) int { return int(a.ID) - int(b.ID) })

	result := RoundResult{
		Participants: after,
		Outcome: models.RoundOutcome{
			Round:      round,
			Painting:   cfg.PaintingOrder[round],
			WinnerID:   models.NoWinner,
			WinningBid: decimal.Zero,
			AmountPaid: decimal.Zero,
		},
	}

	// Step 1: valid amounts in id order
	type entry struct {
		index  int
		amount decimal.Decimal
	}
	entries := make([]entry, 0, len(bids))
	for i, p := range after {
		bid, ok := bids[p.ID]
		if !ok {
			continue
		}
		amount := bid.Value()
		if amount.GreaterThan(p.Budget) {
			result.OverBudget = append(result.OverBudget, p.ID)
			amount = decimal.Zero
		}
		entries = append(entries, entry{index: i, amount: amount})
	}

	// Step 2: strictly greater keeps the earliest, i.e. lowest id, on ties
	best := -1
	for i, e := range entries {
		if best < 0 || e.amount.GreaterThan(entries[best].amount) {
			best = i
		}
	}
	if best < 0 || !entries[best].amount.IsPositive() {
		return result
	}

	// Step 3: second price is the highest among everyone else
	secondPrice := decimal.Zero
	for i, e := range entries {
		if i != best && e.amount.GreaterThan(secondPrice) {
			secondPrice = e.amount
		}
	}
	paid := entries[best].amount
	if cfg.WinnerPays == models.SecondPrice {
		paid = secondPrice
	}

	// Step 4: apply
	winner := &after[entries[best].index]
	winner.Budget = winner.Budget.Sub(paid)
	winner.CollectedPaintings = append(winner.CollectedPaintings, result.Outcome.Painting)

	result.Outcome.WinnerID = winner.ID
	result.Outcome.WinningBid = entries[best].amount
	result.Outcome.AmountPaid = paid
	return result
}
