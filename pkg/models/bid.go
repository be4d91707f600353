package models

import "github.com/shopspring/decimal"

type BidStatus int

const (
	BidReceived BidStatus = iota
	BidTimedOut
	BidMalformed
)

func (s BidStatus) String() string {
	switch s {
	case BidReceived:
		return "received"
	case BidTimedOut:
		return "timeout"
	case BidMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Bid is one participant's entry for a round. Anything other than a received
// bid counts as zero.
type Bid struct {
	Amount decimal.Decimal
	Status BidStatus
}

func ReceivedBid(amount decimal.Decimal) Bid {
	return Bid{Amount: amount, Status: BidReceived}
}

func NoResponse(status BidStatus) Bid {
	return Bid{Amount: decimal.Zero, Status: status}
}

// Value returns the amount the auction engine considers before budget checks
func (b Bid) Value() decimal.Decimal {
	if b.Status != BidReceived || b.Amount.IsNegative() {
		return decimal.Zero
	}
	return b.Amount
}

// Bids holds one entry per participant that was live when the round opened
type Bids map[ParticipantID]Bid
