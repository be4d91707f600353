package models

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// ParticipantID identifies a connection for the lifetime of the server.
// Ids start at 1; NoWinner marks an unawarded round.
type ParticipantID int

const NoWinner ParticipantID = 0

// WinnerPaysRule selects which bid the round winner pays. The numeric value
// is the rank of the paid bid and is what travels on the wire.
type WinnerPaysRule int

const (
	FirstPrice  WinnerPaysRule = 1
	SecondPrice WinnerPaysRule = 2
)

func (r WinnerPaysRule) String() string {
	switch r {
	case FirstPrice:
		return "first_price"
	case SecondPrice:
		return "second_price"
	default:
		return fmt.Sprintf("winner_pays(%d)", int(r))
	}
}

// ParseWinnerPaysRule accepts "first", "second", "first_price", "second_price", "1" or "2"
func ParseWinnerPaysRule(s string) (WinnerPaysRule, error) {
	switch s {
	case "first", "first_price", "1":
		return FirstPrice, nil
	case "second", "second_price", "2":
		return SecondPrice, nil
	}
	return 0, NewConfigError("unknown winner pays rule %q", s)
}

// ConnectionState tracks a participant within one auction. TimedOut marks a
// participant whose last round ended without a reply; it stays live.
type ConnectionState int

const (
	Connected ConnectionState = iota
	TimedOut
	Disconnected
)

func (s ConnectionState) String() string {
	switch s {
	case TimedOut:
		return "timed_out"
	case Disconnected:
		return "disconnected"
	}
	return "connected"
}

// GameConfig is fixed when an auction starts and never mutated afterwards.
// Components receive it by value; Clone detaches the map and slices.
type GameConfig struct {
	ArtistsAndValues map[string]int
	PaintingOrder    []string
	RoundLimit       int
	StartingBudget   decimal.Decimal
	WinnerPays       WinnerPaysRule
	PerRoundTimeout  time.Duration

	// TargetShape lists the painting counts of a target collection. Each
	// participant gets the counts assigned to distinct artists.
	TargetShape []int

	// StopOnCompleteCollection ends the auction as soon as a participant
	// completes its target collection.
	StopOnCompleteCollection bool
}

// DefaultGameConfig returns the classic painting game. PaintingOrder is left
// empty so that every auction draws its own.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		ArtistsAndValues: map[string]int{
			"Da Vinci":  7,
			"Rembrandt": 3,
			"Van Gogh":  12,
			"Picasso":   2,
		},
		RoundLimit:      200,
		StartingBudget:  decimal.NewFromInt(1001),
		WinnerPays:      FirstPrice,
		PerRoundTimeout: 10 * time.Second,
		TargetShape:     []int{3, 3, 1, 1},
	}
}

func (c GameConfig) Clone() GameConfig {
	out := c
	out.ArtistsAndValues = maps.Clone(c.ArtistsAndValues)
	out.PaintingOrder = slices.Clone(c.PaintingOrder)
	out.TargetShape = slices.Clone(c.TargetShape)
	return out
}

// Artists returns the artist names in a stable order
func (c GameConfig) Artists() []string {
	return slices.Sorted(maps.Keys(c.ArtistsAndValues))
}

// Validate returns a *ConfigError describing the first violated rule
func (c GameConfig) Validate() error {
	if len(c.ArtistsAndValues) == 0 {
		return NewConfigError("no artists configured")
	}
	for artist, value := range c.ArtistsAndValues {
		if value < 0 {
			return NewConfigError("artist %q has negative value %d", artist, value)
		}
	}
	if c.RoundLimit <= 0 {
		return NewConfigError("round limit must be positive, got %d", c.RoundLimit)
	}
	if c.RoundLimit > len(c.PaintingOrder) {
		return NewConfigError("round limit %d exceeds painting order length %d", c.RoundLimit, len(c.PaintingOrder))
	}
	for i, painting := range c.PaintingOrder {
		if _, ok := c.ArtistsAndValues[painting]; !ok {
			return NewConfigError("painting %d has unknown artist %q", i, painting)
		}
	}
	if c.StartingBudget.IsNegative() {
		return NewConfigError("starting budget must not be negative, got %s", c.StartingBudget)
	}
	if c.WinnerPays != FirstPrice && c.WinnerPays != SecondPrice {
		return NewConfigError("unsupported winner pays rule %s", c.WinnerPays)
	}
	if c.PerRoundTimeout <= 0 {
		return NewConfigError("per round timeout must be positive, got %s", c.PerRoundTimeout)
	}
	if len(c.TargetShape) > len(c.ArtistsAndValues) {
		return NewConfigError("target shape needs %d artists, only %d configured", len(c.TargetShape), len(c.ArtistsAndValues))
	}
	for _, n := range c.TargetShape {
		if n <= 0 {
			return NewConfigError("target shape counts must be positive, got %v", c.TargetShape)
		}
	}
	return nil
}

type Participant struct {
	ID          ParticipantID
	DisplayName string

	// TargetCollection maps artist to the number of paintings needed.
	// It is private to the participant and never broadcast to others.
	TargetCollection map[string]int

	Budget             decimal.Decimal
	CollectedPaintings []string
	ConnectionState    ConnectionState
}

func (p Participant) Clone() Participant {
	out := p
	out.TargetCollection = maps.Clone(p.TargetCollection)
	out.CollectedPaintings = slices.Clone(p.CollectedPaintings)
	return out
}

func (p Participant) Live() bool {
	return p.ConnectionState != Disconnected
}

// PaintingCounts tallies the collected paintings per artist
func (p Participant) PaintingCounts() map[string]int {
	counts := make(map[string]int)
	for _, painting := range p.CollectedPaintings {
		counts[painting]++
	}
	return counts
}

// RoundOutcome is appended to the auction history once and never changed
type RoundOutcome struct {
	Round      int
	Painting   string
	WinnerID   ParticipantID
	WinningBid decimal.Decimal
	AmountPaid decimal.Decimal
}

func (o RoundOutcome) Awarded() bool {
	return o.WinnerID != NoWinner
}

// Standing is a participant's final position in one auction
type Standing struct {
	ID                 ParticipantID
	DisplayName        string
	Budget             decimal.Decimal
	CollectedPaintings []string
	ConnectionState    ConnectionState
	CollectionComplete bool
	CollectionValue    int
	Winner             bool
}
