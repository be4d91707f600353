package store

import (
	"context"
	"time"

	"github.com/MikeLuu99/auction-arena/pkg/models"
)

// AuctionStore archives finished auctions. Records are write-once and only
// read back for reporting.
type AuctionStore interface {
	Save(ctx context.Context, rec AuctionRecord) error
	Get(ctx context.Context, auctionID string) (*AuctionRecord, error)
	Recent(ctx context.Context, limit int) ([]AuctionRecord, error)
}

type RoundRecord struct {
	Round      int     `json:"round" bson:"round"`
	Painting   string  `json:"painting" bson:"painting"`
	WinnerID   int     `json:"winner_id" bson:"winner_id"`
	WinningBid float64 `json:"winning_bid" bson:"winning_bid"`
	AmountPaid float64 `json:"amount_paid" bson:"amount_paid"`
}

type StandingRecord struct {
	ID                 int      `json:"id" bson:"id"`
	Name               string   `json:"name" bson:"name"`
	Budget             float64  `json:"budget" bson:"budget"`
	Paintings          []string `json:"paintings" bson:"paintings"`
	Connected          bool     `json:"connected" bson:"connected"`
	ConnectionState    string   `json:"connection_state" bson:"connection_state"`
	CollectionComplete bool     `json:"collection_complete" bson:"collection_complete"`
	CollectionValue    int      `json:"collection_value" bson:"collection_value"`
	Winner             bool     `json:"winner" bson:"winner"`
}

// AuctionRecord is the archived form of a models.AuctionResult
type AuctionRecord struct {
	AuctionID      string           `json:"auction_id" bson:"auction_id"`
	SeriesID       string           `json:"series_id" bson:"series_id"`
	Index          int              `json:"index" bson:"index"`
	Reason         string           `json:"reason" bson:"reason"`
	StartTime      time.Time        `json:"start_time" bson:"start_time"`
	EndTime        time.Time        `json:"end_time" bson:"end_time"`
	RoundLimit     int              `json:"round_limit" bson:"round_limit"`
	StartingBudget float64          `json:"starting_budget" bson:"starting_budget"`
	WinnerPays     string           `json:"winner_pays" bson:"winner_pays"`
	Rounds         []RoundRecord    `json:"rounds" bson:"rounds"`
	Standings      []StandingRecord `json:"standings" bson:"standings"`
	Winners        []int            `json:"winners" bson:"winners"`
}

// NewAuctionRecord flattens result for storage
func NewAuctionRecord(seriesID string, result *models.AuctionResult) AuctionRecord {
	rec := AuctionRecord{
		AuctionID:      result.AuctionID,
		SeriesID:       seriesID,
		Index:          result.Index,
		Reason:         string(result.Reason),
		StartTime:      result.StartTime,
		EndTime:        result.EndTime,
		RoundLimit:     result.Config.RoundLimit,
		StartingBudget: result.Config.StartingBudget.InexactFloat64(),
		WinnerPays:     result.Config.WinnerPays.String(),
		Rounds:         make([]RoundRecord, 0, len(result.History)),
		Standings:      make([]StandingRecord, 0, len(result.Standings)),
		Winners:        make([]int, 0, len(result.Winners)),
	}
	for _, o := range result.History {
		rec.Rounds = append(rec.Rounds, RoundRecord{
			Round:      o.Round,
			Painting:   o.Painting,
			WinnerID:   int(o.WinnerID),
			WinningBid: o.WinningBid.InexactFloat64(),
			AmountPaid: o.AmountPaid.InexactFloat64(),
		})
	}
	for _, s := range result.Standings {
		rec.Standings = append(rec.Standings, StandingRecord{
			ID:                 int(s.ID),
			Name:               s.DisplayName,
			Budget:             s.Budget.InexactFloat64(),
			Paintings:          s.CollectedPaintings,
			Connected:          s.ConnectionState != models.Disconnected,
			ConnectionState:    s.ConnectionState.String(),
			CollectionComplete: s.CollectionComplete,
			CollectionValue:    s.CollectionValue,
			Winner:             s.Winner,
		})
	}
	for _, w := range result.Winners {
		rec.Winners = append(rec.Winners, int(w))
	}
	return rec
}
