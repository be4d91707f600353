package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// TerminationReason records why an auction stopped
type TerminationReason string

const (
	ReasonRoundLimit         TerminationReason = "round_limit"
	ReasonBudgetsExhausted   TerminationReason = "budgets_exhausted"
	ReasonCohortUnreachable  TerminationReason = "cohort_unreachable"
	ReasonCollectionComplete TerminationReason = "collection_complete"
	ReasonCancelled          TerminationReason = "cancelled"
)

// AuctionResult holds everything reported about one finished auction
type AuctionResult struct {
	AuctionID string
	Index     int
	StartTime time.Time
	EndTime   time.Time
	Reason    TerminationReason
	Config    GameConfig
	History   []RoundOutcome
	Standings []Standing
	Winners   []ParticipantID
}

// Aborted reports an auction that never got going or lost its whole cohort.
// Aborted auctions have no winners and are left out of series statistics.
func (r *AuctionResult) Aborted() bool {
	return r.Reason == ReasonCohortUnreachable || len(r.History) == 0
}

// IsWinner reports whether id is among the auction winners
func (r *AuctionResult) IsWinner(id ParticipantID) bool {
	return slices.Contains(r.Winners, id)
}

// PlayerStats holds aggregated statistics for a display name across auctions
type PlayerStats struct {
	Name          string  `json:"name"`
	TotalAuctions int     `json:"totalAuctions"`
	Wins          int     `json:"wins"`
	Completed     int     `json:"completedCollections"`
	WinRate       float64 `json:"winRate"`
	AvgBudget     float64 `json:"avgBudget"`
	AvgValue      float64 `json:"avgValue"`

	totalBudget decimal.Decimal
	totalValue  int
}

// SeriesResult holds aggregated results of a cohort's sequential auctions
type SeriesResult struct {
	SeriesID          string                  `json:"seriesId"`
	TotalAuctions     int                     `json:"totalAuctions"`
	CompletedAuctions int                     `json:"completedAuctions"`
	StartTime         time.Time               `json:"startTime"`
	EndTime           time.Time               `json:"endTime"`
	SeriesDuration    string                  `json:"seriesDuration"`
	AuctionResults    []*AuctionResult        `json:"-"`
	PlayerStats       map[string]*PlayerStats `json:"playerStats"`
	OverallWinner     string                  `json:"overallWinner"` // Player with most wins
}

// NewSeriesResult creates a new series result tracker
func NewSeriesResult(seriesID string, totalAuctions int) *SeriesResult {
	return &SeriesResult{
		SeriesID:       seriesID,
		TotalAuctions:  totalAuctions,
		StartTime:      time.Now(),
		AuctionResults: make([]*AuctionResult, 0, totalAuctions),
		PlayerStats:    make(map[string]*PlayerStats),
	}
}

// AddAuctionResult adds a finished auction to the series. Aborted auctions
// are not counted and false is returned.
func (sr *SeriesResult) AddAuctionResult(result *AuctionResult) bool {
	if result.Aborted() {
		return false
	}
	sr.AuctionResults = append(sr.AuctionResults, result)
	sr.CompletedAuctions++

	for _, standing := range result.Standings {
		stats, exists := sr.PlayerStats[standing.DisplayName]
		if !exists {
			stats = &PlayerStats{Name: standing.DisplayName}
			sr.PlayerStats[standing.DisplayName] = stats
		}
		stats.record(standing)
	}

	if sr.IsComplete() {
		sr.Finish()
	}
	return true
}

// Finish stamps the end time and picks the overall winner. It is called
// automatically once every auction is in, and by the runner when a series
// stops early.
func (sr *SeriesResult) Finish() {
	sr.EndTime = time.Now()
	sr.SeriesDuration = sr.EndTime.Sub(sr.StartTime).String()
	sr.updateOverallWinner()
}

// IsComplete returns true if all auctions have been completed
func (sr *SeriesResult) IsComplete() bool {
	return sr.CompletedAuctions >= sr.TotalAuctions
}

// GetProgress returns the completion percentage
func (sr *SeriesResult) GetProgress() float64 {
	if sr.TotalAuctions == 0 {
		return 0
	}
	return float64(sr.CompletedAuctions) / float64(sr.TotalAuctions) * 100
}

// updateOverallWinner finds the player with the most wins; names break ties
// so that the summary does not depend on map order.
func (sr *SeriesResult) updateOverallWinner() {
	sr.OverallWinner = ""
	maxWins := 0
	for _, stats := range sr.SortedStats() {
		if stats.Wins > maxWins {
			maxWins = stats.Wins
			sr.OverallWinner = stats.Name
		}
	}
}

// SortedStats returns the player statistics ordered by name
func (sr *SeriesResult) SortedStats() []*PlayerStats {
	out := make([]*PlayerStats, 0, len(sr.PlayerStats))
	for _, stats := range sr.PlayerStats {
		out = append(out, stats)
	}
	slices.SortFunc(out, func(a, b *PlayerStats) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Merge folds other into these statistics
func (ps *PlayerStats) Merge(other *PlayerStats) {
	ps.TotalAuctions += other.TotalAuctions
	ps.Wins += other.Wins
	ps.Completed += other.Completed
	ps.totalBudget = ps.totalBudget.Add(other.totalBudget)
	ps.totalValue += other.totalValue
	ps.recalculate()
}

func (ps *PlayerStats) record(standing Standing) {
	ps.TotalAuctions++
	if standing.Winner {
		ps.Wins++
	}
	if standing.CollectionComplete {
		ps.Completed++
	}
	ps.totalBudget = ps.totalBudget.Add(standing.Budget)
	ps.totalValue += standing.CollectionValue
	ps.recalculate()
}

func (ps *PlayerStats) recalculate() {
	if ps.TotalAuctions == 0 {
		return
	}
	n := float64(ps.TotalAuctions)
	ps.WinRate = float64(ps.Wins) / n * 100
	ps.AvgBudget = ps.totalBudget.InexactFloat64() / n
	ps.AvgValue = float64(ps.totalValue) / n
}
