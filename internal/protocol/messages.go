package protocol

import (
	"time"

	"github.com/MikeLuu99/auction-arena/internal/auction"
	"github.com/MikeLuu99/auction-arena/pkg/models"
)

// PublicParticipant is what every bidder may know about another one.
// Target collections are private and never part of it.
type PublicParticipant struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Budget    float64  `json:"budget"`
	Paintings []string `json:"paintings"`
	Connected bool     `json:"connected"`
}

// BidRequest is the per-participant round view sent before asking for a bid
type BidRequest struct {
	AuctionID          string              `json:"auction_id"`
	RoundIndex         int                 `json:"round_index"`
	CurrentPainting    string              `json:"current_painting"`
	ArtistsAndValues   map[string]int      `json:"artists_and_values"`
	PaintingOrder      []string            `json:"painting_order"`
	RoundLimit         int                 `json:"round_limit"`
	StartingBudget     float64             `json:"starting_budget"`
	WinnerPaysRule     int                 `json:"winner_pays_rule"`
	MyDetails          PublicParticipant   `json:"my_details"`
	Bots               []PublicParticipant `json:"bots"`
	WinnerIDsHistory   []int               `json:"winner_ids_history"`
	AmountsPaidHistory []float64           `json:"amounts_paid_history"`
	TargetCollection   map[string]int      `json:"target_collection"`
}

// PaintingCounts tallies the caller's collected paintings per artist
func (r *BidRequest) PaintingCounts() map[string]int {
	counts := make(map[string]int)
	for _, painting := range r.MyDetails.Paintings {
		counts[painting]++
	}
	return counts
}

// RoundsLeft counts the rounds still to be played, the current one included
func (r *BidRequest) RoundsLeft() int {
	return r.RoundLimit - r.RoundIndex
}

// BidResponse is the only message a bidder sends
type BidResponse struct {
	Bid float64 `json:"bid"`
}

// RoundResult is broadcast to every live participant after each round
type RoundResult struct {
	AuctionID    string  `json:"auction_id"`
	AuctionStart string  `json:"auction_start"`
	RoundIndex   int     `json:"round_index"`
	Painting     string  `json:"painting"`
	WinnerID     int     `json:"winner_id"`
	AmountPaid   float64 `json:"amount_paid"`
}

// HistoryEntry is one round of a final report
type HistoryEntry struct {
	RoundIndex int     `json:"round_index"`
	Painting   string  `json:"painting"`
	WinnerID   int     `json:"winner_id"`
	WinningBid float64 `json:"winning_bid"`
	AmountPaid float64 `json:"amount_paid"`
}

// FinalReport is sent once per auction to every participant still connected
type FinalReport struct {
	AuctionID        string              `json:"auction_id"`
	Reason           string              `json:"reason"`
	FinalBudgets     map[int]float64     `json:"final_budgets"`
	FinalCollections map[int][]string    `json:"final_collections"`
	FullHistory      []HistoryEntry      `json:"full_history"`
	Winners          []int               `json:"winners"`
	Won              bool                `json:"won"`
	Participants     []PublicParticipant `json:"participants"`
}

// Queued acknowledges a connection and tells the client its id
type Queued struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Start announces a new auction of a series
type Start struct {
	AuctionID        string              `json:"auction_id"`
	AuctionStart     string              `json:"auction_start"`
	Index            int                 `json:"index"`
	Total            int                 `json:"total"`
	Participants     []PublicParticipant `json:"participants"`
	TargetCollection map[string]int      `json:"target_collection"`
}

// Notice carries info and warning texts
type Notice struct {
	Message string `json:"message"`
}

// FormatTime renders auction timestamps on the wire
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func publicParticipant(p models.Participant) PublicParticipant {
	paintings := p.CollectedPaintings
	if paintings == nil {
		paintings = []string{}
	}
	return PublicParticipant{
		ID:        int(p.ID),
		Name:      p.DisplayName,
		Budget:    p.Budget.InexactFloat64(),
		Paintings: paintings,
		Connected: p.Live(),
	}
}

// PublicParticipants strips private details from ps
func PublicParticipants(ps []models.Participant) []PublicParticipant {
	out := make([]PublicParticipant, 0, len(ps))
	for _, p := range ps {
		out = append(out, publicParticipant(p.Clone()))
	}
	return out
}

// NewBidRequest builds the view of snap that participant id may see
func NewBidRequest(snap auction.Snapshot, id models.ParticipantID) BidRequest {
	cfg := snap.Config
	req := BidRequest{
		AuctionID:          snap.AuctionID,
		RoundIndex:         snap.Round,
		CurrentPainting:    snap.CurrentPainting(),
		ArtistsAndValues:   cfg.ArtistsAndValues,
		PaintingOrder:      cfg.PaintingOrder,
		RoundLimit:         cfg.RoundLimit,
		StartingBudget:     cfg.StartingBudget.InexactFloat64(),
		WinnerPaysRule:     int(cfg.WinnerPays),
		Bots:               PublicParticipants(snap.Participants),
		WinnerIDsHistory:   make([]int, 0, len(snap.History)),
		AmountsPaidHistory: make([]float64, 0, len(snap.History)),
		TargetCollection:   map[string]int{},
	}
	for _, outcome := range snap.History {
		req.WinnerIDsHistory = append(req.WinnerIDsHistory, int(outcome.WinnerID))
		req.AmountsPaidHistory = append(req.AmountsPaidHistory, outcome.AmountPaid.InexactFloat64())
	}
	if me, ok := snap.Participant(id); ok {
		req.MyDetails = publicParticipant(me.Clone())
		for artist, n := range me.TargetCollection {
			req.TargetCollection[artist] = n
		}
	}
	return req
}

// NewRoundResult builds the broadcast for one evaluated round
func NewRoundResult(auctionID string, start time.Time, outcome models.RoundOutcome) RoundResult {
	return RoundResult{
		AuctionID:    auctionID,
		AuctionStart: FormatTime(start),
		RoundIndex:   outcome.Round,
		Painting:     outcome.Painting,
		WinnerID:     int(outcome.WinnerID),
		AmountPaid:   outcome.AmountPaid.InexactFloat64(),
	}
}

// NewFinalReport builds the final report for participant id
func NewFinalReport(result *models.AuctionResult, participants []models.Participant, id models.ParticipantID) FinalReport {
	report := FinalReport{
		AuctionID:        result.AuctionID,
		Reason:           string(result.Reason),
		FinalBudgets:     make(map[int]float64, len(result.Standings)),
		FinalCollections: make(map[int][]string, len(result.Standings)),
		FullHistory:      make([]HistoryEntry, 0, len(result.History)),
		Winners:          make([]int, 0, len(result.Winners)),
		Won:              result.IsWinner(id),
		Participants:     PublicParticipants(participants),
	}
	for _, s := range result.Standings {
		report.FinalBudgets[int(s.ID)] = s.Budget.InexactFloat64()
		paintings := s.CollectedPaintings
		if paintings == nil {
			paintings = []string{}
		}
		report.FinalCollections[int(s.ID)] = paintings
	}
	for _, o := range result.History {
		report.FullHistory = append(report.FullHistory, HistoryEntry{
			RoundIndex: o.Round,
			Painting:   o.Painting,
			WinnerID:   int(o.WinnerID),
			WinningBid: o.WinningBid.InexactFloat64(),
			AmountPaid: o.AmountPaid.InexactFloat64(),
		})
	}
	for _, w := range result.Winners {
		report.Winners = append(report.Winners, int(w))
	}
	return report
}
