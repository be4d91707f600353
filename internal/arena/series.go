package arena

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/luxfi/log"

	"github.com/MikeLuu99/auction-arena/internal/auction"
	"github.com/MikeLuu99/auction-arena/internal/events"
	"github.com/MikeLuu99/auction-arena/internal/metrics"
	"github.com/MikeLuu99/auction-arena/internal/protocol"
	"github.com/MikeLuu99/auction-arena/internal/round"
	"github.com/MikeLuu99/auction-arena/internal/session"
	"github.com/MikeLuu99/auction-arena/internal/store"
	"github.com/MikeLuu99/auction-arena/pkg/models"
)

const overBudgetWarning = "bid exceeds budget available"

type roundEvent struct {
	SeriesID string `json:"series_id"`
	protocol.RoundResult
}

// RunSeries plays NumAuctions auctions back to back with the same cohort.
// Budgets and collections reset for every auction; ids and names persist.
// The series stops at the first aborted auction, or when ctx is done.
func (a *Arena) RunSeries(ctx context.Context, cohort []*session.Session) *models.SeriesResult {
	seriesID := uuid.NewString()
	result := models.NewSeriesResult(seriesID, a.cfg.NumAuctions)
	logger := a.logger.New("series", seriesID)

	names := make([]string, 0, len(cohort))
	for _, s := range cohort {
		names = append(names, s.Name())
	}
	logger.Info("Series starting", "participants", strings.Join(names, ", "), "auctions", a.cfg.NumAuctions)

	base := a.game
	if a.cfg.FixedPaintingOrder {
		base = a.prepare(a.game)
	}

	for i := 0; i < a.cfg.NumAuctions && ctx.Err() == nil; i++ {
		live := pruneDisconnected(append([]*session.Session(nil), cohort...))
		if len(live) == 0 {
			logger.Info("Series stopped, no participants left")
			break
		}

		auctionResult, err := a.runAuction(ctx, seriesID, i, base, live)
		if err != nil {
			logger.Error("Auction could not start", "index", i, "error", err)
			break
		}
		if !result.AddAuctionResult(auctionResult) {
			logger.Info("Series stopped, auction aborted", "index", i, "reason", auctionResult.Reason)
			break
		}
	}

	if !result.IsComplete() {
		result.Finish()
	}
	if result.CompletedAuctions == 0 {
		logger.Info("Series discarded, no auction completed")
		return result
	}
	a.recordSeries(result)
	logSeriesSummary(logger, result)
	return result
}

func (a *Arena) runAuction(ctx context.Context, seriesID string, index int, base models.GameConfig, cohort []*session.Session) (*models.AuctionResult, error) {
	cfg := a.prepare(base)

	sessions := make(map[models.ParticipantID]*session.Session, len(cohort))
	requesters := make(map[models.ParticipantID]round.Requester, len(cohort))
	participants := make([]models.Participant, 0, len(cohort))
	for _, s := range cohort {
		sessions[s.ID()] = s
		requesters[s.ID()] = s
		participants = append(participants, models.Participant{
			ID:               s.ID(),
			DisplayName:      s.Name(),
			TargetCollection: a.drawTarget(cfg),
		})
	}

	auctionID := uuid.NewString()
	auc, err := auction.New(auctionID, cfg, participants, time.Now())
	if err != nil {
		return nil, err
	}
	logger := a.logger.New("series", seriesID, "auction", auctionID)
	logger.Info("Auction started",
		"index", index,
		"participants", len(participants),
		"roundLimit", cfg.RoundLimit,
		"winnerPays", cfg.WinnerPays)

	public := protocol.PublicParticipants(auc.Participants())
	for _, p := range auc.Participants() {
		sessions[p.ID].Send(protocol.KindStart, nil, protocol.Start{
			AuctionID:        auctionID,
			AuctionStart:     protocol.FormatTime(auc.StartedAt()),
			Index:            index,
			Total:            a.cfg.NumAuctions,
			Participants:     public,
			TargetCollection: p.TargetCollection,
		})
	}

	for !auc.Finished() {
		if ctx.Err() != nil {
			auc.Cancel()
			break
		}

		// Connections lost since the last round
		for id, s := range sessions {
			if s.Disconnected() {
				auc.MarkDisconnected(id)
			}
		}
		if auc.Finished() {
			break
		}

		collected := a.coordinator.Run(ctx, auc.Snapshot(), requesters)
		for _, id := range collected.Disconnected {
			auc.MarkDisconnected(id)
		}

		rr, err := auc.Apply(collected.Bids)
		if err != nil {
			// Everyone left while the round was open
			break
		}
		a.metrics.RecordRound()
		a.roundFinished(logger, seriesID, auc, sessions, rr)
	}

	result := auc.Result(index, time.Now())
	final := auc.Participants()
	for _, p := range final {
		if !p.Live() {
			continue
		}
		sessions[p.ID].Send(protocol.KindFinalReport, nil, protocol.NewFinalReport(result, final, p.ID))
	}

	a.metrics.RecordAuction(string(result.Reason))
	if result.Aborted() {
		logger.Info("Auction aborted", "reason", result.Reason, "rounds", len(result.History))
		return result, nil
	}
	a.publish(logger, events.SubjectFinal, newAuctionFinished(seriesID, result))

	// The archive write outlives a shutdown of the auction itself
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.store.Save(saveCtx, store.NewAuctionRecord(seriesID, result)); err != nil {
		logger.Error("Failed to archive auction", "error", err)
	}

	logger.Info("Auction finished",
		"reason", result.Reason,
		"rounds", len(result.History),
		"winners", winnerNames(result))
	return result, nil
}

func (a *Arena) roundFinished(logger log.Logger, seriesID string, auc *auction.Auction, sessions map[models.ParticipantID]*session.Session, rr auction.RoundResult) {
	outcome := rr.Outcome

	for _, id := range rr.OverBudget {
		a.metrics.RecordBid(metrics.BidOverBudget, 0)
		logger.Warn("Bid over budget counted as zero", "participant", int(id), "round", outcome.Round)
		sessions[id].Send(protocol.KindWarning, protocol.Round(outcome.Round), protocol.Notice{Message: overBudgetWarning})
	}

	broadcast := protocol.NewRoundResult(auc.ID(), auc.StartedAt(), outcome)
	for _, p := range rr.Participants {
		if p.Live() {
			sessions[p.ID].Send(protocol.KindRoundResult, protocol.Round(outcome.Round), broadcast)
		}
	}
	a.publish(logger, events.SubjectRound, roundEvent{SeriesID: seriesID, RoundResult: broadcast})

	logger.Info("Round finished",
		"round", outcome.Round,
		"painting", outcome.Painting,
		"winner", int(outcome.WinnerID),
		"paid", outcome.AmountPaid.String())
}

func (a *Arena) publish(logger log.Logger, subject string, payload any) {
	if err := a.events.Publish(subject, payload); err != nil {
		logger.Warn("Failed to publish event", "subject", subject, "error", err)
		return
	}
	a.metrics.RecordEvent(subject)
}

func newAuctionFinished(seriesID string, result *models.AuctionResult) events.AuctionFinished {
	ev := events.AuctionFinished{
		SeriesID:    seriesID,
		AuctionID:   result.AuctionID,
		Index:       result.Index,
		Reason:      string(result.Reason),
		Rounds:      len(result.History),
		Winners:     make([]int, 0, len(result.Winners)),
		WinnerNames: winnerNames(result),
		StartTime:   protocol.FormatTime(result.StartTime),
		EndTime:     protocol.FormatTime(result.EndTime),
	}
	for _, id := range result.Winners {
		ev.Winners = append(ev.Winners, int(id))
	}
	return ev
}

func winnerNames(result *models.AuctionResult) []string {
	names := []string{}
	for _, s := range result.Standings {
		if s.Winner {
			names = append(names, s.DisplayName)
		}
	}
	return names
}

func logSeriesSummary(logger log.Logger, result *models.SeriesResult) {
	logger.Info("Series completed",
		"auctions", result.CompletedAuctions,
		"duration", result.SeriesDuration,
		"overallWinner", result.OverallWinner)
	for _, stats := range result.SortedStats() {
		logger.Info(fmt.Sprintf("%-25s | Wins: %2d | Win Rate: %5.1f%% | Avg Value: %.2f",
			stats.Name, stats.Wins, stats.WinRate, stats.AvgValue))
	}
}
