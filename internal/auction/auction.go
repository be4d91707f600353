package auction

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MikeLuu99/auction-arena/pkg/models"
)

type State int

const (
	AwaitingRound State = iota
	Evaluating
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitingRound:
		return "awaiting_round"
	case Evaluating:
		return "evaluating"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var ErrTerminated = errors.New("auction terminated")

// Auction drives the engine through the round state machine and owns the
// authoritative participants and history. It is not safe for concurrent
// use: a single coordination flow mutates it between rounds, and readers
// work on Snapshots.
type Auction struct {
	id           string
	cfg          models.GameConfig
	startedAt    time.Time
	participants []models.Participant
	history      []models.RoundOutcome
	round        int
	state        State
	reason       models.TerminationReason
}

// New validates cfg and resets every participant to the starting budget
// with an empty collection. Identity, target collection and connection
// state are kept.
func New(id string, cfg models.GameConfig, participants []models.Participant, startedAt time.Time) (*Auction, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ps := make([]models.Participant, 0, len(participants))
	seen := make(map[models.ParticipantID]bool, len(participants))
	for _, p := range participants {
		if p.ID == models.NoWinner || seen[p.ID] {
			return nil, models.NewConfigError("invalid or duplicate participant id %d", p.ID)
		}
		seen[p.ID] = true

		p = p.Clone()
		p.Budget = cfg.StartingBudget
		p.CollectedPaintings = nil
		ps = append(ps, p)
	}
	slices.SortFunc(ps, func(a, b models.Participant) int { return int(a.ID) - int(b.ID) })

	a := &Auction{
		id:           id,
		cfg:          cfg.Clone(),
		startedAt:    startedAt,
		participants: ps,
		history:      make([]models.RoundOutcome, 0, cfg.RoundLimit),
		state:        AwaitingRound,
	}
	a.checkTermination()
	return a, nil
}

func (a *Auction) ID() string { return a.id }
func (a *Auction) StartedAt() time.Time { return a.startedAt }
func (a *Auction) Round() int { return a.round }
func (a *Auction) State() State { return a.state }
func (a *Auction) Finished() bool { return a.state == Terminated }
func (a *Auction) Reason() models.TerminationReason { return a.reason }
func (a *Auction) Config() models.GameConfig { return a.cfg.Clone() }
func (a *Auction) History() []models.RoundOutcome { return slices.Clone(a.history) }
func (a *Auction) CurrentPainting() string { return a.cfg.PaintingOrder[a.round] }
func (a *Auction) Participants() []models.Participant { return cloneParticipants(a.participants) }

// LiveIDs returns the ids of participants that are still connected
func (a *Auction) LiveIDs() []models.ParticipantID {
	var ids []models.ParticipantID
	for _, p := range a.participants {
		if p.Live() {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// MarkDisconnected permanently excludes id from future rounds. The
// participant keeps its budget and collection for the final standings.
func (a *Auction) MarkDisconnected(id models.ParticipantID) {
	for i := range a.participants {
		if a.participants[i].ID == id {
			a.participants[i].ConnectionState = models.Disconnected
		}
	}
	if a.state == AwaitingRound {
		a.checkTermination()
	}
}

// Apply evaluates the current round with bids, appends the outcome and
// advances the state machine.
func (a *Auction) Apply(bids models.Bids) (RoundResult, error) {
	if a.state != AwaitingRound {
		return RoundResult{}, ErrTerminated
	}
	a.state = Evaluating

	// Entries from participants that are no longer live are dropped
	live := make(models.Bids, len(bids))
	for _, p := range a.participants {
		if bid, ok := bids[p.ID]; ok && p.Live() {
			live[p.ID] = bid
		}
	}

	result := EvaluateRound(a.cfg, a.round, a.participants, live)
	for i := range result.Participants {
		p := &result.Participants[i]
		if !p.Live() {
			continue
		}
		p.ConnectionState = models.Connected
		if bid, ok := live[p.ID]; ok && bid.Status == models.BidTimedOut {
			p.ConnectionState = models.TimedOut
		}
	}
	a.participants = result.Participants
	a.history = append(a.history, result.Outcome)
	a.round++

	a.state = AwaitingRound
	a.checkTermination()

	result.Participants = cloneParticipants(result.Participants)
	return result, nil
}

// Cancel stops the auction before its natural end
func (a *Auction) Cancel() {
	if a.state != Terminated {
		a.terminate(models.ReasonCancelled)
	}
}

// Aborted reports an auction that lost its whole cohort or ended before its
// first round. Nobody wins an aborted auction.
func (a *Auction) Aborted() bool {
	return a.reason == models.ReasonCohortUnreachable || len(a.history) == 0
}

// Standings returns the final (or current) table
func (a *Auction) Standings() []models.Standing {
	standings := Standings(a.cfg, a.participants)
	if a.Finished() && a.Aborted() {
		for i := range standings {
			standings[i].Winner = false
		}
	}
	return standings
}

// Result packages the auction for reporting
func (a *Auction) Result(index int, endTime time.Time) *models.AuctionResult {
	standings := a.Standings()
	var winners []models.ParticipantID
	for _, s := range standings {
		if s.Winner {
			winners = append(winners, s.ID)
		}
	}
	return &models.AuctionResult{
		AuctionID: a.id,
		Index:     index,
		StartTime: a.startedAt,
		EndTime:   endTime,
		Reason:    a.reason,
		Config:    a.cfg.Clone(),
		History:   a.History(),
		Standings: standings,
		Winners:   winners,
	}
}

// Snapshot returns an immutable copy of the state a bidder may observe
func (a *Auction) Snapshot() Snapshot {
	return Snapshot{
		AuctionID:    a.id,
		StartedAt:    a.startedAt,
		Config:       a.cfg.Clone(),
		Round:        a.round,
		Participants: cloneParticipants(a.participants),
		History:      a.History(),
	}
}

func (a *Auction) checkTermination() {
	if a.round >= a.cfg.RoundLimit {
		a.terminate(models.ReasonRoundLimit)
		return
	}

	live, funded := 0, 0
	for _, p := range a.participants {
		if !p.Live() {
			continue
		}
		live++
		if p.Budget.IsPositive() {
			funded++
		}
	}
	switch {
	case live == 0:
		a.terminate(models.ReasonCohortUnreachable)
		return
	case funded == 0:
		a.terminate(models.ReasonBudgetsExhausted)
		return
	}

	if a.cfg.StopOnCompleteCollection {
		for _, p := range a.participants {
			if CollectionComplete(p) {
				a.terminate(models.ReasonCollectionComplete)
				return
			}
		}
	}
}

func (a *Auction) terminate(reason models.TerminationReason) {
	a.state = Terminated
	a.reason = reason
}

// Snapshot is the read-only view of an auction between two rounds
type Snapshot struct {
	AuctionID    string
	StartedAt    time.Time
	Config       models.GameConfig
	Round        int
	Participants []models.Participant
	History      []models.RoundOutcome
}

func (s Snapshot) CurrentPainting() string {
	return s.Config.PaintingOrder[s.Round]
}

func (s Snapshot) Participant(id models.ParticipantID) (models.Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return models.Participant{}, false
}

// LiveIDs returns the ids of participants connected when the snapshot was taken
func (s Snapshot) LiveIDs() []models.ParticipantID {
	var ids []models.ParticipantID
	for _, p := range s.Participants {
		if p.Live() {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func cloneParticipants(ps []models.Participant) []models.Participant {
	out := make([]models.Participant, len(ps))
	for i, p := range ps {
		out[i] = p.Clone()
	}
	return out
}
