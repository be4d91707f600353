package arena

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

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

var ErrClosed = errors.New("arena closed")

// Options wires an Arena. Nil Metrics, Events and Store fall back to no-op
// and in-memory implementations.
type Options struct {
	Config  *models.Config
	Game    models.GameConfig
	Logger  log.Logger
	Metrics metrics.Recorder
	Events  events.Publisher
	Store   store.AuctionStore
}

// Arena queues connected participants, forms cohorts and runs their
// auction series concurrently. Each series owns its auctions; nothing but
// the standings table is shared between them.
type Arena struct {
	cfg         *models.Config
	game        models.GameConfig
	logger      log.Logger
	metrics     metrics.Recorder
	events      events.Publisher
	store       store.AuctionStore
	coordinator *round.Coordinator

	rngMu sync.Mutex
	rng   *rand.Rand

	nextID    atomic.Int64
	connected atomic.Int64
	register  chan *session.Session
	closed    chan struct{}
	series    sync.WaitGroup

	mu        sync.RWMutex
	standings map[string]*models.PlayerStats
	history   []*models.SeriesResult
}

const maxSeriesHistory = 50

// New validates the configuration and builds an idle arena; call Run to
// start the lobby.
func New(opts Options) (*Arena, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	seed := opts.Config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Fail early on game settings no auction could start with
	if err := auction.Prepare(opts.Game, rng).Validate(); err != nil {
		return nil, err
	}

	a := &Arena{
		cfg:       opts.Config,
		game:      opts.Game.Clone(),
		logger:    opts.Logger.New("module", "arena"),
		metrics:   opts.Metrics,
		events:    opts.Events,
		store:     opts.Store,
		rng:       rng,
		register:  make(chan *session.Session),
		closed:    make(chan struct{}),
		standings: make(map[string]*models.PlayerStats),
	}
	if a.metrics == nil {
		a.metrics = metrics.Nop{}
	}
	if a.events == nil {
		a.events = events.Nop{}
	}
	if a.store == nil {
		a.store = store.NewMemoryAuctionStore()
	}
	a.coordinator = round.NewCoordinator(opts.Logger, a.metrics)
	return a, nil
}

// NextID hands out participant ids, starting at 1
func (a *Arena) NextID() models.ParticipantID {
	return models.ParticipantID(a.nextID.Add(1))
}

// Store returns the auction archive
func (a *Arena) Store() store.AuctionStore {
	return a.store
}

// Join acknowledges s and queues it in the lobby
func (a *Arena) Join(s *session.Session) error {
	if err := s.Send(protocol.KindQueued, nil, protocol.Queued{ID: int(s.ID()), Name: s.Name()}); err != nil {
		return err
	}

	a.metrics.SetConnected(int(a.connected.Add(1)))
	go func() {
		<-s.Done()
		a.metrics.SetConnected(int(a.connected.Add(-1)))
		a.logger.Info("Participant left", "participant", int(s.ID()), "name", s.Name())
	}()

	a.logger.Info("Participant queued", "participant", int(s.ID()), "name", s.Name())
	return a.enqueue(s)
}

func (a *Arena) enqueue(s *session.Session) error {
	select {
	case a.register <- s:
		return nil
	case <-a.closed:
		s.Close()
		return ErrClosed
	}
}

// Run is the lobby loop. A cohort starts as soon as CohortSize participants
// wait, or when LobbyTimeout elapses with at least MinParticipants waiting.
// It returns after ctx is done and every running series has finished.
func (a *Arena) Run(ctx context.Context) error {
	a.logger.Info("Lobby open",
		"cohortSize", a.cfg.CohortSize,
		"minParticipants", a.cfg.MinParticipants,
		"lobbyTimeout", a.cfg.LobbyTimeout,
		"auctionsPerSeries", a.cfg.NumAuctions)

	var (
		waiting []*session.Session
		timer   *time.Timer
		timeout <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timeout = nil, nil
	}
	armTimer := func() {
		if timer == nil && len(waiting) > 0 {
			timer = time.NewTimer(a.cfg.LobbyTimeout)
			timeout = timer.C
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			close(a.closed)
			for _, s := range waiting {
				s.Close()
			}
			a.series.Wait()
			return nil

		case s := <-a.register:
			waiting = append(pruneDisconnected(waiting), s)
			if len(waiting) >= a.cfg.CohortSize {
				a.startCohort(ctx, waiting[:a.cfg.CohortSize])
				waiting = append([]*session.Session(nil), waiting[a.cfg.CohortSize:]...)
				stopTimer()
			}
			armTimer()

		case <-timeout:
			timer, timeout = nil, nil
			waiting = pruneDisconnected(waiting)
			if len(waiting) >= a.cfg.MinParticipants {
				n := min(len(waiting), a.cfg.CohortSize)
				a.startCohort(ctx, waiting[:n])
				waiting = append([]*session.Session(nil), waiting[n:]...)
			} else if len(waiting) > 0 {
				a.logger.Info("Lobby timeout, not enough participants", "waiting", len(waiting))
			}
			armTimer()
		}
	}
}

func pruneDisconnected(sessions []*session.Session) []*session.Session {
	live := sessions[:0]
	for _, s := range sessions {
		if !s.Disconnected() {
			live = append(live, s)
		}
	}
	return live
}

func (a *Arena) startCohort(ctx context.Context, members []*session.Session) {
	cohort := append([]*session.Session(nil), members...)
	a.series.Add(1)
	go func() {
		defer a.series.Done()
		a.RunSeries(ctx, cohort)

		// Survivors go back to the lobby for the next cohort
		for _, s := range cohort {
			if s.Disconnected() || ctx.Err() != nil {
				continue
			}
			s.Send(protocol.KindInfo, nil, protocol.Notice{Message: "series finished, waiting for the next cohort"})
			if err := a.enqueue(s); err != nil {
				return
			}
		}
	}()
}

func (a *Arena) prepare(base models.GameConfig) models.GameConfig {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return auction.Prepare(base, a.rng)
}

func (a *Arena) drawTarget(cfg models.GameConfig) map[string]int {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return auction.DrawTargetCollection(cfg, a.rng)
}

func (a *Arena) recordSeries(result *models.SeriesResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, stats := range result.PlayerStats {
		global, ok := a.standings[name]
		if !ok {
			global = &models.PlayerStats{Name: name}
			a.standings[name] = global
		}
		global.Merge(stats)
	}

	a.history = append(a.history, result)
	if len(a.history) > maxSeriesHistory {
		a.history = a.history[len(a.history)-maxSeriesHistory:]
	}
}

// Standings returns the all-time statistics per display name, sorted by name
func (a *Arena) Standings() []models.PlayerStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	table := models.SeriesResult{PlayerStats: a.standings}
	out := make([]models.PlayerStats, 0, len(a.standings))
	for _, stats := range table.SortedStats() {
		out = append(out, *stats)
	}
	return out
}

// RecentSeries returns the latest finished series, newest last
func (a *Arena) RecentSeries() []models.SeriesResult {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]models.SeriesResult, 0, len(a.history))
	for _, s := range a.history {
		out = append(out, *s)
	}
	return out
}
