package metrics

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bid outcome labels
const (
	BidReceived   = "received"
	BidTimeout    = "timeout"
	BidMalformed  = "malformed"
	BidOverBudget = "over_budget"
)

// Recorder is what the arena reports to. ArenaMetrics implements it with
// Prometheus collectors; Nop discards everything.
type Recorder interface {
	RecordBid(status string, latency time.Duration)
	RecordRound()
	RecordDisconnect()
	RecordAuction(reason string)
	SetConnected(n int)
	RecordEvent(subject string)
}

// Nop is a Recorder that does nothing
type Nop struct{}

func (Nop) RecordBid(string, time.Duration) {}
func (Nop) RecordRound()                    {}
func (Nop) RecordDisconnect()               {}
func (Nop) RecordAuction(string)            {}
func (Nop) SetConnected(int)                {}
func (Nop) RecordEvent(string)              {}

// ArenaMetrics exposes arena activity to Prometheus
type ArenaMetrics struct {
	namespace string
	registry  *prometheus.Registry
	logger    log.Logger

	// Auction metrics
	roundsEvaluated   prometheus.Counter
	bids              *prometheus.CounterVec
	bidLatency        prometheus.Histogram
	auctionsCompleted *prometheus.CounterVec

	// Connection metrics
	disconnects prometheus.Counter
	connected   prometheus.Gauge

	// Event stream metrics
	eventsPublished *prometheus.CounterVec

	// System metrics
	goroutines prometheus.Gauge
}

// NewArenaMetrics creates and registers the arena collectors on a private registry
func NewArenaMetrics(namespace string, logger log.Logger) *ArenaMetrics {
	registry := prometheus.NewRegistry()

	m := &ArenaMetrics{
		namespace: namespace,
		registry:  registry,
		logger:    logger.New("module", "metrics"),

		roundsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_evaluated_total",
			Help:      "Total number of auction rounds evaluated",
		}),

		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_total",
			Help:      "Bid outcomes by status",
		}, []string{"status"}),

		bidLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bid_latency_seconds",
			Help:      "Time between a bid request and its resolution",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		auctionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auctions_completed_total",
			Help:      "Finished auctions by termination reason",
		}, []string{"reason"}),

		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Participants lost during an auction",
		}),

		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_connected",
			Help:      "Currently connected participants",
		}),

		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published to the message bus by subject",
		}, []string{"subject"}),

		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines_count",
			Help:      "Current number of goroutines",
		}),
	}

	registry.MustRegister(
		m.roundsEvaluated,
		m.bids,
		m.bidLatency,
		m.auctionsCompleted,
		m.disconnects,
		m.connected,
		m.eventsPublished,
		m.goroutines,
	)

	return m
}

// Handler serves the registry in the Prometheus text format
func (m *ArenaMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests
func (m *ArenaMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *ArenaMetrics) RecordBid(status string, latency time.Duration) {
	m.bids.WithLabelValues(status).Inc()
	if status != BidOverBudget {
		m.bidLatency.Observe(latency.Seconds())
	}
}

func (m *ArenaMetrics) RecordRound() {
	m.roundsEvaluated.Inc()
}

func (m *ArenaMetrics) RecordDisconnect() {
	m.disconnects.Inc()
}

func (m *ArenaMetrics) RecordAuction(reason string) {
	m.auctionsCompleted.WithLabelValues(reason).Inc()
}

func (m *ArenaMetrics) SetConnected(n int) {
	m.connected.Set(float64(n))
}

func (m *ArenaMetrics) RecordEvent(subject string) {
	m.eventsPublished.WithLabelValues(subject).Inc()
}

// CollectSystemMetrics samples runtime statistics until ctx is done
func (m *ArenaMetrics) CollectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.goroutines.Set(float64(runtime.NumGoroutine()))
		}
	}
}
