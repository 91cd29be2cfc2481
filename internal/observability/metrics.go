package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names recorded in the rolling latency window.
const (
	StageMemoryLookup = "memory_lookup"
	StageSearch       = "search"
	StageCompletion   = "completion"
	StagePersist      = "persist"
	StageTurnTotal    = "turn_total"
)

// stageBudgetsMS is the p95 latency each stage is expected to stay under.
// Search and completion are remote calls; lookups and writes are local.
var stageBudgetsMS = map[string]float64{
	StageMemoryLookup: 50,
	StagePersist:      50,
	StageSearch:       3000,
	StageCompletion:   8000,
	StageTurnTotal:    12000,
}

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ChatTurns         *prometheus.CounterVec
	CapabilityErrors  *prometheus.CounterVec
	CapabilityLatency *prometheus.HistogramVec
	MemoryWrites      *prometheus.CounterVec
	SearchCache       *prometheus.CounterVec
	HTTPResponses     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	ActiveWebSockets  prometheus.Gauge

	turnStages *turnStageWindow
}

// NewMetrics registers instruments on the default Prometheus registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers instruments on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChatTurns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome (completed, fallback, failed, empty).",
		}, []string{"outcome"}),
		CapabilityErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_errors_total",
			Help:      "Search and completion errors by capability and provider.",
		}, []string{"capability", "provider"}),
		CapabilityLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_latency_ms",
			Help:      "Search and completion call latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}, []string{"capability"}),
		MemoryWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_writes_total",
			Help:      "Memory and history writes by kind and result.",
		}, []string{"kind", "result"}),
		SearchCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_total",
			Help:      "Search cache lookups by result (hit, miss).",
		}, []string{"result"}),
		HTTPResponses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "HTTP responses by route pattern and status code.",
		}, []string{"route", "status"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ActiveWebSockets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_websockets",
			Help:      "Number of open chat websocket connections.",
		}),
		turnStages: newTurnStageWindow(256),
	}
}

// ObserveCapability records one search or completion call.
func (m *Metrics) ObserveCapability(capability, provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CapabilityLatency.WithLabelValues(capability).Observe(float64(d.Milliseconds()))
	if err != nil {
		m.CapabilityErrors.WithLabelValues(capability, provider).Inc()
	}
}

// ObserveTurn counts a finished chat turn by outcome.
func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.ChatTurns.WithLabelValues(outcome).Inc()
	m.turnStages.ObserveIndicator(outcome)
}

// ObserveMemoryWrite counts a fact or turn write.
func (m *Metrics) ObserveMemoryWrite(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MemoryWrites.WithLabelValues(kind, result).Inc()
}

// ObserveSearchCache counts a cache hit or miss.
func (m *Metrics) ObserveSearchCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SearchCache.WithLabelValues(result).Inc()
}

// ObserveTurnStage records a stage latency in the rolling window.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.turnStages.Observe(stage, float64(d.Microseconds())/1000)
}

// SnapshotTurnStages returns percentile stats for every observed stage.
func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil {
		return TurnStageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []TurnStageStats{}}
	}
	return m.turnStages.Snapshot()
}

// ResetTurnStages clears the rolling window.
func (m *Metrics) ResetTurnStages() {
	if m == nil {
		return
	}
	m.turnStages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsHandlerFor serves the instruments registered on g.
func MetricsHandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
