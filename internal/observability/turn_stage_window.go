package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// TurnStageStats summarizes the recent latencies of one chat turn stage.
type TurnStageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	OverBudget  bool    `json:"over_budget,omitempty"`
}

// TurnIndicator counts turn outcomes seen since the last reset.
type TurnIndicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TurnStageSnapshot is the payload served by /chat/perf.
type TurnStageSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []TurnStageStats `json:"stages"`
	Indicators  []TurnIndicator  `json:"indicators,omitempty"`
}

// latencyRing keeps the newest samples of one stage, overwriting the oldest.
type latencyRing struct {
	samples []float64
	pos     int
	count   int
}

func (r *latencyRing) push(ms float64) {
	r.samples[r.pos] = ms
	r.pos = (r.pos + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}
}

func (r *latencyRing) newest() float64 {
	return r.samples[(r.pos-1+len(r.samples))%len(r.samples)]
}

func (r *latencyRing) sorted() []float64 {
	out := slices.Clone(r.samples[:r.count])
	slices.Sort(out)
	return out
}

type turnStageWindow struct {
	mu       sync.RWMutex
	size     int
	rings    map[string]*latencyRing
	outcomes map[string]int
}

func newTurnStageWindow(size int) *turnStageWindow {
	if size <= 0 {
		size = 256
	}
	w := &turnStageWindow{size: size}
	w.Reset()
	return w
}

func (w *turnStageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ring := w.rings[stage]
	if ring == nil {
		ring = &latencyRing{samples: make([]float64, w.size)}
		w.rings[stage] = ring
	}
	ring.push(ms)
}

func (w *turnStageWindow) ObserveIndicator(name string) {
	if w == nil || name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outcomes[name]++
}

func (w *turnStageWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rings = make(map[string]*latencyRing)
	w.outcomes = make(map[string]int)
}

func (w *turnStageWindow) Snapshot() TurnStageSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := TurnStageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]TurnStageStats, 0, len(w.rings)),
	}
	for _, stage := range sortedKeys(w.rings) {
		ring := w.rings[stage]
		if ring.count == 0 {
			continue
		}
		snap.Stages = append(snap.Stages, summarize(stage, ring))
	}
	for _, name := range sortedKeys(w.outcomes) {
		if n := w.outcomes[name]; n > 0 {
			snap.Indicators = append(snap.Indicators, TurnIndicator{Name: name, Count: n})
		}
	}
	return snap
}

func summarize(stage string, ring *latencyRing) TurnStageStats {
	values := ring.sorted()
	var sum float64
	for _, v := range values {
		sum += v
	}
	stats := TurnStageStats{
		Stage:       stage,
		Samples:     len(values),
		LastMS:      round2(ring.newest()),
		AvgMS:       round2(sum / float64(len(values))),
		P50MS:       round2(percentile(values, 0.50)),
		P95MS:       round2(percentile(values, 0.95)),
		P99MS:       round2(percentile(values, 0.99)),
		TargetP95MS: stageBudgetsMS[stage],
	}
	stats.OverBudget = stats.TargetP95MS > 0 && stats.P95MS > stats.TargetP95MS
	return stats
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	rank := q * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := min(lo+1, len(sorted)-1)
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
