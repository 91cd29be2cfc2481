package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTurnStageWindowSnapshot(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe(StageSearch, 500)
	w.Observe(StageSearch, 700)
	w.Observe(StageSearch, 900)
	w.ObserveIndicator("fallback")
	w.ObserveIndicator("fallback")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageSearch {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageSearch)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 3000 {
		t.Fatalf("TargetP95MS = %.2f, want 3000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Name != "fallback" || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want [fallback:2]", snap.Indicators)
	}
}

func TestTurnStageWindowWrapsAround(t *testing.T) {
	w := newTurnStageWindow(2)
	w.Observe(StageTurnTotal, 10)
	w.Observe(StageTurnTotal, 20)
	w.Observe(StageTurnTotal, 30)
	w.Observe("", 5)
	w.Observe(StageSearch, -1)

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	if got := snap.Stages[0]; got.Samples != 2 || got.AvgMS != 25 || got.LastMS != 30 {
		t.Fatalf("stage = %+v, want 2 samples avg 25 last 30", got)
	}

	w.Reset()
	if n := len(w.Snapshot().Stages); n != 0 {
		t.Fatalf("len(Stages) after Reset = %d, want 0", n)
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetricsWithRegistry("test", prometheus.NewRegistry())

	m.ObserveTurn("completed")
	m.ObserveTurn("fallback")
	m.ObserveTurn("completed")
	m.ObserveCapability("search", "duckduckgo", 20*time.Millisecond, errors.New("boom"))
	m.ObserveMemoryWrite("fact", nil)
	m.ObserveSearchCache(true)
	m.ObserveSearchCache(false)
	m.ObserveTurnStage(StageCompletion, 1500*time.Microsecond)

	if got := testutil.ToFloat64(m.ChatTurns.WithLabelValues("completed")); got != 2 {
		t.Fatalf("completed turns = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CapabilityErrors.WithLabelValues("search", "duckduckgo")); got != 1 {
		t.Fatalf("search errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MemoryWrites.WithLabelValues("fact", "ok")); got != 1 {
		t.Fatalf("fact writes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SearchCache.WithLabelValues("hit")); got != 1 {
		t.Fatalf("cache hits = %v, want 1", got)
	}

	snap := m.SnapshotTurnStages()
	if len(snap.Stages) != 1 || snap.Stages[0].LastMS != 1.5 {
		t.Fatalf("stages = %+v, want completion 1.5ms", snap.Stages)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("completed")
	m.ObserveCapability("search", "x", time.Millisecond, nil)
	m.ObserveTurnStage(StageSearch, time.Millisecond)
	if snap := m.SnapshotTurnStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot = %+v", snap)
	}
}

func TestTurnStageWindowFlagsOverBudget(t *testing.T) {
	w := newTurnStageWindow(4)
	w.Observe(StageMemoryLookup, 400)
	w.Observe(StageSearch, 100)
	w.Observe("custom", 99999)

	byStage := map[string]TurnStageStats{}
	for _, s := range w.Snapshot().Stages {
		byStage[s.Stage] = s
	}
	if !byStage[StageMemoryLookup].OverBudget {
		t.Fatalf("memory_lookup = %+v, want over budget", byStage[StageMemoryLookup])
	}
	if byStage[StageSearch].OverBudget {
		t.Fatalf("search = %+v, want within budget", byStage[StageSearch])
	}
	if got := byStage["custom"]; got.OverBudget || got.TargetP95MS != 0 {
		t.Fatalf("custom = %+v, want no budget", got)
	}
}

func TestMetricsResetTurnStages(t *testing.T) {
	m := NewMetricsWithRegistry("test", prometheus.NewRegistry())
	m.ObserveTurnStage(StageSearch, 10*time.Millisecond)
	m.ObserveTurn("completed")
	m.ResetTurnStages()

	snap := m.SnapshotTurnStages()
	if len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("snapshot after reset = %+v, want empty", snap)
	}
	if got := testutil.ToFloat64(m.ChatTurns.WithLabelValues("completed")); got != 1 {
		t.Fatalf("completed turns after reset = %v, want 1", got)
	}
}
