package httpapi

import "net/http"

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotTurnStages())
}

// handleResetPerf clears the rolling latency window. Prometheus counters are untouched.
func (s *Server) handleResetPerf(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ResetTurnStages()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "latency window cleared",
	})
}
