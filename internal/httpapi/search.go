package httpapi

import (
	"errors"
	"net/http"
)

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Result string `json:"result"`
	Query  string `json:"query"`
}

// handleSearch answers a single memoryless query. Failures are reported inside
// the result text with a 200 status.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, searchResponse{
		Result: s.assistant.SearchProducts(r.Context(), req.Query),
		Query:  req.Query,
	})
}
