package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hperssn/sages/internal/domain"
)

type retreatSummary struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	StepCount     int    `json:"stepCount"`
	TotalDuration int    `json:"totalDurationSeconds"`
}

func (s *Server) listRetreats(w http.ResponseWriter, r *http.Request) {
	retreats, err := s.repo.ListRetreats(r.Context())
	if err != nil {
		s.log.Error("list retreats", zap.Error(err))
		respondError(w, "failed to list retreats", http.StatusInternalServerError)
		return
	}

	out := make([]retreatSummary, 0, len(retreats))
	for _, rt := range retreats {
		out = append(out, retreatSummary{
			ID:            rt.ID,
			Title:         rt.Title,
			Description:   rt.Description,
			StepCount:     len(rt.Steps),
			TotalDuration: rt.TotalDuration(),
		})
	}
	respondJSON(w, out, http.StatusOK)
}

func (s *Server) getRetreat(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.loadRetreat(w, r)
	if !ok {
		return
	}
	respondJSON(w, rt, http.StatusOK)
}

// loadRetreat resolves {id}, writing the error response itself on failure.
func (s *Server) loadRetreat(w http.ResponseWriter, r *http.Request) (*domain.Retreat, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, "invalid retreat id", http.StatusBadRequest)
		return nil, false
	}

	rt, err := s.repo.GetRetreat(r.Context(), id)
	if errors.Is(err, domain.ErrRetreatNotFound) {
		respondError(w, "retreat not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.log.Error("get retreat", zap.Int64("retreat_id", id), zap.Error(err))
		respondError(w, "failed to load retreat", http.StatusInternalServerError)
		return nil, false
	}
	return rt, true
}
