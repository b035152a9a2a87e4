package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hperssn/sages/internal/domain"
)

type submitSessionRequest struct {
	ID              string  `json:"id,omitempty"`
	RetreatID       int64   `json:"retreatId"`
	ReflectionNotes *string `json:"reflectionNotes,omitempty"`
	Rating          *int    `json:"rating,omitempty"`
}

type submitSessionResponse struct {
	Success bool                     `json:"success"`
	Created bool                     `json:"created"`
	Record  *domain.CompletionRecord `json:"record"`
}

func (s *Server) submitSession(w http.ResponseWriter, r *http.Request) {
	var req submitSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec := &domain.CompletionRecord{
		ID:              req.ID,
		RetreatID:       req.RetreatID,
		ReflectionNotes: req.ReflectionNotes,
		Rating:          req.Rating,
	}
	s.writeCompletion(w, r, rec)
}

func (s *Server) writeCompletion(w http.ResponseWriter, r *http.Request, rec *domain.CompletionRecord) {
	stored, created, err := s.saveCompletion(r.Context(), rec)
	switch {
	case errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, domain.ErrInvalidRecordID),
		errors.Is(err, domain.ErrInvalidRetreat):
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrRetreatNotFound):
		respondError(w, "retreat not found", http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrRecordConflict):
		respondError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		respondError(w, "failed to record session", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, submitSessionResponse{Success: true, Created: created, Record: stored}, status)
}

// recordCompletion adapts saveCompletion to runner.Submitter.
func (s *Server) recordCompletion(ctx context.Context, rec *domain.CompletionRecord) (*domain.CompletionRecord, error) {
	stored, _, err := s.saveCompletion(ctx, rec)
	return stored, err
}

// saveCompletion validates, writes once and fans out a completion. The
// user comes from ctx, never from the payload.
func (s *Server) saveCompletion(ctx context.Context, in *domain.CompletionRecord) (*domain.CompletionRecord, bool, error) {
	rec := *in
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.UserID = UserIDFrom(ctx)
	rec.CompletedAt = time.Now().UTC()

	if err := rec.Validate(); err != nil {
		return nil, false, err
	}
	if _, err := s.repo.GetRetreat(ctx, rec.RetreatID); err != nil {
		if !errors.Is(err, domain.ErrRetreatNotFound) {
			s.metrics.SubmissionFailures.Inc()
		}
		return nil, false, err
	}

	log := s.log.With(
		zap.String("record_id", rec.ID),
		zap.Int64("retreat_id", rec.RetreatID),
		zap.String("user_id", rec.UserID),
	)

	stored, created, err := s.repo.SaveCompletion(ctx, &rec)
	if err != nil {
		s.metrics.SubmissionFailures.Inc()
		log.Error("save completion", zap.Error(err))
		return nil, false, err
	}
	if !created {
		if stored.UserID != rec.UserID || stored.RetreatID != rec.RetreatID {
			log.Warn("completion id taken by another record",
				zap.String("owner_id", stored.UserID),
				zap.Int64("owner_retreat_id", stored.RetreatID))
			return nil, false, domain.ErrRecordConflict
		}
		log.Info("completion already recorded")
		return stored, false, nil
	}

	s.metrics.CompletionsRecorded.Inc()
	log.Info("completion recorded")

	if err := s.notifier.SessionCompleted(ctx, stored); err != nil {
		log.Warn("notify session completed", zap.Error(err))
	}
	return stored, true, nil
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFrom(r.Context())
	q := r.URL.Query()

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		records, err := s.repo.ListRecentCompletions(r.Context(), userID, t)
		s.respondRecords(w, records, err)
		return
	}

	limit := 0
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			respondError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	records, err := s.repo.ListCompletionsByUser(r.Context(), userID, limit)
	s.respondRecords(w, records, err)
}

func (s *Server) respondRecords(w http.ResponseWriter, records []domain.CompletionRecord, err error) {
	if err != nil {
		s.log.Error("list completions", zap.Error(err))
		respondError(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []domain.CompletionRecord{}
	}
	respondJSON(w, records, http.StatusOK)
}

func (s *Server) sessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.GetCompletionStats(r.Context(), UserIDFrom(r.Context()))
	if err != nil {
		s.log.Error("completion stats", zap.Error(err))
		respondError(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	respondJSON(w, stats, http.StatusOK)
}
