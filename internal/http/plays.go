package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hperssn/sages/internal/domain"
	"github.com/hperssn/sages/internal/runner"
)

type playResponse struct {
	Retreat *domain.Retreat     `json:"retreat,omitempty"`
	State   runner.SessionState `json:"state"`
}

func (s *Server) startPlay(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.loadRetreat(w, r)
	if !ok {
		return
	}

	play, err := s.plays.StartSession("", UserIDFrom(r.Context()), rt)
	if err != nil {
		s.log.Error("start play", zap.Int64("retreat_id", rt.ID), zap.Error(err))
		respondError(w, err.Error(), http.StatusConflict)
		return
	}

	respondJSON(w, playResponse{Retreat: rt, State: play.Store().Get()}, http.StatusCreated)
}

// lookupPlay resolves the play in the URL. Plays of other users are
// reported as missing.
func (s *Server) lookupPlay(w http.ResponseWriter, r *http.Request) (*runner.ManagedSession, bool) {
	play, ok := s.plays.GetSession(chi.URLParam(r, "playID"))
	if !ok || play.Owner != UserIDFrom(r.Context()) {
		respondError(w, "play not found", http.StatusNotFound)
		return nil, false
	}
	return play, true
}

func (s *Server) getPlay(w http.ResponseWriter, r *http.Request) {
	play, ok := s.lookupPlay(w, r)
	if !ok {
		return
	}
	respondJSON(w, playResponse{Retreat: play.Retreat(), State: play.Store().Get()}, http.StatusOK)
}

func (s *Server) stopPlay(w http.ResponseWriter, r *http.Request) {
	play, ok := s.lookupPlay(w, r)
	if !ok {
		return
	}
	if err := s.plays.StopSession(play.ID()); err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) playCommand(cmd func(*runner.SessionRunner) (runner.SessionState, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		play, ok := s.lookupPlay(w, r)
		if !ok {
			return
		}

		st, err := cmd(play.SessionRunner)
		if errors.Is(err, runner.ErrRunnerStopped) {
			respondError(w, "play stopped", http.StatusGone)
			return
		}
		respondJSON(w, playResponse{State: st}, http.StatusOK)
	}
}

type completePlayRequest struct {
	ReflectionNotes string `json:"reflectionNotes,omitempty"`
	Rating          *int   `json:"rating,omitempty"`
}

func (s *Server) completePlay(w http.ResponseWriter, r *http.Request) {
	play, ok := s.lookupPlay(w, r)
	if !ok {
		return
	}
	if play.Recorder == nil {
		respondError(w, "recording disabled", http.StatusNotImplemented)
		return
	}

	var req completePlayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	play.Recorder.SetReflection(req.ReflectionNotes)
	if req.Rating != nil {
		if err := play.Recorder.SetRating(*req.Rating); err != nil {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		play.Recorder.ClearRating()
	}

	created := play.Recorder.Submitted() == nil
	rec, err := play.Recorder.Submit(r.Context())
	switch {
	case errors.Is(err, runner.ErrSessionNotCompleted):
		respondError(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, runner.ErrSubmitInFlight):
		respondError(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, domain.ErrRetreatNotFound):
		respondError(w, "retreat not found", http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrRecordConflict):
		respondError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		respondError(w, "failed to record session", http.StatusBadGateway)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, submitSessionResponse{Success: true, Created: created, Record: rec}, status)
}
