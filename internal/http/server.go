// Package httpapi is the RPC-style backend the retreat player talks to.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hperssn/sages/internal/notify"
	"github.com/hperssn/sages/internal/observability"
	"github.com/hperssn/sages/internal/runner"
	"github.com/hperssn/sages/internal/storage"
)

type Deps struct {
	Repo storage.Repository
	// Plays configures the server-hosted play manager. Its Submitter and,
	// when unset, Metrics are filled in by the server.
	Plays    runner.ManagerOptions
	Notifier notify.Notifier
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	DevUser  string
}

type Server struct {
	repo     storage.Repository
	plays    *runner.SessionManager
	notifier notify.Notifier
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	log      *zap.Logger
	devUser  string
}

func NewServer(d Deps) *Server {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		reg := prometheus.NewRegistry()
		d.Metrics = observability.NewMetrics(reg)
		d.Gatherer = reg
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		repo:     d.Repo,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		gatherer: d.Gatherer,
		log:      d.Logger,
		devUser:  d.DevUser,
	}

	playOpts := d.Plays
	playOpts.Submitter = s.Submitter()
	if playOpts.Metrics == nil {
		playOpts.Metrics = d.Metrics
	}
	if playOpts.Runner.Logger == nil {
		playOpts.Runner.Logger = d.Logger
	}
	s.plays = runner.NewSessionManager(playOpts)

	return s
}

// Plays exposes the play manager so the caller can run its cleanup loop.
func (s *Server) Plays() *runner.SessionManager {
	return s.plays
}

// Submitter returns the runner.Submitter that records completions of
// server-hosted plays through the same path as POST /api/sessions.
func (s *Server) Submitter() runner.Submitter {
	return runner.SubmitterFunc(s.recordCompletion)
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(instrument(s.metrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(ExtractUserMiddleware(s.devUser, s.log))

		r.Get("/retreats", s.listRetreats)
		r.Get("/retreats/{id}", s.getRetreat)
		r.Post("/retreats/{id}/plays", s.startPlay)

		r.Post("/sessions", s.submitSession)
		r.Get("/sessions", s.listSessions)
		r.Get("/sessions/stats", s.sessionStats)

		r.Route("/plays/{playID}", func(r chi.Router) {
			r.Get("/", s.getPlay)
			r.Delete("/", s.stopPlay)
			r.Post("/play", s.playCommand((*runner.SessionRunner).Play))
			r.Post("/pause", s.playCommand((*runner.SessionRunner).Pause))
			r.Post("/next", s.playCommand((*runner.SessionRunner).Next))
			r.Post("/complete", s.completePlay)
			r.Get("/events", s.streamPlayEvents)
		})
	})

	return r
}
