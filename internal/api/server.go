// Package api exposes sessions and their analyses over HTTP.
package api

import (
	"net/http"
	"time"

	"caseflow/internal"
	"caseflow/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// maxUploadBytes bounds multipart uploads held in memory.
const maxUploadBytes = 32 << 20

// Server routes HTTP requests to the session engine.
type Server struct {
	engine   *session.Engine
	sessions *session.Holder
	store    session.Store
	events   *EventHub
	logger   *internal.Logger
	router   chi.Router
}

// NewServer builds the router. store may be nil, which disables snapshots.
func NewServer(engine *session.Engine, sessions *session.Holder, store session.Store, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		engine:   engine,
		sessions: sessions,
		store:    store,
		events:   NewEventHub(logger),
		logger:   logger.With("api"),
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// Events returns the server's event hub.
func (s *Server) Events() *EventHub { return s.events }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Get("/api/events", s.events.ServeHTTP)

	r.Route("/api/session", func(r chi.Router) {
		r.Use(middleware.Timeout(2 * time.Minute))
		r.Post("/", s.handleCreateSession)
		r.Post("/upload", s.handleUploadSession)
		r.Get("/", s.handleGetSession)
		r.Put("/params", s.handleUpdateParams)
		r.Put("/targets", s.handleSetTargets)
		r.Post("/targets/upload", s.handleUploadTargets)

		r.Get("/aggregates", s.handleAggregates)
		r.Get("/series", s.handleSeries)
		r.Get("/ranking", s.handleRanking)
		r.Get("/forecast", s.handleForecast)
		r.Get("/analysis", s.handleAnalysis)
		r.Get("/performance", s.handlePerformance)
		r.Get("/report", s.handleReport)
		r.Get("/snapshots", s.handleListSnapshots)
	})
}
