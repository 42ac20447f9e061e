// Package server implements the HTTP control surface: connection
// parameter endpoints per engine, migration configuration, and the
// verify/migrate actions, routed with chi the way the teacher toolbox
// routes its tool-invocation endpoints, with cors and a request-ID
// middleware wired the same way.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/sqlbridge/migrator/internal/config"
	"github.com/sqlbridge/migrator/internal/log"
	"github.com/sqlbridge/migrator/internal/orchestrator"
)

// Server holds the dependencies every handler needs.
type Server struct {
	Registry     *config.Registry
	Logger       log.Logger
	Orchestrator *orchestrator.Orchestrator
}

// New wires a Server and its dependencies; the orchestrator is built
// here rather than passed in so callers only need a registry and logger.
func New(registry *config.Registry, logger log.Logger) *Server {
	return &Server{
		Registry:     registry,
		Logger:       logger,
		Orchestrator: orchestrator.New(registry, logger),
	}
}

// Router builds the full chi.Router for the control surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Route("/rdbms/{engine}", func(r chi.Router) {
		r.Put("/", s.handlePutEngine)
		r.Get("/", s.handleGetEngine)
	})
	r.Put("/migration/config", s.handlePutMigrationConfig)
	r.Post("/migration/verify", s.handlePostVerify)
	r.Post("/migration/migrate", s.handlePostMigrate)

	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(log.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := nowFunc()
		next.ServeHTTP(w, r)
		s.Logger.InfoContext(r.Context(), "request", "method", r.Method, "path", r.URL.Path, "duration_ms", nowFunc().Sub(start).Milliseconds())
	})
}

// nowFunc is indirected so it is the single place a future caller would
// substitute a fake clock in tests.
var nowFunc = time.Now

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
