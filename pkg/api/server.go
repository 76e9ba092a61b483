package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/events"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/orchestrator"
	"github.com/burrowhq/burrow/pkg/storage"
)

// Config holds API server settings
type Config struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string

	// WebhookSecret, when set, is required in the x-webhook-secret
	// header of webhook notifications
	WebhookSecret string

	// AllowedOrigins configures CORS; empty allows every origin
	AllowedOrigins []string

	// CacheTTL is how long complete successful responses are memoized
	// in front of the store
	CacheTTL time.Duration

	// MaxAgeLong and MaxAgeShort are the Cache-Control max-age values
	// for complete and partial responses, in seconds
	MaxAgeLong  int
	MaxAgeShort int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Addr == "" {
		out.Addr = ":8080"
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = 10 * time.Second
	}
	if out.MaxAgeLong <= 0 {
		out.MaxAgeLong = 120
	}
	if out.MaxAgeShort <= 0 {
		out.MaxAgeShort = 10
	}
	return out
}

// Server exposes the read API over the cache, plus the webhook and the
// admin introspection endpoints.
type Server struct {
	orch      *orchestrator.Orchestrator
	store     storage.Store
	broker    *events.Broker
	cfg       Config
	router    chi.Router
	responses *gocache.Cache
	http      *http.Server
	logger    zerolog.Logger
}

// New creates the API server and builds its routes. broker may be nil
// when no subscriber cares about webhook notifications.
func New(orch *orchestrator.Orchestrator, store storage.Store, broker *events.Broker, cfg Config) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		orch:      orch,
		store:     store,
		broker:    broker,
		cfg:       cfg,
		responses: gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:    log.WithComponent("api"),
	}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Router returns the HTTP handler, for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe blocks serving HTTP until Shutdown or failure
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("api server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get("/healthcheck", metrics.HealthHandler().ServeHTTP)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/is-valid", s.instrument("is-valid", s.handleIsValid))
	r.Get("/splits", s.instrument("splits", s.handleSplits))
	r.Get("/first-rows", s.instrument("first-rows", s.handleFirstRows))
	r.Get("/rows", s.instrument("rows", s.handleRows))
	r.Get("/search", s.instrument("search", s.handleSearch))
	r.Get("/filter", s.instrument("filter", s.handleFilter))
	r.Get("/size", s.instrument("size", s.handleSize))
	r.Get("/parquet", s.instrument("parquet", s.handleParquet))
	r.Get("/info", s.instrument("info", s.handleInfo))
	r.Get("/statistics", s.instrument("statistics", s.handleStatistics))
	r.Get("/opt-in-out-urls", s.instrument("opt-in-out-urls", s.handleURLsCount))

	r.Post("/webhook", s.instrument("webhook", s.handleWebhook))

	r.Route("/admin", func(r chi.Router) {
		r.Get("/queue", s.instrument("admin-queue", s.handleAdminQueue))
		r.Get("/cache", s.instrument("admin-cache", s.handleAdminCache))
		r.Get("/dataset-state", s.instrument("admin-dataset-state", s.handleAdminDatasetState))
		r.Post("/backfill", s.instrument("admin-backfill", s.handleAdminBackfill))
	})

	return r
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		timer.ObserveDuration(metrics.APIRequestDuration.WithLabelValues(endpoint))
		metrics.APIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(recorder.status)).Inc()
		s.logger.Debug().
			Str("endpoint", endpoint).
			Str("dataset", r.URL.Query().Get("dataset")).
			Int("status", recorder.status).
			Msg("request served")
	}
}
