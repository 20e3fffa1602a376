package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Ajirohack/echo/internal/config"
	"github.com/Ajirohack/echo/internal/ingest"
	"github.com/Ajirohack/echo/internal/metrics"
	"github.com/Ajirohack/echo/internal/mqttclient"
	"github.com/Ajirohack/echo/internal/pipeline"
	"github.com/Ajirohack/echo/internal/storage"
)

// Deps bundles what the HTTP surface serves. Engine and Limiter are
// required; everything else is optional.
type Deps struct {
	Engine  Engine
	Limiter pipeline.Limiter
	Store   storage.AudioStore
	MQTT    *mqttclient.Client
	Pool    *ingest.WorkerPool
	Watcher *ingest.FileWatcher
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, deps Deps, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORSWithOrigins(cfg.CORSOrigins))
	r.Use(metrics.InstrumentHandler)
	if cfg.HTTPRateLimit > 0 {
		r.Use(RateLimiter(cfg.HTTPRateLimit, cfg.HTTPRateBurst))
	}

	health := NewHealthHandler(deps.Engine, deps.MQTT, deps.Store, deps.Pool, deps.Watcher, version, startTime)

	r.Route("/api/v1", func(r chi.Router) {
		// Health stays unauthenticated for probes
		r.Get("/health", health.ServeHTTP)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))
			NewTranslateHandler(deps.Engine, deps.Limiter, deps.Store, log).Routes(r)
			NewProvidersHandler(deps.Engine, deps.Limiter).Routes(r)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
