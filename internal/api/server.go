package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/zmeta/internal/config"
	"github.com/snarg/zmeta/internal/hub"
	"github.com/snarg/zmeta/internal/metrics"
	"github.com/snarg/zmeta/internal/recorder"
	"github.com/snarg/zmeta/internal/rules"
)

// Server wraps the HTTP surface: POST /ingest, GET /healthz,
// GET /rules, POST /rules/reload, GET /ws, plus a Prometheus /metrics
// endpoint.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions bundles every collaborator the routes need. There is no
// global state: every handler receives exactly the collaborator it reads
// or mutates.
type ServerOptions struct {
	Config   *config.Config
	Pipeline Ingester
	Hub      *hub.Hub
	Recorder *recorder.Recorder
	Rules    *rules.Engine
	Metrics  *metrics.Registry
	Log      zerolog.Logger

	StartTime time.Time
}

// liveStats adapts Hub/Recorder to metrics.LiveStats for the Prometheus
// collector's scrape-time gauges.
type liveStats struct {
	hub *hub.Hub
	rec *recorder.Recorder
}

func (l *liveStats) SubscriberCount() int    { return l.hub.SubscriberCount() }
func (l *liveStats) RecorderQueueDepth() int { return l.rec.QueueDepth() }

// NewServer builds the chi router and wraps it in an *http.Server. It does
// not start listening — call Start for that.
func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	corsOrigins := opts.Config.CORSOriginList()
	r.Use(CORSWithOrigins(corsOrigins))
	r.Use(RateLimiter(opts.Config.RateLimitRPS, opts.Config.RateLimitBurst))
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(metrics.InstrumentHandler)
	r.Use(ResponseTimeout(opts.Config.WriteTimeout))

	health := NewHealthHandler(opts.Metrics, opts.Config, opts.StartTime)
	r.Get("/healthz", health.ServeHTTP(opts.Hub))

	collector := metrics.NewCollector(&liveStats{hub: opts.Hub, rec: opts.Recorder})
	prometheus.MustRegister(collector)
	r.Handle("/metrics", promhttp.Handler())

	rulesHandler := NewRulesHandler(opts.Rules, opts.Log)
	r.Get("/rules", rulesHandler.List)
	r.Post("/rules/reload", rulesHandler.Reload)

	ingestHandler := NewIngestHandler(opts.Pipeline, opts.Hub, opts.Log)
	r.Group(func(r chi.Router) {
		r.Use(SharedSecretAuth(opts.Config.AuthHeader, opts.Config.SharedSecret))
		r.Use(MaxBodySize(1 << 20))
		r.Post("/ingest", ingestHandler.ServeHTTP)
	})

	wsHandler := NewWSHandler(opts.Hub, opts.Config.WSGreeting, opts.Config.AuthHeader, opts.Config.SharedSecret, opts.Log)
	r.Get("/ws", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         opts.Config.HTTPAddr,
		Handler:      r,
		ReadTimeout:  opts.Config.ReadTimeout,
		IdleTimeout:  opts.Config.IdleTimeout,
		WriteTimeout: 0, // /ws connections stay open; ResponseTimeout covers the rest
	}

	return &Server{http: srv, log: opts.Log}
}

// Start blocks until the server stops; it returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
