// Package server wires the routes and middleware into one handler.
package server

import (
	"log/slog"
	"net/http"

	"github.com/vango-go/voicebridge/pkg/bridge/call"
	"github.com/vango-go/voicebridge/pkg/bridge/config"
	"github.com/vango-go/voicebridge/pkg/bridge/handlers"
	"github.com/vango-go/voicebridge/pkg/bridge/metrics"
	"github.com/vango-go/voicebridge/pkg/bridge/mw"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	registry *call.Registry
	metrics  *metrics.Metrics
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		registry: call.NewRegistry(),
		metrics:  metrics.New(cfg.MetricsNamespace),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/media", handlers.MediaHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Registry: s.registry,
		Metrics:  s.metrics,
	})
	s.mux.Handle("/health", handlers.HealthHandler{Registry: s.registry})
	s.mux.Handle("/metrics", s.metrics.Handler())
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Registry exposes the active-call registry for shutdown draining.
func (s *Server) Registry() *call.Registry {
	return s.registry
}
