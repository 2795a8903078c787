// Package restapi serves the actor's thin HTTP surface (§6): a
// version endpoint, the Prometheus scrape endpoint and (once
// RegisterEvents is called) a websocket event stream, wrapped in the
// same logging/metrics middleware chain the teacher wraps its service
// routers in.
package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fabric-actor/kernel/pkg/logger"
	"github.com/fabric-actor/kernel/pkg/version"
)

// Server wraps an http.Server built around a gorilla/mux router.
type Server struct {
	log    *logger.Logger
	http   *http.Server
	router *mux.Router
}

// Config bundles a Server's fixed collaborators.
type Config struct {
	Log        *logger.Logger
	Addr       string
	Registerer prometheus.Gatherer
}

// New builds a Server exposing GET /version and GET /metrics.
func New(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = logger.NewDefault()
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultGatherer
	}

	router := mux.NewRouter()
	router.Use(loggingMiddleware(cfg.Log))

	router.HandleFunc("/version", handleVersion).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(cfg.Registerer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &Server{
		log:    cfg.Log,
		router: router,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}
}

// Router exposes the underlying mux.Router so cmd/actor can register
// additional routes before Start, the same extension point the
// teacher's Service.Router gives applyMiddleware.
func (s *Server) Router() *mux.Router { return s.router }

// Start runs ListenAndServe in a goroutine and logs a fatal-adjacent
// warning if it exits for any reason other than a graceful Shutdown.
func (s *Server) Start() {
	go func() {
		s.log.WithFields(map[string]any{"addr": s.http.Addr}).Info("rest api listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithFields(map[string]any{"addr": s.http.Addr}).Fatal("rest api server error: " + err.Error())
		}
	}()
}

// Shutdown gracefully stops the server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(version.Current())
}
