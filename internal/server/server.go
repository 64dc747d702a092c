package server

// Package server exposes the analytics engine over HTTP, a WebSocket
// real-time stream and a gRPC health endpoint.

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics"
	"github.com/kubilitics/kubilitics-vitals/internal/config"
	"github.com/kubilitics/kubilitics-vitals/internal/db"
	"github.com/kubilitics/kubilitics-vitals/internal/session"
	"github.com/kubilitics/kubilitics-vitals/internal/tracing"
)

// MaxSamples bounds days*samples_per_day for one generated dataset.
const MaxSamples = 100000

// Server is the vitals API server.
type Server struct {
	cfg      *config.Config
	engine   *analytics.Engine
	sessions *session.Store
	store    db.Store // nil when persistence is disabled
	logger   *zap.Logger
	upgrader websocket.Upgrader
	handler  http.Handler
	limiter  *rateLimiter // nil when rate limiting is disabled
	// analyses bounds concurrent detection runs across HTTP and stream clients.
	analyses *semaphore.Weighted

	streamInterval time.Duration
	// streamCtx parents every open stream; Shutdown cancels it because
	// http.Server.Shutdown does not touch hijacked connections.
	streamCtx   context.Context
	stopStreams context.CancelFunc

	mu         sync.RWMutex
	running    bool
	httpServer *http.Server
	grpc       *grpcServer
}

// NewServer wires routes and middleware. store may be nil.
func NewServer(cfg *config.Config, engine *analytics.Engine, store db.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:            cfg,
		engine:         engine,
		sessions:       session.New(cfg.Server.MaxDatasets),
		store:          store,
		logger:         logger,
		upgrader:       newUpgrader(cfg.Server.AllowedOrigins),
		limiter:        newRateLimiter(cfg.Server.RateLimitPerMinute),
		analyses:       semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		streamInterval: time.Duration(cfg.Server.StreamIntervalSeconds) * time.Second,
	}
	if s.streamInterval <= 0 {
		s.streamInterval = 5 * time.Second
	}
	s.streamCtx, s.stopStreams = context.WithCancel(context.Background())

	router := mux.NewRouter()
	s.setupRoutes(router)
	router.Use(s.recoveryMiddleware)
	router.Use(s.loggingMiddleware)
	router.Use(s.rateLimitMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-Trace-ID"},
		AllowCredentials: true,
	})
	s.handler = tracing.Middleware(c.Handler(router))
	return s
}

func (s *Server) setupRoutes(router *mux.Router) {
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/ready", s.handleReady).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/ws/stream", s.handleStream).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/datasets", s.handleListDatasets).Methods("GET")
	api.HandleFunc("/datasets", s.handleCreateDataset).Methods("POST")
	api.HandleFunc("/datasets/{id}", s.handleGetDataset).Methods("GET")
	api.HandleFunc("/datasets/{id}", s.handleDeleteDataset).Methods("DELETE")
	api.HandleFunc("/datasets/{id}/detect", s.handleDetect).Methods("POST")
	api.HandleFunc("/datasets/{id}/score", s.handleScore).Methods("GET")
	api.HandleFunc("/datasets/{id}/insights", s.handleInsights).Methods("GET")
	api.HandleFunc("/datasets/{id}/report", s.handleReport).Methods("GET")
	api.HandleFunc("/datasets/{id}/anomalies", s.handleAnomalies).Methods("GET")
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
}

// acquireAnalysis waits for a free analysis slot. The caller must call the
// returned release once done.
func (s *Server) acquireAnalysis(ctx context.Context) (func(), error) {
	if err := s.analyses.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for analysis slot: %w", err)
	}
	return func() { s.analyses.Release(1) }, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured HTTP and gRPC ports and serves in the
// background. Listen errors are returned synchronously.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	httpAddr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.HTTPPort)
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", httpAddr, err)
	}

	if s.cfg.Server.GRPCPort > 0 {
		grpcAddr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.GRPCPort)
		grpcLis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
		s.grpc = newGRPCServer(s.logger)
		go s.grpc.Serve(grpcLis)
		s.logger.Info("gRPC health server started", zap.String("address", grpcAddr))
	}

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	s.running = true
	s.logger.Info("HTTP server started",
		zap.String("address", httpAddr),
		zap.Duration("stream_interval", s.streamInterval),
		zap.Bool("persistence", s.store != nil),
	)
	return nil
}

// Shutdown closes open streams and stops both servers, waiting for in-flight
// HTTP requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopStreams()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	if s.grpc != nil {
		s.grpc.Stop()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

// IsRunning reports whether Start has succeeded and Shutdown has not been called.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "kubilitics-vitals",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("Readiness check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "reason": "database unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
