// Package server exposes the tracker HTTP API together with the
// health and metrics endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/RuneRubble/rs-proxy/pkg/cache"
	"github.com/RuneRubble/rs-proxy/pkg/config"
	"github.com/RuneRubble/rs-proxy/pkg/logger"
	"github.com/RuneRubble/rs-proxy/pkg/player"
	"github.com/RuneRubble/rs-proxy/pkg/store"
)

// Ingester triggers an immediate ingestion for one player
type Ingester interface {
	Ingest(ctx context.Context, username string) (*player.PlayerRecord, error)
}

// Deps carries the collaborators the handlers need
type Deps struct {
	Logger   *logger.Logger
	Store    store.Store
	Ingester Ingester
	Cache    cache.Cache
	Upstream config.UpstreamConfig

	// ProxyClient is used for the pass-through endpoints; nil means a
	// default client with the upstream timeout.
	ProxyClient *http.Client
}

// Server serves the tracker API
type Server struct {
	httpServer  *http.Server
	logger      *logger.Logger
	store       store.Store
	ingester    Ingester
	cache       cache.Cache
	upstream    config.UpstreamConfig
	proxyClient *http.Client
}

// New creates a new Server listening on addr
func New(addr string, deps Deps) *Server {
	s := &Server{
		logger:      deps.Logger,
		store:       deps.Store,
		ingester:    deps.Ingester,
		cache:       deps.Cache,
		upstream:    deps.Upstream,
		proxyClient: deps.ProxyClient,
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.proxyClient == nil {
		timeout := deps.Upstream.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		s.proxyClient = &http.Client{Timeout: timeout}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/track-user", s.handleTrackUser)
	mux.HandleFunc("GET /api/user/{username}", s.handleGetUser)
	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("GET /api/snapshots/{username}", s.handleSnapshots)
	mux.HandleFunc("DELETE /api/user/{username}", s.handleDeleteUser)
	mux.HandleFunc("GET /api/runemetrics/{username}", s.handleRunemetricsProxy)
	mux.HandleFunc("GET /api/chronotes", s.handleChronotes)
	mux.HandleFunc("GET /api/item/{id}", s.handleItemDetail)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: corsMiddleware(mux),
	}
	return s
}

// Handler exposes the full middleware-wrapped handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// corsMiddleware reproduces the wide-open CORS policy of the original
// deployment, frontend and API living on different origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting api server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
