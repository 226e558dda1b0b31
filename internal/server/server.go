package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/psantana5/euclid/internal/config"
	"github.com/psantana5/euclid/pkg/api"
	"github.com/psantana5/euclid/pkg/auth"
	"github.com/psantana5/euclid/pkg/cleanup"
	"github.com/psantana5/euclid/pkg/logging"
	"github.com/psantana5/euclid/pkg/metrics"
	"github.com/psantana5/euclid/pkg/ratelimit"
	"github.com/psantana5/euclid/pkg/shutdown"
	"github.com/psantana5/euclid/pkg/store"
	"github.com/psantana5/euclid/pkg/tracing"
)

// Version is reported to the tracing backend
var Version = "dev"

// Server owns the API and metrics listeners and everything behind them
type Server struct {
	cfg       *config.Config
	logger    *logging.Logger
	store     store.Store
	tracer    *tracing.Provider
	collector *metrics.Collector
	limiter   *ratelimit.Limiter
	clientKey func(*http.Request) string
	verifier  *auth.Verifier
	retention *cleanup.Manager

	apiServer     *http.Server
	metricsServer *http.Server
	shutdown      *shutdown.Manager
	stopCleanup   chan struct{}
}

// New wires a server from configuration. The caller owns nothing until Run
// returns; on error every resource opened so far is released.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		collector:   metrics.NewCollector(),
		shutdown:    shutdown.New(cfg.Server.ShutdownTimeout, logger),
		stopCleanup: make(chan struct{}),
	}

	verifier, err := auth.NewVerifier(cfg.Auth.APIKey, cfg.Auth.APIKeyHash)
	if err != nil {
		return nil, err
	}
	s.verifier = verifier

	s.clientKey, err = ratelimit.ForwardedKeyFunc(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("rate_limit.trusted_proxies: %w", err)
	}

	dataStore, err := store.NewStore(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", cfg.Store.Type, err)
	}
	s.store = dataStore
	s.shutdown.Register("store", shutdown.CloseResource(dataStore))
	if cfg.Store.Type == "memory" {
		logger.Warn("Using in-memory store (history will not persist)")
	}

	tracer, err := tracing.InitTracer(cfg.TracingConfig(Version), logger)
	if err != nil {
		dataStore.Close()
		return nil, err
	}
	s.tracer = tracer
	s.shutdown.Register("tracing", tracer.Shutdown)

	s.collector.RegisterStore(dataStore)

	s.retention = cleanup.NewManager(cfg.CleanupConfig(), dataStore, logger)

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		s.limiter.StartCleanup(time.Minute, 10*time.Minute, s.stopCleanup)
		s.shutdown.Register("rate-limit-cleanup", func(context.Context) error {
			close(s.stopCleanup)
			return nil
		})
	}

	if cfg.Log.File && cfg.Log.MaxSizeMB > 0 {
		stop := make(chan struct{})
		go s.rotateLogs(int64(cfg.Log.MaxSizeMB)<<20, stop)
		s.shutdown.Register("log-rotation", func(context.Context) error {
			close(stop)
			return nil
		})
	}

	s.apiServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tlsCfg, err := cfg.ServerTLS()
	if err != nil {
		s.shutdown.Shutdown()
		return nil, err
	}
	s.apiServer.TLSConfig = tlsCfg

	if cfg.Server.MetricsAddress != "" {
		metricsRouter := mux.NewRouter()
		metricsRouter.Handle("/metrics", s.collector).Methods("GET")
		s.metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      metricsRouter,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	return s, nil
}

// Router builds the API router with its middleware chain
func (s *Server) Router() http.Handler {
	handler := api.NewHandler(s.store, s.logger, api.Options{
		BatchWorkers:  s.cfg.Batch.Workers,
		BatchMaxPairs: s.cfg.Batch.MaxPairs,
	})
	handler.SetMetricsRecorder(s.collector)

	router := mux.NewRouter()
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(s.collector.Middleware)
	if s.limiter != nil {
		router.Use(s.limiter.Middleware(s.clientKey))
	}
	router.Use(s.verifier.Middleware)
	handler.RegisterRoutes(router)

	return router
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	apiLn, err := net.Listen("tcp", s.apiServer.Addr)
	if err != nil {
		s.shutdown.Shutdown()
		return fmt.Errorf("failed to listen on %s: %w", s.apiServer.Addr, err)
	}
	if s.apiServer.TLSConfig != nil {
		apiLn = tls.NewListener(apiLn, s.apiServer.TLSConfig)
	}

	errCh := make(chan error, 2)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.serve("api", s.apiServer, apiLn, errCh, cancel)
	s.shutdown.Register("api-server", shutdown.StopHTTPServer(s.apiServer))

	if s.metricsServer != nil {
		metricsLn, err := net.Listen("tcp", s.metricsServer.Addr)
		if err != nil {
			cancel()
			s.shutdown.Shutdown()
			return fmt.Errorf("failed to listen on %s: %w", s.metricsServer.Addr, err)
		}
		s.serve("metrics", s.metricsServer, metricsLn, errCh, cancel)
		s.shutdown.Register("metrics-server", shutdown.StopHTTPServer(s.metricsServer))
	}

	s.retention.Start(ctx)
	s.shutdown.Register("retention", s.retention.Stop)

	s.logger.Info("euclid listening", logging.Fields{
		"api":     apiLn.Addr().String(),
		"metrics": s.cfg.Server.MetricsAddress,
		"store":   s.cfg.Store.Type,
		"auth":    s.verifier.Enabled(),
		"tls":     s.apiServer.TLSConfig != nil,
	})

	shutdownErr := s.shutdown.Wait(ctx)

	var serveErr error
drain:
	for {
		select {
		case err := <-errCh:
			serveErr = errors.Join(serveErr, err)
		default:
			break drain
		}
	}
	return errors.Join(serveErr, shutdownErr)
}

func (s *Server) rotateLogs(maxBytes int64, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.logger.RotateIfNeeded(maxBytes); err != nil {
				s.logger.Warn("Log rotation failed", logging.Fields{"error": err.Error()})
			}
		}
	}
}

func (s *Server) serve(name string, srv *http.Server, ln net.Listener, errCh chan<- error, cancel context.CancelFunc) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed", logging.Fields{"server": name, "error": err.Error()})
			errCh <- fmt.Errorf("%s server: %w", name, err)
			cancel()
		}
	}()
}
