package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/deepdev237/LivePrint/internal/api/http"
	"github.com/deepdev237/LivePrint/internal/api/middleware"
	"github.com/deepdev237/LivePrint/internal/api/ws"
	"github.com/deepdev237/LivePrint/internal/domain/journal"
	"github.com/deepdev237/LivePrint/internal/domain/session"
	"github.com/deepdev237/LivePrint/internal/infrastructure/config"
	"github.com/deepdev237/LivePrint/internal/infrastructure/logging"
	"github.com/deepdev237/LivePrint/internal/infrastructure/monitoring"
	"github.com/deepdev237/LivePrint/internal/infrastructure/tracing"
	"github.com/deepdev237/LivePrint/internal/manifest"
)

// slowSpan is the request duration above which spans are logged at info.
const slowSpan = 250 * time.Millisecond

// Server wraps the HTTP server and the collaboration hub
type Server struct {
	router  *gin.Engine
	srv     *nethttp.Server
	hub     *session.Hub
	journal *journal.Journal
	tracer  *tracing.Tracer
	metrics *monitoring.Metrics
	logger  *logging.Logger
	config  *config.Config

	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing LiveBP hub",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("settings_file", cfg.Hub.SettingsFile),
		zap.String("journal", cfg.Hub.JournalPath),
	)

	// Metrics go to a private registry so tests can build several servers
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	tracer := tracing.New("livebp-hub", logger, slowSpan)

	jrnl, err := openJournal(cfg, logger)
	if err != nil {
		metrics.Close()
		tracer.Close()
		return nil, err
	}

	hub, err := session.New(session.Options{
		Settings:         cfg.Settings,
		BlueprintFilters: cfg.Hub.BlueprintFilters,
		SimulatedLatency: time.Duration(cfg.Hub.SimulatedLatencyMs) * time.Millisecond,
		Journal:          jrnl,
		Metrics:          metrics,
		Logger:           logger,
	})
	if err != nil {
		_ = jrnl.Close()
		metrics.Close()
		tracer.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}

	modules := manifest.EngineRegistry()
	if cfg.Hub.ModuleRegistry != "" {
		loaded, err := manifest.LoadRegistry(cfg.Hub.ModuleRegistry)
		if err != nil {
			logger.Warn("Falling back to the embedded module registry", zap.Error(err))
		} else {
			loaded.Add(manifest.ModuleCore, manifest.ModuleEditor)
			modules = loaded
		}
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := http.NewHandlers(hub, manifest.Default(), modules, http.NewHandlerMetrics(metrics), logger)
	wsHandler := ws.NewHandler(hub, metrics, logger, ws.Config{
		RatePerSecond: float64(cfg.Hub.InboundRatePerSec),
		Burst:         cfg.Hub.InboundBurst,
	})
	aggregator := http.NewMetricsAggregator(metrics, hub)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/stream", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/metrics/json", aggregator.GetAggregatedMetrics)
	http.RegisterRoutes(router, handlers)

	logger.Info("Server initialized successfully",
		zap.String("session", hub.SessionID().String()))

	return &Server{
		router:  router,
		hub:     hub,
		journal: jrnl,
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
		done:    make(chan struct{}),
	}, nil
}

func openJournal(cfg *config.Config, logger *logging.Logger) (*journal.Journal, error) {
	var store journal.Store
	if cfg.Hub.JournalPath != "" {
		s, err := journal.OpenSQLite(cfg.Hub.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		store = s
	}

	j := journal.New(cfg.Settings.MaxHistoryEntries, store, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := j.Restore(ctx); err != nil {
		logger.Warn("Journal restore failed", zap.Error(err))
	}
	return j, nil
}

// Handler exposes the router. Tests serve it with httptest.
func (s *Server) Handler() nethttp.Handler {
	return s.router
}

// Hub returns the collaboration hub.
func (s *Server) Hub() *session.Hub {
	return s.hub
}

// Run starts the hub's background sweeps and serves HTTP until Shutdown.
func (s *Server) Run() error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		s.hub.Run(ctx)
	}()

	if limit := s.config.Server.MaxConnections; limit > 0 {
		ln = netutil.LimitListener(ln, limit)
	}

	s.srv = &nethttp.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, disconnects every participant and
// releases the journal.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.srv != nil {
		if err := s.srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	// Closing the hub ends every participant's outbound queue, which
	// makes the WebSocket writers send their close frames.
	s.hub.Close()
	if err := s.journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close journal: %w", err))
	}
	s.tracer.Close()
	s.metrics.Close()

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
