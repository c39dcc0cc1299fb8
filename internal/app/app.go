package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/crmdesk/internal/config"
	"github.com/simp-lee/crmdesk/internal/crm"
	"github.com/simp-lee/crmdesk/internal/domain"
	"github.com/simp-lee/crmdesk/internal/middleware"
	"github.com/simp-lee/crmdesk/internal/module/stub"
	"github.com/simp-lee/crmdesk/internal/module/view"
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine   *gin.Engine
	logger   *logger.Logger
	server   config.ServerConfig
	registry *view.Registry
	db       *gorm.DB
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates the dashboard backend from cfg: a CRM client, the view
// registry hosting one collection controller per mounted list view, the
// middleware chain and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	// 2. CRM client.
	client, err := crm.NewClient(crm.Options{
		BaseURL:    cfg.CRM.BaseURL,
		APIKey:     cfg.CRM.APIKey,
		UserAgent:  cfg.CRM.UserAgent,
		Timeout:    cfg.CRM.TimeoutDuration(),
		MaxRetries: cfg.CRM.MaxRetries,
		RetryBase:  cfg.CRM.RetryBaseDuration(),
		Logger:     log.Logger,
		OnUnauthorized: func(ctx context.Context, err error) {
			log.ErrorContext(ctx, "crm rejected the api key", slog.Any("error", err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("setup crm client: %w", err)
	}

	// 3. View registry.
	registry, err := view.NewRegistry(client, cfg.Views.Entities, view.Options{
		IdleTimeout:   cfg.Views.IdleTimeoutDuration(),
		SweepInterval: cfg.Views.SweepIntervalDuration(),
		MaxSessions:   cfg.Views.MaxSessions,
		Logger:        log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup view registry: %w", err)
	}
	defer func() {
		if !success {
			registry.Close()
		}
	}()

	// 4. Engine, middleware and routes.
	engine := newEngine(log.Logger, cfg.Server)
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules: []Module{view.NewModule(view.NewViewHandler(registry))},
		Health:  map[string]HealthCheck{"crm": client.Ping},
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	log.Info("dashboard configured",
		slog.String("crm", cfg.CRM.BaseURL),
		slog.Any("entities", registry.Entities()),
	)

	success = true
	return &App{
		engine:   engine,
		logger:   log,
		server:   cfg.Server,
		registry: registry,
	}, nil
}

// NewStub creates the local CRM stand-in from cfg. It stores records in the
// configured database and optionally seeds demo data.
func NewStub(cfg *config.StubConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}

	success := false

	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	db, err := config.SetupDatabase(&cfg.Database, log.Logger, &domain.Record{})
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if !success {
			config.CloseDatabase(db, log.Logger)
		}
	}()

	svc := stub.NewRecordService(db, cfg.Stub.Entities)
	if cfg.Stub.Seed {
		if err := stub.Seed(context.Background(), svc, cfg.Stub.Entities, log.Logger); err != nil {
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}
	if cfg.Stub.APIKey == "" {
		log.Warn("stub.api_key is empty, the API accepts unauthenticated requests")
	}

	engine := newEngine(log.Logger, cfg.Server)
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules:       []Module{stub.NewModule(stub.NewRecordHandler(svc))},
		Health:        map[string]HealthCheck{"database": databaseCheck(db)},
		APIMiddleware: []gin.HandlerFunc{middleware.APIKey(cfg.Stub.APIKey)},
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine: engine,
		logger: log,
		server: cfg.Server,
		db:     db,
	}, nil
}

// newEngine creates a gin engine with the shared middleware chain
// (not gin.Default()).
func newEngine(log *slog.Logger, server config.ServerConfig) *gin.Engine {
	if server.Mode == gin.DebugMode && server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}

	gin.SetMode(server.Mode)
	engine := gin.New()
	engine.Use(
		middleware.Recovery(log),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: false,
		}),
		middleware.LoggerWithConfig(log, middleware.LoggerConfig{
			SkipPaths: []string{"/health"},
		}),
		middleware.CORSWithConfig(middleware.ResolveCORSConfig(server.Mode, server.CORS)),
	)
	return engine
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// It shuts the server down gracefully, then unmounts every open view and
// closes the database.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := slog.Default()
	if a.logger != nil {
		log = a.logger.Logger
	}

	addr := fmt.Sprintf("%s:%d", a.server.Host, a.server.Port)
	srv := newHTTPServer(addr, a.engine)

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if runErr == nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.server.ShutdownTimeoutDuration())
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.Any("error", err))
		}
	}

	if a.registry != nil {
		n := a.registry.Len()
		a.registry.Close()
		log.Info("view registry closed", slog.Int("views", n))
	}
	if a.db != nil {
		config.CloseDatabase(a.db, log)
		log.Info("database connection closed")
	}

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}
