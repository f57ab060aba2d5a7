package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/shopscribe/shopscribe/internal/gateway/http"
	"github.com/shopscribe/shopscribe/internal/gateway/idp"
	"github.com/shopscribe/shopscribe/internal/gateway/service"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
	"github.com/shopscribe/shopscribe/internal/gateway/store/drivers/sqlite"
	"github.com/shopscribe/shopscribe/pkg/cryptox"
	"github.com/shopscribe/shopscribe/pkg/httpx"
	"github.com/shopscribe/shopscribe/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the gateway with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	provider *idp.JWKSAdapter

	// Services
	auditService        *service.AuditService
	lockService         *service.LockService
	riskService         *service.RiskService
	replayGuard         *service.ReplayGuard
	verifierService     *service.VerifierService
	sessionService      *service.SessionService
	authzService        *service.AuthzService
	userService         *service.UserService
	productService      *service.ProductService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if cfg.JWKSURL == "" || cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("GATEWAY_JWKS_URL, GATEWAY_ISSUER and GATEWAY_AUDIENCE are required")
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gateway",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.provider = idp.NewJWKSAdapter(idp.JWKSAdapterConfig{
		JWKSURL:         cfg.JWKSURL,
		Issuer:          cfg.Issuer,
		Audience:        cfg.Audience,
		RefreshInterval: cfg.JWKSRefreshInterval,
	}, app.logger)

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := app.provider.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to load provider keys: %w", err)
	}
	cancel()

	app.housekeepingService.Start()

	app.logger.Info("gateway starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gateway...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.provider.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gateway stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	secret, err := os.ReadFile(app.cfg.SessionSecretFile)
	if err != nil {
		return fmt.Errorf("failed to read session secret: %w", err)
	}
	signer, err := cryptox.NewSigner(secret, "session")
	if err != nil {
		return fmt.Errorf("failed to derive session key: %w", err)
	}

	app.auditService = service.NewAuditService(app.db, app.logger)
	app.lockService = service.NewLockService(app.db, app.auditService, app.cfg.NodeID)
	app.riskService = service.NewRiskService(app.db, app.auditService)
	app.replayGuard = service.NewReplayGuard(
		app.db,
		app.lockService,
		app.riskService,
		app.auditService,
		app.cfg.NodeID,
		service.ClampReplayWindow(app.cfg.ReplayWindow),
	)

	app.verifierService = service.NewVerifierService(
		app.provider,
		app.replayGuard,
		app.auditService,
		app.cfg.Audience,
	)
	app.sessionService = service.NewSessionService(
		signer,
		app.db,
		app.replayGuard,
		app.auditService,
		app.cfg.CookieDomain,
	)
	app.authzService = service.NewAuthzService(app.db, app.auditService)
	app.userService = service.NewUserService(app.db, app.auditService)
	app.productService = service.NewProductService(
		localCatalog(),
		service.TemplateGenerator{},
		app.authzService,
	)

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.db,
		app.provider,
		httpx.CORSConfig{AllowedOrigins: app.cfg.AllowedOrigins},
		app.logger,
	)

	// Wire services to router
	router.VerifierService = app.verifierService
	router.SessionService = app.sessionService
	router.AuthzService = app.authzService
	router.UserService = app.userService
	router.AuditService = app.auditService
	router.ProductService = app.productService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// localCatalog seeds a small built-in catalog. Production deployments swap
// this for the external barcode database client.
func localCatalog() *service.StaticCatalog {
	c := service.NewStaticCatalog()
	c.Add(service.Product{Barcode: "4006381333931", Name: "Highlighter Set", Brand: "Stabilo", Category: "stationery"})
	c.Add(service.Product{Barcode: "5000112637922", Name: "Cola Zero 330ml", Brand: "Coca-Cola", Category: "beverages"})
	c.Add(service.Product{Barcode: "40111445", Name: "Milk Chocolate Bar", Brand: "Rapunzel", Category: "confectionery"})
	return c
}
