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

	httpapi "github.com/crossgate-dev/crossgate/internal/auth/http"
	"github.com/crossgate-dev/crossgate/internal/auth/registry"
	"github.com/crossgate-dev/crossgate/internal/auth/registry/drivers/memory"
	redisregistry "github.com/crossgate-dev/crossgate/internal/auth/registry/drivers/redis"
	"github.com/crossgate-dev/crossgate/internal/auth/service"
	"github.com/crossgate-dev/crossgate/internal/auth/store"
	"github.com/crossgate-dev/crossgate/internal/auth/store/drivers/sqlite"
	"github.com/crossgate-dev/crossgate/pkg/jwtx"
	"github.com/crossgate-dev/crossgate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the crossgate service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	registry registry.Registry
	signer   *jwtx.Signer
	keys     *jwtx.KeySet
	verifier *jwtx.Verifier

	// Services
	tokenService        *service.TokenService
	mfaService          *service.MFAService
	loginService        *service.LoginService
	qrCoordinator       *service.QRCoordinator
	approvalService     *service.ApprovalService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "crossgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := app.initRegistry(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initKeys(); err != nil {
		_ = app.registry.Close()
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initServices(ctx); err != nil {
		_ = app.registry.Close()
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("crossgate starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down crossgate...")

	// Give outstanding requests a deadline for completion. Open Wait long
	// polls are cut off here; their sessions stay pending until they expire.
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.registry.Close(); err != nil {
		app.logger.Error("error closing registry", "error", err)
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("crossgate stopped")
	return nil
}

// initDatabase initializes the credential store and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
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

// initRegistry picks the session registry driver: redis when a URL is
// configured, otherwise the in-process memory driver (single instance only).
func (app *Application) initRegistry(ctx context.Context) error {
	if app.cfg.RedisURL == "" {
		app.registry = memory.New()
		app.logger.Info("session registry using memory driver")
		return nil
	}

	reg, err := redisregistry.New(ctx, app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect session registry: %w", err)
	}
	app.registry = reg
	app.logger.Info("session registry using redis driver")
	return nil
}

// initKeys loads or generates the Ed25519 signing key and builds the
// verification key set.
func (app *Application) initKeys() error {
	var (
		signer *jwtx.Signer
		err    error
	)
	if app.cfg.SigningKeyFile != "" {
		pemKey, readErr := os.ReadFile(app.cfg.SigningKeyFile)
		if readErr != nil {
			return fmt.Errorf("failed to read signing key: %w", readErr)
		}
		signer, err = jwtx.NewSignerFromPEM(app.cfg.KeyID, pemKey)
	} else {
		signer, err = jwtx.NewEphemeralSigner(app.cfg.KeyID)
		app.logger.Info("using ephemeral signing key; tokens do not survive restarts")
	}
	if err != nil {
		return fmt.Errorf("failed to initialize signing key: %w", err)
	}

	keys := jwtx.NewKeySet()
	if err := keys.AddSigner(signer); err != nil {
		return fmt.Errorf("failed to build key set: %w", err)
	}

	app.signer = signer
	app.keys = keys
	app.verifier = jwtx.NewVerifier(keys, app.cfg.Issuer)
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices(ctx context.Context) error {
	seeds, err := service.ParseSeedUsers(app.cfg.SeedUsers)
	if err != nil {
		return fmt.Errorf("failed to parse seed users: %w", err)
	}
	identity, err := service.NewStaticIdentityProvider(ctx, app.db, seeds)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	app.tokenService = &service.TokenService{
		Signer:    app.signer,
		Issuer:    app.cfg.Issuer,
		AccessTTL: jwtx.DefaultAccessTokenTTL,
	}

	app.mfaService = &service.MFAService{
		Registry: app.registry,
		Store:    app.db,
		Issuer:   app.cfg.Issuer,
	}

	app.loginService = &service.LoginService{
		Identity: identity,
		Store:    app.db,
		MFA:      app.mfaService,
		Tokens:   app.tokenService,
	}

	app.qrCoordinator = &service.QRCoordinator{Registry: app.registry}
	app.approvalService = &service.ApprovalService{
		Registry: app.registry,
		Store:    app.db,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.registry,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keys,
		app.verifier,
		BuildVersion,
		app.db,
		app.registry,
		app.logger,
	)

	// Wire services to router
	router.LoginService = app.loginService
	router.MFAService = app.mfaService
	router.QRCoordinator = app.qrCoordinator
	router.ApprovalService = app.approvalService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
