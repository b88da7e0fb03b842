package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httpapi "github.com/communehq/commune/internal/commune/http"
	"github.com/communehq/commune/internal/commune/mail"
	"github.com/communehq/commune/internal/commune/provider"
	"github.com/communehq/commune/internal/commune/service"
	"github.com/communehq/commune/internal/commune/store"
	"github.com/communehq/commune/internal/commune/store/drivers/sqlite"
	"github.com/communehq/commune/pkg/lockx"
	"github.com/communehq/commune/pkg/sessionx"
	"github.com/communehq/commune/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the community service with all its
// dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db        store.Store
	sessions  *sessionx.Manager
	providers *provider.Registry
	locks     *lockx.KeyedMutex
	notifier  *mail.Notifier

	// Services
	accountService   *service.AccountService
	accessService    *service.AccessService
	templateService  *service.TemplateService
	migrationService *service.MigrationService
	pictureService   *service.PictureService
	verification     *service.VerificationTokens

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies
// initialized. Pending data migrations run here, before the server ever
// accepts a request.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "commune",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		locks: lockx.New(),
	}

	if len(cfg.SessionSecret) < 32 {
		return nil, errors.New("COMMUNE_SESSION_SECRET must be set to at least 32 bytes")
	}
	sessions, err := sessionx.NewManager(
		[]byte(cfg.SessionSecret), "commune", cfg.SessionTTL, cfg.Env != "dev")
	if err != nil {
		return nil, err
	}
	app.sessions = sessions

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initProviders()
	app.initMail()
	app.initServices()

	// Data migrations must fully complete before traffic. A stuck
	// migration fails startup.
	ctx := slogx.WithContext(context.Background(), app.logger)
	if err := app.migrationService.Run(ctx); err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("data migrations: %w", err)
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.pictureService.Start()

	app.logger.Info("commune service starting", "port", app.cfg.Port, "version", BuildVersion)

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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down commune service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.pictureService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("commune service stopped")
	return nil
}

// initDatabase initializes the database and applies the schema.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplySchema(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database schema: %w", err)
	}

	app.logger.Info("database schema applied successfully")
	return nil
}

// initProviders registers every login service that has credentials
// configured.
func (app *Application) initProviders() {
	var adapters []provider.Adapter
	if app.cfg.GithubClientID != "" {
		adapters = append(adapters, provider.NewGitHub(provider.Credentials{
			ClientID:     app.cfg.GithubClientID,
			ClientSecret: app.cfg.GithubClientSecret,
		}))
	}
	if app.cfg.FacebookClientID != "" {
		adapters = append(adapters, provider.NewFacebook(provider.Credentials{
			ClientID:     app.cfg.FacebookClientID,
			ClientSecret: app.cfg.FacebookClientSecret,
		}))
	}
	if app.cfg.TwitterClientID != "" {
		adapters = append(adapters, provider.NewTwitter(provider.Credentials{
			ClientID:     app.cfg.TwitterClientID,
			ClientSecret: app.cfg.TwitterClientSecret,
		}))
	}
	app.providers = provider.NewRegistry(adapters...)

	if len(adapters) == 0 {
		app.logger.Warn("no login services configured, nobody can sign in")
	} else {
		app.logger.Info("login services configured",
			"services", strings.Join(app.providers.Names(), ","))
	}
}

// initMail wires the mail sender, falling back to log-only delivery when
// no SMTP relay is configured.
func (app *Application) initMail() {
	var sender mail.Sender
	if app.cfg.SMTPAddr != "" {
		var auth smtp.Auth
		if user := os.Getenv("COMMUNE_SMTP_USER"); user != "" {
			host := app.cfg.SMTPAddr
			if i := strings.IndexByte(host, ':'); i >= 0 {
				host = host[:i]
			}
			auth = smtp.PlainAuth("", user, os.Getenv("COMMUNE_SMTP_PASSWORD"), host)
		}
		sender = &mail.SMTPSender{Addr: app.cfg.SMTPAddr, From: app.cfg.SMTPFrom, Auth: auth}
	} else {
		app.logger.Info("no SMTP relay configured, mails are logged only")
		sender = &mail.LogSender{}
	}

	app.notifier = &mail.Notifier{
		Sender:  sender,
		Logger:  app.logger,
		BaseURL: app.cfg.BaseURL,
	}
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.accountService = &service.AccountService{
		Store:              app.db,
		Providers:          app.providers,
		Geocoder:           provider.NewGeocoder(),
		Locks:              app.locks,
		Mailer:             app.notifier,
		Env:                app.cfg.Env,
		DefaultInvitations: app.cfg.DefaultInvitations,
		AutoInviteLimit:    app.cfg.AutoInviteLimit,
		AutoInviteGrant:    app.cfg.AutoInviteGrant,
	}

	app.accessService = &service.AccessService{
		Store: app.db,
		Locks: app.locks,
	}

	app.templateService = &service.TemplateService{Store: app.db}

	app.migrationService = &service.MigrationService{
		Store:      app.db,
		Migrations: service.DefaultMigrations,
	}

	app.pictureService = service.NewPictureService(
		app.db,
		app.providers,
		app.logger,
		app.cfg.PictureInterval,
	)

	app.verification = &service.VerificationTokens{
		Secret: []byte(app.cfg.SessionSecret),
		TTL:    48 * time.Hour,
	}
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.sessions,
		app.providers,
		app.cfg.BaseURL,
		BuildVersion,
		app.db,
		app.logger,
	)

	// Wire services to router
	router.AccountService = app.accountService
	router.AccessService = app.accessService
	router.TemplateService = app.templateService
	router.Verification = app.verification
	router.Notifier = app.notifier
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
