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

	httpapi "github.com/loxleyhq/authcore/internal/auth/http"
	"github.com/loxleyhq/authcore/internal/auth/service"
	"github.com/loxleyhq/authcore/internal/auth/store"
	"github.com/loxleyhq/authcore/internal/auth/store/drivers/sqlite"
	"github.com/loxleyhq/authcore/pkg/cryptox"
	"github.com/loxleyhq/authcore/pkg/jwtx"
	"github.com/loxleyhq/authcore/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the services together and owns the process lifecycle.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	tokens       *service.TokenService
	credentials  *service.CredentialService
	refresh      *service.RefreshService
	mfa          *service.MFAService
	federation   *service.FederationService
	housekeeping *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New builds the application from configuration.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authcore",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

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

// Shutdown drains outstanding requests and releases resources.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

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

	app.logger.Info("database migrations applied")
	return nil
}

func (app *Application) initServices() error {
	tokens, err := buildTokenService(app.cfg)
	if err != nil {
		return err
	}
	app.tokens = tokens

	app.refresh = &service.RefreshService{
		Tokens: app.tokens,
		Store:  app.db,
	}
	app.mfa = &service.MFAService{
		Store:  app.db,
		Issuer: app.cfg.Issuer,
	}
	app.credentials = &service.CredentialService{
		Tokens: app.tokens,
		MFA:    app.mfa,
		Store:  app.db,
	}

	if app.cfg.FederationConfigured() {
		app.federation = &service.FederationService{
			Provider: service.ProviderConfig{
				Name:         app.cfg.OAuthProviderName,
				IssuerURL:    app.cfg.OAuthIssuerURL,
				ClientID:     app.cfg.OAuthClientID,
				ClientSecret: app.cfg.OAuthClientSecret,
				RedirectURI:  app.cfg.OAuthRedirectURI,
				Scopes:       app.cfg.OAuthScopes,
			},
			Store:       app.db,
			Credentials: app.credentials,
			HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		}
	} else {
		app.logger.Info("oauth federation not configured, endpoints disabled")
	}

	app.housekeeping = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	return nil
}

// buildTokenService constructs the signer and verifier pairs for the two
// signing domains.
func buildTokenService(cfg Config) (*service.TokenService, error) {
	accessSigner, err := jwtx.NewSigner(
		[]byte(cfg.AccessSecret), cfg.Issuer, cfg.Audience, jwtx.TokenTypeAccess, cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("access signer: %w", err)
	}
	refreshSigner, err := jwtx.NewSigner(
		[]byte(cfg.RefreshSecret), cfg.Issuer, cfg.Audience, jwtx.TokenTypeRefresh, cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("refresh signer: %w", err)
	}
	accessVerifier, err := jwtx.NewVerifier(
		[]byte(cfg.AccessSecret), cfg.Issuer, cfg.Audience, jwtx.TokenTypeAccess, 0)
	if err != nil {
		return nil, fmt.Errorf("access verifier: %w", err)
	}
	refreshVerifier, err := jwtx.NewVerifier(
		[]byte(cfg.RefreshSecret), cfg.Issuer, cfg.Audience, jwtx.TokenTypeRefresh, 0)
	if err != nil {
		return nil, fmt.Errorf("refresh verifier: %w", err)
	}

	return &service.TokenService{
		AccessSigner:    accessSigner,
		RefreshSigner:   refreshSigner,
		AccessVerifier:  accessVerifier,
		RefreshVerifier: refreshVerifier,
	}, nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.Tokens = app.tokens
	router.Credentials = app.credentials
	router.Refresh = app.refresh
	router.MFA = app.mfa
	router.Federation = app.federation
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
