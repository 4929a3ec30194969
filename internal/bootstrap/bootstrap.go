package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-authgate/qbgate/internal/config"
	"github.com/go-authgate/qbgate/internal/logger"
	"github.com/go-authgate/qbgate/internal/metrics"
	"github.com/go-authgate/qbgate/internal/report"
	"github.com/go-authgate/qbgate/internal/services"
	"github.com/go-authgate/qbgate/internal/state"
	"github.com/go-authgate/qbgate/internal/store"

	"cloud.google.com/go/firestore"
	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config
	Logger *zap.Logger
	Clock  clockwork.Clock

	// Observability
	Reporter report.Reporter
	Sentry   *report.SentryReporter
	Metrics  metrics.Recorder

	// Backends
	DB          *gorm.DB
	RedisClient *redis.Client
	Firestore   *firestore.Client

	TokenStore   store.TokenStore
	StateStore   state.Store
	HealthChecks map[string]store.HealthChecker

	// Services
	TokenService    *services.TokenService
	CustomerService *services.CustomerService

	// HTTP
	HandlerSet handlerSet
	Router     *gin.Engine
	Server     *http.Server
}

// Run initializes and starts the application, blocking until shutdown.
func Run(ctx context.Context, cfg *config.Config) error {
	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	app.startWithGracefulShutdown()
	return nil
}

// New builds every component without starting the HTTP server.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	app := &Application{
		Config: cfg,
		Clock:  clockwork.NewRealClock(),
	}

	// Phase 1: Validate configuration
	if err := validateAllConfiguration(cfg); err != nil {
		return nil, err
	}

	// Phase 2: Logging, error reporting and metrics
	if err := app.initializeObservability(); err != nil {
		return nil, err
	}

	// Phase 3: Storage backends
	if err := app.initializeInfrastructure(ctx); err != nil {
		app.closeBackends()
		return nil, err
	}

	// Phase 4: Business layer
	if err := app.initializeBusinessLayer(); err != nil {
		app.closeBackends()
		return nil, err
	}

	// Phase 5: HTTP layer
	if err := app.initializeHTTPLayer(); err != nil {
		app.closeBackends()
		return nil, err
	}

	return app, nil
}

func (app *Application) initializeObservability() error {
	var err error
	app.Logger, err = logger.New(app.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Reporter, app.Sentry, err = initializeReporter(app.Config, app.Logger)
	if err != nil {
		return err
	}

	app.Metrics = initializeMetrics(app.Config, app.Logger)
	return nil
}

// initializeInfrastructure opens the database, Redis and Firestore as the
// configured drivers require, then builds the token and state stores.
func (app *Application) initializeInfrastructure(ctx context.Context) error {
	var err error

	app.DB, err = initializeDatabase(app.Config, app.Logger)
	if err != nil {
		return err
	}

	app.RedisClient, err = initializeRedisClient(ctx, app.Config, app.Logger)
	if err != nil {
		return err
	}

	app.TokenStore, app.Firestore, err = initializeTokenStore(ctx, app.Config, app.DB, app.Logger)
	if err != nil {
		return err
	}

	app.StateStore = initializeStateStore(app.Config, app.DB, app.RedisClient, app.Clock, app.Logger)

	app.HealthChecks = map[string]store.HealthChecker{}
	if hc, ok := app.TokenStore.(store.HealthChecker); ok {
		app.HealthChecks["token_store"] = hc
	}
	return nil
}

func (app *Application) initializeBusinessLayer() error {
	var err error
	app.TokenService, app.CustomerService, err = initializeServices(
		app.Config,
		app.TokenStore,
		app.StateStore,
		app.Clock,
		app.Reporter,
		app.Logger,
		app.Metrics,
	)
	return err
}

func (app *Application) initializeHTTPLayer() error {
	app.HandlerSet = initializeHandlers(app.TokenService, app.CustomerService, app.Logger)

	var err error
	app.Router, err = setupRouter(
		app.Config,
		app.HandlerSet,
		app.HealthChecks,
		app.Metrics,
		app.RedisClient,
		app.Logger,
	)
	if err != nil {
		return err
	}

	app.Server = createHTTPServer(app.Config, app.Router)
	return nil
}

// closeBackends releases whatever was opened before a failed start.
func (app *Application) closeBackends() {
	if app.RedisClient != nil {
		_ = app.RedisClient.Close()
	}
	if app.Firestore != nil {
		_ = app.Firestore.Close()
	}
	if app.DB != nil {
		if sqlDB, err := app.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// startWithGracefulShutdown starts the server and handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server, app.Logger)
	addStateCleanupJob(m, app.Config, app.StateStore, app.Clock, app.Logger)
	addServerShutdownJob(m, app.Server, app.Logger)
	addRedisClientShutdownJob(m, app.RedisClient, app.Logger)
	addFirestoreShutdownJob(m, app.Firestore, app.Logger)
	addDatabaseShutdownJob(m, app.DB, app.Logger)
	addReporterFlushJob(m, app.Sentry, app.Logger)

	<-m.Done()
	_ = app.Logger.Sync()
}
