package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-authgate/qbgate/internal/config"
	"github.com/go-authgate/qbgate/internal/report"
	"github.com/go-authgate/qbgate/internal/state"

	"cloud.google.com/go/firestore"
	"github.com/appleboy/graceful"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server, log *zap.Logger) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			log.Info("server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("failed to start server", zap.Error(err))
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server, log *zap.Logger) {
	m.AddShutdownJob(func() error {
		log.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
			return err
		}

		log.Info("server exited")
		return nil
	})
}

// addRedisClientShutdownJob adds Redis client shutdown handler
func addRedisClientShutdownJob(m *graceful.Manager, redisClient *redis.Client, log *zap.Logger) {
	if redisClient == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := redisClient.Close(); err != nil {
			log.Error("error closing redis client", zap.Error(err))
			return err
		}
		log.Info("redis connection closed")
		return nil
	})
}

func addFirestoreShutdownJob(m *graceful.Manager, client *firestore.Client, log *zap.Logger) {
	if client == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := client.Close(); err != nil {
			log.Error("error closing firestore client", zap.Error(err))
			return err
		}
		log.Info("firestore client closed")
		return nil
	})
}

func addDatabaseShutdownJob(m *graceful.Manager, db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	m.AddShutdownJob(func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.Close(); err != nil {
			log.Error("error closing database", zap.Error(err))
			return err
		}
		log.Info("database connection closed")
		return nil
	})
}

// addReporterFlushJob delivers buffered Sentry events before exit.
func addReporterFlushJob(m *graceful.Manager, sentry *report.SentryReporter, log *zap.Logger) {
	if sentry == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if !sentry.Flush(2 * time.Second) {
			log.Warn("sentry flush timed out")
		}
		return nil
	})
}

// expiredStateDeleter is implemented by state stores without native expiry.
type expiredStateDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ expiredStateDeleter = (*state.DatabaseStore)(nil)

// addStateCleanupJob periodically deletes expired OAuth states from stores
// that do not expire them on their own. States are kept for one extra TTL
// so a late callback is reported as expired rather than unknown.
func addStateCleanupJob(
	m *graceful.Manager,
	cfg *config.Config,
	states state.Store,
	clock clockwork.Clock,
	log *zap.Logger,
) {
	deleter, ok := states.(expiredStateDeleter)
	if !ok {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := clock.NewTicker(cfg.StateTTL)
		defer ticker.Stop()

		for {
			cleanupExpiredStates(ctx, deleter, clock.Now().Add(-cfg.StateTTL), log)
			select {
			case <-ticker.Chan():
			case <-ctx.Done():
				return nil
			}
		}
	})
}

func cleanupExpiredStates(
	ctx context.Context,
	deleter expiredStateDeleter,
	cutoff time.Time,
	log *zap.Logger,
) {
	deleted, err := deleter.DeleteExpired(ctx, cutoff)
	switch {
	case err != nil:
		log.Warn("failed to cleanup expired oauth states", zap.Error(err))
	case deleted > 0:
		log.Info("cleaned up expired oauth states", zap.Int64("deleted", deleted))
	}
}
