package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-authgate/qbgate/internal/config"
	"github.com/go-authgate/qbgate/internal/state"
	"github.com/go-authgate/qbgate/internal/store"

	"cloud.google.com/go/firestore"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// initializeTokenStore builds the store for the shared token document. The
// Firestore client is returned so it can be closed on shutdown.
func initializeTokenStore(
	ctx context.Context,
	cfg *config.Config,
	db *gorm.DB,
	log *zap.Logger,
) (store.TokenStore, *firestore.Client, error) {
	switch cfg.TokenStoreDriver {
	case config.TokenStoreFirestore:
		client, err := store.NewFirestoreClient(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredsFile)
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewFirestoreStore(client, cfg.TokenDocumentPath)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		log.Info("token store: firestore",
			zap.String("project", cfg.FirestoreProjectID),
			zap.String("document", cfg.TokenDocumentPath),
		)
		return s, client, nil

	case config.TokenStoreDatabase:
		if db == nil {
			return nil, nil, errors.New("database token store requires a database connection")
		}
		log.Info("token store: database", zap.String("document", cfg.TokenDocumentPath))
		return store.NewDatabaseStore(db, cfg.TokenDocumentPath), nil, nil

	case config.TokenStoreMemory:
		log.Warn("token store: memory (tokens are lost on restart)")
		return store.NewMemoryStore(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported token store driver: %s", cfg.TokenStoreDriver)
	}
}

// initializeStateStore builds the OAuth state store. Redis and database
// stores are shared by every replica; memory is single instance only.
func initializeStateStore(
	cfg *config.Config,
	db *gorm.DB,
	redisClient *redis.Client,
	clock clockwork.Clock,
	log *zap.Logger,
) state.Store {
	switch {
	case cfg.StateStore == config.StateStoreRedis && redisClient != nil:
		log.Info("oauth state store: redis")
		return state.NewRedisStore(redisClient, cfg.StateTTL, clock)
	case cfg.StateStore == config.StateStoreDatabase && db != nil:
		log.Info("oauth state store: database")
		return state.NewDatabaseStore(db, cfg.StateTTL, clock)
	default:
		log.Info("oauth state store: memory (single instance only)")
		return state.NewMemoryStore(cfg.StateTTL, clock)
	}
}
