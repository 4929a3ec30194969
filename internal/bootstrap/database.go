package bootstrap

import (
	"fmt"

	"github.com/go-authgate/qbgate/internal/config"
	"github.com/go-authgate/qbgate/internal/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// initializeDatabase opens the SQL database when the token store or the
// state store is configured to use it. Returns nil otherwise.
func initializeDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	if !cfg.UsesDatabase() {
		return nil, nil //nolint:nilnil // database not needed in this configuration
	}

	db, err := store.OpenDatabase(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	log.Info("database initialized", zap.String("driver", cfg.DatabaseDriver))
	return db, nil
}
