package state

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/go-authgate/qbgate/internal/models"
)

// DatabaseStore keeps states in the oauth_states table.
type DatabaseStore struct {
	db    *gorm.DB
	clock clockwork.Clock
	ttl   time.Duration
}

var _ Store = (*DatabaseStore)(nil)

func NewDatabaseStore(db *gorm.DB, ttl time.Duration, clock clockwork.Clock) *DatabaseStore {
	return &DatabaseStore{db: db, clock: clock, ttl: ttl}
}

func (s *DatabaseStore) Issue(ctx context.Context) (string, error) {
	value, err := newStateValue()
	if err != nil {
		return "", err
	}
	now := s.clock.Now()
	rec := &models.OAuthState{
		State:     value,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return "", err
	}
	return value, nil
}

// Consume flips used in a single conditional UPDATE so concurrent callbacks
// with the same state cannot both succeed.
func (s *DatabaseStore) Consume(ctx context.Context, state string) error {
	db := s.db.WithContext(ctx)

	res := db.Model(&models.OAuthState{}).
		Where("state = ? AND used = ?", state, false).
		Update("used", true)
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		var existing models.OAuthState
		err := db.Where("state = ?", state).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStateNotFound
		}
		if err != nil {
			return err
		}
		return ErrStateUsed
	}

	var rec models.OAuthState
	if err := db.Where("state = ?", state).First(&rec).Error; err != nil {
		return err
	}
	if rec.IsExpired(s.clock.Now()) {
		return ErrStateExpired
	}
	return nil
}

// DeleteExpired removes states that expired before cutoff.
func (s *DatabaseStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.OAuthState{})
	return res.RowsAffected, res.Error
}
