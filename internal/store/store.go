package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-authgate/qbgate/internal/models"
)

// TokenStore persists the single shared token document. Each implementation
// is bound to one document location at construction.
type TokenStore interface {
	// Get returns ErrNotFound when no document exists.
	Get(ctx context.Context) (*models.TokenRecord, error)
	// Set writes rec. With merge, fields absent from rec keep their stored
	// values; without it the document is replaced.
	Set(ctx context.Context, rec *models.TokenRecord, merge bool) error
	// Update patches existing fields and returns ErrNotFound when the
	// document does not exist.
	Update(ctx context.Context, fields map[string]any) error
}

// HealthChecker is implemented by stores that can probe their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// SaveMerged merge-updates rec, creating the document when it is missing.
// Empty fields of rec are never written.
func SaveMerged(ctx context.Context, s TokenStore, rec *models.TokenRecord) error {
	fields := rec.Fields()
	if len(fields) == 0 {
		return nil
	}

	err := s.Update(ctx, fields)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("update token document: %w", err)
	}

	if err := s.Set(ctx, rec, true); err != nil {
		return fmt.Errorf("create token document: %w", err)
	}
	return nil
}
