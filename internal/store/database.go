package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/go-authgate/qbgate/internal/models"
)

// DatabaseStore keeps the token document as a single row keyed by path.
type DatabaseStore struct {
	db   *gorm.DB
	path string
}

var _ TokenStore = (*DatabaseStore)(nil)

func NewDatabaseStore(db *gorm.DB, path string) *DatabaseStore {
	return &DatabaseStore{db: db, path: path}
}

func (s *DatabaseStore) Get(ctx context.Context) (*models.TokenRecord, error) {
	var doc models.TokenDocument
	err := s.db.WithContext(ctx).Where("path = ?", s.path).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Record(), nil
}

func (s *DatabaseStore) Update(ctx context.Context, fields map[string]any) error {
	cols, err := columnsFor(fields)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).
		Model(&models.TokenDocument{}).
		Where("path = ?", s.path).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DatabaseStore) Set(ctx context.Context, rec *models.TokenRecord, merge bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.TokenDocument
		err := tx.Where("path = ?", s.path).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(documentFrom(s.path, rec)).Error
		case err != nil:
			return err
		}

		next := rec
		if merge {
			next = existing.Record().Merge(rec)
		}
		doc := documentFrom(s.path, next)
		doc.CreatedAt = existing.CreatedAt
		// Select("*") so zero values overwrite on replace.
		return tx.Model(&existing).Select("*").Updates(doc).Error
	})
}

func (s *DatabaseStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func documentFrom(path string, rec *models.TokenRecord) *models.TokenDocument {
	clean := (&models.TokenRecord{}).ApplyFields(rec.Fields())
	return &models.TokenDocument{
		Path:               path,
		AccessToken:        clean.AccessToken,
		RefreshToken:       clean.RefreshToken,
		TokenType:          clean.TokenType,
		IDToken:            clean.IDToken,
		RealmID:            clean.RealmID,
		ServerTime:         clean.ServerTime,
		ExpiresTime:        clean.ExpiresTime,
		RefreshExpiresTime: clean.RefreshExpiresTime,
		LastCustomerUpdate: clean.LastCustomerUpdate,
	}
}

func columnsFor(fields map[string]any) (map[string]any, error) {
	cols := make(map[string]any, len(fields))
	for k, v := range fields {
		col, ok := models.TokenDocumentColumns[k]
		if !ok {
			return nil, fmt.Errorf("unknown token field %q", k)
		}
		cols[col] = v
	}
	return cols, nil
}
