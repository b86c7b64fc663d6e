package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mycho0012/tradingview-loagreen/internal/domain"
)

// Store is the local trade-attempt history on SQLite (pure Go driver).
// It backs the /trades endpoint and survives journal outages.
type Store struct {
	db *gorm.DB
}

// Open connects to the SQLite file at path, creating directories and running
// the schema migration as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.TradeAttempt{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Insert persists a fresh trade attempt.
func (s *Store) Insert(ctx context.Context, t *domain.TradeAttempt) error {
	return s.db.WithContext(ctx).Create(t).Error
}

// Update saves the current snapshot of an attempt.
func (s *Store) Update(ctx context.Context, t *domain.TradeAttempt) error {
	return s.db.WithContext(ctx).Save(t).Error
}

// Recent returns the latest attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.TradeAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []domain.TradeAttempt
	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
