// Package journal keeps a persistent log of SMS send attempts in SQLite.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Status of a send attempt.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Entry is one send attempt.
type Entry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Destination string    `gorm:"index" json:"destination"`
	Length      int       `json:"length"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// Journal stores entries in a SQLite database.
type Journal struct {
	db *gorm.DB
}

// Open opens or creates the database at path. The parent directory is
// created if needed. ":memory:" opens a private in-memory database.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would get its own empty database.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record stores the outcome of sending length characters to destination.
// A nil sendErr records a successful attempt.
func (j *Journal) Record(ctx context.Context, destination string, length int, sendErr error) error {
	e := &Entry{
		Destination: destination,
		Length:      length,
		Status:      StatusSent,
	}
	if sendErr != nil {
		e.Status = StatusFailed
		e.Error = sendErr.Error()
	}

	if err := j.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := j.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
