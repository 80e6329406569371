package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/Skycomm/email-ai-manager/internal/model"
)

// Store is the gorm-backed persistence layer. It is the synchronization
// boundary between the coordinator loop and the dashboard API: both hold the
// same *Store and rely on MySQL for consistency.
type Store struct {
	db *gorm.DB
}

// New creates a Store on top of an initialized gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates all tables.
func (s *Store) AutoMigrate() error {
	err := s.db.AutoMigrate(
		&model.EmailRecord{},
		&model.SpamRule{},
		&model.EmailRule{},
		&model.AuditLogEntry{},
		&model.ProcessedMessage{},
		&model.MutedSender{},
		&model.Setting{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// DB exposes the underlying connection for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}
