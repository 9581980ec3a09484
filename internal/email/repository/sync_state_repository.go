package repository

import (
	"errors"

	"mailmind/internal/email/domain"

	"gorm.io/gorm"
)

// SyncStateRepository defines the interface for sync metadata persistence
type SyncStateRepository interface {
	// Get retrieves a stored value by key; returns "" when absent
	Get(key string) (string, error)
	// Set stores or replaces a value by key
	Set(key, value string) error
}

type syncStateRepository struct {
	db *gorm.DB
}

// NewSyncStateRepository creates a new instance of syncStateRepository
func NewSyncStateRepository(db *gorm.DB) SyncStateRepository {
	return &syncStateRepository{
		db: db,
	}
}

func (r *syncStateRepository) Get(key string) (string, error) {
	var state domain.SyncState
	err := r.db.Where("key = ?", key).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return state.Value, nil
}

func (r *syncStateRepository) Set(key, value string) error {
	if key == "" {
		return ErrInvalidInput
	}
	state := domain.SyncState{Key: key, Value: value}
	return r.db.Save(&state).Error
}
