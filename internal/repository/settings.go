package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skycomm/email-ai-manager/internal/model"
)

// GetSetting returns the value for key, or "" when the key is absent.
func (s *Store) GetSetting(key string) (string, error) {
	var setting model.Setting
	result := s.db.Where("`key` = ?", key).First(&setting)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if result.Error != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, result.Error)
	}
	return setting.Value, nil
}

// SetSetting upserts a key-value row.
func (s *Store) SetSetting(key, value string) error {
	setting := model.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting)
	if result.Error != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, result.Error)
	}
	return nil
}

// GetSettingJSON unmarshals the value for key into out. A missing key leaves
// out untouched and returns false.
func (s *Store) GetSettingJSON(key string, out interface{}) (bool, error) {
	raw, err := s.GetSetting(key)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, nil
}

// SetSettingJSON marshals v and stores it under key.
func (s *Store) SetSettingJSON(key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	return s.SetSetting(key, string(b))
}
