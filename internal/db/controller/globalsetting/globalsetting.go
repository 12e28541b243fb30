// Package globalsetting provides access to the module-wide settings
// blob: a single row holding one JSON object. Keys inside the object
// are module-agnostic settings (auto-add flags, the password reset
// token map, branding overrides).
package globalsetting

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alexscott/userman/internal/db/models"
)

// blobID is the primary key of the single settings row.
const blobID = "userman_data"

var (
	// ErrKeyEmpty is returned when attempting to read or write a setting with an empty key.
	ErrKeyEmpty = errors.New("global setting key cannot be empty")
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
)

// All returns the full decoded settings object. A missing row decodes
// to an empty map.
func All(db *gorm.DB) (map[string]json.RawMessage, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var row models.GlobalSetting

	result := db.Where("id = ?", blobID).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return map[string]json.RawMessage{}, nil
		}

		return nil, result.Error
	}

	settings := map[string]json.RawMessage{}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &settings); err != nil {
			return nil, fmt.Errorf("failed to decode global settings blob: %w", err)
		}
	}

	return settings, nil
}

// Get decodes the value stored under key into out. It returns false if
// the key is absent, leaving out untouched.
func Get(db *gorm.DB, key string, out any) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}

	settings, err := All(db)
	if err != nil {
		return false, err
	}

	raw, ok := settings[key]
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode global setting %q: %w", key, err)
	}

	return true, nil
}

// Set stores value under key, replacing the whole blob row (upsert).
// A nil value removes the key.
func Set(db *gorm.DB, key string, value any) error {
	if db == nil {
		return ErrDBNil
	}

	if key == "" {
		return ErrKeyEmpty
	}

	settings, err := All(db)
	if err != nil {
		return err
	}

	if value == nil {
		delete(settings, key)
	} else {
		raw, errMarshal := json.Marshal(value)
		if errMarshal != nil {
			return fmt.Errorf("failed to encode global setting %q: %w", key, errMarshal)
		}

		settings[key] = raw
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode global settings blob: %w", err)
	}

	row := models.GlobalSetting{ID: blobID, Data: data}

	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}
