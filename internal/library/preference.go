package library

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetPreference returns the stored value and whether it was set.
func (s *Store) GetPreference(key string) (string, bool, error) {
	var p Preference
	err := s.DB.Where(map[string]any{"key": key}).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.Value, true, nil
}

func (s *Store) SetPreference(key, value string) error {
	return s.DB.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&Preference{Key: key, Value: value}).Error
}

// Preferences returns every stored key.
func (s *Store) Preferences() (map[string]string, error) {
	var rows []Preference
	if err := s.DB.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, p := range rows {
		out[p.Key] = p.Value
	}
	return out, nil
}

func (s *Store) DeletePreference(key string) error {
	return s.DB.Where(map[string]any{"key": key}).Delete(&Preference{}).Error
}
