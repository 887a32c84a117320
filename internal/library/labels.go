package library

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bihua-university/melodex/internal/label"
)

func labelRows(musicID string, as []label.Assignment) ([]MusicLabel, error) {
	rows := make([]MusicLabel, 0, len(as))
	for _, a := range as {
		if !a.Name.Valid(a.Category) {
			return nil, fmt.Errorf("label %s does not belong to %s", a.Name, a.Category)
		}
		rows = append(rows, MusicLabel{MusicID: musicID, Category: a.Category, Label: a.Name})
	}
	return rows, nil
}

// AddLabels attaches labels to a track. Pairs it already carries are skipped.
func (s *Store) AddLabels(musicID string, as []label.Assignment) error {
	rows, err := labelRows(musicID, as)
	if err != nil || len(rows) == 0 {
		return err
	}
	if _, err := s.GetMusic(musicID); err != nil {
		return err
	}
	return s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// ReplaceLabels swaps every label of the track for as.
func (s *Store) ReplaceLabels(musicID string, as []label.Assignment) error {
	rows, err := labelRows(musicID, as)
	if err != nil {
		return err
	}
	if _, err := s.GetMusic(musicID); err != nil {
		return err
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		return replaceLabels(tx, musicID, rows)
	})
}

// SaveEnrichment stores the extra info and the labels of one track together,
// or neither.
func (s *Store) SaveEnrichment(e *MusicExtra, as []label.Assignment) error {
	if e.MusicID == "" {
		return errors.New("music id is empty")
	}
	rows, err := labelRows(e.MusicID, as)
	if err != nil {
		return err
	}
	if _, err := s.GetMusic(e.MusicID); err != nil {
		return err
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := replaceLabels(tx, e.MusicID, rows); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(e).Error
	})
}

func replaceLabels(tx *gorm.DB, musicID string, rows []MusicLabel) error {
	if err := tx.Where("music_id = ?", musicID).Delete(&MusicLabel{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (s *Store) Labels(musicID string) ([]MusicLabel, error) {
	var rows []MusicLabel
	err := s.DB.Where("music_id = ?", musicID).Order("category, label").Find(&rows).Error
	return rows, err
}

// MusicByLabel pages through tracks carrying the given label.
func (s *Store) MusicByLabel(c label.Category, n label.Name, page, pageSize int) ([]Music, int64, error) {
	query := s.DB.Model(&Music{}).
		Where("id IN (?)", s.DB.Model(&MusicLabel{}).
			Select("music_id").
			Where("category = ? AND label = ?", c, n))
	return s.paginate(query, page, pageSize)
}
