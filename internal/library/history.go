package library

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// RecordPlay appends a history entry and adds seconds to the day's
// listening total for the track.
func (s *Store) RecordPlay(musicID string, seconds int64, at time.Time) error {
	if seconds < 0 {
		return errors.New("negative listening duration")
	}
	if _, err := s.GetMusic(musicID); err != nil {
		return err
	}
	day := at.Local().Format(DayLayout)
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&PlaybackHistory{MusicID: musicID, PlayedAt: at}).Error; err != nil {
			return err
		}

		var d ListeningDuration
		err := tx.Where("music_id = ? AND day = ?", musicID, day).First(&d).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&ListeningDuration{MusicID: musicID, Day: day, Seconds: seconds}).Error
		case err != nil:
			return err
		}
		return tx.Model(&ListeningDuration{}).
			Where("music_id = ? AND day = ?", musicID, day).
			Update("seconds", gorm.Expr("seconds + ?", seconds)).Error
	})
}

// RecentHistory returns the latest plays, newest first.
func (s *Store) RecentHistory(limit int) ([]PlaybackHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []PlaybackHistory
	err := s.DB.Order("played_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// TopPlayed ranks tracks by number of plays.
func (s *Store) TopPlayed(limit int) ([]PlayCount, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []PlayCount
	err := s.DB.Model(&PlaybackHistory{}).
		Select("music_id, COUNT(*) AS plays").
		Group("music_id").
		Order("plays DESC, music_id").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// ListeningOn returns per-track totals for day and their sum.
func (s *Store) ListeningOn(day time.Time) ([]ListeningDuration, int64, error) {
	var rows []ListeningDuration
	if err := s.DB.Where("day = ?", day.Local().Format(DayLayout)).
		Order("seconds DESC, music_id").
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	var total int64
	for _, r := range rows {
		total += r.Seconds
	}
	return rows, total, nil
}
