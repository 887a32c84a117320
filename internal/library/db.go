// Package library persists the local music catalogue: tracks, enrichment
// results, labels, playlists, playback history and preferences.
package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("library: not found")

type Store struct {
	DB *gorm.DB

	db    *sql.DB
	log   *zap.Logger
	cache *expirable.LRU[string, Music]
}

// Open connects to driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating db dir: %w", err)
			}
		}
		dialector = sqlite.Open(dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	case "postgres", "pgsql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	if db.Dialector.Name() == "sqlite" {
		// a single writer avoids SQLITE_BUSY under concurrent enrichment
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&Music{}, &MusicExtra{}, &MusicLabel{},
		&Playlist{}, &PlaylistItem{},
		&PlaybackHistory{}, &ListeningDuration{}, &Preference{},
	); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	log.Info("library opened", zap.String("driver", db.Dialector.Name()))
	return &Store{
		DB:    db,
		db:    sqlDB,
		log:   log,
		cache: expirable.NewLRU[string, Music](256, nil, 30*time.Minute),
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.cache.Purge()
	return s.db.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func pageOf(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}

// UpsertMusic inserts m or overwrites the scanned columns of an existing row,
// making sure an extra row exists either way.
func (s *Store) UpsertMusic(m *Music) error {
	if m.ID == "" {
		return errors.New("music id is empty")
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "artist", "album", "duration", "path", "cover_art", "updated_at"}),
		}).Create(m).Error; err != nil {
			return fmt.Errorf("upserting music: %w", err)
		}
		return ensureExtra(tx, m.ID)
	})
	s.cache.Remove(m.ID)
	return err
}

func ensureExtra(tx *gorm.DB, musicID string) error {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&MusicExtra{MusicID: musicID}).Error; err != nil {
		return fmt.Errorf("creating music extra: %w", err)
	}
	return nil
}

func (s *Store) HasMusic(id string) (bool, error) {
	var n int64
	if err := s.DB.Model(&Music{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetMusic returns the bare track row, served from a short lived cache.
func (s *Store) GetMusic(id string) (*Music, error) {
	if m, ok := s.cache.Get(id); ok {
		return &m, nil
	}
	var m Music
	if err := s.DB.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	s.cache.Add(id, m)
	return &m, nil
}

// GetMusicDetail returns the track with its extra info and labels.
func (s *Store) GetMusicDetail(id string) (*Music, error) {
	var m Music
	err := s.DB.Preload("Extra").
		Preload("Labels", func(db *gorm.DB) *gorm.DB { return db.Order("category, label") }).
		Where("id = ?", id).First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) ListMusic(page, pageSize int) ([]Music, int64, error) {
	return s.paginate(s.DB.Model(&Music{}), page, pageSize)
}

// SearchMusic matches keyword against title, artist and album.
func (s *Store) SearchMusic(keyword string, page, pageSize int) ([]Music, int64, error) {
	kw := "%" + strings.ToLower(strings.TrimSpace(keyword)) + "%"
	query := s.DB.Model(&Music{}).
		Where("LOWER(title) LIKE ? OR LOWER(artist) LIKE ? OR LOWER(album) LIKE ?", kw, kw, kw)
	return s.paginate(query, page, pageSize)
}

func (s *Store) paginate(query *gorm.DB, page, pageSize int) ([]Music, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var musics []Music
	offset, limit := pageOf(page, pageSize)
	if err := query.
		Order("artist, album, title").
		Offset(offset).
		Limit(limit).
		Find(&musics).Error; err != nil {
		return nil, 0, err
	}
	return musics, total, nil
}

// MusicIDs returns every track id in a stable order.
func (s *Store) MusicIDs() ([]string, error) {
	var ids []string
	err := s.DB.Model(&Music{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// DeleteMusic removes the track and everything hanging off it.
func (s *Store) DeleteMusic(id string) error {
	defer s.cache.Remove(id)
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var items []PlaylistItem
		if err := tx.Where("music_id = ?", id).Find(&items).Error; err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.Model(&PlaylistItem{}).
				Where("playlist_id = ? AND position > ?", item.PlaylistID, item.Position).
				Update("position", gorm.Expr("position - 1")).Error; err != nil {
				return err
			}
		}
		for _, model := range []any{&MusicExtra{}, &MusicLabel{}, &PlaylistItem{}, &PlaybackHistory{}, &ListeningDuration{}} {
			if err := tx.Where("music_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&Music{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) GetExtra(musicID string) (*MusicExtra, error) {
	var e MusicExtra
	if err := s.DB.Where("music_id = ?", musicID).First(&e).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// SaveExtra writes every column of e, creating the row when missing.
func (s *Store) SaveExtra(e *MusicExtra) error {
	if e.MusicID == "" {
		return errors.New("music id is empty")
	}
	return s.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(e).Error
}

// PendingExtra lists tracks whose extra info has not been fetched yet.
func (s *Store) PendingExtra(limit int) ([]Music, error) {
	var musics []Music
	query := s.DB.Model(&Music{}).
		Joins("JOIN music_extras ON music_extras.music_id = music.id").
		Where("music_extras.is_get_extra_info = ?", false).
		Order("music.created_at, music.id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&musics).Error; err != nil {
		return nil, err
	}
	return musics, nil
}
