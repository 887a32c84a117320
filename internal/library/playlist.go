package library

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidPosition = errors.New("library: position out of range")

func (s *Store) CreatePlaylist(name string) (*Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("playlist name is empty")
	}
	p := Playlist{ID: uuid.NewString(), Name: name}
	if err := s.DB.Create(&p).Error; err != nil {
		return nil, fmt.Errorf("creating playlist: %w", err)
	}
	return &p, nil
}

func (s *Store) GetPlaylist(id string) (*Playlist, error) {
	var p Playlist
	if err := s.DB.Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) Playlists() ([]Playlist, error) {
	var ps []Playlist
	err := s.DB.Order("created_at, id").Find(&ps).Error
	return ps, err
}

func (s *Store) RenamePlaylist(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("playlist name is empty")
	}
	res := s.DB.Model(&Playlist{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePlaylist(id string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playlist_id = ?", id).Delete(&PlaylistItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Playlist{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AddToPlaylist appends the track to the end of the playlist. Adding a
// track that is already present is a no-op.
func (s *Store) AddToPlaylist(playlistID, musicID string) error {
	if _, err := s.GetPlaylist(playlistID); err != nil {
		return err
	}
	if _, err := s.GetMusic(musicID); err != nil {
		return err
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&PlaylistItem{}).
			Where("playlist_id = ? AND music_id = ?", playlistID, musicID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		var next int
		if err := tx.Model(&PlaylistItem{}).
			Where("playlist_id = ?", playlistID).
			Select("COALESCE(MAX(position) + 1, 0)").
			Scan(&next).Error; err != nil {
			return err
		}
		return tx.Create(&PlaylistItem{PlaylistID: playlistID, MusicID: musicID, Position: next}).Error
	})
}

// RemoveFromPlaylist drops the track and closes the gap it leaves.
func (s *Store) RemoveFromPlaylist(playlistID, musicID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var item PlaylistItem
		if err := tx.Where("playlist_id = ? AND music_id = ?", playlistID, musicID).First(&item).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Delete(&item).Error; err != nil {
			return err
		}
		return tx.Model(&PlaylistItem{}).
			Where("playlist_id = ? AND position > ?", playlistID, item.Position).
			Update("position", gorm.Expr("position - 1")).Error
	})
}

// MovePlaylistItem moves the item at position from to position to, shifting
// the ones in between.
func (s *Store) MovePlaylistItem(playlistID string, from, to int) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var items []PlaylistItem
		if err := tx.Where("playlist_id = ?", playlistID).Order("position").Find(&items).Error; err != nil {
			return err
		}
		if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
			return ErrInvalidPosition
		}
		if from == to {
			return nil
		}

		moved := items[from]
		items = append(items[:from], items[from+1:]...)
		items = append(items[:to], append([]PlaylistItem{moved}, items[to:]...)...)

		for i, item := range items {
			if item.Position == i {
				continue
			}
			if err := tx.Model(&PlaylistItem{}).Where("id = ?", item.ID).Update("position", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// PlaylistItems returns the tracks of a playlist in order.
func (s *Store) PlaylistItems(playlistID string) ([]Music, error) {
	if _, err := s.GetPlaylist(playlistID); err != nil {
		return nil, err
	}
	var musics []Music
	err := s.DB.Model(&Music{}).
		Joins("JOIN playlist_items ON playlist_items.music_id = music.id").
		Where("playlist_items.playlist_id = ?", playlistID).
		Order("playlist_items.position, playlist_items.id").
		Find(&musics).Error
	return musics, err
}
