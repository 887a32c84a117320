package library

import (
	"time"

	"github.com/bihua-university/melodex/internal/label"
)

// Music is a scanned track. Rows are only rewritten by a re-scan of the same file.
type Music struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title     string    `gorm:"index;not null" json:"title"`
	Artist    string    `gorm:"index" json:"artist"`
	Album     string    `json:"album"`
	Duration  int64     `json:"duration"` // milliseconds
	Path      string    `gorm:"index" json:"path"`
	CoverArt  string    `json:"coverArt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Extra  *MusicExtra  `gorm:"foreignKey:MusicID;constraint:OnDelete:CASCADE" json:"extra,omitempty"`
	Labels []MusicLabel `gorm:"foreignKey:MusicID;constraint:OnDelete:CASCADE" json:"labels,omitempty"`
}

func (Music) TableName() string { return "music" }

// MusicExtra is created empty at scan time and filled in by enrichment.
type MusicExtra struct {
	MusicID        string    `gorm:"primaryKey;type:varchar(36)" json:"musicId"`
	Lyrics         string    `gorm:"type:text" json:"lyrics"`
	Bitrate        int       `json:"bitrate"`
	SampleRate     int       `json:"sampleRate"`
	Summary        string    `gorm:"type:text" json:"summary"`
	Background     string    `gorm:"type:text" json:"background"`
	LyricsComment  string    `gorm:"type:text" json:"lyricsComment"`
	Recommendation string    `gorm:"type:text" json:"recommendation"`
	IsGetExtraInfo bool      `gorm:"index;not null" json:"isGetExtraInfo"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (MusicExtra) TableName() string { return "music_extras" }

type MusicLabel struct {
	ID       uint           `gorm:"primaryKey;autoIncrement" json:"-"`
	MusicID  string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_music_label,priority:1" json:"musicId"`
	Category label.Category `gorm:"type:varchar(16);not null;uniqueIndex:idx_music_label,priority:2;index:idx_label,priority:1" json:"category"`
	Label    label.Name     `gorm:"type:varchar(32);not null;uniqueIndex:idx_music_label,priority:3;index:idx_label,priority:2" json:"label"`
}

func (MusicLabel) TableName() string { return "music_labels" }

type Playlist struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Items []PlaylistItem `gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Playlist) TableName() string { return "playlists" }

type PlaylistItem struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	PlaylistID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_playlist_music,priority:1" json:"playlistId"`
	MusicID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_playlist_music,priority:2" json:"musicId"`
	Position   int       `gorm:"not null" json:"position"`
	AddedAt    time.Time `gorm:"autoCreateTime" json:"addedAt"`
}

func (PlaylistItem) TableName() string { return "playlist_items" }

// PlaybackHistory is append-only.
type PlaybackHistory struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	MusicID  string    `gorm:"type:varchar(36);not null;index" json:"musicId"`
	PlayedAt time.Time `gorm:"not null;index" json:"playedAt"`
}

func (PlaybackHistory) TableName() string { return "playback_history" }

// ListeningDuration aggregates listened seconds per track per day.
type ListeningDuration struct {
	MusicID string `gorm:"primaryKey;type:varchar(36)" json:"musicId"`
	Day     string `gorm:"primaryKey;type:varchar(10)" json:"day"` // 2006-01-02
	Seconds int64  `gorm:"not null" json:"seconds"`
}

func (ListeningDuration) TableName() string { return "listening_durations" }

type Preference struct {
	Key   string `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

func (Preference) TableName() string { return "preferences" }

type PlayCount struct {
	MusicID string `json:"musicId"`
	Plays   int64  `json:"plays"`
}

const DayLayout = "2006-01-02"
