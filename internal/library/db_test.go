package library

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bihua-university/melodex/internal/label"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "lib.sqlite3"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addTrack(t *testing.T, s *Store, title, artist string) *Music {
	t.Helper()
	m := &Music{ID: MusicID("/music/" + artist + "/" + title + ".mp3"), Title: title, Artist: artist, Album: "A", Path: "/music/" + title + ".mp3"}
	require.NoError(t, s.UpsertMusic(m))
	return m
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x", nil)
	assert.Error(t, err)
}

func TestUpsertCreatesEmptyExtra(t *testing.T) {
	s := newStore(t)
	m := addTrack(t, s, "Yesterday", "Beatles")

	e, err := s.GetExtra(m.ID)
	require.NoError(t, err)
	assert.False(t, e.IsGetExtraInfo)
	assert.Empty(t, e.Summary)

	pending, err := s.PendingExtra(0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, m.ID, pending[0].ID)
}

func TestUpsertOverwritesScannedColumns(t *testing.T) {
	s := newStore(t)
	m := addTrack(t, s, "Yesterday", "Beatles")

	// warm the cache so the upsert has to invalidate it
	_, err := s.GetMusic(m.ID)
	require.NoError(t, err)

	m.Album = "Help!"
	require.NoError(t, s.UpsertMusic(m))

	got, err := s.GetMusic(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Help!", got.Album)

	_, total, err := s.ListMusic(1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestUpsertKeepsEnrichment(t *testing.T) {
	s := newStore(t)
	m := addTrack(t, s, "Yesterday", "Beatles")
	require.NoError(t, s.SaveExtra(&MusicExtra{MusicID: m.ID, Summary: "s", IsGetExtraInfo: true}))

	require.NoError(t, s.UpsertMusic(m))

	e, err := s.GetExtra(m.ID)
	require.NoError(t, err)
	assert.True(t, e.IsGetExtraInfo)
	assert.Equal(t, "s", e.Summary)
}

func TestGetMusicNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.GetMusic("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetMusicDetail("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetExtra("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchAndPaging(t *testing.T) {
	s := newStore(t)
	addTrack(t, s, "Blue in Green", "Miles Davis")
	addTrack(t, s, "So What", "Miles Davis")
	addTrack(t, s, "Bluebird", "Beatles")

	found, total, err := s.SearchMusic("BLUE", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, found, 2)

	found, total, err = s.SearchMusic("miles", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, found, 1)
	assert.Equal(t, "So What", found[0].Title)

	all, total, err := s.ListMusic(0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	ids, err := s.MusicIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.IsNonDecreasing(t, ids)
}

func TestSaveExtraMarksDone(t *testing.T) {
	s := newStore(t)
	m := addTrack(t, s, "Yesterday", "Beatles")

	require.NoError(t, s.SaveExtra(&MusicExtra{
		MusicID:        m.ID,
		Summary:        "A ballad.",
		Background:     "Recorded 1965.",
		LyricsComment:  "Regret.",
		Recommendation: "Let It Be",
		IsGetExtraInfo: true,
	}))

	pending, err := s.PendingExtra(10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	d, err := s.GetMusicDetail(m.ID)
	require.NoError(t, err)
	require.NotNil(t, d.Extra)
	assert.Equal(t, "A ballad.", d.Extra.Summary)
}

func TestLabels(t *testing.T) {
	s := newStore(t)
	m := addTrack(t, s, "Yesterday", "Beatles")
	other := addTrack(t, s, "Help", "Beatles")

	as := []label.Assignment{
		{Category: label.Genre, Name: "ROCK"},
		{Category: label.Mood, Name: "SAD"},
		{Category: label.Era, Name: label.Unknown},
	}
	require.NoError(t, s.AddLabels(m.ID, as))
	require.NoError(t, s.AddLabels(m.ID, as[:1]))
	require.NoError(t, s.AddLabels(other.ID, as[:1]))

	got, err := s.Labels(m.ID)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	byRock, total, err := s.MusicByLabel(label.Genre, "ROCK", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, byRock, 2)

	require.NoError(t, s.ReplaceLabels(m.ID, []label.Assignment{{Category: label.Mood, Name: "CALM"}}))
	got, err = s.Labels(m.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, label.Name("CALM"), got[0].Label)

	d, err := s.GetMusicDetail(m.ID)
	require.NoError(t, err)
	assert.Len(t, d.Labels, 1)
}

func TestSaveEnrichment(t *testing.T) {
	s := newStore(t)
	m := addTrack(t, s, "Yesterday", "Beatles")
	rock := []label.Assignment{{Category: label.Genre, Name: "ROCK"}}

	extra := &MusicExtra{MusicID: m.ID, Summary: "A ballad.", IsGetExtraInfo: true}
	require.NoError(t, s.SaveEnrichment(extra, rock))

	got, err := s.GetExtra(m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsGetExtraInfo)
	labels, err := s.Labels(m.ID)
	require.NoError(t, err)
	assert.Len(t, labels, 1)

	assert.ErrorIs(t, s.SaveEnrichment(&MusicExtra{MusicID: "missing"}, rock), ErrNotFound)
}

func TestSaveEnrichmentRollsBackLabels(t *testing.T) {
	s := newStore(t)
	m := addTrack(t, s, "Yesterday", "Beatles")
	require.NoError(t, s.AddLabels(m.ID, []label.Assignment{{Category: label.Genre, Name: "ROCK"}}))

	require.NoError(t, s.DB.Callback().Create().Before("gorm:create").Register("fail_extras", func(db *gorm.DB) {
		if db.Statement.Table == "music_extras" {
			_ = db.AddError(errors.New("disk full"))
		}
	}))

	err := s.SaveEnrichment(&MusicExtra{MusicID: m.ID, IsGetExtraInfo: true},
		[]label.Assignment{{Category: label.Mood, Name: "SAD"}})
	assert.Error(t, err)

	labels, err := s.Labels(m.ID)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, label.Name("ROCK"), labels[0].Label)

	pending, err := s.PendingExtra(0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestLabelsRejectForeignName(t *testing.T) {
	s := newStore(t)
	m := addTrack(t, s, "Yesterday", "Beatles")
	err := s.AddLabels(m.ID, []label.Assignment{{Category: label.Mood, Name: "ROCK"}})
	assert.Error(t, err)

	err = s.AddLabels("missing", []label.Assignment{{Category: label.Mood, Name: "SAD"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMusicCascades(t *testing.T) {
	s := newStore(t)
	m := addTrack(t, s, "Yesterday", "Beatles")
	require.NoError(t, s.AddLabels(m.ID, []label.Assignment{{Category: label.Genre, Name: "ROCK"}}))
	p, err := s.CreatePlaylist("mix")
	require.NoError(t, err)
	require.NoError(t, s.AddToPlaylist(p.ID, m.ID))
	require.NoError(t, s.RecordPlay(m.ID, 30, time.Now()))

	require.NoError(t, s.DeleteMusic(m.ID))
	assert.ErrorIs(t, s.DeleteMusic(m.ID), ErrNotFound)

	_, err = s.GetMusic(m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetExtra(m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	labels, err := s.Labels(m.ID)
	require.NoError(t, err)
	assert.Empty(t, labels)
	items, err := s.PlaylistItems(p.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
	recent, err := s.RecentHistory(10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestPreferences(t *testing.T) {
	s := newStore(t)

	_, ok, err := s.GetPreference("theme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetPreference("theme", "dark"))
	require.NoError(t, s.SetPreference("theme", "light"))
	require.NoError(t, s.SetPreference("mode", "shuffle"))

	v, ok, err := s.GetPreference("theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "light", v)

	all, err := s.Preferences()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"theme": "light", "mode": "shuffle"}, all)

	require.NoError(t, s.DeletePreference("mode"))
	_, ok, err = s.GetPreference("mode")
	require.NoError(t, err)
	assert.False(t, ok)
}
