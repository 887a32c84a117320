package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"go.uber.org/zap"
)

var audioExt = map[string]bool{
	".mp3": true, ".flac": true, ".m4a": true, ".mp4": true, ".aac": true,
	".ogg": true, ".opus": true, ".wav": true, ".dsf": true,
}

var coverNames = []string{"cover.jpg", "cover.png", "folder.jpg", "folder.png", "front.jpg"}

type ScanResult struct {
	Scanned int `json:"scanned"`
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// MusicID derives a stable track id from its absolute path.
func MusicID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

// Track is what a scan learns about one file.
type Track struct {
	Music      Music
	Lyrics     string
	Bitrate    int // kbit/s
	SampleRate int // Hz
}

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]decodeFunc{
	".mp3":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".flac": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) },
	".wav":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
	".ogg":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
}

// ReadTrack builds a Track from the file's tags and stream header. Files
// without readable tags still produce a row titled after the file name;
// formats that cannot be decoded keep a zero duration.
func (s *Store) ReadTrack(path string) (*Track, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tr := &Track{Music: Music{
		ID:       MusicID(abs),
		Path:     abs,
		CoverArt: sidecarCover(filepath.Dir(abs)),
	}}
	m := &tr.Music

	md, err := tag.ReadFrom(f)
	if err == nil {
		m.Title = strings.TrimSpace(md.Title())
		m.Artist = strings.TrimSpace(md.Artist())
		if m.Artist == "" {
			m.Artist = strings.TrimSpace(md.AlbumArtist())
		}
		m.Album = strings.TrimSpace(md.Album())
		tr.Lyrics = md.Lyrics()
	} else if !errors.Is(err, tag.ErrNoTagsFound) {
		s.log.Debug("unreadable tags", zap.String("path", abs), zap.Error(err))
	}
	if m.Title == "" {
		m.Title = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}

	if err := s.readStream(f, tr); err != nil {
		s.log.Debug("unreadable stream", zap.String("path", abs), zap.Error(err))
	}
	return tr, nil
}

// readStream fills duration, sample rate and average bitrate from the
// decoder's view of the file.
func (s *Store) readStream(f *os.File, tr *Track) error {
	decode, ok := decoders[strings.ToLower(filepath.Ext(f.Name()))]
	if !ok {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		return err
	}
	stream, format, err := decode(f)
	if err != nil {
		return err
	}
	defer stream.Close()

	ms := format.SampleRate.D(stream.Len()).Milliseconds()
	if ms <= 0 {
		return nil
	}
	tr.Music.Duration = ms
	tr.SampleRate = int(format.SampleRate)
	tr.Bitrate = int(st.Size() * 8 / ms)
	return nil
}

func sidecarCover(dir string) string {
	for _, name := range coverNames {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

// Scan walks root and upserts every audio file it finds. A file that fails
// is counted and skipped; only a failure to walk root itself is returned.
func (s *Store) Scan(ctx context.Context, root string) (ScanResult, error) {
	var res ScanResult
	if _, err := os.Stat(root); err != nil {
		return res, fmt.Errorf("music dir: %w", err)
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.log.Warn("scan walk error", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !audioExt[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		res.Scanned++
		if err := s.importFile(path, &res); err != nil {
			res.Failed++
			s.log.Warn("scan file failed", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
	s.log.Info("scan finished",
		zap.String("root", root),
		zap.Int("scanned", res.Scanned),
		zap.Int("added", res.Added),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed))
	return res, err
}

func (s *Store) importFile(path string, res *ScanResult) error {
	tr, err := s.ReadTrack(path)
	if err != nil {
		return err
	}
	m := &tr.Music
	exists, err := s.HasMusic(m.ID)
	if err != nil {
		return err
	}
	if err := s.UpsertMusic(m); err != nil {
		return err
	}
	if tr.SampleRate > 0 {
		if err := s.DB.Model(&MusicExtra{}).
			Where("music_id = ?", m.ID).
			Updates(map[string]any{"bitrate": tr.Bitrate, "sample_rate": tr.SampleRate}).Error; err != nil {
			return err
		}
	}
	if tr.Lyrics != "" {
		if err := s.DB.Model(&MusicExtra{}).
			Where("music_id = ? AND lyrics = ?", m.ID, "").
			Update("lyrics", tr.Lyrics).Error; err != nil {
			return err
		}
	}
	if exists {
		res.Updated++
	} else {
		res.Added++
	}
	return nil
}
