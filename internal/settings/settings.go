// Package settings exposes typed accessors over the key-value preference
// table.
package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bihua-university/melodex/internal/ai"
)

const (
	KeyCurrentTrack = "player.current_track"
	KeyPlaybackMode = "player.mode"
	KeyTheme        = "ui.theme"
	KeyAIProvider   = "ai.provider"
	KeyAIBaseURL    = "ai.base_url"
	KeyAIModel      = "ai.model"
	KeyAIKey        = "ai.api_key"
)

type PlaybackMode string

const (
	Sequential PlaybackMode = "sequential"
	Shuffle    PlaybackMode = "shuffle"
	RepeatOne  PlaybackMode = "repeat_one"
	RepeatAll  PlaybackMode = "repeat_all"
)

func (m PlaybackMode) Valid() bool {
	switch m {
	case Sequential, Shuffle, RepeatOne, RepeatAll:
		return true
	}
	return false
}

type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

func (t Theme) Valid() bool {
	switch t {
	case ThemeSystem, ThemeLight, ThemeDark:
		return true
	}
	return false
}

var ErrInvalid = errors.New("settings: invalid value")

// Store is the subset of the library store settings needs.
type Store interface {
	GetPreference(key string) (string, bool, error)
	SetPreference(key, value string) error
	DeletePreference(key string) error
}

type AIConfig struct {
	Provider string `json:"provider"`
	BaseURL  string `json:"baseUrl"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
}

// Settings reads stored preferences, falling back to the process defaults
// for AI options that were never set.
type Settings struct {
	store    Store
	defaults ai.Options
	key      string
}

// New returns settings over store. defaults and apiKey come from the
// configuration file and apply until overridden.
func New(store Store, defaults ai.Options, apiKey string) *Settings {
	return &Settings{store: store, defaults: defaults, key: apiKey}
}

func (s *Settings) get(key, def string) (string, error) {
	v, ok, err := s.store.GetPreference(key)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// CurrentTrack returns the id of the last selected track, or "".
func (s *Settings) CurrentTrack() (string, error) {
	return s.get(KeyCurrentTrack, "")
}

func (s *Settings) SetCurrentTrack(musicID string) error {
	if musicID == "" {
		return s.store.DeletePreference(KeyCurrentTrack)
	}
	return s.store.SetPreference(KeyCurrentTrack, musicID)
}

func (s *Settings) PlaybackMode() (PlaybackMode, error) {
	v, err := s.get(KeyPlaybackMode, string(Sequential))
	if err != nil {
		return "", err
	}
	if m := PlaybackMode(v); m.Valid() {
		return m, nil
	}
	return Sequential, nil
}

func (s *Settings) SetPlaybackMode(m PlaybackMode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: playback mode %q", ErrInvalid, m)
	}
	return s.store.SetPreference(KeyPlaybackMode, string(m))
}

func (s *Settings) Theme() (Theme, error) {
	v, err := s.get(KeyTheme, string(ThemeSystem))
	if err != nil {
		return "", err
	}
	if t := Theme(v); t.Valid() {
		return t, nil
	}
	return ThemeSystem, nil
}

func (s *Settings) SetTheme(t Theme) error {
	if !t.Valid() {
		return fmt.Errorf("%w: theme %q", ErrInvalid, t)
	}
	return s.store.SetPreference(KeyTheme, string(t))
}

func (s *Settings) AIConfig() (AIConfig, error) {
	var (
		c   AIConfig
		err error
	)
	if c.Provider, err = s.get(KeyAIProvider, s.defaults.Provider); err != nil {
		return c, err
	}
	if c.BaseURL, err = s.get(KeyAIBaseURL, s.defaults.BaseURL); err != nil {
		return c, err
	}
	if c.Model, err = s.get(KeyAIModel, s.defaults.Model); err != nil {
		return c, err
	}
	if c.APIKey, err = s.get(KeyAIKey, s.key); err != nil {
		return c, err
	}
	return c, nil
}

// SetAIConfig stores every non-empty field of c. Switching provider clears
// a stored base URL and model, since they rarely carry over.
func (s *Settings) SetAIConfig(c AIConfig) error {
	if c.Provider != "" {
		p, err := ai.ProviderByName(c.Provider)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		cur, err := s.get(KeyAIProvider, s.defaults.Provider)
		if err != nil {
			return err
		}
		if !strings.EqualFold(cur, p.Name()) {
			for _, k := range []string{KeyAIBaseURL, KeyAIModel} {
				if err := s.store.DeletePreference(k); err != nil {
					return err
				}
			}
		}
		if err := s.store.SetPreference(KeyAIProvider, p.Name()); err != nil {
			return err
		}
	}
	for key, v := range map[string]string{
		KeyAIBaseURL: c.BaseURL,
		KeyAIModel:   c.Model,
		KeyAIKey:     c.APIKey,
	} {
		if v == "" {
			continue
		}
		if err := s.store.SetPreference(key, strings.TrimSpace(v)); err != nil {
			return err
		}
	}
	return nil
}

// AIOptions merges the stored provider config into the defaults.
func (s *Settings) AIOptions() (ai.Options, string, error) {
	c, err := s.AIConfig()
	if err != nil {
		return ai.Options{}, "", err
	}
	opts := s.defaults
	opts.Provider = c.Provider
	opts.BaseURL = c.BaseURL
	opts.Model = c.Model
	return opts, c.APIKey, nil
}

// View is the client facing snapshot. The API key is masked.
type View struct {
	CurrentTrack string       `json:"currentTrack"`
	PlaybackMode PlaybackMode `json:"playbackMode"`
	Theme        Theme        `json:"theme"`
	AI           AIConfig     `json:"ai"`
}

func (s *Settings) View() (View, error) {
	var (
		v   View
		err error
	)
	if v.CurrentTrack, err = s.CurrentTrack(); err != nil {
		return v, err
	}
	if v.PlaybackMode, err = s.PlaybackMode(); err != nil {
		return v, err
	}
	if v.Theme, err = s.Theme(); err != nil {
		return v, err
	}
	if v.AI, err = s.AIConfig(); err != nil {
		return v, err
	}
	v.AI.APIKey = Mask(v.AI.APIKey)
	return v, nil
}

// Patch carries the fields a client wants to change; nil means untouched.
type Patch struct {
	CurrentTrack *string       `json:"currentTrack"`
	PlaybackMode *PlaybackMode `json:"playbackMode"`
	Theme        *Theme        `json:"theme"`
	AI           *AIConfig     `json:"ai"`
}

// Apply validates the whole patch before writing any of it.
func (s *Settings) Apply(p Patch) error {
	if p.PlaybackMode != nil && !p.PlaybackMode.Valid() {
		return fmt.Errorf("%w: playback mode %q", ErrInvalid, *p.PlaybackMode)
	}
	if p.Theme != nil && !p.Theme.Valid() {
		return fmt.Errorf("%w: theme %q", ErrInvalid, *p.Theme)
	}
	if p.AI != nil && p.AI.Provider != "" {
		if _, err := ai.ProviderByName(p.AI.Provider); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	if p.CurrentTrack != nil {
		if err := s.SetCurrentTrack(*p.CurrentTrack); err != nil {
			return err
		}
	}
	if p.PlaybackMode != nil {
		if err := s.SetPlaybackMode(*p.PlaybackMode); err != nil {
			return err
		}
	}
	if p.Theme != nil {
		if err := s.SetTheme(*p.Theme); err != nil {
			return err
		}
	}
	if p.AI != nil {
		return s.SetAIConfig(*p.AI)
	}
	return nil
}

// Mask keeps the last four characters of a secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
