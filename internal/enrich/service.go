// Package enrich fills in AI generated extra info and labels for library
// tracks and picks the daily recommendation.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/bihua-university/melodex/internal/ai"
	"github.com/bihua-university/melodex/internal/label"
	"github.com/bihua-university/melodex/internal/library"
)

var (
	ErrNoClient     = errors.New("enrich: ai client not configured")
	ErrEmptyLibrary = errors.New("enrich: library is empty")
)

// Chatter is the part of *ai.Client the pipeline uses.
type Chatter interface {
	Chat(ctx context.Context, token string, cr ai.ChatRequest) (*ai.Completion, error)
}

type Result struct {
	Music    *library.Music      `json:"music"`
	Extra    *library.MusicExtra `json:"extra"`
	Labels   []label.Assignment  `json:"labels"`
	Fallback bool                `json:"fallback"`
}

type Daily struct {
	Day      string         `json:"day"`
	Music    *library.Music `json:"music"`
	Reason   string         `json:"reason"`
	Fallback bool           `json:"fallback"`
}

type Service struct {
	store       *library.Store
	log         *zap.Logger
	temperature float64
	daily       *expirable.LRU[string, Daily]

	mu     sync.RWMutex
	client Chatter
	token  string
}

func NewService(store *library.Store, client Chatter, token string, temperature float64, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:       store,
		log:         log,
		temperature: temperature,
		daily:       expirable.NewLRU[string, Daily](8, nil, 24*time.Hour),
		client:      client,
		token:       token,
	}
}

// SetClient swaps the AI client, e.g. after the provider settings changed.
func (s *Service) SetClient(client Chatter, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client, s.token = client, token
}

func (s *Service) chat(ctx context.Context, cr ai.ChatRequest) (*ai.Completion, error) {
	s.mu.RLock()
	client, token := s.client, s.token
	s.mu.RUnlock()
	if client == nil {
		return nil, ErrNoClient
	}
	return client.Chat(ctx, token, cr)
}

// Enrich asks the AI for extra info and labels of one track and stores both.
// Nothing is written unless both replies are usable, so a failed track stays
// pending.
func (s *Service) Enrich(ctx context.Context, musicID string) (*Result, error) {
	m, err := s.store.GetMusic(musicID)
	if err != nil {
		return nil, err
	}
	extra, err := s.store.GetExtra(musicID)
	if errors.Is(err, library.ErrNotFound) {
		extra = &library.MusicExtra{MusicID: musicID}
	} else if err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("music_id", musicID), zap.String("title", m.Title))

	ic, err := s.chat(ctx, infoRequest(m, extra.Lyrics, s.temperature))
	if err != nil {
		return nil, fmt.Errorf("extra info: %w", err)
	}
	in, err := parseInfo(ic.Content())
	if err != nil {
		log.Warn("bad extra info reply", zap.Error(err))
		return nil, err
	}

	lc, err := s.chat(ctx, labelRequest(m, s.temperature))
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	labels, err := parseLabels(lc.Content())
	if err != nil {
		log.Warn("bad label reply", zap.Error(err))
		return nil, err
	}

	extra.Summary = in.Summary
	extra.Background = in.Background
	extra.LyricsComment = in.LyricsComment
	extra.IsGetExtraInfo = true
	if err := s.store.SaveEnrichment(extra, labels); err != nil {
		return nil, fmt.Errorf("saving enrichment: %w", err)
	}

	fallback := ic.Fallback || lc.Fallback
	log.Info("track enriched", zap.Int("labels", len(labels)), zap.Bool("fallback", fallback))
	return &Result{Music: m, Extra: extra, Labels: labels, Fallback: fallback}, nil
}

type Sweep struct {
	Done   int `json:"done"`
	Failed int `json:"failed"`
}

// EnrichPending enriches up to limit tracks that have no extra info yet. An
// auth failure stops the sweep since every later call would fail the same
// way.
func (s *Service) EnrichPending(ctx context.Context, limit int) (Sweep, error) {
	var sw Sweep
	pending, err := s.store.PendingExtra(limit)
	if err != nil {
		return sw, err
	}
	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return sw, err
		}
		if _, err := s.Enrich(ctx, m.ID); err != nil {
			if IsFatal(err) {
				return sw, err
			}
			sw.Failed++
			continue
		}
		sw.Done++
	}
	return sw, nil
}

// IsFatal reports errors that retrying another track will not fix.
func IsFatal(err error) bool {
	if errors.Is(err, ErrNoClient) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	kind, ok := ai.KindOf(err)
	return ok && kind == ai.KindAuth
}

func pickIndex(day string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(day))
	return int(h.Sum32() % uint32(n))
}

// DailyRecommendation picks the same track for every call on a given day
// and explains the pick. A reason already stored for the track is reused.
func (s *Service) DailyRecommendation(ctx context.Context, day time.Time) (*Daily, error) {
	key := day.Format(library.DayLayout)
	if d, ok := s.daily.Get(key); ok {
		return &d, nil
	}

	ids, err := s.store.MusicIDs()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrEmptyLibrary
	}
	m, err := s.store.GetMusic(ids[pickIndex(key, len(ids))])
	if err != nil {
		return nil, err
	}
	extra, err := s.store.GetExtra(m.ID)
	if errors.Is(err, library.ErrNotFound) {
		extra = &library.MusicExtra{MusicID: m.ID}
	} else if err != nil {
		return nil, err
	}

	d := Daily{Day: key, Music: m, Reason: extra.Recommendation}
	if d.Reason == "" {
		c, err := s.chat(ctx, recommendRequest(m, s.temperature))
		if err != nil {
			return nil, fmt.Errorf("daily recommendation: %w", err)
		}
		d.Reason = strings.TrimSpace(stripFence(c.Content()))
		if d.Reason == "" {
			return nil, fmt.Errorf("%w: empty recommendation", ErrBadReply)
		}
		d.Fallback = c.Fallback
		extra.Recommendation = d.Reason
		if err := s.store.SaveExtra(extra); err != nil {
			return nil, fmt.Errorf("saving recommendation: %w", err)
		}
	}

	s.daily.Add(key, d)
	return &d, nil
}

// ForgetDaily drops cached picks, e.g. after the library changed.
func (s *Service) ForgetDaily() {
	s.daily.Purge()
}
