package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// script serves one scripted reply per request and records arrival times.
type script struct {
	mu      sync.Mutex
	replies []func(w http.ResponseWriter, r *http.Request)
	hits    []time.Time
	auth    []string
}

func (s *script) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := len(s.hits)
	s.hits = append(s.hits, time.Now())
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	reply := s.replies[len(s.replies)-1]
	if n < len(s.replies) {
		reply = s.replies[n]
	}
	s.mu.Unlock()
	reply(w, r)
}

func (s *script) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hits)
}

func (s *script) times() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.hits...)
}

func ok(content string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"cmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":%q}}]}`, content)
	}
}

func status(code int, headers ...string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		for i := 0; i+1 < len(headers); i += 2 {
			w.Header().Set(headers[i], headers[i+1])
		}
		w.WriteHeader(code)
		fmt.Fprint(w, `{"error":{"message":"nope"}}`)
	}
}

func newScripted(t *testing.T, opts Options, replies ...func(http.ResponseWriter, *http.Request)) (*Client, *script) {
	t.Helper()
	s := &script{replies: replies}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	if opts.Provider == "" {
		opts.Provider = OpenAI
	}
	opts.BaseURL = srv.URL
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Millisecond
	}
	c, err := NewClient(opts, zap.NewNop())
	require.NoError(t, err)
	return c, s
}

func request(text string) ChatRequest {
	return ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "you tag music"},
			{Role: RoleUser, Content: text},
		},
		Temperature: 0.5,
	}
}

func TestChatSuccess(t *testing.T) {
	c, s := newScripted(t, Options{}, ok("hello"))

	got, err := c.Chat(context.Background(), "sk-test", request("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content())
	assert.False(t, got.Fallback)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, 1, c.CacheLen())
	assert.Equal(t, "Bearer sk-test", s.auth[0])
}

func TestChatAuthErrorNeverRetries(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			c, s := newScripted(t, Options{}, status(code))

			_, err := c.Chat(context.Background(), "bad", request("hi"))
			require.Error(t, err)
			kind, isAI := KindOf(err)
			assert.True(t, isAI)
			assert.Equal(t, KindAuth, kind)
			assert.Equal(t, 1, s.count())
		})
	}
}

func TestChatAuthErrorSkipsCache(t *testing.T) {
	c, s := newScripted(t, Options{}, ok("first"), status(http.StatusUnauthorized))

	_, err := c.Chat(context.Background(), "k", request("same"))
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "k", request("same"))
	kind, _ := KindOf(err)
	assert.Equal(t, KindAuth, kind)
	assert.Equal(t, 2, s.count())
}

func TestChatRateLimitHonorsRetryAfter(t *testing.T) {
	c, s := newScripted(t, Options{},
		status(http.StatusTooManyRequests, "Retry-After", "1"),
		ok("later"),
	)

	got, err := c.Chat(context.Background(), "k", request("hi"))
	require.NoError(t, err)
	assert.Equal(t, "later", got.Content())
	assert.Equal(t, 2, got.Attempts)

	hits := s.times()
	require.Len(t, hits, 2)
	assert.GreaterOrEqual(t, hits[1].Sub(hits[0]), time.Second)
}

func TestChatRateLimitWithoutRetryAfterBacksOff(t *testing.T) {
	base := 40 * time.Millisecond
	c, s := newScripted(t, Options{BaseBackoff: base},
		status(http.StatusTooManyRequests),
		ok("later"),
	)

	got, err := c.Chat(context.Background(), "k", request("hi"))
	require.NoError(t, err)
	assert.Equal(t, "later", got.Content())
	assert.Equal(t, 2, got.Attempts)

	hits := s.times()
	require.Len(t, hits, 2)
	assert.GreaterOrEqual(t, hits[1].Sub(hits[0]), base)
	assert.Less(t, hits[1].Sub(hits[0]), time.Second)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	assert.Equal(t, time.Second, backoffDelay(time.Second, 1))
	assert.Equal(t, 8*time.Second, backoffDelay(time.Second, 4))
	assert.Equal(t, MaxBackoff, backoffDelay(time.Second, 7))
	for _, attempt := range []int{35, 64, 100, 1 << 20} {
		assert.Equal(t, MaxBackoff, backoffDelay(time.Second, attempt), attempt)
	}
	assert.Equal(t, MaxBackoff, backoffDelay(2*time.Minute, 1))
}

func TestChatRetriesServerErrors(t *testing.T) {
	c, s := newScripted(t, Options{},
		status(http.StatusInternalServerError),
		status(http.StatusBadGateway),
		ok("recovered"),
	)

	got, err := c.Chat(context.Background(), "k", request("hi"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", got.Content())
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, 3, s.count())
}

func TestChatBackoffDoubles(t *testing.T) {
	base := 30 * time.Millisecond
	c, s := newScripted(t, Options{BaseBackoff: base, MaxAttempts: 3}, status(http.StatusServiceUnavailable))

	_, err := c.Chat(context.Background(), "k", request("hi"))
	require.Error(t, err)

	hits := s.times()
	require.Len(t, hits, 3)
	assert.GreaterOrEqual(t, hits[1].Sub(hits[0]), base)
	assert.GreaterOrEqual(t, hits[2].Sub(hits[1]), 2*base)
}

func TestChatExhaustedServesCachedFallback(t *testing.T) {
	c, s := newScripted(t, Options{MaxAttempts: 5}, ok("cached answer"), status(http.StatusInternalServerError))

	fresh, err := c.Chat(context.Background(), "k", request("same question"))
	require.NoError(t, err)
	require.False(t, fresh.Fallback)

	got, err := c.Chat(context.Background(), "k", request("same question"))
	require.NoError(t, err)
	assert.True(t, got.Fallback)
	assert.Equal(t, "cached answer", got.Content())
	assert.Equal(t, 1+5, s.count())
}

func TestChatExhaustedWithoutCacheReturnsLastError(t *testing.T) {
	c, s := newScripted(t, Options{MaxAttempts: 4},
		status(http.StatusTeapot),
		status(http.StatusServiceUnavailable),
	)

	_, err := c.Chat(context.Background(), "k", request("never seen"))
	require.Error(t, err)

	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, KindServer, aerr.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, aerr.StatusCode)
	assert.Equal(t, 4, s.count())
}

func TestChatUnknownStatusIsRetried(t *testing.T) {
	c, s := newScripted(t, Options{MaxAttempts: 2}, status(http.StatusTeapot))

	_, err := c.Chat(context.Background(), "k", request("hi"))
	kind, _ := KindOf(err)
	assert.Equal(t, KindUnknown, kind)
	assert.Equal(t, 2, s.count())
}

func TestChatParseError(t *testing.T) {
	garbage := func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "<html>oops</html>") }
	c, s := newScripted(t, Options{MaxAttempts: 2}, garbage)

	_, err := c.Chat(context.Background(), "k", request("hi"))
	kind, _ := KindOf(err)
	assert.Equal(t, KindParse, kind)
	assert.Equal(t, 2, s.count())
}

func TestChatNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Options{Provider: OpenAI, BaseURL: url, MaxAttempts: 2, BaseBackoff: time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "k", request("hi"))
	kind, isAI := KindOf(err)
	require.True(t, isAI)
	assert.Equal(t, KindNetwork, kind)
}

func TestChatCancelDuringBackoff(t *testing.T) {
	c, _ := newScripted(t, Options{BaseBackoff: 10 * time.Second}, status(http.StatusInternalServerError))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Chat(ctx, "k", request("hi"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestChatSpacesConsecutiveCalls(t *testing.T) {
	interval := 150 * time.Millisecond
	c, s := newScripted(t, Options{MinInterval: interval}, ok("a"))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Chat(context.Background(), "k", request(fmt.Sprint(i)))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 2*interval)
	assert.Equal(t, 3, s.count())
}

func TestClearCache(t *testing.T) {
	c, _ := newScripted(t, Options{MaxAttempts: 1}, ok("x"), status(http.StatusInternalServerError))

	_, err := c.Chat(context.Background(), "k", request("q"))
	require.NoError(t, err)
	c.ClearCache()
	assert.Equal(t, 0, c.CacheLen())

	_, err = c.Chat(context.Background(), "k", request("q"))
	kind, _ := KindOf(err)
	assert.Equal(t, KindServer, kind)
}

func TestErnieErrorCodeIsAuth(t *testing.T) {
	body := func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error_code":110,"error_msg":"Access token invalid or no longer valid"}`)
	}
	c, s := newScripted(t, Options{Provider: Ernie}, body)

	_, err := c.Chat(context.Background(), "k", request("hi"))
	kind, _ := KindOf(err)
	assert.Equal(t, KindAuth, kind)
	assert.Equal(t, 1, s.count())
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient(Options{Provider: "gemini"}, zap.NewNop())
	assert.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{"-1", 0},
		{"Wed, 01 May 2024 12:00:10 GMT", 10 * time.Second},
		{"Wed, 01 May 2024 11:59:00 GMT", 0},
		{"soon", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseRetryAfter(tc.in, now), tc.in)
	}
}

func TestErrorMessagePerKind(t *testing.T) {
	seen := map[string]bool{}
	for k := KindNetwork; k <= KindUnknown; k++ {
		msg := (&Error{Kind: k, StatusCode: 500}).Message()
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], "duplicate message for %s", k)
		seen[msg] = true
	}
}
