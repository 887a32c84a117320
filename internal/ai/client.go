package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"go.uber.org/zap"
)

type Options struct {
	Provider    string
	BaseURL     string // empty selects the provider default
	Model       string // empty selects the provider default
	Timeout     time.Duration
	MinInterval time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
}

func DefaultOptions() Options {
	return Options{
		Provider:    DeepSeek,
		Timeout:     60 * time.Second,
		MinInterval: time.Second,
		MaxAttempts: 5,
		BaseBackoff: time.Second,
	}
}

// Client calls one chat-completion provider. Every dispatch, retries
// included, passes through a single rate gate, and the last good response
// per request fingerprint is kept as a fallback.
type Client struct {
	provider    Provider
	baseURL     string
	model       string
	http        *req.Client
	gate        *gate
	cache       *responseCache
	maxAttempts int
	backoff     time.Duration
	log         *zap.Logger
}

func NewClient(opts Options, log *zap.Logger) (*Client, error) {
	p, err := ProviderByName(opts.Provider)
	if err != nil {
		return nil, err
	}
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MinInterval < 0 {
		opts.MinInterval = 0
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = def.BaseBackoff
	}
	if opts.BaseURL == "" {
		opts.BaseURL = p.DefaultBaseURL()
	}
	if opts.Model == "" {
		opts.Model = p.DefaultModel()
	}

	return &Client{
		provider:    p,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		model:       opts.Model,
		http:        req.C().SetTimeout(opts.Timeout),
		gate:        newGate(opts.MinInterval),
		cache:       newResponseCache(),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.BaseBackoff,
		log:         log.With(zap.String("provider", p.Name())),
	}, nil
}

func (c *Client) Provider() Provider { return c.provider }
func (c *Client) Model() string      { return c.model }

// ClearCache drops every fallback response.
func (c *Client) ClearCache() { c.cache.Clear() }

func (c *Client) CacheLen() int { return c.cache.Len() }

// Chat sends cr, retrying transient failures. Auth failures return at once.
// When every attempt fails and an earlier response for the same messages
// exists, that response is returned with Fallback set; otherwise the last
// *Error is returned.
func (c *Client) Chat(ctx context.Context, token string, cr ChatRequest) (*Completion, error) {
	if cr.Model == "" {
		cr.Model = c.model
	}
	body, err := c.provider.Encode(cr)
	if err != nil {
		return nil, fmt.Errorf("ai: encode request: %w", err)
	}
	key := Fingerprint(cr.Messages)

	var last *Error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.gate.Wait(ctx); err != nil {
			return nil, err
		}

		resp, aerr := c.dispatch(ctx, token, cr.Model, body)
		if aerr == nil {
			c.cache.Put(key, resp)
			c.log.Debug("chat completed", zap.Int("attempt", attempt), zap.String("id", resp.ID))
			return &Completion{Response: resp, Attempts: attempt}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		last = aerr

		if !aerr.Kind.Retryable() {
			c.log.Warn("chat rejected", zap.Int("status", aerr.StatusCode), zap.Error(aerr))
			return nil, aerr
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := backoffDelay(c.backoff, attempt)
		if aerr.Kind == KindRateLimit && aerr.RetryAfter > 0 {
			delay = aerr.RetryAfter
		}
		c.log.Warn("chat attempt failed",
			zap.Int("attempt", attempt),
			zap.Stringer("kind", aerr.Kind),
			zap.Int("status", aerr.StatusCode),
			zap.Duration("retry_in", delay),
			zap.Error(aerr),
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	if cached, ok := c.cache.Get(key); ok {
		c.log.Warn("chat retries exhausted, serving cached response", zap.Stringer("kind", last.Kind))
		return &Completion{Response: cached, Fallback: true, Attempts: c.maxAttempts}, nil
	}
	c.log.Error("chat retries exhausted", zap.Int("attempts", c.maxAttempts), zap.Error(last))
	return nil, last
}

func (c *Client) dispatch(ctx context.Context, token, model string, body []byte) (*ChatResponse, *Error) {
	r := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBodyJsonBytes(body)
	c.provider.Authorize(r, token)

	resp, err := r.Post(c.baseURL + c.provider.Path(model))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	status := resp.GetStatusCode()
	raw := resp.Bytes()
	if status < 200 || status > 299 {
		e := &Error{Kind: classify(status), StatusCode: status, Body: truncate(string(raw), 512)}
		if e.Kind == KindRateLimit {
			e.RetryAfter = parseRetryAfter(resp.GetHeader("Retry-After"), time.Now())
		}
		return nil, e
	}

	out, err := c.provider.Decode(raw)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.StatusCode = status
			return nil, e
		}
		return nil, &Error{Kind: KindParse, StatusCode: status, Err: err}
	}
	return out, nil
}

// parseRetryAfter understands both delta-seconds and HTTP-date values.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// MaxBackoff bounds the delay between two attempts.
const MaxBackoff = time.Minute

// backoffDelay is base·2^(attempt-1), capped at MaxBackoff.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < MaxBackoff; i++ {
		d *= 2
	}
	return min(d, MaxBackoff)
}
