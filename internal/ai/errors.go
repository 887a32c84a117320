package ai

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies a failed chat call.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindAuth
	KindRateLimit
	KindServer
	KindParse
	KindUnknown
)

func (k ErrorKind) String() string {
	names := []string{
		"network",
		"auth",
		"rate_limit",
		"server",
		"parse",
		"unknown",
	}
	if int(k) >= 0 && int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Retryable reports whether another attempt may succeed. Only auth
// failures are terminal.
func (k ErrorKind) Retryable() bool {
	return k != KindAuth
}

type Error struct {
	Kind       ErrorKind
	StatusCode int           // 0 for network and parse failures
	RetryAfter time.Duration // server hint, rate limit only
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNetwork:
		return fmt.Sprintf("ai: network error: %v", e.Err)
	case KindParse:
		return fmt.Sprintf("ai: parse error: %v", e.Err)
	default:
		if e.Body != "" {
			return fmt.Sprintf("ai: %s error (status %d): %s", e.Kind, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("ai: %s error (status %d)", e.Kind, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the fixed text shown to a listener for this failure.
func (e *Error) Message() string {
	switch e.Kind {
	case KindNetwork:
		return "Network connection failed, please check your network"
	case KindAuth:
		return "API key is invalid or expired, please check the AI settings"
	case KindRateLimit:
		return "Too many requests, please try again later"
	case KindServer:
		return fmt.Sprintf("AI service is unavailable (%d), please try again later", e.StatusCode)
	case KindParse:
		return "Could not understand the AI response"
	default:
		return "Unknown error, please try again later"
	}
}

// KindOf extracts the classification of err, reporting false when err is
// not an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindUnknown, false
}

// classify maps a non-2xx status onto the taxonomy.
func classify(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500 && status <= 599:
		return KindServer
	default:
		return KindUnknown
	}
}
