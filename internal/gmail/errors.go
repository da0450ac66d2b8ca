package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"
)

var (
	// ErrUnauthorized means the access token was rejected (401).
	ErrUnauthorized = errors.New("gmail: unauthorized")
	// ErrForbidden means the token lacks a scope or the account is not allowed (403).
	ErrForbidden = errors.New("gmail: forbidden")
	// ErrNotFound means the message or resource does not exist (404).
	ErrNotFound = errors.New("gmail: not found")
	// ErrRateLimited means the provider throttled the call (429, or 403 with a quota reason).
	ErrRateLimited = errors.New("gmail: rate limited")
	// ErrCircuitOpen means recent failures opened the circuit breaker.
	ErrCircuitOpen = errors.New("gmail: circuit open")
	// ErrUpstream covers 5xx and any other unexpected provider failure.
	ErrUpstream = errors.New("gmail: upstream error")
)

// Penalties applied when the provider throttles without a Retry-After header.
const (
	rateLimitPenalty = 30 * time.Second
	quotaPenalty     = 60 * time.Second
)

// APIError is a classified provider failure. Kind is one of the sentinel
// errors above and is what errors.Is matches.
type APIError struct {
	Op         string
	Code       int
	Kind       error
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %s (%d): %v", e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *APIError) Is(target error) bool { return target == e.Kind }

func (e *APIError) Unwrap() error { return e.Err }

// RetryAfter returns how long callers should back off after err, or zero
// when err is not a throttling error.
func RetryAfter(err error) time.Duration {
	var ae *APIError
	if errors.As(err, &ae) && errors.Is(ae.Kind, ErrRateLimited) {
		return ae.RetryAfter
	}
	return 0
}

// classify maps a transport or googleapi error onto an APIError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &APIError{Op: op, Kind: ErrCircuitOpen, Err: err}
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &APIError{Op: op, Kind: ErrUpstream, Err: err}
	}
	ae := &APIError{Op: op, Code: gerr.Code, Err: err}
	switch {
	case gerr.Code == http.StatusUnauthorized:
		ae.Kind = ErrUnauthorized
	case gerr.Code == http.StatusTooManyRequests:
		ae.Kind = ErrRateLimited
		ae.RetryAfter = retryAfter(gerr.Header, rateLimitPenalty)
	case gerr.Code == http.StatusForbidden && isQuotaError(gerr):
		ae.Kind = ErrRateLimited
		ae.RetryAfter = retryAfter(gerr.Header, quotaPenalty)
	case gerr.Code == http.StatusForbidden:
		ae.Kind = ErrForbidden
	case gerr.Code == http.StatusNotFound:
		ae.Kind = ErrNotFound
	default:
		ae.Kind = ErrUpstream
	}
	return ae
}

// isQuotaError reports whether a 403 is a quota error rather than a
// permission error.
func isQuotaError(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	msg := gerr.Message + " " + gerr.Body
	return strings.Contains(msg, "rateLimitExceeded") ||
		strings.Contains(msg, "RATE_LIMIT_EXCEEDED") ||
		strings.Contains(msg, "Quota exceeded")
}

func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	if h == nil {
		return fallback
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return fallback
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	default:
		return "error"
	}
}

// tripsBreaker reports whether err should count against the circuit breaker.
// Client errors are the caller's problem and never open the circuit.
func tripsBreaker(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return false
		}
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
