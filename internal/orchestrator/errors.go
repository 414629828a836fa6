package orchestrator

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrorCategory classifies turn errors for retry and surfacing decisions.
type ErrorCategory int

const (
	// ErrorCategoryUnknown - unclassified, not retried
	ErrorCategoryUnknown ErrorCategory = iota

	// ErrorCategoryTransient - rate limit (429), server error (5xx), timeout,
	// network failure; retried with backoff
	ErrorCategoryTransient

	// ErrorCategoryPermanent - bad request, invalid model, safety block;
	// never retried
	ErrorCategoryPermanent

	// ErrorCategoryAuth - persistence or provider authorization denied;
	// surfaced distinctly because no write will succeed until reconfigured
	ErrorCategoryAuth

	// ErrorCategoryConfig - required credentials/config absent; fatal to all
	// model calls, surfaced once
	ErrorCategoryConfig
)

// String returns a human-readable category name.
func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryTransient:
		return "transient"
	case ErrorCategoryPermanent:
		return "permanent"
	case ErrorCategoryAuth:
		return "auth"
	case ErrorCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}

// TurnError wraps an error from the generation or persistence boundary with
// classification for retry logic.
type TurnError struct {
	Category   ErrorCategory
	Message    string
	StatusCode int // HTTP status code if applicable
	Retryable  bool
	RetryAfter int // seconds, from a 429 Retry-After if present
	Cause      error
}

func (e *TurnError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *TurnError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error should be retried.
func (e *TurnError) IsRetryable() bool {
	return e.Retryable
}

// ClassifyHTTPStatus classifies a provider HTTP status code.
func ClassifyHTTPStatus(statusCode int, body string) *TurnError {
	err := &TurnError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("HTTP %d: %s", statusCode, truncate(body, 200)),
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		err.Category = ErrorCategoryTransient
		err.Retryable = true
		err.RetryAfter = 30

	case statusCode >= 500 && statusCode < 600:
		err.Category = ErrorCategoryTransient
		err.Retryable = true

	case statusCode == http.StatusRequestTimeout:
		err.Category = ErrorCategoryTransient
		err.Retryable = true

	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		err.Category = ErrorCategoryAuth
		err.Retryable = false

	case statusCode == http.StatusBadRequest ||
		statusCode == http.StatusNotFound ||
		statusCode == http.StatusUnprocessableEntity:
		err.Category = ErrorCategoryPermanent
		err.Retryable = false

	default:
		err.Category = ErrorCategoryUnknown
		err.Retryable = false
	}

	return err
}

// ClassifyError classifies a general error from the generation call.
func ClassifyError(err error) *TurnError {
	if err == nil {
		return nil
	}

	if turnErr, ok := err.(*TurnError); ok {
		return turnErr
	}

	errStr := err.Error()

	// Client-side timeout or cancellation
	if strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "context canceled") {
		return &TurnError{
			Category:  ErrorCategoryTransient,
			Message:   "request timed out",
			Retryable: true,
			Cause:     err,
		}
	}

	// Low-level transport failures
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "EOF") {
		return &TurnError{
			Category:  ErrorCategoryTransient,
			Message:   fmt.Sprintf("network error: %s", truncate(errStr, 100)),
			Retryable: true,
			Cause:     err,
		}
	}

	// Missing credentials
	if strings.Contains(errStr, "API key") || strings.Contains(errStr, "not configured") {
		return &TurnError{
			Category:  ErrorCategoryConfig,
			Message:   truncate(errStr, 200),
			Retryable: false,
			Cause:     err,
		}
	}

	return &TurnError{
		Category:  ErrorCategoryUnknown,
		Message:   truncate(errStr, 200),
		Retryable: false,
		Cause:     err,
	}
}

// BackoffCalculator computes retry delays with exponential backoff and jitter.
type BackoffCalculator struct {
	initialDelay  time.Duration
	maxDelay      time.Duration
	multiplier    float64
	jitterPercent int
}

// NewBackoffCalculator creates a calculator with the given parameters,
// applying defaults for zero values.
func NewBackoffCalculator(initialDelay, maxDelay time.Duration, multiplier float64, jitterPercent int) *BackoffCalculator {
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if multiplier <= 0 {
		multiplier = 2.0
	}
	if jitterPercent < 0 {
		jitterPercent = 20
	}

	return &BackoffCalculator{
		initialDelay:  initialDelay,
		maxDelay:      maxDelay,
		multiplier:    multiplier,
		jitterPercent: jitterPercent,
	}
}

// NextDelay calculates the delay for the given attempt number (0-indexed).
func (b *BackoffCalculator) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt))
	if delay > float64(b.maxDelay) {
		delay = float64(b.maxDelay)
	}

	if b.jitterPercent > 0 {
		jitterRange := delay * float64(b.jitterPercent) / 100.0
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = float64(b.initialDelay)
	}

	return time.Duration(delay)
}

// CircuitBreaker tracks consecutive failures per error source across a round.
// After threshold consecutive failures from the same source it trips and
// short-circuits further retries against that source, so a rate-limited
// provider is not hammered once per remaining agent.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails map[string]int
	tripped          map[string]bool
	threshold        int
}

// NewCircuitBreaker creates a breaker with the given threshold (default 5).
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &CircuitBreaker{
		consecutiveFails: make(map[string]int),
		tripped:          make(map[string]bool),
		threshold:        threshold,
	}
}

// RecordFailure records a failure from the given source. Returns true if the
// circuit has now tripped (or was already tripped).
func (cb *CircuitBreaker) RecordFailure(source string) bool {
	if source == "" {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails[source]++
	if cb.consecutiveFails[source] >= cb.threshold {
		cb.tripped[source] = true
	}
	return cb.tripped[source]
}

// RecordSuccess resets the failure count for the given source.
func (cb *CircuitBreaker) RecordSuccess(source string) {
	if source == "" {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.consecutiveFails, source)
	delete(cb.tripped, source)
}

// IsTripped reports whether the circuit for the given source is open.
func (cb *CircuitBreaker) IsTripped(source string) bool {
	if source == "" {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.tripped[source]
}

// ErrorSource extracts a circuit breaker key from a classified error.
func ErrorSource(err *TurnError) string {
	if err == nil {
		return ""
	}
	if err.StatusCode == http.StatusTooManyRequests {
		return "rate_limit"
	}
	if err.StatusCode >= 500 {
		return "server_5xx"
	}
	msg := strings.ToLower(err.Message)
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded") {
		return "timeout"
	}
	if strings.Contains(msg, "network") || strings.Contains(msg, "connection") {
		return "network"
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
