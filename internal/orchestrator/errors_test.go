package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		category  ErrorCategory
		retryable bool
	}{
		{429, ErrorCategoryTransient, true},
		{500, ErrorCategoryTransient, true},
		{503, ErrorCategoryTransient, true},
		{408, ErrorCategoryTransient, true},
		{401, ErrorCategoryAuth, false},
		{403, ErrorCategoryAuth, false},
		{400, ErrorCategoryPermanent, false},
		{404, ErrorCategoryPermanent, false},
		{422, ErrorCategoryPermanent, false},
		{418, ErrorCategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := ClassifyHTTPStatus(tt.status, "body")
			if err.Category != tt.category {
				t.Errorf("category = %s, want %s", err.Category, tt.category)
			}
			if err.IsRetryable() != tt.retryable {
				t.Errorf("retryable = %v, want %v", err.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestClassifyHTTPStatus_RateLimitRetryAfter(t *testing.T) {
	err := ClassifyHTTPStatus(429, "quota exceeded")
	if err.RetryAfter != 30 {
		t.Errorf("RetryAfter = %d, want 30", err.RetryAfter)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  ErrorCategory
		retryable bool
	}{
		{"deadline", context.DeadlineExceeded, ErrorCategoryTransient, true},
		{"canceled", context.Canceled, ErrorCategoryTransient, true},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorCategoryTransient, true},
		{"eof", errors.New("unexpected EOF"), ErrorCategoryTransient, true},
		{"missing key", errors.New("GEMINI_API_KEY not configured"), ErrorCategoryConfig, false},
		{"unknown", errors.New("something odd"), ErrorCategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err)
			if classified.Category != tt.category {
				t.Errorf("category = %s, want %s", classified.Category, tt.category)
			}
			if classified.IsRetryable() != tt.retryable {
				t.Errorf("retryable = %v, want %v", classified.IsRetryable(), tt.retryable)
			}
			if !errors.Is(classified, tt.err) {
				t.Error("cause not preserved through Unwrap")
			}
		})
	}
}

func TestClassifyError_PassesThroughTurnError(t *testing.T) {
	orig := &TurnError{Category: ErrorCategoryPermanent, Message: "safety block"}
	if got := ClassifyError(orig); got != orig {
		t.Error("already-classified error should pass through unchanged")
	}
}

func TestBackoffCalculator_Doubling(t *testing.T) {
	// Zero jitter so delays are exact.
	b := NewBackoffCalculator(time.Second, 30*time.Second, 2.0, 0)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, expected := range want {
		if got := b.NextDelay(attempt); got != expected {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, expected)
		}
	}
}

func TestBackoffCalculator_CapsAtMax(t *testing.T) {
	b := NewBackoffCalculator(time.Second, 10*time.Second, 2.0, 0)
	if got := b.NextDelay(20); got != 10*time.Second {
		t.Errorf("delay = %v, want cap of 10s", got)
	}
}

func TestBackoffCalculator_JitterStaysInRange(t *testing.T) {
	b := NewBackoffCalculator(time.Second, 30*time.Second, 2.0, 20)
	for i := 0; i < 50; i++ {
		d := b.NextDelay(1) // base 2s, ±20%
		if d < 1600*time.Millisecond || d > 2400*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±20%% of 2s", d)
		}
	}
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3)

	if cb.RecordFailure("rate_limit") {
		t.Error("tripped after 1 failure")
	}
	if cb.RecordFailure("rate_limit") {
		t.Error("tripped after 2 failures")
	}
	if !cb.RecordFailure("rate_limit") {
		t.Error("not tripped after 3 failures")
	}
	if !cb.IsTripped("rate_limit") {
		t.Error("IsTripped disagrees with RecordFailure")
	}
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2)
	cb.RecordFailure("timeout")
	cb.RecordSuccess("timeout")
	if cb.RecordFailure("timeout") {
		t.Error("success did not reset the consecutive count")
	}
}

func TestCircuitBreaker_IndependentSources(t *testing.T) {
	cb := NewCircuitBreaker(2)
	cb.RecordFailure("rate_limit")
	cb.RecordFailure("rate_limit")
	if cb.IsTripped("timeout") {
		t.Error("unrelated source tripped")
	}
}

func TestErrorSource(t *testing.T) {
	tests := []struct {
		name string
		err  *TurnError
		want string
	}{
		{"rate limit", &TurnError{StatusCode: 429}, "rate_limit"},
		{"server", &TurnError{StatusCode: 502}, "server_5xx"},
		{"timeout", &TurnError{Message: "request timed out"}, "timeout"},
		{"network", &TurnError{Message: "network error: connection reset"}, "network"},
		{"nil", nil, ""},
		{"unclassifiable", &TurnError{Message: "weird"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorSource(tt.err); got != tt.want {
				t.Errorf("ErrorSource = %q, want %q", got, tt.want)
			}
		})
	}
}
