package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

type statusErr int

func (s statusErr) Error() string       { return fmt.Sprintf("http %d", int(s)) }
func (s statusErr) HTTPStatusCode() int { return int(s) }

func TestIsClientError(t *testing.T) {
	for _, code := range []int{400, 401, 402, 403, 404, 422} {
		if !IsClientError(statusErr(code)) {
			t.Fatalf("status %d should be a client error", code)
		}
		if IsRetryableError(statusErr(code)) {
			t.Fatalf("status %d must not be retryable", code)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 599} {
		if !IsRetryableError(statusErr(code)) {
			t.Fatalf("status %d should be retryable", code)
		}
		if IsClientError(statusErr(code)) {
			t.Fatalf("status %d must not be a client error", code)
		}
	}
	if !IsRetryableError(context.DeadlineExceeded) {
		t.Fatalf("deadline exceeded should be retryable")
	}
	if IsRetryableError(context.Canceled) {
		t.Fatalf("canceled context must not be retryable")
	}
	if IsRetryableError(nil) {
		t.Fatalf("nil error must not be retryable")
	}
	if IsRetryableError(errors.New("plain")) {
		t.Fatalf("untyped error must not be retryable")
	}
}

func TestRetryAfterDuration(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "3")
	if got := RetryAfterDuration(resp, time.Second, 10*time.Second); got != 3*time.Second {
		t.Fatalf("expected 3s, got %s", got)
	}
	resp.Header.Set("Retry-After", "120")
	if got := RetryAfterDuration(resp, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("expected cap at 10s, got %s", got)
	}
	if got := RetryAfterDuration(nil, 2*time.Second, 10*time.Second); got != 2*time.Second {
		t.Fatalf("expected fallback 2s, got %s", got)
	}
}

func TestJitterSleepBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		got := JitterSleep(time.Second)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("jitter out of bounds: %s", got)
		}
	}
	if JitterSleep(0) != 0 {
		t.Fatalf("zero base should stay zero")
	}
}
