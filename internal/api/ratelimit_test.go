package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterBudget(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("third request should be rejected")
	}
	// Budgets are per client.
	if !rl.Allow("10.0.0.2") {
		t.Fatal("other client should have its own budget")
	}
	if rl.RetryAfter("10.0.0.1") <= 0 {
		t.Fatal("exhausted client should get a positive retry hint")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)
	if !rl.Allow("10.0.0.1") {
		t.Fatal("first request should pass")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("budget should be spent")
	}
	time.Sleep(15 * time.Millisecond)
	if !rl.Allow("10.0.0.1") {
		t.Fatal("budget should reset after the window")
	}
}

func TestRateLimiterPrunesStaleBuckets(t *testing.T) {
	rl := NewRateLimiter(5, 10*time.Millisecond)
	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")
	rl.Allow("10.0.0.3")

	time.Sleep(15 * time.Millisecond)
	rl.Allow("10.0.0.4")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.buckets) != 1 {
		t.Fatalf("stale buckets kept: %d entries, want 1", len(rl.buckets))
	}
	if _, ok := rl.buckets["10.0.0.4"]; !ok {
		t.Fatal("live bucket pruned")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	var hits int
	h := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) { hits++ })

	req := httptest.NewRequest(http.MethodPost, "/admin/tick", nil)
	req.RemoteAddr = "192.0.2.1:5000"

	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusOK || hits != 1 {
		t.Fatalf("first request: code=%d hits=%d", rec.Code, hits)
	}

	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: code=%d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("429 response missing Retry-After")
	}
	if hits != 1 {
		t.Fatalf("handler ran %d times, want 1", hits)
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		remote string
		xff    string
		want   string
	}{
		{"192.0.2.1:5000", "", "192.0.2.1"},
		{"192.0.2.1:5000", "203.0.113.9", "203.0.113.9"},
		{"192.0.2.1:5000", "203.0.113.9, 198.51.100.2", "203.0.113.9"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		if tc.xff != "" {
			req.Header.Set("X-Forwarded-For", tc.xff)
		}
		if got := clientIP(req); got != tc.want {
			t.Fatalf("clientIP(remote=%s, xff=%q) = %s, want %s", tc.remote, tc.xff, got, tc.want)
		}
	}
}
