package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestClientLimiterEnforcesBurstPerClient(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewClientLimiter(config.RateLimitConfig{RequestsPerSec: 1, Burst: 2, VisitorIdleTime: time.Minute})
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatal("expected burst to be admitted")
	}
	if limiter.Allow("a") {
		t.Fatal("expected third request to be throttled")
	}
	if !limiter.Allow("b") {
		t.Fatal("other clients keep their own bucket")
	}

	now = now.Add(time.Second)
	if !limiter.Allow("a") {
		t.Fatal("expected a refilled token after one second")
	}
}

func TestClientLimiterSweepsIdleVisitors(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewClientLimiter(config.RateLimitConfig{RequestsPerSec: 1, Burst: 1, VisitorIdleTime: time.Minute})
	limiter.now = func() time.Time { return now }

	limiter.Allow("old")
	now = now.Add(2 * time.Minute)
	limiter.Allow("fresh")

	if removed := limiter.Sweep(); removed != 1 {
		t.Fatalf("expected 1 removed got %d", removed)
	}
	if _, ok := limiter.visitors["fresh"]; !ok {
		t.Fatal("fresh visitor should remain")
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	limiter := NewClientLimiter(config.RateLimitConfig{RequestsPerSec: 0.001, Burst: 1})
	handler := RateLimit(limiter, nil)(okHandler())

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		req.RemoteAddr = "9.9.9.9:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}
