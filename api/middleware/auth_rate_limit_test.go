package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type countingStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (s *countingStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, 0, s.err
	}
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[scope]++
	return s.counts[scope] <= limit, s.counts[scope], nil
}

func credentialRequest(remote, email string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"`+email+`","password":"hunter22"}`))
	req.RemoteAddr = remote
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error.Code
}

func TestAuthRateLimitKeepsBodyForHandler(t *testing.T) {
	store := &countingStore{}
	var seen string
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 5, 5), store, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			seen = string(body)
			w.WriteHeader(http.StatusNoContent)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("10.0.0.1:4000", "ada@example.com"))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !strings.Contains(seen, `"email":"ada@example.com"`) {
		t.Fatalf("handler saw %q", seen)
	}
	for key := range store.counts {
		if strings.Contains(key, "ada@example.com") {
			t.Fatalf("raw email leaked into key %q", key)
		}
	}
}

func TestAuthRateLimitThrottles(t *testing.T) {
	cases := []struct {
		name    string
		policy  AuthRateLimitPolicy
		request func(i int) *http.Request
		allowed int
	}{
		{
			name:   "email across addresses",
			policy: NewAuthRateLimitPolicy("login", time.Minute, 0, 2),
			request: func(i int) *http.Request {
				return credentialRequest("10.0.0."+string(rune('1'+i))+":4000", "  Ada@Example.com ")
			},
			allowed: 2,
		},
		{
			name:   "address across emails",
			policy: NewAuthRateLimitPolicy("register", time.Minute, 1, 0),
			request: func(i int) *http.Request {
				return credentialRequest("10.0.0.9:4000", string(rune('a'+i))+"@example.com")
			},
			allowed: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := AuthRateLimit(tc.policy, &countingStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			for i := 0; i <= tc.allowed; i++ {
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, tc.request(i))
				if i < tc.allowed {
					if rec.Code != http.StatusOK {
						t.Fatalf("attempt %d: expected 200, got %d", i, rec.Code)
					}
					continue
				}
				if rec.Code != http.StatusTooManyRequests {
					t.Fatalf("attempt %d: expected 429, got %d", i, rec.Code)
				}
				if got := rec.Header().Get("Retry-After"); got != "60" {
					t.Fatalf("expected Retry-After 60, got %q", got)
				}
				if code := errorCode(t, rec); code != string(pkgerrors.CodeRateLimit) {
					t.Fatalf("unexpected code %s", code)
				}
			}
		})
	}
}

func TestAuthRateLimitStoreFailure(t *testing.T) {
	store := &countingStore{err: errors.New("redis down")}
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 1, 1), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("10.0.0.1:4000", "ada@example.com"))

	if code := errorCode(t, rec); code != string(pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %s", code)
	}
}

func TestAuthRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := AuthRateLimit(NewAuthRateLimitPolicy("", 0, 1, 1), &countingStore{err: errors.New("unused")}, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("10.0.0.1:4000", "ada@example.com"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestClientIPPrefersForwardedHop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected socket peer, got %q", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := clientIP(req); got != "198.51.100.7" {
		t.Fatalf("expected real ip, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.2")
	if got := clientIP(req); got != "203.0.113.5" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}
