package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type memoryKeyStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryKeyStore() *memoryKeyStore {
	return &memoryKeyStore{data: map[string]string{}}
}

func (m *memoryKeyStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryKeyStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key], _ = value.(string)
	return nil
}

func (m *memoryKeyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryKeyStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryKeyStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func checkoutRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func TestIdempotencyRequiresKey(t *testing.T) {
	ran := false
	handler := Idempotency(newMemoryKeyStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("  ", `{}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ran {
		t.Fatal("handler ran without a key")
	}
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	calls := 0
	handler := Idempotency(newMemoryKeyStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderNumber":"ORD-1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("k-1", `{"shippingMethod":"standard"}`))
	if first.Code != http.StatusCreated || first.Header().Get(replayHeader) != "" {
		t.Fatalf("unexpected first response %d replay=%q", first.Code, first.Header().Get(replayHeader))
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest("k-1", `{"shippingMethod":"standard"}`))
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Header().Get(replayHeader) != "true" {
		t.Fatal("expected replay marker")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("content type lost: %q", second.Header().Get("Content-Type"))
	}
	if second.Body.String() != `{"orderNumber":"ORD-1"}` {
		t.Fatalf("unexpected replay body %s", second.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	handler := Idempotency(newMemoryKeyStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("k-2", `{"a":1}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("k-2", `{"a":2}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s, got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyConflictsWhileInFlight(t *testing.T) {
	store := newMemoryKeyStore()
	var handler http.Handler
	var nested *httptest.ResponseRecorder
	handler = Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if nested == nil {
			nested = httptest.NewRecorder()
			handler.ServeHTTP(nested, checkoutRequest("k-3", `{}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("k-3", `{}`))

	if nested.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for the concurrent repeat, got %d", nested.Code)
	}
	if code := errorCode(t, nested); code != string(pkgerrors.CodeConflict) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newMemoryKeyStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("k-4", `{}`))
	}
	if calls != 2 {
		t.Fatalf("expected retry after 5xx, got %d calls", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected key released, store has %v", store.data)
	}
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	calls := 0
	handler := Idempotency(newMemoryKeyStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		req := checkoutRequest("shared", `{}`)
		req = req.WithContext(WithIdentity(req.Context(), uuid.New(), enums.RoleCustomer))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected one execution per user, got %d", calls)
	}
}
