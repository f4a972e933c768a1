package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubUsers struct {
	users.Service
	byID map[uuid.UUID]*models.User
}

func (s stubUsers) FindActive(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := s.byID[id]; ok && u.IsActive {
		return u, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user no longer exists")
}

type stubProducts struct {
	products.Service
	staffSeen *bool
}

func (s stubProducts) GetBySlug(_ context.Context, slug string, staff bool) (*products.ProductDTO, error) {
	*s.staffSeen = staff
	return &products.ProductDTO{Slug: slug}, nil
}

type stubCoupons struct {
	coupons.Service
}

func (stubCoupons) List(context.Context) ([]coupons.CouponDTO, error) {
	return []coupons.CouponDTO{}, nil
}

type stubOrders struct {
	orders.Service
	created *int
}

func (s stubOrders) CreateFromCart(_ context.Context, userID uuid.UUID, _ orders.CreateOrderInput) (*orders.OrderDTO, error) {
	*s.created++
	return &orders.OrderDTO{ID: uuid.New(), UserID: userID}, nil
}

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key], _ = value.(string)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

type harness struct {
	handler   http.Handler
	cfg       *config.Config
	customer  *models.User
	admin     *models.User
	moderator *models.User
	staffSeen bool
	created   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cfg: &config.Config{
			App:      config.AppConfig{Env: "test", Port: "0"},
			JWT:      config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 60},
			Checkout: config.CheckoutConfig{OrderIdempotencyTTL: time.Hour},
		},
		customer:  &models.User{ID: uuid.New(), Role: enums.RoleCustomer, IsActive: true},
		admin:     &models.User{ID: uuid.New(), Role: enums.RoleAdmin, IsActive: true},
		moderator: &models.User{ID: uuid.New(), Role: enums.RoleModerator, IsActive: true},
	}
	reg := prometheus.NewRegistry()
	h.handler = NewRouter(Dependencies{
		Config:      h.cfg,
		Logger:      logger.Nop(),
		DB:          stubPinger{},
		Cache:       stubPinger{err: errors.New("down")},
		Idempotency: &memoryStore{data: map[string]string{}},
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Gatherer:    reg,
		Users: stubUsers{byID: map[uuid.UUID]*models.User{
			h.customer.ID:  h.customer,
			h.admin.ID:     h.admin,
			h.moderator.ID: h.moderator,
		}},
		Products: stubProducts{staffSeen: &h.staffSeen},
		Coupons:  stubCoupons{},
		Orders:   stubOrders{created: &h.created},
	})
	return h
}

func (h *harness) token(t *testing.T, u *models.User) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(h.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: u.ID, Role: u.Role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (h *harness) do(method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)

	if rec := h.do(http.MethodGet, "/health", "", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected live 200 got %d", rec.Code)
	}
	rec := h.do(http.MethodGet, "/health/ready", "", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected ready to fail when redis is down, got %d", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error.Code != string(pkgerrors.CodeDependency) {
		t.Fatalf("unexpected readiness body %s", rec.Body.String())
	}
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/health", "", "", nil)

	rec := h.do(http.MethodGet, "/metrics", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/health") {
		t.Fatalf("expected route label in exposition:\n%s", rec.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/cart", "/api/orders", "/api/auth/profile", "/api/coupons"} {
		if rec := h.do(http.MethodGet, path, "", "", nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, rec.Code)
		}
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	h := newHarness(t)

	if rec := h.do(http.MethodGet, "/api/coupons", h.token(t, h.customer), "", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("customer: expected 403 got %d", rec.Code)
	}
	if rec := h.do(http.MethodGet, "/api/coupons", h.token(t, h.moderator), "", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("moderator: expected 403 got %d", rec.Code)
	}
	if rec := h.do(http.MethodGet, "/api/coupons", h.token(t, h.admin), "", nil); rec.Code != http.StatusOK {
		t.Fatalf("admin: expected 200 got %d", rec.Code)
	}
	if rec := h.do(http.MethodGet, "/api/orders/admin/all", h.token(t, h.customer), "", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("admin order list: expected 403 got %d", rec.Code)
	}
}

func TestProductCreateAllowsModeratorButNotCustomer(t *testing.T) {
	h := newHarness(t)
	if rec := h.do(http.MethodPost, "/api/products", h.token(t, h.customer), `{}`, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("customer: expected 403 got %d", rec.Code)
	}
	// The moderator passes the role gate and fails body validation instead.
	if rec := h.do(http.MethodPost, "/api/products", h.token(t, h.moderator), `{}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("moderator: expected 400 got %d", rec.Code)
	}
}

func TestProductDetailPassesStaffFlag(t *testing.T) {
	h := newHarness(t)

	if rec := h.do(http.MethodGet, "/api/products/desk-lamp", "", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("anonymous: expected 200 got %d", rec.Code)
	}
	if h.staffSeen {
		t.Fatal("anonymous request must not be treated as staff")
	}

	h.do(http.MethodGet, "/api/products/desk-lamp", h.token(t, h.moderator), "", nil)
	if !h.staffSeen {
		t.Fatal("moderator should see unpublished products")
	}
}

func TestCheckoutRequiresAndHonoursIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, h.customer)

	if rec := h.do(http.MethodPost, "/api/orders", token, `{}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing key: expected 400 got %d", rec.Code)
	}

	headers := map[string]string{"Idempotency-Key": "checkout-1"}
	first := h.do(http.MethodPost, "/api/orders", token, `{}`, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", first.Code, first.Body.String())
	}
	second := h.do(http.MethodPost, "/api/orders", token, `{}`, headers)
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("expected replayed response, got %d %s", second.Code, second.Body.String())
	}
	if h.created != 1 {
		t.Fatalf("expected a single order, got %d", h.created)
	}
}
