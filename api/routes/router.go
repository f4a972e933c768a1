package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/categories"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/reviews"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Dependencies carries everything the HTTP surface needs. Nil stores disable
// the feature they back.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	DB          controllers.Pinger
	Cache       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	AuthLimiter pkgredis.RateLimiter
	Limiter     *middleware.ClientLimiter
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer

	Auth       auth.Service
	Users      users.Service
	Products   products.Service
	Categories categories.Service
	Reviews    reviews.Service
	Cart       cart.Service
	Coupons    coupons.Service
	Orders     orders.Service
	Payments   payments.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	idempotent := middleware.Idempotency(deps.Idempotency, cfg.Checkout.OrderIdempotencyTTL, logg)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Cache))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	authenticate := middleware.Auth(cfg.JWT, deps.Users, logg)
	optionalAuth := middleware.OptionalAuth(cfg.JWT, deps.Users, logg)
	adminOnly := middleware.RequireRole(logg, enums.RoleAdmin)
	staffOnly := middleware.RequireRole(logg, enums.RoleAdmin, enums.RoleModerator)

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			r.Use(middleware.RateLimit(deps.Limiter, logg))
		}

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(registerPolicy, deps.AuthLimiter, logg)).Post("/register", controllers.AuthRegister(deps.Auth, logg))
			r.With(middleware.AuthRateLimit(loginPolicy, deps.AuthLimiter, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.With(authenticate).Get("/profile", controllers.ProfileGet(deps.Users, logg))
			r.With(authenticate).Put("/profile", controllers.ProfileUpdate(deps.Users, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(deps.Products, logg))
			r.Get("/featured", controllers.ProductFeatured(deps.Products, logg))
			r.Get("/search/{q}", controllers.ProductSearch(deps.Products, logg))
			r.Get("/{productId}/reviews", controllers.ReviewList(deps.Reviews, logg))
			r.With(optionalAuth).Get("/{slug}", controllers.ProductGet(deps.Products, logg))

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Post("/{productId}/reviews", controllers.ReviewCreate(deps.Reviews, logg))
				r.Put("/reviews/{id}", controllers.ReviewUpdate(deps.Reviews, logg))
				r.Delete("/reviews/{id}", controllers.ReviewDelete(deps.Reviews, logg))
				r.With(adminOnly).Put("/reviews/{id}/approval", controllers.ReviewApproval(deps.Reviews, logg))

				r.With(staffOnly).Post("/", controllers.ProductCreate(deps.Products, logg))
				r.With(staffOnly).Put("/{id}", controllers.ProductUpdate(deps.Products, logg))
				r.With(adminOnly).Delete("/{id}", controllers.ProductArchive(deps.Products, logg))
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", controllers.CategoryList(deps.Categories, logg))
			r.Get("/{slug}", controllers.CategoryGet(deps.Categories, logg))

			r.Group(func(r chi.Router) {
				r.Use(authenticate, adminOnly)
				r.Post("/", controllers.CategoryCreate(deps.Categories, logg))
				r.Put("/{id}", controllers.CategoryUpdate(deps.Categories, logg))
				r.Delete("/{id}", controllers.CategoryDelete(deps.Categories, logg))
			})
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/", controllers.CartGet(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
			r.Put("/items/{productId}", controllers.CartSetQuantity(deps.Cart, logg))
			r.Delete("/items/{productId}", controllers.CartRemoveItem(deps.Cart, logg))
			r.Post("/coupon", controllers.CartApplyCoupon(deps.Cart, logg))
			r.Delete("/coupon", controllers.CartRemoveCoupon(deps.Cart, logg))
			r.Put("/shipping", controllers.CartSetShipping(deps.Cart, logg))
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Use(authenticate, adminOnly)
			r.Get("/", controllers.CouponList(deps.Coupons, logg))
			r.Post("/", controllers.CouponCreate(deps.Coupons, logg))
			r.Delete("/{id}", controllers.CouponDeactivate(deps.Coupons, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(authenticate)
			r.With(idempotent).Post("/", controllers.OrderCreate(deps.Orders, logg))
			r.Get("/", controllers.OrderList(deps.Orders, logg))
			r.With(adminOnly).Get("/admin/all", controllers.AdminOrderList(deps.Orders, logg))
			r.With(adminOnly).Put("/admin/{id}", controllers.AdminOrderUpdate(deps.Orders, logg))
			r.Get("/{id}", controllers.OrderGet(deps.Orders, logg))
			r.Put("/{id}/cancel", controllers.OrderCancel(deps.Orders, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/webhook", controllers.PaymentWebhook(deps.Payments, logg))

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.With(idempotent).Post("/process", controllers.PaymentProcess(deps.Payments, logg))
				r.Get("/order/{orderId}", controllers.PaymentsForOrder(deps.Payments, logg))
				r.With(adminOnly).Post("/{id}/refund", controllers.PaymentRefund(deps.Payments, logg))
			})
		})
	})

	return r
}
