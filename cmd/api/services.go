package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

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
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

type services struct {
	auth       auth.Service
	users      users.Service
	products   products.Service
	categories categories.Service
	reviews    reviews.Service
	cart       cart.Service
	coupons    coupons.Service
	orders     orders.Service
	payments   payments.Service
}

func buildServices(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*services, error) {
	conn := dbClient.DB()
	commerce := metrics.NewCommerceMetrics(reg)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	userRepo := users.NewRepository(conn)
	userService, err := users.NewService(userRepo, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("users service: %w", err)
	}
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	productRepo := products.NewRepository(conn)
	productService, err := products.NewService(productRepo, dbClient)
	if err != nil {
		return nil, fmt.Errorf("products service: %w", err)
	}
	categoryService, err := categories.NewService(categories.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("categories service: %w", err)
	}
	couponService, err := coupons.NewService(coupons.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("coupons service: %w", err)
	}

	cartRepo := cart.NewRepository(conn)
	cartService, err := cart.NewService(cart.ServiceParams{
		Repo:     cartRepo,
		Tx:       dbClient,
		Products: productRepo,
		Coupons:  couponService,
		Checkout: cfg.Checkout,
	})
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	orderRepo := orders.NewRepository(conn)
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     orderRepo,
		Carts:    cartRepo,
		Users:    userRepo,
		Tx:       dbClient,
		Outbox:   emitter,
		Checkout: cfg.Checkout,
		Metrics:  commerce,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	// A nil interface keeps the square gateway unregistered.
	var squarePayments payments.SquarePayments
	if cfg.Square.Enabled() {
		squareClient, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		squarePayments = squareClient
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:     payments.NewRepository(conn),
		Orders:   orderRepo,
		Tx:       dbClient,
		Outbox:   emitter,
		Gateways: payments.NewGateways(squarePayments),
		Guard:    redisClient,
		Config:   cfg.Payments,
		Metrics:  commerce,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	reviewService, err := reviews.NewService(reviews.ServiceParams{
		Repo:      reviews.NewRepository(conn),
		Products:  productRepo,
		Purchases: orderRepo,
		Tx:        dbClient,
		Outbox:    emitter,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("reviews service: %w", err)
	}

	return &services{
		auth:       authService,
		users:      userService,
		products:   productService,
		categories: categoryService,
		reviews:    reviewService,
		cart:       cartService,
		coupons:    couponService,
		orders:     orderService,
		payments:   paymentService,
	}, nil
}
