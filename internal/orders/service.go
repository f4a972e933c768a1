package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const expireBatchSize = 100

// Actor is the authenticated caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

func (a Actor) isAdmin() bool { return a.Role == enums.RoleAdmin }

// Ref returns the outbox actor, or nil for system actions.
func (a Actor) Ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// Service converts carts into orders and drives their lifecycle.
type Service interface {
	CreateFromCart(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*OrderDTO, error)
	ListForUser(ctx context.Context, userID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*OrderListResult, error)
	GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error)
	AdminList(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderListResult, error)
	UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, input UpdateStatusInput) (*OrderDTO, error)
	// ExpireStale cancels pending unpaid orders created before cutoff and
	// returns how many were cancelled.
	ExpireStale(ctx context.Context, cutoff time.Time) (int, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ServiceParams bundles the order dependencies.
type ServiceParams struct {
	Repo     *Repository
	Carts    *cart.Repository
	Users    userLookup
	Tx       db.TxRunner
	Outbox   outbox.Emitter
	Checkout config.CheckoutConfig
	Metrics  *metrics.CommerceMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     *Repository
	carts    *cart.Repository
	users    userLookup
	tx       db.TxRunner
	outbox   outbox.Emitter
	checkout config.CheckoutConfig
	metrics  *metrics.CommerceMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repo,
		carts:    params.Carts,
		users:    params.Users,
		tx:       params.Tx,
		outbox:   params.Outbox,
		checkout: params.Checkout,
		metrics:  params.Metrics,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) CreateFromCart(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*OrderDTO, error) {
	c, err := s.carts.FindByUser(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if c == nil || len(c.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	items := make([]models.OrderItem, 0, len(c.Items))
	for i, line := range c.Items {
		if line.Product == nil || !line.Product.IsAvailable() {
			return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "a product in the cart is no longer available").
				WithDetails(map[string]string{"productId": line.ProductID.String()})
		}
		items = append(items, models.OrderItem{
			ProductID:    line.ProductID,
			ProductName:  line.Product.Name,
			ProductImage: line.Product.Images.FirstURL(),
			SKU:          line.Product.SKU,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			Attributes:   line.Attributes,
			Position:     i,
		})
	}

	shipping := c.ShippingAddress
	if input.ShippingAddress != nil && !input.ShippingAddress.IsZero() {
		shipping = *input.ShippingAddress
	}
	if shipping.IsZero() && c.ShippingMethod != enums.ShippingMethodPickup {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required").
			WithDetails(map[string]string{"shippingAddress": "required"})
	}
	billing := shipping
	if input.BillingAddress != nil {
		billing = input.BillingAddress.OrFallback(shipping)
	}

	totals := cart.ComputeTotals(c)
	order := &models.Order{
		OrderNumber: s.orderNumber(),
		UserID:      userID,
		Customer: types.CustomerInfo{
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		},
		Items:           items,
		Subtotal:        totals.Subtotal,
		ShippingCost:    totals.ShippingCost,
		TaxAmount:       totals.Tax,
		DiscountAmount:  totals.Discount,
		TotalAmount:     totals.Total,
		Currency:        strings.ToUpper(s.checkout.Currency),
		ShippingAddress: shipping,
		BillingAddress:  billing,
		ShippingMethod:  c.ShippingMethod,
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusPending,
		CustomerNotes:   trimmedPtr(input.Notes),
	}
	if user.Phone != nil {
		order.Customer.Phone = *user.Phone
	}
	if c.CouponCode != nil && c.CouponType != nil && totals.Discount.IsPositive() {
		order.Coupon = types.CouponSnapshot{Code: *c.CouponCode, Type: string(*c.CouponType), Amount: c.CouponValue.Decimal}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "ux_orders_order_number") {
				return pkgerrors.New(pkgerrors.CodeConflict, "order number collision, retry")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if err := s.carts.WithTx(tx).Clear(ctx, c.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: string(user.Role)},
			Data: outbox.OrderCreated{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      userID,
				TotalAmount: order.TotalAmount,
				Currency:    order.Currency,
				ItemCount:   totals.ItemCount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncOrderCreated()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
	}), "order created")
	return s.load(ctx, order.ID)
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*OrderListResult, error) {
	params = params.Normalize(ownerDefaultLimit)
	return s.list(ctx, ListFilters{UserID: &userID, Status: status}, params)
}

func (s *service) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	dto := FromModel(order)
	return &dto, nil
}

func (s *service) AdminList(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderListResult, error) {
	params = params.Normalize(adminDefaultLimit)
	return s.list(ctx, filters, params)
}

func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID && !actor.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.cancelTx(ctx, tx, order, cancellation{actor: actor.Ref(), event: enums.EventOrderCancelled, reason: "cancelled"})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncOrderStatus(string(enums.OrderStatusCancelled))
	return s.load(ctx, order.ID)
}

// cancellation describes why and by whom an order is being cancelled.
type cancellation struct {
	actor  *outbox.ActorRef
	event  enums.OutboxEventType
	reason string
	// unpaidOnly limits the cancel to pending orders that never settled.
	unpaidOnly bool
}

// cancelTx cancels order inside tx. The row is re-read under lock so stock is
// restored from the reservation state that actually committed; order is
// refreshed in place.
func (s *service) cancelTx(ctx context.Context, tx *gorm.DB, order *models.Order, c cancellation) error {
	repo := s.repo.WithTx(tx)
	fresh, err := repo.LockByID(ctx, order.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
	}
	*order = *fresh

	from := []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusConfirmed}
	if c.unpaidOnly {
		from = from[:1]
		if order.PaymentStatus == enums.PaymentStatusPaid {
			return stateError(order.Status, enums.OrderStatusCancelled)
		}
	}
	if !order.Status.IsCancellable() {
		return stateError(order.Status, enums.OrderStatusCancelled)
	}
	now := s.now()
	changed, err := repo.TransitionStatus(ctx, order.ID, from,
		map[string]any{"status": enums.OrderStatusCancelled, "cancelled_at": now})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
	}
	if !changed {
		return stateError(order.Status, enums.OrderStatusCancelled)
	}

	restored := order.StockReserved
	if err := RestoreStock(ctx, tx, order); err != nil {
		return err
	}
	order.Status = enums.OrderStatusCancelled
	order.CancelledAt = &now

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     c.event,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         c.actor,
		OccurredAt:    now,
		Data: outbox.OrderCancelled{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			Reason:        c.reason,
			StockRestored: restored,
		},
	})
}

var adminTargets = map[enums.OrderStatus]bool{
	enums.OrderStatusProcessing: true,
	enums.OrderStatusShipped:    true,
	enums.OrderStatusDelivered:  true,
	enums.OrderStatusCancelled:  true,
}

func (s *service) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, input UpdateStatusInput) (*OrderDTO, error) {
	if input.Status != nil && !adminTargets[*input.Status] {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be processing, shipped, delivered or cancelled").
			WithDetails(map[string]string{"status": "invalid"})
	}
	order, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if input.Status != nil && *input.Status == enums.OrderStatusCancelled {
			if err := s.cancelTx(ctx, tx, order, cancellation{actor: actor.Ref(), event: enums.EventOrderCancelled, reason: "cancelled by admin"}); err != nil {
				return err
			}
		} else if input.Status != nil && *input.Status != order.Status {
			from := order.Status
			if !from.CanTransitionTo(*input.Status) {
				return stateError(from, *input.Status)
			}
			changed, err := repo.TransitionStatus(ctx, order.ID, []enums.OrderStatus{from},
				map[string]any{"status": *input.Status})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
			}
			if !changed {
				return stateError(from, *input.Status)
			}
			order.Status = *input.Status
			tracking := ""
			if input.TrackingNumber != nil {
				tracking = strings.TrimSpace(*input.TrackingNumber)
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderStatusChanged,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actor.Ref(),
				Data: outbox.OrderStatusChanged{
					OrderID:        order.ID,
					OrderNumber:    order.OrderNumber,
					From:           string(from),
					To:             string(*input.Status),
					TrackingNumber: tracking,
				},
			}); err != nil {
				return err
			}
		}

		updates := map[string]any{}
		if input.TrackingNumber != nil {
			updates["tracking_number"] = trimmedPtr(input.TrackingNumber)
		}
		if input.AdminNotes != nil {
			updates["admin_notes"] = trimmedPtr(input.AdminNotes)
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if input.Status != nil {
		s.metrics.IncOrderStatus(string(*input.Status))
	}
	return s.load(ctx, order.ID)
}

func (s *service) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.repo.FindStalePending(ctx, cutoff, expireBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find stale orders")
	}
	var (
		expired int
		errs    error
	)
	for i := range stale {
		order := &stale[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.cancelTx(ctx, tx, order, cancellation{event: enums.EventOrderExpired, reason: "expired unpaid", unpaidOnly: true})
		})
		if err != nil {
			// settled or moved on since the scan
			if pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
		s.metrics.IncOrderStatus(string(enums.OrderStatusCancelled))
	}
	return expired, errs
}

func (s *service) list(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderListResult, error) {
	list, total, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	page := pagination.NewPage(fromModels(list), params, total)
	return &page, nil
}

func (s *service) find(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	dto := FromModel(order)
	return &dto, nil
}

func (s *service) orderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("ORD-%d-%s", s.now().UnixMilli(), suffix)
}

func stateError(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]string{"from": string(from), "to": string(to)})
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
