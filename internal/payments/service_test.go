package payments

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"github.com/angelmondragon/storefront-backend/pkg/square"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const webhookSecret = "whsec_test"

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (g *memoryGuard) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] {
		return false, nil
	}
	g.keys[key] = true
	return true, nil
}

func (g *memoryGuard) Del(_ context.Context, keys ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range keys {
		delete(g.keys, key)
	}
	return nil
}

type stubSquare struct {
	status string
}

func (s stubSquare) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*square.PaymentResult, error) {
	return &square.PaymentResult{ID: "sq_" + params.ReferenceID, Status: s.status}, nil
}

func (s stubSquare) RefundPayment(_ context.Context, params square.RefundParams) (*square.RefundResult, error) {
	return &square.RefundResult{ID: "sqr_" + params.PaymentID, Status: "PENDING"}, nil
}

type testEnv struct {
	client *db.Client
	svc    Service
	impl   *service
	guard  *memoryGuard
}

func newTestEnv(t *testing.T, sq SquarePayments) testEnv {
	t.Helper()
	client := dbtest.Open(t)
	guard := &memoryGuard{keys: map[string]bool{}}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(client.DB()),
		Orders:   orders.NewRepository(client.DB()),
		Tx:       client,
		Outbox:   outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop()),
		Gateways: NewGateways(sq),
		Guard:    guard,
		Config:   config.PaymentsConfig{DefaultGateway: "stripe", WebhookSecret: webhookSecret, WebhookTTL: time.Hour},
	})
	require.NoError(t, err)
	return testEnv{client: client, svc: svc, impl: svc.(*service), guard: guard}
}

func (e testEnv) seedOrder(t *testing.T, stock, qty int) (*models.Order, *models.Product) {
	t.Helper()
	user := &models.User{Email: uuid.NewString() + "@example.com", PasswordHash: "x", Role: enums.RoleCustomer, IsActive: true}
	require.NoError(t, e.client.DB().Create(user).Error)
	product := &models.Product{
		Name:          "Kettle",
		Slug:          uuid.NewString(),
		Description:   "Steel",
		Price:         decimal.RequireFromString("25.00"),
		SKU:           uuid.NewString(),
		Stock:         stock,
		TrackQuantity: true,
		Status:        enums.ProductStatusActive,
		IsPublished:   true,
		Images:        types.ProductImages{{URL: "https://cdn.example.com/kettle.jpg", IsPrimary: true}},
	}
	require.NoError(t, e.client.DB().Create(product).Error)
	total := product.Price.Mul(decimal.NewFromInt(int64(qty)))
	order := &models.Order{
		OrderNumber:    "ORD-" + uuid.NewString()[:8],
		UserID:         user.ID,
		Subtotal:       total,
		TotalAmount:    total,
		Currency:       "USD",
		ShippingMethod: enums.ShippingMethodStandard,
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
		Items: []models.OrderItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			SKU:         product.SKU,
			Quantity:    qty,
			UnitPrice:   product.Price,
		}},
	}
	require.NoError(t, e.client.DB().Create(order).Error)
	return order, product
}

func (e testEnv) order(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := orders.NewRepository(e.client.DB()).FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (e testEnv) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, e.client.DB().First(&p, "id = ?", productID).Error)
	return p.Stock
}

func owner(order *models.Order) orders.Actor {
	return orders.Actor{UserID: order.UserID, Role: enums.RoleCustomer}
}

func webhookBody(t *testing.T, eventType, id string) []byte {
	t.Helper()
	var event WebhookEvent
	event.Type = eventType
	event.Data.Object.ID = id
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func TestProcessSettlesAndReserves(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, product := env.seedOrder(t, 5, 2)

	result, err := env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "card", SourceID: "tok_visa"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentRecordCompleted, result.Payment.Status)
	assert.Equal(t, enums.GatewayStripe, result.Payment.Gateway)
	assert.Equal(t, enums.PaymentStatusPaid, result.Order.PaymentStatus)
	assert.Equal(t, enums.OrderStatusConfirmed, result.Order.Status)
	assert.True(t, result.Order.StockReserved)
	require.NotNil(t, result.Order.PaidAt)
	require.NotNil(t, result.Order.PaymentID)
	assert.Equal(t, *result.Payment.GatewayPaymentID, *result.Order.PaymentID)
	assert.Equal(t, 3, env.stock(t, product.ID))

	var paid int64
	require.NoError(t, env.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderPaid).Count(&paid).Error)
	assert.EqualValues(t, 1, paid)

	_, err = env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "card"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeAlreadyPaid))
	assert.Equal(t, 3, env.stock(t, product.ID))
}

func TestProcessRejectsForeignAndClosedOrders(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, _ := env.seedOrder(t, 5, 1)

	_, err := env.svc.Process(ctx, orders.Actor{UserID: uuid.New()}, ProcessInput{OrderID: order.ID, Method: "card"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "card", Gateway: enums.GatewaySquare})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "square is not configured")

	require.NoError(t, env.client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusCancelled).Error)
	_, err = env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "card"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
}

func TestProcessDeclinedThenRetried(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, product := env.seedOrder(t, 5, 1)

	_, err := env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "card", Gateway: enums.GatewayPayPal, SourceID: DeclinedSourceID})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePaymentFailed))
	stored := env.order(t, order.ID)
	assert.Equal(t, enums.PaymentStatusFailed, stored.PaymentStatus)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	assert.Equal(t, 5, env.stock(t, product.ID))

	list, err := env.svc.ListForOrder(ctx, owner(order), order.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, enums.PaymentRecordFailed, list[0].Status)

	result, err := env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "card", Gateway: enums.GatewayPayPal})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, result.Order.PaymentStatus)
	assert.Equal(t, 4, env.stock(t, product.ID))
}

func TestProcessStockShortageAfterCharge(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, product := env.seedOrder(t, 1, 2)

	_, err := env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "card"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock))

	stored := env.order(t, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.False(t, stored.StockReserved)
	assert.Equal(t, 1, env.stock(t, product.ID))

	list, err := env.svc.ListForOrder(ctx, owner(order), order.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, enums.PaymentRecordCancelled, list[0].Status)
	require.NotNil(t, list[0].FailureReason)
}

func TestTransferSettledOnceByWebhook(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, product := env.seedOrder(t, 3, 1)

	result, err := env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "bank", Gateway: enums.GatewayTransfer})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentRecordPending, result.Payment.Status)
	assert.Equal(t, enums.PaymentStatusPending, result.Order.PaymentStatus)
	require.NotNil(t, result.Order.PaymentID)
	assert.Equal(t, 3, env.stock(t, product.ID))

	body := webhookBody(t, WebhookPaymentSucceeded, *result.Order.PaymentID)
	signature := security.SignPayload(webhookSecret, body)

	err = env.svc.HandleWebhook(ctx, body, "bad")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.svc.HandleWebhook(ctx, body, signature))
		}()
	}
	wg.Wait()

	// bypass the redis guard; the database check alone must hold
	env.guard.keys = map[string]bool{}
	require.NoError(t, env.svc.HandleWebhook(ctx, body, signature))

	stored := env.order(t, order.ID)
	assert.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, enums.OrderStatusConfirmed, stored.Status)
	assert.Equal(t, 2, env.stock(t, product.ID))

	list, err := env.svc.ListForOrder(ctx, owner(order), order.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, enums.PaymentRecordCompleted, list[0].Status)

	failed := webhookBody(t, WebhookPaymentFailed, *result.Order.PaymentID)
	require.NoError(t, env.svc.HandleWebhook(ctx, failed, security.SignPayload(webhookSecret, failed)))
	assert.Equal(t, enums.PaymentStatusPaid, env.order(t, order.ID).PaymentStatus, "failure never downgrades a paid order")
}

func TestWebhookAfterCancelDoesNotReserve(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, product := env.seedOrder(t, 5, 2)

	result, err := env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "bank", Gateway: enums.GatewayTransfer})
	require.NoError(t, err)
	require.NotNil(t, result.Order.PaymentID)
	require.NoError(t, env.client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusCancelled).Error)

	body := webhookBody(t, WebhookPaymentSucceeded, *result.Order.PaymentID)
	require.NoError(t, env.svc.HandleWebhook(ctx, body, security.SignPayload(webhookSecret, body)))

	stored := env.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.False(t, stored.StockReserved)
	assert.Equal(t, 5, env.stock(t, product.ID))

	list, err := env.svc.ListForOrder(ctx, owner(order), order.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, enums.PaymentRecordCancelled, list[0].Status)
	require.NotNil(t, list[0].FailureReason)
	assert.Contains(t, *list[0].FailureReason, "order closed")
}

func TestSettleRechecksOrderStatusUnderLock(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, product := env.seedOrder(t, 5, 1)

	stale := env.order(t, order.ID)
	require.NoError(t, env.client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusCancelled).Error)

	payment := &models.Payment{
		OrderID:  order.ID,
		UserID:   order.UserID,
		Gateway:  enums.GatewayStripe,
		Method:   "card",
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Refunds:  types.Refunds{},
	}
	err := env.impl.settle(ctx, stale, payment, nil)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, enums.PaymentRecordCancelled, payment.Status)

	stored := env.order(t, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.False(t, stored.StockReserved)
	assert.Equal(t, 5, env.stock(t, product.ID))
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, body := range [][]byte{
		webhookBody(t, WebhookPaymentSucceeded, "pi_unknown"),
		webhookBody(t, "charge.dispute.created", "pi_unknown"),
	} {
		assert.NoError(t, env.svc.HandleWebhook(ctx, body, security.SignPayload(webhookSecret, body)))
	}
}

func TestWebhookFailureMarksPendingOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, _ := env.seedOrder(t, 3, 1)

	result, err := env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "bank", Gateway: enums.GatewayTransfer})
	require.NoError(t, err)

	body := webhookBody(t, WebhookPaymentFailed, *result.Order.PaymentID)
	require.NoError(t, env.svc.HandleWebhook(ctx, body, security.SignPayload(webhookSecret, body)))

	assert.Equal(t, enums.PaymentStatusFailed, env.order(t, order.ID).PaymentStatus)
	list, err := env.svc.ListForOrder(ctx, owner(order), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentRecordFailed, list[0].Status)
}

func TestRefundPartialThenFull(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	admin := orders.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	order, product := env.seedOrder(t, 5, 2)

	result, err := env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, 3, env.stock(t, product.ID))

	tooMuch := decimal.RequireFromString("60.00")
	_, err = env.svc.Refund(ctx, admin, result.Payment.ID, RefundInput{Amount: &tooMuch})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	partial := decimal.RequireFromString("10.00")
	refunded, err := env.svc.Refund(ctx, admin, result.Payment.ID, RefundInput{Amount: &partial, Reason: "scratched"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentRecordCompleted, refunded.Status)
	require.Len(t, refunded.Refunds, 1)
	assert.Equal(t, "10", refunded.RefundedAmount.String())
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, env.order(t, order.ID).PaymentStatus)

	refunded, err = env.svc.Refund(ctx, admin, result.Payment.ID, RefundInput{Reason: "returned"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentRecordRefunded, refunded.Status)
	assert.Len(t, refunded.Refunds, 2)
	assert.Equal(t, "50", refunded.RefundedAmount.String())

	stored := env.order(t, order.ID)
	assert.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	assert.Equal(t, enums.OrderStatusRefunded, stored.Status)
	assert.Equal(t, 5, env.stock(t, product.ID), "unshipped goods return to stock")

	_, err = env.svc.Refund(ctx, admin, result.Payment.ID, RefundInput{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	_, err = env.svc.Refund(ctx, admin, uuid.New(), RefundInput{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestSquareGateway(t *testing.T) {
	env := newTestEnv(t, stubSquare{status: "COMPLETED"})
	ctx := context.Background()
	order, _ := env.seedOrder(t, 2, 1)

	result, err := env.svc.Process(ctx, owner(order), ProcessInput{OrderID: order.ID, Method: "card", Gateway: enums.GatewaySquare, SourceID: "cnon:card-nonce-ok"})
	require.NoError(t, err)
	assert.Equal(t, enums.GatewaySquare, result.Payment.Gateway)
	assert.Equal(t, "sq_"+order.ID.String(), *result.Payment.GatewayPaymentID)
	assert.Equal(t, enums.PaymentStatusPaid, result.Order.PaymentStatus)

	admin := orders.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	refunded, err := env.svc.Refund(ctx, admin, result.Payment.ID, RefundInput{})
	require.NoError(t, err)
	assert.Equal(t, "sqr_sq_"+order.ID.String(), refunded.Refunds[0].GatewayRefundID)
}

func TestSquareFailedPayment(t *testing.T) {
	env := newTestEnv(t, stubSquare{status: "FAILED"})
	order, _ := env.seedOrder(t, 2, 1)

	_, err := env.svc.Process(context.Background(), owner(order), ProcessInput{OrderID: order.ID, Method: "card", Gateway: enums.GatewaySquare})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePaymentFailed))
}
