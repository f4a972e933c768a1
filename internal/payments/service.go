package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Service settles orders, records payment attempts and issues refunds.
type Service interface {
	Process(ctx context.Context, actor orders.Actor, input ProcessInput) (*ProcessResult, error)
	// HandleWebhook verifies and applies a gateway notification. Unknown
	// event types and unknown payment ids are acknowledged without effect.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	Refund(ctx context.Context, actor orders.Actor, paymentID uuid.UUID, input RefundInput) (*PaymentDTO, error)
	ListForOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) ([]PaymentDTO, error)
}

// WebhookGuard short-circuits redelivered webhooks.
type WebhookGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// ServiceParams bundles the payment dependencies.
type ServiceParams struct {
	Repo     *Repository
	Orders   *orders.Repository
	Tx       db.TxRunner
	Outbox   outbox.Emitter
	Gateways Gateways
	Guard    WebhookGuard
	Config   config.PaymentsConfig
	Metrics  *metrics.CommerceMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     *Repository
	orders   *orders.Repository
	tx       db.TxRunner
	outbox   outbox.Emitter
	gateways Gateways
	guard    WebhookGuard
	cfg      config.PaymentsConfig
	metrics  *metrics.CommerceMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if len(params.Gateways) == 0 {
		return nil, fmt.Errorf("at least one payment gateway required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		tx:       params.Tx,
		outbox:   params.Outbox,
		gateways: params.Gateways,
		guard:    params.Guard,
		cfg:      params.Config,
		metrics:  params.Metrics,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) Process(ctx context.Context, actor orders.Actor, input ProcessInput) (*ProcessResult, error) {
	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err := payable(order); err != nil {
		return nil, err
	}

	gatewayName := input.Gateway
	if gatewayName == "" {
		gatewayName = enums.PaymentGateway(strings.ToLower(strings.TrimSpace(s.cfg.DefaultGateway)))
	}
	gateway, ok := s.gateways.lookup(gatewayName)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment gateway is not available").
			WithDetails(map[string]string{"paymentGateway": string(gatewayName)})
	}

	payment := &models.Payment{
		OrderID:  order.ID,
		UserID:   order.UserID,
		Gateway:  gateway.Name(),
		Method:   strings.TrimSpace(input.Method),
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Refunds:  types.Refunds{},
	}

	charge, err := gateway.Charge(ctx, ChargeRequest{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		SourceID:       input.SourceID,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "order_id", order.ID.String()), "gateway charge failed", err)
		charge = &ChargeResult{Status: enums.PaymentRecordFailed, FailureReason: chargeFailureReason(err)}
	}
	if charge.GatewayPaymentID != "" {
		id := charge.GatewayPaymentID
		payment.GatewayPaymentID = &id
	}
	payment.GatewayResponse = types.JSONMap(charge.Raw)

	switch charge.Status {
	case enums.PaymentRecordCompleted:
		if err := s.settle(ctx, order, payment, actor.Ref()); err != nil {
			return nil, err
		}
	case enums.PaymentRecordPending:
		if err := s.recordPending(ctx, order, payment); err != nil {
			return nil, err
		}
	default:
		if err := s.recordFailure(ctx, order, payment, charge.FailureReason, actor.Ref()); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "payment failed").
			WithDetails(map[string]string{"reason": charge.FailureReason})
	}
	s.metrics.IncPayment(string(payment.Gateway), string(payment.Status))

	dto, err := s.orderDTO(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &ProcessResult{Order: dto, Payment: FromModel(payment)}, nil
}

// settle marks the order paid, reserves its stock and records payment as
// completed in one transaction. The order row is locked and re-checked first,
// and the conditional paid flip means only one of several concurrent
// settlements reaches Reserve. A charge that lands on a closed order or runs
// out of stock is recorded as cancelled.
func (s *service) settle(ctx context.Context, order *models.Order, payment *models.Payment, actor *outbox.ActorRef) error {
	isNew := payment.ID == uuid.Nil
	now := s.now()
	gatewayPaymentID := ""
	if payment.GatewayPaymentID != nil {
		gatewayPaymentID = *payment.GatewayPaymentID
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		fresh, err := orderRepo.LockByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}
		*order = *fresh
		if err := payable(order); err != nil {
			return err
		}
		won, err := orderRepo.MarkPaid(ctx, order.ID, map[string]any{
			"paid_at":         now,
			"payment_method":  payment.Method,
			"payment_gateway": payment.Gateway,
			"payment_id":      gatewayPaymentID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already paid")
		}
		if err := orders.Reserve(ctx, tx, order); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		payment.Status = enums.PaymentRecordCompleted
		if isNew {
			if err := repo.Create(ctx, payment); err != nil {
				return mapPaymentWriteError(err)
			}
		} else if err := repo.Update(ctx, payment.ID, map[string]any{
			"status":         enums.PaymentRecordCompleted,
			"failure_reason": nil,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete payment")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: outbox.OrderPaid{
				OrderID:          order.ID,
				OrderNumber:      order.OrderNumber,
				PaymentID:        payment.ID,
				Gateway:          string(payment.Gateway),
				GatewayPaymentID: gatewayPaymentID,
				Amount:           payment.Amount,
				PaidAt:           now,
			},
		})
	})
	if err == nil {
		s.metrics.IncOrderStatus(string(enums.OrderStatusConfirmed))
		return nil
	}
	var reason string
	switch {
	case pkgerrors.Is(err, pkgerrors.CodeInsufficientStock):
		s.metrics.IncStockConflict()
		reason = "insufficient stock: " + pkgerrors.As(err).Message()
	case pkgerrors.Is(err, pkgerrors.CodeStateConflict):
		reason = "order closed before settlement: " + string(order.Status)
	default:
		return err
	}

	// The charge went through but the order cannot take it; keep an
	// auditable record for the refund follow-up.
	payment.Status = enums.PaymentRecordCancelled
	payment.FailureReason = &reason
	var recordErr error
	if isNew {
		recordErr = s.repo.Create(ctx, payment)
	} else {
		recordErr = s.repo.Update(ctx, payment.ID, map[string]any{
			"status":         enums.PaymentRecordCancelled,
			"failure_reason": reason,
		})
	}
	if recordErr != nil {
		s.logg.Error(s.logg.WithField(ctx, "order_id", order.ID.String()), "record cancelled payment", recordErr)
	}
	s.metrics.IncPayment(string(payment.Gateway), string(payment.Status))
	return err
}

// payable rejects settlement of an order that is already paid or has left
// pending/confirmed.
func payable(order *models.Order) error {
	switch {
	case order.PaymentStatus == enums.PaymentStatusPaid:
		return pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already paid")
	case order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusConfirmed:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be paid").
			WithDetails(map[string]string{"status": string(order.Status)})
	}
	return nil
}

func (s *service) recordPending(ctx context.Context, order *models.Order, payment *models.Payment) error {
	payment.Status = enums.PaymentRecordPending
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
			return mapPaymentWriteError(err)
		}
		updates := map[string]any{
			"payment_method":  payment.Method,
			"payment_gateway": payment.Gateway,
		}
		if payment.GatewayPaymentID != nil {
			updates["payment_id"] = *payment.GatewayPaymentID
		}
		if err := s.orders.WithTx(tx).Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach pending payment")
		}
		return nil
	})
}

func (s *service) recordFailure(ctx context.Context, order *models.Order, payment *models.Payment, reason string, actor *outbox.ActorRef) error {
	if reason == "" {
		reason = "payment declined"
	}
	payment.Status = enums.PaymentRecordFailed
	payment.FailureReason = &reason
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
			return mapPaymentWriteError(err)
		}
		return s.markOrderFailed(ctx, tx, order.ID, payment, reason, actor)
	})
	s.metrics.IncPayment(string(payment.Gateway), string(payment.Status))
	return err
}

// markOrderFailed flags the order's payment as failed unless it already
// settled, then queues payment.failed.
func (s *service) markOrderFailed(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, payment *models.Payment, reason string, actor *outbox.ActorRef) error {
	res := tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status IN ?", orderID, []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed}).
		Update("payment_status", enums.PaymentStatusFailed)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "mark payment failed")
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         actor,
		Data: outbox.PaymentFailed{
			OrderID:   orderID,
			PaymentID: payment.ID,
			Gateway:   string(payment.Gateway),
			Reason:    reason,
		},
	})
}

func (s *service) Refund(ctx context.Context, actor orders.Actor, paymentID uuid.UUID, input RefundInput) (*PaymentDTO, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	amount, err := refundAmount(payment, input.Amount)
	if err != nil {
		return nil, err
	}
	gateway, ok := s.gateways.lookup(payment.Gateway)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "payment gateway is not available")
	}
	gatewayPaymentID := ""
	if payment.GatewayPaymentID != nil {
		gatewayPaymentID = *payment.GatewayPaymentID
	}
	refundID, err := gateway.Refund(ctx, RefundRequest{
		GatewayPaymentID: gatewayPaymentID,
		Amount:           amount,
		Currency:         payment.Currency,
		Reason:           input.Reason,
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway refund failed")
	}

	now := s.now()
	var full bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockByID(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock payment")
		}
		if _, err := refundAmount(locked, &amount); err != nil {
			return err
		}
		locked.Refunds = append(locked.Refunds, types.Refund{
			Amount:          amount,
			Reason:          strings.TrimSpace(input.Reason),
			GatewayRefundID: refundID,
			CreatedAt:       now,
		})
		full = locked.RefundableAmount().IsZero()
		updates := map[string]any{"refunds": locked.Refunds}
		if full {
			updates["status"] = enums.PaymentRecordRefunded
			locked.Status = enums.PaymentRecordRefunded
		}
		if err := repo.Update(ctx, locked.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund")
		}
		payment = locked

		if err := s.applyRefundToOrder(ctx, tx, payment.OrderID, full); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         actor.Ref(),
			OccurredAt:    now,
			Data: outbox.PaymentRefunded{
				OrderID:   payment.OrderID,
				PaymentID: payment.ID,
				Amount:    amount,
				Full:      full,
				Reason:    strings.TrimSpace(input.Reason),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncPayment(string(payment.Gateway), "refund")
	dto := FromModel(payment)
	return &dto, nil
}

func (s *service) applyRefundToOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, full bool) error {
	order, err := s.orders.WithTx(tx).LockByID(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !full {
		return s.orders.WithTx(tx).Update(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusPartiallyRefunded})
	}
	updates := map[string]any{"payment_status": enums.PaymentStatusRefunded}
	if order.Status.CanTransitionTo(enums.OrderStatusRefunded) {
		updates["status"] = enums.OrderStatusRefunded
		if !order.Status.HasShipped() {
			if err := orders.RestoreStock(ctx, tx, order); err != nil {
				return err
			}
		}
	}
	if err := s.orders.WithTx(tx).Update(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order refunded")
	}
	return nil
}

func (s *service) ListForOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) ([]PaymentDTO, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID && actor.Role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	list, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	out := make([]PaymentDTO, 0, len(list))
	for i := range list {
		out = append(out, FromModel(&list[i]))
	}
	return out, nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) orderDTO(ctx context.Context, orderID uuid.UUID) (*orders.OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	dto := orders.FromModel(order)
	return &dto, nil
}

// refundAmount resolves the requested refund against what is left.
func refundAmount(payment *models.Payment, requested *decimal.Decimal) (decimal.Decimal, error) {
	if payment.Status != enums.PaymentRecordCompleted {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeStateConflict, "only completed payments can be refunded").
			WithDetails(map[string]string{"status": string(payment.Status)})
	}
	remaining := payment.RefundableAmount()
	amount := remaining
	if requested != nil {
		amount = money.Round(*requested)
	}
	if !amount.IsPositive() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive").
			WithDetails(map[string]string{"amount": "must be positive"})
	}
	if amount.GreaterThan(remaining) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds the refundable balance").
			WithDetails(map[string]string{"amount": "max " + remaining.StringFixed(2)})
	}
	return amount, nil
}

func mapPaymentWriteError(err error) error {
	if db.IsUniqueViolation(err, "ux_payments_gateway_payment_id") {
		return pkgerrors.New(pkgerrors.CodeConflict, "gateway payment already recorded")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment")
}

func chargeFailureReason(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return "gateway error"
}
