package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// PaymentDTO is the API view of a payment record.
type PaymentDTO struct {
	ID               uuid.UUID                 `json:"id"`
	OrderID          uuid.UUID                 `json:"orderId"`
	UserID           uuid.UUID                 `json:"userId"`
	Gateway          enums.PaymentGateway      `json:"paymentGateway"`
	Method           string                    `json:"paymentMethod"`
	GatewayPaymentID *string                   `json:"gatewayPaymentId,omitempty"`
	Amount           decimal.Decimal           `json:"amount"`
	Currency         string                    `json:"currency"`
	Status           enums.PaymentRecordStatus `json:"status"`
	Refunds          types.Refunds             `json:"refunds"`
	RefundedAmount   decimal.Decimal           `json:"refundedAmount"`
	FailureReason    *string                   `json:"failureReason,omitempty"`
	CreatedAt        time.Time                 `json:"createdAt"`
	UpdatedAt        time.Time                 `json:"updatedAt"`
}

// ProcessInput asks to settle an order through a gateway.
type ProcessInput struct {
	OrderID  uuid.UUID            `json:"orderId" validate:"required"`
	Method   string               `json:"paymentMethod" validate:"required,max=50"`
	Gateway  enums.PaymentGateway `json:"paymentGateway"`
	SourceID string               `json:"sourceId" validate:"omitempty,max=255"`
	// IdempotencyKey is forwarded to gateways that support it.
	IdempotencyKey string `json:"-"`
}

// ProcessResult pairs the updated order with the recorded payment.
type ProcessResult struct {
	Order   *orders.OrderDTO `json:"order"`
	Payment PaymentDTO       `json:"payment"`
}

// RefundInput refunds amount, or the remaining balance when nil.
type RefundInput struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" validate:"omitempty,max=500"`
}

// WebhookEvent is a gateway notification.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID             string `json:"id"`
			FailureMessage string `json:"failure_message,omitempty"`
		} `json:"object"`
	} `json:"data"`
}

const (
	WebhookPaymentSucceeded = "payment.succeeded"
	WebhookPaymentFailed    = "payment.failed"
)

func FromModel(p *models.Payment) PaymentDTO {
	refunds := p.Refunds
	if refunds == nil {
		refunds = types.Refunds{}
	}
	return PaymentDTO{
		ID:               p.ID,
		OrderID:          p.OrderID,
		UserID:           p.UserID,
		Gateway:          p.Gateway,
		Method:           p.Method,
		GatewayPaymentID: p.GatewayPaymentID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Status:           p.Status,
		Refunds:          refunds,
		RefundedAmount:   refunds.Total(),
		FailureReason:    p.FailureReason,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
