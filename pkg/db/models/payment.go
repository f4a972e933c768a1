package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Payment records one settlement attempt against an order.
type Payment struct {
	ID               uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index:ix_payments_order"`
	UserID           uuid.UUID                 `gorm:"column:user_id;type:uuid;not null"`
	Gateway          enums.PaymentGateway      `gorm:"column:payment_gateway;type:text;not null"`
	Method           string                    `gorm:"column:payment_method;not null"`
	GatewayPaymentID *string                   `gorm:"column:gateway_payment_id;uniqueIndex:ux_payments_gateway_payment_id"`
	Amount           decimal.Decimal           `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency         string                    `gorm:"column:currency;not null"`
	Status           enums.PaymentRecordStatus `gorm:"column:status;type:text;not null"`
	GatewayResponse  types.JSONMap             `gorm:"column:gateway_response;type:jsonb;not null"`
	Refunds          types.Refunds             `gorm:"column:refunds;type:jsonb;not null"`
	FailureReason    *string                   `gorm:"column:failure_reason"`
	CreatedAt        time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// RefundableAmount returns what is left to refund.
func (p Payment) RefundableAmount() decimal.Decimal {
	left := p.Amount.Sub(p.Refunds.Total())
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}
