package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCreated is emitted when a cart is converted into an order.
type OrderCreated struct {
	OrderID     uuid.UUID       `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	UserID      uuid.UUID       `json:"userId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	ItemCount   int             `json:"itemCount"`
}

// OrderPaid is emitted once a payment settles an order.
type OrderPaid struct {
	OrderID          uuid.UUID       `json:"orderId"`
	OrderNumber      string          `json:"orderNumber"`
	PaymentID        uuid.UUID       `json:"paymentId"`
	Gateway          string          `json:"gateway"`
	GatewayPaymentID string          `json:"gatewayPaymentId"`
	Amount           decimal.Decimal `json:"amount"`
	PaidAt           time.Time       `json:"paidAt"`
}

// OrderStatusChanged is emitted for admin driven fulfilment transitions.
type OrderStatusChanged struct {
	OrderID        uuid.UUID `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
}

// OrderCancelled is emitted when an order is cancelled or expires unpaid.
type OrderCancelled struct {
	OrderID       uuid.UUID `json:"orderId"`
	OrderNumber   string    `json:"orderNumber"`
	Reason        string    `json:"reason,omitempty"`
	StockRestored bool      `json:"stockRestored"`
}

// PaymentFailed is emitted when a gateway rejects a charge.
type PaymentFailed struct {
	OrderID   uuid.UUID `json:"orderId"`
	PaymentID uuid.UUID `json:"paymentId"`
	Gateway   string    `json:"gateway"`
	Reason    string    `json:"reason"`
}

// PaymentRefunded is emitted for every refund, full or partial.
type PaymentRefunded struct {
	OrderID   uuid.UUID       `json:"orderId"`
	PaymentID uuid.UUID       `json:"paymentId"`
	Amount    decimal.Decimal `json:"amount"`
	Full      bool            `json:"full"`
	Reason    string          `json:"reason,omitempty"`
}

// ProductRated is emitted after a product's rating aggregate changes.
type ProductRated struct {
	ProductID     uuid.UUID       `json:"productId"`
	AverageRating decimal.Decimal `json:"averageRating"`
	ReviewsCount  int             `json:"reviewsCount"`
}
