package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	ownerDefaultLimit = 10
	adminDefaultLimit = 20
)

// OrderDTO is the API view of an order.
type OrderDTO struct {
	ID              uuid.UUID             `json:"id"`
	OrderNumber     string                `json:"orderNumber"`
	UserID          uuid.UUID             `json:"userId"`
	Customer        types.CustomerInfo    `json:"customerInfo"`
	Items           []OrderItemDTO        `json:"items"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	ShippingCost    decimal.Decimal       `json:"shippingCost"`
	TaxAmount       decimal.Decimal       `json:"taxAmount"`
	DiscountAmount  decimal.Decimal       `json:"discountAmount"`
	TotalAmount     decimal.Decimal       `json:"totalAmount"`
	Currency        string                `json:"currency"`
	ShippingAddress types.Address         `json:"shippingAddress"`
	BillingAddress  types.Address         `json:"billingAddress"`
	ShippingMethod  enums.ShippingMethod  `json:"shippingMethod"`
	TrackingNumber  *string               `json:"trackingNumber,omitempty"`
	Status          enums.OrderStatus     `json:"status"`
	PaymentStatus   enums.PaymentStatus   `json:"paymentStatus"`
	PaymentMethod   *string               `json:"paymentMethod,omitempty"`
	PaymentGateway  *enums.PaymentGateway `json:"paymentGateway,omitempty"`
	PaymentID       *string               `json:"paymentId,omitempty"`
	PaidAt          *time.Time            `json:"paidAt,omitempty"`
	StockReserved   bool                  `json:"stockReserved"`
	Coupon          *types.CouponSnapshot `json:"coupon,omitempty"`
	CustomerNotes   *string               `json:"customerNotes,omitempty"`
	AdminNotes      *string               `json:"adminNotes,omitempty"`
	CancelledAt     *time.Time            `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// OrderItemDTO is a frozen order line.
type OrderItemDTO struct {
	ID           uuid.UUID            `json:"id"`
	ProductID    uuid.UUID            `json:"productId"`
	ProductName  string               `json:"productName"`
	ProductImage string               `json:"productImage"`
	SKU          string               `json:"sku"`
	Quantity     int                  `json:"quantity"`
	UnitPrice    decimal.Decimal      `json:"unitPrice"`
	LineTotal    decimal.Decimal      `json:"lineTotal"`
	Attributes   types.ItemAttributes `json:"attributes"`
}

// OrderListResult is one page of orders.
type OrderListResult = pagination.Page[OrderDTO]

// CreateOrderInput carries the checkout overrides; empty addresses fall back to the cart.
type CreateOrderInput struct {
	ShippingAddress *types.Address `json:"shippingAddress"`
	BillingAddress  *types.Address `json:"billingAddress"`
	Notes           *string        `json:"notes" validate:"omitempty,max=500"`
}

// ListFilters narrows order listings.
type ListFilters struct {
	UserID        *uuid.UUID
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
}

// UpdateStatusInput is the admin fulfilment update.
type UpdateStatusInput struct {
	Status         *enums.OrderStatus `json:"status"`
	TrackingNumber *string            `json:"trackingNumber" validate:"omitempty,max=100"`
	AdminNotes     *string            `json:"adminNotes" validate:"omitempty,max=1000"`
}

func FromModel(o *models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ID:           item.ID,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			SKU:          item.SKU,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2),
			Attributes:   item.Attributes,
		})
	}
	dto := OrderDTO{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		Customer:        o.Customer,
		Items:           items,
		Subtotal:        o.Subtotal,
		ShippingCost:    o.ShippingCost,
		TaxAmount:       o.TaxAmount,
		DiscountAmount:  o.DiscountAmount,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		ShippingMethod:  o.ShippingMethod,
		TrackingNumber:  o.TrackingNumber,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		PaymentMethod:   o.PaymentMethod,
		PaymentGateway:  o.PaymentGateway,
		PaymentID:       o.PaymentID,
		PaidAt:          o.PaidAt,
		StockReserved:   o.StockReserved,
		CustomerNotes:   o.CustomerNotes,
		AdminNotes:      o.AdminNotes,
		CancelledAt:     o.CancelledAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.Coupon.Code != "" {
		coupon := o.Coupon
		dto.Coupon = &coupon
	}
	return dto
}

func fromModels(list []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(list))
	for i := range list {
		out = append(out, FromModel(&list[i]))
	}
	return out
}
