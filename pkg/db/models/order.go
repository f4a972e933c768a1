package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is the frozen result of a checkout.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string                `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index:ix_orders_user"`
	Customer        types.CustomerInfo    `gorm:"column:customer_info;type:jsonb;not null"`
	Items           []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Subtotal        decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingCost    decimal.Decimal       `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	TaxAmount       decimal.Decimal       `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	DiscountAmount  decimal.Decimal       `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	TotalAmount     decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency        string                `gorm:"column:currency;not null"`
	ShippingAddress types.Address         `gorm:"column:shipping_address;type:jsonb;not null"`
	BillingAddress  types.Address         `gorm:"column:billing_address;type:jsonb;not null"`
	ShippingMethod  enums.ShippingMethod  `gorm:"column:shipping_method;type:text;not null"`
	TrackingNumber  *string               `gorm:"column:tracking_number"`
	Status          enums.OrderStatus     `gorm:"column:status;type:text;not null;index:ix_orders_status"`
	PaymentStatus   enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null"`
	PaymentMethod   *string               `gorm:"column:payment_method"`
	PaymentGateway  *enums.PaymentGateway `gorm:"column:payment_gateway;type:text"`
	PaymentID       *string               `gorm:"column:payment_id;index:ix_orders_payment_id"`
	PaidAt          *time.Time            `gorm:"column:paid_at"`
	StockReserved   bool                  `gorm:"column:stock_reserved;not null"`
	Coupon          types.CouponSnapshot  `gorm:"column:coupon;type:jsonb;not null"`
	CustomerNotes   *string               `gorm:"column:customer_notes"`
	AdminNotes      *string               `gorm:"column:admin_notes"`
	CancelledAt     *time.Time            `gorm:"column:cancelled_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem is an immutable snapshot of a cart line.
type OrderItem struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index:ix_order_items_order"`
	ProductID        uuid.UUID            `gorm:"column:product_id;type:uuid;not null;index:ix_order_items_product"`
	ProductName      string               `gorm:"column:product_name;not null"`
	ProductImage     string               `gorm:"column:product_image;not null"`
	SKU              string               `gorm:"column:sku;not null"`
	Quantity         int                  `gorm:"column:quantity;not null"`
	UnitPrice        decimal.Decimal      `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Attributes       types.ItemAttributes `gorm:"column:attributes;type:jsonb;not null"`
	ReservedQuantity int                  `gorm:"column:reserved_quantity;not null"`
	Position         int                  `gorm:"column:position;not null"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
