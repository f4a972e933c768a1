package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Cart is the single mutable basket owned by a user.
type Cart struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID            `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_carts_user"`
	CouponCode      *string              `gorm:"column:coupon_code"`
	CouponType      *enums.CouponType    `gorm:"column:coupon_type;type:text"`
	CouponValue     decimal.NullDecimal  `gorm:"column:coupon_value;type:numeric(12,2)"`
	ShippingAddress types.Address        `gorm:"column:shipping_address;type:jsonb;not null"`
	ShippingMethod  enums.ShippingMethod `gorm:"column:shipping_method;type:text;not null"`
	ShippingCost    decimal.Decimal      `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	TaxRate         decimal.Decimal      `gorm:"column:tax_rate;type:numeric(5,2);not null"`
	Items           []CartItem           `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CartItem is one product+attributes line of a cart.
type CartItem struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CartID     uuid.UUID            `gorm:"column:cart_id;type:uuid;not null;index:ix_cart_items_cart"`
	ProductID  uuid.UUID            `gorm:"column:product_id;type:uuid;not null"`
	Product    *Product             `gorm:"foreignKey:ProductID"`
	Quantity   int                  `gorm:"column:quantity;not null"`
	UnitPrice  decimal.Decimal      `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Attributes types.ItemAttributes `gorm:"column:attributes;type:jsonb;not null"`
	Position   int                  `gorm:"column:position;not null"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
