package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Coupon is an admin-managed discount code.
type Coupon struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Code      string           `gorm:"column:code;not null;uniqueIndex:ux_coupons_code"`
	Type      enums.CouponType `gorm:"column:type;type:text;not null"`
	Value     decimal.Decimal  `gorm:"column:value;type:numeric(12,2);not null"`
	IsActive  bool             `gorm:"column:is_active;not null"`
	ExpiresAt *time.Time       `gorm:"column:expires_at"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// IsRedeemable reports whether the coupon may be applied at now.
func (c Coupon) IsRedeemable(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	return c.ExpiresAt == nil || now.Before(*c.ExpiresAt)
}
