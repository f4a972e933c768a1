package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// CartDTO is the cart with its derived totals.
type CartDTO struct {
	ID              uuid.UUID            `json:"id"`
	UserID          uuid.UUID            `json:"userId"`
	Items           []CartItemDTO        `json:"items"`
	Coupon          *AppliedCoupon       `json:"coupon,omitempty"`
	ShippingAddress *types.Address       `json:"shippingAddress,omitempty"`
	ShippingMethod  enums.ShippingMethod `json:"shippingMethod"`
	TaxRate         decimal.Decimal      `json:"taxRate"`
	Totals          Totals               `json:"totals"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// CartItemDTO is one line with a light product summary.
type CartItemDTO struct {
	ID         uuid.UUID            `json:"id"`
	ProductID  uuid.UUID            `json:"productId"`
	Name       string               `json:"name,omitempty"`
	Slug       string               `json:"slug,omitempty"`
	Image      string               `json:"image,omitempty"`
	Available  bool                 `json:"available"`
	Quantity   int                  `json:"quantity"`
	UnitPrice  decimal.Decimal      `json:"unitPrice"`
	LineTotal  decimal.Decimal      `json:"lineTotal"`
	Attributes types.ItemAttributes `json:"attributes"`
}

// AppliedCoupon describes the coupon currently priced into the cart.
type AppliedCoupon struct {
	Code  string           `json:"code"`
	Type  enums.CouponType `json:"type"`
	Value decimal.Decimal  `json:"value"`
}

// AddItemInput adds qty of a product variant.
type AddItemInput struct {
	ProductID  uuid.UUID            `json:"productId" validate:"required"`
	Quantity   int                  `json:"quantity" validate:"required,min=1,max=1000"`
	Attributes types.ItemAttributes `json:"attributes"`
}

// SetQuantityInput replaces the quantity of an existing line; qty <= 0 removes it.
type SetQuantityInput struct {
	ProductID  uuid.UUID            `json:"-"`
	Quantity   int                  `json:"quantity" validate:"max=1000"`
	Attributes types.ItemAttributes `json:"attributes"`
}

// ShippingInput sets the destination and delivery method.
type ShippingInput struct {
	Address types.Address        `json:"address"`
	Method  enums.ShippingMethod `json:"method" validate:"required"`
}

func NewCartDTO(c *models.Cart) CartDTO {
	items := make([]CartItemDTO, 0, len(c.Items))
	for _, item := range c.Items {
		dto := CartItemDTO{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			LineTotal:  item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2),
			Attributes: item.Attributes,
		}
		if item.Product != nil {
			dto.Name = item.Product.Name
			dto.Slug = item.Product.Slug
			dto.Image = item.Product.Images.FirstURL()
			dto.Available = item.Product.IsAvailable()
		}
		items = append(items, dto)
	}
	out := CartDTO{
		ID:             c.ID,
		UserID:         c.UserID,
		Items:          items,
		ShippingMethod: c.ShippingMethod,
		TaxRate:        c.TaxRate,
		Totals:         ComputeTotals(c),
		UpdatedAt:      c.UpdatedAt,
	}
	if c.CouponCode != nil && c.CouponType != nil {
		out.Coupon = &AppliedCoupon{Code: *c.CouponCode, Type: *c.CouponType, Value: c.CouponValue.Decimal}
	}
	if !c.ShippingAddress.IsZero() {
		address := c.ShippingAddress
		out.ShippingAddress = &address
	}
	return out
}
