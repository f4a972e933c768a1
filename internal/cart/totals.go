package cart

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// Totals are derived on every read and never persisted.
type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Tax          decimal.Decimal `json:"tax"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Total        decimal.Decimal `json:"total"`
	ItemCount    int             `json:"itemCount"`
}

// ComputeTotals prices a cart:
//
//	subtotal = Σ unitPrice×qty
//	discount = subtotal×pct/100 | min(fixed, subtotal)
//	tax      = (subtotal−discount)×taxRate/100
//	total    = subtotal−discount+tax+shippingCost
func ComputeTotals(c *models.Cart) Totals {
	subtotal := decimal.Zero
	count := 0
	for _, item := range c.Items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	subtotal = money.Round(subtotal)

	discount := decimal.Zero
	if c.CouponCode != nil && c.CouponType != nil && c.CouponValue.Valid {
		switch *c.CouponType {
		case enums.CouponTypePercentage:
			discount = money.Percent(subtotal, c.CouponValue.Decimal)
		case enums.CouponTypeFixed:
			discount = money.Min(money.Round(c.CouponValue.Decimal), subtotal)
		}
	}

	tax := money.Percent(subtotal.Sub(discount), c.TaxRate)
	shipping := money.Round(c.ShippingCost)
	return Totals{
		Subtotal:     subtotal,
		Discount:     discount,
		Tax:          tax,
		ShippingCost: shipping,
		Total:        subtotal.Sub(discount).Add(tax).Add(shipping),
		ItemCount:    count,
	}
}
