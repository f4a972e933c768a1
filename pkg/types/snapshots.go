package types

import (
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"
)

// CustomerInfo is the buyer contact data copied onto an order.
type CustomerInfo struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (c CustomerInfo) Value() (driver.Value, error) {
	return jsonValue(c)
}

func (c *CustomerInfo) Scan(value interface{}) error {
	*c = CustomerInfo{}
	if value == nil {
		return nil
	}
	return jsonScan("customer info", value, c)
}

// CouponSnapshot freezes the coupon that priced an order.
type CouponSnapshot struct {
	Code   string          `json:"code"`
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"value"`
}

func (c CouponSnapshot) Value() (driver.Value, error) {
	return jsonValue(c)
}

func (c *CouponSnapshot) Scan(value interface{}) error {
	*c = CouponSnapshot{}
	if value == nil {
		return nil
	}
	return jsonScan("coupon snapshot", value, c)
}

// Refund is one refund entry appended to a payment.
type Refund struct {
	Amount          decimal.Decimal `json:"amount"`
	Reason          string          `json:"reason,omitempty"`
	GatewayRefundID string          `json:"gatewayRefundId"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Refunds is the append-only refund history of a payment.
type Refunds []Refund

// Total sums every refund amount.
func (r Refunds) Total() decimal.Decimal {
	total := decimal.Zero
	for _, refund := range r {
		total = total.Add(refund.Amount)
	}
	return total
}

func (r Refunds) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	return jsonValue([]Refund(r))
}

func (r *Refunds) Scan(value interface{}) error {
	*r = nil
	if value == nil {
		return nil
	}
	var refunds []Refund
	if err := jsonScan("refunds", value, &refunds); err != nil {
		return err
	}
	*r = refunds
	return nil
}
