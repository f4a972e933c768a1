package enums

import "fmt"

// PaymentGateway identifies the provider that captured a payment.
type PaymentGateway string

const (
	GatewayStripe      PaymentGateway = "stripe"
	GatewayPayPal      PaymentGateway = "paypal"
	GatewayMercadoPago PaymentGateway = "mercadopago"
	GatewayTransfer    PaymentGateway = "transfer"
	GatewaySquare      PaymentGateway = "square"
)

var validPaymentGateways = []PaymentGateway{
	GatewayStripe,
	GatewayPayPal,
	GatewayMercadoPago,
	GatewayTransfer,
	GatewaySquare,
}

// String implements fmt.Stringer.
func (g PaymentGateway) String() string {
	return string(g)
}

// IsValid reports whether the value is a known PaymentGateway.
func (g PaymentGateway) IsValid() bool {
	for _, candidate := range validPaymentGateways {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParsePaymentGateway converts raw input into a PaymentGateway.
func ParsePaymentGateway(value string) (PaymentGateway, error) {
	for _, candidate := range validPaymentGateways {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment gateway %q", value)
}
