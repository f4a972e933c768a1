package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

// DeclinedSourceID makes the simulated card gateways decline the charge.
const DeclinedSourceID = "tok_declined"

// ChargeRequest is what a gateway needs to capture an order total.
type ChargeRequest struct {
	OrderID        uuid.UUID
	OrderNumber    string
	Amount         decimal.Decimal
	Currency       string
	SourceID       string
	IdempotencyKey string
}

// ChargeResult is the gateway outcome. Status is completed, pending or failed.
type ChargeResult struct {
	Status           enums.PaymentRecordStatus
	GatewayPaymentID string
	FailureReason    string
	Raw              map[string]any
}

// RefundRequest returns part or all of a captured charge.
type RefundRequest struct {
	GatewayPaymentID string
	Amount           decimal.Decimal
	Currency         string
	Reason           string
}

// Gateway captures and refunds payments.
type Gateway interface {
	Name() enums.PaymentGateway
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (gatewayRefundID string, err error)
}

// Gateways indexes the configured gateways by name.
type Gateways map[enums.PaymentGateway]Gateway

// NewGateways registers the simulated gateways plus Square when a client is given.
func NewGateways(sq SquarePayments) Gateways {
	g := Gateways{
		enums.GatewayStripe:      simulatedGateway{name: enums.GatewayStripe, prefix: "pi"},
		enums.GatewayPayPal:      simulatedGateway{name: enums.GatewayPayPal, prefix: "PAYID"},
		enums.GatewayMercadoPago: simulatedGateway{name: enums.GatewayMercadoPago, prefix: "mp"},
		enums.GatewayTransfer:    transferGateway{},
	}
	if sq != nil {
		g[enums.GatewaySquare] = squareGateway{client: sq}
	}
	return g
}

func (g Gateways) lookup(name enums.PaymentGateway) (Gateway, bool) {
	gw, ok := g[name]
	return gw, ok
}

// simulatedGateway captures synchronously; used for card gateways without
// live credentials.
type simulatedGateway struct {
	name   enums.PaymentGateway
	prefix string
}

func (g simulatedGateway) Name() enums.PaymentGateway { return g.name }

func (g simulatedGateway) Charge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	id := fmt.Sprintf("%s_%d_%s", g.prefix, time.Now().UnixMilli(), shortID())
	raw := map[string]any{
		"id":       id,
		"amount":   req.Amount.StringFixed(2),
		"currency": req.Currency,
		"gateway":  string(g.name),
	}
	if strings.TrimSpace(req.SourceID) == DeclinedSourceID {
		raw["status"] = "declined"
		return &ChargeResult{
			Status:           enums.PaymentRecordFailed,
			GatewayPaymentID: id,
			FailureReason:    "card declined",
			Raw:              raw,
		}, nil
	}
	raw["status"] = "succeeded"
	return &ChargeResult{Status: enums.PaymentRecordCompleted, GatewayPaymentID: id, Raw: raw}, nil
}

func (g simulatedGateway) Refund(_ context.Context, req RefundRequest) (string, error) {
	return fmt.Sprintf("re_%d_%s", time.Now().UnixMilli(), shortID()), nil
}

// transferGateway leaves the payment pending until the bank webhook arrives.
type transferGateway struct{}

func (transferGateway) Name() enums.PaymentGateway { return enums.GatewayTransfer }

func (transferGateway) Charge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	reference := fmt.Sprintf("TRF-%s-%s", req.OrderNumber, shortID())
	return &ChargeResult{
		Status:           enums.PaymentRecordPending,
		GatewayPaymentID: reference,
		Raw: map[string]any{
			"reference": reference,
			"amount":    req.Amount.StringFixed(2),
			"currency":  req.Currency,
		},
	}, nil
}

func (transferGateway) Refund(_ context.Context, req RefundRequest) (string, error) {
	return fmt.Sprintf("TRF-RE-%s", shortID()), nil
}

// SquarePayments is the subset of the Square client the gateway uses.
type SquarePayments interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*square.PaymentResult, error)
	RefundPayment(ctx context.Context, params square.RefundParams) (*square.RefundResult, error)
}

// squareGateway charges through the Square Payments API.
type squareGateway struct {
	client SquarePayments
}

func (squareGateway) Name() enums.PaymentGateway { return enums.GatewaySquare }

func (g squareGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = square.NewIdempotencyKey("order")
	}
	res, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    money.Cents(req.Amount),
		Currency:       req.Currency,
		SourceID:       req.SourceID,
		IdempotencyKey: key,
		Note:           "Order " + req.OrderNumber,
		ReferenceID:    req.OrderID.String(),
	})
	if err != nil {
		return nil, err
	}
	out := &ChargeResult{
		GatewayPaymentID: res.ID,
		Raw:              map[string]any{"id": res.ID, "status": res.Status},
	}
	switch {
	case res.Completed():
		out.Status = enums.PaymentRecordCompleted
	case res.Failed():
		out.Status = enums.PaymentRecordFailed
		out.FailureReason = "square payment " + strings.ToLower(res.Status)
	default:
		out.Status = enums.PaymentRecordPending
	}
	return out, nil
}

func (g squareGateway) Refund(ctx context.Context, req RefundRequest) (string, error) {
	res, err := g.client.RefundPayment(ctx, square.RefundParams{
		PaymentID:      req.GatewayPaymentID,
		AmountCents:    money.Cents(req.Amount),
		Currency:       req.Currency,
		Reason:         req.Reason,
		IdempotencyKey: square.NewIdempotencyKey("refund"),
	})
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

func shortID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
