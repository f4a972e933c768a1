package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationRequired    = errors.New("square location id is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// sensitiveKeys never reach the logs in clear text.
var sensitiveKeys = []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"}

// Client charges and refunds through Square. Every call carries an
// idempotency key and is logged with payment instrument details redacted.
type Client struct {
	sdk        *sqclient.Client
	locationID string
	env        string
	logg       *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env := strings.ToLower(strings.TrimSpace(cfg.Environment()))
	if env == "" {
		env = sandboxEnv
	}
	base, ok := baseURLs[env]
	if !ok {
		return nil, errInvalidSquareEnv
	}
	token, location := strings.TrimSpace(cfg.AccessToken), strings.TrimSpace(cfg.LocationID)
	switch {
	case token == "":
		return nil, errAccessTokenRequired
	case location == "":
		return nil, errLocationRequired
	}

	c := &Client{
		sdk:        sqclient.NewClient(sqoption.WithBaseURL(base), sqoption.WithToken(token)),
		locationID: location,
		env:        env,
		logg:       logg,
	}
	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return c, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.env
}

// NewIdempotencyKey returns prefix-uuid; an empty prefix becomes "sf".
func NewIdempotencyKey(prefix string) string {
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "sf"
	}
	return prefix + "-" + uuid.NewString()
}

func ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) == "" {
		return NewIdempotencyKey(prefix)
	}
	return provided
}

func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*PaymentResult, error) {
	if params.LocationID == "" {
		params.LocationID = c.locationID
	}
	ctx = c.scope(ctx, "create_payment", map[string]any{
		"location_id":  params.LocationID,
		"reference_id": params.ReferenceID,
		"amount":       params.AmountCents,
		"source_token": params.SourceID,
	})
	c.logg.Info(ctx, "square request")

	resp, err := c.sdk.Payments.Create(ctx, params.toSquareRequest(ensureIdempotencyKey("payment", params.IdempotencyKey)))
	if err != nil {
		return nil, c.fail(ctx, "create payment", err)
	}
	payment := resp.GetPayment()
	out := &PaymentResult{ID: deref(payment.GetID()), Status: deref(payment.GetStatus())}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{"payment_id": out.ID, "status": out.Status}), "square response")
	return out, nil
}

func (c *Client) RefundPayment(ctx context.Context, params RefundParams) (*RefundResult, error) {
	ctx = c.scope(ctx, "refund_payment", map[string]any{
		"payment_id": params.PaymentID,
		"amount":     params.AmountCents,
	})
	c.logg.Info(ctx, "square request")

	resp, err := c.sdk.Refunds.RefundPayment(ctx, params.toSquareRequest(ensureIdempotencyKey("refund", params.IdempotencyKey)))
	if err != nil {
		return nil, c.fail(ctx, "refund payment", err)
	}
	refund := resp.GetRefund()
	out := &RefundResult{ID: anyString(refund.GetID()), Status: anyString(refund.GetStatus())}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{"refund_id": out.ID, "status": out.Status}), "square response")
	return out, nil
}

// scope binds the operation and its redacted request fields to ctx.
func (c *Client) scope(ctx context.Context, op string, fields map[string]any) context.Context {
	bound := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		bound[k] = redact(k, v)
	}
	bound["operation"] = op
	return c.logg.WithFields(ctx, bound)
}

func (c *Client) fail(ctx context.Context, op string, err error) error {
	c.logg.Error(ctx, "square "+op+" failed", err)
	return mapSquareError(err, op)
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return "[REDACTED]"
		}
	}
	return value
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// anyString flattens SDK getters that return either string or *string.
func anyString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case *string:
		return deref(s)
	}
	return ""
}
