package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if secret := strings.TrimSpace(s.cfg.WebhookSecret); secret != "" {
		if !security.VerifySignature(secret, payload, signature) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
		}
	}
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	gatewayPaymentID := strings.TrimSpace(event.Data.Object.ID)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"webhook_type":       event.Type,
		"gateway_payment_id": gatewayPaymentID,
	})
	if gatewayPaymentID == "" || (event.Type != WebhookPaymentSucceeded && event.Type != WebhookPaymentFailed) {
		s.logg.Info(ctx, "webhook ignored")
		return nil
	}

	guardKey := ""
	if s.guard != nil {
		key := redis.WebhookKey(event.Type, gatewayPaymentID)
		fresh, err := s.guard.SetNX(ctx, key, "1", s.cfg.WebhookTTL)
		switch {
		case err != nil:
			s.logg.Warn(ctx, "webhook guard unavailable: "+err.Error())
		case !fresh:
			s.logg.Info(ctx, "webhook redelivery skipped")
			return nil
		default:
			guardKey = key
		}
	}

	err := s.applyWebhook(ctx, event.Type, gatewayPaymentID, event.Data.Object.FailureMessage)
	if err != nil && guardKey != "" {
		if delErr := s.guard.Del(ctx, guardKey); delErr != nil {
			s.logg.Warn(ctx, "release webhook guard: "+delErr.Error())
		}
	}
	return err
}

func (s *service) applyWebhook(ctx context.Context, eventType, gatewayPaymentID, failureMessage string) error {
	payment, order, err := s.resolveWebhookTarget(ctx, gatewayPaymentID)
	if err != nil {
		return err
	}
	if order == nil {
		s.logg.Info(ctx, "webhook for unknown payment ignored")
		return nil
	}

	switch eventType {
	case WebhookPaymentSucceeded:
		if order.PaymentStatus != enums.PaymentStatusPending && order.PaymentStatus != enums.PaymentStatusFailed {
			return nil
		}
		err := s.settle(ctx, order, payment, nil)
		switch {
		case err == nil:
			s.metrics.IncPayment(string(payment.Gateway), string(payment.Status))
			s.logg.Info(ctx, "order settled by webhook")
			return nil
		case pkgerrors.Is(err, pkgerrors.CodeAlreadyPaid):
			return nil
		case pkgerrors.Is(err, pkgerrors.CodeInsufficientStock), pkgerrors.Is(err, pkgerrors.CodeStateConflict):
			// retrying cannot help; the cancelled payment record is the follow-up
			s.logg.Warn(ctx, "webhook settlement rejected: "+err.Error())
			return nil
		default:
			return err
		}

	case WebhookPaymentFailed:
		reason := strings.TrimSpace(failureMessage)
		if reason == "" {
			reason = "reported failed by gateway"
		}
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			switch {
			case payment.ID == uuid.Nil:
				payment.Status = enums.PaymentRecordFailed
				payment.FailureReason = &reason
				if err := repo.Create(ctx, payment); err != nil {
					return mapPaymentWriteError(err)
				}
			case payment.Status == enums.PaymentRecordPending:
				if err := repo.Update(ctx, payment.ID, map[string]any{
					"status":         enums.PaymentRecordFailed,
					"failure_reason": reason,
				}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail payment")
				}
			}
			return s.markOrderFailed(ctx, tx, order.ID, payment, reason, nil)
		})
	}
	return nil
}

// resolveWebhookTarget finds the payment record and order for a gateway id.
// Orders whose pending payment predates the record get a fresh one built from
// the order. A nil order means the id is unknown.
func (s *service) resolveWebhookTarget(ctx context.Context, gatewayPaymentID string) (*models.Payment, *models.Order, error) {
	payment, err := s.repo.FindByGatewayPaymentID(ctx, gatewayPaymentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment != nil {
		order, err := s.orders.FindByID(ctx, payment.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, nil
			}
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		return payment, order, nil
	}

	order, err := s.orders.FindByPaymentID(ctx, gatewayPaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	id := gatewayPaymentID
	payment = &models.Payment{
		OrderID:          order.ID,
		UserID:           order.UserID,
		GatewayPaymentID: &id,
		Amount:           order.TotalAmount,
		Currency:         order.Currency,
		Status:           enums.PaymentRecordPending,
		Refunds:          types.Refunds{},
		GatewayResponse:  types.JSONMap{"source": "webhook"},
	}
	if order.PaymentGateway != nil {
		payment.Gateway = *order.PaymentGateway
	}
	if order.PaymentMethod != nil {
		payment.Method = *order.PaymentMethod
	}
	return payment, order, nil
}
