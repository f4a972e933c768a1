package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// CouponDTO is the admin view of a coupon.
type CouponDTO struct {
	ID        uuid.UUID        `json:"id"`
	Code      string           `json:"code"`
	Type      enums.CouponType `json:"type"`
	Value     decimal.Decimal  `json:"value"`
	IsActive  bool             `json:"isActive"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// CreateCouponInput is the admin create payload.
type CreateCouponInput struct {
	Code      string           `json:"code" validate:"required,max=40"`
	Type      enums.CouponType `json:"type" validate:"required"`
	Value     decimal.Decimal  `json:"value"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
}

func FromModel(c *models.Coupon) CouponDTO {
	return CouponDTO{
		ID:        c.ID,
		Code:      c.Code,
		Type:      c.Type,
		Value:     c.Value,
		IsActive:  c.IsActive,
		ExpiresAt: c.ExpiresAt,
		CreatedAt: c.CreatedAt,
	}
}

// Service manages discount codes.
type Service interface {
	Create(ctx context.Context, input CreateCouponInput) (*CouponDTO, error)
	List(ctx context.Context) ([]CouponDTO, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	// Redeemable returns the active, unexpired coupon for code.
	Redeemable(ctx context.Context, code string) (*models.Coupon, error)
}

type service struct {
	repo *Repository
	now  func() time.Time
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// NormalizeCode upper-cases and trims a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *service) Create(ctx context.Context, input CreateCouponInput) (*CouponDTO, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "type must be percentage or fixed")
	}
	if !input.Value.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "value must be greater than zero")
	}
	if input.Type == enums.CouponTypePercentage && input.Value.GreaterThan(hundred) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage cannot exceed 100")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiresAt must be in the future")
	}

	exists, err := s.repo.CodeExists(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check coupon code")
	}
	if exists {
		return nil, pkgerrors.Duplicate("code", "coupon code already exists")
	}

	coupon := &models.Coupon{
		Code:      code,
		Type:      input.Type,
		Value:     input.Value.Round(2),
		IsActive:  true,
		ExpiresAt: input.ExpiresAt,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		if db.IsUniqueViolation(err, "ux_coupons_code") {
			return nil, pkgerrors.Duplicate("code", "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create coupon")
	}
	dto := FromModel(coupon)
	return &dto, nil
}

func (s *service) List(ctx context.Context) ([]CouponDTO, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list coupons")
	}
	out := make([]CouponDTO, 0, len(list))
	for i := range list {
		out = append(out, FromModel(&list[i]))
	}
	return out, nil
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	affected, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate coupon")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	return nil
}

func (s *service) Redeemable(ctx context.Context, code string) (*models.Coupon, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon code")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon")
	}
	if !coupon.IsRedeemable(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is inactive or expired")
	}
	return coupon, nil
}
