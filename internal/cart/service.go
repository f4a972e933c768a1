package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Service exposes the per-user cart.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartDTO, error)
	SetQuantity(ctx context.Context, userID uuid.UUID, input SetQuantityInput) (*CartDTO, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID, attrs types.ItemAttributes) (*CartDTO, error)
	Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (*CartDTO, error)
	RemoveCoupon(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	SetShipping(ctx context.Context, userID uuid.UUID, input ShippingInput) (*CartDTO, error)
}

type productLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type couponLookup interface {
	Redeemable(ctx context.Context, code string) (*models.Coupon, error)
}

// ServiceParams bundles the cart dependencies.
type ServiceParams struct {
	Repo     *Repository
	Tx       db.TxRunner
	Products productLookup
	Coupons  couponLookup
	Checkout config.CheckoutConfig
}

type service struct {
	repo     *Repository
	tx       db.TxRunner
	products productLookup
	coupons  couponLookup
	checkout config.CheckoutConfig
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon lookup required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		products: params.Products,
		coupons:  params.Coupons,
		checkout: params.Checkout,
	}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	c, err := s.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	dto := NewCartDTO(c)
	return &dto, nil
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartDTO, error) {
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	product, err := s.loadPurchasable(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	c, err := s.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	attrs := input.Attributes.Normalize()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if line := findLine(c.Items, product.ID, attrs); line != nil {
			quantity := line.Quantity + input.Quantity
			if err := checkStock(product, quantity); err != nil {
				return err
			}
			if err := repo.UpdateItemQuantity(ctx, line.ID, quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart line")
			}
		} else {
			if err := checkStock(product, input.Quantity); err != nil {
				return err
			}
			item := &models.CartItem{
				CartID:     c.ID,
				ProductID:  product.ID,
				Quantity:   input.Quantity,
				UnitPrice:  product.Price,
				Attributes: attrs,
				Position:   nextPosition(c.Items),
			}
			if err := repo.CreateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add cart line")
			}
		}
		return repo.Touch(ctx, c.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, userID)
}

func (s *service) SetQuantity(ctx context.Context, userID uuid.UUID, input SetQuantityInput) (*CartDTO, error) {
	c, err := s.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	attrs := input.Attributes.Normalize()
	line := findLine(c.Items, input.ProductID, attrs)

	if input.Quantity <= 0 {
		if line == nil {
			dto := NewCartDTO(c)
			return &dto, nil
		}
		if err := s.repo.DeleteItem(ctx, line.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart line")
		}
		return s.reload(ctx, userID)
	}

	if line == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found in cart")
	}
	product, err := s.loadPurchasable(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if err := checkStock(product, input.Quantity); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateItemQuantity(ctx, line.ID, input.Quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart line")
	}
	return s.reload(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID, attrs types.ItemAttributes) (*CartDTO, error) {
	c, err := s.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	line := findLine(c.Items, productID, attrs.Normalize())
	if line == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found in cart")
	}
	if err := s.repo.DeleteItem(ctx, line.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart line")
	}
	return s.reload(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	c, err := s.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Clear(ctx, c.ID)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return s.reload(ctx, userID)
}

func (s *service) ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (*CartDTO, error) {
	coupon, err := s.coupons.Redeemable(ctx, code)
	if err != nil {
		return nil, err
	}
	c, err := s.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = s.repo.Update(ctx, c.ID, map[string]any{
		"coupon_code":  coupon.Code,
		"coupon_type":  coupon.Type,
		"coupon_value": coupon.Value,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply coupon")
	}
	return s.reload(ctx, userID)
}

func (s *service) RemoveCoupon(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	c, err := s.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = s.repo.Update(ctx, c.ID, map[string]any{
		"coupon_code":  nil,
		"coupon_type":  nil,
		"coupon_value": nil,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove coupon")
	}
	return s.reload(ctx, userID)
}

func (s *service) SetShipping(ctx context.Context, userID uuid.UUID, input ShippingInput) (*CartDTO, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping method must be standard, express or pickup")
	}
	if input.Method != enums.ShippingMethodPickup && input.Address.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	c, err := s.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = s.repo.Update(ctx, c.ID, map[string]any{
		"shipping_address": input.Address,
		"shipping_method":  input.Method,
		"shipping_cost":    s.shippingCost(input.Method),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set shipping")
	}
	return s.reload(ctx, userID)
}

// ensure returns the user's cart, creating it on first access. A concurrent
// creator losing the unique race re-reads the winner's row.
func (s *service) ensure(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	c, err := s.repo.FindByUser(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}

	c = &models.Cart{
		UserID:         userID,
		ShippingMethod: enums.ShippingMethodStandard,
		ShippingCost:   s.shippingCost(enums.ShippingMethodStandard),
		TaxRate:        s.checkout.TaxRate(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if !db.IsUniqueViolation(err, "ux_carts_user") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
		}
		existing, findErr := s.repo.FindByUser(ctx, userID)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "load cart")
		}
		return existing, nil
	}
	c.Items = []models.CartItem{}
	return c, nil
}

func (s *service) reload(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	c, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload cart")
	}
	dto := NewCartDTO(c)
	return &dto, nil
}

func (s *service) shippingCost(method enums.ShippingMethod) decimal.Decimal {
	if cost, ok := s.checkout.ShippingRates()[method]; ok {
		return cost
	}
	return decimal.Zero
}

func (s *service) loadPurchasable(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	if !product.IsAvailable() {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "product is not available").
			WithDetails(map[string]string{"productId": product.ID.String()})
	}
	return product, nil
}

// checkStock rejects quantities a tracked product cannot cover unless it
// accepts backorders.
func checkStock(product *models.Product, quantity int) error {
	if !product.TrackQuantity || product.AllowBackorder || quantity <= product.Stock {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "requested quantity exceeds stock").
		WithDetails(map[string]any{"productId": product.ID.String(), "available": product.Stock})
}

func findLine(items []models.CartItem, productID uuid.UUID, attrs types.ItemAttributes) *models.CartItem {
	for i := range items {
		if items[i].ProductID == productID && items[i].Attributes.Equal(attrs) {
			return &items[i]
		}
	}
	return nil
}

func nextPosition(items []models.CartItem) int {
	next := 0
	for _, item := range items {
		if item.Position >= next {
			next = item.Position + 1
		}
	}
	return next
}
