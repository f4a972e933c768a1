package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const reconcileBatch = 200

// Service manages product reviews and keeps product rating aggregates in
// step with the approved set.
type Service interface {
	ListForProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*ReviewListResult, error)
	Create(ctx context.Context, userID, productID uuid.UUID, input CreateReviewInput) (*ReviewDTO, error)
	Update(ctx context.Context, userID, reviewID uuid.UUID, input UpdateReviewInput) (*ReviewDTO, error)
	Delete(ctx context.Context, userID uuid.UUID, role enums.Role, reviewID uuid.UUID) error
	SetApproval(ctx context.Context, reviewID uuid.UUID, approved bool) (*ReviewDTO, error)
	// Recompute rewrites one product's aggregate from its approved reviews.
	Recompute(ctx context.Context, productID uuid.UUID) error
	// Reconcile heals drifted aggregates and reports how many it rewrote.
	Reconcile(ctx context.Context) (int, error)
}

type purchaseChecker interface {
	HasPaidPurchase(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type productLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type ServiceParams struct {
	Repo      *Repository
	Products  productLookup
	Purchases purchaseChecker
	Tx        db.TxRunner
	Outbox    outbox.Emitter
	Logger    *logger.Logger
}

type service struct {
	repo      *Repository
	products  productLookup
	purchases purchaseChecker
	tx        db.TxRunner
	outbox    outbox.Emitter
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("review repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchase checker required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repo,
		products:  params.Products,
		purchases: params.Purchases,
		tx:        params.Tx,
		outbox:    params.Outbox,
		logg:      logg,
	}, nil
}

func (s *service) ListForProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*ReviewListResult, error) {
	params = params.Normalize(defaultLimit)
	list, total, err := s.repo.ListApproved(ctx, productID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list reviews")
	}
	dtos := make([]ReviewDTO, 0, len(list))
	for i := range list {
		dtos = append(dtos, FromModel(&list[i]))
	}
	page := pagination.NewPage(dtos, params, total)
	return &page, nil
}

func (s *service) Create(ctx context.Context, userID, productID uuid.UUID, input CreateReviewInput) (*ReviewDTO, error) {
	if err := validateRating(input.Rating); err != nil {
		return nil, err
	}
	comment := strings.TrimSpace(input.Comment)
	if comment == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment is required").
			WithDetails(map[string]string{"comment": "required"})
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	verified, err := s.purchases.HasPaidPurchase(ctx, userID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check purchase")
	}

	review := &models.Review{
		ProductID:  productID,
		UserID:     userID,
		Rating:     input.Rating,
		Title:      trimmedOrNil(input.Title),
		Comment:    comment,
		IsVerified: verified,
		IsApproved: true,
	}
	if err := s.repo.Create(ctx, review); err != nil {
		if db.IsUniqueViolation(err, "ux_reviews_product_user") {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicate, "you have already reviewed this product")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create review")
	}
	s.recomputeAfterWrite(ctx, productID)
	return s.reload(ctx, review.ID)
}

func (s *service) Update(ctx context.Context, userID, reviewID uuid.UUID, input UpdateReviewInput) (*ReviewDTO, error) {
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
	}

	updates := map[string]any{}
	if input.Rating != nil {
		if err := validateRating(*input.Rating); err != nil {
			return nil, err
		}
		updates["rating"] = *input.Rating
	}
	if input.Title != nil {
		updates["title"] = trimmedOrNil(input.Title)
	}
	if input.Comment != nil {
		comment := strings.TrimSpace(*input.Comment)
		if comment == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment is required").
				WithDetails(map[string]string{"comment": "required"})
		}
		updates["comment"] = comment
	}
	if len(updates) == 0 {
		dto := FromModel(review)
		return &dto, nil
	}
	if err := s.repo.Update(ctx, review.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update review")
	}
	s.recomputeAfterWrite(ctx, review.ProductID)
	return s.reload(ctx, review.ID)
}

func (s *service) Delete(ctx context.Context, userID uuid.UUID, role enums.Role, reviewID uuid.UUID) error {
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return err
	}
	if review.UserID != userID && role != enums.RoleAdmin {
		return pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
	}
	if err := s.repo.Delete(ctx, review.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete review")
	}
	s.recomputeAfterWrite(ctx, review.ProductID)
	return nil
}

func (s *service) SetApproval(ctx context.Context, reviewID uuid.UUID, approved bool) (*ReviewDTO, error) {
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.IsApproved == approved {
		dto := FromModel(review)
		return &dto, nil
	}
	if err := s.repo.Update(ctx, review.ID, map[string]any{"is_approved": approved}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set review approval")
	}
	s.recomputeAfterWrite(ctx, review.ProductID)
	return s.reload(ctx, review.ID)
}

func (s *service) Recompute(ctx context.Context, productID uuid.UUID) error {
	_, err := s.sync(ctx, productID, true)
	return err
}

func (s *service) Reconcile(ctx context.Context) (int, error) {
	var (
		fixed  int
		errs   error
		cursor = uuid.Nil
	)
	for {
		ids, err := s.repo.RatedProductIDs(ctx, cursor, reconcileBatch)
		if err != nil {
			return fixed, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list rated products")
		}
		for _, id := range ids {
			changed, err := s.sync(ctx, id, false)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if changed {
				fixed++
			}
		}
		if len(ids) < reconcileBatch {
			return fixed, errs
		}
		cursor = ids[len(ids)-1]
	}
}

// sync writes the computed aggregate and queues product.rated. When force is
// false an aggregate that already matches is left alone.
func (s *service) sync(ctx context.Context, productID uuid.UUID, force bool) (bool, error) {
	agg, err := s.repo.ComputeAggregate(ctx, productID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute rating")
	}
	if !force {
		stored, err := s.repo.StoredAggregate(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, nil
			}
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load rating")
		}
		if stored.Equal(agg) {
			return false, nil
		}
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).WriteAggregate(ctx, productID, agg); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write rating")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductRated,
			AggregateType: enums.AggregateProduct,
			AggregateID:   productID,
			Data: outbox.ProductRated{
				ProductID:     productID,
				AverageRating: agg.Average,
				ReviewsCount:  agg.Count,
			},
		})
	})
	return err == nil, err
}

// recomputeAfterWrite runs after the review write committed. A failure leaves
// the aggregate stale until reconciliation and never fails the request.
func (s *service) recomputeAfterWrite(ctx context.Context, productID uuid.UUID) {
	if err := s.Recompute(ctx, productID); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "product_id", productID.String()), "recompute rating", err)
	}
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	review, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load review")
	}
	return review, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*ReviewDTO, error) {
	review, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(review)
	return &dto, nil
}

func validateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5").
			WithDetails(map[string]string{"rating": "between 1 and 5"})
	}
	return nil
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
