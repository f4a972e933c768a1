package reviews

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository persists reviews and the product rating aggregate.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Omit("User").Create(review).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&review).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

// ListApproved pages a product's approved reviews, newest first.
func (r *Repository) ListApproved(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.Review, int64, error) {
	base := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("product_id = ? AND is_approved = ?", productID, true)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Review
	err := base.
		Preload("User").
		Order("created_at DESC").
		Offset(params.Offset()).
		Limit(params.Limit).
		Find(&list).Error
	return list, total, err
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Review{}).Where("id = ?", id).Updates(updates).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Review{}).Error
}

// Aggregate is a product's approved rating mean and count.
type Aggregate struct {
	Average decimal.Decimal
	Count   int
}

func (a Aggregate) Equal(other Aggregate) bool {
	return a.Count == other.Count && a.Average.Equal(other.Average)
}

// ComputeAggregate derives the aggregate from approved reviews. The mean is
// rounded to two places; no reviews yields zero.
func (r *Repository) ComputeAggregate(ctx context.Context, productID uuid.UUID) (Aggregate, error) {
	var row struct {
		Total int64
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COALESCE(SUM(rating), 0) AS total, COUNT(*) AS count").
		Where("product_id = ? AND is_approved = ?", productID, true).
		Scan(&row).Error
	if err != nil {
		return Aggregate{}, err
	}
	if row.Count == 0 {
		return Aggregate{Average: decimal.Zero}, nil
	}
	avg := decimal.NewFromInt(row.Total).Div(decimal.NewFromInt(row.Count))
	return Aggregate{Average: money.Round(avg), Count: int(row.Count)}, nil
}

// StoredAggregate reads what the product currently advertises.
func (r *Repository) StoredAggregate(ctx context.Context, productID uuid.UUID) (Aggregate, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Select("id", "average_rating", "reviews_count").
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		return Aggregate{}, err
	}
	return Aggregate{Average: product.AverageRating, Count: product.ReviewsCount}, nil
}

func (r *Repository) WriteAggregate(ctx context.Context, productID uuid.UUID, agg Aggregate) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"average_rating": agg.Average,
			"reviews_count":  agg.Count,
		}).Error
}

// RatedProductIDs pages products that carry a rating or have any review.
func (r *Repository) RatedProductIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	reviewed := r.db.Model(&models.Review{}).Select("DISTINCT product_id")
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id > ?", afterID).
		Where("reviews_count > 0 OR id IN (?)", reviewed).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
