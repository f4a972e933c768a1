package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const likeEscape = ` ESCAPE '\'`

// Repository persists catalog products and their secondary categories.
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

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads products keyed by id.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

// IncrementViews bumps the view counter in a single statement.
func (r *Repository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1)).Error
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(updates).Error
}

// ColumnTaken reports whether another product already uses value in column.
func (r *Repository) ColumnTaken(ctx context.Context, column, value string, excludeID *uuid.UUID) (bool, error) {
	if column != "slug" && column != "sku" {
		return false, fmt.Errorf("unsupported unique column %q", column)
	}
	q := r.db.WithContext(ctx).Model(&models.Product{}).Where(column+" = ?", value)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ReplaceCategories swaps the secondary category links of a product.
func (r *Repository) ReplaceCategories(ctx context.Context, productID uuid.UUID, categoryIDs []uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Delete(&models.ProductCategory{}).Error; err != nil {
		return err
	}
	if len(categoryIDs) == 0 {
		return nil
	}
	links := make([]models.ProductCategory, 0, len(categoryIDs))
	for _, id := range categoryIDs {
		links = append(links, models.ProductCategory{ProductID: productID, CategoryID: id})
	}
	return r.db.WithContext(ctx).Create(&links).Error
}

// CategoryIDs returns the secondary category ids per product.
func (r *Repository) CategoryIDs(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	out := make(map[uuid.UUID][]uuid.UUID, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var links []models.ProductCategory
	if err := r.db.WithContext(ctx).
		Where("product_id IN ?", productIDs).
		Order("category_id ASC").
		Find(&links).Error; err != nil {
		return nil, err
	}
	for _, link := range links {
		out[link.ProductID] = append(out[link.ProductID], link.CategoryID)
	}
	return out, nil
}

// CountCategories returns how many of ids are existing categories.
func (r *Repository) CountCategories(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Where("id IN ?", ids).Count(&count).Error
	return count, err
}

func (r *Repository) publicScope(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("status = ?", enums.ProductStatusActive).
		Where("is_published = ?", true)
}

// List pages through the public catalog.
func (r *Repository) List(ctx context.Context, input ListProductsInput) ([]models.Product, int64, error) {
	qb := r.publicScope(ctx)
	filter := input.Filters

	if slug := strings.TrimSpace(filter.CategorySlug); slug != "" {
		var category models.Category
		err := r.db.WithContext(ctx).Select("id").Where("slug = ?", strings.ToLower(slug)).First(&category).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []models.Product{}, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		qb = qb.Where(
			"(main_category_id = ? OR EXISTS (SELECT 1 FROM product_categories pc WHERE pc.product_id = products.id AND pc.category_id = ?))",
			category.ID, category.ID,
		)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		qb = qb.Where(searchClause(), searchArgs(search)...)
	}
	if filter.MinPrice != nil {
		qb = qb.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		qb = qb.Where("price <= ?", *filter.MaxPrice)
	}
	if filter.Featured != nil {
		qb = qb.Where("is_featured = ?", *filter.Featured)
	}
	if filter.InStock != nil {
		inStock := "(stock > 0 OR allow_backorder = ? OR track_quantity = ?)"
		if *filter.InStock {
			qb = qb.Where(inStock, true, false)
		} else {
			qb = qb.Where("NOT "+inStock, true, false)
		}
	}

	var total int64
	if err := qb.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	direction := "DESC"
	if !input.Descending {
		direction = "ASC"
	}
	var list []models.Product
	err := qb.
		Order(input.Sort.Column() + " " + direction).
		Order("id " + direction).
		Limit(input.Pagination.Limit).
		Offset(input.Pagination.Offset()).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Featured returns the newest featured public products.
func (r *Repository) Featured(ctx context.Context, limit int) ([]models.Product, error) {
	var list []models.Product
	err := r.publicScope(ctx).
		Where("is_featured = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// Search matches term against name, description, brand and sku.
func (r *Repository) Search(ctx context.Context, term string, limit int) ([]models.Product, error) {
	var list []models.Product
	err := r.publicScope(ctx).
		Where(searchClause(), searchArgs(term)...).
		Order("sales_count DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func searchClause() string {
	columns := []string{"name", "description", "brand", "sku"}
	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, "LOWER(COALESCE("+column+", '')) LIKE ?"+likeEscape)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func searchArgs(term string) []any {
	pattern := likePattern(term)
	return []any{pattern, pattern, pattern, pattern}
}
