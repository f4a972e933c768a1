package products

import (
	"context"
	"encoding/hex"
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
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/slug"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	featuredLimit = 8
	searchLimit   = 10
)

// Service exposes catalog browsing and staff product management.
type Service interface {
	List(ctx context.Context, input ListProductsInput) (*ProductListResult, error)
	Featured(ctx context.Context) ([]ProductDTO, error)
	Search(ctx context.Context, term string) ([]ProductDTO, error)
	GetBySlug(ctx context.Context, slug string, staff bool) (*ProductDTO, error)
	Create(ctx context.Context, input ProductInput) (*ProductDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	Archive(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo *Repository
	tx   db.TxRunner
	now  func() time.Time
}

// NewService constructs a product service instance.
func NewService(repo *Repository, tx db.TxRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, input ListProductsInput) (*ProductListResult, error) {
	input.Pagination = input.Pagination.Normalize(pagination.DefaultLimit)
	if input.Sort == "" {
		input.Sort = SortCreatedAt
		input.Descending = true
	}
	f := input.Filters
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minPrice cannot exceed maxPrice")
	}

	list, total, err := s.repo.List(ctx, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	dtos, err := s.toDTOs(ctx, list, false)
	if err != nil {
		return nil, err
	}
	page := pagination.NewPage(dtos, input.Pagination, total)
	return &page, nil
}

func (s *service) Featured(ctx context.Context) ([]ProductDTO, error) {
	list, err := s.repo.Featured(ctx, featuredLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list featured products")
	}
	return s.toDTOs(ctx, list, false)
}

func (s *service) Search(ctx context.Context, term string) ([]ProductDTO, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search term is required")
	}
	list, err := s.repo.Search(ctx, term, searchLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "search products")
	}
	return s.toDTOs(ctx, list, false)
}

// GetBySlug returns a product and counts the view. Shoppers only see
// published active products; staff see everything.
func (s *service) GetBySlug(ctx context.Context, value string, staff bool) (*ProductDTO, error) {
	product, err := s.repo.FindBySlug(ctx, strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return nil, mapLookupError(err)
	}
	if !staff && (product.Status != enums.ProductStatusActive || !product.IsPublished) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err := s.repo.IncrementViews(ctx, product.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count product view")
	}
	product.Views++
	return s.toDTO(ctx, product, staff)
}

func (s *service) Create(ctx context.Context, input ProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	if err := validatePrices(&input.Price, input.ComparePrice, input.CostPrice); err != nil {
		return nil, err
	}
	if input.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	productSlug := slug.Make(name)
	if productSlug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must contain letters or digits")
	}
	sku := s.generateSKU()
	if input.SKU != nil && strings.TrimSpace(*input.SKU) != "" {
		sku = normalizeSKU(*input.SKU)
	}
	status := enums.ProductStatusActive
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid product status")
		}
		status = *input.Status
	}

	product := &models.Product{
		Name:             name,
		Slug:             productSlug,
		Description:      strings.TrimSpace(input.Description),
		ShortDescription: input.ShortDescription,
		Price:            input.Price,
		ComparePrice:     nullDecimal(input.ComparePrice),
		CostPrice:        nullDecimal(input.CostPrice),
		SKU:              sku,
		Stock:            input.Stock,
		TrackQuantity:    boolOr(input.TrackQuantity, true),
		AllowBackorder:   input.AllowBackorder,
		MainCategoryID:   input.MainCategoryID,
		Images:           types.ProductImages(input.Images),
		Brand:            trimmedPtr(input.Brand),
		Status:           status,
		IsFeatured:       input.IsFeatured,
		IsPublished:      boolOr(input.IsPublished, true),
		AverageRating:    decimal.Zero,
	}
	if input.Attributes != nil {
		product.Attributes = *input.Attributes
	}
	if input.SEO != nil {
		product.SEO = *input.SEO
	}
	categoryIDs := dedupeIDs(input.CategoryIDs)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := checkUnique(ctx, repo, "slug", productSlug, nil); err != nil {
			return err
		}
		if err := checkUnique(ctx, repo, "sku", sku, nil); err != nil {
			return err
		}
		if err := checkCategories(ctx, repo, input.MainCategoryID, categoryIDs); err != nil {
			return err
		}
		if err := repo.Create(ctx, product); err != nil {
			return mapWriteError(err, "create product")
		}
		if err := repo.ReplaceCategories(ctx, product.ID, categoryIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link product categories")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := NewProductDTO(product, categoryIDs, true)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	var (
		product     *models.Product
		categoryIDs []uuid.UUID
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		product, err = repo.FindByID(ctx, id)
		if err != nil {
			return mapLookupError(err)
		}

		updates, err := s.applyUpdate(ctx, repo, product, input)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, product.ID, updates); err != nil {
			return mapWriteError(err, "update product")
		}
		if input.CategoryIDs != nil {
			categoryIDs = dedupeIDs(*input.CategoryIDs)
			if err := checkCategories(ctx, repo, nil, categoryIDs); err != nil {
				return err
			}
			if err := repo.ReplaceCategories(ctx, product.ID, categoryIDs); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link product categories")
			}
			return nil
		}
		links, err := repo.CategoryIDs(ctx, []uuid.UUID{product.ID})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product categories")
		}
		categoryIDs = links[product.ID]
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := NewProductDTO(product, categoryIDs, true)
	return &dto, nil
}

func (s *service) applyUpdate(ctx context.Context, repo *Repository, product *models.Product, input UpdateProductInput) (map[string]any, error) {
	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		if name != product.Name {
			productSlug := slug.Make(name)
			if productSlug == "" {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must contain letters or digits")
			}
			if err := checkUnique(ctx, repo, "slug", productSlug, &product.ID); err != nil {
				return nil, err
			}
			updates["name"] = name
			updates["slug"] = productSlug
			product.Name = name
			product.Slug = productSlug
		}
	}
	if input.SKU != nil {
		sku := normalizeSKU(*input.SKU)
		if sku == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku cannot be empty")
		}
		if sku != product.SKU {
			if err := checkUnique(ctx, repo, "sku", sku, &product.ID); err != nil {
				return nil, err
			}
			updates["sku"] = sku
			product.SKU = sku
		}
	}
	if err := validatePrices(input.Price, input.ComparePrice, input.CostPrice); err != nil {
		return nil, err
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "description cannot be empty")
		}
		updates["description"] = description
		product.Description = description
	}
	if input.ShortDescription != nil {
		updates["short_description"] = *input.ShortDescription
		product.ShortDescription = input.ShortDescription
	}
	if input.Price != nil {
		updates["price"] = *input.Price
		product.Price = *input.Price
	}
	if input.ComparePrice != nil {
		product.ComparePrice = nullDecimal(input.ComparePrice)
		updates["compare_price"] = product.ComparePrice
	}
	if input.CostPrice != nil {
		product.CostPrice = nullDecimal(input.CostPrice)
		updates["cost_price"] = product.CostPrice
	}
	if input.Stock != nil {
		if *input.Stock < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
		}
		updates["stock"] = *input.Stock
		product.Stock = *input.Stock
	}
	if input.TrackQuantity != nil {
		updates["track_quantity"] = *input.TrackQuantity
		product.TrackQuantity = *input.TrackQuantity
	}
	if input.AllowBackorder != nil {
		updates["allow_backorder"] = *input.AllowBackorder
		product.AllowBackorder = *input.AllowBackorder
	}
	if input.MainCategoryID != nil {
		if err := checkCategories(ctx, repo, input.MainCategoryID, nil); err != nil {
			return nil, err
		}
		updates["main_category_id"] = *input.MainCategoryID
		product.MainCategoryID = input.MainCategoryID
	}
	if input.Images != nil {
		product.Images = types.ProductImages(*input.Images)
		updates["images"] = product.Images
	}
	if input.Brand != nil {
		product.Brand = trimmedPtr(input.Brand)
		updates["brand"] = product.Brand
	}
	if input.Attributes != nil {
		product.Attributes = *input.Attributes
		updates["attributes"] = product.Attributes
	}
	if input.SEO != nil {
		product.SEO = *input.SEO
		updates["seo"] = product.SEO
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid product status")
		}
		updates["status"] = *input.Status
		product.Status = *input.Status
	}
	if input.IsFeatured != nil {
		updates["is_featured"] = *input.IsFeatured
		product.IsFeatured = *input.IsFeatured
	}
	if input.IsPublished != nil {
		updates["is_published"] = *input.IsPublished
		product.IsPublished = *input.IsPublished
	}
	return updates, nil
}

// Archive hides a product from the catalog without deleting it, so order
// snapshots and reviews keep a valid reference.
func (s *service) Archive(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return mapLookupError(err)
	}
	err := s.repo.Update(ctx, id, map[string]any{
		"status":       enums.ProductStatusArchived,
		"is_published": false,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "archive product")
	}
	return nil
}

func (s *service) toDTO(ctx context.Context, product *models.Product, includeCost bool) (*ProductDTO, error) {
	links, err := s.repo.CategoryIDs(ctx, []uuid.UUID{product.ID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product categories")
	}
	dto := NewProductDTO(product, links[product.ID], includeCost)
	return &dto, nil
}

func (s *service) toDTOs(ctx context.Context, list []models.Product, includeCost bool) ([]ProductDTO, error) {
	ids := make([]uuid.UUID, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	links, err := s.repo.CategoryIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product categories")
	}
	out := make([]ProductDTO, 0, len(list))
	for i := range list {
		out = append(out, NewProductDTO(&list[i], links[list[i].ID], includeCost))
	}
	return out, nil
}

func (s *service) generateSKU() string {
	id := uuid.New()
	return fmt.Sprintf("SKU-%d-%s", s.now().UnixMilli(), strings.ToUpper(hex.EncodeToString(id[:2])))
}

func checkUnique(ctx context.Context, repo *Repository, column, value string, excludeID *uuid.UUID) error {
	taken, err := repo.ColumnTaken(ctx, column, value, excludeID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check product uniqueness")
	}
	if taken {
		return pkgerrors.Duplicate(column, fmt.Sprintf("product %s already exists", column))
	}
	return nil
}

func checkCategories(ctx context.Context, repo *Repository, mainID *uuid.UUID, ids []uuid.UUID) error {
	all := append([]uuid.UUID{}, ids...)
	if mainID != nil {
		all = dedupeIDs(append(all, *mainID))
	}
	if len(all) == 0 {
		return nil
	}
	count, err := repo.CountCategories(ctx, all)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check categories")
	}
	if count != int64(len(all)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "one or more categories do not exist")
	}
	return nil
}

func validatePrices(price, compare, cost *decimal.Decimal) error {
	for name, value := range map[string]*decimal.Decimal{"price": price, "comparePrice": compare, "costPrice": cost} {
		if value != nil && value.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, name+" cannot be negative")
		}
	}
	return nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
}

func mapWriteError(err error, op string) error {
	switch {
	case db.IsUniqueViolation(err, "ux_products_slug"):
		return pkgerrors.Duplicate("slug", "product slug already exists")
	case db.IsUniqueViolation(err, "ux_products_sku"):
		return pkgerrors.Duplicate("sku", "product sku already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}

func normalizeSKU(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func nullDecimal(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *value, Valid: true}
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
