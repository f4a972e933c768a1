package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// ProductDTO is the catalog payload returned to clients. Cost price is only
// exposed to staff.
type ProductDTO struct {
	ID               uuid.UUID               `json:"id"`
	Name             string                  `json:"name"`
	Slug             string                  `json:"slug"`
	Description      string                  `json:"description"`
	ShortDescription *string                 `json:"shortDescription,omitempty"`
	Price            decimal.Decimal         `json:"price"`
	ComparePrice     *decimal.Decimal        `json:"comparePrice,omitempty"`
	CostPrice        *decimal.Decimal        `json:"costPrice,omitempty"`
	SKU              string                  `json:"sku"`
	Stock            int                     `json:"stock"`
	TrackQuantity    bool                    `json:"trackQuantity"`
	AllowBackorder   bool                    `json:"allowBackorder"`
	MainCategoryID   *uuid.UUID              `json:"mainCategory,omitempty"`
	CategoryIDs      []uuid.UUID             `json:"categories"`
	Images           types.ProductImages     `json:"images"`
	Brand            *string                 `json:"brand,omitempty"`
	Attributes       types.ProductAttributes `json:"attributes"`
	SEO              types.SEO               `json:"seo"`
	Views            int                     `json:"views"`
	SalesCount       int                     `json:"salesCount"`
	AverageRating    decimal.Decimal         `json:"averageRating"`
	ReviewsCount     int                     `json:"reviewsCount"`
	Status           enums.ProductStatus     `json:"status"`
	IsFeatured       bool                    `json:"isFeatured"`
	IsPublished      bool                    `json:"isPublished"`
	IsAvailable      bool                    `json:"isAvailable"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        time.Time               `json:"updatedAt"`
}

// NewProductDTO builds a DTO from the persisted model.
func NewProductDTO(p *models.Product, categoryIDs []uuid.UUID, includeCost bool) ProductDTO {
	if categoryIDs == nil {
		categoryIDs = []uuid.UUID{}
	}
	images := p.Images
	if images == nil {
		images = types.ProductImages{}
	}
	dto := ProductDTO{
		ID:               p.ID,
		Name:             p.Name,
		Slug:             p.Slug,
		Description:      p.Description,
		ShortDescription: p.ShortDescription,
		Price:            p.Price,
		SKU:              p.SKU,
		Stock:            p.Stock,
		TrackQuantity:    p.TrackQuantity,
		AllowBackorder:   p.AllowBackorder,
		MainCategoryID:   p.MainCategoryID,
		CategoryIDs:      categoryIDs,
		Images:           images,
		Brand:            p.Brand,
		Attributes:       p.Attributes,
		SEO:              p.SEO,
		Views:            p.Views,
		SalesCount:       p.SalesCount,
		AverageRating:    p.AverageRating,
		ReviewsCount:     p.ReviewsCount,
		Status:           p.Status,
		IsFeatured:       p.IsFeatured,
		IsPublished:      p.IsPublished,
		IsAvailable:      p.IsAvailable(),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.ComparePrice.Valid {
		value := p.ComparePrice.Decimal
		dto.ComparePrice = &value
	}
	if includeCost && p.CostPrice.Valid {
		value := p.CostPrice.Decimal
		dto.CostPrice = &value
	}
	return dto
}

// ProductInput is the admin create payload; Update uses UpdateProductInput.
type ProductInput struct {
	Name             string                   `json:"name" validate:"required,max=200"`
	Description      string                   `json:"description" validate:"required,max=2000"`
	ShortDescription *string                  `json:"shortDescription,omitempty" validate:"omitempty,max=500"`
	Price            decimal.Decimal          `json:"price"`
	ComparePrice     *decimal.Decimal         `json:"comparePrice,omitempty"`
	CostPrice        *decimal.Decimal         `json:"costPrice,omitempty"`
	SKU              *string                  `json:"sku,omitempty" validate:"omitempty,max=64"`
	Stock            int                      `json:"stock" validate:"gte=0"`
	TrackQuantity    *bool                    `json:"trackQuantity,omitempty"`
	AllowBackorder   bool                     `json:"allowBackorder"`
	MainCategoryID   *uuid.UUID               `json:"mainCategory,omitempty"`
	CategoryIDs      []uuid.UUID              `json:"categories,omitempty"`
	Images           []types.ProductImage     `json:"images,omitempty" validate:"omitempty,dive"`
	Brand            *string                  `json:"brand,omitempty" validate:"omitempty,max=100"`
	Attributes       *types.ProductAttributes `json:"attributes,omitempty"`
	SEO              *types.SEO               `json:"seo,omitempty"`
	Status           *enums.ProductStatus     `json:"status,omitempty"`
	IsFeatured       bool                     `json:"isFeatured"`
	IsPublished      *bool                    `json:"isPublished,omitempty"`
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	Name             *string                  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description      *string                  `json:"description,omitempty" validate:"omitempty,max=2000"`
	ShortDescription *string                  `json:"shortDescription,omitempty" validate:"omitempty,max=500"`
	Price            *decimal.Decimal         `json:"price,omitempty"`
	ComparePrice     *decimal.Decimal         `json:"comparePrice,omitempty"`
	CostPrice        *decimal.Decimal         `json:"costPrice,omitempty"`
	SKU              *string                  `json:"sku,omitempty" validate:"omitempty,min=1,max=64"`
	Stock            *int                     `json:"stock,omitempty" validate:"omitempty,gte=0"`
	TrackQuantity    *bool                    `json:"trackQuantity,omitempty"`
	AllowBackorder   *bool                    `json:"allowBackorder,omitempty"`
	MainCategoryID   *uuid.UUID               `json:"mainCategory,omitempty"`
	CategoryIDs      *[]uuid.UUID             `json:"categories,omitempty"`
	Images           *[]types.ProductImage    `json:"images,omitempty"`
	Brand            *string                  `json:"brand,omitempty" validate:"omitempty,max=100"`
	Attributes       *types.ProductAttributes `json:"attributes,omitempty"`
	SEO              *types.SEO               `json:"seo,omitempty"`
	Status           *enums.ProductStatus     `json:"status,omitempty"`
	IsFeatured       *bool                    `json:"isFeatured,omitempty"`
	IsPublished      *bool                    `json:"isPublished,omitempty"`
}

// ProductListResult is one page of catalog results.
type ProductListResult = pagination.Page[ProductDTO]
