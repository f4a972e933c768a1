package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Product is a catalog listing.
type Product struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Name             string                  `gorm:"column:name;not null"`
	Slug             string                  `gorm:"column:slug;not null;uniqueIndex:ux_products_slug"`
	Description      string                  `gorm:"column:description;not null"`
	ShortDescription *string                 `gorm:"column:short_description"`
	Price            decimal.Decimal         `gorm:"column:price;type:numeric(12,2);not null"`
	ComparePrice     decimal.NullDecimal     `gorm:"column:compare_price;type:numeric(12,2)"`
	CostPrice        decimal.NullDecimal     `gorm:"column:cost_price;type:numeric(12,2)"`
	SKU              string                  `gorm:"column:sku;not null;uniqueIndex:ux_products_sku"`
	Stock            int                     `gorm:"column:stock;not null"`
	TrackQuantity    bool                    `gorm:"column:track_quantity;not null"`
	AllowBackorder   bool                    `gorm:"column:allow_backorder;not null"`
	MainCategoryID   *uuid.UUID              `gorm:"column:main_category_id;type:uuid"`
	Images           types.ProductImages     `gorm:"column:images;type:jsonb;not null"`
	Brand            *string                 `gorm:"column:brand"`
	Attributes       types.ProductAttributes `gorm:"column:attributes;type:jsonb;not null"`
	SEO              types.SEO               `gorm:"column:seo;type:jsonb;not null"`
	Views            int                     `gorm:"column:views;not null"`
	SalesCount       int                     `gorm:"column:sales_count;not null"`
	AverageRating    decimal.Decimal         `gorm:"column:average_rating;type:numeric(3,2);not null"`
	ReviewsCount     int                     `gorm:"column:reviews_count;not null"`
	Status           enums.ProductStatus     `gorm:"column:status;type:text;not null"`
	IsFeatured       bool                    `gorm:"column:is_featured;not null"`
	IsPublished      bool                    `gorm:"column:is_published;not null"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// IsAvailable reports whether the product can be sold right now. Products that
// do not track quantity never run out.
func (p Product) IsAvailable() bool {
	if p.Status != enums.ProductStatusActive || !p.IsPublished {
		return false
	}
	return !p.TrackQuantity || p.Stock > 0 || p.AllowBackorder
}

// ProductCategory links a product to a secondary category.
type ProductCategory struct {
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	CategoryID uuid.UUID `gorm:"column:category_id;type:uuid;primaryKey"`
}

func (ProductCategory) TableName() string { return "product_categories" }
