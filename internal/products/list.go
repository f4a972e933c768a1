package products

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// SortField is a whitelisted catalog sort key.
type SortField string

const (
	SortCreatedAt     SortField = "createdAt"
	SortPrice         SortField = "price"
	SortName          SortField = "name"
	SortSalesCount    SortField = "salesCount"
	SortViews         SortField = "views"
	SortAverageRating SortField = "averageRating"
)

var sortColumns = map[SortField]string{
	SortCreatedAt:     "created_at",
	SortPrice:         "price",
	SortName:          "name",
	SortSalesCount:    "sales_count",
	SortViews:         "views",
	SortAverageRating: "average_rating",
}

// Column maps the sort key to its column, defaulting to created_at.
func (s SortField) Column() string {
	if column, ok := sortColumns[s]; ok {
		return column
	}
	return sortColumns[SortCreatedAt]
}

// ProductListFilters describe the supported filter knobs for the browse endpoint.
type ProductListFilters struct {
	CategorySlug string
	Search       string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Featured     *bool
	InStock      *bool
}

// ListProductsInput captures paging, sorting and filters for the public catalog.
type ListProductsInput struct {
	Filters    ProductListFilters
	Pagination pagination.Params
	Sort       SortField
	Descending bool
}

// ParseSort reads the sort/order query pair; unknown fields fall back to
// createdAt and anything but "asc" sorts descending.
func ParseSort(field, order string) (SortField, bool) {
	sort := SortField(strings.TrimSpace(field))
	if _, ok := sortColumns[sort]; !ok {
		sort = SortCreatedAt
	}
	return sort, !strings.EqualFold(strings.TrimSpace(order), "asc")
}

// likePattern escapes LIKE wildcards in user input and wraps it for a
// case-insensitive contains match.
func likePattern(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
}
