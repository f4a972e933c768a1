package types

import (
	"database/sql/driver"
	"strings"
)

// ItemAttributes selects a variant of a product on a cart or order line.
type ItemAttributes struct {
	Size     string `json:"size,omitempty"`
	Color    string `json:"color,omitempty"`
	Material string `json:"material,omitempty"`
}

// Normalize trims every field so equality is structural.
func (a ItemAttributes) Normalize() ItemAttributes {
	return ItemAttributes{
		Size:     strings.TrimSpace(a.Size),
		Color:    strings.TrimSpace(a.Color),
		Material: strings.TrimSpace(a.Material),
	}
}

// Equal compares two attribute sets field by field.
func (a ItemAttributes) Equal(other ItemAttributes) bool {
	return a.Normalize() == other.Normalize()
}

func (a ItemAttributes) Value() (driver.Value, error) {
	return jsonValue(a.Normalize())
}

func (a *ItemAttributes) Scan(value interface{}) error {
	*a = ItemAttributes{}
	if value == nil {
		return nil
	}
	return jsonScan("item attributes", value, a)
}

// ProductAttributes lists the variant options a product offers.
type ProductAttributes struct {
	Size     []string `json:"size,omitempty"`
	Color    []string `json:"color,omitempty"`
	Material []string `json:"material,omitempty"`
}

func (a ProductAttributes) Value() (driver.Value, error) {
	return jsonValue(a)
}

func (a *ProductAttributes) Scan(value interface{}) error {
	*a = ProductAttributes{}
	if value == nil {
		return nil
	}
	return jsonScan("product attributes", value, a)
}

// SEO holds search-engine metadata for a product page.
type SEO struct {
	MetaTitle       string   `json:"metaTitle,omitempty"`
	MetaDescription string   `json:"metaDescription,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
}

func (s SEO) Value() (driver.Value, error) {
	return jsonValue(s)
}

func (s *SEO) Scan(value interface{}) error {
	*s = SEO{}
	if value == nil {
		return nil
	}
	return jsonScan("seo", value, s)
}
