package types

import "database/sql/driver"

type ProductImage struct {
	URL       string `json:"url"`
	AltText   string `json:"altText,omitempty"`
	IsPrimary bool   `json:"isPrimary,omitempty"`
}

// ProductImages is the ordered image gallery of a product.
type ProductImages []ProductImage

// FirstURL returns the first image URL, or "" when the gallery is empty.
func (p ProductImages) FirstURL() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].URL
}

func (p ProductImages) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return jsonValue([]ProductImage(p))
}

func (p *ProductImages) Scan(value interface{}) error {
	*p = nil
	if value == nil {
		return nil
	}
	var images []ProductImage
	if err := jsonScan("product images", value, &images); err != nil {
		return err
	}
	*p = images
	return nil
}
