package types

import (
	"database/sql/driver"
	"strings"
)

// Address is a postal address persisted as JSONB on carts and orders.
type Address struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Street    string `json:"street,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	ZipCode   string `json:"zipCode,omitempty"`
	Country   string `json:"country,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// IsZero reports whether no deliverable part of the address is set.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Street) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.ZipCode) == "" &&
		strings.TrimSpace(a.Country) == ""
}

func (a Address) Value() (driver.Value, error) {
	return jsonValue(a)
}

func (a *Address) Scan(value interface{}) error {
	*a = Address{}
	if value == nil {
		return nil
	}
	return jsonScan("address", value, a)
}

// OrFallback returns a unless it is empty, in which case the first non-empty fallback wins.
func (a Address) OrFallback(fallbacks ...Address) Address {
	if !a.IsZero() {
		return a
	}
	for _, candidate := range fallbacks {
		if !candidate.IsZero() {
			return candidate
		}
	}
	return a
}
