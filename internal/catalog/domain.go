// Package catalog manages the products that invoice lines refer to.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable catalog entry. SellingPrice seeds new invoice lines.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SortOrder selects how product listings are ordered.
type SortOrder string

const (
	// SortNewest lists the most recently created products first.
	SortNewest SortOrder = "newest"
	// SortName lists products alphabetically, as invoice forms do.
	SortName SortOrder = "name"
)

// ParseSortOrder maps a query value to a SortOrder, defaulting to SortNewest.
func ParseSortOrder(v string) SortOrder {
	if SortOrder(v) == SortName {
		return SortName
	}
	return SortNewest
}

// ProductInput carries the editable product fields.
type ProductInput struct {
	Name          string          `json:"name" validate:"required,max=200"`
	PurchasePrice decimal.Decimal `json:"purchase_price" validate:"gte=0"`
	SellingPrice  decimal.Decimal `json:"selling_price" validate:"gte=0"`
}
