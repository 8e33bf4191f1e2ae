// Package invoices stores invoices and their line items.
package invoices

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/catalog"
	"github.com/odyssey-erp/invoicing/internal/ledger"
	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
)

// Status is the invoice lifecycle state.
type Status string

const (
	StatusDraft Status = "draft"
	StatusSent  Status = "sent"
	StatusPaid  Status = "paid"
)

// ParseStatus accepts draft, sent or paid in any case.
func ParseStatus(v string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(v))); s {
	case StatusDraft, StatusSent, StatusPaid:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, v)
	}
}

// Invoice is the aggregate root. TotalAmount always equals ledger.Sum(Items)
// when the invoice was written by this package.
type Invoice struct {
	ID          string          `json:"id"`
	Number      string          `json:"invoice_number"`
	OrderDate   time.Time       `json:"order_date"`
	PrintDate   time.Time       `json:"print_date"`
	Status      Status          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []ledger.Item   `json:"items,omitempty"`
}

// ItemInput describes one requested line. An empty ProductID selects the
// default product, a nil Quantity means 1 and a nil UnitPrice keeps the
// product's selling price.
type ItemInput struct {
	ProductID           string           `json:"product_id" validate:"omitempty,uuid"`
	Quantity            *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice           *decimal.Decimal `json:"unit_price,omitempty"`
	PurchaseOrderNumber string           `json:"po_number" validate:"max=100"`
}

// InvoiceInput is the payload for creating or replacing an invoice.
// Status is ignored on create.
type InvoiceInput struct {
	InvoiceNumber string      `json:"invoice_number" validate:"required,max=100"`
	OrderDate     string      `json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	PrintDate     string      `json:"print_date" validate:"omitempty,datetime=2006-01-02"`
	Status        string      `json:"status,omitempty"`
	Items         []ItemInput `json:"items" validate:"max=500,dive"`
}

// Preview is the computed result of a set of items without persisting them.
type Preview struct {
	Items       []ledger.Item   `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// ItemsToInputs converts ledger items back to request lines, keeping every
// explicit value.
func ItemsToInputs(items []ledger.Item) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, item := range items {
		q := decimal.NewFromInt(int64(item.Quantity))
		price := item.UnitPrice
		out = append(out, ItemInput{
			ProductID:           item.ProductID,
			Quantity:            &q,
			UnitPrice:           &price,
			PurchaseOrderNumber: item.PurchaseOrderNumber,
		})
	}
	return out
}

// BuildLedger applies items to a fresh ledger over products. Failures name
// the offending item and wrap both httpx.ErrValidation and the ledger error.
func BuildLedger(products []catalog.Product, items []ItemInput) (*ledger.Ledger, error) {
	l := ledger.New(products)
	for i, in := range items {
		idx, err := l.AddItem(in.ProductID)
		if err != nil {
			return nil, itemError(i, err)
		}
		if in.Quantity != nil {
			q, err := ledger.QuantityFromDecimal(*in.Quantity)
			if err != nil {
				return nil, itemError(i, err)
			}
			if err := l.SetQuantity(idx, q); err != nil {
				return nil, itemError(i, err)
			}
		}
		if in.UnitPrice != nil {
			if err := l.SetUnitPrice(idx, *in.UnitPrice); err != nil {
				return nil, itemError(i, err)
			}
		}
		if err := l.SetPurchaseOrderNumber(idx, strings.TrimSpace(in.PurchaseOrderNumber)); err != nil {
			return nil, itemError(i, err)
		}
	}
	return l, nil
}

func itemError(i int, err error) error {
	return fmt.Errorf("%w: items[%d]: %w", httpx.ErrValidation, i, err)
}

const dateLayout = "2006-01-02"

func parseDate(v string, fallback time.Time) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", httpx.ErrValidation, v)
	}
	return t, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
