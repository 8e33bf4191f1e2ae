// Package ledger keeps the line items of one invoice being edited and derives
// every line total and the invoice total from them.
package ledger

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/catalog"
)

var (
	// ErrNoProductsAvailable is returned when an item is added while the catalog is empty.
	ErrNoProductsAvailable = errors.New("no products available")
	// ErrIndexOutOfRange is returned for an item position outside the ledger.
	ErrIndexOutOfRange = errors.New("item index out of range")
	// ErrProductNotFound is returned when a product reference does not resolve.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidQuantity is returned for quantities below one or with a fraction.
	ErrInvalidQuantity = errors.New("quantity must be a whole number of at least 1")
	// ErrInvalidPrice is returned for negative unit prices.
	ErrInvalidPrice = errors.New("unit price must not be negative")
)

// Item is one invoice line. TotalPrice is always derived.
type Item struct {
	ProductID           string          `json:"product_id"`
	ProductName         string          `json:"product_name"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	PurchaseOrderNumber string          `json:"po_number"`
	TotalPrice          decimal.Decimal `json:"total_price"`
}

// Ledger owns the ordered items of a single invoice.
// It is not safe for concurrent use.
type Ledger struct {
	catalog  []catalog.Product
	products map[string]catalog.Product
	items    []Item
}

// New returns an empty ledger resolving product references against products.
// The first product is the default for AddItem.
func New(products []catalog.Product) *Ledger {
	l := &Ledger{
		catalog:  append([]catalog.Product(nil), products...),
		products: make(map[string]catalog.Product, len(products)),
	}
	for _, p := range products {
		l.products[p.ID] = p
	}
	return l
}

// Restore rebuilds a ledger from stored items. Quantity and price are
// validated again and every total is recomputed.
func Restore(products []catalog.Product, items []Item) (*Ledger, error) {
	l := New(products)
	for i, in := range items {
		product, ok := l.products[in.ProductID]
		if !ok {
			return nil, fmt.Errorf("item %d: %w", i, ErrProductNotFound)
		}
		if in.Quantity < 1 {
			return nil, fmt.Errorf("item %d: %w", i, ErrInvalidQuantity)
		}
		if in.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("item %d: %w", i, ErrInvalidPrice)
		}
		item := Item{
			ProductID:           product.ID,
			ProductName:         product.Name,
			Quantity:            in.Quantity,
			UnitPrice:           in.UnitPrice,
			PurchaseOrderNumber: in.PurchaseOrderNumber,
		}
		item.TotalPrice = LineTotal(item.Quantity, item.UnitPrice)
		l.items = append(l.items, item)
	}
	return l, nil
}

// AddItem appends an item for productID, or for the first catalog product
// when productID is empty. It returns the index of the new item.
func (l *Ledger) AddItem(productID string) (int, error) {
	if len(l.catalog) == 0 {
		return -1, ErrNoProductsAvailable
	}
	product := l.catalog[0]
	if productID != "" {
		p, ok := l.products[productID]
		if !ok {
			return -1, fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
		}
		product = p
	}
	l.items = append(l.items, Item{
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    1,
		UnitPrice:   product.SellingPrice,
		TotalPrice:  LineTotal(1, product.SellingPrice),
	})
	return len(l.items) - 1, nil
}

// RemoveItem deletes the item at index, keeping the order of the rest.
func (l *Ledger) RemoveItem(index int) error {
	if err := l.checkIndex(index); err != nil {
		return err
	}
	l.items = append(l.items[:index], l.items[index+1:]...)
	return nil
}

// SetProduct points the item at a different product and resets its unit
// price to that product's selling price.
func (l *Ledger) SetProduct(index int, productID string) error {
	if err := l.checkIndex(index); err != nil {
		return err
	}
	product, ok := l.products[productID]
	if !ok {
		return fmt.Errorf("item %d: product %s: %w", index, productID, ErrProductNotFound)
	}
	item := &l.items[index]
	item.ProductID = product.ID
	item.ProductName = product.Name
	item.UnitPrice = product.SellingPrice
	item.TotalPrice = LineTotal(item.Quantity, item.UnitPrice)
	return nil
}

// SetQuantity changes the quantity of the item at index.
func (l *Ledger) SetQuantity(index, quantity int) error {
	if err := l.checkIndex(index); err != nil {
		return err
	}
	if quantity < 1 {
		return fmt.Errorf("item %d: %w", index, ErrInvalidQuantity)
	}
	item := &l.items[index]
	item.Quantity = quantity
	item.TotalPrice = LineTotal(item.Quantity, item.UnitPrice)
	return nil
}

// SetUnitPrice overrides the unit price of the item at index.
func (l *Ledger) SetUnitPrice(index int, price decimal.Decimal) error {
	if err := l.checkIndex(index); err != nil {
		return err
	}
	if price.IsNegative() {
		return fmt.Errorf("item %d: %w", index, ErrInvalidPrice)
	}
	item := &l.items[index]
	item.UnitPrice = price
	item.TotalPrice = LineTotal(item.Quantity, item.UnitPrice)
	return nil
}

// SetPurchaseOrderNumber stores free text against the item at index.
func (l *Ledger) SetPurchaseOrderNumber(index int, poNumber string) error {
	if err := l.checkIndex(index); err != nil {
		return err
	}
	l.items[index].PurchaseOrderNumber = poNumber
	return nil
}

// TotalAmount sums the rounded line totals.
func (l *Ledger) TotalAmount() decimal.Decimal {
	return Sum(l.items)
}

// Snapshot returns a copy of the items in order.
func (l *Ledger) Snapshot() []Item {
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Len reports the number of items.
func (l *Ledger) Len() int {
	return len(l.items)
}

func (l *Ledger) checkIndex(index int) error {
	if index < 0 || index >= len(l.items) {
		return fmt.Errorf("item %d: %w", index, ErrIndexOutOfRange)
	}
	return nil
}

// LineTotal returns quantity * unitPrice rounded to cents.
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return Round2(decimal.NewFromInt(int64(quantity)).Mul(unitPrice))
}

// Sum adds the line totals of items and rounds the result to cents.
func Sum(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.TotalPrice)
	}
	return Round2(sum)
}

// Round2 rounds half up to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// QuantityFromDecimal converts an untrusted numeric quantity to an int.
func QuantityFromDecimal(d decimal.Decimal) (int, error) {
	if !d.IsInteger() || d.LessThan(decimal.NewFromInt(1)) || d.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0, ErrInvalidQuantity
	}
	return int(d.IntPart()), nil
}
