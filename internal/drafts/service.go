package drafts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/catalog"
	"github.com/odyssey-erp/invoicing/internal/invoices"
	"github.com/odyssey-erp/invoicing/internal/ledger"
	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
	"github.com/odyssey-erp/invoicing/internal/shared"
)

// InvoiceService is the slice of the invoice service drafts commit through.
type InvoiceService interface {
	Catalog(ctx context.Context) ([]catalog.Product, error)
	Get(ctx context.Context, id string) (invoices.Invoice, error)
	Create(ctx context.Context, actorID int64, in invoices.InvoiceInput) (invoices.Invoice, error)
	Update(ctx context.Context, actorID int64, id string, in invoices.InvoiceInput) (invoices.Invoice, error)
}

// ItemPatch lists the fields of an item to change. Nil fields are left alone.
// A product change resets the unit price before UnitPrice is applied.
type ItemPatch struct {
	ProductID           *string          `json:"product_id,omitempty"`
	Quantity            *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice           *decimal.Decimal `json:"unit_price,omitempty"`
	PurchaseOrderNumber *string          `json:"po_number,omitempty"`
}

// ErrTooManyItems is returned when a draft already holds invoices.MaxItems items.
var ErrTooManyItems = fmt.Errorf("a draft holds at most %d items", invoices.MaxItems)

// Service applies ledger operations to stored drafts.
type Service struct {
	store    *Store
	invoices InvoiceService
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
	maxItems int
}

// NewService constructs the draft service.
func NewService(store *Store, invoiceSvc InvoiceService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, invoices: invoiceSvc, validate: shared.NewValidator(), logger: logger, now: time.Now, maxItems: invoices.MaxItems}
}

// Start opens a draft for ownerID. With an invoiceID the draft starts from
// that invoice's header and items.
func (s *Service) Start(ctx context.Context, ownerID int64, invoiceID string) (Draft, error) {
	d := Draft{ID: uuid.NewString(), OwnerID: ownerID, Items: []ledger.Item{}}
	if invoiceID != "" {
		inv, err := s.invoices.Get(ctx, invoiceID)
		if err != nil {
			return Draft{}, err
		}
		products, err := s.invoices.Catalog(ctx)
		if err != nil {
			return Draft{}, err
		}
		l, err := ledger.Restore(products, inv.Items)
		if err != nil {
			return Draft{}, fmt.Errorf("%w: %w", httpx.ErrConflict, err)
		}
		d.InvoiceID = inv.ID
		d.Header = Header{
			InvoiceNumber: inv.Number,
			OrderDate:     inv.OrderDate.Format("2006-01-02"),
			PrintDate:     inv.PrintDate.Format("2006-01-02"),
			Status:        string(inv.Status),
		}
		d.Items = l.Snapshot()
	}
	if err := s.save(ctx, &d, ledger.Sum(d.Items)); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Get returns a draft owned by ownerID.
func (s *Service) Get(ctx context.Context, ownerID int64, id string) (Draft, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Draft{}, fmt.Errorf("%w: invalid draft id %q", httpx.ErrValidation, id)
	}
	d, err := s.store.Load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if d.OwnerID != ownerID {
		return Draft{}, fmt.Errorf("draft %s: %w", id, httpx.ErrForbidden)
	}
	return d, nil
}

// Discard deletes a draft.
func (s *Service) Discard(ctx context.Context, ownerID int64, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

// SetHeader replaces the header fields.
func (s *Service) SetHeader(ctx context.Context, ownerID int64, id string, h Header) (Draft, error) {
	h.InvoiceNumber = strings.TrimSpace(h.InvoiceNumber)
	h.Status = strings.ToLower(strings.TrimSpace(h.Status))
	if err := s.validate.Struct(h); err != nil {
		return Draft{}, shared.ValidationError(err)
	}
	d, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Draft{}, err
	}
	d.Header = h
	if err := s.save(ctx, &d, ledger.Sum(d.Items)); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// AddItem appends an item for productID, or for the default product.
func (s *Service) AddItem(ctx context.Context, ownerID int64, id, productID string) (Draft, error) {
	return s.mutate(ctx, ownerID, id, func(l *ledger.Ledger) error {
		if l.Len() >= s.maxItems {
			return ErrTooManyItems
		}
		_, err := l.AddItem(productID)
		return err
	})
}

// RemoveItem deletes the item at index.
func (s *Service) RemoveItem(ctx context.Context, ownerID int64, id string, index int) (Draft, error) {
	return s.mutate(ctx, ownerID, id, func(l *ledger.Ledger) error {
		return l.RemoveItem(index)
	})
}

// SetProduct changes the product of the item at index.
func (s *Service) SetProduct(ctx context.Context, ownerID int64, id string, index int, productID string) (Draft, error) {
	return s.mutate(ctx, ownerID, id, func(l *ledger.Ledger) error {
		return l.SetProduct(index, productID)
	})
}

// SetQuantity changes the quantity of the item at index.
func (s *Service) SetQuantity(ctx context.Context, ownerID int64, id string, index int, quantity decimal.Decimal) (Draft, error) {
	return s.mutate(ctx, ownerID, id, func(l *ledger.Ledger) error {
		return setQuantity(l, index, quantity)
	})
}

// SetUnitPrice overrides the unit price of the item at index.
func (s *Service) SetUnitPrice(ctx context.Context, ownerID int64, id string, index int, price decimal.Decimal) (Draft, error) {
	return s.mutate(ctx, ownerID, id, func(l *ledger.Ledger) error {
		return l.SetUnitPrice(index, price)
	})
}

// SetPurchaseOrderNumber stores the P/O number of the item at index.
func (s *Service) SetPurchaseOrderNumber(ctx context.Context, ownerID int64, id string, index int, po string) (Draft, error) {
	return s.mutate(ctx, ownerID, id, func(l *ledger.Ledger) error {
		return l.SetPurchaseOrderNumber(index, po)
	})
}

// PatchItem applies several item changes at once. Either all apply or none.
func (s *Service) PatchItem(ctx context.Context, ownerID int64, id string, index int, p ItemPatch) (Draft, error) {
	return s.mutate(ctx, ownerID, id, func(l *ledger.Ledger) error {
		if p.ProductID != nil {
			if err := l.SetProduct(index, *p.ProductID); err != nil {
				return err
			}
		}
		if p.Quantity != nil {
			if err := setQuantity(l, index, *p.Quantity); err != nil {
				return err
			}
		}
		if p.UnitPrice != nil {
			if err := l.SetUnitPrice(index, *p.UnitPrice); err != nil {
				return err
			}
		}
		if p.PurchaseOrderNumber != nil {
			if err := l.SetPurchaseOrderNumber(index, strings.TrimSpace(*p.PurchaseOrderNumber)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Commit creates or updates the invoice from the draft and removes the draft.
func (s *Service) Commit(ctx context.Context, ownerID int64, id string) (invoices.Invoice, error) {
	d, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return invoices.Invoice{}, err
	}
	in := invoices.InvoiceInput{
		InvoiceNumber: d.Header.InvoiceNumber,
		OrderDate:     d.Header.OrderDate,
		PrintDate:     d.Header.PrintDate,
		Status:        d.Header.Status,
		Items:         invoices.ItemsToInputs(d.Items),
	}

	var inv invoices.Invoice
	if d.InvoiceID == "" {
		inv, err = s.invoices.Create(ctx, ownerID, in)
	} else {
		inv, err = s.invoices.Update(ctx, ownerID, d.InvoiceID, in)
	}
	if err != nil {
		return invoices.Invoice{}, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Warn("delete committed draft", slog.String("draft_id", id), slog.Any("error", err))
	}
	return inv, nil
}

func (s *Service) mutate(ctx context.Context, ownerID int64, id string, op func(*ledger.Ledger) error) (Draft, error) {
	d, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Draft{}, err
	}
	products, err := s.invoices.Catalog(ctx)
	if err != nil {
		return Draft{}, err
	}
	l, err := ledger.Restore(products, d.Items)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %w", httpx.ErrConflict, err)
	}
	if err := op(l); err != nil {
		return Draft{}, fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	}
	d.Items = l.Snapshot()
	if err := s.save(ctx, &d, l.TotalAmount()); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func (s *Service) save(ctx context.Context, d *Draft, total decimal.Decimal) error {
	d.TotalAmount = total
	d.UpdatedAt = s.now().UTC()
	return s.store.Save(ctx, *d)
}

func setQuantity(l *ledger.Ledger, index int, q decimal.Decimal) error {
	quantity, err := ledger.QuantityFromDecimal(q)
	if err != nil {
		return fmt.Errorf("item %d: %w", index, err)
	}
	return l.SetQuantity(index, quantity)
}
