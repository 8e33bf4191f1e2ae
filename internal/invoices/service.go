package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/invoicing/internal/catalog"
	"github.com/odyssey-erp/invoicing/internal/export"
	"github.com/odyssey-erp/invoicing/internal/ledger"
	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
	"github.com/odyssey-erp/invoicing/internal/shared"
)

// ProductLister supplies the catalog the ledger resolves products against.
type ProductLister interface {
	List(ctx context.Context, order catalog.SortOrder) ([]catalog.Product, error)
}

// ArchiveEnqueuer schedules background PDF archiving of an invoice.
type ArchiveEnqueuer interface {
	EnqueueInvoiceArchive(ctx context.Context, invoiceID string) error
}

// AuditRecorder stores audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheInvalidator drops cached aggregates after invoice writes.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Options carries the optional collaborators of the Service.
type Options struct {
	Renderer  export.Renderer
	Formatter *export.Formatter
	Archiver  ArchiveEnqueuer
	Audit     AuditRecorder
	Cache     CacheInvalidator
	Logger    *slog.Logger
	Now       func() time.Time
}

// MaxItems caps the line items of one invoice.
const MaxItems = 500

// Service implements invoice use cases.
type Service struct {
	repo      Repository
	products  ProductLister
	validate  *validator.Validate
	renderer  export.Renderer
	formatter *export.Formatter
	archiver  ArchiveEnqueuer
	audit     AuditRecorder
	cache     CacheInvalidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the invoice service.
func NewService(repo Repository, products ProductLister, opts Options) *Service {
	s := &Service{
		repo:      repo,
		products:  products,
		validate:  shared.NewValidator(),
		renderer:  opts.Renderer,
		formatter: opts.Formatter,
		archiver:  opts.Archiver,
		audit:     opts.Audit,
		cache:     opts.Cache,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if s.renderer == nil {
		s.renderer = export.NewFPDFRenderer()
	}
	if s.formatter == nil {
		s.formatter = export.NewFormatter("")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Catalog returns the products available to invoice lines, ordered by name.
func (s *Service) Catalog(ctx context.Context) ([]catalog.Product, error) {
	products, err := s.products.List(ctx, catalog.SortName)
	if err != nil {
		return nil, fmt.Errorf("invoices: load catalog: %w", err)
	}
	return products, nil
}

// Preview computes line and invoice totals without persisting anything.
func (s *Service) Preview(ctx context.Context, items []ItemInput) (Preview, error) {
	if len(items) > MaxItems {
		return Preview{}, fmt.Errorf("%w: at most %d items", httpx.ErrValidation, MaxItems)
	}
	for _, item := range items {
		if err := s.validate.Struct(item); err != nil {
			return Preview{}, shared.ValidationError(err)
		}
	}
	products, err := s.Catalog(ctx)
	if err != nil {
		return Preview{}, err
	}
	l, err := BuildLedger(products, items)
	if err != nil {
		return Preview{}, err
	}
	return Preview{Items: l.Snapshot(), TotalAmount: l.TotalAmount()}, nil
}

// Create stores a new draft invoice with its items.
func (s *Service) Create(ctx context.Context, actorID int64, in InvoiceInput) (Invoice, error) {
	in.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	if err := s.validate.Struct(in); err != nil {
		return Invoice{}, shared.ValidationError(err)
	}
	today := truncateDay(s.now())
	orderDate, err := parseDate(in.OrderDate, today)
	if err != nil {
		return Invoice{}, err
	}
	printDate, err := parseDate(in.PrintDate, today)
	if err != nil {
		return Invoice{}, err
	}
	products, err := s.Catalog(ctx)
	if err != nil {
		return Invoice{}, err
	}
	l, err := BuildLedger(products, in.Items)
	if err != nil {
		return Invoice{}, err
	}

	inv := Invoice{
		Number:      in.InvoiceNumber,
		OrderDate:   orderDate,
		PrintDate:   printDate,
		Status:      StatusDraft,
		TotalAmount: l.TotalAmount(),
	}
	items := l.Snapshot()
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		created, err := repo.CreateHeader(ctx, inv)
		if err != nil {
			return err
		}
		inv = created
		return repo.InsertItems(ctx, inv.ID, items)
	})
	if err != nil {
		return Invoice{}, err
	}
	inv.Items = items

	s.afterWrite(ctx, actorID, "invoice.create", inv.ID, map[string]any{
		"invoice_number": inv.Number,
		"total_amount":   inv.TotalAmount.StringFixed(2),
		"items":          len(items),
	})
	return inv, nil
}

// Update replaces the header and every item of an invoice. Empty dates and
// status keep their stored values.
func (s *Service) Update(ctx context.Context, actorID int64, id string, in InvoiceInput) (Invoice, error) {
	if err := catalog.ValidateID(id); err != nil {
		return Invoice{}, err
	}
	in.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	if err := s.validate.Struct(in); err != nil {
		return Invoice{}, shared.ValidationError(err)
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}

	next := current
	next.Number = in.InvoiceNumber
	if next.OrderDate, err = parseDate(in.OrderDate, current.OrderDate); err != nil {
		return Invoice{}, err
	}
	if next.PrintDate, err = parseDate(in.PrintDate, current.PrintDate); err != nil {
		return Invoice{}, err
	}
	if strings.TrimSpace(in.Status) != "" {
		if next.Status, err = ParseStatus(in.Status); err != nil {
			return Invoice{}, err
		}
	}

	products, err := s.Catalog(ctx)
	if err != nil {
		return Invoice{}, err
	}
	l, err := BuildLedger(products, in.Items)
	if err != nil {
		return Invoice{}, err
	}
	next.TotalAmount = l.TotalAmount()
	next.Items = l.Snapshot()

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateHeader(ctx, next); err != nil {
			return err
		}
		if err := repo.DeleteItems(ctx, next.ID); err != nil {
			return err
		}
		return repo.InsertItems(ctx, next.ID, next.Items)
	})
	if err != nil {
		return Invoice{}, err
	}

	s.afterWrite(ctx, actorID, "invoice.update", next.ID, map[string]any{
		"invoice_number": next.Number,
		"status":         string(next.Status),
		"total_amount":   next.TotalAmount.StringFixed(2),
		"items":          len(next.Items),
	})
	s.statusChanged(ctx, next.ID, current.Status, next.Status)
	return next, nil
}

// SetStatus moves an invoice to any of the three statuses.
func (s *Service) SetStatus(ctx context.Context, actorID int64, id, status string) (Invoice, error) {
	if err := catalog.ValidateID(id); err != nil {
		return Invoice{}, err
	}
	next, err := ParseStatus(status)
	if err != nil {
		return Invoice{}, err
	}
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	previous := inv.Status
	if previous != next {
		if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
			return Invoice{}, err
		}
		inv.Status = next
		s.afterWrite(ctx, actorID, "invoice.status", id, map[string]any{"from": string(previous), "to": string(next)})
		s.statusChanged(ctx, id, previous, next)
	}
	return inv, nil
}

// Get returns an invoice with its items.
func (s *Service) Get(ctx context.Context, id string) (Invoice, error) {
	if err := catalog.ValidateID(id); err != nil {
		return Invoice{}, err
	}
	return s.repo.Get(ctx, id)
}

// List returns one page of invoices, newest first.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Invoice, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	list, total, err := s.repo.List(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// Document lays out an invoice for rendering. The printed total is derived
// from the stored line totals.
func (s *Service) Document(ctx context.Context, id string) (export.Document, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return export.Document{}, err
	}
	return s.document(inv), nil
}

func (s *Service) document(inv Invoice) export.Document {
	return export.Build(export.Header{
		Number:    inv.Number,
		OrderDate: inv.OrderDate,
		PrintDate: inv.PrintDate,
		Status:    string(inv.Status),
	}, inv.Items, ledger.Sum(inv.Items), s.formatter)
}

// ExportPDF renders an invoice and returns the download name and bytes.
func (s *Service) ExportPDF(ctx context.Context, id string) (string, []byte, error) {
	doc, err := s.Document(ctx, id)
	if err != nil {
		return "", nil, err
	}
	data, err := s.renderer.Render(ctx, doc)
	if err != nil {
		return "", nil, fmt.Errorf("invoices: render pdf: %w", err)
	}
	return doc.Filename, data, nil
}

// ArchivePDF renders an invoice and stores the document alongside it.
func (s *Service) ArchivePDF(ctx context.Context, id string) error {
	filename, data, err := s.ExportPDF(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SaveDocument(ctx, id, filename, data); err != nil {
		return err
	}
	s.logger.Info("invoice pdf archived", slog.String("invoice_id", id), slog.Int("bytes", len(data)))
	return nil
}

// PendingArchives returns up to limit sent or paid invoices without a stored PDF.
func (s *Service) PendingArchives(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.UnarchivedIDs(ctx, limit)
}

func (s *Service) statusChanged(ctx context.Context, id string, from, to Status) {
	if from == to || to != StatusSent || s.archiver == nil {
		return
	}
	if err := s.archiver.EnqueueInvoiceArchive(ctx, id); err != nil {
		s.logger.Warn("enqueue invoice archive", slog.String("invoice_id", id), slog.Any("error", err))
	}
}

func (s *Service) afterWrite(ctx context.Context, actorID int64, action, id string, meta map[string]any) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump dashboard cache", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "invoice", EntityID: id, Meta: meta}); err != nil {
			s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
		}
	}
}
