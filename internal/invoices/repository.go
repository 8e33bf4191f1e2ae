package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/ledger"
	"github.com/odyssey-erp/invoicing/internal/platform/db"
	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
)

// ErrDuplicateNumber is returned when an invoice number is already taken.
var ErrDuplicateNumber = fmt.Errorf("invoice number already exists: %w", httpx.ErrConflict)

// Repository persists invoice headers, items and archived documents.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, limit, offset int) ([]Invoice, int, error)
	CreateHeader(ctx context.Context, inv Invoice) (Invoice, error)
	UpdateHeader(ctx context.Context, inv Invoice) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	DeleteItems(ctx context.Context, invoiceID string) error
	InsertItems(ctx context.Context, invoiceID string, items []ledger.Item) error
	SaveDocument(ctx context.Context, invoiceID, filename string, data []byte) error
	UnarchivedIDs(ctx context.Context, limit int) ([]string, error)
}

type repository struct {
	pool db.Pool
	db   db.DBTX
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool db.Pool) Repository {
	return &repository{pool: pool, db: pool}
}

// WithTx runs fn with a Repository bound to a single transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{pool: r.pool, db: tx})
	})
}

const invoiceColumns = `id::text, invoice_number, order_date, print_date, status, total_amount::text, created_at`

type invoiceRecord struct {
	ID          string
	Number      string
	OrderDate   time.Time
	PrintDate   time.Time
	Status      string
	TotalAmount string
	CreatedAt   time.Time
}

func (rec invoiceRecord) toInvoice() (Invoice, error) {
	total, err := decimal.NewFromString(rec.TotalAmount)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: decode total_amount of %s: %w", rec.ID, err)
	}
	status, err := ParseStatus(rec.Status)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: decode status of %s: %q", rec.ID, rec.Status)
	}
	return Invoice{
		ID:          rec.ID,
		Number:      rec.Number,
		OrderDate:   rec.OrderDate,
		PrintDate:   rec.PrintDate,
		Status:      status,
		TotalAmount: total,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var rec invoiceRecord
	if err := row.Scan(&rec.ID, &rec.Number, &rec.OrderDate, &rec.PrintDate, &rec.Status, &rec.TotalAmount, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("invoice: %w", httpx.ErrNotFound)
		}
		return Invoice{}, err
	}
	return rec.toInvoice()
}

func (r *repository) Get(ctx context.Context, id string) (Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return Invoice{}, err
	}
	items, err := r.listItems(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Items = items
	return inv, nil
}

func (r *repository) listItems(ctx context.Context, invoiceID string) ([]ledger.Item, error) {
	rows, err := r.db.Query(ctx, `SELECT ii.product_id::text, p.name, ii.quantity, ii.unit_price::text,
COALESCE(ii.po_number, ''), ii.total_price::text
FROM invoice_items ii
JOIN products p ON p.id = ii.product_id
WHERE ii.invoice_id = $1
ORDER BY ii.position, ii.id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoices: list items: %w", err)
	}
	defer rows.Close()

	items := make([]ledger.Item, 0)
	for rows.Next() {
		var (
			item              ledger.Item
			unitPrice, amount string
		)
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &unitPrice, &item.PurchaseOrderNumber, &amount); err != nil {
			return nil, err
		}
		if item.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("invoices: decode unit_price: %w", err)
		}
		if item.TotalPrice, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invoices: decode total_price: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]Invoice, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("invoices: count: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("invoices: list: %w", err)
	}
	defer rows.Close()

	out := make([]Invoice, 0, limit)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func (r *repository) CreateHeader(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO invoices (invoice_number, order_date, print_date, status, total_amount)
VALUES ($1, $2, $3, $4, $5) RETURNING `+invoiceColumns,
		inv.Number, inv.OrderDate, inv.PrintDate, string(inv.Status), inv.TotalAmount)
	created, err := scanInvoice(row)
	if err != nil {
		if db.IsCode(err, db.CodeUniqueViolation) {
			return Invoice{}, ErrDuplicateNumber
		}
		return Invoice{}, fmt.Errorf("invoices: create header: %w", err)
	}
	return created, nil
}

func (r *repository) UpdateHeader(ctx context.Context, inv Invoice) error {
	tag, err := r.db.Exec(ctx, `UPDATE invoices
SET invoice_number = $1, order_date = $2, print_date = $3, status = $4, total_amount = $5
WHERE id = $6`, inv.Number, inv.OrderDate, inv.PrintDate, string(inv.Status), inv.TotalAmount, inv.ID)
	if err != nil {
		if db.IsCode(err, db.CodeUniqueViolation) {
			return ErrDuplicateNumber
		}
		return fmt.Errorf("invoices: update header: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice: %w", httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE invoices SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("invoices: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice: %w", httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) DeleteItems(ctx context.Context, invoiceID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("invoices: delete items: %w", err)
	}
	return nil
}

func (r *repository) InsertItems(ctx context.Context, invoiceID string, items []ledger.Item) error {
	for i, item := range items {
		var po *string
		if item.PurchaseOrderNumber != "" {
			v := item.PurchaseOrderNumber
			po = &v
		}
		if _, err := r.db.Exec(ctx, `INSERT INTO invoice_items
(invoice_id, position, product_id, quantity, unit_price, po_number, total_price)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			invoiceID, i, item.ProductID, item.Quantity, item.UnitPrice, po, item.TotalPrice); err != nil {
			if db.IsCode(err, db.CodeForeignKeyViolation) {
				return fmt.Errorf("%w: items[%d]: %w", httpx.ErrValidation, i, ledger.ErrProductNotFound)
			}
			return fmt.Errorf("invoices: insert item %d: %w", i, err)
		}
	}
	return nil
}

func (r *repository) SaveDocument(ctx context.Context, invoiceID, filename string, data []byte) error {
	_, err := r.db.Exec(ctx, `INSERT INTO invoice_documents (invoice_id, filename, content, created_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (invoice_id) DO UPDATE SET filename = EXCLUDED.filename, content = EXCLUDED.content, created_at = EXCLUDED.created_at`,
		invoiceID, filename, data)
	if err != nil {
		return fmt.Errorf("invoices: save document: %w", err)
	}
	return nil
}

// UnarchivedIDs lists issued invoices that have no stored document, oldest first.
func (r *repository) UnarchivedIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT i.id::text
FROM invoices i
LEFT JOIN invoice_documents d ON d.invoice_id = i.id
WHERE i.status <> 'draft' AND d.invoice_id IS NULL
ORDER BY i.created_at
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("invoices: unarchived: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("invoices: unarchived: %w", err)
	}
	return ids, nil
}
