// Package dashboard aggregates invoice and catalog statistics.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/platform/db"
)

// Repository runs the aggregate queries behind the dashboard.
type Repository interface {
	InvoiceTotals(ctx context.Context) (count int, amount decimal.Decimal, err error)
	InvoicesSince(ctx context.Context, since time.Time) (int, error)
	ProductCount(ctx context.Context) (int, error)
	StatusCounts(ctx context.Context) (map[string]int, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

func (r *repository) InvoiceTotals(ctx context.Context) (int, decimal.Decimal, error) {
	var (
		count int
		raw   string
	)
	err := r.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total_amount), 0)::text FROM invoices`).Scan(&count, &raw)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("dashboard: invoice totals: %w", err)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("dashboard: decode total amount: %w", err)
	}
	return count, amount, nil
}

func (r *repository) InvoicesSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE created_at >= $1`, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("dashboard: recent invoices: %w", err)
	}
	return count, nil
}

func (r *repository) ProductCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("dashboard: product count: %w", err)
	}
	return count, nil
}

func (r *repository) StatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM invoices GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("dashboard: status counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{"draft": 0, "sent": 0, "paid": 0}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}
