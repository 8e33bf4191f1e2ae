package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/platform/db"
	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
)

// ErrProductInUse is returned when deleting a product referenced by invoices.
var ErrProductInUse = fmt.Errorf("product is referenced by invoice items: %w", httpx.ErrConflict)

// Repository persists products.
type Repository interface {
	List(ctx context.Context, order SortOrder) ([]Product, error)
	Get(ctx context.Context, id string) (Product, error)
	Create(ctx context.Context, in ProductInput) (Product, error)
	Update(ctx context.Context, id string, in ProductInput) (Product, error)
	Delete(ctx context.Context, id string) error
}

type repository struct {
	db db.DBTX
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

const productColumns = `id::text, name, purchase_price::text, selling_price::text, created_at`

type productRecord struct {
	ID            string
	Name          string
	PurchasePrice string
	SellingPrice  string
	CreatedAt     time.Time
}

func (rec productRecord) toProduct() (Product, error) {
	purchase, err := decimal.NewFromString(rec.PurchasePrice)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: decode purchase_price of %s: %w", rec.ID, err)
	}
	selling, err := decimal.NewFromString(rec.SellingPrice)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: decode selling_price of %s: %w", rec.ID, err)
	}
	return Product{
		ID:            rec.ID,
		Name:          rec.Name,
		PurchasePrice: purchase,
		SellingPrice:  selling,
		CreatedAt:     rec.CreatedAt,
	}, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var rec productRecord
	if err := row.Scan(&rec.ID, &rec.Name, &rec.PurchasePrice, &rec.SellingPrice, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("product: %w", httpx.ErrNotFound)
		}
		return Product{}, err
	}
	return rec.toProduct()
}

func (r *repository) List(ctx context.Context, order SortOrder) ([]Product, error) {
	orderBy := "created_at DESC"
	if order == SortName {
		orderBy = "name ASC"
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY `+orderBy)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, in ProductInput) (Product, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO products (name, purchase_price, selling_price)
VALUES ($1, $2, $3) RETURNING `+productColumns, in.Name, in.PurchasePrice, in.SellingPrice)
	p, err := scanProduct(row)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: create product: %w", err)
	}
	return p, nil
}

func (r *repository) Update(ctx context.Context, id string, in ProductInput) (Product, error) {
	row := r.db.QueryRow(ctx, `UPDATE products SET name = $1, purchase_price = $2, selling_price = $3
WHERE id = $4 RETURNING `+productColumns, in.Name, in.PurchasePrice, in.SellingPrice, id)
	return scanProduct(row)
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if db.IsCode(err, db.CodeForeignKeyViolation) {
			return ErrProductInUse
		}
		return fmt.Errorf("catalog: delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product: %w", httpx.ErrNotFound)
	}
	return nil
}
