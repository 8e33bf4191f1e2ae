// Package export turns invoices into printable documents.
package export

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/ledger"
)

// Column describes one table column of the invoice document.
type Column struct {
	Title string
	Width float64
	Right bool
}

// Columns is the fixed item table layout, widths in millimetres.
var Columns = []Column{
	{Title: "Product", Width: 60},
	{Title: "Quantity", Width: 20, Right: true},
	{Title: "P/O Number", Width: 30},
	{Title: "Unit Price", Width: 30, Right: true},
	{Title: "Total", Width: 30, Right: true},
}

// Row is one rendered table row.
type Row struct {
	Product   string
	Quantity  string
	PONumber  string
	UnitPrice string
	Total     string
}

// Cells returns the row in column order.
func (r Row) Cells() []string {
	return []string{r.Product, r.Quantity, r.PONumber, r.UnitPrice, r.Total}
}

// Header is the invoice data printed above the item table.
type Header struct {
	Number    string
	OrderDate time.Time
	PrintDate time.Time
	Status    string
}

// Document is an invoice laid out for rendering.
type Document struct {
	Title    string
	Meta     []string
	Columns  []Column
	Rows     []Row
	Footer   Row
	Filename string
}

// Build lays out an invoice. total is expected to be the ledger total of items.
func Build(h Header, items []ledger.Item, total decimal.Decimal, f *Formatter) Document {
	if f == nil {
		f = NewFormatter("")
	}
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, Row{
			Product:   item.ProductName,
			Quantity:  strconv.Itoa(item.Quantity),
			PONumber:  item.PurchaseOrderNumber,
			UnitPrice: f.Currency(item.UnitPrice),
			Total:     f.Currency(item.TotalPrice),
		})
	}
	return Document{
		Title: "Invoice #" + h.Number,
		Meta: []string{
			"Order Date: " + FormatDate(h.OrderDate),
			"Print Date: " + FormatDate(h.PrintDate),
			"Status: " + strings.ToUpper(h.Status),
		},
		Columns:  Columns,
		Rows:     rows,
		Footer:   Row{UnitPrice: "Total:", Total: f.Currency(total)},
		Filename: Filename(h.Number),
	}
}

// Renderer produces PDF bytes for a document.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// RenderObserver receives the outcome of every render.
type RenderObserver interface {
	ObservePDFRender(renderer string, took time.Duration, err error)
}

type observedRenderer struct {
	next     Renderer
	name     string
	observer RenderObserver
}

// WithObserver reports each render of next to observer under name.
// A nil observer returns next unchanged.
func WithObserver(next Renderer, name string, observer RenderObserver) Renderer {
	if observer == nil {
		return next
	}
	return &observedRenderer{next: next, name: name, observer: observer}
}

func (r *observedRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	start := time.Now()
	data, err := r.next.Render(ctx, doc)
	r.observer.ObservePDFRender(r.name, time.Since(start), err)
	return data, err
}
