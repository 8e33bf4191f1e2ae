package export

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DateLayout matches the month/day/year short date used on printed invoices.
const DateLayout = "1/2/2006"

// Formatter renders money amounts for documents.
type Formatter struct {
	symbol  string
	printer *message.Printer
}

// NewFormatter returns a Formatter prefixing amounts with symbol ("$" when empty).
func NewFormatter(symbol string) *Formatter {
	if symbol == "" {
		symbol = "$"
	}
	return &Formatter{symbol: symbol, printer: message.NewPrinter(language.AmericanEnglish)}
}

// Currency formats d with two decimals and thousands separators.
func (f *Formatter) Currency(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	v, _ := d.Round(2).Float64()
	return sign + f.symbol + f.printer.Sprintf("%.2f", v)
}

// FormatDate renders a calendar date, or an empty string for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// Filename returns the download name for an invoice number.
func Filename(invoiceNumber string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(invoiceNumber))
	return "invoice-" + cleaned + ".pdf"
}
