// Package cli implements the invoicectl admin commands.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/invoicing/internal/auth"
)

// Migrator applies pending schema migrations.
type Migrator interface {
	Migrate(ctx context.Context) ([]int, error)
}

// UserCreator provisions sign-in accounts.
type UserCreator interface {
	CreateUser(ctx context.Context, email, password string) (*auth.User, error)
}

// PDFExporter renders an invoice to PDF.
type PDFExporter interface {
	ExportPDF(ctx context.Context, id string) (string, []byte, error)
}

// ArchiveEnqueuer queues a background PDF archive.
type ArchiveEnqueuer interface {
	EnqueueInvoiceArchive(ctx context.Context, invoiceID string) error
}

// Deps are the collaborators the commands need. Fields may be nil when the
// opener was asked for a subset.
type Deps struct {
	Migrator Migrator
	Users    UserCreator
	Invoices PDFExporter
	Jobs     ArchiveEnqueuer
}

// Opener connects the dependencies lazily so --help never touches the network.
// The returned func releases them.
type Opener func(ctx context.Context) (*Deps, func(), error)

var errNotConfigured = errors.New("invoicectl: dependency not configured")

// NewRootCommand builds the command tree.
func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Administer the invoicing service",
		Long:          `invoicectl runs schema migrations, provisions users and exports invoice PDFs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCommand(open))
	root.AddCommand(newUserCommand(open))
	root.AddCommand(newExportCommand(open))
	root.AddCommand(newJobsCommand(open))
	return root
}

func withDeps(cmd *cobra.Command, open Opener, fn func(ctx context.Context, deps *Deps) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	deps, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(ctx, deps)
}
