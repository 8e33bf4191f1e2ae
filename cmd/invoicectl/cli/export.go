package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExportCommand(open Opener) *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export invoices",
	}

	var outPath string
	pdfCmd := &cobra.Command{
		Use:   "pdf <invoice-id>",
		Short: "Render an invoice to a PDF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, open, func(ctx context.Context, deps *Deps) error {
				if deps.Invoices == nil {
					return errNotConfigured
				}
				filename, data, err := deps.Invoices.ExportPDF(ctx, args[0])
				if err != nil {
					return err
				}
				target := outPath
				if target == "" {
					target = filename
				}
				if target == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(target, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", target, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", target, len(data))
				return nil
			})
		},
	}
	pdfCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file, - for stdout (default invoice-<number>.pdf)")
	exportCmd.AddCommand(pdfCmd)
	return exportCmd
}
