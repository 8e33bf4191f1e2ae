package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newJobsCommand(open Opener) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger background jobs",
	}
	jobsCmd.AddCommand(&cobra.Command{
		Use:   "archive <invoice-id>",
		Short: "Queue a PDF archive of an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, open, func(ctx context.Context, deps *Deps) error {
				if deps.Jobs == nil {
					return errNotConfigured
				}
				if err := deps.Jobs.EnqueueInvoiceArchive(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued archive for %s\n", args[0])
				return nil
			})
		},
	})
	return jobsCmd
}
