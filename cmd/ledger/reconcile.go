package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func reconcileCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute every category's spent from its transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				out := cmd.OutOrStdout()
				drift := a.ledger.CheckDrift()
				for _, d := range drift {
					fmt.Fprintf(out, "%s %s: held %s, expected %s\n",
						WarningStyle.Render("drift"), d.CategoryID, d.Held, d.Expected)
				}
				if dryRun {
					if len(drift) == 0 {
						fmt.Fprintln(out, SuccessStyle.Render("✓ No drift"))
					}
					return nil
				}

				cats, err := a.ledger.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, SuccessStyle.Render(fmt.Sprintf("✓ Reconciled %d category(ies) at version %d", len(cats), a.ledger.Version())))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report drift")
	return cmd
}
