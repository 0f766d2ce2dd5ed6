package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func recategorizeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recategorize <txn>=<category>...",
		Short: "Move several transactions to new categories at once",
		Long: `Move several transactions in one all-or-nothing batch. The category may be
an id or a name; leave it empty to unlabel the transaction.

Examples:
  ledger recategorize 3f2a=food 9c1e=rent
  ledger recategorize 3f2a=`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := parseRecategorizations(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				for i := range updates {
					if updates[i].CategoryID, err = a.categoryRef(updates[i].CategoryID); err != nil {
						return err
					}
				}
				moved, err := a.ledger.BulkRecategorize(cmd.Context(), updates)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("✓ Recategorized %d transaction(s)", len(moved))))
				return nil
			})
		},
	}
}
