package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"budget/internal/core"
	"budget/internal/persistence"
)

func txnCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "txn",
		Aliases: []string{"transaction", "transactions"},
		Short:   "Add, update, delete or list transactions",
	}
	cmd.AddCommand(addTxnCmd(opts))
	cmd.AddCommand(updateTxnCmd(opts))
	cmd.AddCommand(deleteTxnCmd(opts))
	cmd.AddCommand(listTxnCmd(opts))
	return cmd
}

func addTxnCmd(opts *rootOptions) *cobra.Command {
	var kind, category, date string

	cmd := &cobra.Command{
		Use:   "add <description> <amount>",
		Short: "Record a transaction",
		Long: `Record a transaction. Expenses count toward their category's spent total;
income is recorded but never reduces spent.

Examples:
  ledger txn add "Groceries" 42.50 --category food
  ledger txn add "Salary" 2500 --type income --date 2025-06-27`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseMoney(args[1])
			if err != nil {
				return core.NewValidationError(err)
			}
			typ, err := core.ParseTransactionType(kind)
			if err != nil {
				return core.NewValidationError(err)
			}
			in := core.NewTransaction{Description: args[0], Amount: amount, Type: typ}
			if date != "" {
				if in.OccurredAt, err = parseDate(date); err != nil {
					return core.NewValidationError(err)
				}
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				if in.CategoryID, err = a.categoryRef(category); err != nil {
					return err
				}
				t, err := a.ledger.AddTransaction(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("✓ Recorded %s %s (ID: %s)", t.Type, t.Amount, t.ID)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", "expense", "expense or income")
	cmd.Flags().StringVarP(&category, "category", "c", "", "category id or name (empty leaves it unlabeled)")
	cmd.Flags().StringVar(&date, "date", "", "date the transaction occurred (YYYY-MM-DD, default now)")
	return cmd
}

func updateTxnCmd(opts *rootOptions) *cobra.Command {
	var description, amount, kind, category, date string
	var unlabel bool

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var changes core.TransactionChanges
			flags := cmd.Flags()
			if flags.Changed("description") {
				changes.Description = &description
			}
			if flags.Changed("amount") {
				m, err := core.ParseMoney(amount)
				if err != nil {
					return core.NewValidationError(err)
				}
				changes.Amount = &m
			}
			if flags.Changed("type") {
				typ, err := core.ParseTransactionType(kind)
				if err != nil {
					return core.NewValidationError(err)
				}
				changes.Type = &typ
			}
			if flags.Changed("date") {
				at, err := parseDate(date)
				if err != nil {
					return core.NewValidationError(err)
				}
				changes.OccurredAt = &at
			}
			if unlabel && flags.Changed("category") {
				return fmt.Errorf("--unlabel and --category are mutually exclusive")
			}
			changes.ClearCategory = unlabel

			return withApp(cmd.Context(), opts, func(a *app) error {
				if flags.Changed("category") {
					id, err := a.categoryRef(category)
					if err != nil {
						return err
					}
					changes.CategoryID = &id
				}
				t, err := a.ledger.UpdateTransaction(cmd.Context(), args[0], changes)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("✓ Updated transaction %s", t.ID)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&amount, "amount", "", "new amount")
	cmd.Flags().StringVarP(&kind, "type", "t", "", "expense or income")
	cmd.Flags().StringVarP(&category, "category", "c", "", "new category id or name")
	cmd.Flags().BoolVar(&unlabel, "unlabel", false, "remove the category")
	cmd.Flags().StringVar(&date, "date", "", "new date (YYYY-MM-DD)")
	return cmd
}

func deleteTxnCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.ledger.DeleteTransaction(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("✓ Deleted transaction "+args[0]))
				return nil
			})
		},
	}
}

func listTxnCmd(opts *rootOptions) *cobra.Command {
	var category, from, to string
	var unlabeled bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := persistence.TransactionFilter{Unlabeled: unlabeled, Limit: limit}
			if from != "" {
				at, err := parseDate(from)
				if err != nil {
					return core.NewValidationError(err)
				}
				filter.From = &at
			}
			if to != "" {
				at, err := parseDate(to)
				if err != nil {
					return core.NewValidationError(err)
				}
				// A bare date includes the whole day.
				if at.Equal(at.Truncate(24 * time.Hour)) {
					at = at.Add(24*time.Hour - time.Nanosecond)
				}
				filter.To = &at
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				if category != "" {
					c, err := a.resolveCategory(category)
					if err != nil {
						return err
					}
					filter.CategoryID = c.ID
				}
				views := a.stats.Transactions(filter)
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), SubtleStyle.Render("No transactions found."))
					return nil
				}
				renderTransactions(cmd.OutOrStdout(), views)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "only this category (id or name)")
	cmd.Flags().BoolVar(&unlabeled, "unlabeled", false, "only unlabeled transactions")
	cmd.Flags().StringVar(&from, "from", "", "earliest date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "latest date (YYYY-MM-DD)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of rows (0 for all)")
	return cmd
}

func renderTransactions(out io.Writer, views []core.TransactionView) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		HeaderStyle.Render("ID"),
		HeaderStyle.Render("Date"),
		HeaderStyle.Render("Description"),
		HeaderStyle.Render("Type"),
		HeaderStyle.Render("Amount"),
		HeaderStyle.Render("Category"))
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		strings.Repeat("-", 8), strings.Repeat("-", 10), strings.Repeat("-", 24),
		strings.Repeat("-", 7), strings.Repeat("-", 10), strings.Repeat("-", 12))

	for _, v := range views {
		category := SubtleStyle.Render("(unlabeled)")
		if v.Category != nil {
			category = v.Category.Name
		}
		amount := v.Amount.String()
		if v.IsDebit() {
			amount = "-" + amount
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.OccurredAt.Format("2006-01-02"), v.Description, v.Type, amount, category)
	}
}
