package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"budget/internal/core"
)

func categoriesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories with budget usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				cats := a.stats.Categories()
				out := cmd.OutOrStdout()
				if len(cats) == 0 {
					fmt.Fprintln(out, SubtleStyle.Render("No categories found. Use 'ledger category add' to create one."))
					return nil
				}
				renderCategories(out, cats)
				return nil
			})
		},
	}
}

func categoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Add, update or delete a category",
	}
	cmd.AddCommand(addCategoryCmd(opts))
	cmd.AddCommand(updateCategoryCmd(opts))
	cmd.AddCommand(deleteCategoryCmd(opts))
	return cmd
}

func addCategoryCmd(opts *rootOptions) *cobra.Command {
	var budget, color string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a new category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := core.NewCategory{Name: args[0], Color: color}
			if budget != "" {
				m, err := parseBudget(budget)
				if err != nil {
					return err
				}
				in.Budget = m
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				c, err := a.ledger.AddCategory(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("✓ Created category %q (ID: %s)", c.Name, c.ID)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&budget, "budget", "", "budget ceiling, e.g. 250.00")
	cmd.Flags().StringVar(&color, "color", "", "display color")
	return cmd
}

func updateCategoryCmd(opts *rootOptions) *cobra.Command {
	var name, budget, color string

	cmd := &cobra.Command{
		Use:   "update <id|name>",
		Short: "Update a category's name, budget or color",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var changes core.CategoryChanges
			flags := cmd.Flags()
			if flags.Changed("name") {
				changes.Name = &name
			}
			if flags.Changed("budget") {
				m, err := parseBudget(budget)
				if err != nil {
					return err
				}
				changes.Budget = &m
			}
			if flags.Changed("color") {
				changes.Color = &color
			}
			if changes.Name == nil && changes.Budget == nil && changes.Color == nil {
				return fmt.Errorf("must specify --name, --budget or --color to update")
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				current, err := a.resolveCategory(args[0])
				if err != nil {
					return err
				}
				c, err := a.ledger.UpdateCategory(cmd.Context(), current.ID, changes)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("✓ Updated category %q", c.Name)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&budget, "budget", "", "new budget ceiling (0 removes it)")
	cmd.Flags().StringVar(&color, "color", "", "new display color")
	return cmd
}

func deleteCategoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete a category; its transactions become unlabeled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				c, err := a.resolveCategory(args[0])
				if err != nil {
					return err
				}
				moved := len(a.stats.TransactionsFor(c.ID))
				if err := a.ledger.DeleteCategory(cmd.Context(), c.ID); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("✓ Deleted category %q", c.Name)))
				if moved > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "  %d transaction(s) are now unlabeled\n", moved)
				}
				return nil
			})
		},
	}
}

func renderCategories(out io.Writer, cats []core.Category) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		HeaderStyle.Render("ID"),
		HeaderStyle.Render("Name"),
		HeaderStyle.Render("Budget"),
		HeaderStyle.Render("Spent"),
		HeaderStyle.Render("Remaining"),
		HeaderStyle.Render("Usage"),
		HeaderStyle.Render("Status"))
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		strings.Repeat("-", 8), strings.Repeat("-", 16), strings.Repeat("-", 10),
		strings.Repeat("-", 10), strings.Repeat("-", 10), strings.Repeat("-", 7), strings.Repeat("-", 6))

	for _, c := range cats {
		st := c.Stats()
		budget, usage := "-", "-"
		if c.HasBudget() {
			budget = st.Budget.String()
			usage = fmt.Sprintf("%.2f%%", st.UsagePercentage)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Name, budget, st.Spent.String(), st.Remaining.String(), usage, status(c))
	}
}

func status(c core.Category) string {
	switch {
	case c.IsOverBudget():
		return ErrorStyle.Render("OVER")
	case !c.HasBudget():
		return SubtleStyle.Render("no budget")
	default:
		return SuccessStyle.Render("ok")
	}
}
