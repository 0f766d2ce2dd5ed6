package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"budget/internal/core"
)

func statsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [category]",
		Short: "Show portfolio or single-category budget statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					renderPortfolio(out, a.stats.PortfolioStats())
					return nil
				}
				c, err := a.resolveCategory(args[0])
				if err != nil {
					return err
				}
				renderCategoryStats(out, c, a.stats.CategoryStats(c.ID))
				txns := a.stats.TransactionsFor(c.ID)
				if len(txns) > 0 {
					fmt.Fprintln(out)
					views := make([]core.TransactionView, len(txns))
					for i, t := range txns {
						views[i] = core.TransactionView{Transaction: t, Category: &c}
					}
					renderTransactions(out, views)
				}
				return nil
			})
		},
	}
}

func renderPortfolio(out io.Writer, st core.PortfolioStats) {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Portfolio") + "\n")
	fmt.Fprintf(&b, "Categories:  %d\n", st.CategoriesCount)
	fmt.Fprintf(&b, "Budget:      %s\n", st.TotalBudget)
	fmt.Fprintf(&b, "Spent:       %s\n", st.TotalSpent)
	fmt.Fprintf(&b, "Remaining:   %s\n", st.TotalRemaining)
	fmt.Fprintf(&b, "Usage:       %.2f%%", st.OverallUsagePercentage)
	fmt.Fprintln(out, BoxStyle.Render(b.String()))

	if len(st.OverBudget) == 0 {
		fmt.Fprintln(out, SuccessStyle.Render("✓ No category is over budget"))
		return
	}
	fmt.Fprintln(out, WarningStyle.Render(fmt.Sprintf("⚠ %d category(ies) over budget:", len(st.OverBudget))))
	for _, c := range st.OverBudget {
		fmt.Fprintf(out, "  %s  %s of %s (%.2f%%)\n",
			ErrorStyle.Render(c.Name), c.Spent, c.Budget, c.UsagePercentage())
	}
}

func renderCategoryStats(out io.Writer, c core.Category, st core.CategoryStats) {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(c.Name) + "\n")
	if c.HasBudget() {
		fmt.Fprintf(&b, "Budget:      %s\n", st.Budget)
	} else {
		fmt.Fprintf(&b, "Budget:      %s\n", SubtleStyle.Render("none"))
	}
	fmt.Fprintf(&b, "Spent:       %s\n", st.Spent)
	fmt.Fprintf(&b, "Remaining:   %s\n", st.Remaining)
	fmt.Fprintf(&b, "Usage:       %.2f%%\n", st.UsagePercentage)
	fmt.Fprintf(&b, "Status:      %s", status(c))
	fmt.Fprintln(out, BoxStyle.Render(b.String()))
}
