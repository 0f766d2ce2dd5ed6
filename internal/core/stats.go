package core

type (
	CategoryStats struct {
		Spent           Money
		Budget          Money
		Remaining       Money
		UsagePercentage float64
		IsOverBudget    bool
	}

	PortfolioStats struct {
		TotalBudget            Money
		TotalSpent             Money
		TotalRemaining         Money
		OverallUsagePercentage float64
		CategoriesCount        int
		OverBudget             []Category
	}

	// TransactionView joins a transaction with its category for display.
	// Category is nil for unlabeled transactions.
	TransactionView struct {
		Transaction
		Category *Category
	}

	// Drift describes a category whose held spent differs from a full recomputation.
	Drift struct {
		CategoryID string
		Held       Money
		Expected   Money
	}
)

// Remaining is budget minus spent; negative when over budget.
func (c Category) Remaining() Money {
	return c.Budget.Sub(c.Spent)
}

// UsagePercentage is spent/budget*100, or 0 without a configured budget.
func (c Category) UsagePercentage() float64 {
	return Percent(c.Spent, c.Budget)
}

func (c Category) IsOverBudget() bool {
	return c.Budget.Cents > 0 && c.Spent.Cents > c.Budget.Cents
}

func (c Category) HasBudget() bool {
	return c.Budget.Cents > 0
}

func (c Category) Stats() CategoryStats {
	return CategoryStats{
		Spent:           c.Spent,
		Budget:          c.Budget,
		Remaining:       c.Remaining(),
		UsagePercentage: c.UsagePercentage(),
		IsOverBudget:    c.IsOverBudget(),
	}
}
