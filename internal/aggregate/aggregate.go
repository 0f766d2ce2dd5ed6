// Package aggregate derives category spent amounts from ledger transactions.
//
// RecomputeAll is the reference computation. Delta is the incremental step the
// ledger service applies for single-transaction mutations; for any mutation
// sequence the two must agree.
package aggregate

import "budget/internal/core"

// Sign selects whether Delta adds or removes a contribution.
type Sign int

const (
	Add    Sign = 1
	Remove Sign = -1
)

// Contribution returns the category and amount a transaction adds to spent.
// Only labeled debits contribute.
func Contribution(t core.Transaction) (categoryID string, amount core.Money, ok bool) {
	if !t.IsDebit() || t.CategoryID == "" {
		return "", core.Money{}, false
	}
	return t.CategoryID, t.Amount, true
}

// Contributions groups debit amounts by category in a single pass.
func Contributions(transactions []core.Transaction) map[string]core.Money {
	sums := make(map[string]core.Money)
	for _, t := range transactions {
		if id, amount, ok := Contribution(t); ok {
			sums[id] = sums[id].Add(amount)
		}
	}
	return sums
}

// RecomputeAll returns a copy of categories with every Spent replaced by the
// sum of its labeled debit transactions. Runs in O(|transactions|+|categories|).
// Transactions pointing at categories not in the set are ignored.
func RecomputeAll(categories []core.Category, transactions []core.Transaction) []core.Category {
	sums := Contributions(transactions)
	out := make([]core.Category, len(categories))
	for i, c := range categories {
		c.Spent = sums[c.ID]
		out[i] = c
	}
	return out
}

// Delta applies one contribution to spent, clamping at zero.
func Delta(spent, amount core.Money, sign Sign) core.Money {
	next := spent.Cents + int64(sign)*amount.Cents
	if next < 0 {
		next = 0
	}
	return core.Money{Cents: next}
}

// Diff lists categories whose held Spent differs from a full recomputation.
func Diff(categories []core.Category, transactions []core.Transaction) []core.Drift {
	expected := Contributions(transactions)
	var drift []core.Drift
	for _, c := range categories {
		if want := expected[c.ID]; want != c.Spent {
			drift = append(drift, core.Drift{CategoryID: c.ID, Held: c.Spent, Expected: want})
		}
	}
	return drift
}
