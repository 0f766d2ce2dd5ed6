package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/core"
)

func debit(id, cat string, cents int64) core.Transaction {
	t := core.Transaction{ID: id, Description: id, Amount: core.Money{Cents: cents}, Type: core.Expense, CategoryID: cat}
	t.Normalize()
	return t
}

func credit(id, cat string, cents int64) core.Transaction {
	t := core.Transaction{ID: id, Description: id, Amount: core.Money{Cents: cents}, Type: core.Income, CategoryID: cat}
	t.Normalize()
	return t
}

func TestRecomputeAll(t *testing.T) {
	cats := []core.Category{
		{ID: "food", Name: "Food", Budget: core.Money{Cents: 100000}, Spent: core.Money{Cents: 999}},
		{ID: "rent", Name: "Rent"},
		{ID: "fun", Name: "Fun"},
	}
	txns := []core.Transaction{
		debit("t1", "food", 300),
		debit("t2", "food", 200),
		debit("t3", "rent", 70000),
		credit("t4", "food", 50000),
		debit("t5", "", 1000),
		debit("t6", "gone", 1000),
	}

	got := RecomputeAll(cats, txns)

	require.Len(t, got, 3)
	assert.Equal(t, int64(500), got[0].Spent.Cents, "income and foreign categories must not count")
	assert.Equal(t, int64(70000), got[1].Spent.Cents)
	assert.Equal(t, int64(0), got[2].Spent.Cents)
	assert.Equal(t, int64(999), cats[0].Spent.Cents, "input must not be mutated")
	assert.Equal(t, cats[0].Budget, got[0].Budget)
}

func TestRecomputeAllIsIdempotent(t *testing.T) {
	cats := []core.Category{{ID: "a"}, {ID: "b"}}
	txns := []core.Transaction{debit("1", "a", 10), debit("2", "b", 20)}

	once := RecomputeAll(cats, txns)
	twice := RecomputeAll(once, txns)
	assert.Equal(t, once, twice)
}

func TestDelta(t *testing.T) {
	cases := []struct {
		name   string
		spent  int64
		amount int64
		sign   Sign
		want   int64
	}{
		{"add", 100, 50, Add, 150},
		{"remove", 100, 50, Remove, 50},
		{"remove to zero", 100, 100, Remove, 0},
		{"clamps at zero", 100, 300, Remove, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Delta(core.Money{Cents: tc.spent}, core.Money{Cents: tc.amount}, tc.sign)
			assert.Equal(t, tc.want, got.Cents)
		})
	}
}

func TestContribution(t *testing.T) {
	_, _, ok := Contribution(credit("c", "food", 10))
	assert.False(t, ok)
	_, _, ok = Contribution(debit("u", "", 10))
	assert.False(t, ok)
	id, amount, ok := Contribution(debit("d", "food", 10))
	assert.True(t, ok)
	assert.Equal(t, "food", id)
	assert.Equal(t, int64(10), amount.Cents)
}

func TestDiff(t *testing.T) {
	cats := []core.Category{
		{ID: "a", Spent: core.Money{Cents: 10}},
		{ID: "b", Spent: core.Money{Cents: 99}},
	}
	txns := []core.Transaction{debit("1", "a", 10), debit("2", "b", 20)}

	drift := Diff(cats, txns)
	require.Len(t, drift, 1)
	assert.Equal(t, core.Drift{CategoryID: "b", Held: core.Money{Cents: 99}, Expected: core.Money{Cents: 20}}, drift[0])
}
