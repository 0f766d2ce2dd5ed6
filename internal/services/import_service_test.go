package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/core"
	"budget/internal/persistence"
	"budget/internal/sheets"
)

type staticSource struct {
	rows []sheets.ImportRow
	err  error
}

func (s staticSource) Name() string { return "static" }

func (s staticSource) ReadLedger(context.Context) ([]sheets.ImportRow, error) {
	return s.rows, s.err
}

func TestImportCreatesCategoriesAndReconciles(t *testing.T) {
	svc, store := newTestLedger(t, LedgerOptions{})
	food := mustCategory(t, svc, "Food", eur(100))
	importer := NewImportService(store, svc, nil)

	day := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	src := staticSource{rows: []sheets.ImportRow{
		{Line: 2, Description: "bread", Amount: eur(10), Direction: core.Debit, CategoryName: "food", OccurredAt: day},
		{Line: 3, Description: "cinema", Amount: eur(15), Direction: core.Debit, CategoryName: "Fun", OccurredAt: day},
		{Line: 4, Description: "salary", Amount: eur(900), Direction: core.Credit, OccurredAt: day},
		{Line: 5, Description: "popcorn", Amount: eur(5), Direction: core.Debit, CategoryName: " FUN ", OccurredAt: day},
		{Line: 6, Err: errors.New("bad date")},
		{Line: 7, Description: "", Amount: eur(1), Direction: core.Debit},
	}}

	var progress []int
	report, err := importer.Import(context.Background(), src, func(done, total int) {
		assert.Equal(t, 6, total)
		progress = append(progress, done)
	})
	require.NoError(t, err)

	assert.Equal(t, "static", report.Source)
	assert.Equal(t, 6, report.Rows)
	assert.Equal(t, 4, report.Imported)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.CategoriesCreated)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progress)
	assert.Equal(t, svc.Version(), report.Version)

	stats := NewStatsService(svc, 0)
	got, ok := stats.FindCategory(food.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1000), got.Spent.Cents)

	fun, ok := stats.FindCategoryByName("fun")
	require.True(t, ok)
	assert.Equal(t, int64(2000), fun.Spent.Cents)
	assert.Empty(t, svc.CheckDrift())

	unlabeled := stats.UnlabeledTransactions()
	require.Len(t, unlabeled, 1)
	assert.Equal(t, core.Income, unlabeled[0].Type)
}

func TestImportSourceFailure(t *testing.T) {
	svc, store := newTestLedger(t, LedgerOptions{})
	importer := NewImportService(store, svc, nil)

	_, err := importer.Import(context.Background(), staticSource{err: errors.New("sheet gone")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheet gone")
	assert.Zero(t, store.writeCount())
}

func TestImportStopsOnStoreFailureButReconciles(t *testing.T) {
	svc, store := newTestLedger(t, LedgerOptions{})
	importer := NewImportService(store, svc, nil)
	store.failWrites(errors.New("disk full"))

	src := staticSource{rows: []sheets.ImportRow{
		{Line: 1, Description: "a", Amount: eur(1), Direction: core.Debit},
		{Line: 2, Description: "b", Amount: eur(2), Direction: core.Debit},
	}}
	report, err := importer.Import(context.Background(), src, nil)

	var transport *core.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Zero(t, report.Imported)
	assert.Equal(t, 1, store.writeCount())

	txns, listErr := store.ListTransactions(context.Background(), persistence.TransactionFilter{})
	require.NoError(t, listErr)
	assert.Empty(t, txns)
}
