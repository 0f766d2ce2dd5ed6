package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/amqp"
)

func snapshot(id, name string, budget, spent int64) amqp.CategorySnapshot {
	return amqp.CategorySnapshot{
		ID: id, Name: name, BudgetCents: budget, SpentCents: spent,
		RemainingCents: budget - spent,
		OverBudget:     budget > 0 && spent > budget,
	}
}

func message(kind string, version uint64, cats ...amqp.CategorySnapshot) *amqp.AggregateChangedMessage {
	msg := amqp.NewAggregateChangedMessage(kind, version)
	msg.Categories = cats
	for _, c := range cats {
		msg.CategoryIDs = append(msg.CategoryIDs, c.ID)
	}
	return msg
}

func TestBudgetMonitorAlertsOnCrossing(t *testing.T) {
	var alerts []Alert
	m := NewBudgetMonitor(func(a Alert) { alerts = append(alerts, a) }, nil)
	ctx := context.Background()

	require.NoError(t, m.HandleAggregateMessage(ctx, message("transaction.added", 1, snapshot("food", "Food", 1000, 800))))
	assert.Empty(t, alerts)

	require.NoError(t, m.HandleAggregateMessage(ctx, message("transaction.added", 2, snapshot("food", "Food", 1000, 1200))))
	require.Len(t, alerts, 1)
	assert.Equal(t, "food", alerts[0].Category.ID)
	assert.Equal(t, uint64(2), alerts[0].Version)

	// Still over: no repeat.
	require.NoError(t, m.HandleAggregateMessage(ctx, message("transaction.added", 3, snapshot("food", "Food", 1000, 1500))))
	assert.Len(t, alerts, 1)

	// Recovers, then crosses again.
	require.NoError(t, m.HandleAggregateMessage(ctx, message("category.updated", 4, snapshot("food", "Food", 2000, 1500))))
	require.NoError(t, m.HandleAggregateMessage(ctx, message("transaction.added", 5, snapshot("food", "Food", 2000, 2500))))
	assert.Len(t, alerts, 2)
}

func TestBudgetMonitorFirstSightingOverBudget(t *testing.T) {
	var alerts []Alert
	m := NewBudgetMonitor(func(a Alert) { alerts = append(alerts, a) }, nil)

	require.NoError(t, m.HandleAggregateMessage(context.Background(),
		message("ledger.reconciled", 7, snapshot("rent", "Rent", 50000, 60000), snapshot("fun", "Fun", 0, 900))))
	require.Len(t, alerts, 1)
	assert.Equal(t, "Rent", alerts[0].Category.Name)
}

func TestBudgetMonitorSnapshotAndDeletion(t *testing.T) {
	m := NewBudgetMonitor(nil, nil)
	ctx := context.Background()

	require.NoError(t, m.HandleAggregateMessage(ctx, message("ledger.reconciled", 1,
		snapshot("b", "Rent", 0, 0), snapshot("a", "Food", 0, 100))))
	snaps := m.Snapshot()
	require.Len(t, snaps, 2)
	assert.Equal(t, "Food", snaps[0].Name)
	assert.Equal(t, "Rent", snaps[1].Name)

	deleted := amqp.NewAggregateChangedMessage("category.deleted", 3)
	deleted.CategoryIDs = []string{"a"}
	require.NoError(t, m.HandleAggregateMessage(ctx, deleted))

	snaps = m.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, "b", snaps[0].ID)

	handled, gaps := m.Stats()
	assert.Equal(t, 2, handled)
	assert.Equal(t, 1, gaps)
}
