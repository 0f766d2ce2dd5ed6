// Package worker holds consumers of the ledger's published aggregate changes.
package worker

import (
	"context"
	"sort"
	"sync"

	"budget/internal/amqp"
	"budget/internal/log"
)

// Alert reports a category whose spent moved past its budget.
type Alert struct {
	Kind     string
	Version  uint64
	Category amqp.CategorySnapshot
}

// BudgetMonitor keeps the latest snapshot of every category seen on the
// event stream and raises an Alert when a category crosses into over budget.
// A category that stays over budget alerts only once until it recovers.
type BudgetMonitor struct {
	logger  *log.Logger
	onAlert func(Alert)

	mu          sync.Mutex
	latest      map[string]amqp.CategorySnapshot
	lastVersion uint64
	handled     int
	gaps        int
}

func NewBudgetMonitor(onAlert func(Alert), logger *log.Logger) *BudgetMonitor {
	if logger == nil {
		logger = log.Discard()
	}
	if onAlert == nil {
		onAlert = func(Alert) {}
	}
	return &BudgetMonitor{
		logger:  logger.WithComponent(log.ComponentAMQP),
		onAlert: onAlert,
		latest:  make(map[string]amqp.CategorySnapshot),
	}
}

// HandleAggregateMessage processes a single aggregate change message from AMQP.
// It never fails, so messages are always acknowledged.
func (m *BudgetMonitor) HandleAggregateMessage(ctx context.Context, msg *amqp.AggregateChangedMessage) error {
	var alerts []Alert

	m.mu.Lock()
	if m.lastVersion != 0 && msg.Version > m.lastVersion+1 {
		m.gaps++
		m.logger.DebugContext(ctx, "Version gap on event stream",
			log.FieldVersion, msg.Version,
			"previous", m.lastVersion)
	}
	m.lastVersion = msg.Version
	m.handled++

	present := make(map[string]struct{}, len(msg.Categories))
	for _, snap := range msg.Categories {
		present[snap.ID] = struct{}{}
		prev, seen := m.latest[snap.ID]
		if snap.OverBudget && (!seen || !prev.OverBudget) {
			alerts = append(alerts, Alert{Kind: msg.Kind, Version: msg.Version, Category: snap})
		}
		m.latest[snap.ID] = snap
	}
	// Touched ids without a snapshot were deleted.
	for _, id := range msg.CategoryIDs {
		if _, ok := present[id]; !ok {
			delete(m.latest, id)
		}
	}
	m.mu.Unlock()

	for _, a := range alerts {
		m.logger.WarnContext(ctx, "Category over budget",
			log.FieldCategoryID, a.Category.ID,
			log.FieldCategoryName, a.Category.Name,
			"spent_cents", a.Category.SpentCents,
			"budget_cents", a.Category.BudgetCents,
			log.FieldVersion, a.Version)
		m.onAlert(a)
	}
	return nil
}

// Snapshot returns the latest known state of every category, by name.
func (m *BudgetMonitor) Snapshot() []amqp.CategorySnapshot {
	m.mu.Lock()
	out := make([]amqp.CategorySnapshot, 0, len(m.latest))
	for _, s := range m.latest {
		out = append(out, s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Stats returns the number of handled messages and detected version gaps.
func (m *BudgetMonitor) Stats() (handled, gaps int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handled, m.gaps
}
