// Package sheets defines the port for external ledgers that can be bulk
// imported, such as a Google spreadsheet or a bank OFX statement.
package sheets

import (
	"context"
	"time"

	"budget/internal/core"
)

// ImportRow is one parsed line of an external ledger. Rows that could not be
// parsed carry Err and are skipped by the importer.
type ImportRow struct {
	Line         int
	Ref          string // source-side id, e.g. an OFX FITID
	Description  string
	Amount       core.Money
	Direction    core.Direction
	CategoryName string // empty means unlabeled
	OccurredAt   time.Time
	Err          error
}

// Ports for inbound import adapters.
type (
	LedgerSource interface {
		// Name identifies the source in logs and reports.
		Name() string
		ReadLedger(ctx context.Context) ([]ImportRow, error)
	}
)

// Transaction converts the row into an unsaved transaction. categoryID is
// the resolved id for CategoryName, or empty.
func (r ImportRow) Transaction(categoryID string) core.Transaction {
	t := core.Transaction{
		Description: r.Description,
		Amount:      r.Amount,
		Direction:   r.Direction,
		CategoryID:  categoryID,
		OccurredAt:  r.OccurredAt,
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now().UTC()
	}
	t.Normalize()
	return t
}
