package persistence

import (
	"context"
	"time"

	"budget/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero value lists everything.
type TransactionFilter struct {
	CategoryID string
	Unlabeled  bool
	From       *time.Time
	To         *time.Time
	Limit      int
}

// Ports for the persistence collaborator. Stores never hold Spent; it is
// derived by the ledger service.
type (
	TransactionWriter interface {
		// CreateTransaction assigns ID and CreatedAt and returns the saved record.
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// UpdateTransactions saves all records or none of them.
		UpdateTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error)
		DeleteTransaction(ctx context.Context, id string) error
	}

	CategoryWriter interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
		// DeleteCategory removes the category and unlabels every transaction
		// that referenced it in the same write.
		DeleteCategory(ctx context.Context, id string) error
	}

	LedgerReader interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		ListTransactions(ctx context.Context, filter TransactionFilter) ([]core.Transaction, error)
	}

	Store interface {
		TransactionWriter
		CategoryWriter
		LedgerReader
		Close() error
	}
)

// Match reports whether t passes the filter. Stores without a query
// language use it to evaluate filters in memory.
func (f TransactionFilter) Match(t core.Transaction) bool {
	if f.CategoryID != "" && t.CategoryID != f.CategoryID {
		return false
	}
	if f.Unlabeled && t.CategoryID != "" {
		return false
	}
	if f.From != nil && t.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && t.OccurredAt.After(*f.To) {
		return false
	}
	return true
}
