package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"budget/internal/core"
	"budget/internal/persistence"

	_ "modernc.org/sqlite"
)

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var _ persistence.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// foreign_keys is per connection, so it goes in the DSN for every
	// connection the pool opens.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, _, err := Migrate(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.Normalize()
	if err := r.checkCategory(ctx, r.queries, t.CategoryID); err != nil {
		return core.Transaction{}, err
	}
	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		ID:          uuid.New().String(),
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		Direction:   string(t.Direction),
		Type:        string(t.Type),
		CategoryID:  nullString(t.CategoryID),
		OccurredAt:  formatTime(t.OccurredAt),
		CreatedAt:   formatTime(time.Now()),
	})
	if err != nil {
		return core.Transaction{}, transactionError("create transaction", t.CategoryID, err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", row.ID,
		"amount_cents", row.AmountCents,
		"category_id", row.CategoryID.String)

	return toCoreTransaction(row)
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	return r.updateTransaction(ctx, r.queries, t)
}

// UpdateTransactions runs every update in one database transaction.
func (r *SQLiteRepository) UpdateTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	var out []core.Transaction
	err := r.inTx(ctx, func(q *Queries) error {
		out = make([]core.Transaction, 0, len(ts))
		for _, t := range ts {
			saved, err := r.updateTransaction(ctx, q, t)
			if err != nil {
				return err
			}
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepository) updateTransaction(ctx context.Context, q *Queries, t core.Transaction) (core.Transaction, error) {
	t.Normalize()
	if err := r.checkCategory(ctx, q, t.CategoryID); err != nil {
		return core.Transaction{}, err
	}
	row, err := q.UpdateTransaction(ctx, UpdateTransactionParams{
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		Direction:   string(t.Direction),
		Type:        string(t.Type),
		CategoryID:  nullString(t.CategoryID),
		OccurredAt:  formatTime(t.OccurredAt),
		ID:          t.ID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, transactionError("update transaction "+t.ID, t.CategoryID, err)
	}
	return toCoreTransaction(row)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	n, err := r.queries.DeleteTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row, err := r.queries.CreateCategory(ctx, CreateCategoryParams{
		ID:          uuid.New().String(),
		Name:        c.Name,
		BudgetCents: c.Budget.Cents,
		Color:       c.Color,
		CreatedAt:   formatTime(time.Now()),
	})
	if err != nil {
		return core.Category{}, categoryError("create category", c.Name, err)
	}

	slog.InfoContext(ctx, "Category saved to SQLite", "id", row.ID, "name", row.Name)
	return toCoreCategory(row)
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row, err := r.queries.UpdateCategory(ctx, UpdateCategoryParams{
		Name:        c.Name,
		BudgetCents: c.Budget.Cents,
		Color:       c.Color,
		ID:          c.ID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s: %w", c.ID, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, categoryError("update category", c.Name, err)
	}
	return toCoreCategory(row)
}

// DeleteCategory unlabels referencing transactions and removes the category
// in one database transaction.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := q.UnlabelTransactions(ctx, id); err != nil {
			return fmt.Errorf("unlabel transactions of %s: %w", id, err)
		}
		n, err := q.DeleteCategory(ctx, id)
		if err != nil {
			return fmt.Errorf("delete category %s: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
		}
		return nil
	})
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		c, err := toCoreCategory(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, filter persistence.TransactionFilter) ([]core.Transaction, error) {
	params := ListTransactionsParams{
		CategoryID: filter.CategoryID,
		Unlabeled:  filter.Unlabeled,
		Limit:      -1,
	}
	if filter.From != nil {
		params.From = formatTime(*filter.From)
	}
	if filter.To != nil {
		params.To = formatTime(*filter.To)
	}
	if filter.Limit > 0 {
		params.Limit = int64(filter.Limit)
	}

	rows, err := r.queries.ListTransactions(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toCoreTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) checkCategory(ctx context.Context, q *Queries, id string) error {
	if id == "" {
		return nil
	}
	ok, err := q.CategoryExists(ctx, id)
	if err != nil {
		return fmt.Errorf("check category %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("category %s: %w", id, core.ErrUnknownCategory)
	}
	return nil
}

// transactionError maps a foreign key failure (the category vanished
// between the check and the write) to ErrUnknownCategory.
func transactionError(op, categoryID string, err error) error {
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return fmt.Errorf("category %s: %w", categoryID, core.ErrUnknownCategory)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func categoryError(op, name string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", core.ErrDuplicateCategory, name)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toCoreTransaction(row Transaction) (core.Transaction, error) {
	occurred, err := parseTime(row.OccurredAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s occurred_at: %w", row.ID, err)
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s created_at: %w", row.ID, err)
	}
	t := core.Transaction{
		ID:          row.ID,
		Description: row.Description,
		Amount:      core.Money{Cents: row.AmountCents},
		Direction:   core.Direction(row.Direction),
		Type:        core.TransactionType(row.Type),
		CategoryID:  row.CategoryID.String,
		OccurredAt:  occurred,
		CreatedAt:   created,
	}
	t.Normalize()
	return t, nil
}

func toCoreCategory(row Category) (core.Category, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return core.Category{}, fmt.Errorf("category %s created_at: %w", row.ID, err)
	}
	return core.Category{
		ID:        row.ID,
		Name:      row.Name,
		Budget:    core.Money{Cents: row.BudgetCents},
		Color:     row.Color,
		CreatedAt: created,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
