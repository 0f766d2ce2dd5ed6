// Package postgres stores the ledger in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"budget/internal/core"
	"budget/internal/persistence"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

var _ persistence.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both the pool and an open pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{pool: pool}, nil
}

// RunMigrations applies the embedded migrations over a separate
// database/sql connection.
func RunMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("create pgx driver: %w", err)
	}
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", d, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const transactionColumns = `id, description, amount_cents, direction, type, category_id, occurred_at, created_at`

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.Normalize()
	if err := checkCategory(ctx, s.pool, t.CategoryID); err != nil {
		return core.Transaction{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+transactionColumns,
		uuid.New().String(), t.Description, t.Amount.Cents, string(t.Direction), string(t.Type),
		nullable(t.CategoryID), t.OccurredAt.UTC(), time.Now().UTC())
	saved, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	slog.DebugContext(ctx, "Transaction saved to Postgres", "id", saved.ID, "amount_cents", saved.Amount.Cents)
	return saved, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	return updateTransaction(ctx, s.pool, t)
}

func (s *Store) UpdateTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	var out []core.Transaction
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		out = make([]core.Transaction, 0, len(ts))
		for _, t := range ts {
			saved, err := updateTransaction(ctx, tx, t)
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

func updateTransaction(ctx context.Context, q querier, t core.Transaction) (core.Transaction, error) {
	t.Normalize()
	if err := checkCategory(ctx, q, t.CategoryID); err != nil {
		return core.Transaction{}, err
	}
	row := q.QueryRow(ctx, `
		UPDATE transactions
		SET description = $1, amount_cents = $2, direction = $3, type = $4, category_id = $5, occurred_at = $6
		WHERE id = $7
		RETURNING `+transactionColumns,
		t.Description, t.Amount.Cents, string(t.Direction), string(t.Type),
		nullable(t.CategoryID), t.OccurredAt.UTC(), t.ID)
	saved, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	return saved, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO categories (id, name, budget_cents, color, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, budget_cents, color, created_at`,
		uuid.New().String(), c.Name, c.Budget.Cents, c.Color, time.Now().UTC())
	saved, err := scanCategory(row)
	if err != nil {
		return core.Category{}, categoryError("create category", c.Name, err)
	}
	slog.InfoContext(ctx, "Category saved to Postgres", "id", saved.ID, "name", saved.Name)
	return saved, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE categories SET name = $1, budget_cents = $2, color = $3
		WHERE id = $4
		RETURNING id, name, budget_cents, color, created_at`,
		c.Name, c.Budget.Cents, c.Color, c.ID)
	saved, err := scanCategory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s: %w", c.ID, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, categoryError("update category", c.Name, err)
	}
	return saved, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE transactions SET category_id = NULL WHERE category_id = $1`, id); err != nil {
			return fmt.Errorf("unlabel transactions of %s: %w", id, err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete category %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, budget_cents, color, created_at
		FROM categories
		ORDER BY created_at, lower(name)`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListTransactions(ctx context.Context, filter persistence.TransactionFilter) ([]core.Transaction, error) {
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1::text = '' OR category_id = $1)
		  AND (NOT $2::boolean OR category_id IS NULL)
		  AND ($3::timestamptz IS NULL OR occurred_at >= $3)
		  AND ($4::timestamptz IS NULL OR occurred_at <= $4)
		ORDER BY occurred_at DESC, id
		LIMIT $5`,
		filter.CategoryID, filter.Unlabeled, filter.From, filter.To, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func checkCategory(ctx context.Context, q querier, id string) error {
	if id == "" {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check category %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("category %s: %w", id, core.ErrUnknownCategory)
	}
	return nil
}

func categoryError(op, name string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", core.ErrDuplicateCategory, name)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t          core.Transaction
		direction  string
		typ        string
		categoryID *string
	)
	err := row.Scan(&t.ID, &t.Description, &t.Amount.Cents, &direction, &typ, &categoryID, &t.OccurredAt, &t.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Direction = core.Direction(direction)
	t.Type = core.TransactionType(typ)
	if categoryID != nil {
		t.CategoryID = *categoryID
	}
	t.OccurredAt = t.OccurredAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.Normalize()
	return t, nil
}

func scanCategory(row pgx.Row) (core.Category, error) {
	var c core.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Budget.Cents, &c.Color, &c.CreatedAt); err != nil {
		return core.Category{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
