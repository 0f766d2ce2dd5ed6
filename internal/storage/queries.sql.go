package storage

import (
	"context"
	"database/sql"
)

const createCategory = `
INSERT INTO categories (id, name, budget_cents, color, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id, name, budget_cents, color, created_at
`

type CreateCategoryParams struct {
	ID          string
	Name        string
	BudgetCents int64
	Color       string
	CreatedAt   string
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, createCategory,
		arg.ID,
		arg.Name,
		arg.BudgetCents,
		arg.Color,
		arg.CreatedAt,
	)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.BudgetCents, &i.Color, &i.CreatedAt)
	return i, err
}

const updateCategory = `
UPDATE categories SET name = ?, budget_cents = ?, color = ?
WHERE id = ?
RETURNING id, name, budget_cents, color, created_at
`

type UpdateCategoryParams struct {
	Name        string
	BudgetCents int64
	Color       string
	ID          string
}

func (q *Queries) UpdateCategory(ctx context.Context, arg UpdateCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, updateCategory,
		arg.Name,
		arg.BudgetCents,
		arg.Color,
		arg.ID,
	)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.BudgetCents, &i.Color, &i.CreatedAt)
	return i, err
}

const deleteCategory = `DELETE FROM categories WHERE id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const categoryExists = `SELECT EXISTS (SELECT 1 FROM categories WHERE id = ?)`

func (q *Queries) CategoryExists(ctx context.Context, id string) (bool, error) {
	row := q.db.QueryRowContext(ctx, categoryExists, id)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const listCategories = `
SELECT id, name, budget_cents, color, created_at
FROM categories
ORDER BY created_at, name COLLATE NOCASE
`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name, &i.BudgetCents, &i.Color, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const unlabelTransactions = `UPDATE transactions SET category_id = NULL WHERE category_id = ?`

func (q *Queries) UnlabelTransactions(ctx context.Context, categoryID string) error {
	_, err := q.db.ExecContext(ctx, unlabelTransactions, categoryID)
	return err
}

const createTransaction = `
INSERT INTO transactions (id, description, amount_cents, direction, type, category_id, occurred_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, description, amount_cents, direction, type, category_id, occurred_at, created_at
`

type CreateTransactionParams struct {
	ID          string
	Description string
	AmountCents int64
	Direction   string
	Type        string
	CategoryID  sql.NullString
	OccurredAt  string
	CreatedAt   string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.ID,
		arg.Description,
		arg.AmountCents,
		arg.Direction,
		arg.Type,
		arg.CategoryID,
		arg.OccurredAt,
		arg.CreatedAt,
	)
	return scanTransaction(row)
}

const updateTransaction = `
UPDATE transactions
SET description = ?, amount_cents = ?, direction = ?, type = ?, category_id = ?, occurred_at = ?
WHERE id = ?
RETURNING id, description, amount_cents, direction, type, category_id, occurred_at, created_at
`

type UpdateTransactionParams struct {
	Description string
	AmountCents int64
	Direction   string
	Type        string
	CategoryID  sql.NullString
	OccurredAt  string
	ID          string
}

func (q *Queries) UpdateTransaction(ctx context.Context, arg UpdateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, updateTransaction,
		arg.Description,
		arg.AmountCents,
		arg.Direction,
		arg.Type,
		arg.CategoryID,
		arg.OccurredAt,
		arg.ID,
	)
	return scanTransaction(row)
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Empty string parameters disable the matching condition; a negative limit
// returns every row.
const listTransactions = `
SELECT id, description, amount_cents, direction, type, category_id, occurred_at, created_at
FROM transactions
WHERE (? = '' OR category_id = ?)
  AND (? = 0 OR category_id IS NULL)
  AND (? = '' OR occurred_at >= ?)
  AND (? = '' OR occurred_at <= ?)
ORDER BY occurred_at DESC, id
LIMIT ?
`

type ListTransactionsParams struct {
	CategoryID string
	Unlabeled  bool
	From       string
	To         string
	Limit      int64
}

func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions,
		arg.CategoryID, arg.CategoryID,
		arg.Unlabeled,
		arg.From, arg.From,
		arg.To, arg.To,
		arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var i Transaction
	err := row.Scan(
		&i.ID,
		&i.Description,
		&i.AmountCents,
		&i.Direction,
		&i.Type,
		&i.CategoryID,
		&i.OccurredAt,
		&i.CreatedAt,
	)
	return i, err
}
