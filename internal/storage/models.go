package storage

import "database/sql"

type Category struct {
	ID          string
	Name        string
	BudgetCents int64
	Color       string
	CreatedAt   string
}

type Transaction struct {
	ID          string
	Description string
	AmountCents int64
	Direction   string
	Type        string
	CategoryID  sql.NullString
	OccurredAt  string
	CreatedAt   string
}
