package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"

	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const maxDescriptionLen = 200

type (
	// Direction tells whether money enters (credit) or leaves (debit) the ledger.
	Direction string

	// TransactionType is the user-facing pairing of Direction.
	TransactionType string

	Transaction struct {
		ID          string
		Description string
		Amount      Money
		Direction   Direction
		Type        TransactionType
		CategoryID  string // empty means unlabeled
		IsLabeled   bool
		OccurredAt  time.Time
		CreatedAt   time.Time
	}

	Category struct {
		ID        string
		Name      string
		Budget    Money // zero means no ceiling configured
		Spent     Money // derived, never set by callers
		Color     string
		CreatedAt time.Time
	}

	NewTransaction struct {
		Description string
		Amount      Money
		Direction   Direction
		Type        TransactionType
		CategoryID  string
		OccurredAt  time.Time
	}

	// TransactionChanges carries a partial update; nil fields are left as-is.
	TransactionChanges struct {
		Description   *string
		Amount        *Money
		Direction     *Direction
		Type          *TransactionType
		CategoryID    *string
		ClearCategory bool
		OccurredAt    *time.Time
	}

	NewCategory struct {
		Name   string
		Budget Money
		Color  string
	}

	CategoryChanges struct {
		Name   *string
		Budget *Money
		Color  *string
	}

	// Recategorization moves one transaction to CategoryID ("" unlabels it).
	Recategorization struct {
		TransactionID string
		CategoryID    string
	}
)

var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrEmptyDescription  = errors.New("empty description")
	ErrDescriptionLength = fmt.Errorf("description too long (max %d characters)", maxDescriptionLen)
	ErrMissingDirection  = errors.New("missing direction or type")
	ErrInvalidDirection  = errors.New("invalid direction")
	ErrInvalidType       = errors.New("invalid transaction type")
	ErrDirectionMismatch = errors.New("direction does not match transaction type")
	ErrEmptyName         = errors.New("empty category name")
	ErrNegativeBudget    = errors.New("budget cannot be negative")
	ErrDuplicateCategory = errors.New("category name already exists")
	ErrUnknownCategory   = errors.New("unknown category")
)

func (d Direction) Valid() bool {
	return d == Credit || d == Debit
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// DirectionFor returns the direction paired with a transaction type.
func DirectionFor(t TransactionType) Direction {
	switch t {
	case Income:
		return Credit
	case Expense:
		return Debit
	default:
		return ""
	}
}

// TypeFor returns the transaction type paired with a direction.
func TypeFor(d Direction) TransactionType {
	switch d {
	case Credit:
		return Income
	case Debit:
		return Expense
	default:
		return ""
	}
}

// ParseTransactionType accepts income/expense as well as credit/debit.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "credit", "in":
		return Income, nil
	case "expense", "debit", "out":
		return Expense, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

// Normalize trims text fields, fills a missing direction or type from its
// counterpart and keeps IsLabeled in sync with CategoryID.
func (t *Transaction) Normalize() {
	t.Description = strings.TrimSpace(t.Description)
	t.CategoryID = strings.TrimSpace(t.CategoryID)
	if t.Direction == "" && t.Type != "" {
		t.Direction = DirectionFor(t.Type)
	}
	if t.Type == "" && t.Direction != "" {
		t.Type = TypeFor(t.Direction)
	}
	t.IsLabeled = t.CategoryID != ""
}

// IsDebit reports whether the transaction takes money out.
func (t Transaction) IsDebit() bool {
	return t.Direction == Debit
}

// Unlabel removes the category reference.
func (t *Transaction) Unlabel() {
	t.CategoryID = ""
	t.IsLabeled = false
}

func (t Transaction) Validate() error {
	if len(t.Description) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > maxDescriptionLen {
		return ErrDescriptionLength
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Direction == "" || t.Type == "" {
		return ErrMissingDirection
	}
	if !t.Direction.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, t.Direction)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t.Type)
	}
	if DirectionFor(t.Type) != t.Direction {
		return fmt.Errorf("%w: %s/%s", ErrDirectionMismatch, t.Type, t.Direction)
	}
	return nil
}

// Transaction builds a normalized, not yet persisted transaction.
func (n NewTransaction) Transaction() Transaction {
	t := Transaction{
		Description: n.Description,
		Amount:      n.Amount,
		Direction:   n.Direction,
		Type:        n.Type,
		CategoryID:  n.CategoryID,
		OccurredAt:  n.OccurredAt,
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now().UTC()
	}
	t.Normalize()
	return t
}

// Apply returns a copy of t with the changes applied and normalized.
// Changing only one of Direction/Type moves the other along with it.
func (c TransactionChanges) Apply(t Transaction) Transaction {
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Amount != nil {
		t.Amount = *c.Amount
	}
	switch {
	case c.Direction != nil && c.Type != nil:
		t.Direction, t.Type = *c.Direction, *c.Type
	case c.Direction != nil:
		t.Direction, t.Type = *c.Direction, TypeFor(*c.Direction)
	case c.Type != nil:
		t.Direction, t.Type = DirectionFor(*c.Type), *c.Type
	}
	if c.ClearCategory {
		t.CategoryID = ""
	} else if c.CategoryID != nil {
		t.CategoryID = *c.CategoryID
	}
	if c.OccurredAt != nil {
		t.OccurredAt = *c.OccurredAt
	}
	t.Normalize()
	return t
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Budget.IsNegative() {
		return ErrNegativeBudget
	}
	return nil
}

// Category builds a category with zero spent.
func (n NewCategory) Category() Category {
	return Category{
		Name:   strings.TrimSpace(n.Name),
		Budget: n.Budget,
		Color:  strings.TrimSpace(n.Color),
	}
}

func (c CategoryChanges) Apply(cat Category) Category {
	if c.Name != nil {
		cat.Name = strings.TrimSpace(*c.Name)
	}
	if c.Budget != nil {
		cat.Budget = *c.Budget
	}
	if c.Color != nil {
		cat.Color = strings.TrimSpace(*c.Color)
	}
	return cat
}

// SameName compares category names case-insensitively.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
