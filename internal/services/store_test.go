package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"budget/internal/core"
	"budget/internal/persistence/memory"
)

// flakyStore wraps the memory store with injectable write failures and a
// gate that holds writes until released or until their context ends.
type flakyStore struct {
	*memory.Store

	mu      sync.Mutex
	err     error
	block   chan struct{}
	entered chan struct{}
	writes  int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.New(), entered: make(chan struct{}, 64)}
}

func (f *flakyStore) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// holdWrites makes writes wait and clears earlier entered signals. The
// returned func lets them through.
func (f *flakyStore) holdWrites() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for drained := false; !drained; {
		select {
		case <-f.entered:
		default:
			drained = true
		}
	}
	ch := make(chan struct{})
	f.block = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.block = nil
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *flakyStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *flakyStore) gate(ctx context.Context) error {
	f.mu.Lock()
	err, block := f.err, f.block
	f.writes++
	f.mu.Unlock()

	select {
	case f.entered <- struct{}{}:
	default:
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *flakyStore) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := f.gate(ctx); err != nil {
		return core.Transaction{}, err
	}
	return f.Store.CreateTransaction(ctx, t)
}

func (f *flakyStore) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := f.gate(ctx); err != nil {
		return core.Transaction{}, err
	}
	return f.Store.UpdateTransaction(ctx, t)
}

func (f *flakyStore) UpdateTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	if err := f.gate(ctx); err != nil {
		return nil, err
	}
	return f.Store.UpdateTransactions(ctx, ts)
}

func (f *flakyStore) DeleteTransaction(ctx context.Context, id string) error {
	if err := f.gate(ctx); err != nil {
		return err
	}
	return f.Store.DeleteTransaction(ctx, id)
}

func (f *flakyStore) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := f.gate(ctx); err != nil {
		return core.Category{}, err
	}
	return f.Store.CreateCategory(ctx, c)
}

func (f *flakyStore) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := f.gate(ctx); err != nil {
		return core.Category{}, err
	}
	return f.Store.UpdateCategory(ctx, c)
}

func (f *flakyStore) DeleteCategory(ctx context.Context, id string) error {
	if err := f.gate(ctx); err != nil {
		return err
	}
	return f.Store.DeleteCategory(ctx, id)
}

func newTestLedger(t *testing.T, opts LedgerOptions) (*LedgerService, *flakyStore) {
	t.Helper()
	store := newFlakyStore()
	svc := NewLedgerService(store, opts)
	require.NoError(t, svc.Load(context.Background()))
	return svc, store
}

func eur(units int64) core.Money {
	return core.Money{Cents: units * 100}
}

func mustCategory(t *testing.T, svc *LedgerService, name string, budget core.Money) core.Category {
	t.Helper()
	c, err := svc.AddCategory(context.Background(), core.NewCategory{Name: name, Budget: budget})
	require.NoError(t, err)
	return c
}

func mustTxn(t *testing.T, svc *LedgerService, typ core.TransactionType, amount core.Money, categoryID string) core.Transaction {
	t.Helper()
	tx, err := svc.AddTransaction(context.Background(), core.NewTransaction{
		Description: string(typ),
		Amount:      amount,
		Type:        typ,
		CategoryID:  categoryID,
	})
	require.NoError(t, err)
	return tx
}
