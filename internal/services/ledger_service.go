package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"budget/internal/aggregate"
	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/persistence"
)

const DefaultPersistTimeout = 5 * time.Second

// ErrDuplicateRecategorization rejects a batch naming the same transaction twice.
var ErrDuplicateRecategorization = errors.New("transaction listed twice in batch")

type LedgerOptions struct {
	PersistTimeout time.Duration
	LockMode       LockMode
	Logger         *log.Logger
	Broker         *Broker
}

// LedgerService owns the working copy of categories and transactions and is
// the only writer of Category.Spent.
//
// A mutation validates its input, takes keyed locks (transaction keys first,
// then category and name keys), writes through the store and only then
// applies the change to the working copy under the state lock. Reconcile
// holds the gate exclusively so no mutation straddles a full recompute.
type LedgerService struct {
	store          persistence.Store
	logger         *log.Logger
	broker         *Broker
	locks          *keyedLocks
	persistTimeout time.Duration
	now            func() time.Time

	gate sync.RWMutex

	mu           sync.RWMutex
	categories   map[string]core.Category
	transactions map[string]core.Transaction
	version      uint64
}

func NewLedgerService(store persistence.Store, opts LedgerOptions) *LedgerService {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Broker == nil {
		opts.Broker = NewBroker(opts.Logger)
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	return &LedgerService{
		store:          store,
		logger:         opts.Logger.WithComponent(log.ComponentLedger),
		broker:         opts.Broker,
		locks:          newKeyedLocks(opts.LockMode),
		persistTimeout: opts.PersistTimeout,
		now:            func() time.Time { return time.Now().UTC() },
		categories:     make(map[string]core.Category),
		transactions:   make(map[string]core.Transaction),
	}
}

// Load fills the working copy from the store. It is Reconcile under the
// name used at start-up.
func (s *LedgerService) Load(ctx context.Context) error {
	_, err := s.Reconcile(ctx)
	return err
}

func (s *LedgerService) AddTransaction(ctx context.Context, in core.NewTransaction) (core.Transaction, error) {
	t := in.Transaction()
	if err := t.Validate(); err != nil {
		return core.Transaction{}, core.NewValidationError(err)
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	release, err := s.locks.acquire(ctx, categoryKeys(t.CategoryID)...)
	if err != nil {
		return core.Transaction{}, err
	}
	defer release()

	if err := s.checkCategoryRefs(t.CategoryID); err != nil {
		return core.Transaction{}, err
	}

	saved, err := persist(ctx, s, "create transaction", func(ctx context.Context) (core.Transaction, error) {
		return s.store.CreateTransaction(ctx, t)
	})
	if err != nil {
		s.logFailure(ctx, log.OpCreate, err)
		return core.Transaction{}, err
	}

	s.mu.Lock()
	s.transactions[saved.ID] = saved
	s.applyLocked(saved, aggregate.Add)
	ev := s.emitLocked(EventTransactionAdded, []string{saved.ID}, distinctIDs(saved.CategoryID))
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction added", log.NewFields().
		WithOperation(log.OpCreate).
		WithTransaction(saved.ID, saved.Amount.Cents, string(saved.Direction)).
		WithCategory(saved.CategoryID, "").
		WithVersion(ev.Version).ToSlice()...)
	return saved, nil
}

// UpdateTransaction reverses the old contribution and applies the new one,
// so amount, direction and category may all change in one call.
func (s *LedgerService) UpdateTransaction(ctx context.Context, id string, changes core.TransactionChanges) (core.Transaction, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	releaseTxn, err := s.locks.acquire(ctx, txnKey(id))
	if err != nil {
		return core.Transaction{}, err
	}
	defer releaseTxn()

	old, ok := s.transaction(id)
	if !ok {
		return core.Transaction{}, core.NewNotFoundError("transaction", id)
	}
	next := changes.Apply(old)
	if err := next.Validate(); err != nil {
		return core.Transaction{}, core.NewValidationError(err)
	}

	releaseCat, err := s.locks.acquire(ctx, categoryKeys(old.CategoryID, next.CategoryID)...)
	if err != nil {
		return core.Transaction{}, err
	}
	defer releaseCat()

	if err := s.checkCategoryRefs(next.CategoryID); err != nil {
		return core.Transaction{}, err
	}

	saved, err := persist(ctx, s, "update transaction", func(ctx context.Context) (core.Transaction, error) {
		return s.store.UpdateTransaction(ctx, next)
	})
	if err != nil {
		s.logFailure(ctx, log.OpUpdate, err)
		return core.Transaction{}, err
	}

	s.mu.Lock()
	s.applyLocked(old, aggregate.Remove)
	s.applyLocked(saved, aggregate.Add)
	s.transactions[saved.ID] = saved
	ev := s.emitLocked(EventTransactionUpdated, []string{saved.ID}, distinctIDs(old.CategoryID, saved.CategoryID))
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction updated", log.NewFields().
		WithOperation(log.OpUpdate).
		WithTransaction(saved.ID, saved.Amount.Cents, string(saved.Direction)).
		WithCategory(saved.CategoryID, "").
		WithVersion(ev.Version).ToSlice()...)
	return saved, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	s.gate.RLock()
	defer s.gate.RUnlock()

	releaseTxn, err := s.locks.acquire(ctx, txnKey(id))
	if err != nil {
		return err
	}
	defer releaseTxn()

	old, ok := s.transaction(id)
	if !ok {
		return core.NewNotFoundError("transaction", id)
	}

	releaseCat, err := s.locks.acquire(ctx, categoryKeys(old.CategoryID)...)
	if err != nil {
		return err
	}
	defer releaseCat()

	if err := persistErr(ctx, s, "delete transaction", func(ctx context.Context) error {
		return s.store.DeleteTransaction(ctx, id)
	}); err != nil {
		s.logFailure(ctx, log.OpDelete, err)
		return err
	}

	s.mu.Lock()
	s.applyLocked(old, aggregate.Remove)
	delete(s.transactions, id)
	ev := s.emitLocked(EventTransactionDeleted, []string{id}, distinctIDs(old.CategoryID))
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldTransactionID, id,
		log.FieldCategoryID, old.CategoryID,
		log.FieldVersion, ev.Version)
	return nil
}

func (s *LedgerService) AddCategory(ctx context.Context, in core.NewCategory) (core.Category, error) {
	c := in.Category()
	if err := c.Validate(); err != nil {
		return core.Category{}, core.NewValidationError(err)
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	release, err := s.locks.acquire(ctx, nameKey(c.Name))
	if err != nil {
		return core.Category{}, err
	}
	defer release()

	if err := s.checkNameFree(c.Name, ""); err != nil {
		return core.Category{}, err
	}

	saved, err := persist(ctx, s, "create category", func(ctx context.Context) (core.Category, error) {
		return s.store.CreateCategory(ctx, c)
	})
	if err != nil {
		s.logFailure(ctx, log.OpCreate, err)
		return core.Category{}, err
	}
	saved.Spent = core.Money{}

	s.mu.Lock()
	s.categories[saved.ID] = saved
	ev := s.emitLocked(EventCategoryAdded, nil, []string{saved.ID})
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Category added", log.NewFields().
		WithOperation(log.OpCreate).
		WithCategory(saved.ID, saved.Name).
		WithVersion(ev.Version).ToSlice()...)
	return saved, nil
}

// UpdateCategory changes name, budget or color. Spent is carried over.
func (s *LedgerService) UpdateCategory(ctx context.Context, id string, changes core.CategoryChanges) (core.Category, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	cur, ok := s.category(id)
	if !ok {
		return core.Category{}, core.NewNotFoundError("category", id)
	}
	keys := []string{catKey(id)}
	if changes.Name != nil {
		keys = append(keys, nameKey(*changes.Name))
	}
	release, err := s.locks.acquire(ctx, keys...)
	if err != nil {
		return core.Category{}, err
	}
	defer release()

	// Re-read under the lock; a concurrent delete may have won.
	if cur, ok = s.category(id); !ok {
		return core.Category{}, core.NewNotFoundError("category", id)
	}
	next := changes.Apply(cur)
	if err := next.Validate(); err != nil {
		return core.Category{}, core.NewValidationError(err)
	}
	if err := s.checkNameFree(next.Name, id); err != nil {
		return core.Category{}, err
	}

	saved, err := persist(ctx, s, "update category", func(ctx context.Context) (core.Category, error) {
		return s.store.UpdateCategory(ctx, next)
	})
	if err != nil {
		s.logFailure(ctx, log.OpUpdate, err)
		return core.Category{}, err
	}

	s.mu.Lock()
	saved.Spent = s.categories[id].Spent
	s.categories[id] = saved
	ev := s.emitLocked(EventCategoryUpdated, nil, []string{id})
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Category updated", log.NewFields().
		WithOperation(log.OpUpdate).
		WithCategory(saved.ID, saved.Name).
		WithVersion(ev.Version).ToSlice()...)
	return saved, nil
}

// DeleteCategory removes the category and unlabels its transactions. No other
// category's spent changes.
func (s *LedgerService) DeleteCategory(ctx context.Context, id string) error {
	s.gate.RLock()
	defer s.gate.RUnlock()

	release, err := s.locks.acquire(ctx, catKey(id))
	if err != nil {
		return err
	}
	defer release()

	if _, ok := s.category(id); !ok {
		return core.NewNotFoundError("category", id)
	}

	if err := persistErr(ctx, s, "delete category", func(ctx context.Context) error {
		return s.store.DeleteCategory(ctx, id)
	}); err != nil {
		s.logFailure(ctx, log.OpDelete, err)
		return err
	}

	s.mu.Lock()
	var unlabeled []string
	for txID, t := range s.transactions {
		if t.CategoryID == id {
			t.Unlabel()
			s.transactions[txID] = t
			unlabeled = append(unlabeled, txID)
		}
	}
	sort.Strings(unlabeled)
	delete(s.categories, id)
	ev := s.emitLocked(EventCategoryDeleted, unlabeled, []string{id})
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Category deleted",
		log.FieldCategoryID, id,
		log.FieldCount, len(unlabeled),
		log.FieldVersion, ev.Version)
	return nil
}

// BulkRecategorize moves every listed transaction in one store write. Readers
// see either none or all of the moves.
func (s *LedgerService) BulkRecategorize(ctx context.Context, updates []core.Recategorization) ([]core.Transaction, error) {
	if len(updates) == 0 {
		return nil, nil
	}
	txnKeys := make([]string, 0, len(updates))
	seen := make(map[string]struct{}, len(updates))
	for _, u := range updates {
		if _, dup := seen[u.TransactionID]; dup {
			return nil, core.NewValidationError(fmt.Errorf("%w: %s", ErrDuplicateRecategorization, u.TransactionID))
		}
		seen[u.TransactionID] = struct{}{}
		txnKeys = append(txnKeys, txnKey(u.TransactionID))
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	releaseTxn, err := s.locks.acquire(ctx, txnKeys...)
	if err != nil {
		return nil, err
	}
	defer releaseTxn()

	olds := make([]core.Transaction, 0, len(updates))
	nexts := make([]core.Transaction, 0, len(updates))
	var catIDs []string
	for _, u := range updates {
		old, ok := s.transaction(u.TransactionID)
		if !ok {
			return nil, core.NewNotFoundError("transaction", u.TransactionID)
		}
		next := old
		next.CategoryID = u.CategoryID
		next.Normalize()
		olds = append(olds, old)
		nexts = append(nexts, next)
		catIDs = append(catIDs, old.CategoryID, next.CategoryID)
	}

	releaseCat, err := s.locks.acquire(ctx, categoryKeys(catIDs...)...)
	if err != nil {
		return nil, err
	}
	defer releaseCat()

	refs := make([]string, 0, len(nexts))
	for _, n := range nexts {
		refs = append(refs, n.CategoryID)
	}
	if err := s.checkCategoryRefs(refs...); err != nil {
		return nil, err
	}

	saved, err := persist(ctx, s, "recategorize transactions", func(ctx context.Context) ([]core.Transaction, error) {
		return s.store.UpdateTransactions(ctx, nexts)
	})
	if err != nil {
		s.logFailure(ctx, log.OpRecategory, err)
		return nil, err
	}

	s.mu.Lock()
	for _, old := range olds {
		s.applyLocked(old, aggregate.Remove)
	}
	ids := make([]string, 0, len(saved))
	for _, t := range saved {
		s.applyLocked(t, aggregate.Add)
		s.transactions[t.ID] = t
		ids = append(ids, t.ID)
	}
	ev := s.emitLocked(EventRecategorized, ids, distinctIDs(catIDs...))
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transactions recategorized",
		log.FieldOperation, log.OpRecategory,
		log.FieldCount, len(saved),
		log.FieldVersion, ev.Version)
	return saved, nil
}

// Reconcile reloads both collections from the store and recomputes every
// spent. Mutations wait until it finishes. Calling it twice in a row yields
// the same categories.
func (s *LedgerService) Reconcile(ctx context.Context) ([]core.Category, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	start := time.Now()
	var (
		cats []core.Category
		txns []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cats, err = persist(gctx, s, "list categories", s.store.ListCategories)
		return err
	})
	g.Go(func() (err error) {
		txns, err = persist(gctx, s, "list transactions", func(ctx context.Context) ([]core.Transaction, error) {
			return s.store.ListTransactions(ctx, persistence.TransactionFilter{})
		})
		return err
	})
	if err := g.Wait(); err != nil {
		s.logFailure(ctx, log.OpReconcile, err)
		return nil, err
	}

	known := make(map[string]struct{}, len(cats))
	for _, c := range cats {
		known[c.ID] = struct{}{}
	}
	for i := range txns {
		txns[i].Normalize()
		if _, ok := known[txns[i].CategoryID]; txns[i].CategoryID != "" && !ok {
			s.logger.WarnContext(ctx, "Transaction references unknown category, treating as unlabeled",
				log.FieldTransactionID, txns[i].ID,
				log.FieldCategoryID, txns[i].CategoryID)
			txns[i].Unlabel()
		}
	}
	recomputed := aggregate.RecomputeAll(cats, txns)

	s.mu.Lock()
	s.categories = make(map[string]core.Category, len(recomputed))
	ids := make([]string, 0, len(recomputed))
	for _, c := range recomputed {
		s.categories[c.ID] = c
		ids = append(ids, c.ID)
	}
	s.transactions = make(map[string]core.Transaction, len(txns))
	for _, t := range txns {
		s.transactions[t.ID] = t
	}
	ev := s.emitLocked(EventReconciled, nil, ids)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Ledger reconciled",
		log.FieldOperation, log.OpReconcile,
		log.FieldCount, len(txns),
		"categories", len(recomputed),
		log.FieldDuration, time.Since(start).Milliseconds(),
		log.FieldVersion, ev.Version)
	return recomputed, nil
}

// CheckDrift compares held spent values against a full recomputation of the
// working copy without changing anything.
func (s *LedgerService) CheckDrift() []core.Drift {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return aggregate.Diff(s.categoriesLocked(), s.transactionsLocked())
}

// Subscribe delivers an Event after each applied mutation, in version
// order. Gaps mean the subscriber fell behind and events were dropped.
func (s *LedgerService) Subscribe(buffer int) (<-chan Event, func()) {
	return s.broker.Subscribe(buffer)
}

// Version increases by one with every applied mutation or reconcile.
func (s *LedgerService) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// applyLocked adds or removes one transaction's contribution. Callers hold mu.
func (s *LedgerService) applyLocked(t core.Transaction, sign aggregate.Sign) {
	id, amount, ok := aggregate.Contribution(t)
	if !ok {
		return
	}
	c, exists := s.categories[id]
	if !exists {
		return
	}
	c.Spent = aggregate.Delta(c.Spent, amount, sign)
	s.categories[id] = c
}

// emitLocked bumps the version and publishes while s.mu is held, so
// subscribers receive events in version order. Publish never blocks.
func (s *LedgerService) emitLocked(kind EventKind, txIDs, catIDs []string) Event {
	s.version++
	ev := Event{
		Kind:           kind,
		Version:        s.version,
		TransactionIDs: txIDs,
		CategoryIDs:    catIDs,
		At:             s.now(),
	}
	for _, id := range catIDs {
		if c, ok := s.categories[id]; ok {
			ev.Categories = append(ev.Categories, c)
		}
	}
	s.broker.Publish(ev)
	return ev
}

func (s *LedgerService) transaction(id string) (core.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	return t, ok
}

func (s *LedgerService) category(id string) (core.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	return c, ok
}

func (s *LedgerService) checkCategoryRefs(ids ...string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.categories[id]; !ok {
			return core.NewValidationError(fmt.Errorf("%w: %s", core.ErrUnknownCategory, id))
		}
	}
	return nil
}

func (s *LedgerService) checkNameFree(name, selfID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.categories {
		if id != selfID && core.SameName(c.Name, name) {
			return core.NewValidationError(fmt.Errorf("%w: %s", core.ErrDuplicateCategory, name))
		}
	}
	return nil
}

func (s *LedgerService) categoriesLocked() []core.Category {
	out := make([]core.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	return out
}

func (s *LedgerService) transactionsLocked() []core.Transaction {
	out := make([]core.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		out = append(out, t)
	}
	return out
}

func (s *LedgerService) logFailure(ctx context.Context, op string, err error) {
	errType := core.ErrorType(err)
	fields := log.NewFields().WithOperation(op).WithError(err, errType).ToSlice()
	if errType == log.ErrorTypeNetwork {
		s.logger.ErrorContext(ctx, "Ledger mutation failed", fields...)
		return
	}
	s.logger.WarnContext(ctx, "Ledger mutation rejected", fields...)
}

// persist runs one store call under the persist timeout and maps its error
// into the service taxonomy.
func persist[T any](ctx context.Context, s *LedgerService, op string, fn func(context.Context) (T, error)) (T, error) {
	pctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	out, err := fn(pctx)
	if err != nil {
		var zero T
		return zero, mapStoreError(op, err)
	}
	return out, nil
}

func persistErr(ctx context.Context, s *LedgerService, op string, fn func(context.Context) error) error {
	_, err := persist(ctx, s, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, core.ErrDuplicateCategory), errors.Is(err, core.ErrUnknownCategory):
		return core.NewValidationError(err)
	case errors.Is(err, core.ErrValidation):
		return err
	case errors.Is(err, core.ErrNotFound):
		var nf *core.NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		return &core.NotFoundError{Entity: op[strings.LastIndexByte(op, ' ')+1:], Op: op, Err: err}
	default:
		return &core.TransportError{Op: op, Err: err}
	}
}

func categoryKeys(ids ...string) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			keys = append(keys, catKey(id))
		}
	}
	return keys
}

// distinctIDs returns the distinct non-empty ids in input order.
func distinctIDs(ids ...string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
