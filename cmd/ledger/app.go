package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"budget/internal/backend"
	"budget/internal/cli"
	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/services"
)

// app is the ledger stack opened for a single command.
type app struct {
	opts   *rootOptions
	store  *backend.BackendResult
	ledger *services.LedgerService
	stats  *services.StatsService
}

func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	mode, err := services.ParseLockMode(opts.cfg.LockMode)
	if err != nil {
		return nil, err
	}

	store, err := cli.OpenStore(ctx, opts.logger, opts.cfg)
	if err != nil {
		return nil, err
	}

	ledger := services.NewLedgerService(store.Store, services.LedgerOptions{
		PersistTimeout: opts.cfg.PersistTimeout,
		LockMode:       mode,
		Logger:         opts.logger,
	})
	if err := ledger.Load(ctx); err != nil {
		store.Cleanup()
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	return &app{
		opts:   opts,
		store:  store,
		ledger: ledger,
		stats:  services.NewStatsService(ledger, opts.cfg.StatsCacheTTL),
	}, nil
}

func (a *app) Close() {
	if a.store.Cleanup == nil {
		return
	}
	if err := a.store.Cleanup(); err != nil {
		a.opts.logger.Warn("Failed to close store", log.FieldError, err)
	}
}

// withApp opens the ledger for the duration of fn.
func withApp(ctx context.Context, opts *rootOptions, fn func(a *app) error) error {
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// resolveCategory accepts a category id or a case-insensitive name.
func (a *app) resolveCategory(ref string) (core.Category, error) {
	ref = strings.TrimSpace(ref)
	if c, ok := a.stats.FindCategory(ref); ok {
		return c, nil
	}
	if c, ok := a.stats.FindCategoryByName(ref); ok {
		return c, nil
	}
	return core.Category{}, core.NewNotFoundError("category", ref)
}

// categoryRef resolves ref to an id; an empty ref means unlabeled.
func (a *app) categoryRef(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", nil
	}
	c, err := a.resolveCategory(ref)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "02/01/2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
}

// parseRecategorizations reads "txn=cat" pairs. An empty category unlabels.
func parseRecategorizations(args []string) ([]core.Recategorization, error) {
	out := make([]core.Recategorization, 0, len(args))
	for _, arg := range args {
		txn, cat, ok := strings.Cut(arg, "=")
		txn = strings.TrimSpace(txn)
		if !ok || txn == "" {
			return nil, fmt.Errorf("invalid recategorization %q: want <transaction>=<category>", arg)
		}
		out = append(out, core.Recategorization{TransactionID: txn, CategoryID: strings.TrimSpace(cat)})
	}
	return out, nil
}

// parseBudget accepts zero, unlike transaction amounts, so a budget can be
// removed.
func parseBudget(s string) (core.Money, error) {
	m, err := core.ParseBudget(s)
	if err != nil {
		return core.Money{}, core.NewValidationError(err)
	}
	return m, nil
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return 2
	case errors.Is(err, core.ErrNotFound):
		return 3
	case errors.Is(err, core.ErrConflict):
		return 4
	case errors.Is(err, core.ErrTransport):
		return 5
	default:
		return 1
	}
}
