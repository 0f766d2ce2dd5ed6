package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/persistence"
	"budget/internal/sheets"
)

type ImportReport struct {
	Source            string
	Rows              int
	Imported          int
	Skipped           int
	CategoriesCreated int
	Version           uint64 // ledger version after the closing reconcile
}

// ImportProgress is called after each row with the number handled so far.
type ImportProgress func(done, total int)

// ImportService writes external rows straight to the store and then
// reconciles the ledger, since none of the writes went through the
// incremental path.
type ImportService struct {
	store  persistence.Store
	ledger *LedgerService
	logger *log.Logger
}

func NewImportService(store persistence.Store, ledger *LedgerService, logger *log.Logger) *ImportService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ImportService{
		store:  store,
		ledger: ledger,
		logger: logger.WithComponent(log.ComponentImporter),
	}
}

// Import reads every row of src. Invalid rows are counted as skipped. A store
// failure stops the import; rows written before it are kept and the ledger
// is still reconciled.
func (s *ImportService) Import(ctx context.Context, src sheets.LedgerSource, progress ImportProgress) (ImportReport, error) {
	report := ImportReport{Source: src.Name()}

	var (
		rows []sheets.ImportRow
		cats []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = src.ReadLedger(gctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", src.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		cats, err = s.store.ListCategories(gctx)
		if err != nil {
			return &core.TransportError{Op: "list categories", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return report, err
	}

	byName := make(map[string]string, len(cats))
	for _, c := range cats {
		byName[strings.ToLower(strings.TrimSpace(c.Name))] = c.ID
	}

	report.Rows = len(rows)
	var importErr error
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			importErr = err
			break
		}
		ok, err := s.importRow(ctx, row, byName, &report)
		if err != nil {
			importErr = err
			break
		}
		if ok {
			report.Imported++
		} else {
			report.Skipped++
		}
		if progress != nil {
			progress(i+1, len(rows))
		}
	}

	if _, err := s.ledger.Reconcile(ctx); err != nil {
		return report, errors.Join(importErr, err)
	}
	report.Version = s.ledger.Version()

	s.logger.InfoContext(ctx, "Import finished",
		log.FieldSource, report.Source,
		log.FieldCount, report.Rows,
		"imported", report.Imported,
		"skipped", report.Skipped,
		"categories_created", report.CategoriesCreated,
		log.FieldSuccess, importErr == nil)
	return report, importErr
}

// importRow returns false for rows that are skipped and an error only when
// the store itself failed.
func (s *ImportService) importRow(ctx context.Context, row sheets.ImportRow, byName map[string]string, report *ImportReport) (bool, error) {
	if row.Err != nil {
		s.logger.DebugContext(ctx, "Skipping unparseable row", "line", row.Line, log.FieldError, row.Err)
		return false, nil
	}

	candidate := row.Transaction("")
	if err := candidate.Validate(); err != nil {
		s.logger.DebugContext(ctx, "Skipping invalid row", "line", row.Line, log.FieldError, err)
		return false, nil
	}

	categoryID, err := s.resolveCategory(ctx, row.CategoryName, byName, report)
	if err != nil {
		return false, err
	}

	if _, err := s.store.CreateTransaction(ctx, row.Transaction(categoryID)); err != nil {
		if errors.Is(err, core.ErrUnknownCategory) {
			return false, nil
		}
		return false, &core.TransportError{Op: "import transaction", Err: err}
	}
	return true, nil
}

func (s *ImportService) resolveCategory(ctx context.Context, name string, byName map[string]string, report *ImportReport) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", nil
	}
	if id, ok := byName[key]; ok {
		return id, nil
	}
	created, err := s.store.CreateCategory(ctx, core.NewCategory{Name: name}.Category())
	if err != nil {
		return "", &core.TransportError{Op: "import category", Err: err}
	}
	byName[key] = created.ID
	report.CategoriesCreated++
	s.logger.InfoContext(ctx, "Category created during import", log.FieldCategoryID, created.ID, log.FieldCategoryName, created.Name)
	return created.ID, nil
}
