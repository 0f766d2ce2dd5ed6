package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"budget/internal/log"
	"budget/internal/ofx"
	"budget/internal/services"
	"budget/internal/sheets"
	"budget/internal/sheets/google"
)

func importCmd(opts *rootOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import transactions from an external ledger",
		Long: `Bulk import transactions. Missing categories are created by name, invalid
rows are skipped, and every category's spent is reconciled afterwards.`,
	}
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")

	sheet := &cobra.Command{
		Use:   "sheet",
		Short: "Import the ledger tab of the configured Google spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gcfg := google.ConfigFromEnv()
			gcfg.SpreadsheetID = opts.cfg.GoogleSpreadsheetID
			gcfg.SheetName = opts.cfg.GoogleLedgerSheet
			src, err := google.NewFromConfig(cmd.Context(), gcfg)
			if err != nil {
				return fmt.Errorf("open spreadsheet: %w", err)
			}
			return runImport(cmd, opts, quiet, src)
		},
	}

	ofxCmd := &cobra.Command{
		Use:   "ofx <file>...",
		Short: "Import OFX/QFX bank or card statements",
		Long: `Import OFX/QFX statements. Arguments may be glob patterns.

Examples:
  ledger import ofx ~/Downloads/statement.qfx
  ledger import ofx ~/Downloads/*.ofx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandFiles(args)
			if err != nil {
				return err
			}
			srcs := make([]sheets.LedgerSource, len(files))
			for i, f := range files {
				srcs[i] = ofx.NewFileSource(f)
			}
			return runImport(cmd, opts, quiet, srcs...)
		},
	}

	cmd.AddCommand(sheet, ofxCmd)
	return cmd
}

func runImport(cmd *cobra.Command, opts *rootOptions, quiet bool, srcs ...sheets.LedgerSource) error {
	return withApp(cmd.Context(), opts, func(a *app) error {
		importer := services.NewImportService(a.store.Store, a.ledger, opts.logger)
		out := cmd.OutOrStdout()
		for _, src := range srcs {
			report, err := importOne(cmd.Context(), importer, src, out, quiet)
			if err != nil {
				return fmt.Errorf("import %s: %w", src.Name(), err)
			}
			fmt.Fprintln(out, SuccessStyle.Render(fmt.Sprintf("✓ %s: imported %d of %d row(s)", report.Source, report.Imported, report.Rows)))
			if report.Skipped > 0 {
				fmt.Fprintln(out, WarningStyle.Render(fmt.Sprintf("  skipped %d invalid row(s)", report.Skipped)))
			}
			if report.CategoriesCreated > 0 {
				fmt.Fprintf(out, "  created %d categor(ies)\n", report.CategoriesCreated)
			}
		}
		return nil
	})
}

func importOne(ctx context.Context, importer *services.ImportService, src sheets.LedgerSource, out io.Writer, quiet bool) (services.ImportReport, error) {
	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if quiet {
			return
		}
		if bar == nil {
			bar = newProgressBar(out, total, src.Name())
		}
		if err := bar.Set(done); err != nil {
			log.FromContext(ctx).Warn("Failed to update progress bar", log.FieldError, err)
		}
	}
	report, err := importer.Import(ctx, src, progress)
	if bar != nil {
		_ = bar.Finish()
	}
	return report, err
}

func newProgressBar(out io.Writer, total int, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan][bold]Importing %s...[reset]", name)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(out)
		}),
	)
}

// expandFiles resolves glob patterns; a pattern without matches must name
// an existing file.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) > 0 {
			files = append(files, matches...)
			continue
		}
		if _, err := os.Stat(pattern); err != nil {
			return nil, fmt.Errorf("no files match %s", pattern)
		}
		files = append(files, pattern)
	}
	return files, nil
}
