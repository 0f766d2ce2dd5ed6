package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ports "budget/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const DefaultSheetName = "Ledger"

// Client reads a ledger tab (Date, Description, Amount, Type, Category) from
// a Google spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

// Ensure interface conformance
var _ ports.LedgerSource = (*Client)(nil)

type Config struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON wins over CredentialsFile when both are set.
	CredentialsJSON string
	CredentialsFile string
}

// ConfigFromEnv reads GOOGLE_SPREADSHEET_ID, GOOGLE_LEDGER_SHEET and the
// service account variables.
func ConfigFromEnv() Config {
	cfg := Config{
		SpreadsheetID:   strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		SheetName:       strings.TrimSpace(os.Getenv("GOOGLE_LEDGER_SHEET")),
		CredentialsJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		CredentialsFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
	}
	// Also check the standard Google Cloud environment variable
	if cfg.CredentialsJSON == "" && cfg.CredentialsFile == "" {
		cfg.CredentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return cfg
}

// NewFromConfig creates a read-only Sheets client authenticated with a
// service account.
func NewFromConfig(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg.SpreadsheetID, cfg.SheetName,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
}

// New builds a client from explicit API options.
func New(ctx context.Context, spreadsheetID, sheet string, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(sheet) == "" {
		sheet = DefaultSheetName
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheet: strings.TrimSpace(sheet)}, nil
}

func credentials(ctx context.Context, cfg Config) ([]byte, error) {
	switch {
	case cfg.CredentialsJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		return []byte(cfg.CredentialsJSON), nil
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.DebugContext(ctx, "Read credentials file", "path", cfg.CredentialsFile, "size", len(data))
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) Name() string {
	return "sheet:" + c.sheet
}

// ReadLedger fetches the whole tab. The first non-empty row must be a header.
func (c *Client) ReadLedger(ctx context.Context) ([]ports.ImportRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:F", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	rows, err := parseLedger(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Read ledger sheet", "sheet", c.sheet, "rows", len(rows))
	return rows, nil
}
