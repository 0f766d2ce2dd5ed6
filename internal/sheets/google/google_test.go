package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	goption "google.golang.org/api/option"
)

func TestNewFromConfig_MissingSpreadsheetID(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{CredentialsJSON: "{}"})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromConfig_MissingCredentials(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{SpreadsheetID: "id"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestNewFromConfig_UnreadableCredentialsFile(t *testing.T) {
	cfg := Config{SpreadsheetID: "id", CredentialsFile: filepath.Join(t.TempDir(), "nope.json")}
	_, err := NewFromConfig(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected file error, got %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", " sheet-1 ")
	t.Setenv("GOOGLE_LEDGER_SHEET", "2025 Ledger")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/creds.json")

	cfg := ConfigFromEnv()
	if cfg.SpreadsheetID != "sheet-1" || cfg.SheetName != "2025 Ledger" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.CredentialsFile != "/etc/creds.json" {
		t.Errorf("expected ADC fallback, got %q", cfg.CredentialsFile)
	}
}

func TestClient_ReadLedger(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"range":          "Ledger!A1:F3",
			"majorDimension": "ROWS",
			"values": [][]any{
				{"Date", "Description", "Amount", "Type", "Category"},
				{"2025-01-05", "Train", "12,40", "expense", "Transport"},
				{"2025-01-06", "Gift", "50", "income"},
			},
		})
	}))
	defer srv.Close()

	c, err := New(context.Background(), "sheet-id", "",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Name() != "sheet:Ledger" {
		t.Errorf("unexpected name %q", c.Name())
	}

	rows, err := c.ReadLedger(context.Background())
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if !strings.HasPrefix(gotPath, "/v4/spreadsheets/sheet-id/values/") {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Amount.Cents != 1240 || rows[0].CategoryName != "Transport" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
}

func TestClient_ReadLedgerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404,"message":"no such sheet"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(context.Background(), "sheet-id", "Ledger",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.ReadLedger(context.Background()); err == nil {
		t.Fatal("expected error from failing server")
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.ReadLedger(context.Background()); err == nil {
		t.Fatal("expected error when service is not initialized")
	}
}
