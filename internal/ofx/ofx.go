// Package ofx reads OFX/QFX bank and credit card statements as an import
// source. OFX signs amounts from the account holder's side: negative
// TRNAMT is money leaving the account.
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"budget/internal/core"
	ports "budget/internal/sheets"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)`)
	// Opening tags missing their closing bracket at end of line.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Categories suggested by transaction type; everything else is unlabeled.
var typeCategories = map[string]string{
	"INT":    "Interest",
	"DIV":    "Interest",
	"FEE":    "Bank Fees",
	"SRVCHG": "Bank Fees",
	"ATM":    "Cash",
}

type Source struct {
	name string
	open func() (io.ReadCloser, error)
}

var _ ports.LedgerSource = (*Source)(nil)

// NewFileSource reads the statement at path on every ReadLedger call.
func NewFileSource(path string) *Source {
	return &Source{
		name: "ofx:" + filepath.Base(path),
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// NewSource wraps an in-memory statement.
func NewSource(name string, data []byte) *Source {
	return &Source{
		name: "ofx:" + name,
		open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

func (s *Source) Name() string { return s.name }

func (s *Source) ReadLedger(ctx context.Context) ([]ports.ImportRow, error) {
	rc, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("open statement: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read statement: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("parse OFX: %w", err)
	}

	var rows []ports.ImportRow
	var bankStmts, ccStmts int
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		bankStmts++
		rows = appendRows(rows, stmt.BankTranList.Transactions)
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		ccStmts++
		rows = appendRows(rows, stmt.BankTranList.Transactions)
	}

	slog.InfoContext(ctx, "Parsed OFX statement",
		"source", s.name,
		"rows", len(rows),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)
	return rows, nil
}

// preprocess fixes common formatting issues in exported OFX files.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func appendRows(rows []ports.ImportRow, txns []ofxgo.Transaction) []ports.ImportRow {
	for _, tx := range txns {
		rows = append(rows, convert(len(rows)+1, tx))
	}
	return rows
}

func convert(line int, tx ofxgo.Transaction) ports.ImportRow {
	row := ports.ImportRow{
		Line:         line,
		Ref:          string(tx.FiTID),
		Description:  description(tx),
		OccurredAt:   tx.DtPosted.Time.UTC(),
		CategoryName: typeCategories[tx.TrnType.String()],
	}

	amt, err := decimal.NewFromString(tx.TrnAmt.FloatString(2))
	if err != nil {
		row.Err = fmt.Errorf("transaction %s: amount: %w", tx.FiTID, err)
		return row
	}
	money := core.MoneyFromDecimal(amt)
	switch {
	case money.IsZero():
		row.Err = fmt.Errorf("transaction %s: %w", tx.FiTID, core.ErrInvalidAmount)
	case money.IsNegative():
		row.Amount, row.Direction = core.Money{Cents: -money.Cents}, core.Debit
	default:
		row.Amount, row.Direction = money, core.Credit
	}
	return row
}

// description prefers PAYEE, then NAME, then MEMO.
func description(tx ofxgo.Transaction) string {
	if tx.Payee != nil && strings.TrimSpace(string(tx.Payee.Name)) != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}
	if name := strings.TrimSpace(string(tx.Name)); name != "" {
		return name
	}
	return strings.TrimSpace(string(tx.Memo))
}
