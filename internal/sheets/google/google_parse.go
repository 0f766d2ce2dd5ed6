package google

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"budget/internal/core"
	ports "budget/internal/sheets"
)

var errEmptyAmount = errors.New("empty amount")

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "02.01.2006", "2006/01/02"}

type ledgerColumns struct {
	date, description, amount, typ, category int
}

// parseLedger converts a values matrix (as returned by Sheets API) into
// import rows. Header names are matched ignoring case; Type and Category
// are optional. Line numbers are 1-based sheet rows.
func parseLedger(values [][]interface{}) ([]ports.ImportRow, error) {
	start := 0
	for start < len(values) && isBlank(toStrings(values[start])) {
		start++
	}
	if start == len(values) {
		return nil, nil
	}

	headers := toStrings(values[start])
	cols := ledgerColumns{
		date:        indexOf(headers, "Date"),
		description: indexOf(headers, "Description"),
		amount:      indexOf(headers, "Amount"),
		typ:         indexOf(headers, "Type"),
		category:    indexOf(headers, "Category"),
	}
	var missing []string
	if cols.date == -1 {
		missing = append(missing, "Date")
	}
	if cols.description == -1 {
		missing = append(missing, "Description")
	}
	if cols.amount == -1 {
		missing = append(missing, "Amount")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unexpected ledger header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	var out []ports.ImportRow
	for i := start + 1; i < len(values); i++ {
		row := toStrings(values[i])
		if isBlank(row) {
			continue
		}
		out = append(out, parseRow(i+1, row, cols))
	}
	return out, nil
}

func parseRow(line int, row []string, cols ledgerColumns) ports.ImportRow {
	r := ports.ImportRow{
		Line:         line,
		Ref:          fmt.Sprintf("row-%d", line),
		Description:  safeGet(row, cols.description),
		CategoryName: safeGet(row, cols.category),
	}

	occurred, err := parseDate(safeGet(row, cols.date))
	if err != nil {
		r.Err = fmt.Errorf("row %d: %w", line, err)
		return r
	}
	r.OccurredAt = occurred

	amount, negative, err := parseSignedAmount(safeGet(row, cols.amount))
	if err != nil {
		r.Err = fmt.Errorf("row %d: %w", line, err)
		return r
	}
	r.Amount = amount

	if typ := safeGet(row, cols.typ); typ != "" {
		t, err := core.ParseTransactionType(typ)
		if err != nil {
			r.Err = fmt.Errorf("row %d: %w", line, err)
			return r
		}
		r.Direction = core.DirectionFor(t)
		return r
	}
	// Without a type the sign decides, as on a bank statement.
	if negative {
		r.Direction = core.Debit
	} else {
		r.Direction = core.Credit
	}
	return r
}

// parseDate returns the zero time for an empty cell; the importer then
// dates the transaction at import time.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// parseSignedAmount strips currency symbols, thousands separators and the
// sign, then parses the magnitude with core.ParseMoney.
func parseSignedAmount(s string) (core.Money, bool, error) {
	s = strings.TrimSpace(strings.NewReplacer("€", "", "EUR", "", " ", "", "\u00a0", "").Replace(s))
	if s == "" {
		return core.Money{}, false, errEmptyAmount
	}
	negative := false
	switch {
	case strings.HasPrefix(s, "-"):
		negative, s = true, s[1:]
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		negative, s = true, s[1:len(s)-1]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	s = dropThousands(s)
	m, err := core.ParseMoney(s)
	if err != nil {
		return core.Money{}, false, fmt.Errorf("amount %q: %w", s, err)
	}
	return m, negative, nil
}

// dropThousands removes grouping separators when both '.' and ',' appear;
// the last one is taken as the decimal separator.
func dropThousands(s string) string {
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	if dot == -1 || comma == -1 {
		return s
	}
	if dot > comma {
		return strings.ReplaceAll(s, ",", "")
	}
	return strings.ReplaceAll(s, ".", "")
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
