package bulk

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopclerk/shopclerk/internal/domain"
)

var skuRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// RowError records why one CSV row was rejected. Rejected rows never abort
// the parse; callers decide whether to surface them.
type RowError struct {
	Row     int
	Message string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ParseCSV reads {sku, quantity} rows from delimited text. The first row is
// treated as a header when its quantity column is not numeric. Fields are
// sanitized before use: formula prefixes, markup, traversal sequences, and
// control characters all reject the row.
func ParseCSV(r io.Reader) ([]domain.BulkOrderRequest, []RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, &domain.ValidationError{Field: "csv", Message: "malformed delimited text: " + err.Error()}
	}

	skuCol, qtyCol := 0, 1
	start := 0
	if len(records) > 0 && looksLikeHeader(records[0]) {
		if sc, qc, ok := headerColumns(records[0]); ok {
			skuCol, qtyCol = sc, qc
		}
		start = 1
	}

	var (
		items   []domain.BulkOrderRequest
		rowErrs []RowError
	)
	for i := start; i < len(records); i++ {
		rec := records[i]
		row := i + 1
		if isBlankRecord(rec) {
			continue
		}
		if len(rec) <= skuCol || len(rec) <= qtyCol {
			rowErrs = append(rowErrs, RowError{Row: row, Message: "missing columns"})
			continue
		}

		sku := strings.TrimSpace(rec[skuCol])
		if msg := sanitizeField(sku); msg != "" {
			rowErrs = append(rowErrs, RowError{Row: row, Message: msg})
			continue
		}
		if !skuRe.MatchString(sku) {
			rowErrs = append(rowErrs, RowError{Row: row, Message: "invalid sku"})
			continue
		}

		qtyField := strings.TrimSpace(rec[qtyCol])
		if msg := sanitizeField(qtyField); msg != "" {
			rowErrs = append(rowErrs, RowError{Row: row, Message: msg})
			continue
		}
		qty, convErr := strconv.Atoi(qtyField)
		if convErr != nil || qty < 1 {
			rowErrs = append(rowErrs, RowError{Row: row, Message: "quantity must be a positive whole number"})
			continue
		}

		items = append(items, domain.BulkOrderRequest{SKU: sku, Quantity: qty})
	}
	return items, rowErrs, nil
}

// sanitizeField rejects spreadsheet formula injection, markup, path traversal,
// and control characters. Returns the rejection reason, or "" when clean.
func sanitizeField(s string) string {
	if s == "" {
		return "empty field"
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "field starts with a formula character"
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "<script") || strings.Contains(lower, "javascript:") {
		return "field contains markup"
	}
	if strings.Contains(s, "..") {
		return "field contains a traversal sequence"
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "field contains control characters"
		}
	}
	return ""
}

func looksLikeHeader(rec []string) bool {
	if len(rec) < 2 {
		return false
	}
	if _, err := strconv.Atoi(strings.TrimSpace(rec[1])); err == nil {
		return false
	}
	return true
}

func headerColumns(rec []string) (skuCol, qtyCol int, ok bool) {
	skuCol, qtyCol = -1, -1
	for i, h := range rec {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "sku", "product", "item":
			if skuCol == -1 {
				skuCol = i
			}
		case "quantity", "qty", "count":
			if qtyCol == -1 {
				qtyCol = i
			}
		}
	}
	if skuCol == -1 || qtyCol == -1 {
		return 0, 0, false
	}
	return skuCol, qtyCol, true
}

func isBlankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
