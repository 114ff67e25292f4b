// Package export turns result rows into a flat table and serializes it as an
// .xlsx workbook.
package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-sql/civil"
)

// Column declares one output column: the row field it carries, the header
// text and the display width in spreadsheet character units.
type Column struct {
	Field  string  `json:"field"`
	Header string  `json:"header"`
	Width  float64 `json:"width"`
}

// Table is the 2-D form of an export: one header row plus data rows, every
// cell already sanitized to text.
type Table struct {
	Columns []Column
	Header  []string
	Rows    [][]string
}

// Build projects rows onto cols, in column order. A field missing from a row
// yields an empty cell. The result depends only on its arguments.
func Build(rows []map[string]any, cols []Column) Table {
	t := Table{
		Columns: append([]Column(nil), cols...),
		Header:  make([]string, len(cols)),
		Rows:    make([][]string, 0, len(rows)),
	}
	for i, c := range cols {
		t.Header[i] = c.Header
		if t.Header[i] == "" {
			t.Header[i] = c.Field
		}
	}
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = SanitizeMultiline(row[c.Field])
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

var lineBreakMarkup = regexp.MustCompile(`(?i)<br\s*/?>`)

// SanitizeMultiline renders a cell value as text. nil becomes "", dates are
// written as YYYY-MM-DD, and <br> markup in any of its spellings becomes a
// newline so a wrapped cell shows one entry per line.
func SanitizeMultiline(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s = val
	case *string:
		if val == nil {
			return ""
		}
		s = *val
	case []byte:
		s = string(val)
	case civil.Date:
		return val.String()
	case *civil.Date:
		if val == nil {
			return ""
		}
		return val.String()
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format("2006-01-02")
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprint(val)
	}
	return lineBreakMarkup.ReplaceAllString(s, "\n")
}

// Len reports the number of data rows.
func (t Table) Len() int { return len(t.Rows) }

// Records returns the header followed by the data rows.
func (t Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header)
	return append(out, t.Rows...)
}

// widthOf returns the configured width for column i, or a width derived
// from the header when none was given.
func (t Table) widthOf(i int) float64 {
	if i < len(t.Columns) && t.Columns[i].Width > 0 {
		return t.Columns[i].Width
	}
	w := float64(len(strings.TrimSpace(t.Header[i])) + 4)
	if w < 10 {
		w = 10
	}
	return w
}
