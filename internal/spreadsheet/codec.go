// Package spreadsheet converts record collections to and from xlsx workbooks.
package spreadsheet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"vansales/internal/core"
)

// ContentType is the MIME type of the exported workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	ErrUnreadable = errors.New("unreadable spreadsheet")
	ErrNoHeader   = errors.New("spreadsheet has no header row")
)

// Sheet is the decoded content of an imported workbook.
type Sheet struct {
	Columns []string
	Records []core.Record
}

// Columns returns the export column set: every key present in any record,
// canonical columns of the kind first, remaining keys sorted.
func Columns(kind core.Kind, recs []core.Record) []string {
	present := make(map[string]bool)
	for _, r := range recs {
		for k := range r {
			present[k] = true
		}
	}

	var out []string
	for _, c := range kind.Columns() {
		if present[c] {
			out = append(out, c)
			delete(present, c)
		}
	}
	extra := make([]string, 0, len(present))
	for k := range present {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Export writes recs as a single-sheet workbook named after the kind. An
// empty collection still gets the kind's canonical header row.
func Export(kind core.Kind, recs []core.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := kind.SheetName()
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	cols := Columns(kind, recs)
	if len(cols) == 0 {
		cols = kind.Columns()
	}
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, r := range recs {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = cellValue(r[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// cellValue maps a record value to what excelize should store: numbers as
// numbers, booleans as booleans, everything else as text. Numbers go through
// float64, so digits past roughly 15 significant places are lost.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case decimal.Decimal:
		return x.InexactFloat64()
	case float64, float32, int, int32, int64, bool:
		return x
	default:
		return core.Text(x)
	}
}

// Import decodes the first sheet of an xlsx workbook. The first non-empty row
// is the header; every later non-empty row becomes a record keyed by header
// names. Blank header columns and blank cells are left out, and numeric or
// boolean fields of the kind are coerced from their cell text. A header that
// repeats a column name makes the file unreadable.
func Import(kind core.Kind, r io.Reader) (Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Sheet{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Sheet{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Sheet{}, ErrNoHeader
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Sheet{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	headerAt := -1
	for i, row := range rows {
		if !blankRow(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return Sheet{}, ErrNoHeader
	}

	header := make([]string, len(rows[headerAt]))
	seen := make(map[string]bool)
	var columns []string
	for i, h := range rows[headerAt] {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			continue
		}
		if seen[header[i]] {
			return Sheet{}, fmt.Errorf("%w: duplicate column %q", ErrUnreadable, header[i])
		}
		seen[header[i]] = true
		columns = append(columns, header[i])
	}

	out := Sheet{Columns: columns, Records: []core.Record{}}
	for _, row := range rows[headerAt+1:] {
		if blankRow(row) {
			continue
		}
		rec := make(core.Record)
		for i, cell := range row {
			if i >= len(header) || header[i] == "" || strings.TrimSpace(cell) == "" {
				continue
			}
			rec[header[i]] = core.Coerce(kind, header[i], cell)
		}
		if len(rec) > 0 {
			out.Records = append(out.Records, rec)
		}
	}
	return out, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
