package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Supported MIME types
const (
	MIMECSV      = "text/csv"
	MIMECSVAlt   = "application/csv"
	MIMEText     = "text/plain"
	MIMETSV      = "text/tab-separated-values"
	MIMEXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEXLS      = "application/vnd.ms-excel"
	unnamedLabel = "Unnamed: "
)

type format int

const (
	formatUnknown format = iota
	formatDelimited
	formatXLSX
	formatXLS
)

// Document is a parsed record set. Rows are aligned with Columns.
type Document struct {
	Columns []string
	Rows    [][]any
}

// Records returns the rows keyed by column header.
func (d *Document) Records() []map[string]any {
	out := make([]map[string]any, len(d.Rows))
	for i, row := range d.Rows {
		rec := make(map[string]any, len(d.Columns))
		for j, col := range d.Columns {
			rec[col] = row[j]
		}
		out[i] = rec
	}
	return out
}

// MarshalJSON writes an array of objects whose keys keep column order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range d.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range d.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(row[j])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i+1, col, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func formatFor(mimeType string) (format, rune) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch mediaType {
	case MIMECSV, MIMECSVAlt, MIMEText:
		return formatDelimited, ','
	case MIMETSV:
		return formatDelimited, '\t'
	case MIMEXLSX:
		return formatXLSX, 0
	case MIMEXLS:
		return formatXLS, 0
	default:
		return formatUnknown, 0
	}
}

// Supported reports whether mimeType can be normalized.
func Supported(mimeType string) bool {
	f, _ := formatFor(mimeType)
	return f != formatUnknown
}

// Parse reads tabular content into a Document. The format is chosen from the
// declared MIME type only; the content is never sniffed.
func Parse(data []byte, mimeType string) (*Document, error) {
	f, delim := formatFor(mimeType)

	var (
		grid []sourceRow
		err  error
	)
	switch f {
	case formatDelimited:
		grid, err = readDelimited(data, delim)
	case formatXLSX:
		grid, err = readXLSX(data)
	case formatXLS:
		grid, err = readXLS(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, mimeType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return buildDocument(grid)
}

// sourceRow is one input row with its 1-based position in the source.
type sourceRow struct {
	line  int
	cells []string
}

func readDelimited(data []byte, delim rune) ([]sourceRow, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	// width is checked against the header in buildDocument
	r.FieldsPerRecord = -1

	// empty lines never reach here; a line of bare delimiters is a record
	// of missing values
	var grid []sourceRow
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return grid, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		grid = append(grid, sourceRow{line: line, cells: rec})
	}
}

// sheetRows numbers spreadsheet rows and drops the ones without any value,
// which a worksheet cannot tell apart from absent rows.
func sheetRows(rows [][]string) []sourceRow {
	var grid []sourceRow
	for i, row := range rows {
		if len(trimTrailingBlank(row)) == 0 {
			continue
		}
		grid = append(grid, sourceRow{line: i + 1, cells: row})
	}
	return grid
}

func readXLSX(data []byte) ([]sourceRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return sheetRows(rows), nil
}

func readXLS(data []byte) (grid []sourceRow, err error) {
	// the BIFF reader panics on some corrupt inputs
	defer func() {
		if r := recover(); r != nil {
			grid, err = nil, fmt.Errorf("unreadable workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	if wb == nil {
		return nil, errors.New("no workbook stream")
	}
	if wb.NumSheets() == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no readable sheet")
	}
	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		rows = append(rows, cells)
	}
	return sheetRows(rows), nil
}

// xlsRow returns nil for rows the sheet never wrote; WorkSheet.Row
// dereferences a missing row.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

func buildDocument(grid []sourceRow) (*Document, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: no header row", ErrMalformedInput)
	}

	header := trimTrailingBlank(grid[0].cells)
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: empty header row", ErrMalformedInput)
	}
	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = unnamedLabel + strconv.Itoa(i)
		}
		if first, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column header %q (columns %d and %d)", ErrMalformedInput, name, first+1, i+1)
		}
		seen[name] = i
		columns[i] = name
	}

	raw := make([][]string, 0, len(grid)-1)
	for _, src := range grid[1:] {
		row := trimTrailingBlank(src.cells)
		if len(row) > len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrMalformedInput, src.line, len(row), len(columns))
		}
		padded := make([]string, len(columns))
		copy(padded, row)
		raw = append(raw, padded)
	}

	doc := &Document{Columns: columns, Rows: make([][]any, len(raw))}
	for i := range raw {
		doc.Rows[i] = make([]any, len(columns))
	}
	for j := range columns {
		convert := inferColumn(raw, j)
		for i := range raw {
			doc.Rows[i][j] = convert(raw[i][j])
		}
	}
	return doc, nil
}

func trimTrailingBlank(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}

// Cell spellings read as missing values, following the pandas defaults.
var missingValues = map[string]bool{
	"": true, "#N/A": true, "#N/A N/A": true, "#NA": true, "-1.#IND": true,
	"-1.#QNAN": true, "-NaN": true, "-nan": true, "1.#IND": true, "1.#QNAN": true,
	"<NA>": true, "N/A": true, "NA": true, "NULL": true, "NaN": true, "None": true,
	"n/a": true, "nan": true, "null": true,
}

func isMissing(s string) bool {
	return missingValues[strings.TrimSpace(s)]
}

func parseInt(s string) (any, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v, err == nil
}

func parseFloat(s string) (any, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil, false
	}
	return v, true
}

func parseBool(s string) (any, bool) {
	switch strings.TrimSpace(s) {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	}
	return nil, false
}

// inferColumn picks one type per column, the way a DataFrame would: the
// narrowest parser that accepts every non-missing cell wins.
func inferColumn(rows [][]string, col int) func(string) any {
	for _, parse := range []func(string) (any, bool){parseInt, parseFloat, parseBool} {
		ok := true
		for _, row := range rows {
			if isMissing(row[col]) {
				continue
			}
			if _, good := parse(row[col]); !good {
				ok = false
				break
			}
		}
		if ok {
			p := parse
			return func(s string) any {
				if isMissing(s) {
					return nil
				}
				v, _ := p(s)
				return v
			}
		}
	}
	return func(s string) any {
		if isMissing(s) {
			return nil
		}
		return s
	}
}
