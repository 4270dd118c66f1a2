package scanner

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"production_data_import/models"
)

var (
	// ErrEmptyWorkbook is returned when the first sheet has no header row
	ErrEmptyWorkbook = errors.New("workbook is empty")
	// ErrUnsupportedFormat is returned for extensions the ingestor cannot read
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// ParseError wraps every failure to turn a file into rows
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Result is the raw content of the first sheet
type Result struct {
	Rows    []models.RawRow
	Columns []string
}

// Ingestor reads spreadsheet files into raw row maps.
// It never retries; the next settled change is the retry path.
type Ingestor struct{}

// NewIngestor creates a spreadsheet ingestor
func NewIngestor() *Ingestor {
	return &Ingestor{}
}

// Parse reads the first sheet of the workbook at path.
// Cell values are raw: numbers keep their stored form so serial dates stay numeric.
func (in *Ingestor) Parse(path string) (*Result, error) {
	var (
		records [][]string
		err     error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		records, err = readWorkbook(path)
	case ".xls":
		records, err = readLegacyWorkbook(path)
	case ".csv":
		records, err = readCSV(path)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	result, err := buildRows(records)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return result, nil
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, ErrEmptyWorkbook
	}

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheetName, err)
	}
	return rows, nil
}

// readLegacyWorkbook reads the first sheet of a BIFF (.xls) workbook.
// Cells come back as the text the reader formats them to.
func readLegacyWorkbook(path string) (records [][]string, err error) {
	// the BIFF reader panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("malformed xls workbook: %v", r)
		}
	}()

	wb, closer, err := xls.OpenWithCloser(path, "utf-8")
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrEmptyWorkbook
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		record := make([]string, row.LastCol())
		for j := range record {
			record[j] = row.Col(j)
		}
		records = append(records, record)
	}
	return records, nil
}

func readCSV(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true
	reader.Comma = detectDelimiter(data)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return records, nil
}

// detectDelimiter picks ';' for locale exports that use a decimal comma
func detectDelimiter(data []byte) rune {
	firstLine := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		firstLine = data[:idx]
	}
	if bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		return ';'
	}
	return ','
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// buildRows uses the first non-blank record as the header row
func buildRows(records [][]string) (*Result, error) {
	start := 0
	for start < len(records) && isBlankRecord(records[start]) {
		start++
	}
	if start == len(records) {
		return nil, ErrEmptyWorkbook
	}

	header := records[start]
	headers := make([]string, len(header))
	seen := make(map[string]int, len(header))
	result := &Result{}

	for j, raw := range header {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		name := raw
		if n := seen[raw]; n > 0 {
			name = raw + "_" + strconv.Itoa(n)
		}
		seen[raw]++
		headers[j] = name
		result.Columns = append(result.Columns, name)
	}

	for _, record := range records[start+1:] {
		if isBlankRecord(record) {
			continue
		}
		row := make(models.RawRow, len(result.Columns))
		for j, cell := range record {
			if j >= len(headers) || headers[j] == "" || cell == "" {
				continue
			}
			row[headers[j]] = cell
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}
