// Package normalizer maps raw spreadsheet rows onto ProductionRecord.
//
// Header keys are cleaned before lookup, dates go through an ordered list of
// strategies and numeric cells are coerced with a zero fallback. Columns
// that are not configured are dropped here and never reach the aggregates.
package normalizer

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"production_data_import/config"
	"production_data_import/models"
)

// Row is a normalized record plus the operator names seen on that row
type Row struct {
	Record    models.ProductionRecord
	Operators []string
}

// Normalizer converts raw rows for one column layout
type Normalizer struct {
	columns config.ColumnsConfig
	dates   DateResolver
}

// New creates a normalizer for the configured columns and date location
func New(columns config.ColumnsConfig, loc *time.Location) *Normalizer {
	cleaned := config.ColumnsConfig{
		OrderNumber:         CleanKey(columns.OrderNumber),
		StartTime:           CleanKey(columns.StartTime),
		EndTime:             CleanKey(columns.EndTime),
		Duration:            CleanKey(columns.Duration),
		ProducedCount:       CleanKey(columns.ProducedCount),
		ScrapCount:          CleanKey(columns.ScrapCount),
		MachinePerformance:  CleanKey(columns.MachinePerformance),
		OperatorPerformance: CleanKey(columns.OperatorPerformance),
	}
	for _, op := range columns.Operators {
		cleaned.Operators = append(cleaned.Operators, CleanKey(op))
	}
	return &Normalizer{columns: cleaned, dates: DefaultDateResolver(loc)}
}

// CleanKey applies NFC, trims and collapses internal whitespace
func CleanKey(key string) string {
	return strings.Join(strings.Fields(norm.NFC.String(key)), " ")
}

// CleanRow rekeys a raw row by cleaned header text.
// When two headers clean to the same key the later one in sorted order wins.
func CleanRow(raw models.RawRow) models.RawRow {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(models.RawRow, len(raw))
	for _, k := range keys {
		out[CleanKey(k)] = raw[k]
	}
	return out
}

// Normalize converts every raw row. Record ids are 1-based row positions.
func (n *Normalizer) Normalize(rows []models.RawRow, machine models.Machine) []Row {
	out := make([]Row, 0, len(rows))
	for i, raw := range rows {
		out = append(out, n.normalizeRow(i+1, CleanRow(raw), machine))
	}
	return out
}

func (n *Normalizer) normalizeRow(id int, row models.RawRow, machine models.Machine) Row {
	c := n.columns
	record := models.ProductionRecord{
		ID:                  id,
		OrderNumber:         textOrPlaceholder(row[c.OrderNumber]),
		StartTime:           n.dates.Resolve(row[c.StartTime]),
		EndTime:             n.dates.Resolve(row[c.EndTime]),
		DurationRaw:         textOrPlaceholder(row[c.Duration]),
		ProducedCount:       ParseCount(row[c.ProducedCount]),
		ScrapCount:          ParseCount(row[c.ScrapCount]),
		MachinePerformance:  ParseCount(row[c.MachinePerformance]),
		OperatorPerformance: ParseCount(row[c.OperatorPerformance]),
		MachineID:           machine.ID,
		MachineName:         machine.Name,
	}

	var operators []string
	for _, col := range c.Operators {
		if name := strings.TrimSpace(row[col]); name != "" {
			operators = append(operators, name)
		}
	}

	return Row{Record: record, Operators: operators}
}

// DetailRecords drops blank rows and returns the records in row order
func DetailRecords(rows []Row) []models.ProductionRecord {
	records := make([]models.ProductionRecord, 0, len(rows))
	for _, row := range rows {
		if row.Record.IsBlank() {
			continue
		}
		records = append(records, row.Record)
	}
	return records
}

func textOrPlaceholder(raw string) string {
	if s := strings.TrimSpace(raw); s != "" {
		return s
	}
	return models.Placeholder
}

// ParseCount reads the leading integer of a cell ("12.7" → 12, "87%" → 87).
// Absent, malformed, negative or overflowing values become 0.
func ParseCount(raw string) uint {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 || negative {
		return 0
	}

	n, err := strconv.ParseUint(s[:end], 10, 0)
	if err != nil {
		return 0
	}
	return uint(n)
}
