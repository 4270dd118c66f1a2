package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"production_data_import/models"
)

func writeWorkbook(t *testing.T, path string, rows [][]interface{}) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}

	// a second sheet that must never be read
	_, err := f.NewSheet("Summary")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Summary", "A1", "IGNORED"))

	require.NoError(t, f.SaveAs(path))
}

func TestParse_WorkbookFirstSheetRawValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{" SIPARIS  NUMARASI", "IS BASLATMA SAATI", "BASILAN PARCA ADETI", "", "OPERATOR 1"},
		{"SP-1001", "14.12.2021 11:50", 120, "stray", "Ayse"},
		{nil, nil, nil, nil, nil},
		{"SP-1002", 44450.5, 0, nil, nil},
	})

	result, err := NewIngestor().Parse(path)
	require.NoError(t, err)

	require.Equal(t, []string{" SIPARIS  NUMARASI", "IS BASLATMA SAATI", "BASILAN PARCA ADETI", "OPERATOR 1"}, result.Columns)
	require.Len(t, result.Rows, 2)

	require.Equal(t, models.RawRow{
		" SIPARIS  NUMARASI":  "SP-1001",
		"IS BASLATMA SAATI":   "14.12.2021 11:50",
		"BASILAN PARCA ADETI": "120",
		"OPERATOR 1":          "Ayse",
	}, result.Rows[0])

	require.Equal(t, "44450.5", result.Rows[1]["IS BASLATMA SAATI"])
	require.Equal(t, "0", result.Rows[1]["BASILAN PARCA ADETI"])
	_, hasOperator := result.Rows[1]["OPERATOR 1"]
	require.False(t, hasOperator)
}

func TestParse_HeaderOnlyWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")
	writeWorkbook(t, path, [][]interface{}{{"SIPARIS NUMARASI", "HURDA ADETI"}})

	result, err := NewIngestor().Parse(path)
	require.NoError(t, err)
	require.Empty(t, result.Rows)
	require.Equal(t, []string{"SIPARIS NUMARASI", "HURDA ADETI"}, result.Columns)
}

func TestParse_DuplicateHeadersAreSuffixed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"NOT", "NOT"},
		{"first", "second"},
	})

	result, err := NewIngestor().Parse(path)
	require.NoError(t, err)
	require.Equal(t, []string{"NOT", "NOT_1"}, result.Columns)
	require.Equal(t, models.RawRow{"NOT": "first", "NOT_1": "second"}, result.Rows[0])
}

func TestParse_CSVWithSemicolonAndBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	content := "\xef\xbb\xbfSIPARIS NUMARASI;BASILAN PARCA ADETI;MAKINA PERFORMANSI\n" +
		"SP-1;15;87,5\n" +
		";;\n" +
		"SP-2;0;\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	result, err := NewIngestor().Parse(path)
	require.NoError(t, err)
	require.Equal(t, []string{"SIPARIS NUMARASI", "BASILAN PARCA ADETI", "MAKINA PERFORMANSI"}, result.Columns)
	require.Len(t, result.Rows, 2)
	require.Equal(t, "87,5", result.Rows[0]["MAKINA PERFORMANSI"])
	require.Equal(t, models.RawRow{"SIPARIS NUMARASI": "SP-2", "BASILAN PARCA ADETI": "0"}, result.Rows[1])
}

func TestParse_Failures(t *testing.T) {
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "corrupt.xlsx")
	require.NoError(t, os.WriteFile(corrupt, []byte("this is not a zip archive"), 0o644))

	empty := filepath.Join(dir, "empty.xlsx")
	writeWorkbook(t, empty, nil)

	truncated := filepath.Join(dir, "old.xls")
	require.NoError(t, os.WriteFile(truncated, []byte{0xd0, 0xcf, 0x11, 0xe0}, 0o644))

	openDoc := filepath.Join(dir, "sheet.ods")
	require.NoError(t, os.WriteFile(openDoc, []byte("PK"), 0o644))

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing file", filepath.Join(dir, "missing.xlsx"), os.ErrNotExist},
		{"corrupt workbook", corrupt, nil},
		{"empty workbook", empty, ErrEmptyWorkbook},
		{"truncated xls", truncated, nil},
		{"missing xls", filepath.Join(dir, "missing.xls"), nil},
		{"unknown format", openDoc, ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewIngestor().Parse(tt.path)
			require.Nil(t, result)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			require.Equal(t, tt.path, parseErr.Path)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestParse_XLSIsRoutedToLegacyReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "VARDIYA.XLS")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not a BIFF stream"), 0o644))

	_, err := NewIngestor().Parse(path)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnsupportedFormat)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, path, parseErr.Path)
}
