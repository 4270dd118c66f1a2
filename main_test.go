package main

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"production_data_import/config"
	"production_data_import/normalizer"
	"production_data_import/scanner"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "imports")

	content := fmt.Sprintf(`
import:
  root_dir: %q
  location: UTC
  machines: ["Makina 1", "Makina 2"]
database:
  driver: sqlite
  sqlite:
    path: %q
logging:
  log_file: %q
  log_to_console: false
`, root, filepath.Join(dir, "history.db"), filepath.Join(dir, "import.log"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, root
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func TestGenerateSamples_WorkbooksParseBack(t *testing.T) {
	cfg := config.Default()
	cfg.Import.Machines = []string{"Makina 1", " ", "Press-2"}
	dir := t.TempDir()

	require.NoError(t, generateSamples(cfg, dir, 25, 42))

	for _, key := range []string{"machine-1", "machine-2"} {
		result, err := scanner.NewIngestor().Parse(filepath.Join(dir, key, cfg.Import.FileName))
		require.NoError(t, err)
		require.Len(t, result.Rows, 25)
		require.Contains(t, result.Columns, cfg.Columns.ProducedCount)
		require.Contains(t, result.Columns, cfg.Columns.Operators[0])
	}
	require.NoDirExists(t, filepath.Join(dir, "machine-3"))
}

func TestSampleRows_DatesResolve(t *testing.T) {
	cols := config.Default().Columns
	rng := rand.New(rand.NewPCG(1, 2))
	start := time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)

	rows := sampleRows(cols, 6, rng, start)
	require.Len(t, rows, 7)
	require.Len(t, rows[0], 8+len(cols.Operators))

	resolver := normalizer.DefaultDateResolver(time.UTC)
	first := resolver.Resolve(fmt.Sprint(rows[1][1]))
	require.NotNil(t, first)
	require.True(t, start.Equal(*first))

	serial := resolver.Resolve(fmt.Sprint(rows[2][1]))
	require.NotNil(t, serial, "serial form %v", rows[2][1])
	require.True(t, serial.After(start))
}

func TestCommands_GenerateScanHistory(t *testing.T) {
	cfgPath, root := writeTestConfig(t)

	execute(t, "--config", cfgPath, "generate", root, "--rows", "12", "--seed", "7")
	require.FileExists(t, filepath.Join(root, "machine-2", "data.xlsx"))

	out := execute(t, "--config", cfgPath, "scan", "--workers", "1")
	require.Contains(t, out, "Makina 1")
	require.Contains(t, out, "Makina 2")
	require.Contains(t, out, "All machines")

	out = execute(t, "--config", cfgPath, "machines")
	require.Contains(t, out, "machine-2")
	require.Equal(t, 2, strings.Count(out, "yes"))

	out = execute(t, "--config", cfgPath, "history", "--limit", "5")
	require.Contains(t, out, "machine-1")
	require.Contains(t, out, "auto")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Machine", "Rows"}, [][]string{{"machine-1", "12"}, {"machine-2"}}, []columnAlignment{alignLeft, alignRight})
	require.Contains(t, out, "machine-1")
	require.Contains(t, out, "machine-2")
	require.Empty(t, renderTable(nil, nil, nil))
}
