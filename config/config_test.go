package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "imports", cfg.Import.RootDir)
	require.Equal(t, "data.xlsx", cfg.Import.FileName)
	require.Equal(t, 2*time.Second, cfg.StabilityThreshold())
	require.Equal(t, []string{"Makina 1"}, cfg.Import.Machines)
	require.Equal(t, WeightingMachine, cfg.Import.PerformanceWeighting)
	require.Equal(t, "SIPARIS NUMARASI", cfg.Columns.OrderNumber)
	require.Len(t, cfg.Columns.Operators, 6)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "info", cfg.Logging.LogLevel)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestParse_OverridesAndKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
import:
  root_dir: /srv/imports
  stability_threshold_ms: 500
  machines: ["Press-1", "Press-2"]
  performance_weighting: row
columns:
  order_number: "ORDER NO"
database:
  enabled: false
logging:
  log_level: debug
`))
	require.NoError(t, err)

	require.Equal(t, "/srv/imports", cfg.Import.RootDir)
	require.Equal(t, 500*time.Millisecond, cfg.StabilityThreshold())
	require.Equal(t, []string{"Press-1", "Press-2"}, cfg.Import.Machines)
	require.Equal(t, WeightingRow, cfg.Import.PerformanceWeighting)
	require.Equal(t, "ORDER NO", cfg.Columns.OrderNumber)
	require.Equal(t, "HURDA ADETI", cfg.Columns.ScrapCount)
	require.False(t, cfg.Database.Enabled)
	require.Equal(t, "debug", cfg.Logging.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad weighting", "import:\n  performance_weighting: median\n"},
		{"negative threshold", "import:\n  stability_threshold_ms: -1\n"},
		{"blank machines", "import:\n  machines: [\"  \"]\n"},
		{"short operator list", "columns:\n  operators: [\"OP 1\"]\n"},
		{"unknown driver", "database:\n  enabled: true\n  driver: oracle\n"},
		{"mysql without host", "database:\n  enabled: true\n  driver: mysql\n"},
		{"bad location", "import:\n  location: Mars/Olympus\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestGetDSN(t *testing.T) {
	cfg := Default()
	require.Equal(t, "file::memory:?cache=shared", cfg.GetDSN())

	cfg.Database.Driver = "postgres"
	cfg.Database.PostgreSQL = PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "prod", SSLMode: "disable", TimeZone: "UTC"}
	require.Equal(t, "host=db port=5432 user=u password=p dbname=prod sslmode=disable TimeZone=UTC", cfg.GetDSN())
}
