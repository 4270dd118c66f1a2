package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"production_data_import/config"
)

func TestInit_WritesJSONToFileAndRespectsLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.LogFile = filepath.Join(t.TempDir(), "import.log")
	cfg.Logging.LogToConsole = false
	cfg.Logging.LogLevel = WARN

	require.NoError(t, Init(cfg))
	t.Cleanup(func() { SetLevel(INFO) })

	Printf("hidden %d", 1)
	Warnf("machine %s failed to parse\n", "machine-2")
	require.False(t, Enabled(INFO))
	require.True(t, Enabled(ERROR))
	require.Equal(t, cfg.Logging.LogFile, GetLogFileName())
	require.NoError(t, Close())

	data, err := os.ReadFile(cfg.Logging.LogFile)
	require.NoError(t, err)
	content := string(data)

	require.Contains(t, content, `"msg":"machine machine-2 failed to parse"`)
	require.NotContains(t, content, "hidden 1")
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		require.True(t, strings.HasPrefix(line, "{"), "expected JSON line, got %q", line)
	}
}

func TestClose_WithoutInitIsNoop(t *testing.T) {
	require.NoError(t, Close())
	require.Equal(t, "result.log", GetLogFileName())
}
