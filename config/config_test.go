package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHART_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "1y", cfg.Period)
	assert.Equal(t, 1000, cfg.LargeThreshold)
	assert.Equal(t, 5*time.Second, cfg.TaskTimeout)
	assert.Empty(t, cfg.WorkerURL)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "chart.yaml", `
chart_api_url: http://charts.internal:9000
period: 6mo
large_threshold: 2500
task_timeout: 2s
summary_ttl: 1h
refresh_symbols: aapl, msft
`)
	t.Setenv("CHART_CONFIG", path)
	t.Setenv("CHART_PERIOD", "3mo")
	t.Setenv("WORKER_TASK_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://charts.internal:9000", cfg.ChartAPIURL)
	assert.Equal(t, 2500, cfg.LargeThreshold)
	assert.Equal(t, time.Hour, cfg.SummaryTTL)
	assert.Equal(t, "3mo", cfg.Period, "env overrides file")
	assert.Equal(t, 750*time.Millisecond, cfg.TaskTimeout)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Symbols())
	assert.Equal(t, ":8080", cfg.APIAddr, "unset keys keep defaults")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PLOT_DIR=/tmp/plots-from-dotenv\n"), 0o644))
	t.Setenv("CHART_CONFIG", "")
	t.Setenv("PLOT_DIR", "")
	os.Unsetenv("PLOT_DIR")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/plots-from-dotenv", cfg.PlotDir)
}

func TestLoad_BadFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHART_CONFIG", writeFile(t, "bad.yaml", "period: [unclosed"))
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("CHART_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_InvalidEnvKeepsFallback(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHART_CONFIG", "")
	t.Setenv("REPORT_KEEP", "lots")
	t.Setenv("BREAKER_RESET", "-1s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.ReportKeep)
	assert.Equal(t, 30*time.Second, cfg.BreakerReset)
}

func TestSymbols_DedupAndTrim(t *testing.T) {
	c := &Config{RefreshSymbols: " aapl,,MSFT, aapl ,"}
	assert.Equal(t, []string{"AAPL", "MSFT"}, c.Symbols())
	assert.Empty(t, (&Config{}).Symbols())
}
