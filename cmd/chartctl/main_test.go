package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CHART_CONFIG", "")
	t.Setenv("WORKER_URL", "none")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("PLOT_DIR", filepath.Join(dir, "plots"))
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "reports.db"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRoot_Commands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"load", "compute", "serve", "report"})
}

func TestCompute_FromStdin(t *testing.T) {
	isolate(t)
	out, err := run(t, "[1,2,3,4]", "compute", "sma", "--period", "3")
	require.NoError(t, err)
	assert.JSONEq(t, `[null,null,2,3]`, out)
}

func TestCompute_FromFileInProcessWorker(t *testing.T) {
	dir := isolate(t)
	t.Setenv("WORKER_URL", "")
	path := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"close":[1,2,3,4,5,6],"volume":[5,5,5,5,5,5]}`), 0o644))

	out, err := run(t, "", "compute", "OBV", "-f", path)
	require.NoError(t, err)
	assert.JSONEq(t, `[5,10,15,20,25,30]`, out)
}

func TestCompute_InvalidInput(t *testing.T) {
	isolate(t)
	_, err := run(t, "[1,2]", "compute", "rsi")
	assert.Error(t, err)

	_, err = run(t, "not json", "compute", "sma")
	assert.Error(t, err)
}

func TestReport_ListsJournaledTeardowns(t *testing.T) {
	isolate(t)
	_, err := run(t, "[1,2,3]", "compute", "sma", "--period", "2")
	require.NoError(t, err)

	out, err := run(t, "", "report")
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out), "reports")
	assert.Contains(t, out, "initial", "compute-only run never loaded a chart")

	_, err = run(t, "", "report", "--id", "missing")
	assert.Error(t, err)
}

func TestReadInput(t *testing.T) {
	raw, err := readInput("-", strings.NewReader("[1]"))
	require.NoError(t, err)
	assert.Equal(t, "[1]", string(raw))

	_, err = readInput(filepath.Join(t.TempDir(), "nope.json"), nil)
	assert.Error(t, err)
}
