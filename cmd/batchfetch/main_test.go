package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/proxy-batch-fetcher/internal/testutil"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/store"
)

// writeJob writes a proxy list pointing at mock and a config for a job of
// n restaurant numbers stored below dir.
func writeJob(t *testing.T, mock *testutil.MockProxy, dir string, n int) string {
	t.Helper()

	host, port := mock.HostPort()
	proxies := filepath.Join(dir, "proxies.txt")
	require.NoError(t, os.WriteFile(proxies, []byte(fmt.Sprintf("# test\n%s:%d:user:pass\n", host, port)), 0o600))

	cfg := fmt.Sprintf(`
proxies:
  file: %s
  echo_url: http://echo.invalid/ip
  verify_gap: 0s
engine:
  retry_budget: 2
  bucket_capacity: 100
  refill_rate: 100
  backoff: 1ms
job:
  vendor: pizza
  range_field: number
  range_from: 0
  range_to: %d
  request:
    method: GET
    url: http://upstream.invalid/stores/{{.number}}
    params:
      source: batchfetch
store:
  backend: fs
  dir: %s
`, proxies, n, filepath.Join(dir, "data"))

	path := filepath.Join(dir, "batchfetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	mock := testutil.NewMockProxy()
	defer mock.Close()
	for i := 0; i < 3; i++ {
		mock.SetFlaky(fmt.Sprintf("/stores/%d", i), 1, testutil.NewJSONResponse(fmt.Sprintf(`{"store":%d}`, i)))
	}

	dir := t.TempDir()
	cfgPath := writeJob(t, mock, dir, 3)

	out, err := execute(t, "--config", cfgPath, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "3 resolved, 0 unresolved in 2 passes")

	rawDir := filepath.Join(dir, "data", "raw", "pizza")
	assert.DirExists(t, filepath.Join(dir, "data", "clean", "pizza"))

	entries, err := os.ReadDir(rawDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), "_pizza.json"))

	data, err := os.ReadFile(filepath.Join(rawDir, entries[0].Name()))
	require.NoError(t, err)

	var doc store.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.False(t, doc.ScraperIssues)
	require.Len(t, doc.Records, 3)
	for i, rec := range doc.Records {
		assert.Equal(t, i, rec.Index)
		assert.Equal(t, fmt.Sprint(i), rec.Input["number"])
		assert.JSONEq(t, fmt.Sprintf(`{"store":%d}`, i), string(rec.Data))
	}

	assert.NotEmpty(t, mock.GetLastProxyAuth())
}

func TestRunCommand_UnresolvedAndPrint(t *testing.T) {
	mock := testutil.NewMockProxy()
	defer mock.Close()
	mock.SetResponse("/stores/0", testutil.NewJSONResponse(`{"store":0}`))
	mock.SetResponse("/stores/1", testutil.NewMalformedResponse())

	dir := t.TempDir()
	cfgPath := writeJob(t, mock, dir, 2)

	out, err := execute(t, "--config", cfgPath, "run", "--print", "--vendor", "pasta")
	require.NoError(t, err)

	var doc store.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "pasta", doc.Vendor)
	assert.True(t, doc.ScraperIssues)
	assert.Equal(t, "-1", string(doc.Records[1].Data))
	assert.Equal(t, 3, doc.Passes)

	assert.DirExists(t, filepath.Join(dir, "data", "raw", "pasta"))
}

func TestRunCommand_InvalidJob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batchfetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: none\n"), 0o600))

	_, err := execute(t, "--config", path, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job.vendor")
}

func TestVerifyCommand(t *testing.T) {
	mock := testutil.NewMockProxy()
	defer mock.Close()
	mock.SetEcho("/ip")

	dir := t.TempDir()
	cfgPath := writeJob(t, mock, dir, 1)

	out, err := execute(t, "--config", cfgPath, "verify", "--sample", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "127.0.0.1")
	assert.Contains(t, out, "1/1 proxies ok")
}

func TestRootCommand_BadLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "verify")
	assert.Error(t, err)
}
