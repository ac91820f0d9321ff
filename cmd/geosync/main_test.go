package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/geosync/internal/progress"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func isolateEnv(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("GEOSYNC_STATUS_FILE", filepath.Join(dir, "status", "current_status.json"))
	t.Setenv("GEOSYNC_DB_PATH", filepath.Join(dir, "geosync.db"))
	t.Setenv("GEOSYNC_BACKUP_DIR", filepath.Join(dir, "backups"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "geosync")
	assert.Contains(t, out, "SQLite Driver")
}

func TestStatus_NoRun(t *testing.T) {
	dir := isolateEnv(t)

	out, err := runCLI(t, "status", "--env-file", filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	var st progress.RunState
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, progress.StatusNoRun, st.Status)
}

func TestInvalidConfig(t *testing.T) {
	isolateEnv(t)
	_, err := runCLI(t, "status", "--store", "mongodb")
	assert.Error(t, err)
}

func TestIngestThenStatus(t *testing.T) {
	dir := isolateEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","id":1,"geometry":{"type":"Point","coordinates":[76.5,14.2]},"properties":{"district":"Chitradurga"}},
			{"type":"Feature","id":2,"geometry":{"type":"Point","coordinates":[77.6,12.9]},"properties":{"district":"Bangalore"}}
		]}`))
	}))
	defer srv.Close()

	envFile := filepath.Join(dir, "missing.env")
	out, err := runCLI(t, "ingest", "--url", srv.URL, "--env-file", envFile)
	require.NoError(t, err)

	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, float64(2), summary["successful_features"])
	assert.Equal(t, false, summary["partial"])

	out, err = runCLI(t, "status", "--env-file", envFile)
	require.NoError(t, err)
	var st progress.RunState
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, progress.StatusCompleted, st.Status)
	assert.Equal(t, 2, st.Succeeded)

	out, err = runCLI(t, "sync", "--url", srv.URL, "--env-file", envFile)
	require.NoError(t, err)
	assert.Contains(t, out, `"synced"`)

	out, err = runCLI(t, "sync", "--url", srv.URL, "--env-file", envFile)
	require.NoError(t, err)
	assert.Contains(t, out, `"up_to_date"`)
}

func TestIngest_FetchFailureExitsNonZero(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv("GEOSYNC_FETCH_ATTEMPTS", "1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := runCLI(t, "ingest", "--url", srv.URL, "--env-file", filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}
