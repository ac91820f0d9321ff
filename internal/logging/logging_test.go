package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "info", Format: "json", Output: &buf})

	l.Debug("hidden")
	l.Info("chunk_committed", "chunk", 3, "succeeded", 100)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "chunk_committed", rec["msg"])
	assert.EqualValues(t, 3, rec["chunk"])
	assert.EqualValues(t, 100, rec["succeeded"])
}

func TestSetup_InstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := Setup(Options{Level: "debug", Output: &buf})
	assert.Same(t, l, L())
	assert.Same(t, l, OrDefault(nil))
	assert.Same(t, l, slog.Default())

	slog.Info("via_slog_default")
	assert.Contains(t, buf.String(), "via_slog_default")

	other := Discard()
	assert.Same(t, other, OrDefault(other))
}

func TestAccessMiddleware(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "debug", Format: "json", Output: &buf})

	h := AccessMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/monitor/status", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "http_access", entry["msg"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/monitor/status", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, len("short and stout"), entry["bytes"])
}
