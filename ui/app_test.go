package ui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	for _, id := range []string{"20260101-000000-aaaa", "20260102-000000-bbbb"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, id), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, id, "report.html"), []byte("<h1>"+id+"</h1>"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, id, "report.md"), []byte("# "+id), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))

	app, err := NewApp(Config{Dir: dir, Port: "0"}, nil)
	require.NoError(t, err)
	return app, dir
}

func get(t *testing.T, app *App, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestIndexListsRunsNewestFirst(t *testing.T) {
	app, _ := newTestApp(t)

	rec := get(t, app, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `href="/runs/20260102-000000-bbbb/"`)
	assert.Contains(t, body, `href="/runs/20260101-000000-aaaa/report.md"`)
	assert.Less(t, strings.Index(body, "bbbb"), strings.Index(body, "aaaa"))
}

func TestIndexWithoutReports(t *testing.T) {
	app, err := NewApp(Config{Dir: filepath.Join(t.TempDir(), "missing")}, nil)
	require.NoError(t, err)

	rec := get(t, app, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No reports")
}

func TestAPIRuns(t *testing.T) {
	app, _ := newTestApp(t)

	rec := get(t, app, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var runs []RunListing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 3)
	assert.Equal(t, "empty", runs[0].ID)
	assert.Equal(t, "20260102-000000-bbbb", runs[1].ID)
	assert.ElementsMatch(t, []string{"report.html", "report.md"}, runs[1].Files)
}

func TestRunRedirectsToReport(t *testing.T) {
	app, _ := newTestApp(t)

	rec := get(t, app, "/runs/20260101-000000-aaaa")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)

	rec = get(t, app, "/runs/20260101-000000-aaaa/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/runs/20260101-000000-aaaa/report.html", rec.Header().Get("Location"))

	rec = get(t, app, "/runs/empty/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestServeRunFile(t *testing.T) {
	app, _ := newTestApp(t)

	rec := get(t, app, "/runs/20260101-000000-aaaa/report.md")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# 20260101-000000-aaaa", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, app, "/runs/nope/report.md").Code)
	assert.Equal(t, http.StatusNotFound, get(t, app, "/runs/20260101-000000-aaaa/missing.xlsx").Code)
}

func TestRunDirRejectsTraversal(t *testing.T) {
	app, _ := newTestApp(t)
	for _, id := range []string{"", " ", ".", "..", "a/b", `a\b`, "../outside"} {
		_, ok := app.runDir(id)
		assert.False(t, ok, id)
	}
	dir, ok := app.runDir("20260101-000000-aaaa")
	assert.True(t, ok)
	assert.Equal(t, "20260101-000000-aaaa", filepath.Base(dir))
}

func TestHealthz(t *testing.T) {
	app, _ := newTestApp(t)
	rec := get(t, app, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStartStopsOnCancel(t *testing.T) {
	app, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Start(ctx, "0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
