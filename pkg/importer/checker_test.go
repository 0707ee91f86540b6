package importer

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func statusServer(t *testing.T, code int) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code == http.StatusMovedPermanently {
			w.Header().Set("Location", "https://example.com/new")
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestCheckAll_Statuses(t *testing.T) {
	sdb := tempSourceDB(t)
	adapters := []Adapter{
		&fakeAdapter{"ok-source", "drugbank", "200", statusServer(t, http.StatusOK), "CC0"},
		&fakeAdapter{"notfound-source", "drugbank", "404", statusServer(t, http.StatusNotFound), "CC0"},
		&fakeAdapter{"error-source", "interventions", "500", statusServer(t, http.StatusInternalServerError), "CC0"},
		// Redirects are reported as-is and count as reachable.
		&fakeAdapter{"redirect-source", "interventions", "301", statusServer(t, http.StatusMovedPermanently), "CC0"},
		&fakeAdapter{"dead-source", "interventions", "dead", "http://127.0.0.1:1", "CC0"},
		&fakeAdapter{"no-url", "drugbank", "unset", "", "CC0"},
	}
	if err := sdb.Seed(adapters); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	NewChecker(sdb, quietLogger(), time.Hour).CheckAll(context.Background())

	sources, err := sdb.ListSources()
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	byID := make(map[string]Source)
	for _, src := range sources {
		byID[src.AdapterID] = src
	}

	want := map[string]int{
		"ok-source":       200,
		"notfound-source": 404,
		"error-source":    500,
		"redirect-source": 301,
		"dead-source":     0,
	}
	for id, code := range want {
		src := byID[id]
		if src.LastStatus == nil || *src.LastStatus != code {
			t.Errorf("%s: status = %v, want %d", id, src.LastStatus, code)
		}
	}
	if dead := byID["dead-source"]; dead.LastError == nil || *dead.LastError == "" {
		t.Error("expected non-empty last_error for network error")
	}
	if unset := byID["no-url"]; unset.LastCheck != nil || unset.LastStatus != nil {
		t.Errorf("source without URL was checked: status=%v", unset.LastStatus)
	}
}

func TestCheckAll_EmptyDB(t *testing.T) {
	// Must not panic.
	NewChecker(tempSourceDB(t), quietLogger(), time.Hour).CheckAll(context.Background())
}

func TestChecker_StartStopsOnCancel(t *testing.T) {
	checker := NewChecker(tempSourceDB(t), quietLogger(), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Start(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestCheckAll_LocalSources(t *testing.T) {
	dir := t.TempDir()
	export := filepath.Join(dir, "drugbank.zip")
	writeZip(t, export, map[string]string{"all_drugbank_drugs.csv": "db_id,Name\n"})

	sdb := tempSourceDB(t)
	adapters := []Adapter{
		&fakeAdapter{"file-url", "drugbank", "file URL", "file://" + export, "CC0"},
		&fakeAdapter{"plain-path", "drugbank", "plain path", export, "CC0"},
		&fakeAdapter{"missing-file", "drugbank", "missing", filepath.Join(dir, "gone.zip"), "CC0"},
		&fakeAdapter{"directory", "drugbank", "dir", dir, "CC0"},
	}
	if err := sdb.Seed(adapters); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	NewChecker(sdb, quietLogger(), time.Hour).CheckAll(context.Background())

	sources, err := sdb.ListSources()
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	want := map[string]int{
		"file-url":     http.StatusOK,
		"plain-path":   http.StatusOK,
		"missing-file": http.StatusNotFound,
		"directory":    http.StatusUnprocessableEntity,
	}
	for _, src := range sources {
		code := want[src.AdapterID]
		if src.LastStatus == nil || *src.LastStatus != code {
			t.Errorf("%s: status = %v, want %d", src.AdapterID, src.LastStatus, code)
		}
		hasErr := src.LastError != nil && *src.LastError != ""
		if hasErr != (code != http.StatusOK) {
			t.Errorf("%s: last_error = %v", src.AdapterID, src.LastError)
		}
	}
}
