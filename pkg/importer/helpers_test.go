package importer

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/trialmap/pkg/dict"
)

func TestDownloadFile(t *testing.T) {
	content := "hello world"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(content))
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "test.txt")
	if err := downloadFile(context.Background(), ts.URL, dest); err != nil {
		t.Fatalf("downloadFile: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != content {
		t.Errorf("content = %q, want %q", string(data), content)
	}
}

func TestDownloadFile_Retry(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "retry.txt")
	if err := downloadFile(context.Background(), ts.URL, dest); err != nil {
		t.Fatalf("downloadFile with retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDownloadFile_AllFail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "fail.txt")
	err := downloadFile(context.Background(), ts.URL, dest)
	if err == nil {
		t.Error("expected error after all retries exhausted")
	}
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	m := &dict.Manifest{
		ID:      "drugbank",
		Version: "2026-02-01",
		Source:  "DrugBank",
		License: "CC BY-NC 4.0",
		Tables:  dict.TableSpec{Drugs: "all_drugbank_drugs.csv", Synonyms: "drug_synonym.csv"},
	}
	if err := writeManifest(dir, m); err != nil {
		t.Fatalf("writeManifest: %v", err)
	}

	loaded, err := dict.LoadManifest(filepath.Join(dir, "manifest.yaml"))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if loaded.ID != "drugbank" || loaded.Tables.Synonyms != "drug_synonym.csv" {
		t.Errorf("manifest = %+v", loaded)
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func TestFetch_LocalZip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "export.zip")
	writeZip(t, src, map[string]string{"nested/a.csv": "x", "b.txt": "y"})

	dl := t.TempDir()
	files, err := fetch(context.Background(), "file://"+src, dl)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(files) != 2 || findFile(files, "A.CSV") == "" {
		t.Errorf("files = %v, want a.csv and b.txt", files)
	}
}

func TestFetch_HTTPPlainFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nct_id,intervention,intervention_type\n"))
	}))
	defer ts.Close()

	files, err := fetch(context.Background(), ts.URL+"/data/interventions.csv", t.TempDir())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "interventions.csv" {
		t.Errorf("files = %v", files)
	}
}

func TestFetch_NoURL(t *testing.T) {
	if _, err := fetch(context.Background(), "", t.TempDir()); err == nil {
		t.Error("expected error without URL")
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in    string
		path  string
		local bool
	}{
		{"https://example.com/a.zip", "", false},
		{"http://example.com/a.csv", "", false},
		{"file:///srv/exports/drugbank.zip", "/srv/exports/drugbank.zip", true},
		{"/srv/exports/drugbank.zip", "/srv/exports/drugbank.zip", true},
		{"exports/interventions.csv", "exports/interventions.csv", true},
	}
	for _, tt := range tests {
		got, local := localPath(tt.in)
		if got != tt.path || local != tt.local {
			t.Errorf("localPath(%q) = %q, %v; want %q, %v", tt.in, got, local, tt.path, tt.local)
		}
	}
}
