package dict

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryLoad(t *testing.T) {
	reg := NewRegistry(writeTestBundle(t, testManifest))
	if reg.Current() != nil {
		t.Fatal("Current should be nil before Load")
	}
	if _, ok := reg.Info(); ok {
		t.Fatal("Info should report not loaded")
	}

	if err := reg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	info, ok := reg.Info()
	if !ok {
		t.Fatal("Info should report loaded")
	}
	if info.ID != "test-bundle" || info.Drugs != 3 || info.Synonyms != 3 {
		t.Errorf("info = %+v", info)
	}
}

func TestRegistryReload(t *testing.T) {
	dir := writeTestBundle(t, testManifest)
	reg := NewRegistry(dir)
	if err := reg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := reg.Current()

	os.WriteFile(filepath.Join(dir, "drugs.csv"), []byte("db_id,Name,organism\nDB1,Morphine,Humans\n"), 0o644)
	if err := reg.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	after := reg.Current()
	if len(after.Drugs) != 1 {
		t.Errorf("drugs after reload = %d, want 1", len(after.Drugs))
	}
	// The previous snapshot is untouched.
	if len(before.Drugs) != 3 {
		t.Errorf("old snapshot mutated: %d drugs", len(before.Drugs))
	}
}

func TestRegistryLoad_Error(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "missing"))
	if err := reg.Load(); err == nil {
		t.Error("expected error for missing bundle")
	}
}
