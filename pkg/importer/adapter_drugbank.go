package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/trialmap/pkg/dict"
)

func init() {
	Register(&drugbankBundleAdapter{})
}

// Table files expected in a DrugBank export, by role.
const (
	drugbankDrugsFile       = "all_drugbank_drugs.csv"
	drugbankSynonymsFile    = "drug_synonym.csv"
	drugbankProductsFile    = "products.csv"
	drugbankIdentifiersFile = "drugs_external_identifiers.csv"
)

type drugbankBundleAdapter struct{}

func (a *drugbankBundleAdapter) ID() string     { return "drugbank-bundle" }
func (a *drugbankBundleAdapter) Target() string { return "drugbank" }
func (a *drugbankBundleAdapter) Description() string {
	return "DrugBank drug, synonym, product and external identifier tables"
}

// DrugBank downloads need an account, so there is no public default.
func (a *drugbankBundleAdapter) DefaultURL() string { return "" }
func (a *drugbankBundleAdapter) License() string    { return "CC BY-NC 4.0" }

func (a *drugbankBundleAdapter) Import(ctx context.Context, sourceURL, outputDir string) error {
	dlDir := filepath.Join(outputDir, "_download")
	if err := ensureDir(dlDir); err != nil {
		return err
	}
	defer os.RemoveAll(dlDir)

	slog.Info("fetching reference tables", "adapter", a.ID(), "url", sourceURL)
	files, err := fetch(ctx, sourceURL, dlDir)
	if err != nil {
		return err
	}

	bundleDir := filepath.Join(outputDir, a.Target())
	if err := ensureDir(bundleDir); err != nil {
		return err
	}

	m := &dict.Manifest{
		ID:        a.Target(),
		Version:   time.Now().UTC().Format("2006-01-02"),
		Source:    "DrugBank",
		SourceURL: sourceURL,
		License:   a.License(),
	}
	tables := []struct {
		name     string
		required bool
		set      func(string)
	}{
		{drugbankDrugsFile, true, func(s string) { m.Tables.Drugs = s }},
		{drugbankSynonymsFile, false, func(s string) { m.Tables.Synonyms = s }},
		{drugbankProductsFile, false, func(s string) { m.Tables.Products = s }},
		{drugbankIdentifiersFile, false, func(s string) { m.Tables.Identifiers = s }},
	}
	for _, tbl := range tables {
		src := findFile(files, tbl.name)
		if src == "" {
			if tbl.required {
				return fmt.Errorf("%s not found in source", tbl.name)
			}
			slog.Warn("optional table missing", "adapter", a.ID(), "file", tbl.name)
			continue
		}
		if err := copyFile(src, filepath.Join(bundleDir, tbl.name)); err != nil {
			return err
		}
		tbl.set(tbl.name)
	}

	// A stale cache would shadow the new tables.
	os.Remove(filepath.Join(bundleDir, dict.SnapshotFile))
	if err := writeManifest(bundleDir, m); err != nil {
		return err
	}

	snap, err := dict.LoadSnapshot(bundleDir)
	if err != nil {
		return fmt.Errorf("validate bundle: %w", err)
	}
	if len(snap.Drugs) == 0 {
		return fmt.Errorf("validate bundle: no drugs loaded")
	}
	if err := dict.SaveGob(snap, filepath.Join(bundleDir, dict.SnapshotFile)); err != nil {
		return fmt.Errorf("save gob: %w", err)
	}
	slog.Info("reference bundle imported",
		"adapter", a.ID(),
		"dir", bundleDir,
		"drugs", len(snap.Drugs),
		"synonyms", len(snap.Synonyms),
		"products", len(snap.Products),
		"identifiers", len(snap.Identifiers),
	)
	return nil
}
