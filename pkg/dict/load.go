package dict

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// SnapshotFile is the gob cache written next to manifest.yaml.
const SnapshotFile = "snapshot.gob"

// LoadSnapshot reads a bundle directory: manifest.yaml plus either
// snapshot.gob or the CSV tables the manifest names. A snapshot.gob built
// under a different format, table or filter section is ignored and the
// tables are rebuilt from CSV.
func LoadSnapshot(dir string) (*Snapshot, error) {
	manifest, err := LoadManifest(filepath.Join(dir, "manifest.yaml"))
	if err != nil {
		return nil, err
	}

	// Gob takes priority over CSV.
	gobPath := filepath.Join(dir, SnapshotFile)
	if _, err := os.Stat(gobPath); err == nil {
		s, built, err := loadGob(gobPath)
		if err != nil {
			return nil, fmt.Errorf("bundle %s: %w", manifest.ID, err)
		}
		if built == builtFrom(manifest) {
			s.Manifest = manifest
			return s, nil
		}
		slog.Warn("snapshot cache stale, rebuilding from tables",
			"bundle", manifest.ID,
			"path", gobPath,
		)
	}

	t, err := loadTables(dir, manifest)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", manifest.ID, err)
	}
	s := Build(manifest, t)
	slog.Info("reference bundle loaded",
		"bundle", manifest.ID,
		"drugs", len(s.Drugs),
		"synonyms", len(s.Synonyms),
		"products", len(s.Products),
		"identifiers", len(s.Identifiers),
		"short_synonyms", s.Stats.ShortSynonyms,
		"orphan_synonyms", s.Stats.OrphanSynonyms,
	)
	return s, nil
}

func loadTables(dir string, m *Manifest) (Tables, error) {
	var t Tables

	err := readTable(filepath.Join(dir, m.Tables.Drugs), m.Format,
		[]string{"db_id", "Name"},
		func(r row) error {
			t.Drugs = append(t.Drugs, DrugRow{
				ID:       r.get("db_id"),
				Name:     r.get("Name"),
				Target:   r.get("Gene_Target"),
				Organism: r.get("organism"),
			})
			return nil
		})
	if err != nil {
		return t, fmt.Errorf("drugs: %w", err)
	}

	if m.Tables.Synonyms != "" {
		err := readTable(filepath.Join(dir, m.Tables.Synonyms), m.Format,
			[]string{"db_id", "synonym"},
			func(r row) error {
				t.Synonyms = append(t.Synonyms, Synonym{DrugID: r.get("db_id"), Synonym: r.get("synonym")})
				return nil
			})
		if err != nil {
			return t, fmt.Errorf("synonyms: %w", err)
		}
	}

	if m.Tables.Products != "" {
		err := readTable(filepath.Join(dir, m.Tables.Products), m.Format,
			[]string{"db_id", "product_name"},
			func(r row) error {
				t.Products = append(t.Products, Product{
					DrugID:      r.get("db_id"),
					Name:        r.get("Name"),
					ProductName: r.get("product_name"),
				})
				return nil
			})
		if err != nil {
			return t, fmt.Errorf("products: %w", err)
		}
	}

	if m.Tables.Identifiers != "" {
		err := readTable(filepath.Join(dir, m.Tables.Identifiers), m.Format,
			[]string{"db_id", "identifier_name", "identifier_resource"},
			func(r row) error {
				t.Identifiers = append(t.Identifiers, Identifier{
					DrugID:         r.get("db_id"),
					Name:           r.get("Name"),
					IdentifierName: r.get("identifier_name"),
					Resource:       r.get("identifier_resource"),
				})
				return nil
			})
		if err != nil {
			return t, fmt.Errorf("identifiers: %w", err)
		}
	}
	return t, nil
}
