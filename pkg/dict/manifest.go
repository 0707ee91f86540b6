package dict

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest describes a reference bundle: its source, table files and load filters.
type Manifest struct {
	ID        string     `yaml:"id" json:"id"`
	Version   string     `yaml:"version" json:"version"`
	Source    string     `yaml:"source" json:"source"`
	SourceURL string     `yaml:"source_url" json:"source_url,omitempty"`
	License   string     `yaml:"license" json:"license"`
	Format    FormatSpec `yaml:"format" json:"-"`
	Tables    TableSpec  `yaml:"tables" json:"-"`
	Filters   FilterSpec `yaml:"filters" json:"filters"`
}

// FormatSpec describes the CSV layout shared by every table of the bundle.
type FormatSpec struct {
	Delimiter string `yaml:"delimiter"`
	Encoding  string `yaml:"encoding"`
	Normalize string `yaml:"normalize"`
}

// TableSpec names the data file of each reference table, relative to the bundle dir.
// An empty Synonyms, Products or Identifiers file disables that table.
type TableSpec struct {
	Drugs       string `yaml:"drugs"`
	Synonyms    string `yaml:"synonyms"`
	Products    string `yaml:"products"`
	Identifiers string `yaml:"identifiers"`
}

// FilterSpec restricts what is kept at load time.
type FilterSpec struct {
	Organism           string `yaml:"organism" json:"organism,omitempty"`
	IdentifierResource string `yaml:"identifier_resource" json:"identifier_resource"`
	MinSynonymLength   int    `yaml:"min_synonym_length" json:"min_synonym_length"`
}

const (
	defaultIdentifierResource = "Wikipedia"
	defaultMinSynonymLength   = 5
)

// LoadManifest reads and parses a manifest.yaml file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("manifest %s: missing id", path)
	}
	m.applyDefaults()
	return &m, nil
}

// WriteManifest writes m as YAML to path.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *Manifest) applyDefaults() {
	if m.Tables.Drugs == "" {
		m.Tables.Drugs = "all_drugbank_drugs.csv"
	}
	if m.Filters.IdentifierResource == "" {
		m.Filters.IdentifierResource = defaultIdentifierResource
	}
	if m.Filters.MinSynonymLength <= 0 {
		m.Filters.MinSynonymLength = defaultMinSynonymLength
	}
}
