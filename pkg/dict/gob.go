package dict

import (
	"encoding/gob"
	"fmt"
	"os"
)

// snapshotData is the on-disk form of a Snapshot. Only the manifest
// sections that shape the built tables are stored; the rest is re-read
// from manifest.yaml.
type snapshotData struct {
	Built       builtWith
	Drugs       []Drug
	Synonyms    []Synonym
	Products    []Product
	Identifiers []Identifier
	Stats       LoadStats
}

// builtWith records the manifest sections a snapshot was built from.
type builtWith struct {
	Format  FormatSpec
	Tables  TableSpec
	Filters FilterSpec
}

func builtFrom(m *Manifest) builtWith {
	if m == nil {
		return builtWith{}
	}
	return builtWith{Format: m.Format, Tables: m.Tables, Filters: m.Filters}
}

// loadGob deserializes a snapshot and rebuilds its indexes. It also returns
// the manifest sections the snapshot was built from.
func loadGob(path string) (*Snapshot, builtWith, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, builtWith{}, fmt.Errorf("open gob file: %w", err)
	}
	defer f.Close()

	var data snapshotData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, builtWith{}, fmt.Errorf("decode gob: %w", err)
	}
	s := &Snapshot{
		Drugs:       data.Drugs,
		Synonyms:    data.Synonyms,
		Products:    data.Products,
		Identifiers: data.Identifiers,
		Stats:       data.Stats,
	}
	s.index()
	return s, data.Built, nil
}

// SaveGob serializes a snapshot to a gob-encoded file at path.
func SaveGob(s *Snapshot, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create gob file: %w", err)
	}
	defer f.Close()

	data := snapshotData{
		Built:       builtFrom(s.Manifest),
		Drugs:       s.Drugs,
		Synonyms:    s.Synonyms,
		Products:    s.Products,
		Identifiers: s.Identifiers,
		Stats:       s.Stats,
	}
	if err := gob.NewEncoder(f).Encode(data); err != nil {
		return fmt.Errorf("encode gob: %w", err)
	}
	return nil
}
