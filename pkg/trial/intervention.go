// Package trial reads flattened clinical-trial intervention tables.
package trial

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// TypeDrug is the intervention type the resolver works on.
const TypeDrug = "Drug"

// InterventionRecord is one (trial, intervention) row. A trial may have many.
type InterventionRecord struct {
	TrialID string `json:"nct_id"`
	Text    string `json:"intervention"`
	Type    string `json:"intervention_type"`
}

// IsDrug reports whether the record is a drug intervention.
func (r InterventionRecord) IsDrug() bool {
	return r.Type == TypeDrug
}

// ReadOptions tunes intervention loading.
type ReadOptions struct {
	// Drop lists intervention texts removed outright (e.g. "placebo").
	Drop []string
}

// DefaultReadOptions drops the bare placebo and no-intervention arms.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{Drop: []string{"placebo", "no intervention"}}
}

// ReadStats counts rows skipped while reading.
type ReadStats struct {
	Rows       int `json:"rows"`
	EmptyText  int `json:"empty_text"`
	Dropped    int `json:"dropped"`
	Duplicates int `json:"duplicates"`
	Malformed  int `json:"malformed"`
}

// ReadInterventions parses an intervention table with columns
// nct_id, intervention, intervention_type. Empty texts, dropped texts and
// exact duplicate rows are skipped and counted, never returned as errors.
func ReadInterventions(r io.Reader, opts ReadOptions) ([]InterventionRecord, ReadStats, error) {
	var stats ReadStats

	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	colIdx := make(map[string]int)
	for i, h := range header {
		colIdx[strings.TrimSpace(h)] = i
	}
	idCol, okID := colIdx["nct_id"]
	textCol, okText := colIdx["intervention"]
	typeCol, okType := colIdx["intervention_type"]
	if !okID || !okText || !okType {
		return nil, stats, fmt.Errorf("expected columns nct_id, intervention, intervention_type in header %v", header)
	}

	drop := make(map[string]bool, len(opts.Drop))
	for _, d := range opts.Drop {
		drop[d] = true
	}

	var records []InterventionRecord
	seen := make(map[InterventionRecord]bool)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Malformed++
			continue
		}
		stats.Rows++
		if idCol >= len(record) || textCol >= len(record) || typeCol >= len(record) {
			stats.Malformed++
			continue
		}

		rec := InterventionRecord{
			TrialID: strings.TrimSpace(record[idCol]),
			Text:    record[textCol],
			Type:    strings.TrimSpace(record[typeCol]),
		}
		if rec.TrialID == "" || strings.TrimSpace(rec.Text) == "" {
			stats.EmptyText++
			continue
		}
		if drop[rec.Text] {
			stats.Dropped++
			continue
		}
		if seen[rec] {
			stats.Duplicates++
			continue
		}
		seen[rec] = true
		records = append(records, rec)
	}
	return records, stats, nil
}

// LoadInterventions opens path and reads it with ReadInterventions.
func LoadInterventions(path string, opts ReadOptions) ([]InterventionRecord, ReadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ReadStats{}, fmt.Errorf("open interventions: %w", err)
	}
	defer f.Close()
	return ReadInterventions(f, opts)
}
