package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/trialmap/pkg/trial"
)

func init() {
	Register(&interventionsAdapter{})
}

// InterventionsFile is the table written by the interventions adapter.
const InterventionsFile = "interventions.csv"

// interventionsAdapter takes a flattened intervention table produced by the
// registry extraction step and stores a lowercased, deduplicated copy.
type interventionsAdapter struct{}

func (a *interventionsAdapter) ID() string     { return "ctgov-interventions" }
func (a *interventionsAdapter) Target() string { return "interventions" }
func (a *interventionsAdapter) Description() string {
	return "ClinicalTrials.gov flattened intervention table (nct_id, intervention, intervention_type)"
}
func (a *interventionsAdapter) DefaultURL() string { return "" }
func (a *interventionsAdapter) License() string    { return "Public Domain" }

func (a *interventionsAdapter) Import(ctx context.Context, sourceURL, outputDir string) error {
	dlDir := filepath.Join(outputDir, "_download")
	if err := ensureDir(dlDir); err != nil {
		return err
	}
	defer os.RemoveAll(dlDir)

	slog.Info("fetching interventions", "adapter", a.ID(), "url", sourceURL)
	files, err := fetch(ctx, sourceURL, dlDir)
	if err != nil {
		return err
	}
	var src string
	for _, f := range files {
		if strings.HasSuffix(strings.ToLower(f), ".csv") {
			src = f
			break
		}
	}
	if src == "" {
		return fmt.Errorf("no CSV found in source")
	}

	// Keep every row here; placebo arms are needed by the placebo annotator.
	records, stats, err := trial.LoadInterventions(src, trial.ReadOptions{})
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	destDir := filepath.Join(outputDir, a.Target())
	if err := ensureDir(destDir); err != nil {
		return err
	}
	dest := filepath.Join(destDir, InterventionsFile)
	if err := writeInterventions(dest, records); err != nil {
		return err
	}
	slog.Info("interventions imported",
		"adapter", a.ID(),
		"path", dest,
		"records", len(records),
		"empty", stats.EmptyText,
		"duplicates", stats.Duplicates,
		"malformed", stats.Malformed,
	)
	return nil
}

// writeInterventions lowercases intervention texts, the form the matching
// stages expect, and drops rows that become duplicates.
func writeInterventions(path string, records []trial.InterventionRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	cw := csv.NewWriter(f)
	cw.Write([]string{"nct_id", "intervention", "intervention_type"})
	seen := make(map[trial.InterventionRecord]bool, len(records))
	for _, r := range records {
		r.Text = strings.ToLower(r.Text)
		if seen[r] {
			continue
		}
		seen[r] = true
		cw.Write([]string{r.TrialID, r.Text, r.Type})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
