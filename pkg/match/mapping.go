// Package match resolves free-text drug interventions to canonical registry
// drugs through a cascade of stages: exact name, synonym, product, external
// identifier and bounded edit distance. Each stage sees only the records whose
// trial was not resolved by an earlier stage.
package match

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/hazyhaar/trialmap/pkg/trial"
)

// Provenance names the stage that produced a mapping.
type Provenance string

const (
	ProvenanceExact    Provenance = "exact"
	ProvenanceSynonym  Provenance = "synonym"
	ProvenanceProduct  Provenance = "product"
	ProvenanceExternal Provenance = "external"
	ProvenanceFuzzy    Provenance = "fuzzy"
)

// StageOrder is the fixed execution order of the cascade.
var StageOrder = []Provenance{
	ProvenanceExact,
	ProvenanceSynonym,
	ProvenanceProduct,
	ProvenanceExternal,
	ProvenanceFuzzy,
}

// ErrInvariant reports reference data that breaks a guarantee the pipeline
// relies on, such as a product name with no drug.
var ErrInvariant = errors.New("reference invariant violated")

// Mapping attributes one canonical drug to one trial.
type Mapping struct {
	TrialID          string     `json:"nct_id"`
	DrugID           string     `json:"db_id,omitempty"`
	Name             string     `json:"name"`
	InterventionType string     `json:"intervention_type"`
	Provenance       Provenance `json:"provenance"`
}

// Ambiguity records an unmapped text that sat at the accepted distance from
// several canonical names. Chosen is the name the stage kept.
type Ambiguity struct {
	Text       string   `json:"text"`
	Candidates []string `json:"candidates"`
	Chosen     string   `json:"chosen"`
}

// StageReport carries the cardinality counters of one stage run.
type StageReport struct {
	Stage            Provenance    `json:"stage"`
	RecordsIn        int           `json:"records_in"`
	TrialsIn         int           `json:"trials_in"`
	References       int           `json:"references"`
	InvalidPatterns  int           `json:"invalid_patterns"`
	Candidates       int           `json:"candidates,omitempty"`
	Mappings         int           `json:"mappings"`
	TrialsMapped     int           `json:"trials_mapped"`
	DrugsMapped      int           `json:"drugs_mapped"`
	RecordsOut       int           `json:"records_out"`
	TrialsOut        int           `json:"trials_out"`
	CumulativeMapped int           `json:"cumulative_mapped"`
	Coverage         float64       `json:"coverage"`
	Ambiguities      []Ambiguity   `json:"ambiguities,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// StageResult is the pure output of a stage: what it resolved and what is
// left for the next stage.
type StageResult struct {
	Matched  []Mapping
	Unmapped []trial.InterventionRecord
	Report   StageReport
}

// Stage is one matching strategy of the cascade.
type Stage interface {
	Name() Provenance
	Match(ctx context.Context, records []trial.InterventionRecord) (StageResult, error)
}

// finish fills the generic parts of a stage result: dedups matches and
// removes every record whose trial was resolved.
func finish(stage Provenance, records []trial.InterventionRecord, matched []Mapping, report StageReport) StageResult {
	matched = dedupe(matched)

	resolved := make(map[string]bool)
	drugs := make(map[string]bool)
	for _, m := range matched {
		resolved[m.TrialID] = true
		drugs[m.Name] = true
	}
	var unmapped []trial.InterventionRecord
	for _, r := range records {
		if !resolved[r.TrialID] {
			unmapped = append(unmapped, r)
		}
	}

	report.Stage = stage
	report.RecordsIn = len(records)
	report.TrialsIn = countTrials(records)
	report.Mappings = len(matched)
	report.TrialsMapped = len(resolved)
	report.DrugsMapped = len(drugs)
	report.RecordsOut = len(unmapped)
	report.TrialsOut = countTrials(unmapped)
	return StageResult{Matched: matched, Unmapped: unmapped, Report: report}
}

// dedupe keeps the first mapping for every (trial, name) pair and sorts the
// result by trial then name.
func dedupe(ms []Mapping) []Mapping {
	type key struct{ trial, name string }
	seen := make(map[key]bool, len(ms))
	out := make([]Mapping, 0, len(ms))
	for _, m := range ms {
		k := key{m.TrialID, m.Name}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TrialID != out[j].TrialID {
			return out[i].TrialID < out[j].TrialID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func countTrials(records []trial.InterventionRecord) int {
	ids := make(map[string]struct{}, len(records))
	for _, r := range records {
		ids[r.TrialID] = struct{}{}
	}
	return len(ids)
}
