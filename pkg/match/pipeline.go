package match

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hazyhaar/trialmap/pkg/dict"
	"github.com/hazyhaar/trialmap/pkg/trial"
)

// Config tunes a Pipeline. The zero value runs every stage with defaults.
type Config struct {
	Boundary    BoundaryPolicy `yaml:"boundary"`
	PatternMode PatternMode    `yaml:"pattern_mode"`
	Workers     int            `yaml:"workers"`
	Fuzzy       FuzzyOptions   `yaml:"fuzzy"`
	// Disabled stages are skipped; their input passes through unchanged.
	Disabled []Provenance `yaml:"disabled"`

	Recorder Recorder     `yaml:"-"`
	Logger   *slog.Logger `yaml:"-"`
}

// Result is the outcome of one cascade run.
type Result struct {
	Mappings     []Mapping                  `json:"mappings"`
	Stages       []StageReport              `json:"stages"`
	DrugRecords  int                        `json:"drug_records"`
	DrugTrials   int                        `json:"drug_trials"`
	MappedTrials int                        `json:"mapped_trials"`
	Coverage     float64                    `json:"coverage"`
	Unmapped     []trial.InterventionRecord `json:"unmapped,omitempty"`
	Duration     time.Duration              `json:"duration"`
}

// Pipeline runs the stages in StageOrder over one snapshot.
type Pipeline struct {
	stages   []Stage
	recorder Recorder
	logger   *slog.Logger
}

// NewPipeline builds every enabled stage over snap.
func NewPipeline(snap *dict.Snapshot, cfg Config) (*Pipeline, error) {
	if snap == nil {
		return nil, fmt.Errorf("pipeline: no snapshot")
	}
	boundary, err := ParseBoundaryPolicy(string(cfg.Boundary))
	if err != nil {
		return nil, err
	}
	mode, err := ParsePatternMode(string(cfg.PatternMode))
	if err != nil {
		return nil, err
	}
	for _, d := range cfg.Disabled {
		if !slices.Contains(StageOrder, d) {
			return nil, fmt.Errorf("pipeline: unknown stage %q", d)
		}
	}
	if !slices.Contains(cfg.Disabled, ProvenanceFuzzy) {
		if err := cfg.Fuzzy.Validate(); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}

	copts := ContainmentOptions{Mode: mode, Workers: cfg.Workers}
	fopts := cfg.Fuzzy
	fopts.Workers = cfg.Workers

	p := &Pipeline{recorder: cfg.Recorder, logger: cfg.Logger}
	if p.recorder == nil {
		p.recorder = NoopRecorder{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	for _, name := range StageOrder {
		if slices.Contains(cfg.Disabled, name) {
			continue
		}
		var s Stage
		switch name {
		case ProvenanceExact:
			s = NewExactStage(snap, boundary, cfg.Workers)
		case ProvenanceSynonym:
			s = NewSynonymStage(snap, copts)
		case ProvenanceProduct:
			s = NewProductStage(snap, copts)
		case ProvenanceExternal:
			s = NewExternalStage(snap, copts)
		case ProvenanceFuzzy:
			s = NewFuzzyStage(snap, fopts)
		}
		p.stages = append(p.stages, s)
	}
	return p, nil
}

// Stages returns the names of the enabled stages in run order.
func (p *Pipeline) Stages() []Provenance {
	names := make([]Provenance, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run filters records to drug interventions and feeds them through the
// cascade. Each stage receives the previous stage's unmapped records.
func (p *Pipeline) Run(ctx context.Context, records []trial.InterventionRecord) (*Result, error) {
	start := time.Now()
	drugs := DrugRecords(records)
	res := &Result{
		DrugRecords: len(drugs),
		DrugTrials:  countTrials(drugs),
	}

	remaining := drugs
	outputs := make([][]Mapping, 0, len(p.stages))
	mapped := make(map[string]struct{})
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sr, err := s.Match(ctx, remaining)
		if err != nil {
			return nil, err
		}
		for _, m := range sr.Matched {
			mapped[m.TrialID] = struct{}{}
		}
		sr.Report.CumulativeMapped = len(mapped)
		if res.DrugTrials > 0 {
			sr.Report.Coverage = float64(len(mapped)) / float64(res.DrugTrials)
		}

		p.logger.Info("stage done",
			"stage", sr.Report.Stage,
			"records_in", sr.Report.RecordsIn,
			"trials_in", sr.Report.TrialsIn,
			"mappings", sr.Report.Mappings,
			"trials_mapped", sr.Report.TrialsMapped,
			"drugs_mapped", sr.Report.DrugsMapped,
			"trials_out", sr.Report.TrialsOut,
			"coverage", sr.Report.Coverage,
			"duration", sr.Report.Duration,
		)
		if sr.Report.InvalidPatterns > 0 {
			p.logger.Warn("invalid patterns skipped", "stage", sr.Report.Stage, "count", sr.Report.InvalidPatterns)
		}
		for _, a := range sr.Report.Ambiguities {
			p.logger.Warn("ambiguous fuzzy match", "text", a.Text, "candidates", a.Candidates, "chosen", a.Chosen)
		}
		p.recorder.ObserveStage(sr.Report)

		outputs = append(outputs, sr.Matched)
		res.Stages = append(res.Stages, sr.Report)
		remaining = sr.Unmapped
	}

	res.Mappings = Aggregate(outputs...)
	res.MappedTrials = len(mapped)
	res.Coverage = Coverage(res.Mappings, res.DrugTrials)
	res.Unmapped = remaining
	res.Duration = time.Since(start)
	p.recorder.ObserveRun(res)
	return res, nil
}
