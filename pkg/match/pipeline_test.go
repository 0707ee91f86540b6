package match

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/hazyhaar/trialmap/pkg/trial"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runPipeline(t *testing.T, cfg Config, records []trial.InterventionRecord) *Result {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	p, err := NewPipeline(testSnapshot(t), cfg)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	res, err := p.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestPipeline_EndToEnd(t *testing.T) {
	res := runPipeline(t, Config{Workers: 2}, testRecords())

	want := []Mapping{
		{TrialID: "NCT01", DrugID: "DB00945", Name: "aspirin", InterventionType: "Drug", Provenance: ProvenanceExact},
		{TrialID: "NCT02", DrugID: "DB00316", Name: "acetaminophen", InterventionType: "Drug", Provenance: ProvenanceSynonym},
		{TrialID: "NCT03", DrugID: "DB01050", Name: "ibuprofen", InterventionType: "Drug", Provenance: ProvenanceProduct},
		{TrialID: "NCT04", DrugID: "DB00331", Name: "metformin", InterventionType: "Drug", Provenance: ProvenanceExternal},
		{TrialID: "NCT05", DrugID: "DB00515", Name: "cisplatin", InterventionType: "Drug", Provenance: ProvenanceFuzzy},
		{TrialID: "NCT08", DrugID: "DB00316", Name: "acetaminophen", InterventionType: "Drug", Provenance: ProvenanceProduct},
		{TrialID: "NCT08", DrugID: "DB00945", Name: "aspirin", InterventionType: "Drug", Provenance: ProvenanceProduct},
		{TrialID: "NCT09", DrugID: "DB01050", Name: "ibuprofen", InterventionType: "Drug", Provenance: ProvenanceExact},
	}
	if !slices.Equal(res.Mappings, want) {
		t.Fatalf("mappings =\n%+v\nwant\n%+v", res.Mappings, want)
	}
	if res.DrugTrials != 8 || res.MappedTrials != 7 {
		t.Errorf("trials = %d mapped of %d, want 7 of 8", res.MappedTrials, res.DrugTrials)
	}
	if res.Coverage != 7.0/8.0 {
		t.Errorf("Coverage = %v, want 0.875", res.Coverage)
	}
	if len(res.Unmapped) != 1 || res.Unmapped[0].TrialID != "NCT07" {
		t.Errorf("unmapped = %+v, want NCT07", res.Unmapped)
	}
	if len(res.Stages) != len(StageOrder) {
		t.Fatalf("stages = %d, want %d", len(res.Stages), len(StageOrder))
	}
	for i, s := range res.Stages {
		if s.Stage != StageOrder[i] {
			t.Errorf("stage %d = %s, want %s", i, s.Stage, StageOrder[i])
		}
	}
}

func TestPipeline_Partition(t *testing.T) {
	snap := testSnapshot(t)
	stages := []Stage{
		NewExactStage(snap, BoundaryLeft, 2),
		NewSynonymStage(snap, ContainmentOptions{}),
		NewProductStage(snap, ContainmentOptions{}),
		NewExternalStage(snap, ContainmentOptions{}),
		NewFuzzyStage(snap, FuzzyOptions{}),
	}
	drugs := DrugRecords(testRecords())
	all := make(map[string]bool)
	for _, r := range drugs {
		all[r.TrialID] = true
	}

	resolved := make(map[string]bool)
	input := drugs
	for _, s := range stages {
		got := make(map[string]bool)
		for _, r := range input {
			got[r.TrialID] = true
		}
		for id := range all {
			if got[id] == resolved[id] {
				t.Errorf("%s input: trial %s present=%v, resolved earlier=%v", s.Name(), id, got[id], resolved[id])
			}
		}

		res, err := s.Match(context.Background(), input)
		if err != nil {
			t.Fatal(err)
		}
		for id := range trialSet(res.Matched) {
			if resolved[id] {
				t.Errorf("%s resolved %s again", s.Name(), id)
			}
			resolved[id] = true
		}
		input = res.Unmapped
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	records := testRecords()
	reversed := slices.Clone(records)
	slices.Reverse(reversed)

	var outs [][]byte
	for _, in := range [][]trial.InterventionRecord{records, records, reversed} {
		res := runPipeline(t, Config{}, in)
		var buf bytes.Buffer
		if err := WriteMappings(&buf, res.Mappings, true); err != nil {
			t.Fatal(err)
		}
		outs = append(outs, buf.Bytes())
	}
	for i := 1; i < len(outs); i++ {
		if !bytes.Equal(outs[0], outs[i]) {
			t.Errorf("run %d differs:\n%s\nvs\n%s", i, outs[0], outs[i])
		}
	}
}

func TestPipeline_CoverageMonotonic(t *testing.T) {
	res := runPipeline(t, Config{}, testRecords())
	prev := 0.0
	for _, s := range res.Stages {
		if s.Coverage < prev {
			t.Errorf("coverage dropped at %s: %v < %v", s.Stage, s.Coverage, prev)
		}
		prev = s.Coverage
	}
	if prev != res.Coverage {
		t.Errorf("last stage coverage %v != run coverage %v", prev, res.Coverage)
	}
	for i := 1; i < len(res.Stages); i++ {
		if res.Stages[i].TrialsIn != res.DrugTrials-res.Stages[i-1].CumulativeMapped {
			t.Errorf("%s TrialsIn = %d, want %d", res.Stages[i].Stage,
				res.Stages[i].TrialsIn, res.DrugTrials-res.Stages[i-1].CumulativeMapped)
		}
	}
}

func TestPipeline_DisabledStage(t *testing.T) {
	res := runPipeline(t, Config{Disabled: []Provenance{ProvenanceFuzzy}}, testRecords())
	if hasMapping(res.Mappings, "NCT05", "cisplatin") {
		t.Error("fuzzy stage should be disabled")
	}
	if len(res.Unmapped) != 2 {
		t.Errorf("unmapped = %d, want 2", len(res.Unmapped))
	}

	if _, err := NewPipeline(testSnapshot(t), Config{Disabled: []Provenance{"phonetic"}}); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestPipeline_Cancelled(t *testing.T) {
	p, err := NewPipeline(testSnapshot(t), Config{Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx, testRecords()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewPipeline_BadConfig(t *testing.T) {
	if _, err := NewPipeline(nil, Config{}); err == nil {
		t.Error("expected error for nil snapshot")
	}
	if _, err := NewPipeline(testSnapshot(t), Config{Boundary: "right"}); err == nil {
		t.Error("expected error for unknown boundary")
	}
	if _, err := NewPipeline(testSnapshot(t), Config{PatternMode: "glob"}); err == nil {
		t.Error("expected error for unknown pattern mode")
	}
	if _, err := NewPipeline(testSnapshot(t), Config{Disabled: []Provenance{"phonetic"}}); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestNewPipeline_FuzzyOptions(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"explicit defaults", Config{Fuzzy: DefaultFuzzyOptions()}, false},
		{"wider candidate window", Config{Fuzzy: FuzzyOptions{CandidateMax: 8, AcceptDistance: 1}}, false},
		{"distance two", Config{Fuzzy: FuzzyOptions{CandidateMax: 5, AcceptDistance: 2}}, true},
		{"window excludes accepted distance", Config{Fuzzy: FuzzyOptions{CandidateMax: 1, AcceptDistance: 1}}, true},
		{"fuzzy disabled", Config{
			Fuzzy:    FuzzyOptions{CandidateMax: 1, AcceptDistance: 2},
			Disabled: []Provenance{ProvenanceFuzzy},
		}, false},
	}
	snap := testSnapshot(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPipeline(snap, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
