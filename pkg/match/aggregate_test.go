package match

import "testing"

func TestAggregate_KeepsEarliest(t *testing.T) {
	exact := []Mapping{{TrialID: "NCT2", Name: "aspirin", Provenance: ProvenanceExact}}
	syn := []Mapping{
		{TrialID: "NCT2", Name: "aspirin", Provenance: ProvenanceSynonym},
		{TrialID: "NCT1", Name: "ibuprofen", Provenance: ProvenanceSynonym},
		{TrialID: "NCT2", Name: "acetaminophen", Provenance: ProvenanceSynonym},
	}
	got := Aggregate(exact, syn)
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3: %+v", len(got), got)
	}
	order := []string{"NCT1/ibuprofen", "NCT2/acetaminophen", "NCT2/aspirin"}
	for i, m := range got {
		if m.TrialID+"/"+m.Name != order[i] {
			t.Errorf("row %d = %s/%s, want %s", i, m.TrialID, m.Name, order[i])
		}
	}
	if got[2].Provenance != ProvenanceExact {
		t.Errorf("duplicate kept %s, want exact", got[2].Provenance)
	}
}

func TestCoverage(t *testing.T) {
	ms := []Mapping{{TrialID: "a"}, {TrialID: "a"}, {TrialID: "b"}}
	if got := Coverage(ms, 4); got != 0.5 {
		t.Errorf("Coverage = %v, want 0.5", got)
	}
	if got := Coverage(nil, 0); got != 0 {
		t.Errorf("Coverage with no trials = %v, want 0", got)
	}
}
