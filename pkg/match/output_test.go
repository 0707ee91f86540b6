package match

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/trialmap/pkg/trial"
)

func TestWriteMappings(t *testing.T) {
	ms := []Mapping{{TrialID: "NCT1", DrugID: "DB1", Name: "aspirin, buffered", InterventionType: "Drug", Provenance: ProvenanceExact}}

	var buf bytes.Buffer
	if err := WriteMappings(&buf, ms, false); err != nil {
		t.Fatal(err)
	}
	want := "nct_id,Name,intervention_type\nNCT1,\"aspirin, buffered\",Drug\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := WriteMappings(&buf, ms, true); err != nil {
		t.Fatal(err)
	}
	want = "nct_id,Name,intervention_type,db_id,provenance\nNCT1,\"aspirin, buffered\",Drug,DB1,exact\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteInterventions_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unmapped.csv")
	in := []trial.InterventionRecord{rec("NCT7", "unknown, compound"), rec("NCT8", "x/y")}
	err := WriteFile(path, func(w io.Writer) error { return WriteInterventions(w, in) })
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := trial.LoadInterventions(path, trial.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != in[0] || got[1] != in[1] {
		t.Errorf("round trip = %+v, want %+v", got, in)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error(err)
	}
}
