package match

import (
	"testing"

	"github.com/hazyhaar/trialmap/pkg/dict"
	"github.com/hazyhaar/trialmap/pkg/trial"
)

// testSnapshot is a small registry covering every stage.
func testSnapshot(t *testing.T) *dict.Snapshot {
	t.Helper()
	return dict.Build(&dict.Manifest{ID: "test"}, dict.Tables{
		Drugs: []dict.DrugRow{
			{ID: "DB00945", Name: "Aspirin"},
			{ID: "DB00316", Name: "Acetaminophen"},
			{ID: "DB01050", Name: "Ibuprofen"},
			{ID: "DB00331", Name: "Metformin"},
			{ID: "DB00515", Name: "Cisplatin"},
		},
		Synonyms: []dict.Synonym{
			{DrugID: "DB00316", Synonym: "Tylenol"},
			{DrugID: "DB00316", Synonym: "Paracetamol"},
		},
		Products: []dict.Product{
			{DrugID: "DB01050", ProductName: "Advil"},
			{DrugID: "DB00316", ProductName: "Excedrin"},
			{DrugID: "DB00945", ProductName: "Excedrin"},
		},
		Identifiers: []dict.Identifier{
			{DrugID: "DB00331", IdentifierName: "Glucophage", Resource: "Wikipedia"},
			{DrugID: "DB00945", IdentifierName: "ASA", Resource: "KEGG"},
		},
	})
}

func rec(id, text string) trial.InterventionRecord {
	return trial.InterventionRecord{TrialID: id, Text: text, Type: trial.TypeDrug}
}

// testRecords exercises one trial per stage plus a leftover and a non-drug row.
func testRecords() []trial.InterventionRecord {
	return []trial.InterventionRecord{
		rec("NCT01", "aspirin/paracetamol"),
		rec("NCT02", "tylenol extra strength"),
		rec("NCT03", "advil liqui-gels"),
		rec("NCT04", "glucophage xr"),
		rec("NCT05", "cisplatn"),
		{TrialID: "NCT06", Text: "aspirin", Type: "Behavioral"},
		rec("NCT07", "unknown compound x"),
		rec("NCT08", "excedrin migraine"),
		rec("NCT09", "vitamin d"),
		rec("NCT09", "ibuprofen 200 mg"),
	}
}

func trialSet(ms []Mapping) map[string]bool {
	out := make(map[string]bool)
	for _, m := range ms {
		out[m.TrialID] = true
	}
	return out
}

func hasMapping(ms []Mapping, trialID, name string) bool {
	for _, m := range ms {
		if m.TrialID == trialID && m.Name == name {
			return true
		}
	}
	return false
}
