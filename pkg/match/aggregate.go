package match

import "github.com/hazyhaar/trialmap/pkg/trial"

// Aggregate unions stage outputs in the order given. Exact duplicate
// (trial, name) rows collapse onto the earliest stage; distinct drugs of the
// same trial are all kept. The result is sorted by trial then name.
func Aggregate(stages ...[]Mapping) []Mapping {
	var all []Mapping
	for _, ms := range stages {
		all = append(all, ms...)
	}
	return dedupe(all)
}

// Coverage is the fraction of drug trials resolved to at least one drug.
func Coverage(mappings []Mapping, drugTrials int) float64 {
	if drugTrials == 0 {
		return 0
	}
	trials := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		trials[m.TrialID] = struct{}{}
	}
	return float64(len(trials)) / float64(drugTrials)
}

// DrugRecords returns the drug-type records of the input, in order.
func DrugRecords(records []trial.InterventionRecord) []trial.InterventionRecord {
	var out []trial.InterventionRecord
	for _, r := range records {
		if r.IsDrug() {
			out = append(out, r)
		}
	}
	return out
}
