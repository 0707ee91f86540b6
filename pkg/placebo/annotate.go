package placebo

import (
	"sort"
	"strings"

	"github.com/hazyhaar/trialmap/pkg/dict"
	"github.com/hazyhaar/trialmap/pkg/match"
	"github.com/hazyhaar/trialmap/pkg/trial"
)

// Row flags a trial whose placebo arm was matched to a drug.
type Row struct {
	TrialID          string `json:"nct_id"`
	DrugID           string `json:"db_id"`
	DrugMap          string `json:"drug_map"`
	InterventionType string `json:"intervention_type"`
}

// Report counts what the annotator kept and dropped.
type Report struct {
	Selected  int            `json:"selected"`
	Excluded  map[Reason]int `json:"excluded"`
	Remaining int            `json:"remaining"`
	Rows      int            `json:"rows"`
	Trials    int            `json:"trials"`
	Drugs     int            `json:"drugs"`
}

// Annotator filters placebo interventions and matches what survives against
// the synonym table.
type Annotator struct {
	rules   compiled
	matcher *match.Matcher
}

// NewAnnotator builds an annotator over the snapshot's synonyms.
func NewAnnotator(snap *dict.Snapshot, rules Rules) *Annotator {
	return &Annotator{
		rules:   rules.compile(),
		matcher: match.NewMatcher(match.SynonymReferences(snap), match.PatternLiteral),
	}
}

// Annotate returns one row per (trial, drug) pair, sorted by trial then drug.
func (a *Annotator) Annotate(records []trial.InterventionRecord) ([]Row, Report) {
	rep := Report{Excluded: make(map[Reason]int)}

	var kept []trial.InterventionRecord
	seenRec := make(map[trial.InterventionRecord]bool)
	for _, r := range records {
		if !r.IsDrug() || !strings.Contains(r.Text, "placebo") {
			continue
		}
		rep.Selected++
		if reason := a.rules.exclude(r.Text); reason != ReasonNone {
			rep.Excluded[reason]++
			continue
		}
		if seenRec[r] {
			continue
		}
		seenRec[r] = true
		kept = append(kept, r)
	}
	rep.Remaining = len(kept)

	type key struct{ trial, drug string }
	seen := make(map[key]bool)
	var rows []Row
	for i := 0; i < a.matcher.Len(); i++ {
		ref := a.matcher.Reference(i)
		for _, r := range kept {
			if !a.matcher.Matches(i, r.Text) {
				continue
			}
			for _, tgt := range ref.Targets {
				k := key{r.TrialID, tgt.Name}
				if seen[k] {
					continue
				}
				seen[k] = true
				rows = append(rows, Row{
					TrialID:          r.TrialID,
					DrugID:           tgt.DrugID,
					DrugMap:          tgt.Name,
					InterventionType: trial.TypeDrug,
				})
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TrialID != rows[j].TrialID {
			return rows[i].TrialID < rows[j].TrialID
		}
		return rows[i].DrugMap < rows[j].DrugMap
	})

	trials := make(map[string]bool)
	drugs := make(map[string]bool)
	for _, r := range rows {
		trials[r.TrialID] = true
		drugs[r.DrugMap] = true
	}
	rep.Rows = len(rows)
	rep.Trials = len(trials)
	rep.Drugs = len(drugs)
	return rows, rep
}
