package match

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/hazyhaar/trialmap/pkg/dict"
	"github.com/hazyhaar/trialmap/pkg/trial"
)

// FuzzyOptions bounds the edit-distance stage.
type FuzzyOptions struct {
	// CandidateMax keeps pairs with distance strictly below it for inspection.
	CandidateMax int `yaml:"candidate_max"`
	// AcceptDistance is the only distance turned into a mapping.
	AcceptDistance int `yaml:"accept_distance"`
	Workers        int `yaml:"-"`
}

// DefaultFuzzyOptions keeps candidates under 5 and accepts single edits.
func DefaultFuzzyOptions() FuzzyOptions {
	return FuzzyOptions{CandidateMax: 5, AcceptDistance: 1}
}

func (o FuzzyOptions) withDefaults() FuzzyOptions {
	def := DefaultFuzzyOptions()
	if o.CandidateMax <= 0 {
		o.CandidateMax = def.CandidateMax
	}
	if o.AcceptDistance <= 0 {
		o.AcceptDistance = def.AcceptDistance
	}
	return o
}

// Validate rejects options the stage cannot honour once zero values are
// defaulted: only single-edit matches are accepted, and the candidate
// window must include the accepted distance.
func (o FuzzyOptions) Validate() error {
	o = o.withDefaults()
	if o.AcceptDistance != 1 {
		return fmt.Errorf("fuzzy: accept_distance must be 1, got %d", o.AcceptDistance)
	}
	if o.CandidateMax <= o.AcceptDistance {
		return fmt.Errorf("fuzzy: candidate_max %d must exceed accept_distance %d", o.CandidateMax, o.AcceptDistance)
	}
	return nil
}

// FuzzyStage resolves whole intervention texts to canonical names within a
// single edit. When several names qualify, the lexicographically smallest
// wins and the text is reported as an Ambiguity.
type FuzzyStage struct {
	snap  *dict.Snapshot
	opts  FuzzyOptions
	names []string
	runes []int
}

// NewFuzzyStage precomputes name lengths for the length-difference cut.
func NewFuzzyStage(snap *dict.Snapshot, opts FuzzyOptions) *FuzzyStage {
	opts = opts.withDefaults()
	names := snap.Names()
	runes := make([]int, len(names))
	for i, n := range names {
		runes[i] = utf8.RuneCountInString(n)
	}
	return &FuzzyStage{snap: snap, opts: opts, names: names, runes: runes}
}

func (s *FuzzyStage) Name() Provenance { return ProvenanceFuzzy }

// fuzzyHit is the per-text outcome of the distance scan.
type fuzzyHit struct {
	candidates int
	accepted   []string
}

func (s *FuzzyStage) Match(ctx context.Context, records []trial.InterventionRecord) (StageResult, error) {
	start := time.Now()

	texts := distinctTexts(records)
	hits := make([]fuzzyHit, len(texts))
	err := forEach(ctx, len(texts), s.opts.Workers, func(i int) {
		hits[i] = s.scan(texts[i])
	})
	if err != nil {
		return StageResult{}, fmt.Errorf("fuzzy stage: %w", err)
	}

	report := StageReport{References: len(s.names)}
	chosen := make(map[string]string)
	for i, h := range hits {
		report.Candidates += h.candidates
		if len(h.accepted) == 0 {
			continue
		}
		// Names are scanned in sorted order, so accepted[0] is the smallest.
		chosen[texts[i]] = h.accepted[0]
		if len(h.accepted) > 1 {
			report.Ambiguities = append(report.Ambiguities, Ambiguity{
				Text:       texts[i],
				Candidates: h.accepted,
				Chosen:     h.accepted[0],
			})
		}
	}

	var matched []Mapping
	for _, rec := range records {
		name, ok := chosen[rec.Text]
		if !ok {
			continue
		}
		id, _ := s.snap.DrugID(name)
		matched = append(matched, Mapping{
			TrialID:          rec.TrialID,
			DrugID:           id,
			Name:             name,
			InterventionType: rec.Type,
			Provenance:       ProvenanceFuzzy,
		})
	}

	res := finish(ProvenanceFuzzy, records, matched, report)
	res.Report.Duration = time.Since(start)
	return res, nil
}

// scan computes the distance from text to every canonical name whose length
// could fall under CandidateMax.
func (s *FuzzyStage) scan(text string) fuzzyHit {
	var h fuzzyHit
	n := utf8.RuneCountInString(text)
	for j, name := range s.names {
		diff := n - s.runes[j]
		if diff < 0 {
			diff = -diff
		}
		if diff >= s.opts.CandidateMax {
			continue
		}
		d := levenshtein.ComputeDistance(text, name)
		if d >= s.opts.CandidateMax {
			continue
		}
		h.candidates++
		if d == s.opts.AcceptDistance {
			h.accepted = append(h.accepted, name)
		}
	}
	return h
}

func distinctTexts(records []trial.InterventionRecord) []string {
	seen := make(map[string]bool, len(records))
	var texts []string
	for _, r := range records {
		if !seen[r.Text] {
			seen[r.Text] = true
			texts = append(texts, r.Text)
		}
	}
	sort.Strings(texts)
	return texts
}
