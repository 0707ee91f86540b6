package match

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/trialmap/pkg/dict"
	"github.com/hazyhaar/trialmap/pkg/trial"
)

// BoundaryPolicy selects the word-boundary check of the exact stage.
type BoundaryPolicy string

const (
	// BoundaryLeft requires the name to start the token or follow a space.
	BoundaryLeft BoundaryPolicy = "left"
	// BoundaryBoth additionally requires the name to end the token or
	// precede a space.
	BoundaryBoth BoundaryPolicy = "both"
)

// ParseBoundaryPolicy validates a policy name; "" means BoundaryLeft.
func ParseBoundaryPolicy(s string) (BoundaryPolicy, error) {
	switch BoundaryPolicy(s) {
	case "", BoundaryLeft:
		return BoundaryLeft, nil
	case BoundaryBoth:
		return BoundaryBoth, nil
	default:
		return "", fmt.Errorf("unknown boundary policy %q", s)
	}
}

// ExactStage resolves tokens of each record by boundary-constrained
// containment of canonical names.
type ExactStage struct {
	snap     *dict.Snapshot
	boundary BoundaryPolicy
	workers  int
}

// NewExactStage builds the exact stage over the snapshot's canonical names.
func NewExactStage(snap *dict.Snapshot, boundary BoundaryPolicy, workers int) *ExactStage {
	if boundary == "" {
		boundary = BoundaryLeft
	}
	return &ExactStage{snap: snap, boundary: boundary, workers: workers}
}

func (s *ExactStage) Name() Provenance { return ProvenanceExact }

func (s *ExactStage) Match(ctx context.Context, records []trial.InterventionRecord) (StageResult, error) {
	start := time.Now()
	names := s.snap.Names()

	perRecord := make([][]Mapping, len(records))
	err := forEach(ctx, len(records), s.workers, func(i int) {
		rec := records[i]
		var found []Mapping
		for _, tok := range Tokenize(rec.Text) {
			for _, name := range names {
				if !containsAtBoundary(tok, name, s.boundary) {
					continue
				}
				id, _ := s.snap.DrugID(name)
				found = append(found, Mapping{
					TrialID:          rec.TrialID,
					DrugID:           id,
					Name:             name,
					InterventionType: rec.Type,
					Provenance:       ProvenanceExact,
				})
			}
		}
		perRecord[i] = found
	})
	if err != nil {
		return StageResult{}, fmt.Errorf("exact stage: %w", err)
	}

	var matched []Mapping
	for _, ms := range perRecord {
		matched = append(matched, ms...)
	}
	res := finish(ProvenanceExact, records, matched, StageReport{References: len(names)})
	res.Report.Duration = time.Since(start)
	return res, nil
}

// containsAtBoundary reports whether name occurs in token at a position that
// satisfies the boundary policy. Every occurrence is tried.
func containsAtBoundary(token, name string, boundary BoundaryPolicy) bool {
	if name == "" {
		return false
	}
	for off := 0; off <= len(token)-len(name); {
		i := strings.Index(token[off:], name)
		if i < 0 {
			return false
		}
		start := off + i
		end := start + len(name)
		left := start == 0 || token[start-1] == ' '
		right := boundary != BoundaryBoth || end == len(token) || token[end] == ' '
		if left && right {
			return true
		}
		off = start + 1
	}
	return false
}
