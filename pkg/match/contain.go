package match

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/trialmap/pkg/dict"
	"github.com/hazyhaar/trialmap/pkg/trial"
)

// PatternMode selects how reference strings are tested against texts.
type PatternMode string

const (
	// PatternLiteral tests plain substring containment.
	PatternLiteral PatternMode = "literal"
	// PatternRegex compiles every reference string as a regular expression.
	// Strings that fail to compile are counted and skipped.
	PatternRegex PatternMode = "regex"
)

// ParsePatternMode validates a mode name; "" means PatternLiteral.
func ParsePatternMode(s string) (PatternMode, error) {
	switch PatternMode(s) {
	case "", PatternLiteral:
		return PatternLiteral, nil
	case PatternRegex:
		return PatternRegex, nil
	default:
		return "", fmt.Errorf("unknown pattern mode %q", s)
	}
}

// Target is a canonical drug a reference string resolves to.
type Target struct {
	DrugID string
	Name   string
}

// Reference is one containment pattern and the drugs it resolves to.
// Products may fan out to several targets.
type Reference struct {
	Pattern string
	Targets []Target
}

// Matcher tests compiled references against texts.
type Matcher struct {
	mode    PatternMode
	refs    []Reference
	regexes []*regexp.Regexp
	valid   []bool
	invalid int
}

// NewMatcher compiles refs once. Invalid patterns are kept out of matching
// and reported by Invalid.
func NewMatcher(refs []Reference, mode PatternMode) *Matcher {
	m := &Matcher{
		mode:  mode,
		refs:  refs,
		valid: make([]bool, len(refs)),
	}
	if mode == PatternRegex {
		m.regexes = make([]*regexp.Regexp, len(refs))
	}
	for i, ref := range refs {
		if ref.Pattern == "" || !utf8.ValidString(ref.Pattern) {
			m.invalid++
			continue
		}
		if mode == PatternRegex {
			re, err := regexp.Compile(ref.Pattern)
			if err != nil {
				m.invalid++
				continue
			}
			m.regexes[i] = re
		}
		m.valid[i] = true
	}
	return m
}

// Len returns the number of references, valid or not.
func (m *Matcher) Len() int { return len(m.refs) }

// Invalid returns the number of references skipped at compile time.
func (m *Matcher) Invalid() int { return m.invalid }

// Reference returns the i-th reference.
func (m *Matcher) Reference(i int) Reference { return m.refs[i] }

// Matches reports whether the i-th reference occurs in text.
func (m *Matcher) Matches(i int, text string) bool {
	if !m.valid[i] {
		return false
	}
	if m.mode == PatternRegex {
		return m.regexes[i].MatchString(text)
	}
	return strings.Contains(text, m.refs[i].Pattern)
}

// ContainmentOptions tunes a containment stage.
type ContainmentOptions struct {
	Mode    PatternMode
	Workers int
}

// ContainmentStage resolves records whose text contains a reference string.
// The synonym, product and external-identifier stages are instances of it.
type ContainmentStage struct {
	stage   Provenance
	refs    []Reference
	opts    ContainmentOptions
	matcher *Matcher
}

// NewContainmentStage builds a stage over refs. Refs without targets make
// Match fail with ErrInvariant.
func NewContainmentStage(stage Provenance, refs []Reference, opts ContainmentOptions) *ContainmentStage {
	if opts.Mode == "" {
		opts.Mode = PatternLiteral
	}
	return &ContainmentStage{
		stage:   stage,
		refs:    refs,
		opts:    opts,
		matcher: NewMatcher(refs, opts.Mode),
	}
}

// NewSynonymStage matches the snapshot's synonym table.
func NewSynonymStage(snap *dict.Snapshot, opts ContainmentOptions) *ContainmentStage {
	return NewContainmentStage(ProvenanceSynonym, SynonymReferences(snap), opts)
}

// NewProductStage matches the snapshot's product names.
func NewProductStage(snap *dict.Snapshot, opts ContainmentOptions) *ContainmentStage {
	return NewContainmentStage(ProvenanceProduct, ProductReferences(snap), opts)
}

// NewExternalStage matches the snapshot's external identifiers.
func NewExternalStage(snap *dict.Snapshot, opts ContainmentOptions) *ContainmentStage {
	return NewContainmentStage(ProvenanceExternal, IdentifierReferences(snap), opts)
}

func (s *ContainmentStage) Name() Provenance { return s.stage }

func (s *ContainmentStage) Match(ctx context.Context, records []trial.InterventionRecord) (StageResult, error) {
	start := time.Now()
	for _, ref := range s.refs {
		if len(ref.Targets) == 0 {
			return StageResult{}, fmt.Errorf("%s stage: %q resolves to no drug: %w", s.stage, ref.Pattern, ErrInvariant)
		}
	}

	perRef := make([][]Mapping, len(s.refs))
	err := forEach(ctx, len(s.refs), s.opts.Workers, func(i int) {
		var found []Mapping
		seen := make(map[string]bool)
		for _, rec := range records {
			if seen[rec.TrialID] || !s.matcher.Matches(i, rec.Text) {
				continue
			}
			seen[rec.TrialID] = true
			for _, tgt := range s.refs[i].Targets {
				found = append(found, Mapping{
					TrialID:          rec.TrialID,
					DrugID:           tgt.DrugID,
					Name:             tgt.Name,
					InterventionType: trial.TypeDrug,
					Provenance:       s.stage,
				})
			}
		}
		perRef[i] = found
	})
	if err != nil {
		return StageResult{}, fmt.Errorf("%s stage: %w", s.stage, err)
	}

	var matched []Mapping
	for _, ms := range perRef {
		matched = append(matched, ms...)
	}
	res := finish(s.stage, records, matched, StageReport{
		References:      len(s.refs),
		InvalidPatterns: s.matcher.Invalid(),
	})
	res.Report.Duration = time.Since(start)
	return res, nil
}

// SynonymReferences groups the synonym table by synonym string.
func SynonymReferences(snap *dict.Snapshot) []Reference {
	var refs []Reference
	for _, syn := range snap.Synonyms {
		refs = appendTarget(refs, syn.Synonym, Target{DrugID: syn.DrugID, Name: syn.Name})
	}
	return refs
}

// ProductReferences groups the product table by product name; a combination
// product yields one reference with several targets.
func ProductReferences(snap *dict.Snapshot) []Reference {
	var refs []Reference
	for _, p := range snap.Products {
		id := p.DrugID
		if canonical, ok := snap.DrugID(p.Name); ok {
			id = canonical
		}
		refs = appendTarget(refs, p.ProductName, Target{DrugID: id, Name: p.Name})
	}
	return refs
}

// IdentifierReferences groups the external identifier table by alias.
func IdentifierReferences(snap *dict.Snapshot) []Reference {
	var refs []Reference
	for _, ident := range snap.Identifiers {
		refs = appendTarget(refs, ident.IdentifierName, Target{DrugID: ident.DrugID, Name: ident.Name})
	}
	return refs
}

// appendTarget relies on the snapshot tables being sorted by pattern.
func appendTarget(refs []Reference, pattern string, tgt Target) []Reference {
	if n := len(refs); n > 0 && refs[n-1].Pattern == pattern {
		for _, existing := range refs[n-1].Targets {
			if existing.Name == tgt.Name {
				return refs
			}
		}
		refs[n-1].Targets = append(refs[n-1].Targets, tgt)
		return refs
	}
	return append(refs, Reference{Pattern: pattern, Targets: []Target{tgt}})
}
