// Package placebo tags placebo-controlled trials with the comparator drug the
// placebo arm was matched to.
package placebo

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules is the ordered exclusion filter applied to placebo interventions.
// A record is dropped when any rule matches.
type Rules struct {
	// Contains drops texts holding any of these substrings.
	Contains []string `yaml:"contains"`
	// Prefixes drops texts starting with any of these.
	Prefixes []string `yaml:"prefixes"`
	// Suffixes drops texts ending with any of these.
	Suffixes []string `yaml:"suffixes"`
	// Exact drops texts equal to any of these. This list is curated per corpus.
	Exact []string `yaml:"exact"`
}

// DefaultRules returns the structural combination-phrasing rules. The exact
// denylist is empty; load it with LoadRules.
func DefaultRules() Rules {
	return Rules{
		Contains: []string{"placebo for", "placebo (for", "placebo to", "placebo of"},
		Prefixes: []string{
			"placebo+", "placebo +", "placebo plus", "plus placebo",
			"placebo and", "placebo or", "placebo matching", "placebo replacement",
			"placebo matched", "placebo /", "placebo/",
		},
		Suffixes: []string{
			"+placebo", "+ placebo", "and placebo", "or placebo",
			"then placebo", "matching placebo", "/ placebo", "/placebo",
		},
	}
}

// LoadRules reads a YAML rules file over DefaultRules. Lists present in the
// file replace the defaults; absent lists keep them.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read placebo rules: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parse placebo rules: %w", err)
	}
	return rules, nil
}

// Reason names the rule family that excluded a text.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonContains Reason = "contains"
	ReasonPrefix   Reason = "prefix"
	ReasonSuffix   Reason = "suffix"
	ReasonExact    Reason = "exact"
)

// compiled is Rules with the exact list indexed.
type compiled struct {
	Rules
	exact map[string]bool
}

func (r Rules) compile() compiled {
	c := compiled{Rules: r, exact: make(map[string]bool, len(r.Exact))}
	for _, e := range r.Exact {
		c.exact[e] = true
	}
	return c
}

// exclude applies the rule families in order and returns the first that hits.
func (c compiled) exclude(text string) Reason {
	for _, s := range c.Contains {
		if strings.Contains(text, s) {
			return ReasonContains
		}
	}
	for _, p := range c.Prefixes {
		if strings.HasPrefix(text, p) {
			return ReasonPrefix
		}
	}
	for _, s := range c.Suffixes {
		if strings.HasSuffix(text, s) {
			return ReasonSuffix
		}
	}
	if c.exact[text] {
		return ReasonExact
	}
	return ReasonNone
}
