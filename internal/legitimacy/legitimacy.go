// Package legitimacy removes flagged providers whose names match known
// legitimate institutions, and gates government or tribal entities behind
// stronger evidence.
package legitimacy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Exclusion reasons
const (
	ReasonKnownLegitimate     = "known_legitimate"
	ReasonHighThresholdEntity = "high_threshold_insufficient_evidence"
)

// High-threshold entities are kept only with this many distinct signal types.
const minHighThresholdSignals = 3

// Matcher classifies provider names. It is safe for concurrent use.
type Matcher struct {
	legitimate    *regexp.Regexp
	fragments     []string
	highThreshold *regexp.Regexp
}

// NewMatcher compiles each pattern class into one alternation.
func NewMatcher(p *Patterns) (*Matcher, error) {
	if p == nil {
		return nil, fmt.Errorf("nil patterns")
	}

	legit, err := compile(p.Legitimate.Patterns)
	if err != nil {
		return nil, fmt.Errorf("legitimate patterns: %w", err)
	}
	high, err := compile(p.HighThreshold.Patterns)
	if err != nil {
		return nil, fmt.Errorf("high threshold patterns: %w", err)
	}

	m := &Matcher{legitimate: legit, highThreshold: high}
	for _, f := range p.Legitimate.Fragments {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			m.fragments = append(m.fragments, f)
		}
	}
	return m, nil
}

// DefaultMatcher compiles the embedded patterns.
func DefaultMatcher() (*Matcher, error) {
	p, err := DefaultPatterns()
	if err != nil {
		return nil, err
	}
	return NewMatcher(p)
}

func compile(patterns []string) (*regexp.Regexp, error) {
	var parts []string
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		parts = append(parts, "(?:"+p+")")
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return regexp.Compile("(?i)" + strings.Join(parts, "|"))
}

// IsKnownLegitimate reports whether name is empty, unknown, or matches a
// legitimate institution pattern or fragment.
func (m *Matcher) IsKnownLegitimate(name string) bool {
	n := strings.TrimSpace(name)
	if n == "" || strings.EqualFold(n, "unknown") {
		return true
	}
	if m.legitimate != nil && m.legitimate.MatchString(n) {
		return true
	}
	lower := strings.ToLower(n)
	for _, f := range m.fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// IsHighThreshold reports whether name looks like a government or tribal entity.
func (m *Matcher) IsHighThreshold(name string) bool {
	return m.highThreshold != nil && m.highThreshold.MatchString(name)
}

// Exclusion is one record removed by the filter.
type Exclusion struct {
	Record domain.ProviderRecord
	Reason string
}

// Result partitions records into kept and excluded.
type Result struct {
	Kept              []domain.ProviderRecord
	Excluded          []Exclusion
	HighThresholdKept int
}

// ReasonCounts tallies exclusions by reason.
func (r Result) ReasonCounts() map[string]int {
	counts := make(map[string]int)
	for _, e := range r.Excluded {
		counts[e.Reason]++
	}
	return counts
}

// Filter applies the two-tier legitimacy policy.
type Filter struct {
	matcher *Matcher
}

// NewFilter creates a filter over a compiled matcher.
func NewFilter(m *Matcher) *Filter {
	return &Filter{matcher: m}
}

// Apply partitions records, preserving input order in both buckets.
// Known-legitimate names are checked first and always excluded.
func (f *Filter) Apply(records []domain.ProviderRecord) Result {
	res := Result{Kept: make([]domain.ProviderRecord, 0, len(records))}
	for _, rec := range records {
		if f.matcher.IsKnownLegitimate(rec.ProviderName) {
			res.Excluded = append(res.Excluded, Exclusion{Record: rec, Reason: ReasonKnownLegitimate})
			continue
		}
		if f.matcher.IsHighThreshold(rec.ProviderName) {
			if exceptional(rec) {
				res.Kept = append(res.Kept, rec)
				res.HighThresholdKept++
			} else {
				res.Excluded = append(res.Excluded, Exclusion{Record: rec, Reason: ReasonHighThresholdEntity})
			}
			continue
		}
		res.Kept = append(res.Kept, rec)
	}
	return res
}

func exceptional(rec domain.ProviderRecord) bool {
	return len(rec.SignalTypes()) >= minHighThresholdSignals && rec.HasSeverity(domain.SeverityHigh)
}
