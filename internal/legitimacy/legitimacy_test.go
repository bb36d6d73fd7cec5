package legitimacy

import (
	"testing"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

func newFilter(t *testing.T) (*Matcher, *Filter) {
	t.Helper()
	m, err := DefaultMatcher()
	if err != nil {
		t.Fatalf("failed to build matcher: %v", err)
	}
	return m, NewFilter(m)
}

func record(npi, name string, findings ...domain.Finding) domain.ProviderRecord {
	return domain.ProviderRecord{NPI: npi, ProviderName: name, Signals: findings}
}

func finding(signal domain.SignalType, sev domain.Severity) domain.Finding {
	return domain.NewFinding("x", signal, sev, nil, 0)
}

func TestMatcher(t *testing.T) {
	m, _ := newFilter(t)

	legit := []string{"", "  ", "UNKNOWN", "Regents of the University of Minnesota", "WALGREEN CO", "Quest Diagnostics Inc", "Mayo Clinic", "DaVita Dialysis of Eagan", "Minneapolis Public Schools"}
	for _, name := range legit {
		if !m.IsKnownLegitimate(name) {
			t.Errorf("expected %q to be known legitimate", name)
		}
	}

	notLegit := []string{"Sunrise Home Care LLC", "Best Autism Services", "Hennepin County"}
	for _, name := range notLegit {
		if m.IsKnownLegitimate(name) {
			t.Errorf("expected %q not to be known legitimate", name)
		}
	}

	high := []string{"Hennepin County", "State of Minnesota", "Red Lake Band of Chippewa", "Navajo Nation", "Department of Human Services"}
	for _, name := range high {
		if !m.IsHighThreshold(name) {
			t.Errorf("expected %q to be high threshold", name)
		}
	}
	if m.IsHighThreshold("International Care Partners") {
		t.Error("expected word boundary to reject International")
	}
}

func TestNewMatcherInvalidPattern(t *testing.T) {
	_, err := NewMatcher(&Patterns{Legitimate: PatternSet{Patterns: []string{"(unclosed"}}})
	if err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestParsePatterns(t *testing.T) {
	p, err := ParsePatterns([]byte("version: 7\nlegitimate:\n  fragments: [\"Acme Health\"]\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Version != 7 {
		t.Errorf("expected version 7, got %d", p.Version)
	}
	m, err := NewMatcher(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.IsKnownLegitimate("ACME HEALTH OF OHIO") {
		t.Error("expected fragment match")
	}
	if m.IsHighThreshold("Any County") {
		t.Error("expected no high threshold patterns")
	}
}

func TestFilterApply(t *testing.T) {
	_, f := newFilter(t)

	records := []domain.ProviderRecord{
		record("1", "Sunrise Home Care LLC", finding(domain.SignalBillingOutlier, domain.SeverityMedium)),
		record("2", "Unknown", finding(domain.SignalExcludedProvider, domain.SeverityCritical)),
		record("3", "Mayo Clinic", finding(domain.SignalBillingOutlier, domain.SeverityHigh)),
		record("4", "Hennepin County",
			finding(domain.SignalBillingOutlier, domain.SeverityHigh),
			finding(domain.SignalUpcoding, domain.SeverityMedium),
			finding(domain.SignalAddressClustering, domain.SeverityMedium)),
		record("5", "Ramsey County",
			finding(domain.SignalBillingOutlier, domain.SeverityCritical),
			finding(domain.SignalUpcoding, domain.SeverityCritical),
			finding(domain.SignalAddressClustering, domain.SeverityCritical)),
		record("6", "White Earth Nation",
			finding(domain.SignalBillingOutlier, domain.SeverityHigh),
			finding(domain.SignalBillingOutlier, domain.SeverityHigh)),
	}

	res := f.Apply(records)

	if len(res.Kept) != 2 {
		t.Fatalf("expected 2 kept, got %d", len(res.Kept))
	}
	if res.Kept[0].NPI != "1" || res.Kept[1].NPI != "4" {
		t.Errorf("expected kept [1 4], got [%s %s]", res.Kept[0].NPI, res.Kept[1].NPI)
	}
	if res.HighThresholdKept != 1 {
		t.Errorf("expected 1 high threshold kept, got %d", res.HighThresholdKept)
	}
	reasons := res.ReasonCounts()
	if reasons[ReasonKnownLegitimate] != 2 {
		t.Errorf("expected 2 known legitimate exclusions, got %d", reasons[ReasonKnownLegitimate])
	}
	// Critical alone does not satisfy the high-severity requirement.
	if reasons[ReasonHighThresholdEntity] != 2 {
		t.Errorf("expected 2 high threshold exclusions, got %d", reasons[ReasonHighThresholdEntity])
	}
}

func TestFilterIdempotent(t *testing.T) {
	_, f := newFilter(t)

	records := []domain.ProviderRecord{
		record("1", "Sunrise Home Care LLC", finding(domain.SignalBillingOutlier, domain.SeverityMedium)),
		record("2", "CVS Pharmacy", finding(domain.SignalBillingOutlier, domain.SeverityMedium)),
		record("3", "Hennepin County",
			finding(domain.SignalBillingOutlier, domain.SeverityHigh),
			finding(domain.SignalUpcoding, domain.SeverityMedium),
			finding(domain.SignalAddressClustering, domain.SeverityMedium)),
	}

	first := f.Apply(records)
	second := f.Apply(first.Kept)

	if len(second.Excluded) != 0 {
		t.Errorf("expected no exclusions on second pass, got %d", len(second.Excluded))
	}
	if len(second.Kept) != len(first.Kept) {
		t.Errorf("expected %d kept, got %d", len(first.Kept), len(second.Kept))
	}
}
