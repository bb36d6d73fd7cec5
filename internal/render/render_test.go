package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

func sampleReport(providers int) *domain.Report {
	r := &domain.Report{
		GeneratedAt:   "2026-03-01T00:00:00Z",
		ToolVersion:   domain.ToolVersion,
		SchemaVersion: domain.SchemaVersion,
		RunID:         "run-1",
		ExecutiveSummary: domain.ExecutiveSummary{
			TotalProvidersScanned:     1234567,
			TotalProvidersFlagged:     providers,
			TotalEstimatedOverpayment: 9876543.21,
			RiskTierDistribution: map[domain.RiskTier]int{
				domain.TierCritical: 3, domain.TierHigh: 0, domain.TierMedium: 0, domain.TierLow: 0,
			},
			SignalTypeSummary: []domain.SignalCount{{Signal: domain.SignalExcludedProvider, Count: 2}},
			HighestRiskProviders: []domain.ProviderSummary{
				{NPI: "1", ProviderName: "<script>alert(1)</script>", RiskScore: 82, RiskTier: domain.TierCritical, SignalCount: 1, EstimatedOverpayment: 50000},
			},
		},
		NetworkAnalysis: domain.NetworkAnalysis{
			TotalNetworks:   2,
			ActionableCount: 1,
			Networks: []domain.NetworkRecord{
				{NetworkKey: "controller:X", Label: "Authorized official X", Category: domain.NetworkSharedController, MemberCount: 2, PeakRiskTier: domain.TierHigh},
			},
		},
	}
	for i := 0; i < providers; i++ {
		r.FlaggedProviders = append(r.FlaggedProviders, domain.ProviderRecord{
			NPI:           fmt.Sprintf("%010d", i),
			ProviderName:  fmt.Sprintf("Provider %d", i),
			CaseNarrative: "Narrative & details",
			RiskScore:     domain.RiskScore{Score: 82, Tier: domain.TierCritical},
			Signals:       []domain.Finding{domain.NewFinding("1", domain.SignalExcludedProvider, domain.SeverityCritical, nil, 0)},
			FCARelevance:  domain.ComplianceReference{ClaimType: "c", StatuteReference: "s", SuggestedNextSteps: []string{"step one"}},
		})
	}
	return r
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleReport(3)); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"<h1>Medicaid Fraud Signal Detection Report</h1>",
		"1,234,567",
		"$9,876,543",
		"background:#dc2626",
		"width:82.0%;background:#dc2626",
		"Authorized official X",
		"Narrative &amp; details",
		"<li>step one</li>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Error("expected provider names to be escaped")
	}
	if strings.Contains(out, "Showing top") {
		t.Error("expected no truncation note for 3 providers")
	}
}

func TestWriteHTMLTruncates(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleReport(60)); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if got := strings.Count(out, `<div class="provider-card`); got != MaxProviderCards {
		t.Errorf("expected %d provider cards, got %d", MaxProviderCards, got)
	}
	if !strings.Contains(out, "Showing top 50 of 60 flagged providers") {
		t.Error("expected truncation note")
	}
}

func TestWriteHTMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	if err := WriteHTMLFile(path, sampleReport(1)); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected non-empty html file")
	}
}

func TestTierColor(t *testing.T) {
	if TierColor(domain.TierHigh) != "#ea580c" {
		t.Errorf("expected #ea580c, got %s", TierColor(domain.TierHigh))
	}
	if TierColor("bogus") != "#64748b" {
		t.Errorf("expected default color, got %s", TierColor("bogus"))
	}
}
