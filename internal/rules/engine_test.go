package rules

import (
	"testing"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.CriteriaCount() != 0 {
		t.Errorf("expected 0 criteria, got %d", engine.CriteriaCount())
	}
}

func TestLoadCriteria(t *testing.T) {
	engine, _ := NewEngine()

	t.Run("Valid", func(t *testing.T) {
		err := engine.LoadCriteria(DefaultActionabilityCriteria())
		if err != nil {
			t.Fatalf("failed to load criteria: %v", err)
		}
		if engine.CriteriaCount() != 5 {
			t.Errorf("expected 5 criteria, got %d", engine.CriteriaCount())
		}
	})

	t.Run("InvalidSyntax", func(t *testing.T) {
		err := engine.LoadCriteria([]domain.Criterion{{ID: "bad", Expression: "this is not valid CEL !!!"}})
		if err == nil {
			t.Error("expected error for invalid expression")
		}
		if engine.CriteriaCount() != 5 {
			t.Errorf("expected previous criteria kept, got %d", engine.CriteriaCount())
		}
	})

	t.Run("NonBool", func(t *testing.T) {
		err := engine.Validate(domain.Criterion{ID: "double", Expression: "combined_overpayment * 2.0"})
		if err == nil {
			t.Error("expected error for non-bool expression")
		}
	})

	t.Run("UnknownVariable", func(t *testing.T) {
		err := engine.Validate(domain.Criterion{ID: "unknown", Expression: "amount > 1.0"})
		if err == nil {
			t.Error("expected error for undeclared variable")
		}
	})
}

func TestActionability(t *testing.T) {
	engine, err := NewActionabilityEngine(DefaultThresholds())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	tests := []struct {
		name    string
		vars    Vars
		allowed bool
		reasons []string
	}{
		{
			name:    "SoloHighValue",
			vars:    Vars{PeakRiskTier: domain.TierCritical, CombinedOverpayment: 6_000_000, MemberCount: 1, SignalTypeCount: 2, FindingCount: 2},
			allowed: true,
		},
		{
			name:    "SoloBelowCorroborationBar",
			vars:    Vars{PeakRiskTier: domain.TierCritical, CombinedOverpayment: 4_000_000, MemberCount: 1, SignalTypeCount: 2, FindingCount: 2},
			reasons: []string{ReasonMembership},
		},
		{
			name:    "LowTierNeverActionable",
			vars:    Vars{PeakRiskTier: domain.TierLow, CombinedOverpayment: 1e9, MemberCount: 10, SignalTypeCount: 4, FindingCount: 20},
			reasons: []string{ReasonPeakTier},
		},
		{
			name:    "MultiMemberAtThreshold",
			vars:    Vars{PeakRiskTier: domain.TierHigh, CombinedOverpayment: 500_000, MemberCount: 3, SignalTypeCount: 2, FindingCount: 6},
			allowed: true,
		},
		{
			name:    "BelowOverpayment",
			vars:    Vars{PeakRiskTier: domain.TierHigh, CombinedOverpayment: 499_999.99, MemberCount: 3, SignalTypeCount: 2, FindingCount: 6},
			reasons: []string{ReasonOverpayment},
		},
		{
			name:    "EraDominated",
			vars:    Vars{PeakRiskTier: domain.TierHigh, CombinedOverpayment: 900_000, MemberCount: 4, SignalTypeCount: 2, FindingCount: 4, CovidEraFindingCount: 3},
			reasons: []string{ReasonEraDominated},
		},
		{
			name:    "EraBelowRatio",
			vars:    Vars{PeakRiskTier: domain.TierHigh, CombinedOverpayment: 900_000, MemberCount: 4, SignalTypeCount: 2, FindingCount: 5, CovidEraFindingCount: 3},
			allowed: true,
		},
		{
			name:    "SingleSignal",
			vars:    Vars{PeakRiskTier: domain.TierCritical, CombinedOverpayment: 900_000, MemberCount: 4, SignalTypeCount: 1, FindingCount: 4},
			reasons: []string{ReasonSingleSignal},
		},
		{
			name:    "EverythingFails",
			vars:    Vars{PeakRiskTier: domain.TierMedium, MemberCount: 1, SignalTypeCount: 1, FindingCount: 1, CovidEraFindingCount: 1},
			reasons: []string{ReasonPeakTier, ReasonOverpayment, ReasonMembership, ReasonEraDominated, ReasonSingleSignal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, reasons := engine.Allows(tt.vars)
			if allowed != tt.allowed {
				t.Errorf("expected allowed=%v, got %v (reasons %v)", tt.allowed, allowed, reasons)
			}
			if len(reasons) != len(tt.reasons) {
				t.Fatalf("expected reasons %v, got %v", tt.reasons, reasons)
			}
			for i := range reasons {
				if reasons[i] != tt.reasons[i] {
					t.Errorf("expected reason %s at %d, got %s", tt.reasons[i], i, reasons[i])
				}
			}
		})
	}
}

func TestEvaluateOrder(t *testing.T) {
	engine, _ := NewActionabilityEngine(DefaultThresholds())
	results := engine.Evaluate(Vars{PeakRiskTier: domain.TierHigh})
	want := []string{"peak_tier", "min_overpayment", "membership", "era_dominated", "corroboration"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, r := range results {
		if r.CriterionID != want[i] {
			t.Errorf("expected %s at %d, got %s", want[i], i, r.CriterionID)
		}
	}
	if !results[0].Passed() {
		t.Error("expected peak_tier to pass for high tier")
	}
}
