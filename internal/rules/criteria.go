package rules

import (
	"fmt"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Actionability failure reasons
const (
	ReasonPeakTier     = "peak_tier_below_high"
	ReasonOverpayment  = "below_overpayment_threshold"
	ReasonMembership   = "solo_network_insufficient"
	ReasonEraDominated = "covid_era_dominated"
	ReasonSingleSignal = "single_signal_type"
)

// Thresholds parameterizes the actionability criteria.
type Thresholds struct {
	MinOverpayment     float64
	SoloMinOverpayment float64
	MaxCovidEraRatio   float64
}

// DefaultThresholds returns the standard investigative cost/benefit bars.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinOverpayment:     500_000,
		SoloMinOverpayment: 5_000_000,
		MaxCovidEraRatio:   0.75,
	}
}

// ActionabilityCriteria builds the five network criteria.
func ActionabilityCriteria(t Thresholds) []domain.Criterion {
	return []domain.Criterion{
		{
			ID:          "peak_tier",
			Description: "At least one member is high or critical risk",
			Expression:  `peak_risk_tier in ["critical", "high"]`,
			Reason:      ReasonPeakTier,
		},
		{
			ID:          "min_overpayment",
			Description: "Combined overpayment covers the cost of an investigation",
			Expression:  fmt.Sprintf("combined_overpayment >= %s", celDouble(t.MinOverpayment)),
			Reason:      ReasonOverpayment,
		},
		{
			ID:          "membership",
			Description: "Two or more members, or a solo provider with corroborated very high value",
			Expression: fmt.Sprintf(
				"member_count >= 2 || (member_count == 1 && signal_type_count >= 2 && combined_overpayment > %s)",
				celDouble(t.SoloMinOverpayment),
			),
			Reason: ReasonMembership,
		},
		{
			ID:          "era_dominated",
			Description: "Evidence is not mostly explained by the public health emergency",
			Expression:  fmt.Sprintf("finding_count == 0 || covid_era_ratio < %s", celDouble(t.MaxCovidEraRatio)),
			Reason:      ReasonEraDominated,
		},
		{
			ID:          "corroboration",
			Description: "Two or more distinct signal types",
			Expression:  "signal_type_count >= 2",
			Reason:      ReasonSingleSignal,
		},
	}
}

// DefaultActionabilityCriteria returns the criteria at default thresholds.
func DefaultActionabilityCriteria() []domain.Criterion {
	return ActionabilityCriteria(DefaultThresholds())
}

// NewActionabilityEngine returns an engine loaded with the criteria for t.
func NewActionabilityEngine(t Thresholds) (*Engine, error) {
	e, err := NewEngine()
	if err != nil {
		return nil, err
	}
	if err := e.LoadCriteria(ActionabilityCriteria(t)); err != nil {
		return nil, err
	}
	return e, nil
}

// celDouble formats v as a CEL double literal.
func celDouble(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
