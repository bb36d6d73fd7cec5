package report

import (
	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/scoring"
)

const methodologyOverview = "Independent rule-based detectors run over Medicaid provider spending, " +
	"the NPPES registry and the OIG exclusion list. Each finding carries evidence, a severity and an " +
	"estimated overpayment. Findings are merged per billing NPI, scored, filtered against known " +
	"legitimate institutions and grouped into networks."

// Methodology documents the detectors that ran and the composite score.
func Methodology(signals map[domain.SignalType]domain.SignalMethodology) domain.Methodology {
	m := domain.Methodology{
		Overview: methodologyOverview,
		Signals:  make(map[domain.SignalType]domain.SignalMethodology, len(signals)),
		RiskScoring: domain.RiskScoringMethodology{
			Description: "Additive 0-100 score from three capped factors, rounded to one decimal.",
			Factors: []string{
				scoring.FactorSignalBreadth + ": 12 points per distinct signal type, max 30",
				scoring.FactorSeverityWeight + ": sum of severity weight x signal weight, halved, max 40",
				scoring.FactorOverpaymentRatio + ": estimated overpayment as a percent of total billing, max 30",
			},
			Tiers: map[domain.RiskTier]string{
				domain.TierCritical: "score >= 75",
				domain.TierHigh:     "50 <= score < 75",
				domain.TierMedium:   "25 <= score < 50",
				domain.TierLow:      "score < 25",
			},
		},
	}
	for s, d := range signals {
		m.Signals[s] = d
	}
	return m
}
