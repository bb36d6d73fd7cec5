// Package scoring computes the composite 0-100 risk score for a provider.
// It aggregates per-finding severity, signal breadth and overpayment
// exposure into a single score and tier.
package scoring

import (
	"math"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Factor names, in the order they appear on a RiskScore.
const (
	FactorSignalBreadth    = "signal_breadth"
	FactorSeverityWeight   = "severity_weight"
	FactorOverpaymentRatio = "overpayment_ratio"
)

// Caps for each additive factor.
const (
	breadthPerSignal = 12.0
	maxBreadth       = 30.0
	maxSeverity      = 40.0
	maxOverpayment   = 30.0
	maxScore         = 100.0

	defaultSeverityWeight = 1.0
	defaultSignalWeight   = 3.0
)

// Tier thresholds
const (
	criticalThreshold = 75.0
	highThreshold     = 50.0
	mediumThreshold   = 25.0
)

var severityWeights = map[domain.Severity]float64{
	domain.SeverityCritical: 10,
	domain.SeverityHigh:     7,
	domain.SeverityMedium:   4,
	domain.SeverityLow:      1,
}

// Inherent risk of each detector. Types not listed weigh 3.
var signalWeights = map[domain.SignalType]float64{
	domain.SignalExcludedProvider:           10,
	domain.SignalWorkforceImpossibility:     8,
	domain.SignalUpcoding:                   7,
	domain.SignalRapidEscalation:            7,
	domain.SignalPhantomServicingHub:        7,
	domain.SignalConcurrentBilling:          6,
	domain.SignalBurstEnrollmentNetwork:     6,
	domain.SignalCoordinatedBillingRamp:     6,
	domain.SignalNetworkBeneficiaryDilution: 6,
	domain.SignalPhantomServicingSpread:     6,
	domain.SignalBillingBustOut:             6,
	domain.SignalBillingOutlier:             5,
	domain.SignalSharedOfficial:             5,
	domain.SignalReimbursementRateAnomaly:   5,
	domain.SignalRepetitiveServiceAbuse:     5,
	domain.SignalAddressClustering:          4,
	domain.SignalGeographicImplausibility:   4,
	domain.SignalBillingMonoculture:         4,
	domain.SignalCaregiverDensityAnomaly:    4,
}

// SeverityWeight returns the weight of a severity. Unknown severities weigh 1.
func SeverityWeight(sev domain.Severity) float64 {
	if w, ok := severityWeights[sev]; ok {
		return w
	}
	return defaultSeverityWeight
}

// SignalWeight returns the inherent risk weight of a signal type.
func SignalWeight(signal domain.SignalType) float64 {
	if w, ok := signalWeights[signal]; ok {
		return w
	}
	return defaultSignalWeight
}

// Score computes the composite risk for one provider's findings.
// The result is a pure function of its inputs and never NaN or infinite.
func Score(findings []domain.Finding, totalPaid float64) domain.RiskScore {
	if len(findings) == 0 {
		return domain.RiskScore{Score: 0, Tier: domain.TierLow, Factors: []domain.RiskFactor{}}
	}

	types := make(map[domain.SignalType]struct{}, len(findings))
	severitySum := 0.0
	overpaymentSum := 0.0
	for _, f := range findings {
		types[f.SignalType] = struct{}{}
		severitySum += SeverityWeight(f.Severity) * SignalWeight(f.SignalType)
		overpaymentSum += finite(f.EstimatedOverpayment)
	}

	breadth := math.Min(float64(len(types))*breadthPerSignal, maxBreadth)
	severity := clamp(severitySum/2, 0, maxSeverity)

	// Negative sums must not pull the ratio below zero.
	if overpaymentSum < 0 {
		overpaymentSum = 0
	}
	ratio := 0.0
	if totalPaid > 0 && overpaymentSum > 0 {
		ratio = math.Min(overpaymentSum/totalPaid*100, maxOverpayment)
	}
	ratio = finite(ratio)

	score := domain.RoundTo(math.Min(breadth+severity+ratio, maxScore), 1)

	return domain.RiskScore{
		Score: score,
		Tier:  TierFor(score),
		Factors: []domain.RiskFactor{
			{Name: FactorSignalBreadth, Value: float64(len(types)), Points: breadth},
			{Name: FactorSeverityWeight, Value: domain.RoundTo(severitySum, 1), Points: domain.RoundTo(severity, 1)},
			{Name: FactorOverpaymentRatio, Value: domain.RoundCents(overpaymentSum), Points: domain.RoundTo(ratio, 1)},
		},
	}
}

// TierFor maps a score onto its tier.
func TierFor(score float64) domain.RiskTier {
	switch {
	case score >= criticalThreshold:
		return domain.TierCritical
	case score >= highThreshold:
		return domain.TierHigh
	case score >= mediumThreshold:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
