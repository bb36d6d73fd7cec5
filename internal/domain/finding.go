package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity is the detector-assigned severity of a single finding.
// It is never recomputed downstream.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities: critical=4, high=3, medium=2, low=1.
// Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity normalizes a severity string.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", fmt.Errorf("unknown severity: %q", s)
	}
	return sev, nil
}

// SignalType names the detector that produced a finding.
// The set is open: new detectors may emit types with no constant here.
type SignalType string

const (
	SignalExcludedProvider           SignalType = "excluded_provider"
	SignalBillingOutlier             SignalType = "billing_outlier"
	SignalRapidEscalation            SignalType = "rapid_escalation"
	SignalWorkforceImpossibility     SignalType = "workforce_impossibility"
	SignalSharedOfficial             SignalType = "shared_official"
	SignalGeographicImplausibility   SignalType = "geographic_implausibility"
	SignalAddressClustering          SignalType = "address_clustering"
	SignalUpcoding                   SignalType = "upcoding"
	SignalConcurrentBilling          SignalType = "concurrent_billing"
	SignalBurstEnrollmentNetwork     SignalType = "burst_enrollment_network"
	SignalCoordinatedBillingRamp     SignalType = "coordinated_billing_ramp"
	SignalPhantomServicingHub        SignalType = "phantom_servicing_hub"
	SignalNetworkBeneficiaryDilution SignalType = "network_beneficiary_dilution"
	SignalCaregiverDensityAnomaly    SignalType = "caregiver_density_anomaly"
	SignalRepetitiveServiceAbuse     SignalType = "repetitive_service_abuse"
	SignalBillingMonoculture         SignalType = "billing_monoculture"
	SignalBillingBustOut             SignalType = "billing_bust_out"
	SignalReimbursementRateAnomaly   SignalType = "reimbursement_rate_anomaly"
	SignalPhantomServicingSpread     SignalType = "phantom_servicing_spread"
)

// KnownSignalTypes returns every signal type in canonical detector order.
func KnownSignalTypes() []SignalType {
	return []SignalType{
		SignalExcludedProvider,
		SignalBillingOutlier,
		SignalRapidEscalation,
		SignalWorkforceImpossibility,
		SignalSharedOfficial,
		SignalGeographicImplausibility,
		SignalAddressClustering,
		SignalUpcoding,
		SignalConcurrentBilling,
		SignalBurstEnrollmentNetwork,
		SignalCoordinatedBillingRamp,
		SignalPhantomServicingHub,
		SignalNetworkBeneficiaryDilution,
		SignalCaregiverDensityAnomaly,
		SignalRepetitiveServiceAbuse,
		SignalBillingMonoculture,
		SignalBillingBustOut,
		SignalReimbursementRateAnomaly,
		SignalPhantomServicingSpread,
	}
}

// Finding is one detector's output for one provider.
type Finding struct {
	NPI                  string     `json:"npi"`
	SignalType           SignalType `json:"signal_type"`
	Severity             Severity   `json:"severity"`
	Evidence             Evidence   `json:"evidence"`
	EstimatedOverpayment float64    `json:"estimated_overpayment_usd"`
}

// NewFinding builds a finding with the overpayment clamped at zero.
func NewFinding(npi string, signal SignalType, sev Severity, ev Evidence, overpayment float64) Finding {
	if ev == nil {
		ev = NewGenericEvidence()
	}
	return Finding{
		NPI:                  npi,
		SignalType:           signal,
		Severity:             sev,
		Evidence:             ev,
		EstimatedOverpayment: ClampOverpayment(overpayment),
	}
}

// UnmarshalJSON decodes the evidence into the concrete type for the signal.
func (f *Finding) UnmarshalJSON(data []byte) error {
	var raw struct {
		NPI                  string          `json:"npi"`
		SignalType           SignalType      `json:"signal_type"`
		Severity             Severity        `json:"severity"`
		Evidence             json.RawMessage `json:"evidence"`
		EstimatedOverpayment float64         `json:"estimated_overpayment_usd"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ev, err := DecodeEvidence(raw.SignalType, raw.Evidence)
	if err != nil {
		return fmt.Errorf("finding %s/%s: %w", raw.NPI, raw.SignalType, err)
	}

	*f = Finding{
		NPI:                  raw.NPI,
		SignalType:           raw.SignalType,
		Severity:             raw.Severity,
		Evidence:             ev,
		EstimatedOverpayment: raw.EstimatedOverpayment,
	}
	return nil
}

// DetectorResults holds every detector's findings keyed by signal type,
// with Order recording the canonical run order.
type DetectorResults struct {
	Order    []SignalType
	Findings map[SignalType][]Finding
	Errors   map[SignalType]error
}

// NewDetectorResults creates an empty result set.
func NewDetectorResults() *DetectorResults {
	return &DetectorResults{
		Findings: make(map[SignalType][]Finding),
		Errors:   make(map[SignalType]error),
	}
}

// Add records the output of one detector.
func (r *DetectorResults) Add(signal SignalType, findings []Finding, err error) {
	if _, seen := r.Findings[signal]; !seen {
		r.Order = append(r.Order, signal)
	}
	if err != nil {
		r.Errors[signal] = err
		findings = nil
	}
	if findings == nil {
		findings = []Finding{}
	}
	r.Findings[signal] = findings
}

// All flattens findings in detector order, preserving emission order.
func (r *DetectorResults) All() []Finding {
	var out []Finding
	for _, signal := range r.Order {
		out = append(out, r.Findings[signal]...)
	}
	return out
}

// Counts returns the raw finding count per signal type.
// Failed detectors report 0.
func (r *DetectorResults) Counts() map[SignalType]int {
	counts := make(map[SignalType]int, len(r.Order))
	for _, signal := range r.Order {
		counts[signal] = len(r.Findings[signal])
	}
	return counts
}
