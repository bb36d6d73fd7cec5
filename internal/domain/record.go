package domain

// RiskTier buckets a composite risk score.
type RiskTier string

const (
	TierCritical RiskTier = "critical"
	TierHigh     RiskTier = "high"
	TierMedium   RiskTier = "medium"
	TierLow      RiskTier = "low"
)

// Rank orders tiers: critical=4, high=3, medium=2, low=1.
func (t RiskTier) Rank() int {
	switch t {
	case TierCritical:
		return 4
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// AllTiers returns the tiers from highest to lowest.
func AllTiers() []RiskTier {
	return []RiskTier{TierCritical, TierHigh, TierMedium, TierLow}
}

// RiskFactor is one additive component of a composite score.
type RiskFactor struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Points float64 `json:"points"`
}

// RiskScore is the 0..100 composite risk for one provider.
type RiskScore struct {
	Score   float64      `json:"score"`
	Tier    RiskTier     `json:"tier"`
	Factors []RiskFactor `json:"factors"`
}

// ComplianceReference maps a provider's primary finding to False Claims
// Act metadata.
type ComplianceReference struct {
	ClaimType          string   `json:"claim_type"`
	StatuteReference   string   `json:"statute_reference"`
	SuggestedNextSteps []string `json:"suggested_next_steps"`
}

// Identity is reference-registry data for one NPI.
type Identity struct {
	NPI             string `json:"npi"`
	Name            string `json:"name"`
	EntityType      string `json:"entity_type"`
	TaxonomyCode    string `json:"taxonomy_code"`
	State           string `json:"state"`
	ZipCode         string `json:"zip_code"`
	EnumerationDate string `json:"enumeration_date"`
}

// Totals is all-time billing for one NPI.
type Totals struct {
	TotalPaid          float64 `json:"total_paid"`
	TotalClaims        int64   `json:"total_claims"`
	TotalBeneficiaries int64   `json:"total_beneficiaries"`
}

// ProviderRecord is one flagged provider merged across every finding that
// named it. Records are built once and never mutated afterwards.
type ProviderRecord struct {
	NPI                  string              `json:"npi"`
	ProviderName         string              `json:"provider_name"`
	EntityType           string              `json:"entity_type"`
	TaxonomyCode         string              `json:"taxonomy_code"`
	State                string              `json:"state"`
	EnumerationDate      string              `json:"enumeration_date"`
	TotalPaid            float64             `json:"total_paid_all_time"`
	TotalClaims          int64               `json:"total_claims_all_time"`
	TotalBeneficiaries   int64               `json:"total_unique_beneficiaries_all_time"`
	Signals              []Finding           `json:"signals"`
	EstimatedOverpayment float64             `json:"estimated_overpayment_usd"`
	RiskScore            RiskScore           `json:"risk_score"`
	CaseNarrative        string              `json:"case_narrative"`
	FCARelevance         ComplianceReference `json:"fca_relevance"`
}

// SignalTypes returns the distinct signal types in first-appearance order.
func (r *ProviderRecord) SignalTypes() []SignalType {
	seen := make(map[SignalType]bool, len(r.Signals))
	var types []SignalType
	for _, f := range r.Signals {
		if !seen[f.SignalType] {
			seen[f.SignalType] = true
			types = append(types, f.SignalType)
		}
	}
	return types
}

// HasSignal reports whether any finding has the given type.
func (r *ProviderRecord) HasSignal(signal SignalType) bool {
	for _, f := range r.Signals {
		if f.SignalType == signal {
			return true
		}
	}
	return false
}

// HasSeverity reports whether any finding has the given severity.
func (r *ProviderRecord) HasSeverity(sev Severity) bool {
	for _, f := range r.Signals {
		if f.Severity == sev {
			return true
		}
	}
	return false
}
