package domain

// Report versions. SchemaVersion changes whenever a field is renamed or
// re-nested, since persisted reports feed the network-only derivation.
const (
	ToolVersion   = "3.0.0"
	SchemaVersion = "2"
)

// Report is the single output artifact of a scan.
type Report struct {
	GeneratedAt           string                `json:"generated_at"`
	ToolVersion           string                `json:"tool_version"`
	SchemaVersion         string                `json:"schema_version"`
	RunID                 string                `json:"run_id"`
	TotalProvidersScanned int64                 `json:"total_providers_scanned"`
	TotalProvidersFlagged int                   `json:"total_providers_flagged"`
	SignalCounts          map[SignalType]int    `json:"signal_counts"`
	DetectorErrors        map[SignalType]string `json:"detector_errors,omitempty"`
	FlaggedProviders      []ProviderRecord      `json:"flagged_providers"`
	ExecutiveSummary      ExecutiveSummary      `json:"executive_summary"`
	NetworkAnalysis       NetworkAnalysis       `json:"network_analysis"`
	FilterSummary         FilterSummary         `json:"filter_summary"`
	CrossSignalAnalysis   CrossSignalAnalysis   `json:"cross_signal_analysis"`
	Methodology           Methodology           `json:"methodology"`
}

// ExecutiveSummary aggregates the flagged provider list.
type ExecutiveSummary struct {
	TotalProvidersScanned     int64             `json:"total_providers_scanned"`
	TotalProvidersFlagged     int               `json:"total_providers_flagged"`
	TotalEstimatedOverpayment float64           `json:"total_estimated_overpayment_usd"`
	RiskTierDistribution      map[RiskTier]int  `json:"risk_tier_distribution"`
	TopStatesByFlags          []StateCount      `json:"top_states_by_flags"`
	SignalTypeSummary         []SignalCount     `json:"signal_type_summary"`
	HighestRiskProviders      []ProviderSummary `json:"highest_risk_providers"`
}

// StateCount is a flag count for one state.
type StateCount struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// SignalCount is a raw finding count for one signal type.
type SignalCount struct {
	Signal SignalType `json:"signal"`
	Count  int        `json:"count"`
}

// ProviderSummary is a condensed provider row for the summary tables.
type ProviderSummary struct {
	NPI                  string   `json:"npi"`
	ProviderName         string   `json:"provider_name"`
	RiskScore            float64  `json:"risk_score"`
	RiskTier             RiskTier `json:"risk_tier"`
	SignalCount          int      `json:"signal_count"`
	EstimatedOverpayment float64  `json:"estimated_overpayment_usd"`
}

// FilterSummary records how many providers each stage removed.
type FilterSummary struct {
	ProvidersWithFindings int            `json:"providers_with_findings"`
	LegitimateExcluded    int            `json:"legitimate_excluded"`
	HighThresholdExcluded int            `json:"high_threshold_excluded"`
	HighThresholdKept     int            `json:"high_threshold_kept"`
	SelectionDropped      int            `json:"selection_dropped"`
	ExclusionReasons      map[string]int `json:"exclusion_reasons,omitempty"`
}

// CrossSignalAnalysis describes providers hit by several detectors.
type CrossSignalAnalysis struct {
	TotalUniqueProvidersFlagged int                 `json:"total_unique_providers_flagged"`
	ProvidersBySignalCount      map[string]int      `json:"providers_by_signal_count"`
	MultiSignalProviders        map[string][]string `json:"multi_signal_providers"`
	TopSignalPairs              []SignalPair        `json:"top_signal_pairs"`
}

// SignalPair is a co-occurrence count for two signal types.
type SignalPair struct {
	Pair  [2]SignalType `json:"pair"`
	Count int           `json:"count"`
}

// Methodology documents how each signal and the score are computed.
type Methodology struct {
	Overview    string                           `json:"overview"`
	Signals     map[SignalType]SignalMethodology `json:"signals"`
	RiskScoring RiskScoringMethodology           `json:"risk_scoring"`
}

// SignalMethodology documents one detector.
type SignalMethodology struct {
	Description      string `json:"description"`
	Methodology      string `json:"methodology"`
	OverpaymentBasis string `json:"overpayment_basis"`
	Threshold        string `json:"threshold"`
}

// RiskScoringMethodology documents the composite score.
type RiskScoringMethodology struct {
	Description string              `json:"description"`
	Factors     []string            `json:"factors"`
	Tiers       map[RiskTier]string `json:"tiers"`
}
