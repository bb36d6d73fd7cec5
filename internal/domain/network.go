package domain

// NetworkCategory describes what links the members of a network.
type NetworkCategory string

const (
	NetworkSharedController NetworkCategory = "shared_controller"
	NetworkServicingHub     NetworkCategory = "servicing_hub"
	NetworkAddressCluster   NetworkCategory = "address_cluster"
	NetworkEnrollmentBurst  NetworkCategory = "enrollment_burst"
	NetworkStandalone       NetworkCategory = "standalone"
)

// NetworkMember is a provider's footprint inside a network.
type NetworkMember struct {
	NPI                  string   `json:"npi"`
	ProviderName         string   `json:"provider_name"`
	State                string   `json:"state"`
	RiskScore            float64  `json:"risk_score"`
	RiskTier             RiskTier `json:"risk_tier"`
	TotalPaid            float64  `json:"total_paid_all_time"`
	EstimatedOverpayment float64  `json:"estimated_overpayment_usd"`
}

// NetworkRecord groups providers that share a network key.
type NetworkRecord struct {
	NetworkKey           string          `json:"network_key"`
	Label                string          `json:"label"`
	Category             NetworkCategory `json:"category"`
	Members              []NetworkMember `json:"members"`
	MemberCount          int             `json:"member_count"`
	CombinedBilled       float64         `json:"combined_billed"`
	CombinedOverpayment  float64         `json:"combined_overpayment"`
	SignalTypesPresent   []SignalType    `json:"signal_types_present"`
	PeakRiskTier         RiskTier        `json:"peak_risk_tier"`
	FindingCount         int             `json:"finding_count"`
	CovidEraFindingCount int             `json:"covid_era_finding_count"`
	Actionable           bool            `json:"actionable"`
}

// BelowThresholdSummary retains the volume of networks filtered out for
// cost/benefit reasons.
type BelowThresholdSummary struct {
	Count               int            `json:"count"`
	CombinedOverpayment float64        `json:"combined_overpayment"`
	ReasonCounts        map[string]int `json:"reason_counts"`
}

// NetworkAnalysis is the network view of a report.
type NetworkAnalysis struct {
	TotalNetworks         int                   `json:"total_networks"`
	ActionableCount       int                   `json:"actionable_count"`
	ActionableOverpayment float64               `json:"actionable_overpayment"`
	Networks              []NetworkRecord       `json:"networks"`
	BelowThreshold        BelowThresholdSummary `json:"below_threshold"`
}
