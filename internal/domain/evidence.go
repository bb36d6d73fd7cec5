package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Evidence is the detector-specific payload of a finding.
// The set of implementations is closed: one struct per narrated signal
// kind plus GenericEvidence for detector types without a schema.
type Evidence interface {
	// Locale returns the state and taxonomy hints carried by the evidence.
	Locale() Locale

	// CovidEra reports whether the detector marked the finding as falling
	// inside the 2020-03..2021-12 public health emergency window.
	CovidEra() bool

	evidence()
}

// Locale holds identity override hints taken from evidence.
type Locale struct {
	State        string
	TaxonomyCode string
}

// ExcludedProviderEvidence backs excluded_provider findings.
type ExcludedProviderEvidence struct {
	ExclusionDate             string  `json:"exclusion_date"`
	ExclusionType             string  `json:"exclusion_type"`
	ProviderName              string  `json:"provider_name"`
	TotalPaidAfterExclusion   float64 `json:"total_paid_after_exclusion"`
	TotalClaimsAfterExclusion int64   `json:"total_claims_after_exclusion"`
	FirstClaimAfterExclusion  string  `json:"first_claim_after_exclusion"`
	LastClaimAfterExclusion   string  `json:"last_claim_after_exclusion"`
}

// BillingOutlierEvidence backs billing_outlier findings.
type BillingOutlierEvidence struct {
	TotalPaid          float64 `json:"total_paid"`
	TaxonomyCode       string  `json:"taxonomy_code"`
	State              string  `json:"state"`
	PeerMedian         float64 `json:"peer_median"`
	Peer99thPercentile float64 `json:"peer_99th_percentile"`
	RatioToMedian      float64 `json:"ratio_to_median"`
	PeerCount          int     `json:"peer_count"`
}

// RapidEscalationEvidence backs rapid_escalation findings.
type RapidEscalationEvidence struct {
	EnumerationDate          string    `json:"enumeration_date"`
	FirstBillingMonth        string    `json:"first_billing_month"`
	PeakThreeMonthGrowthRate float64   `json:"peak_3_month_growth_rate"`
	MonthlyAmountsFirst12    []float64 `json:"monthly_amounts_first_12"`
	CovidEraFlag             bool      `json:"covid_era_flag,omitempty"`
}

// WorkforceImpossibilityEvidence backs workforce_impossibility findings.
type WorkforceImpossibilityEvidence struct {
	PeakMonth                  string  `json:"peak_month"`
	PeakClaimsCount            int64   `json:"peak_claims_count"`
	DistinctWorkersInMonth     int64   `json:"distinct_workers_in_month"`
	ImpliedClaimsPerWorkerHour float64 `json:"implied_claims_per_worker_hour"`
	TotalPaidPeakMonth         float64 `json:"total_paid_peak_month"`
	CovidEraFlag               bool    `json:"covid_era_flag,omitempty"`
}

// SharedOfficialEvidence backs shared_official findings.
type SharedOfficialEvidence struct {
	AuthorizedOfficialName string   `json:"authorized_official_name"`
	NPICount               int      `json:"npi_count"`
	ControlledNPIs         []string `json:"controlled_npis"`
	OrganizationNames      []string `json:"organization_names"`
	CombinedTotalPaid      float64  `json:"combined_total_paid"`
}

// GeographicImplausibilityEvidence backs geographic_implausibility findings.
// Service state is the NPPES state of each claim's servicing NPI.
type GeographicImplausibilityEvidence struct {
	RegisteredState        string  `json:"registered_state"`
	HomeStateClaims        int64   `json:"home_state_claims"`
	ClaimsCount            int64   `json:"claims_count"`
	HomeStatePct           float64 `json:"home_state_pct"`
	ForeignStatesCount     int     `json:"foreign_states_count"`
	UniqueBeneficiaries    int64   `json:"unique_beneficiaries"`
	BeneficiaryClaimsRatio float64 `json:"beneficiary_claims_ratio"`
	TotalPaid              float64 `json:"total_paid"`
}

// AddressClusteringEvidence backs address_clustering findings.
type AddressClusteringEvidence struct {
	ZipCode             string   `json:"zip_code"`
	State               string   `json:"state"`
	NPICount            int      `json:"npi_count"`
	ClusteredNPIs       []string `json:"clustered_npis"`
	ProviderNames       []string `json:"provider_names"`
	CombinedTotalPaid   float64  `json:"combined_total_paid"`
	CombinedTotalClaims int64    `json:"combined_total_claims"`
}

// UpcodingEvidence backs upcoding findings.
type UpcodingEvidence struct {
	TotalEMClaims              int64   `json:"total_em_claims"`
	HighLevelClaims            int64   `json:"high_level_claims"`
	HighLevelPercentage        float64 `json:"high_level_percentage"`
	PeerAvgHighLevelPercentage float64 `json:"peer_avg_high_level_percentage"`
	TotalPaid                  float64 `json:"total_paid"`
	PeerCount                  int     `json:"peer_count"`
}

// ConcurrentBillingEvidence backs concurrent_billing findings.
type ConcurrentBillingEvidence struct {
	HomeState                  string  `json:"home_state"`
	MaxStatesInSingleMonth     int     `json:"max_states_in_single_month"`
	MonthsFlagged              int     `json:"months_flagged"`
	TotalPaidInFlaggedMonths   float64 `json:"total_paid_in_flagged_months"`
	TotalClaimsInFlaggedMonths int64   `json:"total_claims_in_flagged_months"`
}

// BurstEnrollmentEvidence backs burst_enrollment_network findings.
type BurstEnrollmentEvidence struct {
	TaxonomyCode               string   `json:"taxonomy_code"`
	State                      string   `json:"state"`
	NPICount                   int      `json:"npi_count"`
	EnrolledNPIs               []string `json:"enrolled_npis"`
	OrganizationNames          []string `json:"organization_names"`
	EarliestEnumeration        string   `json:"earliest_enumeration"`
	LatestEnumeration          string   `json:"latest_enumeration"`
	EnrollmentSpanDays         int      `json:"enrollment_span_days"`
	CombinedTotalPaid          float64  `json:"combined_total_paid"`
	CombinedTotalClaims        int64    `json:"combined_total_claims"`
	CombinedTotalBeneficiaries int64    `json:"combined_total_beneficiaries"`
	CovidEraFlag               bool     `json:"covid_era_flag,omitempty"`
}

// PhantomServicingHubEvidence backs phantom_servicing_hub findings.
// The finding is attributed to the servicing NPI.
type PhantomServicingHubEvidence struct {
	ServicingProviderName string   `json:"servicing_provider_name"`
	TaxonomyCode          string   `json:"taxonomy_code"`
	State                 string   `json:"state"`
	DistinctBillingNPIs   int      `json:"distinct_billing_npis"`
	BillingNPIList        []string `json:"billing_npi_list"`
	TotalPaidThroughHub   float64  `json:"total_paid_through_hub"`
	TotalClaims           int64    `json:"total_claims"`
	TotalBeneficiaries    int64    `json:"total_beneficiaries"`
	BeneficiaryClaimRatio float64  `json:"beneficiary_claim_ratio"`
}

func (ExcludedProviderEvidence) Locale() Locale         { return Locale{} }
func (e BillingOutlierEvidence) Locale() Locale         { return Locale{State: e.State, TaxonomyCode: e.TaxonomyCode} }
func (RapidEscalationEvidence) Locale() Locale          { return Locale{} }
func (WorkforceImpossibilityEvidence) Locale() Locale   { return Locale{} }
func (SharedOfficialEvidence) Locale() Locale           { return Locale{} }
func (GeographicImplausibilityEvidence) Locale() Locale { return Locale{} }
func (e AddressClusteringEvidence) Locale() Locale      { return Locale{State: e.State} }
func (UpcodingEvidence) Locale() Locale                 { return Locale{} }
func (ConcurrentBillingEvidence) Locale() Locale        { return Locale{} }
func (e BurstEnrollmentEvidence) Locale() Locale        { return Locale{State: e.State, TaxonomyCode: e.TaxonomyCode} }
func (e PhantomServicingHubEvidence) Locale() Locale    { return Locale{State: e.State, TaxonomyCode: e.TaxonomyCode} }

func (ExcludedProviderEvidence) CovidEra() bool         { return false }
func (BillingOutlierEvidence) CovidEra() bool           { return false }
func (e RapidEscalationEvidence) CovidEra() bool        { return e.CovidEraFlag }
func (e WorkforceImpossibilityEvidence) CovidEra() bool { return e.CovidEraFlag }
func (SharedOfficialEvidence) CovidEra() bool           { return false }
func (GeographicImplausibilityEvidence) CovidEra() bool { return false }
func (AddressClusteringEvidence) CovidEra() bool        { return false }
func (UpcodingEvidence) CovidEra() bool                 { return false }
func (ConcurrentBillingEvidence) CovidEra() bool        { return false }
func (e BurstEnrollmentEvidence) CovidEra() bool        { return e.CovidEraFlag }
func (PhantomServicingHubEvidence) CovidEra() bool      { return false }

func (ExcludedProviderEvidence) evidence()         {}
func (BillingOutlierEvidence) evidence()           {}
func (RapidEscalationEvidence) evidence()          {}
func (WorkforceImpossibilityEvidence) evidence()   {}
func (SharedOfficialEvidence) evidence()           {}
func (GeographicImplausibilityEvidence) evidence() {}
func (AddressClusteringEvidence) evidence()        {}
func (UpcodingEvidence) evidence()                 {}
func (ConcurrentBillingEvidence) evidence()        {}
func (BurstEnrollmentEvidence) evidence()          {}
func (PhantomServicingHubEvidence) evidence()      {}
func (*GenericEvidence) evidence()                 {}

// GenericEvidence is an ordered key/value payload for signal types that
// have no dedicated schema. Key order is preserved through JSON.
type GenericEvidence struct {
	keys   []string
	values map[string]any
}

// NewGenericEvidence creates an empty payload.
func NewGenericEvidence() *GenericEvidence {
	return &GenericEvidence{values: make(map[string]any)}
}

// Set stores a value, keeping the original position of existing keys.
func (g *GenericEvidence) Set(key string, value any) *GenericEvidence {
	if g.values == nil {
		g.values = make(map[string]any)
	}
	if _, ok := g.values[key]; !ok {
		g.keys = append(g.keys, key)
	}
	g.values[key] = value
	return g
}

// Get returns the raw value for key.
func (g *GenericEvidence) Get(key string) (any, bool) {
	if g == nil || g.values == nil {
		return nil, false
	}
	v, ok := g.values[key]
	return v, ok
}

// Keys returns keys in insertion order.
func (g *GenericEvidence) Keys() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.keys...)
}

// String returns a string value or "" when absent or not a string.
func (g *GenericEvidence) String(key string) string {
	v, _ := g.Get(key)
	s, _ := v.(string)
	return s
}

// Float returns a numeric value or 0 when absent or not a number.
func (g *GenericEvidence) Float(key string) float64 {
	v, _ := g.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// Bool returns a boolean value or false when absent.
func (g *GenericEvidence) Bool(key string) bool {
	v, _ := g.Get(key)
	b, _ := v.(bool)
	return b
}

// Locale reads the "state" and "taxonomy_code" keys.
func (g *GenericEvidence) Locale() Locale {
	return Locale{State: g.String("state"), TaxonomyCode: g.String("taxonomy_code")}
}

// CovidEra reads the "covid_era_flag" key.
func (g *GenericEvidence) CovidEra() bool {
	return g.Bool("covid_era_flag")
}

// MarshalJSON writes keys in insertion order.
func (g *GenericEvidence) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if g != nil {
		for i, key := range g.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(key)
			if err != nil {
				return nil, err
			}
			v, err := json.Marshal(g.values[key])
			if err != nil {
				return nil, fmt.Errorf("evidence key %s: %w", key, err)
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object preserving key order.
func (g *GenericEvidence) UnmarshalJSON(data []byte) error {
	g.keys = nil
	g.values = make(map[string]any)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("evidence must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("evidence key must be a string")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return err
		}
		g.Set(key, value)
	}

	_, err = dec.Token()
	return err
}

// DecodeEvidence decodes raw evidence into the concrete type for signal.
// Unknown signal types, and payloads that do not fit their schema,
// decode into GenericEvidence.
func DecodeEvidence(signal SignalType, raw json.RawMessage) (Evidence, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}

	var (
		ev  Evidence
		err error
	)
	switch signal {
	case SignalExcludedProvider:
		ev, err = decodeTyped[ExcludedProviderEvidence](raw)
	case SignalBillingOutlier:
		ev, err = decodeTyped[BillingOutlierEvidence](raw)
	case SignalRapidEscalation:
		ev, err = decodeTyped[RapidEscalationEvidence](raw)
	case SignalWorkforceImpossibility:
		ev, err = decodeTyped[WorkforceImpossibilityEvidence](raw)
	case SignalSharedOfficial:
		ev, err = decodeTyped[SharedOfficialEvidence](raw)
	case SignalGeographicImplausibility:
		ev, err = decodeTyped[GeographicImplausibilityEvidence](raw)
	case SignalAddressClustering:
		ev, err = decodeTyped[AddressClusteringEvidence](raw)
	case SignalUpcoding:
		ev, err = decodeTyped[UpcodingEvidence](raw)
	case SignalConcurrentBilling:
		ev, err = decodeTyped[ConcurrentBillingEvidence](raw)
	case SignalBurstEnrollmentNetwork:
		ev, err = decodeTyped[BurstEnrollmentEvidence](raw)
	case SignalPhantomServicingHub:
		ev, err = decodeTyped[PhantomServicingHubEvidence](raw)
	default:
		err = errUntyped
	}
	if err == nil {
		return ev, nil
	}

	g := NewGenericEvidence()
	if err := json.Unmarshal(raw, g); err != nil {
		return nil, err
	}
	return g, nil
}

var errUntyped = fmt.Errorf("no typed evidence schema")

func decodeTyped[T Evidence](raw json.RawMessage) (Evidence, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
