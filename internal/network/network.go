// Package network groups flagged providers that share a controller, hub,
// address or enrollment cluster, and separates actionable networks from
// those below investigative thresholds.
package network

import (
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/rules"
)

// Analyzer groups records and applies the actionability criteria.
type Analyzer struct {
	engine *rules.Engine
}

// NewAnalyzer creates an analyzer over a criteria engine.
func NewAnalyzer(engine *rules.Engine) *Analyzer {
	return &Analyzer{engine: engine}
}

// DefaultAnalyzer uses the default actionability thresholds.
func DefaultAnalyzer() (*Analyzer, error) {
	engine, err := rules.NewActionabilityEngine(rules.DefaultThresholds())
	if err != nil {
		return nil, err
	}
	return NewAnalyzer(engine), nil
}

// Group builds one network per key. Members keep the order of records,
// which is expected to be risk-ranked. Networks are sorted by combined
// overpayment descending, then key.
func Group(records []domain.ProviderRecord) []domain.NetworkRecord {
	var order []string
	byKey := make(map[string]*builder)

	for i := range records {
		rec := &records[i]
		k := KeyFor(rec)
		b, ok := byKey[k.Value]
		if !ok {
			b = newBuilder(k)
			byKey[k.Value] = b
			order = append(order, k.Value)
		}
		b.add(rec)
	}

	networks := make([]domain.NetworkRecord, 0, len(order))
	for _, key := range order {
		networks = append(networks, byKey[key].build())
	}

	sort.SliceStable(networks, func(i, j int) bool {
		if networks[i].CombinedOverpayment != networks[j].CombinedOverpayment {
			return networks[i].CombinedOverpayment > networks[j].CombinedOverpayment
		}
		return networks[i].NetworkKey < networks[j].NetworkKey
	})
	return networks
}

// Analyze groups records and filters the networks for actionability.
func (a *Analyzer) Analyze(records []domain.ProviderRecord) domain.NetworkAnalysis {
	networks := Group(records)

	analysis := domain.NetworkAnalysis{
		TotalNetworks: len(networks),
		Networks:      []domain.NetworkRecord{},
		BelowThreshold: domain.BelowThresholdSummary{
			ReasonCounts: make(map[string]int),
		},
	}

	var actionable, below []float64
	for _, n := range networks {
		ok, reasons := a.engine.Allows(Vars(n))
		if ok {
			n.Actionable = true
			analysis.Networks = append(analysis.Networks, n)
			actionable = append(actionable, n.CombinedOverpayment)
			continue
		}
		analysis.BelowThreshold.Count++
		below = append(below, n.CombinedOverpayment)
		for _, r := range reasons {
			analysis.BelowThreshold.ReasonCounts[r]++
		}
	}

	analysis.ActionableCount = len(analysis.Networks)
	analysis.ActionableOverpayment = domain.SumCents(actionable...)
	analysis.BelowThreshold.CombinedOverpayment = domain.SumCents(below...)
	return analysis
}

// Vars maps a network onto the criteria variables.
func Vars(n domain.NetworkRecord) rules.Vars {
	return rules.Vars{
		PeakRiskTier:         n.PeakRiskTier,
		CombinedOverpayment:  n.CombinedOverpayment,
		MemberCount:          n.MemberCount,
		SignalTypeCount:      len(n.SignalTypesPresent),
		FindingCount:         n.FindingCount,
		CovidEraFindingCount: n.CovidEraFindingCount,
	}
}

type builder struct {
	key          Key
	members      []domain.NetworkMember
	billed       []float64
	overpayments []float64
	signals      map[domain.SignalType]struct{}
	peak         domain.RiskTier
	findings     int
	covid        int
}

func newBuilder(k Key) *builder {
	return &builder{key: k, signals: make(map[domain.SignalType]struct{}), peak: domain.TierLow}
}

func (b *builder) add(rec *domain.ProviderRecord) {
	b.members = append(b.members, domain.NetworkMember{
		NPI:                  rec.NPI,
		ProviderName:         rec.ProviderName,
		State:                rec.State,
		RiskScore:            rec.RiskScore.Score,
		RiskTier:             rec.RiskScore.Tier,
		TotalPaid:            rec.TotalPaid,
		EstimatedOverpayment: rec.EstimatedOverpayment,
	})
	b.billed = append(b.billed, rec.TotalPaid)
	b.overpayments = append(b.overpayments, rec.EstimatedOverpayment)

	if rec.RiskScore.Tier.Rank() > b.peak.Rank() {
		b.peak = rec.RiskScore.Tier
	}
	for _, f := range rec.Signals {
		b.signals[f.SignalType] = struct{}{}
		b.findings++
		if f.Evidence != nil && f.Evidence.CovidEra() {
			b.covid++
		}
	}
}

func (b *builder) build() domain.NetworkRecord {
	signals := make([]domain.SignalType, 0, len(b.signals))
	for s := range b.signals {
		signals = append(signals, s)
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i] < signals[j] })

	return domain.NetworkRecord{
		NetworkKey:           b.key.Value,
		Label:                b.key.Label,
		Category:             b.key.Category,
		Members:              b.members,
		MemberCount:          len(b.members),
		CombinedBilled:       domain.SumCents(b.billed...),
		CombinedOverpayment:  domain.SumCents(b.overpayments...),
		SignalTypesPresent:   signals,
		PeakRiskTier:         b.peak,
		FindingCount:         b.findings,
		CovidEraFindingCount: b.covid,
	}
}
