// Package report assembles, persists and reloads the scan report artifact.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/fraudscan/internal/domain"
)

// TimeFormat is the layout of generated_at.
const TimeFormat = "2006-01-02T15:04:05Z"

// Summary table sizes
const (
	topStates          = 5
	topProviders       = 5
	multiSignalSamples = 10
	topPairs           = 10
)

// Input is everything the assembler needs from earlier stages.
type Input struct {
	// RunID overrides the generated run identifier when set.
	RunID                 string
	TotalProvidersScanned int64
	Results               *domain.DetectorResults
	// Records are the filtered and selected providers.
	Records     []domain.ProviderRecord
	Networks    domain.NetworkAnalysis
	Filter      domain.FilterSummary
	Methodology map[domain.SignalType]domain.SignalMethodology
}

// Assembler shapes stage output into a Report.
type Assembler struct {
	Clock func() time.Time
	NewID func() string
}

// NewAssembler creates an assembler using wall-clock time and random run IDs.
func NewAssembler() *Assembler {
	return &Assembler{
		Clock: time.Now,
		NewID: func() string { return uuid.New().String() },
	}
}

// Assemble builds the report. Records are copied and ranked; the input
// slice is not modified.
func (a *Assembler) Assemble(in Input) *domain.Report {
	results := in.Results
	if results == nil {
		results = domain.NewDetectorResults()
	}

	providers := append([]domain.ProviderRecord{}, in.Records...)
	Rank(providers)

	runID := in.RunID
	if runID == "" {
		runID = a.NewID()
	}

	r := &domain.Report{
		GeneratedAt:           a.Clock().UTC().Format(TimeFormat),
		ToolVersion:           domain.ToolVersion,
		SchemaVersion:         domain.SchemaVersion,
		RunID:                 runID,
		TotalProvidersScanned: in.TotalProvidersScanned,
		TotalProvidersFlagged: len(providers),
		SignalCounts:          results.Counts(),
		FlaggedProviders:      providers,
		NetworkAnalysis:       in.Networks,
		FilterSummary:         in.Filter,
		CrossSignalAnalysis:   CrossSignal(results),
		Methodology:           Methodology(in.Methodology),
	}
	if r.NetworkAnalysis.Networks == nil {
		r.NetworkAnalysis.Networks = []domain.NetworkRecord{}
	}
	if len(results.Errors) > 0 {
		r.DetectorErrors = make(map[domain.SignalType]string, len(results.Errors))
		for signal, err := range results.Errors {
			r.DetectorErrors[signal] = err.Error()
		}
	}

	r.ExecutiveSummary = Summarize(r)
	return r
}

// Rank sorts records by risk score descending, then capped overpayment
// descending, then NPI ascending.
func Rank(records []domain.ProviderRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := &records[i], &records[j]
		if a.RiskScore.Score != b.RiskScore.Score {
			return a.RiskScore.Score > b.RiskScore.Score
		}
		if a.EstimatedOverpayment != b.EstimatedOverpayment {
			return a.EstimatedOverpayment > b.EstimatedOverpayment
		}
		return a.NPI < b.NPI
	})
}

// Summarize builds the executive summary from a report's ranked providers
// and raw signal counts.
func Summarize(r *domain.Report) domain.ExecutiveSummary {
	providers := r.FlaggedProviders

	tiers := make(map[domain.RiskTier]int, 4)
	for _, t := range domain.AllTiers() {
		tiers[t] = 0
	}
	states := make(map[string]int)
	amounts := make([]float64, 0, len(providers))
	for i := range providers {
		p := &providers[i]
		tier := p.RiskScore.Tier
		if tier == "" {
			tier = domain.TierLow
		}
		tiers[tier]++
		states[p.State]++
		amounts = append(amounts, p.EstimatedOverpayment)
	}

	stateCounts := make([]domain.StateCount, 0, len(states))
	for s, c := range states {
		stateCounts = append(stateCounts, domain.StateCount{State: s, Count: c})
	}
	sort.Slice(stateCounts, func(i, j int) bool {
		if stateCounts[i].Count != stateCounts[j].Count {
			return stateCounts[i].Count > stateCounts[j].Count
		}
		return stateCounts[i].State < stateCounts[j].State
	})
	if len(stateCounts) > topStates {
		stateCounts = stateCounts[:topStates]
	}

	signalCounts := make([]domain.SignalCount, 0, len(r.SignalCounts))
	for s, c := range r.SignalCounts {
		signalCounts = append(signalCounts, domain.SignalCount{Signal: s, Count: c})
	}
	sort.Slice(signalCounts, func(i, j int) bool {
		if signalCounts[i].Count != signalCounts[j].Count {
			return signalCounts[i].Count > signalCounts[j].Count
		}
		return signalCounts[i].Signal < signalCounts[j].Signal
	})

	n := len(providers)
	if n > topProviders {
		n = topProviders
	}
	highest := make([]domain.ProviderSummary, 0, n)
	for _, p := range providers[:n] {
		highest = append(highest, domain.ProviderSummary{
			NPI:                  p.NPI,
			ProviderName:         p.ProviderName,
			RiskScore:            p.RiskScore.Score,
			RiskTier:             p.RiskScore.Tier,
			SignalCount:          len(p.Signals),
			EstimatedOverpayment: p.EstimatedOverpayment,
		})
	}

	return domain.ExecutiveSummary{
		TotalProvidersScanned:     r.TotalProvidersScanned,
		TotalProvidersFlagged:     r.TotalProvidersFlagged,
		TotalEstimatedOverpayment: domain.SumCents(amounts...),
		RiskTierDistribution:      tiers,
		TopStatesByFlags:          stateCounts,
		SignalTypeSummary:         signalCounts,
		HighestRiskProviders:      highest,
	}
}
