// Package records merges findings with reference data into scored
// provider records.
package records

import (
	"math"

	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/scoring"
)

// Identity defaults for providers missing from the registry.
const (
	UnknownName   = "Unknown"
	UnknownEntity = "unknown"
	UnknownField  = "Unknown"
)

// Builder joins findings with batched reference lookups.
// Missing entries fall back to defaults; they are never looked up one by one.
type Builder struct {
	Identities map[string]domain.Identity
	Totals     map[string]domain.Totals
}

// NewBuilder creates a builder over pre-fetched reference data.
func NewBuilder(identities map[string]domain.Identity, totals map[string]domain.Totals) *Builder {
	return &Builder{Identities: identities, Totals: totals}
}

// GroupByNPI groups findings per NPI, keeping first-seen NPI order and
// emission order within each group.
func GroupByNPI(findings []domain.Finding) ([]string, map[string][]domain.Finding) {
	var order []string
	groups := make(map[string][]domain.Finding)
	for _, f := range findings {
		if _, ok := groups[f.NPI]; !ok {
			order = append(order, f.NPI)
		}
		groups[f.NPI] = append(groups[f.NPI], f)
	}
	return order, groups
}

// Build produces one record per distinct NPI, in first-seen order.
func (b *Builder) Build(findings []domain.Finding) []domain.ProviderRecord {
	order, groups := GroupByNPI(findings)
	out := make([]domain.ProviderRecord, 0, len(order))
	for _, npi := range order {
		out = append(out, b.BuildOne(npi, groups[npi]))
	}
	return out
}

// BuildOne produces the record for a single provider.
func (b *Builder) BuildOne(npi string, findings []domain.Finding) domain.ProviderRecord {
	rec := domain.ProviderRecord{
		NPI:             npi,
		ProviderName:    UnknownName,
		EntityType:      UnknownEntity,
		TaxonomyCode:    UnknownField,
		State:           UnknownField,
		EnumerationDate: UnknownField,
		Signals:         append([]domain.Finding{}, findings...),
	}

	if id, ok := b.Identities[npi]; ok {
		rec.ProviderName = or(id.Name, UnknownName)
		rec.EntityType = or(id.EntityType, UnknownEntity)
		rec.TaxonomyCode = or(id.TaxonomyCode, UnknownField)
		rec.State = or(id.State, UnknownField)
		rec.EnumerationDate = or(id.EnumerationDate, UnknownField)
	}

	// Evidence locale overrides the registry, last non-empty wins.
	for _, f := range findings {
		if f.Evidence == nil {
			continue
		}
		loc := f.Evidence.Locale()
		if loc.State != "" {
			rec.State = loc.State
		}
		if loc.TaxonomyCode != "" {
			rec.TaxonomyCode = loc.TaxonomyCode
		}
	}

	if t, ok := b.Totals[npi]; ok {
		rec.TotalPaid = domain.RoundCents(math.Max(t.TotalPaid, 0))
		rec.TotalClaims = t.TotalClaims
		rec.TotalBeneficiaries = t.TotalBeneficiaries
	}

	rec.EstimatedOverpayment = CapOverpayment(findings, rec.TotalPaid)
	rec.RiskScore = scoring.Score(findings, rec.TotalPaid)

	primary, _ := SelectPrimaryFinding(findings)
	rec.FCARelevance = ComplianceFor(primary.SignalType)

	rec.CaseNarrative = Narrative(&rec)
	return rec
}

// CapOverpayment sums finding overpayments and caps the total at the
// provider's billing when billing is known.
func CapOverpayment(findings []domain.Finding, totalPaid float64) float64 {
	amounts := make([]float64, 0, len(findings))
	for _, f := range findings {
		amounts = append(amounts, f.EstimatedOverpayment)
	}
	sum := domain.ClampOverpayment(domain.SumCents(amounts...))
	if totalPaid > 0 && sum > totalPaid {
		sum = totalPaid
	}
	return domain.RoundCents(sum)
}

// NPIs returns the distinct NPIs named by findings, in first-seen order.
func NPIs(findings []domain.Finding) []string {
	order, _ := GroupByNPI(findings)
	return order
}
