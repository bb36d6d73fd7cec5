package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	burstMinNPIs  = 4
	burstMinPaid  = 500_000.0
	burstHighNPIs = 8
	burstHighPaid = 5_000_000.0
	burstRate     = 0.25
)

// BurstEnrollment flags organizations with the same taxonomy and state
// that enumerated in the same calendar quarter and went on to bill heavily.
type BurstEnrollment struct{}

func (BurstEnrollment) Name() domain.SignalType { return domain.SignalBurstEnrollmentNetwork }

func (BurstEnrollment) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Cluster of organizations enumerated in the same quarter",
		Methodology:      "Billing organizations are grouped by taxonomy, state and enumeration quarter. Groups of 4 or more billing over $500K combined are flagged; each member receives a finding.",
		OverpaymentBasis: "25% of member billing",
		Threshold:        ">= 4 organizations and combined > $500K; high at 8 or more or above $5M; low when the quarter falls in the COVID-19 emergency",
	}
}

const burstQuery = `
	WITH` + providerTotalsCTE + `
	SELECT n.npi, COALESCE(n.org_name, ''), COALESCE(n.state, ''), n.taxonomy_code, n.enumeration_date,
		   pt.total_paid, COALESCE(pt.total_claims, 0), COALESCE(pt.total_beneficiaries, 0)
	FROM nppes n
	JOIN provider_totals pt ON n.npi = pt.npi
	WHERE n.entity_type_code = '2'
	  AND n.enumeration_date IS NOT NULL AND n.enumeration_date != ''
	  AND n.taxonomy_code IS NOT NULL AND n.taxonomy_code != ''
	  AND pt.total_paid > 0
`

type burstKey struct {
	taxonomy string
	state    string
	quarter  string
}

type enrollee struct {
	member
	enumeration string
}

func (d BurstEnrollment) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := ds.Query(ctx, burstQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	defer rows.Close()

	groups := make(map[burstKey][]enrollee)
	var order []burstKey
	for rows.Next() {
		var e enrollee
		var tax string
		if err := rows.Scan(&e.npi, &e.name, &e.state, &tax, &e.enumeration,
			&e.paid, &e.claims, &e.benes); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
		q, ok := quarterStart(e.enumeration)
		if !ok {
			continue
		}
		k := burstKey{taxonomy: tax, state: e.state, quarter: q}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	type burst struct {
		key     burstKey
		members []enrollee
		paid    float64
	}
	var bursts []burst
	for _, k := range order {
		es := groups[k]
		if len(es) < burstMinNPIs {
			continue
		}
		b := burst{key: k, members: es}
		for _, e := range es {
			b.paid += e.paid
		}
		if b.paid <= burstMinPaid {
			continue
		}
		bursts = append(bursts, b)
	}

	sort.SliceStable(bursts, func(i, j int) bool { return bursts[i].paid > bursts[j].paid })

	var findings []domain.Finding
	for _, b := range bursts {
		sort.Slice(b.members, func(i, j int) bool { return b.members[i].npi < b.members[j].npi })

		ms := make([]member, len(b.members))
		npis := make([]string, len(b.members))
		names := make([]string, len(b.members))
		var claims, benes int64
		earliest, latest := b.members[0].enumeration, b.members[0].enumeration
		for i, e := range b.members {
			ms[i] = e.member
			npis[i] = e.npi
			names[i] = e.name
			claims += e.claims
			benes += e.benes
			if e.enumeration < earliest {
				earliest = e.enumeration
			}
			if e.enumeration > latest {
				latest = e.enumeration
			}
		}

		sev := domain.SeverityMedium
		if len(ms) >= burstHighNPIs || b.paid > burstHighPaid {
			sev = domain.SeverityHigh
		}

		ev := domain.BurstEnrollmentEvidence{
			TaxonomyCode:               b.key.taxonomy,
			State:                      b.key.state,
			NPICount:                   len(ms),
			EnrolledNPIs:               capList(npis),
			OrganizationNames:          capList(distinctSorted(names)),
			EarliestEnumeration:        earliest,
			LatestEnumeration:          latest,
			EnrollmentSpanDays:         spanDays(earliest, latest),
			CombinedTotalPaid:          domain.RoundCents(b.paid),
			CombinedTotalClaims:        claims,
			CombinedTotalBeneficiaries: benes,
		}
		if IsCovidEra(b.key.quarter) {
			sev = domain.SeverityLow
			ev.CovidEraFlag = true
		}

		findings = append(findings, memberFindings(d.Name(), sev, ev, ms, burstRate)...)
	}
	return findings, nil
}

// quarterStart returns the first day of the calendar quarter of date.
func quarterStart(date string) (string, bool) {
	t, err := parseDate(date)
	if err != nil {
		return "", false
	}
	month := ((int(t.Month())-1)/3)*3 + 1
	return fmt.Sprintf("%04d-%02d-01", t.Year(), month), true
}

func spanDays(earliest, latest string) int {
	a, err := parseDate(earliest)
	if err != nil {
		return 0
	}
	b, err := parseDate(latest)
	if err != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}
