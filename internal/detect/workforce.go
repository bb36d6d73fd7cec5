package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Working hours in a billing month and the per-worker claim rate ceiling.
const (
	workforceHoursPerMonth = 22 * 8
	workforceMaxRate       = 6.0
	workforceHighRate      = 20.0
)

// WorkforceImpossibility flags organizations whose peak monthly claims per
// servicing worker exceed what the workforce could physically deliver.
type WorkforceImpossibility struct{}

func (WorkforceImpossibility) Name() domain.SignalType { return domain.SignalWorkforceImpossibility }

func (WorkforceImpossibility) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Organization billing more claims per worker than is physically possible",
		Methodology:      "For each organization and month, distinct servicing NPIs approximate the workforce (at least 1). The month with the most claims per worker is compared with 6 claims per worker-hour over 22 eight-hour days.",
		OverpaymentBasis: "Claims above 6 per worker-hour in the peak month, at the peak month's average paid per claim",
		Threshold:        "> 6 claims per worker-hour; high above 20; low when the peak month falls in the COVID-19 emergency",
	}
}

const workforceQuery = `
	SELECT s.billing_npi, s.claim_month, SUM(s.total_claims), SUM(s.total_paid),
		   COUNT(DISTINCT CASE WHEN s.servicing_npi IS NOT NULL AND s.servicing_npi != ''
							   THEN s.servicing_npi END)
	FROM spending s
	JOIN nppes n ON n.npi = s.billing_npi
	WHERE n.entity_type_code = '2'
	GROUP BY s.billing_npi, s.claim_month
	ORDER BY s.billing_npi, s.claim_month
`

type workforceMonth struct {
	npi     string
	month   string
	claims  int64
	paid    float64
	workers int64
}

func (m workforceMonth) perWorker() float64 {
	return float64(m.claims) / float64(m.workers)
}

func (d WorkforceImpossibility) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := ds.Query(ctx, workforceQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	defer rows.Close()

	// Peak month per organization; ties keep the earliest month.
	var peaks []workforceMonth
	for rows.Next() {
		var m workforceMonth
		if err := rows.Scan(&m.npi, &m.month, &m.claims, &m.paid, &m.workers); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
		if m.workers < 1 {
			m.workers = 1
		}
		last := len(peaks) - 1
		switch {
		case last < 0 || peaks[last].npi != m.npi:
			peaks = append(peaks, m)
		case m.perWorker() > peaks[last].perWorker():
			peaks[last] = m
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	type flagged struct {
		finding domain.Finding
		rate    float64
	}
	var out []flagged

	for _, p := range peaks {
		rate := p.perWorker() / workforceHoursPerMonth
		if rate <= workforceMaxRate {
			continue
		}

		ceiling := p.workers * int64(workforceMaxRate) * workforceHoursPerMonth
		excess := p.claims - ceiling
		if excess < 0 {
			excess = 0
		}
		perClaim := 0.0
		if p.claims > 0 {
			perClaim = p.paid / float64(p.claims)
		}

		sev := domain.SeverityMedium
		if rate > workforceHighRate {
			sev = domain.SeverityHigh
		}
		ev := domain.WorkforceImpossibilityEvidence{
			PeakMonth:                  p.month,
			PeakClaimsCount:            p.claims,
			DistinctWorkersInMonth:     p.workers,
			ImpliedClaimsPerWorkerHour: domain.RoundTo(rate, 2),
			TotalPaidPeakMonth:         domain.RoundCents(p.paid),
		}
		// Emergency-era peaks are downgraded.
		if IsCovidEra(p.month) {
			sev = domain.SeverityLow
			ev.CovidEraFlag = true
		}

		out = append(out, flagged{
			finding: domain.NewFinding(p.npi, d.Name(), sev, ev, domain.RoundCents(float64(excess)*perClaim)),
			rate:    rate,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].rate > out[j].rate })

	findings := make([]domain.Finding, len(out))
	for i, f := range out {
		findings[i] = f.finding
	}
	return findings, nil
}
