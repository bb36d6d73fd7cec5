package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	concurrentMinStates  = 5
	concurrentHighStates = 8
	concurrentRate       = 0.6
)

// ConcurrentBilling flags individual providers whose claims in a single
// month are serviced across five or more states.
type ConcurrentBilling struct{}

func (ConcurrentBilling) Name() domain.SignalType { return domain.SignalConcurrentBilling }

func (ConcurrentBilling) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Individual provider billing across many states in the same month",
		Methodology:      "Claims are attributed to the NPPES state of their servicing NPI. Months where one billing NPI spans 5 or more states are collected; organizations are skipped.",
		OverpaymentBasis: "60% of payments in flagged months",
		Threshold:        ">= 5 states in one month; high at 8 or more",
	}
}

const concurrentQuery = `
	WITH state_months AS (
		SELECT s.billing_npi AS npi, s.claim_month,
			   COUNT(DISTINCT TRIM(v.state)) AS state_count,
			   SUM(s.total_paid) AS month_paid,
			   SUM(s.total_claims) AS month_claims
		FROM spending s
		JOIN nppes v ON v.npi = s.servicing_npi
		WHERE v.state IS NOT NULL AND TRIM(v.state) != ''
		GROUP BY s.billing_npi, s.claim_month
		HAVING COUNT(DISTINCT TRIM(v.state)) >= 5
	)
	SELECT sm.npi, COALESCE(n.entity_type_code, ''), COALESCE(TRIM(n.state), ''),
		   MAX(sm.state_count), COUNT(*), SUM(sm.month_paid), SUM(sm.month_claims)
	FROM state_months sm
	LEFT JOIN nppes n ON n.npi = sm.npi
	GROUP BY sm.npi, n.entity_type_code, n.state
	ORDER BY sm.npi
`

func (d ConcurrentBilling) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := ds.Query(ctx, concurrentQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	defer rows.Close()

	type flagged struct {
		finding domain.Finding
		states  int
	}
	var out []flagged

	for rows.Next() {
		var npi, entity, home string
		var states, months int
		var paid float64
		var claims int64
		if err := rows.Scan(&npi, &entity, &home, &states, &months, &paid, &claims); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
		// Organizations operate across states.
		if entity == "2" || states < concurrentMinStates {
			continue
		}

		sev := domain.SeverityMedium
		if states >= concurrentHighStates {
			sev = domain.SeverityHigh
		}
		ev := domain.ConcurrentBillingEvidence{
			HomeState:                  home,
			MaxStatesInSingleMonth:     states,
			MonthsFlagged:              months,
			TotalPaidInFlaggedMonths:   domain.RoundCents(paid),
			TotalClaimsInFlaggedMonths: claims,
		}
		out = append(out, flagged{
			finding: domain.NewFinding(npi, d.Name(), sev, ev, domain.RoundCents(paid*concurrentRate)),
			states:  states,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].states > out[j].states })

	findings := make([]domain.Finding, len(out))
	for i, f := range out {
		findings[i] = f.finding
	}
	return findings, nil
}
