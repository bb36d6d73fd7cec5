package detect

import (
	"context"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const providerMonthlyQuery = `
	SELECT billing_npi, claim_month, SUM(total_paid), SUM(total_claims)
	FROM spending
	GROUP BY billing_npi, claim_month
	ORDER BY billing_npi, claim_month
`

type monthTotal struct {
	month  string
	paid   float64
	claims int64
}

// providerMonths is one billing NPI's monthly totals in month order.
type providerMonths struct {
	npi    string
	months []monthTotal
}

// peak returns the index of the highest-paid month; ties keep the earliest.
func (p *providerMonths) peak() int {
	best := 0
	for i, m := range p.months {
		if m.paid > p.months[best].paid {
			best = i
		}
	}
	return best
}

// providerMonthly loads monthly totals for every billing NPI.
func providerMonthly(ctx context.Context, ds domain.Dataset) ([]*providerMonths, error) {
	rows, err := ds.Query(ctx, providerMonthlyQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*providerMonths
	var cur *providerMonths
	for rows.Next() {
		var npi string
		var m monthTotal
		if err := rows.Scan(&npi, &m.month, &m.paid, &m.claims); err != nil {
			return nil, err
		}
		if cur == nil || cur.npi != npi {
			cur = &providerMonths{npi: npi}
			out = append(out, cur)
		}
		cur.months = append(cur.months, m)
	}
	return out, rows.Err()
}
