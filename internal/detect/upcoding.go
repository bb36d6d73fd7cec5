package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	upcodingMinClaims  = 50
	upcodingMinPeers   = 3
	upcodingHighPct    = 80.0
	upcodingPeerMaxPct = 30.0
	upcodingSeverePct  = 90.0
	upcodingUplift     = 0.3
)

// Upcoding flags providers who bill the highest-complexity E&M levels far
// more often than peers with the same taxonomy and state.
type Upcoding struct{}

func (Upcoding) Name() domain.SignalType { return domain.SignalUpcoding }

func (Upcoding) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Highest-level E&M codes billed far above peer norms",
		Methodology:      "E&M claims (HCPCS 992xx) are totalled per billing NPI with at least 50 claims. The share billed as 99205, 99215, 99223, 99233, 99245 or 99255 is compared with the average share of taxonomy and state peers (3 or more).",
		OverpaymentBasis: "30% of E&M payments in proportion to the excess high-level share",
		Threshold:        "> 80% high-level while peers average < 30%; high above 90%",
	}
}

const upcodingQuery = `
	SELECT s.billing_npi, n.taxonomy_code, n.state,
		   SUM(s.total_claims),
		   SUM(CASE WHEN s.hcpcs_code IN ('99215', '99205', '99223', '99233', '99245', '99255')
					THEN s.total_claims ELSE 0 END),
		   SUM(s.total_paid)
	FROM spending s
	JOIN nppes n ON n.npi = s.billing_npi
	WHERE s.hcpcs_code LIKE '992%'
	  AND n.taxonomy_code IS NOT NULL AND n.taxonomy_code != ''
	  AND n.state IS NOT NULL AND n.state != ''
	GROUP BY s.billing_npi, n.taxonomy_code, n.state
	HAVING SUM(s.total_claims) >= 50
	ORDER BY s.billing_npi
`

type emProfile struct {
	npi    string
	claims int64
	high   int64
	paid   float64
}

func (p emProfile) highPct() float64 {
	if p.claims == 0 {
		return 0
	}
	return float64(p.high) * 100 / float64(p.claims)
}

func (d Upcoding) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := ds.Query(ctx, upcodingQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	defer rows.Close()

	groups := make(map[peerKey][]emProfile)
	var order []peerKey
	for rows.Next() {
		var k peerKey
		var p emProfile
		if err := rows.Scan(&p.npi, &k.taxonomy, &k.state, &p.claims, &p.high, &p.paid); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	type flagged struct {
		finding domain.Finding
		pct     float64
	}
	var out []flagged

	for _, k := range order {
		peers := groups[k]
		if len(peers) < upcodingMinPeers {
			continue
		}
		var sum float64
		for _, p := range peers {
			sum += p.highPct()
		}
		avg := sum / float64(len(peers))
		if avg >= upcodingPeerMaxPct {
			continue
		}

		for _, p := range peers {
			pct := p.highPct()
			if pct <= upcodingHighPct {
				continue
			}
			sev := domain.SeverityMedium
			if pct > upcodingSeverePct {
				sev = domain.SeverityHigh
			}
			ev := domain.UpcodingEvidence{
				TotalEMClaims:              p.claims,
				HighLevelClaims:            p.high,
				HighLevelPercentage:        domain.RoundTo(pct, 2),
				PeerAvgHighLevelPercentage: domain.RoundTo(avg, 2),
				TotalPaid:                  domain.RoundCents(p.paid),
				PeerCount:                  len(peers),
			}
			overpayment := p.paid * (pct - avg) / 100 * upcodingUplift
			out = append(out, flagged{
				finding: domain.NewFinding(p.npi, d.Name(), sev, ev, domain.RoundCents(overpayment)),
				pct:     pct,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].pct > out[j].pct })

	findings := make([]domain.Finding, len(out))
	for i, f := range out {
		findings[i] = f.finding
	}
	return findings, nil
}
