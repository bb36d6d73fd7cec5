package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Peer-group thresholds for billing outliers.
const (
	outlierMinPeers   = 5
	outlierPercentile = 0.99
	outlierHighRatio  = 5.0
)

// BillingOutlier flags providers whose all-time billing exceeds the 99th
// percentile of their taxonomy and state peer group.
type BillingOutlier struct{}

func (BillingOutlier) Name() domain.SignalType { return domain.SignalBillingOutlier }

func (BillingOutlier) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "All-time billing far above peers with the same taxonomy and state",
		Methodology:      "Providers are grouped by NPPES taxonomy and state. Groups with at least 5 members get a median and an interpolated 99th percentile; providers above the 99th percentile are flagged.",
		OverpaymentBasis: "Billing in excess of the peer 99th percentile",
		Threshold:        "total_paid > peer p99; high severity above 5x the peer median",
	}
}

const outlierQuery = `
	WITH` + providerTotalsCTE + `
	SELECT pt.npi, n.taxonomy_code, n.state, COALESCE(pt.total_paid, 0)
	FROM provider_totals pt
	JOIN nppes n ON pt.npi = n.npi
	WHERE n.taxonomy_code IS NOT NULL AND n.taxonomy_code != ''
	  AND n.state IS NOT NULL AND n.state != ''
`

type peerKey struct {
	taxonomy string
	state    string
}

type peerRow struct {
	npi  string
	paid float64
}

func (d BillingOutlier) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := ds.Query(ctx, outlierQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	defer rows.Close()

	groups := make(map[peerKey][]peerRow)
	for rows.Next() {
		var k peerKey
		var r peerRow
		if err := rows.Scan(&r.npi, &k.taxonomy, &k.state, &r.paid); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
		groups[k] = append(groups[k], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	type flagged struct {
		finding domain.Finding
		paid    float64
	}
	var out []flagged

	for k, peers := range groups {
		if len(peers) < outlierMinPeers {
			continue
		}

		totals := make([]float64, len(peers))
		for i, p := range peers {
			totals[i] = p.paid
		}
		sort.Float64s(totals)
		median := percentile(totals, 0.5)
		p99 := percentile(totals, outlierPercentile)

		for _, p := range peers {
			if p.paid <= p99 {
				continue
			}
			ratio := 0.0
			if median > 0 {
				ratio = p.paid / median
			}
			sev := domain.SeverityMedium
			if ratio > outlierHighRatio {
				sev = domain.SeverityHigh
			}
			ev := domain.BillingOutlierEvidence{
				TotalPaid:          domain.RoundCents(p.paid),
				TaxonomyCode:       k.taxonomy,
				State:              k.state,
				PeerMedian:         domain.RoundCents(median),
				Peer99thPercentile: domain.RoundCents(p99),
				RatioToMedian:      domain.RoundTo(ratio, 2),
				PeerCount:          len(peers),
			}
			out = append(out, flagged{
				finding: domain.NewFinding(p.npi, d.Name(), sev, ev, domain.RoundCents(p.paid-p99)),
				paid:    p.paid,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].paid != out[j].paid {
			return out[i].paid > out[j].paid
		}
		return out[i].finding.NPI < out[j].finding.NPI
	})

	findings := make([]domain.Finding, len(out))
	for i, f := range out {
		findings[i] = f.finding
	}
	return findings, nil
}
