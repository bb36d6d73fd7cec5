package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	clusterMinNPIs  = 10
	clusterMinPaid  = 5_000_000.0
	clusterHighNPIs = 20
	clusterRate     = 0.15
)

// AddressClustering flags zip codes where many billing NPIs register with
// unusually high combined billing.
type AddressClustering struct{}

func (AddressClustering) Name() domain.SignalType { return domain.SignalAddressClustering }

func (AddressClustering) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Many billing NPIs registered at the same zip code",
		Methodology:      "Billing NPIs are grouped by NPPES zip code and state. Clusters of 10 or more NPIs billing over $5M combined are flagged; each clustered NPI receives a finding.",
		OverpaymentBasis: "15% of member billing",
		Threshold:        ">= 10 NPIs and combined > $5M; high at 20 or more NPIs",
	}
}

const clusteringQuery = `
	WITH` + providerTotalsCTE + `
	SELECT TRIM(n.zip_code), COALESCE(n.state, ''), n.npi,
		   ` + providerNameExpr + `,
		   COALESCE(pt.total_paid, 0), COALESCE(pt.total_claims, 0)
	FROM nppes n
	JOIN provider_totals pt ON n.npi = pt.npi
	WHERE n.zip_code IS NOT NULL AND TRIM(n.zip_code) != ''
`

type zipKey struct {
	zip   string
	state string
}

func (d AddressClustering) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := ds.Query(ctx, clusteringQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	defer rows.Close()

	groups := make(map[zipKey][]member)
	var order []zipKey
	for rows.Next() {
		var k zipKey
		var m member
		if err := rows.Scan(&k.zip, &k.state, &m.npi, &m.name, &m.paid, &m.claims); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
		m.state = k.state
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	type cluster struct {
		key     zipKey
		members []member
		paid    float64
		claims  int64
	}
	var clusters []cluster
	for _, k := range order {
		ms := groups[k]
		if len(ms) < clusterMinNPIs {
			continue
		}
		c := cluster{key: k, members: ms}
		for _, m := range ms {
			c.paid += m.paid
			c.claims += m.claims
		}
		if c.paid <= clusterMinPaid {
			continue
		}
		clusters = append(clusters, c)
	}

	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].paid > clusters[j].paid })

	var findings []domain.Finding
	for _, c := range clusters {
		sortMembers(c.members)
		npis := make([]string, len(c.members))
		names := make([]string, len(c.members))
		for i, m := range c.members {
			npis[i] = m.npi
			names[i] = m.name
		}

		sev := domain.SeverityMedium
		if len(c.members) >= clusterHighNPIs {
			sev = domain.SeverityHigh
		}

		ev := domain.AddressClusteringEvidence{
			ZipCode:             c.key.zip,
			State:               c.key.state,
			NPICount:            len(c.members),
			ClusteredNPIs:       capList(npis),
			ProviderNames:       capList(names),
			CombinedTotalPaid:   domain.RoundCents(c.paid),
			CombinedTotalClaims: c.claims,
		}
		findings = append(findings, memberFindings(d.Name(), sev, ev, c.members, clusterRate)...)
	}
	return findings, nil
}
