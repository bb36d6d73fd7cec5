package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	geoMinClaims   = 500
	geoMinPaid     = 50_000.0
	geoMinForeign  = 2
	geoMaxHomePct  = 10.0
	geoHighHomePct = 2.0
	geoHighForeign = 5
	geoForeignRate = 0.4
)

// GeographicImplausibility flags individual providers whose services are
// almost entirely rendered outside their registered state.
type GeographicImplausibility struct{}

func (GeographicImplausibility) Name() domain.SignalType {
	return domain.SignalGeographicImplausibility
}

func (GeographicImplausibility) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Individual provider whose services happen almost entirely outside their home state",
		Methodology:      "Claims of individual (entity type 1) billing NPIs are attributed to the NPPES state of their servicing NPI and compared with the billing NPI's registered state.",
		OverpaymentBasis: "40% of billing attributed to other states",
		Threshold:        ">= 500 claims, >= $50K, >= 2 other states and < 10% of claims in the home state; high below 2% with 5 or more other states",
	}
}

const geographicQuery = `
	SELECT s.billing_npi, TRIM(b.state), TRIM(v.state),
		   SUM(s.total_claims), SUM(s.total_paid), SUM(s.unique_beneficiaries)
	FROM spending s
	JOIN nppes b ON b.npi = s.billing_npi
	JOIN nppes v ON v.npi = s.servicing_npi
	WHERE b.entity_type_code = '1'
	  AND b.state IS NOT NULL AND TRIM(b.state) != ''
	  AND v.state IS NOT NULL AND TRIM(v.state) != ''
	GROUP BY s.billing_npi, TRIM(b.state), TRIM(v.state)
	ORDER BY s.billing_npi
`

type geoProfile struct {
	npi        string
	home       string
	claims     int64
	homeClaims int64
	paid       float64
	benes      int64
	foreign    int
}

func (d GeographicImplausibility) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := ds.Query(ctx, geographicQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	defer rows.Close()

	var profiles []*geoProfile
	var cur *geoProfile
	for rows.Next() {
		var npi, home, state string
		var claims, benes int64
		var paid float64
		if err := rows.Scan(&npi, &home, &state, &claims, &paid, &benes); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
		if cur == nil || cur.npi != npi {
			cur = &geoProfile{npi: npi, home: home}
			profiles = append(profiles, cur)
		}
		cur.claims += claims
		cur.paid += paid
		cur.benes += benes
		if state == home {
			cur.homeClaims += claims
		} else {
			cur.foreign++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	var flagged []*geoProfile
	for _, p := range profiles {
		if p.claims < geoMinClaims || p.paid < geoMinPaid || p.foreign < geoMinForeign {
			continue
		}
		if homePct(p) >= geoMaxHomePct {
			continue
		}
		flagged = append(flagged, p)
	}
	sort.SliceStable(flagged, func(i, j int) bool { return flagged[i].paid > flagged[j].paid })

	findings := make([]domain.Finding, 0, len(flagged))
	for _, p := range flagged {
		pct := homePct(p)
		sev := domain.SeverityMedium
		if pct < geoHighHomePct && p.foreign >= geoHighForeign {
			sev = domain.SeverityHigh
		}
		ev := domain.GeographicImplausibilityEvidence{
			RegisteredState:        p.home,
			HomeStateClaims:        p.homeClaims,
			ClaimsCount:            p.claims,
			HomeStatePct:           domain.RoundTo(pct, 2),
			ForeignStatesCount:     p.foreign,
			UniqueBeneficiaries:    p.benes,
			BeneficiaryClaimsRatio: domain.RoundTo(float64(p.benes)/float64(p.claims), 4),
			TotalPaid:              domain.RoundCents(p.paid),
		}
		overpayment := p.paid * (1 - pct/100) * geoForeignRate
		findings = append(findings, domain.NewFinding(p.npi, d.Name(), sev, ev, domain.RoundCents(overpayment)))
	}
	return findings, nil
}

func homePct(p *geoProfile) float64 {
	if p.claims == 0 {
		return 0
	}
	return float64(p.homeClaims) * 100 / float64(p.claims)
}
