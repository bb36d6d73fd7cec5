package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	caregiverMinZipPaid      = 100_000.0
	caregiverMinStateZips    = 3
	caregiverMedianRatio     = 3.0
	caregiverHighRatio       = 5.0
	caregiverHighPaid        = 500_000.0
	caregiverIndividualShare = 0.5
	caregiverMaxBenes        = 5.0
	caregiverRate            = 0.4
)

// homeHealthCodes are personal care, home health aide and skilled home
// visit HCPCS codes.
const homeHealthCodes = `'T1019', 'T1020', 'T1021', 'S5125', 'S5126', 'S5130', 'S5135', 'G0156', 'G0299', 'G0300'`

// CaregiverDensityAnomaly flags zip codes where home health billing is far
// above the state norm and concentrated in individuals with few patients.
type CaregiverDensityAnomaly struct{}

func (CaregiverDensityAnomaly) Name() domain.SignalType { return domain.SignalCaregiverDensityAnomaly }

func (CaregiverDensityAnomaly) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Zip code with home health billing concentrated in individual caregivers",
		Methodology:      "Home health and personal care billing is totalled per NPPES zip code. Zips over $100K are compared with the median zip in their state (3 or more zips). Zips above 3x the median where individuals are most of the billers and average under 5 beneficiaries each are flagged; every billing NPI in the zip receives a finding.",
		OverpaymentBasis: "40% of billing above the state median, split evenly across the zip's NPIs",
		Threshold:        "> 3x state median, > 50% individuals, < 5 beneficiaries per individual; high above 5x or $500K",
	}
}

const caregiverQuery = `
	SELECT n.npi, TRIM(n.zip_code), TRIM(n.state), COALESCE(n.entity_type_code, ''),
		   COALESCE(` + providerNameExpr + `, ''),
		   SUM(s.total_paid), SUM(s.total_claims), SUM(s.unique_beneficiaries)
	FROM spending s
	JOIN nppes n ON n.npi = s.billing_npi
	WHERE s.hcpcs_code IN (` + homeHealthCodes + `)
	  AND n.zip_code IS NOT NULL AND TRIM(n.zip_code) != ''
	  AND n.state IS NOT NULL AND TRIM(n.state) != ''
	GROUP BY n.npi, TRIM(n.zip_code), TRIM(n.state), n.entity_type_code,
			 n.org_name, n.first_name, n.last_name
	ORDER BY n.npi
`

type caregiverZip struct {
	zip         string
	state       string
	npis        []string
	names       []string
	individuals int
	paid        float64
	claims      int64
	benes       int64
}

func (z *caregiverZip) individualShare() float64 {
	return float64(z.individuals) / float64(len(z.npis))
}

func (z *caregiverZip) benesPerIndividual() (float64, bool) {
	if z.individuals == 0 {
		return 0, false
	}
	return float64(z.benes) / float64(z.individuals), true
}

func (d CaregiverDensityAnomaly) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := ds.Query(ctx, caregiverQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	defer rows.Close()

	zips := make(map[zipKey]*caregiverZip)
	var order []zipKey
	for rows.Next() {
		var npi, entity, name string
		var k zipKey
		var paid float64
		var claims, benes int64
		if err := rows.Scan(&npi, &k.zip, &k.state, &entity, &name, &paid, &claims, &benes); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
		z, ok := zips[k]
		if !ok {
			z = &caregiverZip{zip: k.zip, state: k.state}
			zips[k] = z
			order = append(order, k)
		}
		z.npis = append(z.npis, npi)
		z.names = append(z.names, name)
		if entity == "1" {
			z.individuals++
		}
		z.paid += paid
		z.claims += claims
		z.benes += benes
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	byState := make(map[string][]*caregiverZip)
	for _, k := range order {
		if z := zips[k]; z.paid >= caregiverMinZipPaid {
			byState[z.state] = append(byState[z.state], z)
		}
	}

	medians := make(map[string]float64, len(byState))
	for state, zs := range byState {
		if len(zs) < caregiverMinStateZips {
			continue
		}
		totals := make([]float64, len(zs))
		for i, z := range zs {
			totals[i] = z.paid
		}
		sort.Float64s(totals)
		medians[state] = percentile(totals, 0.5)
	}

	type flagged struct {
		zip    *caregiverZip
		median float64
		ratio  float64
	}
	var hits []flagged
	for _, k := range order {
		z := zips[k]
		median, ok := medians[z.state]
		if !ok || median <= 0 || z.paid < caregiverMinZipPaid {
			continue
		}
		ratio := z.paid / median
		bpi, ok := z.benesPerIndividual()
		if ratio <= caregiverMedianRatio || z.individualShare() <= caregiverIndividualShare || !ok || bpi >= caregiverMaxBenes {
			continue
		}
		hits = append(hits, flagged{zip: z, median: median, ratio: ratio})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].zip.paid > hits[j].zip.paid })

	var findings []domain.Finding
	for _, h := range hits {
		z := h.zip
		sev := domain.SeverityMedium
		if h.ratio > caregiverHighRatio || z.paid > caregiverHighPaid {
			sev = domain.SeverityHigh
		}
		bpi, _ := z.benesPerIndividual()

		ev := domain.NewGenericEvidence().
			Set("zip_code", z.zip).
			Set("state", z.state).
			Set("provider_count", len(z.npis)).
			Set("individual_provider_count", z.individuals).
			Set("individual_provider_ratio", domain.RoundTo(z.individualShare(), 2)).
			Set("total_hh_paid", domain.RoundCents(z.paid)).
			Set("total_hh_claims", z.claims).
			Set("total_hh_beneficiaries", z.benes).
			Set("beneficiaries_per_individual_provider", domain.RoundTo(bpi, 2)).
			Set("state_median_hh_paid", domain.RoundCents(h.median)).
			Set("ratio_to_state_median", domain.RoundTo(h.ratio, 2)).
			Set("flagged_npis", capList(z.npis)).
			Set("provider_names", capList(distinctSorted(z.names)))

		share := (z.paid - h.median) * caregiverRate / float64(len(z.npis))
		for _, npi := range z.npis {
			findings = append(findings, domain.NewFinding(npi, d.Name(), sev, ev, domain.RoundCents(share)))
		}
	}
	return findings, nil
}
