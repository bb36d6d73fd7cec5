package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// ExcludedProvider flags billing or servicing NPIs that keep receiving
// payments after an OIG exclusion with no later reinstatement.
type ExcludedProvider struct{}

func (ExcludedProvider) Name() domain.SignalType { return domain.SignalExcludedProvider }

func (ExcludedProvider) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Provider on the OIG exclusion list still billing Medicaid",
		Methodology:      "Billing and servicing NPIs are matched against LEIE; claim months after the exclusion date and before any reinstatement are summed.",
		OverpaymentBasis: "All payments received after the exclusion date",
		Threshold:        "Any claim month after exclusion",
	}
}

const excludedQuery = `
	WITH excluded AS (
		SELECT npi, excl_date, rein_date,
			   COALESCE(excl_type, '') AS excl_type,
			   COALESCE(lastname, '') AS lastname,
			   COALESCE(firstname, '') AS firstname,
			   COALESCE(busname, '') AS busname
		FROM leie
		WHERE npi IS NOT NULL AND TRIM(npi) != '' AND npi != '0000000000'
		  AND excl_date IS NOT NULL AND excl_date != ''
	),
	spending_npis AS (
		SELECT s.billing_npi AS npi, s.claim_month, s.total_paid, s.total_claims
		FROM spending s
		WHERE s.billing_npi IN (SELECT npi FROM excluded)
		UNION ALL
		SELECT s.servicing_npi AS npi, s.claim_month, s.total_paid, s.total_claims
		FROM spending s
		WHERE s.servicing_npi IN (SELECT npi FROM excluded)
		  AND s.servicing_npi != s.billing_npi
	)
	SELECT sn.npi, l.excl_date, l.excl_type, l.lastname, l.firstname, l.busname,
		   SUM(sn.total_paid) AS paid_after,
		   SUM(sn.total_claims) AS claims_after,
		   MIN(sn.claim_month), MAX(sn.claim_month)
	FROM spending_npis sn
	JOIN excluded l ON sn.npi = l.npi
	WHERE sn.claim_month >= l.excl_date
	  AND (l.rein_date IS NULL OR l.rein_date = '' OR l.rein_date > sn.claim_month)
	GROUP BY sn.npi, l.excl_date, l.excl_type, l.lastname, l.firstname, l.busname
	ORDER BY paid_after DESC, sn.npi
`

func (d ExcludedProvider) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := ds.Query(ctx, excludedQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	defer rows.Close()

	var findings []domain.Finding
	for rows.Next() {
		var (
			npi, exclDate, exclType, last, first, bus string
			paid                                      float64
			claims                                    int64
			firstClaim, lastClaim                     string
		)
		if err := rows.Scan(&npi, &exclDate, &exclType, &last, &first, &bus,
			&paid, &claims, &firstClaim, &lastClaim); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}

		ev := domain.ExcludedProviderEvidence{
			ExclusionDate:             exclDate,
			ExclusionType:             exclType,
			ProviderName:              strings.Join(strings.Fields(first+" "+last+" "+bus), " "),
			TotalPaidAfterExclusion:   domain.RoundCents(paid),
			TotalClaimsAfterExclusion: claims,
			FirstClaimAfterExclusion:  firstClaim,
			LastClaimAfterExclusion:   lastClaim,
		}
		findings = append(findings, domain.NewFinding(npi, d.Name(), domain.SeverityCritical, ev, ev.TotalPaidAfterExclusion))
	}
	return findings, rows.Err()
}
