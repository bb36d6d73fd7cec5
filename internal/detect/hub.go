package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	hubMinBilling      = 5
	hubMinPaid         = 500_000.0
	hubCriticalBilling = 15
	hubHighBilling     = 10
	hubLowBeneRatio    = 0.1
	hubHighPaid        = 2_000_000.0
	hubRate            = 0.35
)

// PhantomServicingHub flags servicing NPIs that appear on the claims of
// many distinct billing entities.
type PhantomServicingHub struct{}

func (PhantomServicingHub) Name() domain.SignalType { return domain.SignalPhantomServicingHub }

func (PhantomServicingHub) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Servicing provider shared across many unrelated billing entities",
		Methodology:      "Claims are aggregated per servicing and billing NPI pair. Servicing NPIs that appear under 5 or more other billing NPIs with over $500K paid through them are flagged; the finding is attributed to the servicing NPI.",
		OverpaymentBasis: "35% of payments routed through the hub",
		Threshold:        ">= 5 billing NPIs and > $500K; critical at 15, or 10 with under 0.1 beneficiaries per claim; high at 10 or above $2M",
	}
}

const hubQuery = `
	WITH pairs AS (
		SELECT servicing_npi, billing_npi,
			   SUM(total_paid) AS paid,
			   SUM(total_claims) AS claims,
			   SUM(unique_beneficiaries) AS benes
		FROM spending
		WHERE servicing_npi IS NOT NULL AND servicing_npi != ''
		  AND servicing_npi != billing_npi
		GROUP BY servicing_npi, billing_npi
	)
	SELECT p.servicing_npi, p.billing_npi, p.paid, p.claims, p.benes,
		   COALESCE(` + providerNameExpr + `, ''),
		   COALESCE(n.taxonomy_code, ''), COALESCE(n.state, '')
	FROM pairs p
	LEFT JOIN nppes n ON n.npi = p.servicing_npi
	ORDER BY p.servicing_npi, p.billing_npi
`

type hub struct {
	npi      string
	name     string
	taxonomy string
	state    string
	billing  []string
	paid     float64
	claims   int64
	benes    int64
}

// servicingHubs loads per-servicing-NPI totals across the distinct billing
// NPIs it appears under, ordered by servicing NPI.
func servicingHubs(ctx context.Context, ds domain.Dataset) ([]*hub, error) {
	rows, err := ds.Query(ctx, hubQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hubs []*hub
	var cur *hub
	for rows.Next() {
		var servicing, billing, name, tax, state string
		var paid float64
		var claims, benes int64
		if err := rows.Scan(&servicing, &billing, &paid, &claims, &benes, &name, &tax, &state); err != nil {
			return nil, err
		}
		if cur == nil || cur.npi != servicing {
			cur = &hub{npi: servicing, name: name, taxonomy: tax, state: state}
			hubs = append(hubs, cur)
		}
		cur.billing = append(cur.billing, billing)
		cur.paid += paid
		cur.claims += claims
		cur.benes += benes
	}
	return hubs, rows.Err()
}

// displayName falls back to "Unknown" for servicing NPIs missing from NPPES.
func (h *hub) displayName() string {
	if h.name == "" {
		return "Unknown"
	}
	return h.name
}

func (d PhantomServicingHub) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	hubs, err := servicingHubs(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	var flagged []*hub
	for _, h := range hubs {
		if len(h.billing) >= hubMinBilling && h.paid > hubMinPaid {
			flagged = append(flagged, h)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool { return flagged[i].paid > flagged[j].paid })

	findings := make([]domain.Finding, 0, len(flagged))
	for _, h := range flagged {
		ratio := 0.0
		if h.claims > 0 {
			ratio = float64(h.benes) / float64(h.claims)
		}
		count := len(h.billing)

		var sev domain.Severity
		switch {
		case count >= hubCriticalBilling || (count >= hubHighBilling && ratio < hubLowBeneRatio):
			sev = domain.SeverityCritical
		case count >= hubHighBilling || h.paid > hubHighPaid:
			sev = domain.SeverityHigh
		default:
			sev = domain.SeverityMedium
		}

		ev := domain.PhantomServicingHubEvidence{
			ServicingProviderName: h.displayName(),
			TaxonomyCode:          h.taxonomy,
			State:                 h.state,
			DistinctBillingNPIs:   count,
			BillingNPIList:        capList(h.billing),
			TotalPaidThroughHub:   domain.RoundCents(h.paid),
			TotalClaims:           h.claims,
			TotalBeneficiaries:    h.benes,
			BeneficiaryClaimRatio: domain.RoundTo(ratio, 4),
		}
		findings = append(findings, domain.NewFinding(h.npi, d.Name(), sev, ev, domain.RoundCents(h.paid*hubRate)))
	}
	return findings, nil
}
