package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	spreadMinBilling    = 5
	spreadMinPaid       = 200_000.0
	spreadClaimsPerBene = 100.0
	spreadHighPerBene   = 200.0
	spreadExcessRate    = 0.65
	spreadFallbackRate  = 0.7
)

// PhantomServicingSpread flags servicing NPIs spread across many billing
// entities whose claims reach very few unique beneficiaries.
type PhantomServicingSpread struct{}

func (PhantomServicingSpread) Name() domain.SignalType { return domain.SignalPhantomServicingSpread }

func (PhantomServicingSpread) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Shared servicing provider with implausibly few patients per claim",
		Methodology:      "Servicing NPIs appearing under 5 or more other billing NPIs with over $200K paid are compared on beneficiaries per claim. Those above 100 claims per beneficiary or below the 10th percentile of the group are flagged; the finding is attributed to the servicing NPI.",
		OverpaymentBasis: "65% of payments for claims above the 10th percentile beneficiary rate",
		Threshold:        "> 100 claims per beneficiary or ratio < peer p10; high above 200",
	}
}

func (h *hub) beneRatio() float64 {
	if h.claims == 0 {
		return 0
	}
	return float64(h.benes) / float64(h.claims)
}

func (h *hub) claimsPerBene() float64 {
	if h.benes == 0 {
		return 0
	}
	return float64(h.claims) / float64(h.benes)
}

func (d PhantomServicingSpread) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	hubs, err := servicingHubs(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	var candidates []*hub
	var ratios []float64
	for _, h := range hubs {
		if len(h.billing) < spreadMinBilling || h.paid <= spreadMinPaid {
			continue
		}
		candidates = append(candidates, h)
		if r := h.beneRatio(); r > 0 {
			ratios = append(ratios, r)
		}
	}
	sort.Float64s(ratios)
	baseline := len(ratios) > 0
	p10 := percentile(ratios, 0.1)
	median := percentile(ratios, 0.5)

	var flagged []*hub
	for _, h := range candidates {
		if h.claimsPerBene() > spreadClaimsPerBene || (baseline && h.beneRatio() < p10) {
			flagged = append(flagged, h)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool { return flagged[i].paid > flagged[j].paid })

	findings := make([]domain.Finding, 0, len(flagged))
	for _, h := range flagged {
		cpb := h.claimsPerBene()
		sev := domain.SeverityMedium
		if cpb > spreadHighPerBene {
			sev = domain.SeverityHigh
		}

		var overpayment float64
		if h.benes > 0 && p10 > 0 {
			excess := float64(h.claims) - float64(h.benes)/p10
			if excess < 0 {
				excess = 0
			}
			overpayment = excess * h.paid / float64(h.claims) * spreadExcessRate
		} else {
			overpayment = h.paid * spreadFallbackRate
		}

		ev := domain.NewGenericEvidence().
			Set("servicing_npi", h.npi).
			Set("servicing_provider_name", h.displayName()).
			Set("distinct_billing_npis", len(h.billing)).
			Set("billing_npi_list", capList(h.billing)).
			Set("total_paid", domain.RoundCents(h.paid)).
			Set("total_claims", h.claims).
			Set("total_beneficiaries", h.benes).
			Set("bene_claim_ratio", domain.RoundTo(h.beneRatio(), 4)).
			Set("claims_per_beneficiary", domain.RoundTo(cpb, 1)).
			Set("p10_bene_ratio_baseline", domain.RoundTo(p10, 4)).
			Set("median_bene_ratio_baseline", domain.RoundTo(median, 4)).
			Set("taxonomy_code", h.taxonomy).
			Set("state", h.state)
		findings = append(findings, domain.NewFinding(h.npi, d.Name(), sev, ev, domain.RoundCents(overpayment)))
	}
	return findings, nil
}
