package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	dilutionMinNPIs         = 3
	dilutionMinPaid         = 500_000.0
	dilutionClaimsPerBene   = 50.0
	dilutionCriticalPerBene = 100.0
	dilutionCriticalPaid    = 2_000_000.0
	dilutionHighRatio       = 0.02
	dilutionHighNPIs        = 5
	dilutionCapRate         = 0.8
	dilutionFallbackRate    = 0.5
)

// NetworkBeneficiaryDilution flags authorized official networks whose
// combined claims are spread over very few unique beneficiaries.
type NetworkBeneficiaryDilution struct{}

func (NetworkBeneficiaryDilution) Name() domain.SignalType {
	return domain.SignalNetworkBeneficiaryDilution
}

func (NetworkBeneficiaryDilution) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Commonly controlled providers recycling the same few beneficiaries",
		Methodology:      "Billing NPIs sharing an authorized official are combined. Networks of 3 or more billing over $500K are compared on beneficiaries per claim; networks above 50 claims per beneficiary or below the 10th percentile ratio are flagged. The finding is attributed to the lowest network NPI.",
		OverpaymentBasis: "Claims above the peer median claims per beneficiary at the network's average paid per claim, capped at 80% of billing",
		Threshold:        "> 50 claims per beneficiary or ratio < peer p10; critical above 100 and $2M",
	}
}

type diluted struct {
	group  *officialGroup
	npis   []string
	paid   float64
	claims int64
	benes  int64
}

func (n diluted) beneRatio() float64 {
	if n.claims == 0 {
		return 0
	}
	return float64(n.benes) / float64(n.claims)
}

// claimsPerBene is undefined when the network has no beneficiaries.
func (n diluted) claimsPerBene() (float64, bool) {
	if n.benes == 0 {
		return 0, false
	}
	return float64(n.claims) / float64(n.benes), true
}

func (d NetworkBeneficiaryDilution) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	groups, err := officialGroups(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	var networks []diluted
	for _, g := range groups {
		ms := g.billedMembers()
		n := diluted{group: g, npis: memberNPIs(ms)}
		for _, m := range ms {
			n.paid += m.paid
			n.claims += m.claims
			n.benes += m.benes
		}
		if len(ms) < dilutionMinNPIs || n.paid <= dilutionMinPaid || n.claims <= 0 {
			continue
		}
		networks = append(networks, n)
	}
	if len(networks) == 0 {
		return nil, nil
	}

	ratios := make([]float64, 0, len(networks))
	var benesRates []float64
	for _, n := range networks {
		ratios = append(ratios, n.beneRatio())
		if cpb, ok := n.claimsPerBene(); ok {
			benesRates = append(benesRates, cpb)
		}
	}
	sort.Float64s(ratios)
	sort.Float64s(benesRates)
	p10 := percentile(ratios, 0.1)
	medianPerBene := 1.0
	if len(benesRates) > 0 {
		medianPerBene = percentile(benesRates, 0.5)
	}

	var flagged []diluted
	for _, n := range networks {
		cpb, ok := n.claimsPerBene()
		if (ok && cpb > dilutionClaimsPerBene) || n.beneRatio() < p10 {
			flagged = append(flagged, n)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool { return flagged[i].paid > flagged[j].paid })

	findings := make([]domain.Finding, 0, len(flagged))
	for _, n := range flagged {
		cpb, _ := n.claimsPerBene()
		ratio := n.beneRatio()

		var sev domain.Severity
		switch {
		case cpb > dilutionCriticalPerBene && n.paid > dilutionCriticalPaid:
			sev = domain.SeverityCritical
		case cpb > dilutionClaimsPerBene || (ratio < dilutionHighRatio && len(n.npis) >= dilutionHighNPIs):
			sev = domain.SeverityHigh
		default:
			sev = domain.SeverityMedium
		}

		var overpayment float64
		if n.benes > 0 && medianPerBene > 0 {
			excess := float64(n.claims) - float64(n.benes)*medianPerBene
			if excess < 0 {
				excess = 0
			}
			overpayment = excess * n.paid / float64(n.claims)
			if limit := n.paid * dilutionCapRate; overpayment > limit {
				overpayment = limit
			}
		} else {
			overpayment = n.paid * dilutionFallbackRate
		}

		ev := domain.NewGenericEvidence().
			Set("authorized_official_name", n.group.name).
			Set("npi_count", len(n.npis)).
			Set("network_npis", capList(n.npis)).
			Set("organization_names", capList(distinctSorted(memberNames(n.group.billedMembers())))).
			Set("combined_total_paid", domain.RoundCents(n.paid)).
			Set("combined_total_claims", n.claims).
			Set("combined_total_beneficiaries", n.benes).
			Set("claims_per_beneficiary", domain.RoundTo(cpb, 2)).
			Set("network_beneficiary_ratio", domain.RoundTo(ratio, 4)).
			Set("peer_median_claims_per_bene", domain.RoundTo(medianPerBene, 2))

		findings = append(findings, domain.NewFinding(n.npis[0], d.Name(), sev, ev, domain.RoundCents(overpayment)))
	}
	return findings, nil
}
