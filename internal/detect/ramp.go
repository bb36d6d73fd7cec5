package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	rampMinNPIs         = 3
	rampMaxSpreadMonths = 3
	rampMinPeakPaid     = 200_000.0
	rampCriticalNPIs    = 5
	rampCriticalSpread  = 1
	rampCriticalNetwork = 2_000_000.0
	rampRate            = 0.3
)

// CoordinatedBillingRamp flags authorized official networks whose members
// all hit their peak billing month within a few months of each other.
type CoordinatedBillingRamp struct{}

func (CoordinatedBillingRamp) Name() domain.SignalType { return domain.SignalCoordinatedBillingRamp }

func (CoordinatedBillingRamp) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Commonly controlled providers peaking in the same few months",
		Methodology:      "Billing NPIs sharing an authorized official are grouped. Each member's highest-paid month is its peak; networks of 3 or more whose peaks fall within 3 months and total over $200K are flagged. The finding is attributed to the lowest network NPI.",
		OverpaymentBasis: "30% of all-time network billing",
		Threshold:        ">= 3 NPIs, peak spread <= 3 months, combined peak > $200K; critical at 5 NPIs within 1 month above $2M",
	}
}

func (d CoordinatedBillingRamp) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	groups, err := officialGroups(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	monthly, err := providerMonthly(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	series := make(map[string]*providerMonths, len(monthly))
	for _, pm := range monthly {
		series[pm.npi] = pm
	}

	type network struct {
		group     *officialGroup
		npis      []string
		earliest  string
		latest    string
		spread    int
		peakPaid  float64
		totalPaid float64
	}
	var networks []network

	for _, g := range groups {
		n := network{group: g}
		for _, m := range g.members {
			n.totalPaid += m.paid
			pm, ok := series[m.npi]
			if !ok || len(pm.months) == 0 {
				continue
			}
			peak := pm.months[pm.peak()]
			n.npis = append(n.npis, m.npi)
			n.peakPaid += peak.paid
			if n.earliest == "" || peak.month < n.earliest {
				n.earliest = peak.month
			}
			if peak.month > n.latest {
				n.latest = peak.month
			}
		}
		if len(n.npis) < rampMinNPIs || n.peakPaid <= rampMinPeakPaid {
			continue
		}
		spread, ok := monthsBetween(n.earliest, n.latest)
		if !ok || spread > rampMaxSpreadMonths {
			continue
		}
		n.spread = spread
		networks = append(networks, n)
	}

	sort.SliceStable(networks, func(i, j int) bool { return networks[i].totalPaid > networks[j].totalPaid })

	findings := make([]domain.Finding, 0, len(networks))
	for _, n := range networks {
		sev := domain.SeverityHigh
		if n.spread <= rampCriticalSpread && len(n.npis) >= rampCriticalNPIs && n.totalPaid > rampCriticalNetwork {
			sev = domain.SeverityCritical
		}

		ev := domain.NewGenericEvidence().
			Set("authorized_official_name", n.group.name).
			Set("npis_in_network", len(n.npis)).
			Set("network_npis", capList(n.npis)).
			Set("organization_names", capList(distinctSorted(memberNames(n.group.members)))).
			Set("earliest_peak_month", n.earliest).
			Set("latest_peak_month", n.latest).
			Set("peak_spread_months", n.spread).
			Set("combined_peak_paid", domain.RoundCents(n.peakPaid)).
			Set("network_total_paid", domain.RoundCents(n.totalPaid))

		findings = append(findings, domain.NewFinding(n.npis[0], d.Name(), sev, ev, domain.RoundCents(n.totalPaid*rampRate)))
	}
	return findings, nil
}
