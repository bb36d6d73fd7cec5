package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	bustOutMinPeak   = 50_000.0
	bustOutMinMonths = 6
	bustOutWindow    = 3
	bustOutMinPre    = 2
	bustOutPostPct   = 0.10
	bustOutPreShare  = 0.5
	bustOutHighPeak  = 500_000.0
	bustOutRate      = 0.4
)

// BillingBustOut flags providers that ramp up to a single peak month and
// then all but stop billing.
type BillingBustOut struct{}

func (BillingBustOut) Name() domain.SignalType { return domain.SignalBillingBustOut }

func (BillingBustOut) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Sharp billing ramp followed by an abrupt stop",
		Methodology:      "For providers with 6 or more billing months and a peak month over $50K, the 3 months before the peak must average under half the peak and the 3 months after must average under 10% of it. Peaks in the COVID-19 emergency period are downgraded.",
		OverpaymentBasis: "40% of the pre-peak ramp and peak month billing",
		Threshold:        "post-peak average < 10% of peak; high above $500K peak",
	}
}

type bustOut struct {
	npi     string
	peak    monthTotal
	preAvg  float64
	postAvg float64
	months  int
}

// window averages paid over months whose distance from the peak falls in
// (lo, hi], returning the count of months found.
func (p *providerMonths) window(peak string, lo, hi int) (float64, int) {
	var sum float64
	var n int
	for _, m := range p.months {
		diff, ok := monthsBetween(peak, m.month)
		if !ok || diff <= lo || diff > hi {
			continue
		}
		sum += m.paid
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func (d BillingBustOut) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	monthly, err := providerMonthly(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	var hits []bustOut
	for _, pm := range monthly {
		if len(pm.months) < bustOutMinMonths {
			continue
		}
		peak := pm.months[pm.peak()]
		if peak.paid <= bustOutMinPeak {
			continue
		}
		postAvg, post := pm.window(peak.month, 0, bustOutWindow)
		if post == 0 || postAvg/peak.paid >= bustOutPostPct {
			continue
		}
		preAvg, pre := pm.window(peak.month, -bustOutWindow-1, -1)
		if pre < bustOutMinPre || preAvg >= peak.paid*bustOutPreShare {
			continue
		}
		hits = append(hits, bustOut{npi: pm.npi, peak: peak, preAvg: preAvg, postAvg: postAvg, months: len(pm.months)})
	}
	if len(hits) == 0 {
		return nil, nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].peak.paid > hits[j].peak.paid })

	npis := make([]string, len(hits))
	for i, h := range hits {
		npis[i] = h.npi
	}
	locales, err := nppesLocales(ctx, ds, npis)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	findings := make([]domain.Finding, 0, len(hits))
	for _, h := range hits {
		covid := IsCovidEra(h.peak.month)
		sev := domain.SeverityMedium
		switch {
		case covid:
			sev = domain.SeverityLow
		case h.peak.paid > bustOutHighPeak:
			sev = domain.SeverityHigh
		}
		loc := locales[h.npi]
		ev := domain.NewGenericEvidence().
			Set("peak_month", h.peak.month).
			Set("peak_paid", domain.RoundCents(h.peak.paid)).
			Set("peak_claims", h.peak.claims).
			Set("avg_pre_3_months_paid", domain.RoundCents(h.preAvg)).
			Set("post_peak_3_month_paid", domain.RoundCents(h.postAvg)).
			Set("post_peak_pct_of_peak", domain.RoundTo(h.postAvg*100/h.peak.paid, 2)).
			Set("total_billing_months", h.months).
			Set("state", loc.State).
			Set("taxonomy_code", loc.TaxonomyCode)
		if covid {
			ev.Set("covid_era_flag", true)
		}
		overpayment := (h.preAvg*bustOutWindow + h.peak.paid) * bustOutRate
		findings = append(findings, domain.NewFinding(h.npi, d.Name(), sev, ev, domain.RoundCents(overpayment)))
	}
	return findings, nil
}

// nppesLocales looks up state and taxonomy for the given NPIs.
func nppesLocales(ctx context.Context, ds domain.Dataset, npis []string) (map[string]domain.Locale, error) {
	out := make(map[string]domain.Locale, len(npis))
	if len(npis) == 0 {
		return out, nil
	}
	query := `SELECT npi, COALESCE(TRIM(state), ''), COALESCE(taxonomy_code, '')
		FROM nppes WHERE npi IN (?` + strings.Repeat(", ?", len(npis)-1) + `)`
	args := make([]any, len(npis))
	for i, npi := range npis {
		args[i] = npi
	}
	rows, err := ds.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var npi string
		var loc domain.Locale
		if err := rows.Scan(&npi, &loc.State, &loc.TaxonomyCode); err != nil {
			return nil, err
		}
		out[npi] = loc
	}
	return out, rows.Err()
}
