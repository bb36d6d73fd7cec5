package detect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	escalationWindowMonths = 12
	escalationEnrollMonths = 24
	escalationGrowthPct    = 200.0
	escalationHighPct      = 500.0
	dateLayout             = "2006-01-02"
)

// RapidEscalation flags newly enumerated providers whose billing grows
// faster than a rolling 3-month average of 200% during their first year.
type RapidEscalation struct{}

func (RapidEscalation) Name() domain.SignalType { return domain.SignalRapidEscalation }

func (RapidEscalation) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "New provider with explosive billing growth in its first year",
		Methodology:      "Providers enumerated within 24 months before their first billing month. Month-over-month growth over the first 12 billing months is averaged over a rolling 3-month window.",
		OverpaymentBasis: "Payments in months where growth exceeded 200%",
		Threshold:        "Peak rolling average growth > 200%; high above 500%; low when the first month falls in the COVID-19 emergency",
	}
}

const escalationQuery = `
	SELECT s.billing_npi, n.enumeration_date, s.claim_month, SUM(s.total_paid)
	FROM spending s
	JOIN nppes n ON n.npi = s.billing_npi
	WHERE n.enumeration_date IS NOT NULL AND n.enumeration_date != ''
	GROUP BY s.billing_npi, n.enumeration_date, s.claim_month
	ORDER BY s.billing_npi, s.claim_month
`

type monthlySeries struct {
	npi         string
	enumeration string
	months      []string
	paid        []float64
}

func (d RapidEscalation) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := ds.Query(ctx, escalationQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	defer rows.Close()

	var series []*monthlySeries
	var cur *monthlySeries
	for rows.Next() {
		var npi, enum, month string
		var paid float64
		if err := rows.Scan(&npi, &enum, &month, &paid); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
		if cur == nil || cur.npi != npi {
			cur = &monthlySeries{npi: npi, enumeration: enum}
			series = append(series, cur)
		}
		cur.months = append(cur.months, month)
		cur.paid = append(cur.paid, paid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	type flagged struct {
		finding domain.Finding
		peak    float64
	}
	var out []flagged

	for _, s := range series {
		if !enumeratedBeforeFirstBill(s.enumeration, s.months[0]) {
			continue
		}

		n := len(s.paid)
		if n > escalationWindowMonths {
			n = escalationWindowMonths
		}
		first := s.paid[:n]

		peak, overpayment, ok := escalationPeak(first)
		if !ok {
			continue
		}

		sev := domain.SeverityMedium
		if peak > escalationHighPct {
			sev = domain.SeverityHigh
		}
		ev := domain.RapidEscalationEvidence{
			EnumerationDate:          s.enumeration,
			FirstBillingMonth:        s.months[0],
			PeakThreeMonthGrowthRate: domain.RoundTo(peak, 2),
			MonthlyAmountsFirst12:    append([]float64{}, first...),
		}
		if IsCovidEra(s.months[0]) {
			sev = domain.SeverityLow
			ev.CovidEraFlag = true
		}

		out = append(out, flagged{
			finding: domain.NewFinding(s.npi, d.Name(), sev, ev, domain.RoundCents(overpayment)),
			peak:    peak,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].peak > out[j].peak })

	findings := make([]domain.Finding, len(out))
	for i, f := range out {
		findings[i] = f.finding
	}
	return findings, nil
}

// enumeratedBeforeFirstBill reports whether enumeration falls in the 24
// months before the first billing month.
func enumeratedBeforeFirstBill(enumeration, firstMonth string) bool {
	enum, err := parseDate(enumeration)
	if err != nil {
		return false
	}
	first, err := parseDate(firstMonth)
	if err != nil {
		return false
	}
	return !enum.Before(first.AddDate(0, -escalationEnrollMonths, 0)) && enum.Before(first)
}

// escalationPeak computes month-over-month growth (skipping months whose
// predecessor is not positive), its rolling 3-row average, and the sum of
// payments in months with growth above the threshold. ok is false when no
// rolling average exceeds the threshold.
func escalationPeak(paid []float64) (peak, overpayment float64, ok bool) {
	growth := make([]float64, len(paid))
	valid := make([]bool, len(paid))
	for i := 1; i < len(paid); i++ {
		if paid[i-1] > 0 {
			growth[i] = (paid[i] - paid[i-1]) / paid[i-1] * 100
			valid[i] = true
			if growth[i] > escalationGrowthPct {
				overpayment += paid[i]
			}
		}
	}

	for i := range paid {
		var sum float64
		var count int
		for j := i - 2; j <= i; j++ {
			if j >= 0 && valid[j] {
				sum += growth[j]
				count++
			}
		}
		if count == 0 {
			continue
		}
		avg := sum / float64(count)
		if avg > escalationGrowthPct && (!ok || avg > peak) {
			peak = avg
			ok = true
		}
	}
	return peak, overpayment, ok
}

func parseDate(s string) (time.Time, error) {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.Parse(dateLayout, s)
}
