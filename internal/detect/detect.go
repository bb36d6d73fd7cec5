// Package detect implements the SQL signal detectors that run over the
// Medicaid dataset. Each detector is independent and produces findings for
// one signal type. Queries aggregate the raw spending and nppes tables
// directly and stay portable across SQLite and PostgreSQL; statistics are
// computed in Go.
package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Public health emergency window, inclusive, as YYYY-MM.
const (
	CovidStart = "2020-03"
	CovidEnd   = "2021-12"
)

// covidHCPCS are testing, telehealth and treatment codes whose volume and
// rates were set by the emergency response.
var covidHCPCS = map[string]bool{
	"87635": true, "U0003": true, "U0004": true,
	"99441": true, "99442": true, "99443": true,
	"0202U": true, "0223U": true, "0225U": true,
	"86328": true, "86769": true,
	"J0878": true,
}

// maxEvidenceList caps NPI and name lists carried in evidence.
const maxEvidenceList = 20

// providerTotalsCTE aggregates all-time billing per billing NPI.
const providerTotalsCTE = `
	provider_totals AS (
		SELECT billing_npi AS npi,
			   SUM(total_paid) AS total_paid,
			   SUM(total_claims) AS total_claims,
			   SUM(unique_beneficiaries) AS total_beneficiaries
		FROM spending
		GROUP BY billing_npi
	)`

// providerNameExpr is the display name of an nppes row aliased n.
const providerNameExpr = `COALESCE(NULLIF(TRIM(n.org_name), ''),
	TRIM(COALESCE(n.first_name, '') || ' ' || COALESCE(n.last_name, '')))`

// Describer is implemented by detectors that document themselves in the
// report methodology.
type Describer interface {
	Methodology() domain.SignalMethodology
}

// Registry returns every detector in canonical run order.
func Registry() []domain.Detector {
	return []domain.Detector{
		ExcludedProvider{},
		BillingOutlier{},
		RapidEscalation{},
		WorkforceImpossibility{},
		SharedOfficial{},
		GeographicImplausibility{},
		AddressClustering{},
		Upcoding{},
		ConcurrentBilling{},
		BurstEnrollment{},
		CoordinatedBillingRamp{},
		PhantomServicingHub{},
		NetworkBeneficiaryDilution{},
		CaregiverDensityAnomaly{},
		RepetitiveServiceAbuse{},
		BillingMonoculture{},
		BillingBustOut{},
		ReimbursementRateAnomaly{},
		PhantomServicingSpread{},
	}
}

// Select returns the registry detectors named in names, in canonical order.
// An empty list selects every detector.
func Select(names []string) ([]domain.Detector, error) {
	all := Registry()
	if len(names) == 0 {
		return all, nil
	}

	want := make(map[domain.SignalType]bool, len(names))
	for _, n := range names {
		want[domain.SignalType(strings.TrimSpace(n))] = true
	}

	var out []domain.Detector
	for _, d := range all {
		if want[d.Name()] {
			out = append(out, d)
			delete(want, d.Name())
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for s := range want {
			unknown = append(unknown, string(s))
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown detectors: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// Methodologies collects the methodology of every detector that has one.
func Methodologies(detectors []domain.Detector) map[domain.SignalType]domain.SignalMethodology {
	out := make(map[domain.SignalType]domain.SignalMethodology, len(detectors))
	for _, d := range detectors {
		if m, ok := d.(Describer); ok {
			out[d.Name()] = m.Methodology()
		}
	}
	return out
}

// IsCovidEra reports whether a YYYY-MM or YYYY-MM-DD value falls inside
// the public health emergency window.
func IsCovidEra(month string) bool {
	if len(month) < 7 {
		return false
	}
	ym := month[:7]
	return ym >= CovidStart && ym <= CovidEnd
}

// percentile returns the p-th percentile (0..1) of sorted values using
// linear interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// capList returns at most maxEvidenceList leading values.
func capList(values []string) []string {
	if len(values) > maxEvidenceList {
		values = values[:maxEvidenceList]
	}
	return append([]string{}, values...)
}

// distinctSorted returns the sorted, non-empty distinct values.
func distinctSorted(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// member is one provider inside a network-style finding.
type member struct {
	npi    string
	name   string
	state  string
	paid   float64
	claims int64
	benes  int64
}

// memberNPIs returns member NPIs in member order.
func memberNPIs(ms []member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.npi
	}
	return out
}

// memberNames returns member names in member order.
func memberNames(ms []member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.name
	}
	return out
}

// monthsBetween counts calendar months from a to b, both YYYY-MM-DD.
func monthsBetween(a, b string) (int, bool) {
	ta, err := parseDate(a)
	if err != nil {
		return 0, false
	}
	tb, err := parseDate(b)
	if err != nil {
		return 0, false
	}
	return (tb.Year()-ta.Year())*12 + int(tb.Month()) - int(ta.Month()), true
}

// sortMembers orders members by NPI.
func sortMembers(ms []member) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].npi < ms[j].npi })
}

// memberFindings emits one finding per member. Each member carries its
// own share of the network estimate: its billing times rate.
func memberFindings(signal domain.SignalType, sev domain.Severity, ev domain.Evidence, ms []member, rate float64) []domain.Finding {
	out := make([]domain.Finding, 0, len(ms))
	for _, m := range ms {
		out = append(out, domain.NewFinding(m.npi, signal, sev, ev, domain.RoundCents(m.paid*rate)))
	}
	return out
}
