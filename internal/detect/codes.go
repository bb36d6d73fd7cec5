package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const providerCodeQuery = `
	WITH code_totals AS (
		SELECT billing_npi AS npi, hcpcs_code,
			   SUM(total_claims) AS claims,
			   SUM(unique_beneficiaries) AS benes,
			   SUM(total_paid) AS paid
		FROM spending
		WHERE hcpcs_code IS NOT NULL AND hcpcs_code != ''
		GROUP BY billing_npi, hcpcs_code
	)
	SELECT ct.npi, ct.hcpcs_code, ct.claims, ct.benes, ct.paid,
		   COALESCE(n.state, ''), COALESCE(n.taxonomy_code, '')
	FROM code_totals ct
	LEFT JOIN nppes n ON n.npi = ct.npi
	ORDER BY ct.npi, ct.hcpcs_code
`

// codeTotal is one billing NPI's all-time totals for one HCPCS code.
type codeTotal struct {
	npi      string
	code     string
	claims   int64
	benes    int64
	paid     float64
	state    string
	taxonomy string
}

func providerCodeTotals(ctx context.Context, ds domain.Dataset) ([]codeTotal, error) {
	rows, err := ds.Query(ctx, providerCodeQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []codeTotal
	for rows.Next() {
		var c codeTotal
		if err := rows.Scan(&c.npi, &c.code, &c.claims, &c.benes, &c.paid, &c.state, &c.taxonomy); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// codePeers groups rows by HCPCS code, keeping codes with at least minPeers rows.
func codePeers(rows []codeTotal, minPeers int) map[string][]codeTotal {
	byCode := make(map[string][]codeTotal)
	for _, r := range rows {
		byCode[r.code] = append(byCode[r.code], r)
	}
	for code, peers := range byCode {
		if len(peers) < minPeers {
			delete(byCode, code)
		}
	}
	return byCode
}

// sortedBy returns f over peers in ascending order.
func sortedBy(peers []codeTotal, f func(codeTotal) float64) []float64 {
	out := make([]float64, len(peers))
	for i, p := range peers {
		out[i] = f(p)
	}
	sort.Float64s(out)
	return out
}

type rankedFinding struct {
	finding domain.Finding
	key     float64
}

// byKeyDesc orders findings by key, highest first, then by NPI.
func byKeyDesc(out []rankedFinding) []domain.Finding {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].key != out[j].key {
			return out[i].key > out[j].key
		}
		return out[i].finding.NPI < out[j].finding.NPI
	})
	findings := make([]domain.Finding, len(out))
	for i, f := range out {
		findings[i] = f.finding
	}
	return findings
}

const (
	repetitiveMinClaims = 200
	repetitiveMinPeers  = 10
	repetitiveHighMult  = 3.0
	repetitiveRate      = 0.8
)

// RepetitiveServiceAbuse flags providers billing one code far more times
// per beneficiary than nearly every peer billing that code.
type RepetitiveServiceAbuse struct{}

func (RepetitiveServiceAbuse) Name() domain.SignalType { return domain.SignalRepetitiveServiceAbuse }

func (RepetitiveServiceAbuse) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Same service billed an implausible number of times per patient",
		Methodology:      "Per provider and HCPCS code with over 200 claims, claims per beneficiary are compared with the 99th percentile of all providers billing that code (10 or more).",
		OverpaymentBasis: "80% of payments for claims above the peer 99th percentile rate",
		Threshold:        "claims per beneficiary > peer p99; high above 3x p99",
	}
}

func (c codeTotal) perBene() float64 { return float64(c.claims) / float64(c.benes) }

func (d RepetitiveServiceAbuse) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := providerCodeTotals(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	var eligible []codeTotal
	for _, r := range rows {
		if r.benes > 0 && r.claims > repetitiveMinClaims {
			eligible = append(eligible, r)
		}
	}

	var out []rankedFinding
	for code, peers := range codePeers(eligible, repetitiveMinPeers) {
		rates := sortedBy(peers, codeTotal.perBene)
		p99 := percentile(rates, 0.99)
		median := percentile(rates, 0.5)

		for _, p := range peers {
			cpb := p.perBene()
			if cpb <= p99 {
				continue
			}
			sev := domain.SeverityMedium
			if p99 > 0 && cpb > p99*repetitiveHighMult {
				sev = domain.SeverityHigh
			}
			excess := float64(p.claims) - p99*float64(p.benes)
			if excess < 0 {
				excess = 0
			}
			overpayment := excess * p.paid / float64(p.claims) * repetitiveRate

			ev := domain.NewGenericEvidence().
				Set("hcpcs_code", code).
				Set("total_claims", p.claims).
				Set("total_beneficiaries", p.benes).
				Set("claims_per_beneficiary", domain.RoundTo(cpb, 1)).
				Set("peer_99th_percentile_claims_per_bene", domain.RoundTo(p99, 1)).
				Set("peer_median_claims_per_bene", domain.RoundTo(median, 1)).
				Set("peer_count", len(peers)).
				Set("total_paid", domain.RoundCents(p.paid)).
				Set("state", p.state).
				Set("taxonomy_code", p.taxonomy)
			out = append(out, rankedFinding{
				finding: domain.NewFinding(p.npi, d.Name(), sev, ev, domain.RoundCents(overpayment)),
				key:     cpb,
			})
		}
	}
	return byKeyDesc(out), nil
}

const (
	monocultureMinClaims = 500
	monocultureSharePct  = 85.0
	monocultureHighPct   = 95.0
	monocultureHighPaid  = 500_000.0
	monocultureRate      = 0.25
)

// BillingMonoculture flags providers whose claims come almost entirely
// from a single HCPCS code.
type BillingMonoculture struct{}

func (BillingMonoculture) Name() domain.SignalType { return domain.SignalBillingMonoculture }

func (BillingMonoculture) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Nearly all claims billed under one procedure code",
		Methodology:      "For providers with over 500 claims, the code with the most claims is the dominant code. Providers whose dominant code exceeds 85% of claims are flagged unless it is a COVID-19 testing, telehealth or treatment code.",
		OverpaymentBasis: "25% of all-time billing in proportion to the share above 85%",
		Threshold:        "dominant share > 85%; high above 95% with over $500K billed",
	}
}

func (d BillingMonoculture) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := providerCodeTotals(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	var out []rankedFinding
	for start := 0; start < len(rows); {
		end := start
		var claims int64
		var paid float64
		dominant := rows[start]
		for end < len(rows) && rows[end].npi == rows[start].npi {
			r := rows[end]
			claims += r.claims
			paid += r.paid
			if r.claims > dominant.claims {
				dominant = r
			}
			end++
		}
		start = end

		if claims <= monocultureMinClaims || covidHCPCS[dominant.code] {
			continue
		}
		share := float64(dominant.claims) * 100 / float64(claims)
		if share <= monocultureSharePct {
			continue
		}

		sev := domain.SeverityMedium
		if share > monocultureHighPct && paid > monocultureHighPaid {
			sev = domain.SeverityHigh
		}
		ev := domain.NewGenericEvidence().
			Set("dominant_hcpcs_code", dominant.code).
			Set("dominant_code_share_pct", domain.RoundTo(share, 1)).
			Set("dominant_code_claims", dominant.claims).
			Set("dominant_code_paid", domain.RoundCents(dominant.paid)).
			Set("total_claims_all_codes", claims).
			Set("total_paid_all_codes", domain.RoundCents(paid)).
			Set("state", dominant.state).
			Set("taxonomy_code", dominant.taxonomy)
		overpayment := paid * (share - monocultureSharePct) / 100 * monocultureRate
		out = append(out, rankedFinding{
			finding: domain.NewFinding(dominant.npi, d.Name(), sev, ev, domain.RoundCents(overpayment)),
			key:     share,
		})
	}
	return byKeyDesc(out), nil
}

const (
	rateMinClaims  = 100
	rateMinPeers   = 10
	rateMedianMult = 3.0
	rateHighRatio  = 10.0
	rateP99Ratio   = 5.0
	rateRecovery   = 0.7
)

// ReimbursementRateAnomaly flags providers paid several times the national
// median per claim for the same HCPCS code.
type ReimbursementRateAnomaly struct{}

func (ReimbursementRateAnomaly) Name() domain.SignalType {
	return domain.SignalReimbursementRateAnomaly
}

func (ReimbursementRateAnomaly) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "Paid far more per claim than peers for the same code",
		Methodology:      "Per provider and HCPCS code with over 100 claims, average paid per claim is compared with the national median of providers billing that code (10 or more). COVID-19 codes are skipped.",
		OverpaymentBasis: "70% of the per-claim excess over the median across all claims",
		Threshold:        "rate > 3x median; high above 10x, or above 5x and the peer 99th percentile",
	}
}

func (c codeTotal) perClaim() float64 { return c.paid / float64(c.claims) }

func (d ReimbursementRateAnomaly) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	rows, err := providerCodeTotals(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	var eligible []codeTotal
	for _, r := range rows {
		if r.claims > rateMinClaims {
			eligible = append(eligible, r)
		}
	}

	var out []rankedFinding
	for code, peers := range codePeers(eligible, rateMinPeers) {
		if covidHCPCS[code] {
			continue
		}
		rates := sortedBy(peers, codeTotal.perClaim)
		median := percentile(rates, 0.5)
		p99 := percentile(rates, 0.99)
		if median <= 0 {
			continue
		}

		for _, p := range peers {
			rate := p.perClaim()
			if rate <= median*rateMedianMult {
				continue
			}
			ratio := rate / median
			sev := domain.SeverityMedium
			if ratio > rateHighRatio || (ratio > rateP99Ratio && rate > p99) {
				sev = domain.SeverityHigh
			}
			ev := domain.NewGenericEvidence().
				Set("hcpcs_code", code).
				Set("total_claims", p.claims).
				Set("total_paid", domain.RoundCents(p.paid)).
				Set("avg_rate_per_claim", domain.RoundCents(rate)).
				Set("national_median_rate", domain.RoundCents(median)).
				Set("national_p99_rate", domain.RoundCents(p99)).
				Set("peer_count", len(peers)).
				Set("rate_ratio_to_median", domain.RoundTo(ratio, 1)).
				Set("state", p.state).
				Set("taxonomy_code", p.taxonomy)
			overpayment := (rate - median) * float64(p.claims) * rateRecovery
			out = append(out, rankedFinding{
				finding: domain.NewFinding(p.npi, d.Name(), sev, ev, domain.RoundCents(overpayment)),
				key:     ratio,
			})
		}
	}
	return byKeyDesc(out), nil
}
