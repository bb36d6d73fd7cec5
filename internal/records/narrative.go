package records

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Narrative renders the plain-English case narrative for a record.
// Missing evidence fields fall back to neutral defaults.
func Narrative(rec *domain.ProviderRecord) string {
	parts := []string{fmt.Sprintf(
		"%s (NPI: %s) is a Medicaid-enrolled %s provider based in %s with %s in total billing.",
		rec.ProviderName, rec.NPI, rec.EntityType, rec.State, domain.FormatUSD(rec.TotalPaid),
	)}

	var sentences []string
	for _, f := range rec.Signals {
		if s := describe(f.Evidence); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) > 0 {
		parts = append(parts, strings.Join(sentences, " "))
	}

	if rec.EstimatedOverpayment > 0 {
		parts = append(parts, fmt.Sprintf("Estimated total overpayment: %s.", domain.FormatUSD(rec.EstimatedOverpayment)))
	}

	if rec.RiskScore.Tier != "" {
		parts = append(parts, fmt.Sprintf("Composite risk score: %.1f/100 (%s risk).", rec.RiskScore.Score, rec.RiskScore.Tier))
	}

	return strings.Join(parts, " ")
}

// describe returns one sentence per evidence kind.
// GenericEvidence carries no template and yields "".
func describe(ev domain.Evidence) string {
	switch e := ev.(type) {
	case domain.ExcludedProviderEvidence:
		return fmt.Sprintf(
			"This provider appears on the OIG exclusion list (excluded %s) yet continued billing Medicaid for %s claims totaling %s.",
			or(e.ExclusionDate, "unknown date"), domain.FormatCount(e.TotalClaimsAfterExclusion), domain.FormatUSD(e.TotalPaidAfterExclusion),
		)
	case domain.BillingOutlierEvidence:
		return fmt.Sprintf(
			"Their billing of %s is %.1fx the median for their specialty (%s) in %s, exceeding the 99th percentile of %s.",
			domain.FormatUSD(e.TotalPaid), e.RatioToMedian, or(e.TaxonomyCode, "unknown"), or(e.State, "their state"),
			domain.FormatUSD(e.Peer99thPercentile),
		)
	case domain.RapidEscalationEvidence:
		return fmt.Sprintf(
			"As a newly enumerated provider (since %s), their billing escalated at a peak 3-month growth rate of %.0f%%, far exceeding the 200%% threshold for bust-out schemes.",
			or(e.EnumerationDate, "unknown"), e.PeakThreeMonthGrowthRate,
		)
	case domain.WorkforceImpossibilityEvidence:
		return fmt.Sprintf(
			"In their peak month (%s), this organization billed %s claims, implying %.1f claims per hour, a physically impossible volume for any healthcare practice.",
			or(e.PeakMonth, "unknown"), domain.FormatCount(e.PeakClaimsCount), e.ImpliedClaimsPerWorkerHour,
		)
	case domain.SharedOfficialEvidence:
		return fmt.Sprintf(
			"The authorized official (%s) controls %d NPIs with combined billing of %s, suggesting a coordinated billing network.",
			or(e.AuthorizedOfficialName, "unknown"), e.NPICount, domain.FormatUSD(e.CombinedTotalPaid),
		)
	case domain.GeographicImplausibilityEvidence:
		return fmt.Sprintf(
			"Home health billing shows a beneficiary-to-claims ratio of %.4f (%d beneficiaries for %s claims), suggesting fabricated services.",
			e.BeneficiaryClaimsRatio, e.UniqueBeneficiaries, domain.FormatCount(e.ClaimsCount),
		)
	case domain.AddressClusteringEvidence:
		return fmt.Sprintf(
			"This provider is part of a cluster of %d NPIs registered at zip code %s with combined billing of %s, indicating a potential ghost office operation.",
			e.NPICount, or(e.ZipCode, "unknown"), domain.FormatUSD(e.CombinedTotalPaid),
		)
	case domain.UpcodingEvidence:
		return fmt.Sprintf(
			"This provider bills high-complexity E&M codes %.1f%% of the time, compared to a peer average of %.1f%%, a pattern consistent with systematic upcoding.",
			e.HighLevelPercentage, e.PeerAvgHighLevelPercentage,
		)
	case domain.ConcurrentBillingEvidence:
		return fmt.Sprintf(
			"This individual provider billed in %d different states within a single month, which is physically impossible without telehealth or identity theft.",
			e.MaxStatesInSingleMonth,
		)
	case domain.BurstEnrollmentEvidence:
		return fmt.Sprintf(
			"This organization is one of %d %s providers in %s enumerated between %s and %s with combined billing of %s, consistent with a burst enrollment network.",
			e.NPICount, or(e.TaxonomyCode, "unknown"), or(e.State, "their state"),
			or(e.EarliestEnumeration, "unknown"), or(e.LatestEnumeration, "unknown"), domain.FormatUSD(e.CombinedTotalPaid),
		)
	case domain.PhantomServicingHubEvidence:
		return fmt.Sprintf(
			"As a servicing provider this NPI appears on claims for %d distinct billing NPIs totaling %s, with a beneficiary-to-claims ratio of %.4f.",
			e.DistinctBillingNPIs, domain.FormatUSD(e.TotalPaidThroughHub), e.BeneficiaryClaimRatio,
		)
	case *domain.GenericEvidence:
		return ""
	default:
		return ""
	}
}

func or(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
