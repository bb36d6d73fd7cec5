package records

import "github.com/opensource-finance/fraudscan/internal/domain"

const (
	defaultClaimType = "Unknown violation pattern"
	defaultStatute   = "31 U.S.C. section 3729"
)

var defaultNextSteps = []string{
	"Request detailed claims data from state Medicaid agency",
	"Verify provider information through public records",
}

var statutes = map[domain.SignalType]string{
	domain.SignalExcludedProvider:         "31 U.S.C. section 3729(a)(1)(A)",
	domain.SignalBillingOutlier:           "31 U.S.C. section 3729(a)(1)(A)",
	domain.SignalRapidEscalation:          "31 U.S.C. section 3729(a)(1)(A)",
	domain.SignalWorkforceImpossibility:   "31 U.S.C. section 3729(a)(1)(B)",
	domain.SignalSharedOfficial:           "31 U.S.C. section 3729(a)(1)(C)",
	domain.SignalGeographicImplausibility: "31 U.S.C. section 3729(a)(1)(G)",
	domain.SignalAddressClustering:        "31 U.S.C. section 3729(a)(1)(C)",
	domain.SignalUpcoding:                 "31 U.S.C. section 3729(a)(1)(A)",
	domain.SignalConcurrentBilling:        "31 U.S.C. section 3729(a)(1)(B)",
	domain.SignalBurstEnrollmentNetwork:   "31 U.S.C. section 3729(a)(1)(C)",
	domain.SignalPhantomServicingHub:      "31 U.S.C. section 3729(a)(1)(B)",
}

var claimTypes = map[domain.SignalType]string{
	domain.SignalExcludedProvider:         "Presenting false claims: excluded provider cannot legally bill federal healthcare programs",
	domain.SignalBillingOutlier:           "Potential overbilling: provider billing significantly exceeds peer group norms",
	domain.SignalRapidEscalation:          "Potential bust-out scheme: newly enumerated provider with rapid billing escalation",
	domain.SignalWorkforceImpossibility:   "False records: billing volume implies physically impossible claim fabrication",
	domain.SignalSharedOfficial:           "Conspiracy: coordinated billing through multiple entities controlled by same individual",
	domain.SignalGeographicImplausibility: "Reverse false claims: repeated billing on same patients suggests fabricated home health services",
	domain.SignalAddressClustering:        "Potential ghost office: unusually high concentration of billing providers at single address",
	domain.SignalUpcoding:                 "Systematic upcoding: provider consistently bills highest-complexity codes far exceeding peer norms",
	domain.SignalConcurrentBilling:        "Phantom billing: individual provider billing across multiple distant states simultaneously",
	domain.SignalBurstEnrollmentNetwork:   "Conspiracy: cluster of related organizations enrolled together and billing in concert",
	domain.SignalPhantomServicingHub:      "False records: servicing provider named on claims across many unrelated billing entities",
}

var nextSteps = map[domain.SignalType][]string{
	domain.SignalExcludedProvider: {
		"Verify provider exclusion status on OIG LEIE database and confirm dates",
		"Request itemized claims data from state Medicaid agency for post-exclusion period",
		"Determine which managed care organizations processed claims for this excluded provider",
	},
	domain.SignalBillingOutlier: {
		"Request detailed claims data and compare procedure code distribution to peer group",
		"Verify provider is actively practicing at registered address through site visit or public records",
		"Cross-reference with patient records to verify services were actually rendered",
	},
	domain.SignalRapidEscalation: {
		"Investigate provider ownership changes around enumeration date",
		"Request detailed claims data for first 12 months of billing activity",
		"Check if provider entity was previously associated with excluded individuals",
	},
	domain.SignalWorkforceImpossibility: {
		"Request employment records showing number of licensed practitioners at this entity",
		"Compare staffing levels to claims volume to determine if services could have been physically rendered",
		"Review claims for patterns of identical procedures billed on same dates",
	},
	domain.SignalSharedOfficial: {
		"Investigate corporate structure and beneficial ownership of all entities controlled by this individual",
		"Check for cross-referrals between the controlled entities suggesting kickback arrangements",
		"Review claims for overlapping patients across entities that would indicate coordinated billing",
	},
	domain.SignalGeographicImplausibility: {
		"Verify patient addresses to confirm home health services were geographically feasible",
		"Request patient visit logs and compare to billed service dates",
		"Cross-reference with other payers to check for duplicate billing of same home health services",
	},
	domain.SignalAddressClustering: {
		"Conduct site visit to verify each provider at the registered address has a physical office",
		"Check for shared phone numbers, fax numbers, or billing contacts across the clustered NPIs",
		"Review corporate filings to identify common ownership among the clustered entities",
	},
	domain.SignalUpcoding: {
		"Request medical records for a sample of high-complexity claims and verify documentation supports the billed level",
		"Compare procedure code distribution month-over-month for sudden shifts to higher codes",
		"Interview billing staff to determine if coding education or software changes drove the pattern",
	},
	domain.SignalConcurrentBilling: {
		"Verify provider travel records or telehealth documentation for multi-state claims",
		"Check if the NPI has been compromised or used without authorization in other states",
		"Request claims detail to determine if services were in-person or could legitimately be remote",
	},
	domain.SignalBurstEnrollmentNetwork: {
		"Pull state business filings for every organization in the enrollment cluster and compare registered agents",
		"Compare authorized officials, addresses and bank accounts across the cluster",
		"Review beneficiary overlap between the clustered organizations",
	},
	domain.SignalPhantomServicingHub: {
		"Confirm the servicing provider's employment or contract relationship with each billing entity",
		"Sample claims across billing entities for services recorded on the same dates",
		"Verify the servicing provider's licensure and physical capacity to render the billed volume",
	},
}

// ComplianceFor returns the False Claims Act reference for a signal type.
// Unknown types get the generic statute and two default steps.
func ComplianceFor(signal domain.SignalType) domain.ComplianceReference {
	ref := domain.ComplianceReference{
		ClaimType:          defaultClaimType,
		StatuteReference:   defaultStatute,
		SuggestedNextSteps: append([]string(nil), defaultNextSteps...),
	}
	if v, ok := claimTypes[signal]; ok {
		ref.ClaimType = v
	}
	if v, ok := statutes[signal]; ok {
		ref.StatuteReference = v
	}
	if v, ok := nextSteps[signal]; ok {
		ref.SuggestedNextSteps = append([]string(nil), v...)
	}
	return ref
}

// SelectPrimaryFinding picks the finding that determines a provider's
// compliance reference. The policy is first-wins in emission order.
func SelectPrimaryFinding(findings []domain.Finding) (domain.Finding, bool) {
	if len(findings) == 0 {
		return domain.Finding{}, false
	}
	return findings[0], true
}
