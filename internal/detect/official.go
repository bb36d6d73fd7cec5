package detect

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

const (
	officialMinNPIs      = 5
	officialMaxNPIs      = 50
	officialMinPaid      = 1_000_000.0
	officialMinSameState = 3
	officialHighPaid     = 5_000_000.0
)

// SharedOfficial flags authorized officials who control a compact,
// geographically concentrated group of high-billing NPIs.
type SharedOfficial struct{}

func (SharedOfficial) Name() domain.SignalType { return domain.SignalSharedOfficial }

func (SharedOfficial) Methodology() domain.SignalMethodology {
	return domain.SignalMethodology{
		Description:      "One authorized official controlling several billing organizations",
		Methodology:      "NPPES entries are grouped by the normalized authorized official name. Groups of 5 to 50 NPIs with combined billing over $1M and at least 3 NPIs in one state are flagged; each controlled NPI receives a finding.",
		OverpaymentBasis: "10% of member billing, 20% when the official controls 10 or more NPIs",
		Threshold:        "5-50 NPIs, combined > $1M, >= 3 NPIs in one state; high above $5M",
	}
}

const officialQuery = `
	WITH` + providerTotalsCTE + `
	SELECT UPPER(TRIM(n.auth_official_first)), UPPER(TRIM(n.auth_official_last)),
		   n.npi, COALESCE(n.org_name, ''), COALESCE(TRIM(n.state), ''),
		   COALESCE(pt.total_paid, 0), COALESCE(pt.total_claims, 0),
		   COALESCE(pt.total_beneficiaries, 0),
		   CASE WHEN pt.npi IS NULL THEN 0 ELSE 1 END
	FROM nppes n
	LEFT JOIN provider_totals pt ON n.npi = pt.npi
	WHERE n.auth_official_last IS NOT NULL AND TRIM(n.auth_official_last) != ''
	  AND n.auth_official_first IS NOT NULL AND TRIM(n.auth_official_first) != ''
	ORDER BY n.npi
`

// officialGroup is every NPPES entry sharing one normalized authorized
// official. Members are ordered by NPI.
type officialGroup struct {
	name    string
	members []member
	billed  []bool
}

// billedMembers returns the members with any spending.
func (g *officialGroup) billedMembers() []member {
	var out []member
	for i, m := range g.members {
		if g.billed[i] {
			out = append(out, m)
		}
	}
	return out
}

// officialGroups loads authorized official groups in first-seen order.
func officialGroups(ctx context.Context, ds domain.Dataset) ([]*officialGroup, error) {
	rows, err := ds.Query(ctx, officialQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := make(map[string]*officialGroup)
	var groups []*officialGroup
	for rows.Next() {
		var first, last string
		var m member
		var billed int
		if err := rows.Scan(&first, &last, &m.npi, &m.name, &m.state, &m.paid, &m.claims, &m.benes, &billed); err != nil {
			return nil, err
		}
		name := first + " " + last
		g, ok := byName[name]
		if !ok {
			g = &officialGroup{name: name}
			byName[name] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, m)
		g.billed = append(g.billed, billed == 1)
	}
	return groups, rows.Err()
}

func (d SharedOfficial) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	groups, err := officialGroups(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}

	type network struct {
		group    *officialGroup
		combined float64
	}
	var networks []network
	for _, g := range groups {
		if len(g.members) < officialMinNPIs || len(g.members) > officialMaxNPIs {
			continue
		}
		var combined float64
		perState := make(map[string]int)
		maxState := 0
		for _, m := range g.members {
			combined += m.paid
			if m.state == "" {
				continue
			}
			perState[m.state]++
			if perState[m.state] > maxState {
				maxState = perState[m.state]
			}
		}
		if combined <= officialMinPaid || maxState < officialMinSameState {
			continue
		}
		networks = append(networks, network{group: g, combined: combined})
	}

	sort.SliceStable(networks, func(i, j int) bool { return networks[i].combined > networks[j].combined })

	var findings []domain.Finding
	for _, n := range networks {
		ms := n.group.members

		sev := domain.SeverityMedium
		if n.combined > officialHighPaid {
			sev = domain.SeverityHigh
		}
		rate := 0.1
		if len(ms) >= 10 {
			rate = 0.2
		}

		ev := domain.SharedOfficialEvidence{
			AuthorizedOfficialName: n.group.name,
			NPICount:               len(ms),
			ControlledNPIs:         memberNPIs(ms),
			OrganizationNames:      distinctSorted(memberNames(ms)),
			CombinedTotalPaid:      domain.RoundCents(n.combined),
		}
		findings = append(findings, memberFindings(d.Name(), sev, ev, ms, rate)...)
	}
	return findings, nil
}
