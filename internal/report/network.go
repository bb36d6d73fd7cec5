package report

import (
	"time"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// NetworkReport is the network-only view derived from a persisted report.
type NetworkReport struct {
	GeneratedAt       string                         `json:"generated_at"`
	ToolVersion       string                         `json:"tool_version"`
	SchemaVersion     string                         `json:"schema_version"`
	SourceRunID       string                         `json:"source_run_id"`
	SourceGeneratedAt string                         `json:"source_generated_at"`
	Summary           NetworkSummary                 `json:"summary"`
	Networks          []domain.NetworkRecord         `json:"networks"`
	BelowThreshold    domain.BelowThresholdSummary   `json:"below_threshold"`
	CategoryCounts    map[domain.NetworkCategory]int `json:"category_counts"`
	Narratives        map[string]string              `json:"member_narratives"`
}

// NetworkSummary holds headline network totals.
type NetworkSummary struct {
	TotalNetworks             int     `json:"total_networks"`
	ActionableCount           int     `json:"actionable_count"`
	ActionableOverpayment     float64 `json:"actionable_overpayment"`
	ActionableMembers         int     `json:"actionable_members"`
	BelowThresholdCount       int     `json:"below_threshold_count"`
	BelowThresholdOverpayment float64 `json:"below_threshold_overpayment"`
}

// DeriveNetworkReport builds the network-only report from a full report.
// Member narratives are carried over for every actionable member.
func DeriveNetworkReport(r *domain.Report, now time.Time) *NetworkReport {
	na := r.NetworkAnalysis

	narratives := make(map[string]string, len(r.FlaggedProviders))
	byNPI := make(map[string]string, len(r.FlaggedProviders))
	for i := range r.FlaggedProviders {
		byNPI[r.FlaggedProviders[i].NPI] = r.FlaggedProviders[i].CaseNarrative
	}

	categories := make(map[domain.NetworkCategory]int)
	members := 0
	for _, n := range na.Networks {
		categories[n.Category]++
		members += n.MemberCount
		for _, m := range n.Members {
			if text, ok := byNPI[m.NPI]; ok {
				narratives[m.NPI] = text
			}
		}
	}

	networks := na.Networks
	if networks == nil {
		networks = []domain.NetworkRecord{}
	}

	return &NetworkReport{
		GeneratedAt:       now.UTC().Format(TimeFormat),
		ToolVersion:       domain.ToolVersion,
		SchemaVersion:     domain.SchemaVersion,
		SourceRunID:       r.RunID,
		SourceGeneratedAt: r.GeneratedAt,
		Summary: NetworkSummary{
			TotalNetworks:             na.TotalNetworks,
			ActionableCount:           na.ActionableCount,
			ActionableOverpayment:     na.ActionableOverpayment,
			ActionableMembers:         members,
			BelowThresholdCount:       na.BelowThreshold.Count,
			BelowThresholdOverpayment: na.BelowThreshold.CombinedOverpayment,
		},
		Networks:       networks,
		BelowThreshold: na.BelowThreshold,
		CategoryCounts: categories,
		Narratives:     narratives,
	}
}
