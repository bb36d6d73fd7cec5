// Package render formats a report as a standalone HTML page.
package render

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// MaxProviderCards bounds the provider detail section.
const MaxProviderCards = 50

//go:embed report.html.tmpl
var reportTemplate string

var tierColors = map[domain.RiskTier]string{
	domain.TierCritical: "#dc2626",
	domain.TierHigh:     "#ea580c",
	domain.TierMedium:   "#ca8a04",
	domain.TierLow:      "#16a34a",
}

const defaultColor = "#64748b"

var tmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"usd":   domain.FormatUSD,
	"usd0":  formatUSDWhole,
	"count": formatCount,
	"score": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"badge": func(t domain.RiskTier) template.CSS {
		return template.CSS("background:" + TierColor(t))
	},
	"bar": func(rs domain.RiskScore) template.CSS {
		return template.CSS(fmt.Sprintf("width:%.1f%%;background:%s", rs.Score, TierColor(rs.Tier)))
	},
}).Parse(reportTemplate))

type page struct {
	Report        *domain.Report
	Tiers         []domain.RiskTier
	CriticalCount int
	Providers     []domain.ProviderRecord
	Truncated     bool
}

// TierColor returns the display color for a tier.
func TierColor(t domain.RiskTier) string {
	if c, ok := tierColors[t]; ok {
		return c
	}
	return defaultColor
}

// WriteHTML renders r to w. All report text is escaped.
func WriteHTML(w io.Writer, r *domain.Report) error {
	providers := r.FlaggedProviders
	truncated := false
	if len(providers) > MaxProviderCards {
		providers = providers[:MaxProviderCards]
		truncated = true
	}
	return tmpl.Execute(w, page{
		Report:        r,
		Tiers:         domain.AllTiers(),
		CriticalCount: r.ExecutiveSummary.RiskTierDistribution[domain.TierCritical],
		Providers:     providers,
		Truncated:     truncated,
	})
}

// WriteHTMLFile renders r to path.
func WriteHTMLFile(path string, r *domain.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	if err := WriteHTML(f, r); err != nil {
		f.Close()
		return fmt.Errorf("render html report: %w", err)
	}
	return f.Close()
}

func formatUSDWhole(v float64) string {
	return "$" + domain.FormatWhole(v)
}

func formatCount(v any) string {
	switch n := v.(type) {
	case int:
		return domain.FormatCount(int64(n))
	case int64:
		return domain.FormatCount(n)
	default:
		return fmt.Sprint(v)
	}
}
