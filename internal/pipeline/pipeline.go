// Package pipeline wires detectors, reference lookups, scoring, filtering,
// selection, network analysis and report assembly into one scan.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/fraudscan/internal/bus"
	"github.com/opensource-finance/fraudscan/internal/detect"
	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/legitimacy"
	"github.com/opensource-finance/fraudscan/internal/network"
	"github.com/opensource-finance/fraudscan/internal/records"
	"github.com/opensource-finance/fraudscan/internal/report"
	"github.com/opensource-finance/fraudscan/internal/rules"
	"github.com/opensource-finance/fraudscan/internal/selection"
	"github.com/opensource-finance/fraudscan/internal/worker"
)

// ErrDatasetUnreadable is returned when the provider count cannot be read.
// It is the only error that aborts a scan.
var ErrDatasetUnreadable = errors.New("dataset unreadable")

// Deps are the collaborators of a scan. Only Dataset is required.
type Deps struct {
	Dataset domain.Dataset

	// Reference serves batch identity and totals lookups. Defaults to
	// Dataset when it implements domain.ReferenceSource.
	Reference domain.ReferenceSource

	// Detectors default to the names in Config.Detectors, or all of them.
	Detectors []domain.Detector

	Filter    *legitimacy.Filter
	Analyzer  *network.Analyzer
	Assembler *report.Assembler
	Bus       domain.EventBus
	Tracer    trace.Tracer
	Config    domain.PipelineConfig
}

// Pipeline runs scans. It holds no per-run state and may be reused.
type Pipeline struct {
	deps Deps
}

// New fills defaults from deps.Config and validates the dependencies.
func New(deps Deps) (*Pipeline, error) {
	if deps.Dataset == nil {
		return nil, fmt.Errorf("pipeline: dataset is required")
	}
	if deps.Reference == nil {
		ref, ok := deps.Dataset.(domain.ReferenceSource)
		if !ok {
			return nil, fmt.Errorf("pipeline: dataset has no reference lookups")
		}
		deps.Reference = ref
	}

	if deps.Detectors == nil {
		ds, err := detect.Select(deps.Config.Detectors)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		deps.Detectors = ds
	}

	if deps.Filter == nil {
		m, err := newMatcher(deps.Config.LegitimacyPatternsPath)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		deps.Filter = legitimacy.NewFilter(m)
	}

	if deps.Analyzer == nil {
		t := rules.DefaultThresholds()
		if deps.Config.MinNetworkOverpayment > 0 {
			t.MinOverpayment = deps.Config.MinNetworkOverpayment
		}
		if deps.Config.SoloMinOverpayment > 0 {
			t.SoloMinOverpayment = deps.Config.SoloMinOverpayment
		}
		if deps.Config.MaxCovidEraRatio > 0 {
			t.MaxCovidEraRatio = deps.Config.MaxCovidEraRatio
		}
		engine, err := rules.NewActionabilityEngine(t)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		deps.Analyzer = network.NewAnalyzer(engine)
	}

	if deps.Assembler == nil {
		deps.Assembler = report.NewAssembler()
	}
	if deps.Bus == nil {
		deps.Bus = bus.Nop{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("fraudscan/pipeline")
	}

	return &Pipeline{deps: deps}, nil
}

func newMatcher(path string) (*legitimacy.Matcher, error) {
	if path == "" {
		return legitimacy.DefaultMatcher()
	}
	p, err := legitimacy.LoadPatterns(path)
	if err != nil {
		return nil, err
	}
	return legitimacy.NewMatcher(p)
}

// Run executes one scan and returns the assembled report.
func (p *Pipeline) Run(ctx context.Context) (*domain.Report, error) {
	start := time.Now()
	runID := uuid.New().String()
	cfg := p.deps.Config

	ctx, span := p.deps.Tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	// 1. Count
	var scanned int64
	err := p.stage(ctx, "count", func(ctx context.Context) error {
		n, err := p.deps.Dataset.CountBillingProviders(ctx)
		scanned = n
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrDatasetUnreadable, err)
	}

	// 2. Detect
	var results *domain.DetectorResults
	p.step(ctx, "detect", func(ctx context.Context) {
		runner := &worker.Runner{
			Concurrency: cfg.DetectorConcurrency,
			Bus:         p.deps.Bus,
			RunID:       runID,
		}
		results = runner.Run(ctx, p.deps.Dataset, p.deps.Detectors)
	})
	findings := results.All()

	// 3. Lookup
	npis := records.NPIs(findings)
	var identities map[string]domain.Identity
	var totals map[string]domain.Totals
	p.step(ctx, "lookup", func(ctx context.Context) {
		var err error
		identities, err = p.deps.Reference.BatchLookupIdentity(ctx, npis)
		if err != nil {
			trace.SpanFromContext(ctx).RecordError(err)
			slog.Warn("identity lookup incomplete", "npis", len(npis), "resolved", len(identities), "error", err)
		}
		totals, err = p.deps.Reference.BatchLookupTotals(ctx, npis)
		if err != nil {
			trace.SpanFromContext(ctx).RecordError(err)
			slog.Warn("totals lookup incomplete", "npis", len(npis), "resolved", len(totals), "error", err)
		}
	})

	// 4. Build
	var built []domain.ProviderRecord
	p.step(ctx, "build", func(context.Context) {
		built = records.NewBuilder(identities, totals).Build(findings)
	})

	// 5. Filter
	var filtered legitimacy.Result
	p.step(ctx, "filter", func(context.Context) {
		filtered = p.deps.Filter.Apply(built)
	})

	// 6. Rank and select
	var selected selection.Result
	p.step(ctx, "select", func(context.Context) {
		report.Rank(filtered.Kept)
		selected = selection.Select(filtered.Kept, cfg.MaxProviders, cfg.MinPerSignal)
	})

	// 7. Networks
	var networks domain.NetworkAnalysis
	p.step(ctx, "network", func(context.Context) {
		networks = p.deps.Analyzer.Analyze(selected.Selected)
	})

	// 8. Assemble
	var r *domain.Report
	p.step(ctx, "assemble", func(context.Context) {
		r = p.deps.Assembler.Assemble(report.Input{
			RunID:                 runID,
			TotalProvidersScanned: scanned,
			Results:               results,
			Records:               selected.Selected,
			Networks:              networks,
			Filter:                filterSummary(len(built), filtered, selected),
			Methodology:           detect.Methodologies(p.deps.Detectors),
		})
	})

	// 9. Publish
	ev := domain.ReportEvent{
		RunID:                r.RunID,
		GeneratedAt:          r.GeneratedAt,
		ProvidersFlagged:     r.TotalProvidersFlagged,
		ActionableNetworks:   r.NetworkAnalysis.ActionableCount,
		EstimatedOverpayment: r.ExecutiveSummary.TotalEstimatedOverpayment,
	}
	if err := bus.PublishJSON(ctx, p.deps.Bus, domain.TopicReportGenerated, ev); err != nil {
		slog.Error("failed to publish report event", "run_id", runID, "error", err)
	}

	span.SetAttributes(
		attribute.Int64("providers_scanned", scanned),
		attribute.Int("providers_flagged", r.TotalProvidersFlagged),
	)
	slog.Info("scan completed",
		"run_id", runID,
		"providers_scanned", scanned,
		"findings", len(findings),
		"providers_flagged", r.TotalProvidersFlagged,
		"detector_errors", len(results.Errors),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return r, nil
}

// step runs an infallible stage under its own span.
func (p *Pipeline) step(ctx context.Context, name string, fn func(context.Context)) {
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	fn(ctx)
	slog.Debug("stage finished", "stage", name, "duration_ms", time.Since(start).Milliseconds())
}

// stage runs a stage that can fail, recording the error on its span.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	slog.Debug("stage finished", "stage", name, "duration_ms", time.Since(start).Milliseconds())
	return err
}

func filterSummary(withFindings int, f legitimacy.Result, s selection.Result) domain.FilterSummary {
	reasons := f.ReasonCounts()
	return domain.FilterSummary{
		ProvidersWithFindings: withFindings,
		LegitimateExcluded:    reasons[legitimacy.ReasonKnownLegitimate],
		HighThresholdExcluded: reasons[legitimacy.ReasonHighThresholdEntity],
		HighThresholdKept:     f.HighThresholdKept,
		SelectionDropped:      s.Dropped,
		ExclusionReasons:      reasons,
	}
}
