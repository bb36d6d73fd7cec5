package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/opensource-finance/fraudscan/internal/bus"
	"github.com/opensource-finance/fraudscan/internal/cache"
	"github.com/opensource-finance/fraudscan/internal/detect"
	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/repository"
)

type brokenDetector struct{}

func (brokenDetector) Name() domain.SignalType { return domain.SignalBillingOutlier }

func (brokenDetector) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	return nil, errors.New("no such column: taxonomy_code")
}

func newTestRepo(t *testing.T) *repository.SQLRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "fraudscan-pipeline-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() {
		os.Remove(tmpPath)
		os.Remove(tmpPath + "-wal")
		os.Remove(tmpPath + "-shm")
	})

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	row := func(npi, month string, paid float64) repository.SpendingRow {
		return repository.SpendingRow{
			BillingNPI: npi, ServicingNPI: npi, HCPCSCode: "T1019", ClaimMonth: month,
			UniqueBeneficiaries: 10, TotalClaims: 40, TotalPaid: paid,
		}
	}
	spending := []repository.SpendingRow{
		row("1111111111", "2023-01-01", 5000),
		row("2222222222", "2021-01-01", 10000),
		row("2222222222", "2023-01-01", 37000),
		row("3333333333", "2023-02-01", 80000),
		row("5555555555", "2023-03-01", 20000),
	}
	providers := []repository.ProviderRow{
		{NPI: "1111111111", EntityTypeCode: "1", LastName: "Smith", FirstName: "Jane", State: "MN", TaxonomyCode: "207Q00000X"},
		{NPI: "2222222222", EntityTypeCode: "1", LastName: "Doe", FirstName: "John", State: "MN", TaxonomyCode: "207Q00000X"},
		{NPI: "3333333333", EntityTypeCode: "2", OrgName: "Acme Home Care", State: "MN", TaxonomyCode: "251E00000X"},
		{NPI: "5555555555", EntityTypeCode: "2", OrgName: "Mayo Clinic Rochester", State: "MN", TaxonomyCode: "282N00000X"},
	}
	exclusions := []repository.ExclusionRow{
		{LastName: "DOE", FirstName: "JOHN", NPI: "2222222222", ExclType: "1128a1", ExclDate: "20220101"},
		{BusName: "ACME HOME CARE", NPI: "3333333333", ExclType: "1128b7", ExclDate: "20221115"},
		{BusName: "MAYO CLINIC ROCHESTER", NPI: "5555555555", ExclType: "1128b7", ExclDate: "20230101"},
	}

	if err := repo.InsertSpending(ctx, spending); err != nil {
		t.Fatalf("InsertSpending failed: %v", err)
	}
	if err := repo.InsertProviders(ctx, providers); err != nil {
		t.Fatalf("InsertProviders failed: %v", err)
	}
	if err := repo.InsertExclusions(ctx, exclusions); err != nil {
		t.Fatalf("InsertExclusions failed: %v", err)
	}
	return repo
}

func TestPipelineRun(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	events := make(chan domain.ReportEvent, 1)
	eventBus.Subscribe(ctx, domain.TopicReportGenerated, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.ReportEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		events <- ev
		return nil
	})

	p, err := New(Deps{
		Dataset:   repo,
		Reference: cache.NewReferenceCache(repo, cache.NewLRUCache(100), time.Minute),
		Detectors: []domain.Detector{detect.ExcludedProvider{}, brokenDetector{}},
		Bus:       eventBus,
		Config: domain.PipelineConfig{
			MaxProviders:        1,
			MinPerSignal:        1,
			DetectorConcurrency: 2,
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	r, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	t.Run("Counts", func(t *testing.T) {
		if r.TotalProvidersScanned != 4 {
			t.Errorf("expected 4 providers scanned, got %d", r.TotalProvidersScanned)
		}
		if r.TotalProvidersFlagged != 1 {
			t.Errorf("expected 1 provider flagged, got %d", r.TotalProvidersFlagged)
		}
		if len(r.FlaggedProviders) != r.TotalProvidersFlagged {
			t.Errorf("expected flagged count to match list, got %d vs %d", len(r.FlaggedProviders), r.TotalProvidersFlagged)
		}
		if r.SignalCounts[domain.SignalExcludedProvider] != 3 {
			t.Errorf("expected 3 raw excluded findings, got %d", r.SignalCounts[domain.SignalExcludedProvider])
		}
		if c, ok := r.SignalCounts[domain.SignalBillingOutlier]; !ok || c != 0 {
			t.Errorf("expected failed detector to report 0, got %d (present=%v)", c, ok)
		}
	})

	t.Run("DetectorErrors", func(t *testing.T) {
		if r.DetectorErrors[domain.SignalBillingOutlier] == "" {
			t.Error("expected billing outlier error in report")
		}
	})

	t.Run("FilterSummary", func(t *testing.T) {
		fs := r.FilterSummary
		if fs.ProvidersWithFindings != 3 {
			t.Errorf("expected 3 providers with findings, got %d", fs.ProvidersWithFindings)
		}
		if fs.LegitimateExcluded != 1 {
			t.Errorf("expected 1 legitimate exclusion, got %d", fs.LegitimateExcluded)
		}
		if fs.SelectionDropped != 1 {
			t.Errorf("expected 1 dropped by selection, got %d", fs.SelectionDropped)
		}
	})

	t.Run("NoLegitimateProviders", func(t *testing.T) {
		for _, rec := range r.FlaggedProviders {
			if rec.NPI == "5555555555" {
				t.Error("expected known-legitimate provider to be filtered")
			}
			if rec.ProviderName == "" || rec.ProviderName == "Unknown" {
				t.Errorf("expected resolved provider name, got '%s'", rec.ProviderName)
			}
		}
	})

	t.Run("Methodology", func(t *testing.T) {
		if _, ok := r.Methodology.Signals[domain.SignalExcludedProvider]; !ok {
			t.Error("expected excluded provider methodology")
		}
	})

	t.Run("ReportEvent", func(t *testing.T) {
		select {
		case ev := <-events:
			if ev.RunID != r.RunID {
				t.Errorf("expected run ID %s, got %s", r.RunID, ev.RunID)
			}
			if ev.ProvidersFlagged != 1 {
				t.Errorf("expected 1 provider in event, got %d", ev.ProvidersFlagged)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for report event")
		}
	})
}

func TestPipelineDefaults(t *testing.T) {
	repo := newTestRepo(t)

	p, err := New(Deps{Dataset: repo, Config: domain.DefaultConfig().Pipeline})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	r, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(r.SignalCounts) != len(detect.Registry()) {
		t.Errorf("expected %d signal counts, got %d", len(detect.Registry()), len(r.SignalCounts))
	}
	if r.TotalProvidersFlagged != 2 {
		t.Errorf("expected 2 providers flagged, got %d", r.TotalProvidersFlagged)
	}
	if r.NetworkAnalysis.Networks == nil {
		t.Error("expected non-nil networks")
	}
}

func TestPipelineUnreadable(t *testing.T) {
	repo := newTestRepo(t)
	repo.Close()

	p, err := New(Deps{Dataset: repo, Detectors: []domain.Detector{detect.ExcludedProvider{}}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = p.Run(context.Background())
	if !errors.Is(err, ErrDatasetUnreadable) {
		t.Errorf("expected ErrDatasetUnreadable, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	t.Run("MissingDataset", func(t *testing.T) {
		if _, err := New(Deps{}); err == nil {
			t.Error("expected error for missing dataset")
		}
	})

	t.Run("UnknownDetector", func(t *testing.T) {
		repo := newTestRepo(t)
		_, err := New(Deps{Dataset: repo, Config: domain.PipelineConfig{Detectors: []string{"tarot_reading"}}})
		if err == nil {
			t.Error("expected error for unknown detector")
		}
	})

	t.Run("MissingPatternsFile", func(t *testing.T) {
		repo := newTestRepo(t)
		_, err := New(Deps{Dataset: repo, Config: domain.PipelineConfig{LegitimacyPatternsPath: "/nonexistent/patterns.yaml"}})
		if err == nil {
			t.Error("expected error for missing patterns file")
		}
	})
}

func TestStages(t *testing.T) {
	p := &Pipeline{deps: Deps{Tracer: noop.NewTracerProvider().Tracer("test")}}
	ctx := context.Background()

	t.Run("Step", func(t *testing.T) {
		ran := false
		p.step(ctx, "build", func(context.Context) { ran = true })
		if !ran {
			t.Error("expected step to run its function")
		}
	})

	t.Run("StageError", func(t *testing.T) {
		errStage := errors.New("count failed")
		err := p.stage(ctx, "count", func(context.Context) error { return errStage })
		if !errors.Is(err, errStage) {
			t.Errorf("expected %v, got %v", errStage, err)
		}
		if err := p.stage(ctx, "count", func(context.Context) error { return nil }); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}
