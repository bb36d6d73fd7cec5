package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/fraudscan/internal/bus"
	"github.com/opensource-finance/fraudscan/internal/domain"
)

type stubDataset struct{}

func (stubDataset) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}
func (stubDataset) CountBillingProviders(ctx context.Context) (int64, error) { return 0, nil }
func (stubDataset) Ping(ctx context.Context) error                           { return nil }

type stubDetector struct {
	name    domain.SignalType
	delay   time.Duration
	count   int
	err     error
	panics  bool
	active  *atomic.Int32
	maxSeen *atomic.Int32
}

func (d stubDetector) Name() domain.SignalType { return d.name }

func (d stubDetector) Detect(ctx context.Context, ds domain.Dataset) ([]domain.Finding, error) {
	if d.active != nil {
		n := d.active.Add(1)
		defer d.active.Add(-1)
		for {
			prev := d.maxSeen.Load()
			if n <= prev || d.maxSeen.CompareAndSwap(prev, n) {
				break
			}
		}
	}
	time.Sleep(d.delay)
	if d.panics {
		panic("boom")
	}
	if d.err != nil {
		return nil, d.err
	}
	out := make([]domain.Finding, d.count)
	for i := range out {
		out[i] = domain.NewFinding("100000000"+string(rune('0'+i)), d.name, domain.SeverityMedium, domain.ExcludedProviderEvidence{}, 100)
	}
	return out, nil
}

func TestRunner(t *testing.T) {
	ctx := context.Background()

	t.Run("CanonicalOrder", func(t *testing.T) {
		detectors := []domain.Detector{
			stubDetector{name: domain.SignalExcludedProvider, delay: 30 * time.Millisecond, count: 1},
			stubDetector{name: domain.SignalBillingOutlier, delay: 1 * time.Millisecond, count: 2},
			stubDetector{name: domain.SignalRapidEscalation, delay: 10 * time.Millisecond, count: 3},
		}

		r := &Runner{Concurrency: 3}
		results := r.Run(ctx, stubDataset{}, detectors)

		if len(results.Order) != 3 {
			t.Fatalf("expected 3 signals, got %d", len(results.Order))
		}
		for i, d := range detectors {
			if results.Order[i] != d.Name() {
				t.Errorf("expected %s at %d, got %s", d.Name(), i, results.Order[i])
			}
		}
		if len(results.All()) != 6 {
			t.Errorf("expected 6 findings, got %d", len(results.All()))
		}
		if results.All()[0].SignalType != domain.SignalExcludedProvider {
			t.Errorf("expected first finding from excluded provider, got %s", results.All()[0].SignalType)
		}
	})

	t.Run("FailureIsolation", func(t *testing.T) {
		detectors := []domain.Detector{
			stubDetector{name: domain.SignalExcludedProvider, err: errors.New("no such table: leie")},
			stubDetector{name: domain.SignalBillingOutlier, panics: true},
			stubDetector{name: domain.SignalSharedOfficial, count: 2},
		}

		results := (&Runner{Concurrency: 2}).Run(ctx, stubDataset{}, detectors)

		counts := results.Counts()
		if counts[domain.SignalExcludedProvider] != 0 {
			t.Errorf("expected 0 findings for failed detector, got %d", counts[domain.SignalExcludedProvider])
		}
		if counts[domain.SignalSharedOfficial] != 2 {
			t.Errorf("expected 2 findings, got %d", counts[domain.SignalSharedOfficial])
		}
		if results.Errors[domain.SignalExcludedProvider] == nil {
			t.Error("expected recorded error for excluded provider")
		}
		if !errors.Is(results.Errors[domain.SignalBillingOutlier], ErrDetectorPanic) {
			t.Errorf("expected ErrDetectorPanic, got %v", results.Errors[domain.SignalBillingOutlier])
		}
	})

	t.Run("BoundedConcurrency", func(t *testing.T) {
		var active, maxSeen atomic.Int32
		var detectors []domain.Detector
		for _, name := range []domain.SignalType{
			domain.SignalExcludedProvider, domain.SignalBillingOutlier, domain.SignalRapidEscalation,
			domain.SignalSharedOfficial, domain.SignalAddressClustering,
		} {
			detectors = append(detectors, stubDetector{name: name, delay: 20 * time.Millisecond, active: &active, maxSeen: &maxSeen})
		}

		(&Runner{Concurrency: 2}).Run(ctx, stubDataset{}, detectors)

		if maxSeen.Load() > 2 {
			t.Errorf("expected at most 2 concurrent detectors, got %d", maxSeen.Load())
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		detectors := []domain.Detector{
			stubDetector{name: domain.SignalExcludedProvider, delay: 50 * time.Millisecond},
			stubDetector{name: domain.SignalBillingOutlier, delay: 50 * time.Millisecond},
		}
		results := (&Runner{Concurrency: 1}).Run(cctx, stubDataset{}, detectors)

		if len(results.Order) != 2 {
			t.Errorf("expected both signals recorded, got %d", len(results.Order))
		}
	})

	t.Run("PublishesEvents", func(t *testing.T) {
		eventBus := bus.NewChannelBus(10)
		defer eventBus.Close()

		var mu sync.Mutex
		var events []domain.DetectorEvent
		var wg sync.WaitGroup
		wg.Add(2)
		handler := func(ctx context.Context, msg *domain.Message) error {
			var ev domain.DetectorEvent
			_ = json.Unmarshal(msg.Payload, &ev)
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
			wg.Done()
			return nil
		}
		eventBus.Subscribe(ctx, domain.TopicDetectorCompleted, handler)
		eventBus.Subscribe(ctx, domain.TopicDetectorFailed, handler)

		detectors := []domain.Detector{
			stubDetector{name: domain.SignalBurstEnrollmentNetwork, count: 1},
			stubDetector{name: domain.SignalPhantomServicingHub, err: errors.New("timeout")},
		}
		(&Runner{Concurrency: 2, Bus: eventBus, RunID: "run-42"}).Run(ctx, stubDataset{}, detectors)

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for detector events")
		}

		mu.Lock()
		defer mu.Unlock()
		for _, ev := range events {
			if ev.RunID != "run-42" {
				t.Errorf("expected run ID 'run-42', got '%s'", ev.RunID)
			}
			if ev.Signal == domain.SignalPhantomServicingHub && ev.Error == "" {
				t.Error("expected error on failed detector event")
			}
		}
	})
}
