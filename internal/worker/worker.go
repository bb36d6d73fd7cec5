// Package worker runs fraud detectors concurrently over a dataset.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/fraudscan/internal/bus"
	"github.com/opensource-finance/fraudscan/internal/domain"
)

// ErrDetectorPanic wraps a panic recovered from a detector.
var ErrDetectorPanic = errors.New("detector panicked")

// Runner executes detectors with bounded concurrency. A failing detector
// contributes zero findings and never stops the others.
type Runner struct {
	// Concurrency bounds how many detectors query the dataset at once.
	// Zero or less runs them one at a time.
	Concurrency int

	// Bus receives one DetectorEvent per detector. Optional.
	Bus domain.EventBus

	// RunID tags published events.
	RunID string
}

type outcome struct {
	findings []domain.Finding
	err      error
}

// Run executes every detector and returns results in the order the
// detectors were given, regardless of completion order.
func (r *Runner) Run(ctx context.Context, ds domain.Dataset, detectors []domain.Detector) *domain.DetectorResults {
	limit := r.Concurrency
	if limit <= 0 {
		limit = 1
	}

	outcomes := make([]outcome, len(detectors))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, d := range detectors {
		wg.Add(1)
		go func(i int, d domain.Detector) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[i] = outcome{err: ctx.Err()}
				r.report(ctx, d.Name(), outcomes[i], 0)
				return
			}
			defer func() { <-sem }()

			start := time.Now()
			outcomes[i] = runOne(ctx, ds, d)
			r.report(ctx, d.Name(), outcomes[i], time.Since(start))
		}(i, d)
	}
	wg.Wait()

	results := domain.NewDetectorResults()
	for i, d := range detectors {
		results.Add(d.Name(), outcomes[i].findings, outcomes[i].err)
	}
	return results
}

func runOne(ctx context.Context, ds domain.Dataset, d domain.Detector) (out outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = outcome{err: fmt.Errorf("%w: %s: %v", ErrDetectorPanic, d.Name(), rec)}
		}
	}()
	findings, err := d.Detect(ctx, ds)
	return outcome{findings: findings, err: err}
}

func (r *Runner) report(ctx context.Context, signal domain.SignalType, o outcome, elapsed time.Duration) {
	ev := domain.DetectorEvent{
		RunID:      r.RunID,
		Signal:     signal,
		Count:      len(o.findings),
		DurationMs: elapsed.Milliseconds(),
	}
	topic := domain.TopicDetectorCompleted

	if o.err != nil {
		ev.Count = 0
		ev.Error = o.err.Error()
		topic = domain.TopicDetectorFailed
		slog.Warn("detector failed",
			"signal", signal,
			"error", o.err,
			"duration_ms", ev.DurationMs,
		)
	} else {
		slog.Info("detector completed",
			"signal", signal,
			"findings", ev.Count,
			"duration_ms", ev.DurationMs,
		)
	}

	if r.Bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, r.Bus, topic, ev); err != nil {
		slog.Error("failed to publish detector event",
			"signal", signal,
			"error", err,
		)
	}
}
