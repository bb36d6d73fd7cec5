// Benchmark tool for timing fraudscan scans on a synthetic dataset.
//
// Usage:
//
//	go run ./cmd/benchmark -providers 5000 -months 24 -runs 3
//
// This tool:
//  1. Generates a synthetic claims, NPPES and LEIE dataset in SQLite
//  2. Runs the full scan pipeline the requested number of times
//  3. Reports load time, per-run latency and provider throughput
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/opensource-finance/fraudscan/internal/bus"
	"github.com/opensource-finance/fraudscan/internal/cache"
	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/pipeline"
	"github.com/opensource-finance/fraudscan/internal/repository"
)

var taxonomies = []string{"251E00000X", "207Q00000X", "261QM0801X", "363L00000X", "225100000X"}

var states = []string{"MN", "WI", "IA", "ND", "SD"}

// Result holds benchmark results
type Result struct {
	Providers    int
	SpendingRows int
	LoadTime     time.Duration
	Runs         []time.Duration
	Last         *domain.Report
	Events       int64
}

func main() {
	providers := flag.Int("providers", 2000, "Number of synthetic billing providers")
	months := flag.Int("months", 12, "Claim months per provider")
	runs := flag.Int("runs", 3, "Number of scan runs")
	seed := flag.Uint64("seed", 42, "Random seed")
	dbPath := flag.String("db", "", "SQLite path (default: temp file)")
	concurrency := flag.Int("concurrency", 4, "Detector concurrency")
	useCache := flag.Bool("cache", true, "Serve reference lookups through the in-memory cache")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	path := *dbPath
	if path == "" {
		dir, err := os.MkdirTemp("", "fraudscan-bench-*")
		if err != nil {
			fmt.Printf("Error creating temp dir: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "bench.db")
	}

	fmt.Printf("Generating %d providers x %d months into %s\n", *providers, *months, path)

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		fmt.Printf("Error opening dataset: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	ctx := context.Background()
	result := Result{Providers: *providers}

	start := time.Now()
	rows, err := generate(ctx, repo, *providers, *months, rand.New(rand.NewPCG(*seed, *seed)))
	if err != nil {
		fmt.Printf("Error generating dataset: %v\n", err)
		os.Exit(1)
	}
	result.LoadTime = time.Since(start)
	result.SpendingRows = rows

	eventBus := bus.NewChannelBus(1000)
	defer eventBus.Close()
	var events atomic.Int64
	sub, err := eventBus.Subscribe(ctx, domain.TopicDetectorCompleted, func(ctx context.Context, msg *domain.Message) error {
		events.Add(1)
		return nil
	})
	if err == nil {
		defer sub.Unsubscribe()
	}

	var reference domain.ReferenceSource = repo
	if *useCache {
		reference = cache.NewReferenceCache(repo, cache.NewLRUCache(4 * *providers), time.Hour)
	}

	p, err := pipeline.New(pipeline.Deps{
		Dataset:   repo,
		Reference: reference,
		Bus:       eventBus,
		Config: domain.PipelineConfig{
			MaxProviders:        5000,
			MinPerSignal:        100,
			DetectorConcurrency: *concurrency,
		},
	})
	if err != nil {
		fmt.Printf("Error creating pipeline: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < *runs; i++ {
		runStart := time.Now()
		rep, err := p.Run(ctx)
		if err != nil {
			fmt.Printf("Error in run %d: %v\n", i+1, err)
			os.Exit(1)
		}
		elapsed := time.Since(runStart)
		result.Runs = append(result.Runs, elapsed)
		result.Last = rep
		fmt.Printf("  run %d: %s (%d flagged)\n", i+1, elapsed.Round(time.Millisecond), rep.TotalProvidersFlagged)
	}
	result.Events = events.Load()

	printResults(result)
}

// generate writes a dataset where a small share of providers bill far above
// their peers, a few are excluded and one zip code hosts a cluster.
func generate(ctx context.Context, repo *repository.SQLRepository, n, months int, rng *rand.Rand) (int, error) {
	spending := make([]repository.SpendingRow, 0, n*months)
	nppes := make([]repository.ProviderRow, 0, n)
	var leie []repository.ExclusionRow

	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		npi := fmt.Sprintf("1%09d", i)
		tax := taxonomies[i%len(taxonomies)]
		state := states[rng.IntN(len(states))]
		zip := fmt.Sprintf("55%03d", rng.IntN(400))

		scale := 1.0
		switch r := rng.Float64(); {
		case r < 0.02:
			scale = 40 // extreme outlier
		case r < 0.05:
			scale = 8
		}
		if i%97 == 0 {
			zip = "55401"
			scale *= 10
		}

		nppes = append(nppes, repository.ProviderRow{
			NPI:             npi,
			EntityTypeCode:  "2",
			OrgName:         fmt.Sprintf("Provider %d Services LLC", i),
			State:           state,
			ZipCode:         zip,
			TaxonomyCode:    tax,
			EnumerationDate: base.AddDate(0, -rng.IntN(60), 0).Format("2006-01-02"),
		})

		for m := 0; m < months; m++ {
			growth := 1.0
			if scale > 1 && m >= months/2 {
				growth = 3
			}
			claims := int64(20 + rng.IntN(80))
			paid := float64(claims) * (50 + rng.Float64()*100) * scale * growth
			spending = append(spending, repository.SpendingRow{
				BillingNPI:          npi,
				ServicingNPI:        fmt.Sprintf("2%09d", rng.IntN(n/10+1)),
				HCPCSCode:           "T1019",
				ClaimMonth:          base.AddDate(0, m, 0).Format("2006-01-02"),
				UniqueBeneficiaries: claims / 2,
				TotalClaims:         claims,
				TotalPaid:           paid,
			})
		}

		if i%250 == 7 {
			leie = append(leie, repository.ExclusionRow{
				BusName:  fmt.Sprintf("PROVIDER %d SERVICES LLC", i),
				NPI:      npi,
				ExclType: "1128b7",
				ExclDate: base.AddDate(0, months/3, 0).Format("20060102"),
				ReinDate: "00000000",
			})
		}
	}

	if err := repo.InsertProviders(ctx, nppes); err != nil {
		return 0, err
	}
	if err := repo.InsertExclusions(ctx, leie); err != nil {
		return 0, err
	}
	if err := repo.InsertSpending(ctx, spending); err != nil {
		return 0, err
	}
	return len(spending), nil
}

func printResults(r Result) {
	fmt.Println()
	fmt.Println("════════════════════════════════════════════════════════════")
	fmt.Println("                  FRAUDSCAN BENCHMARK RESULTS")
	fmt.Println("════════════════════════════════════════════════════════════")
	fmt.Println()

	fmt.Println("DATASET")
	fmt.Println("───────────────────────────────────────")
	fmt.Printf("  Providers:        %s\n", humanize.Comma(int64(r.Providers)))
	fmt.Printf("  Spending rows:    %s\n", humanize.Comma(int64(r.SpendingRows)))
	fmt.Printf("  Load time:        %v\n", r.LoadTime.Round(time.Millisecond))
	fmt.Println()

	if len(r.Runs) == 0 {
		return
	}

	sorted := append([]time.Duration(nil), r.Runs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	avg := total / time.Duration(len(sorted))

	fmt.Println("SCAN LATENCY")
	fmt.Println("───────────────────────────────────────")
	fmt.Printf("  Runs:             %d\n", len(sorted))
	fmt.Printf("  Min:              %v\n", sorted[0].Round(time.Millisecond))
	fmt.Printf("  Avg:              %v\n", avg.Round(time.Millisecond))
	fmt.Printf("  Max:              %v\n", sorted[len(sorted)-1].Round(time.Millisecond))
	fmt.Printf("  Throughput:       %.0f providers/s\n", float64(r.Providers)/avg.Seconds())
	fmt.Printf("  Detector events:  %d\n", r.Events)
	fmt.Println()

	rep := r.Last
	fmt.Println("LAST REPORT")
	fmt.Println("───────────────────────────────────────")
	fmt.Printf("  Flagged:          %s\n", humanize.Comma(int64(rep.TotalProvidersFlagged)))
	fmt.Printf("  Est. overpayment: %s\n", domain.FormatUSD(rep.ExecutiveSummary.TotalEstimatedOverpayment))
	fmt.Printf("  Networks:         %d (%d actionable)\n", rep.NetworkAnalysis.TotalNetworks, rep.NetworkAnalysis.ActionableCount)
	for _, sc := range rep.ExecutiveSummary.SignalTypeSummary {
		fmt.Printf("    %-32s %6d\n", sc.Signal, sc.Count)
	}
	for signal, msg := range rep.DetectorErrors {
		fmt.Printf("    %-32s FAILED: %s\n", signal, msg)
	}
	fmt.Println()
}
