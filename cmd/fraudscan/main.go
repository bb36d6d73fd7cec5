// Fraudscan - Medicaid provider fraud signal scanner.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/opensource-finance/fraudscan/internal/bus"
	"github.com/opensource-finance/fraudscan/internal/cache"
	"github.com/opensource-finance/fraudscan/internal/config"
	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/ingest"
	"github.com/opensource-finance/fraudscan/internal/pipeline"
	"github.com/opensource-finance/fraudscan/internal/render"
	"github.com/opensource-finance/fraudscan/internal/report"
	"github.com/opensource-finance/fraudscan/internal/repository"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cmd := "scan"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "scan":
		err = runScan(args)
	case "load":
		err = runLoad(args)
	case "networks":
		err = runNetworks(args)
	case "serve":
		err = runServe(args)
	case "version":
		fmt.Printf("fraudscan %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("fraudscan failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: fraudscan <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  scan      Run detectors and write the fraud signal report (default)")
	fmt.Fprintln(os.Stderr, "  load      Load spending, NPPES and LEIE CSV files into the dataset")
	fmt.Fprintln(os.Stderr, "  networks  Derive the network-only report from an existing report")
	fmt.Fprintln(os.Stderr, "  serve     Serve a report over HTTP")
	fmt.Fprintln(os.Stderr, "  version   Print version information")
}

// setup loads configuration and installs the default logger.
func setup(path string) (*domain.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.Logging))
	slog.Info("configuration loaded",
		"version", Version,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)
	return cfg, nil
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// newTracer returns the global tracer when tracing is enabled. Exporters are
// installed by whoever sets the global provider.
func newTracer(cfg domain.TracingConfig) trace.Tracer {
	if !cfg.Enabled {
		return noop.NewTracerProvider().Tracer("")
	}
	return otel.Tracer(cfg.ServiceName + "/pipeline")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// openCache returns nil when caching is disabled. A cache that cannot be
// reached falls back to the in-process LRU.
func openCache(cfg domain.CacheConfig) domain.Cache {
	if cfg.Type == "none" {
		return nil
	}
	c, err := cache.New(cfg)
	if err != nil {
		slog.Warn("failed to initialize cache, using in-memory cache", "type", cfg.Type, "error", err)
		return cache.NewLRUCache(cfg.LocalMaxSize)
	}
	slog.Info("cache initialized", "type", cfg.Type)
	return c
}

// openBus falls back to a no-op bus when the configured bus is unavailable.
func openBus(cfg domain.EventBusConfig) domain.EventBus {
	b, err := bus.New(cfg)
	if err != nil {
		slog.Warn("failed to initialize event bus, events disabled", "type", cfg.Type, "error", err)
		return bus.Nop{}
	}
	slog.Info("event bus initialized", "type", cfg.Type)
	return b
}

func runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	output := fs.String("output", "fraud_signals.json", "Output JSON report path")
	htmlPath := fs.String("html", "", "Also write an HTML report to this path")
	networkPath := fs.String("network-json", "", "Also write the network-only report to this path")
	fs.Parse(args)

	cfg, err := setup(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return err
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	var reference domain.ReferenceSource = repo
	if c := openCache(cfg.Cache); c != nil {
		defer c.Close()
		reference = cache.NewReferenceCache(repo, c, cfg.Cache.ReferenceTTL)
	}

	eventBus := openBus(cfg.EventBus)
	defer eventBus.Close()

	p, err := pipeline.New(pipeline.Deps{
		Dataset:   repo,
		Reference: reference,
		Bus:       eventBus,
		Tracer:    newTracer(cfg.Tracing),
		Config:    cfg.Pipeline,
	})
	if err != nil {
		return err
	}

	rep, err := p.Run(ctx)
	if err != nil {
		return err
	}

	if err := report.Write(*output, rep); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	slog.Info("report written", "path", *output)

	if *htmlPath != "" {
		if err := render.WriteHTMLFile(*htmlPath, rep); err != nil {
			return fmt.Errorf("writing html report: %w", err)
		}
		slog.Info("html report written", "path", *htmlPath)
	}

	if *networkPath != "" {
		if err := report.Write(*networkPath, report.DeriveNetworkReport(rep, time.Now().UTC())); err != nil {
			return fmt.Errorf("writing network report: %w", err)
		}
		slog.Info("network report written", "path", *networkPath)
	}

	printScanSummary(rep, *output, time.Since(start))
	return nil
}

func runLoad(args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	dir := fs.String("dir", "./data", "Directory holding spending.csv, nppes.csv and leie.csv")
	batch := fs.Int("batch", ingest.DefaultBatchSize, "Rows per insert transaction")
	fs.Parse(args)

	cfg, err := setup(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return err
	}
	defer repo.Close()

	start := time.Now()
	stats, err := ingest.NewLoader(repo, *batch).LoadDir(ctx, *dir)
	for _, st := range stats {
		fmt.Printf("  %-40s %12s rows  %8s skipped\n", st.File, humanize.Comma(int64(st.Loaded)), humanize.Comma(int64(st.Skipped)))
	}
	if err != nil {
		return err
	}

	total, err := repo.CountBillingProviders(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\n  %s billing providers loaded in %s\n", domain.FormatCount(total), time.Since(start).Round(time.Millisecond))
	return nil
}

func runNetworks(args []string) error {
	fs := flag.NewFlagSet("networks", flag.ExitOnError)
	input := fs.String("report", "fraud_signals.json", "Full report to derive from")
	output := fs.String("output", "fof_networks.json", "Network report output path")
	fs.Parse(args)

	rep, err := report.Read(*input)
	if err != nil {
		return err
	}

	nr := report.DeriveNetworkReport(rep, time.Now().UTC())
	if err := report.Write(*output, nr); err != nil {
		return fmt.Errorf("writing network report: %w", err)
	}

	fmt.Printf("  Networks:            %d\n", nr.Summary.TotalNetworks)
	fmt.Printf("  Actionable:          %d (%d members)\n", nr.Summary.ActionableCount, nr.Summary.ActionableMembers)
	fmt.Printf("  Actionable exposure: %s\n", domain.FormatWhole(nr.Summary.ActionableOverpayment))
	fmt.Printf("  Below threshold:     %d (%s)\n", nr.Summary.BelowThresholdCount, domain.FormatWhole(nr.Summary.BelowThresholdOverpayment))
	fmt.Printf("  Written to:          %s\n", *output)
	return nil
}

func printScanSummary(rep *domain.Report, output string, elapsed time.Duration) {
	fmt.Println()
	fmt.Println("════════════════════════════════════════════════════════════")
	fmt.Println("                    FRAUD SIGNAL SCAN")
	fmt.Println("════════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Printf("  Run ID:               %s\n", rep.RunID)
	fmt.Printf("  Providers scanned:    %s\n", domain.FormatCount(rep.TotalProvidersScanned))
	fmt.Printf("  Providers flagged:    %s\n", humanize.Comma(int64(rep.TotalProvidersFlagged)))
	fmt.Printf("  Est. overpayment:     %s\n", domain.FormatUSD(rep.ExecutiveSummary.TotalEstimatedOverpayment))
	fmt.Printf("  Actionable networks:  %d (%s)\n", rep.NetworkAnalysis.ActionableCount, domain.FormatWhole(rep.NetworkAnalysis.ActionableOverpayment))
	fmt.Println()

	fmt.Println("  Findings by signal:")
	for _, sc := range rep.ExecutiveSummary.SignalTypeSummary {
		fmt.Printf("    %-32s %8s\n", sc.Signal, humanize.Comma(int64(sc.Count)))
	}
	for signal, msg := range rep.DetectorErrors {
		fmt.Printf("    %-32s FAILED: %s\n", signal, msg)
	}
	fmt.Println()

	fmt.Println("  Risk tiers:")
	for _, tier := range domain.AllTiers() {
		fmt.Printf("    %-10s %6d\n", tier, rep.ExecutiveSummary.RiskTierDistribution[tier])
	}
	fmt.Println()

	fmt.Printf("  Report:   %s\n", output)
	fmt.Printf("  Runtime:  %s\n", elapsed.Round(time.Millisecond))
	fmt.Println()
}
