// Fraudscan - Medicaid provider fraud signal scanner.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/fraudscan/internal/api"
	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/report"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	reportPath := fs.String("report", "fraud_signals.json", "Report to serve")
	fs.Parse(args)

	cfg, err := setup(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// A missing report is not fatal; /ready stays 503 until one arrives.
	rep, err := report.Read(*reportPath)
	if err != nil {
		slog.Warn("no report loaded", "path", *reportPath, "error", err)
	} else {
		slog.Info("report loaded", "path", *reportPath, "run_id", rep.RunID, "flagged", rep.TotalProvidersFlagged)
	}

	handler := api.NewHandler(rep, Version)
	reload := func(reason string) {
		next, err := report.Read(*reportPath)
		if err != nil {
			slog.Error("failed to reload report", "path", *reportPath, "reason", reason, "error", err)
			return
		}
		handler.SetReport(next)
		slog.Info("report reloaded", "path", *reportPath, "reason", reason, "run_id", next.RunID)
	}

	// SIGHUP reloads the report from disk.
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)
	go func() {
		for {
			select {
			case <-hupCh:
				reload("sighup")
			case <-ctx.Done():
				return
			}
		}
	}()

	// Scans publishing on a shared bus trigger a reload as well.
	eventBus := openBus(cfg.EventBus)
	defer eventBus.Close()
	sub, err := eventBus.Subscribe(ctx, domain.TopicReportGenerated, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.ReportEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		slog.Info("report event received", "run_id", ev.RunID, "flagged", ev.ProvidersFlagged)
		reload("report_generated")
		return nil
	})
	if err != nil {
		slog.Warn("failed to subscribe to report events", "error", err)
	} else {
		defer sub.Unsubscribe()
	}

	srv := api.NewServer(cfg.Server, handler)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("fraudscan server is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, *reportPath)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fraudscan shutdown complete")
	return nil
}

func printBanner(cfg *domain.Config, reportPath string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               FRAUDSCAN                   ║")
	fmt.Println("  ║    Medicaid Provider Fraud Signals        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  Report:   %s\n", reportPath)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /report            - Full JSON report")
	fmt.Println("    GET  /report.html       - HTML report")
	fmt.Println("    GET  /summary           - Executive summary")
	fmt.Println("    GET  /providers         - Flagged providers (tier, signal, limit, offset)")
	fmt.Println("    GET  /providers/{npi}   - One flagged provider")
	fmt.Println("    GET  /networks          - Network-only report")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println("    GET  /ready             - Readiness check")
	fmt.Println()
}
