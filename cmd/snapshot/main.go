package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cryptoScreener/config"
	"cryptoScreener/internal/bootstrap"
	"cryptoScreener/internal/domain"
	"cryptoScreener/internal/utils"
)

var (
	format = flag.String("format", "json", "output format: json or csv")
	out    = flag.String("out", "", "output file (default stdout)")
	limit  = flag.Int("limit", 0, "override the universe size")
)

func main() {
	flag.Parse()
	if *format != "json" && *format != "csv" {
		log.Fatalf("FATAL: unsupported format %q", *format)
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if *limit > 0 {
		cfg.UniverseSize = *limit
	}
	cfg.StreamTicks = false

	// 2. Initialize Logger
	appLogger := bootstrap.NewLogger(cfg)
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Run the pipeline once
	components, err := bootstrap.Build(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize screener: %v", err)
	}
	snap, err := components.Orchestrator.Snapshot(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Snapshot failed")
		log.Fatalf("FATAL: Snapshot failed: %v", err)
	}
	appLogger.Info(ctx, "Snapshot computed", map[string]interface{}{
		"runId":   snap.RunID,
		"records": len(snap.Records),
		"partial": snap.Partial,
	})

	// 4. Write it out
	if err := write(snap); err != nil {
		log.Fatalf("FATAL: Failed to write snapshot: %v", err)
	}
	if *out != "" {
		appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": *out})
	}
}

func write(snap *domain.Snapshot) error {
	if *format == "csv" {
		if *out != "" {
			return utils.WriteRecordsToCSV(snap.Records, *out)
		}
		return utils.WriteRecords(os.Stdout, snap.Records)
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
