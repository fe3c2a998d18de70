// Command source_check probes every configured telemetry source and reports
// whether it is reachable and how many siteinfo rows it currently serves.
// Run it before enabling a new source in TELEMETRY_SOURCES.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edufleet/central-api/internal/telemetry"
	"github.com/edufleet/central-api/pkg/config"
)

type probe struct {
	Source   string
	Records  int
	Skipped  int
	Duration time.Duration
	Error    error
}

func main() {
	var (
		sourcesFlag string
		timeout     time.Duration
	)

	flag.StringVar(&sourcesFlag, "sources", "", "Comma-separated MySQL DSNs (defaults to TELEMETRY_SOURCES)")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Per-source probe timeout")
	flag.Parse()

	dsns := splitSources(sourcesFlag)
	if len(dsns) == 0 {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		dsns = cfg.Telemetry.Sources
	}
	if len(dsns) == 0 {
		log.Fatal("no telemetry sources given; set -sources or TELEMETRY_SOURCES")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	var probes []probe
	unreachable := 0
	for _, dsn := range dsns {
		p := probeSource(ctx, dsn, timeout, logger)
		if p.Error != nil {
			unreachable++
		}
		probes = append(probes, p)
	}

	printReport(probes)

	fmt.Printf("Sources: %d, Unreachable: %d\n", len(probes), unreachable)
	if unreachable > 0 {
		os.Exit(1)
	}
}

func splitSources(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func probeSource(ctx context.Context, dsn string, timeout time.Duration, logger *zap.Logger) probe {
	src := telemetry.NewSource(dsn, timeout, logger)
	p := probe{Source: src.Name()}

	start := time.Now()
	batch, err := src.Fetch(ctx)
	p.Duration = time.Since(start)
	p.Records = len(batch.Records)
	p.Skipped = batch.Skipped
	p.Error = err
	return p
}

func printReport(results []probe) {
	fmt.Println("Telemetry Source Report")
	fmt.Println("=======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "UNREACHABLE"
		} else if res.Records == 0 {
			status = "EMPTY"
		}
		fmt.Printf("[%s] %s (%s)\n", status, res.Source, res.Duration)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		fmt.Printf("  Records: %d | Skipped: %d\n", res.Records, res.Skipped)
	}
}
