// README: Smoke and load runner for a deployed hyperlocal API; executes HTTP/DB/Redis checks and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"hyperlocal/internal/config"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench := NewRunner(cfg)
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusFail:
			fail++
		case StatusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		os.Exit(1)
	}
}

// Config is the bench configuration after command-line overrides.
type Config struct {
	config.BenchConfig
}

// loadConfig reads HYPERLOCAL_BENCH_* settings (and the shared DB/Redis keys)
// through internal/config; flags override them.
func loadConfig() (Config, error) {
	base, err := config.LoadBench()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{BenchConfig: base}
	flag.StringVar(&cfg.BaseURL, "base-url", base.BaseURL, "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", base.DSN, "Postgres DSN")
	flag.StringVar(&cfg.RedisAddr, "redis", base.RedisAddr, "Redis address")
	flag.StringVar(&cfg.MigrationPath, "migration", base.MigrationPath, "Migration SQL path")
	flag.BoolVar(&cfg.ApplyMigration, "apply-migration", base.ApplyMigration, "Apply migration SQL before tests")
	flag.BoolVar(&cfg.Strict, "strict", base.Strict, "Fail when cases are skipped")
	flag.DurationVar(&cfg.Timeout, "timeout", base.Timeout, "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", base.Concurrency, "Concurrency for perf tests")
	flag.DurationVar(&cfg.Duration, "duration", base.Duration, "Duration for perf tests")
	flag.StringVar(&cfg.CustomerToken, "customer-token", base.CustomerToken, "Customer ID token")
	flag.StringVar(&cfg.OwnerToken, "owner-token", base.OwnerToken, "Shop owner ID token")
	flag.StringVar(&cfg.RiderToken, "rider-token", base.RiderToken, "Rider ID token")
	flag.StringVar(&cfg.ShopID, "shop", base.ShopID, "Seeded shop id")
	flag.StringVar(&cfg.ProductID, "product", base.ProductID, "Seeded product id")
	flag.StringVar(&cfg.RiderID, "rider", base.RiderID, "Seeded rider id")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

func (c Config) hasActors() bool {
	return c.CustomerToken != "" && c.OwnerToken != "" && c.RiderToken != ""
}
