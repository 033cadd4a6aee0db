// README: Bench runner settings loaded through the shared viper setup.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BenchConfig drives cmd/bench against a deployed API. DB and Redis come from
// the same keys the API reads; everything else lives under bench.*.
type BenchConfig struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration

	CustomerToken string
	OwnerToken    string
	RiderToken    string

	ShopID    string
	ProductID string
	RiderID   string
}

func setBenchDefaults(v *viper.Viper) {
	v.SetDefault("bench.base_url", "http://localhost:8080")
	v.SetDefault("bench.migration", "migrations/0001_init.sql")
	v.SetDefault("bench.apply_migration", false)
	v.SetDefault("bench.strict", false)
	v.SetDefault("bench.timeout", 60*time.Second)
	v.SetDefault("bench.concurrency", 20)
	v.SetDefault("bench.duration", 10*time.Second)
	v.SetDefault("bench.customer_token", "")
	v.SetDefault("bench.owner_token", "")
	v.SetDefault("bench.rider_token", "")
	v.SetDefault("bench.shop_id", "shop-1")
	v.SetDefault("bench.product_id", "product-1")
	v.SetDefault("bench.rider_id", "rider-1")
}

// LoadBench reads HYPERLOCAL_BENCH_* settings plus the shared DB and Redis keys.
func LoadBench() (BenchConfig, error) {
	v, err := newViper()
	if err != nil {
		return BenchConfig{}, err
	}
	cfg := BenchConfig{
		BaseURL:        strings.TrimRight(v.GetString("bench.base_url"), "/"),
		DSN:            v.GetString("db.dsn"),
		RedisAddr:      v.GetString("redis.addr"),
		MigrationPath:  v.GetString("bench.migration"),
		ApplyMigration: v.GetBool("bench.apply_migration"),
		Strict:         v.GetBool("bench.strict"),
		Timeout:        v.GetDuration("bench.timeout"),
		Concurrency:    v.GetInt("bench.concurrency"),
		Duration:       v.GetDuration("bench.duration"),
		CustomerToken:  v.GetString("bench.customer_token"),
		OwnerToken:     v.GetString("bench.owner_token"),
		RiderToken:     v.GetString("bench.rider_token"),
		ShopID:         v.GetString("bench.shop_id"),
		ProductID:      v.GetString("bench.product_id"),
		RiderID:        v.GetString("bench.rider_id"),
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 20
	}
	return cfg, nil
}
