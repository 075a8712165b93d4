// Package config exposes the typed configuration surface of the
// EUR/CCD rate oracle, backed by koanf. It mirrors the teacher's
// pattern of reading raw koanf values with code-level defaults
// (internal/util.InitConfig loads the layers; this package interprets
// them), generalized from a single chain.json file to the flat
// configuration keys described in §6.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
)

// Config is the fully-resolved, validated configuration for one daemon
// instance.
type Config struct {
	SecretNames []string
	AWSRegion   string

	Nodes    []string
	RPCToken string

	LogLevel       string
	PrometheusPort int

	DatabaseURL string
	EventsURL   string

	PullInterval   time.Duration
	MaxRatesSaved  int
	UpdateInterval time.Duration

	WarningIncreaseThresholdPct float64
	HaltIncreaseThresholdPct    float64
	WarningDecreaseThresholdPct float64
	HaltDecreaseThresholdPct    float64

	EnableCoinGecko     bool
	EnableLiveCoinWatch bool
	EnableCoinMarketCap bool
	EnableBitfinex      bool

	LiveCoinWatchAPIKey string
	CoinMarketCapAPIKey string

	DryRun     bool
	TestSource []string
	LocalKeys  []string
}

// defaults mirror §6's stated defaults.
const (
	defaultAWSRegion       = "eu-central-1"
	defaultRPCToken        = "rpcadmin"
	defaultLogLevel        = "info"
	defaultPrometheusPort  = 8112
	defaultPullInterval    = 60 * time.Second
	defaultMaxRatesSaved   = 60
	defaultUpdateInterval  = 1800 * time.Second
	defaultWarnIncreasePct = 30.0
	defaultHaltIncreasePct = 100.0
	defaultWarnDecreasePct = 15.0
	defaultHaltDecreasePct = 50.0
)

// LockFilePath is the well-known halt marker path from §3/§6. It is not
// configurable, matching the spec's fixed path.
const LockFilePath = "/var/lib/concordium-eur2ccd-service/update.lockfile"

// Load reads the resolved configuration out of a koanf instance already
// populated by internal/util.InitConfig (file layer + env layer), fills
// in defaults for anything unset, and validates the result.
func Load(ko *koanf.Koanf) (*Config, error) {
	c := &Config{
		SecretNames: splitCSV(ko.String("secret-names")),
		AWSRegion:   stringOr(ko, "aws-region", defaultAWSRegion),

		Nodes:    splitCSV(ko.String("node")),
		RPCToken: stringOr(ko, "rpc-token", defaultRPCToken),

		LogLevel:       strings.ToLower(stringOr(ko, "log-level", defaultLogLevel)),
		PrometheusPort: intOr(ko, "prometheus-port", defaultPrometheusPort),

		DatabaseURL: ko.String("database-url"),
		EventsURL:   ko.String("events-url"),

		PullInterval:   durationSecondsOr(ko, "pull-interval", defaultPullInterval),
		MaxRatesSaved:  intOr(ko, "max-rates-saved", defaultMaxRatesSaved),
		UpdateInterval: durationSecondsOr(ko, "update-interval", defaultUpdateInterval),

		WarningIncreaseThresholdPct: floatOr(ko, "warning-increase-threshold", defaultWarnIncreasePct),
		HaltIncreaseThresholdPct:    floatOr(ko, "halt-increase-threshold", defaultHaltIncreasePct),
		WarningDecreaseThresholdPct: floatOr(ko, "warning-decrease-threshold", defaultWarnDecreasePct),
		HaltDecreaseThresholdPct:    floatOr(ko, "halt-decrease-threshold", defaultHaltDecreasePct),

		EnableCoinGecko:     ko.Bool("coin-gecko"),
		EnableLiveCoinWatch: ko.Bool("live-coin-watch"),
		EnableCoinMarketCap: ko.Bool("coin-market-cap"),
		EnableBitfinex:      ko.Bool("bitfinex"),

		LiveCoinWatchAPIKey: ko.String("live-coin-watch-api-key"),
		CoinMarketCapAPIKey: ko.String("coin-market-cap-api-key"),

		DryRun:     ko.Bool("dry-run"),
		TestSource: splitCSV(ko.String("test-source")),
		LocalKeys:  splitCSV(ko.String("local-keys")),
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if !c.EnableCoinGecko && !c.EnableLiveCoinWatch && !c.EnableCoinMarketCap && !c.EnableBitfinex && len(c.TestSource) == 0 {
		return fmt.Errorf("config: no sources enabled (enable at least one of coin-gecko, live-coin-watch, coin-market-cap, bitfinex, test-source)")
	}
	if c.EnableLiveCoinWatch && c.LiveCoinWatchAPIKey == "" {
		return fmt.Errorf("config: live-coin-watch enabled without an API key")
	}
	if c.EnableCoinMarketCap && c.CoinMarketCapAPIKey == "" {
		return fmt.Errorf("config: coin-market-cap enabled without an API key")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("config: no node endpoints configured")
	}
	if len(c.SecretNames) == 0 && len(c.LocalKeys) == 0 {
		return fmt.Errorf("config: no governance key source configured (set secret-names or local-keys)")
	}
	if c.MaxRatesSaved <= 0 {
		return fmt.Errorf("config: max-rates-saved must be positive, got %d", c.MaxRatesSaved)
	}
	if c.PullInterval <= 0 || c.UpdateInterval <= 0 {
		return fmt.Errorf("config: pull-interval and update-interval must be positive durations")
	}
	return nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stringOr(ko *koanf.Koanf, key, def string) string {
	if v := ko.String(key); v != "" {
		return v
	}
	return def
}

func intOr(ko *koanf.Koanf, key string, def int) int {
	if ko.Exists(key) {
		return ko.Int(key)
	}
	return def
}

func floatOr(ko *koanf.Koanf, key string, def float64) float64 {
	if ko.Exists(key) {
		return ko.Float64(key)
	}
	return def
}

func durationSecondsOr(ko *koanf.Koanf, key string, def time.Duration) time.Duration {
	if ko.Exists(key) {
		return time.Duration(ko.Int(key)) * time.Second
	}
	return def
}
