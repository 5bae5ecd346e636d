package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string
	MetricsAddr string

	FeeRateBasisPoints int64
	DisputeTiming      string

	RateLimitRPS   float64
	RateLimitBurst int

	NotifyWorkers int
	SigningSecret string
}

type configFile struct {
	Server struct {
		HTTPAddr    string `yaml:"http_addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"server"`
	Ledger struct {
		FeeRateBasisPoints int64  `yaml:"fee_rate_basis_points"`
		DisputeTiming      string `yaml:"dispute_timing"`
	} `yaml:"ledger"`
	API struct {
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`
		SigningSecret  string  `yaml:"signing_secret"`
	} `yaml:"api"`
	Notifications struct {
		Workers int `yaml:"workers"`
	} `yaml:"notifications"`
}

// Load reads the optional YAML file at path, then applies environment
// overrides on top of defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Config{
		HTTPAddr:           ":8080",
		MetricsAddr:        ":9090",
		FeeRateBasisPoints: 100,
		DisputeTiming:      "anytime",
		RateLimitRPS:       50,
		RateLimitBurst:     100,
		NotifyWorkers:      3,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Server.HTTPAddr != "" {
			cfg.HTTPAddr = f.Server.HTTPAddr
		}
		if f.Server.MetricsAddr != "" {
			cfg.MetricsAddr = f.Server.MetricsAddr
		}
		if f.Ledger.FeeRateBasisPoints > 0 {
			cfg.FeeRateBasisPoints = f.Ledger.FeeRateBasisPoints
		}
		if f.Ledger.DisputeTiming != "" {
			cfg.DisputeTiming = f.Ledger.DisputeTiming
		}
		if f.API.RateLimitRPS > 0 {
			cfg.RateLimitRPS = f.API.RateLimitRPS
		}
		if f.API.RateLimitBurst > 0 {
			cfg.RateLimitBurst = f.API.RateLimitBurst
		}
		if f.API.SigningSecret != "" {
			cfg.SigningSecret = f.API.SigningSecret
		}
		if f.Notifications.Workers > 0 {
			cfg.NotifyWorkers = f.Notifications.Workers
		}
	}

	cfg.HTTPAddr = envOrDefault("LEDGER_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envOrDefault("LEDGER_METRICS_ADDR", cfg.MetricsAddr)
	cfg.FeeRateBasisPoints = envInt64("LEDGER_FEE_RATE_BPS", cfg.FeeRateBasisPoints)
	cfg.DisputeTiming = envOrDefault("LEDGER_DISPUTE_TIMING", cfg.DisputeTiming)
	cfg.RateLimitRPS = envFloat("LEDGER_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = int(envInt64("LEDGER_RATE_LIMIT_BURST", int64(cfg.RateLimitBurst)))
	cfg.NotifyWorkers = int(envInt64("LEDGER_NOTIFY_WORKERS", int64(cfg.NotifyWorkers)))
	cfg.SigningSecret = envOrDefault("LEDGER_SIGNING_SECRET", cfg.SigningSecret)

	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt64(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}
