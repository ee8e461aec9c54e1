// Package config defines the exchange engine's own configuration surface —
// data directory, bootstrap reference price, stop-cascade safety bound,
// notification endpoints — loaded with viper. This is distinct from (and
// much smaller than) a full session-layer configuration, which is out of
// scope for this module.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EngineConfig is the engine's runtime configuration.
type EngineConfig struct {
	DataDir              string        `mapstructure:"data_dir"`
	TradeLogFile         string        `mapstructure:"trade_log_file"`
	BootstrapRefPrice    int64         `mapstructure:"bootstrap_ref_price"`
	StopCascadeMaxIters  int           `mapstructure:"stop_cascade_max_iters"`
	MulticastAddr        string        `mapstructure:"multicast_addr"`
	NotifyWorkerPoolSize int           `mapstructure:"notify_worker_pool_size"`
	OHLCCacheTTL         time.Duration `mapstructure:"ohlc_cache_ttl"`
	TradeLogCompactBytes int64         `mapstructure:"trade_log_compact_bytes"`
	LogLevel             string        `mapstructure:"log_level"`
}

// Default returns the engine's documented defaults.
func Default() *EngineConfig {
	return &EngineConfig{
		DataDir:              "./data",
		TradeLogFile:         "StoricoOrdini.json",
		BootstrapRefPrice:    50_000_000,
		StopCascadeMaxIters:  1024,
		MulticastAddr:        "239.0.0.1:9999",
		NotifyWorkerPoolSize: 32,
		OHLCCacheTTL:         5 * time.Minute,
		TradeLogCompactBytes: 64 << 20,
		LogLevel:             "info",
	}
}

// Load reads an optional YAML config file and ENGINE_-prefixed environment
// overrides on top of Default().
func Load(configPath string) (*EngineConfig, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("ENGINE")
	v.AutomaticEnv()
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("trade_log_file", cfg.TradeLogFile)
	v.SetDefault("bootstrap_ref_price", cfg.BootstrapRefPrice)
	v.SetDefault("stop_cascade_max_iters", cfg.StopCascadeMaxIters)
	v.SetDefault("multicast_addr", cfg.MulticastAddr)
	v.SetDefault("notify_worker_pool_size", cfg.NotifyWorkerPoolSize)
	v.SetDefault("ohlc_cache_ttl", cfg.OHLCCacheTTL)
	v.SetDefault("trade_log_compact_bytes", cfg.TradeLogCompactBytes)
	v.SetDefault("log_level", cfg.LogLevel)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// InitLogger builds the zap logger used across the engine. LogLevel
// "debug" selects zap's development logger; any other value selects the
// production logger, which logs at info level and above.
func InitLogger(cfg *EngineConfig) (*zap.Logger, error) {
	switch cfg.LogLevel {
	case "debug":
		return zap.NewDevelopment()
	default:
		return zap.NewProduction()
	}
}
