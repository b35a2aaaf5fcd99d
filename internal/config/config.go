package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the trading core.
type Config struct {
	General GeneralConfig            `yaml:"general"`
	Chain   ChainSelection           `yaml:"chain"`
	Chains  map[string]ChainOverride `yaml:"chains"`
	Trading TradingConfig            `yaml:"trading"`
	Gas     GasConfig                `yaml:"gas"`
	Mempool MempoolConfig            `yaml:"mempool"`
	AI      AIConfig                 `yaml:"ai"`
	Bot     BotConfig                `yaml:"bot"`
	Cache   CacheConfig              `yaml:"cache"`
	Redis   RedisConfig              `yaml:"redis"`
	Metrics MetricsConfig            `yaml:"metrics"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	DryRun      bool   `yaml:"dry_run"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|console
}

// ChainSelection picks the active chain from the predefined registry.
type ChainSelection struct {
	Active string `yaml:"active"` // ethereum|bsc|avalanche
}

// ChainOverride replaces endpoint fields of a predefined chain. Values
// usually arrive through env expansion, e.g. rpc_url: "${ETH_RPC_URL}".
type ChainOverride struct {
	RPCURL          string `yaml:"rpc_url"`
	WSURL           string `yaml:"ws_url"`
	PrivateRelayURL string `yaml:"private_relay_url"`
}

type TradingConfig struct {
	Wallet                 string  `yaml:"wallet"`
	MaxPositionSizePercent float64 `yaml:"max_position_size_percent"`
	ReservePercent         float64 `yaml:"reserve_percent"`
	DefaultSlippage        float64 `yaml:"default_slippage"`
	MinFrontrunTargetUSD   float64 `yaml:"min_frontrun_target_usd"`
	MaxAttempts            int     `yaml:"max_attempts"`
	ReceiptTimeoutSeconds  int     `yaml:"receipt_timeout_seconds"`
}

type GasConfig struct {
	MaxGasBoostPercent    int64   `yaml:"max_gas_boost_percent"`
	GasCapGwei            float64 `yaml:"gas_cap_gwei"`
	SampleIntervalSeconds int     `yaml:"sample_interval_seconds"`
	SampleWindow          int     `yaml:"sample_window"`
}

type MempoolConfig struct {
	MEVDetectionEnabled  bool    `yaml:"mev_detection_enabled"`
	MinSandwichVictimUSD float64 `yaml:"min_sandwich_victim_usd"`
	LargeTxAlertUSD      float64 `yaml:"large_tx_alert_usd"`
	WindowSeconds        int     `yaml:"window_seconds"`
}

type AIConfig struct {
	AutoTradeEnabled   bool    `yaml:"auto_trade_enabled"`
	AutoTradeThreshold float64 `yaml:"auto_trade_threshold"`
	DecisionTTLSeconds int     `yaml:"decision_ttl_seconds"`
}

type BotConfig struct {
	CycleIntervalSeconds int     `yaml:"cycle_interval_seconds"`
	LockTimeoutMs        int     `yaml:"lock_timeout_ms"`
	RiskTolerance        string  `yaml:"risk_tolerance"` // VeryLow|Low|Medium|High|VeryHigh
	AutoTuningEnabled    bool    `yaml:"auto_tuning_enabled"`
	AutoBuyPercent       float64 `yaml:"auto_buy_percent"`
}

type CacheConfig struct {
	Capacity int `yaml:"cache_capacity"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	Enabled   bool   `yaml:"enabled"`
}

type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "hornet-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Chain.Active == "" {
		cfg.Chain.Active = "ethereum"
	}
	if cfg.Trading.MaxPositionSizePercent == 0 {
		cfg.Trading.MaxPositionSizePercent = 10
	}
	if cfg.Trading.ReservePercent == 0 {
		cfg.Trading.ReservePercent = 10
	}
	if cfg.Trading.DefaultSlippage == 0 {
		cfg.Trading.DefaultSlippage = 1
	}
	if cfg.Trading.MinFrontrunTargetUSD == 0 {
		cfg.Trading.MinFrontrunTargetUSD = 5000
	}
	if cfg.Trading.MaxAttempts == 0 {
		cfg.Trading.MaxAttempts = 3
	}
	if cfg.Trading.ReceiptTimeoutSeconds == 0 {
		cfg.Trading.ReceiptTimeoutSeconds = 30
	}
	if cfg.Gas.MaxGasBoostPercent == 0 {
		cfg.Gas.MaxGasBoostPercent = 50
	}
	if cfg.Gas.GasCapGwei == 0 {
		cfg.Gas.GasCapGwei = 500
	}
	if cfg.Gas.SampleIntervalSeconds == 0 {
		cfg.Gas.SampleIntervalSeconds = 15
	}
	if cfg.Gas.SampleWindow == 0 {
		cfg.Gas.SampleWindow = 50
	}
	if cfg.Mempool.MinSandwichVictimUSD == 0 {
		cfg.Mempool.MinSandwichVictimUSD = 5000
	}
	if cfg.Mempool.LargeTxAlertUSD == 0 {
		cfg.Mempool.LargeTxAlertUSD = 10_000
	}
	if cfg.Mempool.WindowSeconds == 0 {
		cfg.Mempool.WindowSeconds = 60
	}
	if cfg.AI.AutoTradeThreshold == 0 {
		cfg.AI.AutoTradeThreshold = 0.75
	}
	if cfg.AI.DecisionTTLSeconds == 0 {
		cfg.AI.DecisionTTLSeconds = 300
	}
	if cfg.Bot.CycleIntervalSeconds == 0 {
		cfg.Bot.CycleIntervalSeconds = 30
	}
	if cfg.Bot.LockTimeoutMs == 0 {
		cfg.Bot.LockTimeoutMs = 5000
	}
	if cfg.Bot.RiskTolerance == "" {
		cfg.Bot.RiskTolerance = "Medium"
	}
	if cfg.Bot.AutoBuyPercent == 0 {
		cfg.Bot.AutoBuyPercent = 2
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 1000
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "hornet"
	}
	if cfg.Metrics.PrometheusPort == 0 {
		cfg.Metrics.PrometheusPort = 9090
	}
}

func validate(cfg *Config) error {
	switch cfg.Bot.RiskTolerance {
	case "VeryLow", "Low", "Medium", "High", "VeryHigh":
	default:
		return fmt.Errorf("invalid risk_tolerance %q", cfg.Bot.RiskTolerance)
	}
	if cfg.AI.AutoTradeThreshold < 0 || cfg.AI.AutoTradeThreshold > 1 {
		return fmt.Errorf("auto_trade_threshold %v outside [0,1]", cfg.AI.AutoTradeThreshold)
	}
	if cfg.Trading.MaxPositionSizePercent < 0 || cfg.Trading.MaxPositionSizePercent > 100 {
		return fmt.Errorf("max_position_size_percent %v outside [0,100]", cfg.Trading.MaxPositionSizePercent)
	}
	if cfg.Trading.ReservePercent < 0 || cfg.Trading.ReservePercent > 100 {
		return fmt.Errorf("reserve_percent %v outside [0,100]", cfg.Trading.ReservePercent)
	}
	return nil
}
