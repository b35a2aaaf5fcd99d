package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "hornet-config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	return tmpFile.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
general:
  instance_id: "test-node"
  environment: "development"
  dry_run: true
  log_level: "debug"

chain:
  active: "bsc"

chains:
  bsc:
    rpc_url: "https://bsc-dataseed.example.com"
    ws_url: "wss://bsc-ws.example.com"

trading:
  wallet: "0x00000000000000000000000000000000000000aa"
  max_position_size_percent: 25
  default_slippage: 2.5

ai:
  auto_trade_enabled: true
  auto_trade_threshold: 0.8

bot:
  cycle_interval_seconds: 10
  risk_tolerance: "High"

mempool:
  mev_detection_enabled: true
  min_sandwich_victim_usd: 7500
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-node", cfg.General.InstanceID)
	assert.True(t, cfg.General.DryRun)
	assert.Equal(t, "bsc", cfg.Chain.Active)
	assert.Equal(t, "https://bsc-dataseed.example.com", cfg.Chains["bsc"].RPCURL)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", cfg.Trading.Wallet)
	assert.Equal(t, 25.0, cfg.Trading.MaxPositionSizePercent)
	assert.Equal(t, 2.5, cfg.Trading.DefaultSlippage)
	assert.True(t, cfg.AI.AutoTradeEnabled)
	assert.Equal(t, 0.8, cfg.AI.AutoTradeThreshold)
	assert.Equal(t, 10, cfg.Bot.CycleIntervalSeconds)
	assert.Equal(t, "High", cfg.Bot.RiskTolerance)
	assert.True(t, cfg.Mempool.MEVDetectionEnabled)
	assert.Equal(t, 7500.0, cfg.Mempool.MinSandwichVictimUSD)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
general:
  dry_run: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hornet-1", cfg.General.InstanceID)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, "ethereum", cfg.Chain.Active)
	assert.Equal(t, 10.0, cfg.Trading.MaxPositionSizePercent)
	assert.Equal(t, 10.0, cfg.Trading.ReservePercent)
	assert.Equal(t, 1.0, cfg.Trading.DefaultSlippage)
	assert.Equal(t, 5000.0, cfg.Trading.MinFrontrunTargetUSD)
	assert.Equal(t, int64(50), cfg.Gas.MaxGasBoostPercent)
	assert.Equal(t, 5000.0, cfg.Mempool.MinSandwichVictimUSD)
	assert.Equal(t, 0.75, cfg.AI.AutoTradeThreshold)
	assert.Equal(t, 30, cfg.Bot.CycleIntervalSeconds)
	assert.Equal(t, 5000, cfg.Bot.LockTimeoutMs)
	assert.Equal(t, "Medium", cfg.Bot.RiskTolerance)
	assert.Equal(t, 1000, cfg.Cache.Capacity)
	assert.Equal(t, "hornet", cfg.Redis.KeyPrefix)
	assert.Equal(t, 9090, cfg.Metrics.PrometheusPort)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	os.Setenv("TEST_HORNET_RPC", "https://rpc.example.com")
	defer os.Unsetenv("TEST_HORNET_RPC")

	path := writeConfig(t, `
chains:
  ethereum:
    rpc_url: "${TEST_HORNET_RPC}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.com", cfg.Chains["ethereum"].RPCURL)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown risk tolerance",
			yaml: "bot:\n  risk_tolerance: \"Reckless\"\n",
		},
		{
			name: "threshold above one",
			yaml: "ai:\n  auto_trade_threshold: 1.5\n",
		},
		{
			name: "position cap above hundred",
			yaml: "trading:\n  max_position_size_percent: 150\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
