// Package configs loads the agent process's YAML configuration, the way
// the teacher's configs package loads and converts its own Config.
package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/batchswap/coordinator/pkg/coordinator"
	"github.com/batchswap/coordinator/pkg/executor"
)

// LoadDotEnvIfPresent overlays process environment variables from a
// .env-style file at path, the way the teacher's tests load
// env/.env.test.local before reading secrets out of the environment. A
// missing file is not an error; any other read failure is.
func LoadDotEnvIfPresent(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// PoolConfig describes one pool an agent participates in.
type PoolConfig struct {
	Name        string   `yaml:"name"`
	Currency0   string   `yaml:"currency0"`
	Currency1   string   `yaml:"currency1"`
	FeeBps      uint32   `yaml:"fee_bps"`
	TickSpacing int32    `yaml:"tick_spacing"`
	HookAddress string   `yaml:"hook_address"`
	Strategies  []string `yaml:"strategies"`
}

// ConflictResolutionConfig picks the Batch Coordinator's aggregation rule
// for divergent agent slippage preferences.
type ConflictResolutionConfig struct {
	Strategy string `yaml:"strategy"` // "median" | "mean" | "min" | "max"
}

// CoordinatorConfig tunes arming/countdown behavior.
type CoordinatorConfig struct {
	MinTotalCommitments uint32                   `yaml:"min_total_commitments"`
	QuorumAgents        int                      `yaml:"quorum"`
	CountdownSeconds    int                      `yaml:"countdown_ms"`
	ConflictResolution  ConflictResolutionConfig `yaml:"conflict_resolution"`
}

// ExecutorConfig tunes polling and retry behavior.
type ExecutorConfig struct {
	PollIntervalSeconds  int     `yaml:"poll_interval_seconds"`
	PollRatePerSecond    float64 `yaml:"poll_rate_per_second"`
	MaxRetries           int     `yaml:"max_retries"`
	BaseBackoffMillis    int     `yaml:"base_backoff_millis"`
	PostRevealDelayMillis int    `yaml:"post_reveal_delay_millis"`
	ZKMode               bool    `yaml:"zk_mode"`
}

// CommitmentSettings mirrors spec.md §6's commitment_settings block.
type CommitmentSettings struct {
	DefaultDeadlineOffsetS int `yaml:"default_deadline_offset_s"`
	MinCommitments         int `yaml:"min_commitments"`
	BatchIntervalS         int `yaml:"batch_interval_s"`
}

// MonitoringSettings mirrors spec.md §6's monitoring_settings block.
type MonitoringSettings struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`
	MaxRetries     int `yaml:"max_retries"`
	RetryDelayMs   int `yaml:"retry_delay_ms"`
}

// TradingSettings mirrors spec.md §6's trading_settings block: the bounds
// and default slippage every strategy's decisions are clamped to.
type TradingSettings struct {
	MaxAmountIn        string `yaml:"max_amount_in"` // decimal big-integer string
	MinAmountIn        string `yaml:"min_amount_in"`
	DefaultSlippageBps uint32 `yaml:"default_slippage_bps"`
}

// StrategySettings names the strategy an agent runs and its strategy-
// specific parameters (see spec.md §4.5 for the per-strategy shape).
type StrategySettings struct {
	Name   string                 `yaml:"name"`
	Config map[string]interface{} `yaml:"config"`
}

// DatabaseConfig holds MySQL connection settings for the execution
// history recorder.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// MetricsConfig tunes the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Config is the full process configuration loaded from YAML at startup,
// mirroring spec.md §6's agent configuration surface.
type Config struct {
	AgentID             string             `yaml:"agent_id"`
	RpcUrl              string             `yaml:"rpc_url"`
	ChainID             int64              `yaml:"chain_id"`
	HookAddress         string             `yaml:"hook_address"`
	PoolManagerAddress  string             `yaml:"pool_manager_address"`
	HookAbiPath         string             `yaml:"hook_abi_path"`
	EncryptedPrivateKey string             `yaml:"encrypted_private_key"`
	Pools               []PoolConfig       `yaml:"pools"`
	CommitmentSettings  CommitmentSettings `yaml:"commitment_settings"`
	MonitoringSettings  MonitoringSettings `yaml:"monitoring_settings"`
	TradingSettings     TradingSettings    `yaml:"trading_settings"`
	Strategy            StrategySettings   `yaml:"strategy"`
	Coordinator         CoordinatorConfig  `yaml:"coordinator"`
	Executor            ExecutorConfig     `yaml:"executor"`
	Database            DatabaseConfig     `yaml:"database"`
	Metrics             MetricsConfig      `yaml:"metrics"`
}

// LoadConfig reads and parses the YAML config at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// CountdownDuration converts CountdownSeconds to a time.Duration,
// defaulting to 10s when unset.
func (c CoordinatorConfig) CountdownDuration() time.Duration {
	if c.CountdownSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.CountdownSeconds) * time.Second
}

// ToCoordinatorConfig converts the YAML coordinator block into
// pkg/coordinator.Config, defaulting an unset or unrecognized
// conflict_resolution.strategy to median.
func (c CoordinatorConfig) ToCoordinatorConfig() coordinator.Config {
	strategy := coordinator.ConflictStrategy(c.ConflictResolution.Strategy)
	switch strategy {
	case coordinator.ConflictMedian, coordinator.ConflictMean, coordinator.ConflictMin, coordinator.ConflictMax:
	default:
		strategy = coordinator.ConflictMedian
	}
	return coordinator.Config{
		MinTotalCommitments: c.MinTotalCommitments,
		QuorumAgents:        c.QuorumAgents,
		CountdownDuration:   c.CountdownDuration(),
		ConflictResolution:  strategy,
	}
}

// PollInterval converts PollIntervalSeconds to a time.Duration,
// defaulting to 2s when unset.
func (e ExecutorConfig) PollInterval() time.Duration {
	if e.PollIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(e.PollIntervalSeconds) * time.Second
}

// BaseBackoff converts BaseBackoffMillis to a time.Duration, defaulting
// to 500ms when unset.
func (e ExecutorConfig) BaseBackoff() time.Duration {
	if e.BaseBackoffMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(e.BaseBackoffMillis) * time.Millisecond
}

// PostRevealDelay converts PostRevealDelayMillis to a time.Duration.
func (e ExecutorConfig) PostRevealDelay() time.Duration {
	return time.Duration(e.PostRevealDelayMillis) * time.Millisecond
}

// ToExecutorConfig converts the YAML executor block into
// pkg/executor.Config.
func (e ExecutorConfig) ToExecutorConfig() executor.Config {
	return executor.Config{
		PollInterval:      e.PollInterval(),
		PollRatePerSecond: e.PollRatePerSecond,
		MaxRetries:        e.MaxRetries,
		BaseBackoff:       e.BaseBackoff(),
		PostRevealDelay:   e.PostRevealDelay(),
		ZKMode:            e.ZKMode,
	}
}
