// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App       AppConfig       `yaml:"app"`
	Broker    BrokerConfig    `yaml:"broker"`
	System    SystemConfig    `yaml:"system"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Venue          string  `yaml:"venue"`
	Symbol         string  `yaml:"symbol"`
	CommissionRate float64 `yaml:"commission_rate"`
	SlippageRate   float64 `yaml:"slippage_rate"`
}

// BrokerConfig contains every knob the broker core recognizes. All fields
// are optional in YAML; zero values are replaced by compiled-in defaults.
type BrokerConfig struct {
	LotSize int64 `yaml:"lot_size"`

	SelfHealMinIntervalSec    float64 `yaml:"self_heal_min_interval_sec"`
	SnapshotMinIntervalSec    float64 `yaml:"pending_snapshot_min_interval_sec"`
	DeferredReplayIntervalSec float64 `yaml:"deferred_replay_min_interval_sec"`

	RetryWarnSec         float64 `yaml:"buffered_retry_warn_sec"`
	SnapshotRetries      int     `yaml:"snapshot_retry_attempts"`
	SnapshotRetrySleepMs int     `yaml:"snapshot_retry_sleep_ms"`

	UncertainFails  int     `yaml:"uncertain_fails"`
	UncertainTTLSec float64 `yaml:"uncertain_ttl_sec"`

	SellClearEmptySnapshots int     `yaml:"pending_sell_clear_empty_snapshots"`
	SellClearEmptySec       float64 `yaml:"pending_sell_clear_empty_sec"`
	BuyClearEmptySnapshots  int     `yaml:"active_buy_clear_empty_snapshots"`
	BuyClearEmptySec        float64 `yaml:"active_buy_clear_empty_sec"`

	StateMemoryMaxItems int     `yaml:"order_state_memory_max_items"`
	StateMemoryTTLHours float64 `yaml:"order_state_memory_ttl_hours"`

	CashDegradedTTLSec    float64 `yaml:"cash_degraded_ttl_sec"`
	DeferredClearGraceSec float64 `yaml:"deferred_clear_grace_sec"`
	LongGapSec            float64 `yaml:"long_gap_sec"`

	MaxRejectionDowngrades int `yaml:"max_rejection_downgrades"`

	// Maintainer-approved accepted risk: a canceled BUY releases its
	// buffered retry even during uncertain mode to avoid a deadlock where
	// the retry waits on a snapshot that never confirms. Set false to let
	// uncertainty conservatism win instead.
	ReleaseRetryOnCancelInUncertain *bool `yaml:"release_retry_on_cancel_in_uncertain"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// AlertsConfig contains alert channel settings
type AlertsConfig struct {
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
	SlackWebhookURL  string `yaml:"slack_webhook_url"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// DefaultBrokerConfig returns the compiled-in defaults for every broker knob.
func DefaultBrokerConfig() BrokerConfig {
	release := true
	return BrokerConfig{
		LotSize:                         100,
		SelfHealMinIntervalSec:          1.0,
		SnapshotMinIntervalSec:          2.0,
		DeferredReplayIntervalSec:       2.0,
		RetryWarnSec:                    20.0,
		SnapshotRetries:                 2,
		SnapshotRetrySleepMs:            50,
		UncertainFails:                  3,
		UncertainTTLSec:                 60.0,
		SellClearEmptySnapshots:         2,
		SellClearEmptySec:               20.0,
		BuyClearEmptySnapshots:          2,
		BuyClearEmptySec:                20.0,
		StateMemoryMaxItems:             5000,
		StateMemoryTTLHours:             12.0,
		CashDegradedTTLSec:              30.0,
		DeferredClearGraceSec:           5.0,
		LongGapSec:                      600.0,
		MaxRejectionDowngrades:          3,
		ReleaseRetryOnCancelInUncertain: &release,
	}
}

// ApplyDefaults fills every unset field from DefaultBrokerConfig.
func (b *BrokerConfig) ApplyDefaults() {
	d := DefaultBrokerConfig()
	if b.LotSize == 0 {
		b.LotSize = d.LotSize
	}
	if b.SelfHealMinIntervalSec == 0 {
		b.SelfHealMinIntervalSec = d.SelfHealMinIntervalSec
	}
	if b.SnapshotMinIntervalSec == 0 {
		b.SnapshotMinIntervalSec = d.SnapshotMinIntervalSec
	}
	if b.DeferredReplayIntervalSec == 0 {
		b.DeferredReplayIntervalSec = d.DeferredReplayIntervalSec
	}
	if b.RetryWarnSec == 0 {
		b.RetryWarnSec = d.RetryWarnSec
	}
	if b.SnapshotRetries == 0 {
		b.SnapshotRetries = d.SnapshotRetries
	}
	if b.SnapshotRetrySleepMs == 0 {
		b.SnapshotRetrySleepMs = d.SnapshotRetrySleepMs
	}
	if b.UncertainFails == 0 {
		b.UncertainFails = d.UncertainFails
	}
	if b.UncertainTTLSec == 0 {
		b.UncertainTTLSec = d.UncertainTTLSec
	}
	if b.SellClearEmptySnapshots == 0 {
		b.SellClearEmptySnapshots = d.SellClearEmptySnapshots
	}
	if b.SellClearEmptySec == 0 {
		b.SellClearEmptySec = d.SellClearEmptySec
	}
	if b.BuyClearEmptySnapshots == 0 {
		b.BuyClearEmptySnapshots = d.BuyClearEmptySnapshots
	}
	if b.BuyClearEmptySec == 0 {
		b.BuyClearEmptySec = d.BuyClearEmptySec
	}
	if b.StateMemoryMaxItems == 0 {
		b.StateMemoryMaxItems = d.StateMemoryMaxItems
	}
	if b.StateMemoryTTLHours == 0 {
		b.StateMemoryTTLHours = d.StateMemoryTTLHours
	}
	if b.CashDegradedTTLSec == 0 {
		b.CashDegradedTTLSec = d.CashDegradedTTLSec
	}
	if b.DeferredClearGraceSec == 0 {
		b.DeferredClearGraceSec = d.DeferredClearGraceSec
	}
	if b.LongGapSec == 0 {
		b.LongGapSec = d.LongGapSec
	}
	if b.MaxRejectionDowngrades == 0 {
		b.MaxRejectionDowngrades = d.MaxRejectionDowngrades
	}
	if b.ReleaseRetryOnCancelInUncertain == nil {
		b.ReleaseRetryOnCancelInUncertain = d.ReleaseRetryOnCancelInUncertain
	}
}

// Duration helpers so call sites never re-derive units.

func (b *BrokerConfig) SelfHealMinInterval() time.Duration {
	return secToDuration(b.SelfHealMinIntervalSec)
}

func (b *BrokerConfig) SnapshotMinInterval() time.Duration {
	return secToDuration(b.SnapshotMinIntervalSec)
}

func (b *BrokerConfig) DeferredReplayInterval() time.Duration {
	return secToDuration(b.DeferredReplayIntervalSec)
}

func (b *BrokerConfig) RetryWarnTimeout() time.Duration {
	return secToDuration(b.RetryWarnSec)
}

func (b *BrokerConfig) SnapshotRetrySleep() time.Duration {
	return time.Duration(b.SnapshotRetrySleepMs) * time.Millisecond
}

func (b *BrokerConfig) UncertainTTL() time.Duration {
	return secToDuration(b.UncertainTTLSec)
}

func (b *BrokerConfig) SellClearEmptyWindow() time.Duration {
	return secToDuration(b.SellClearEmptySec)
}

func (b *BrokerConfig) BuyClearEmptyWindow() time.Duration {
	return secToDuration(b.BuyClearEmptySec)
}

func (b *BrokerConfig) StateMemoryTTL() time.Duration {
	return time.Duration(b.StateMemoryTTLHours * float64(time.Hour))
}

func (b *BrokerConfig) CashDegradedTTL() time.Duration {
	return secToDuration(b.CashDegradedTTLSec)
}

func (b *BrokerConfig) DeferredClearGrace() time.Duration {
	return secToDuration(b.DeferredClearGraceSec)
}

func (b *BrokerConfig) LongGap() time.Duration {
	return secToDuration(b.LongGapSec)
}

func secToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.Broker.ApplyDefaults()
	if config.System.LogLevel == "" {
		config.System.LogLevel = "INFO"
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAppConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateBrokerConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	if c.App.Symbol == "" {
		return ValidationError{Field: "app.symbol", Message: "symbol is required"}
	}
	if c.App.CommissionRate < 0 || c.App.CommissionRate > 1 {
		return ValidationError{
			Field:   "app.commission_rate",
			Value:   c.App.CommissionRate,
			Message: "must be between 0 and 1",
		}
	}
	if c.App.SlippageRate < 0 || c.App.SlippageRate > 1 {
		return ValidationError{
			Field:   "app.slippage_rate",
			Value:   c.App.SlippageRate,
			Message: "must be between 0 and 1",
		}
	}
	return nil
}

func (c *Config) validateBrokerConfig() error {
	b := &c.Broker
	if b.LotSize < 1 {
		return ValidationError{Field: "broker.lot_size", Value: b.LotSize, Message: "must be >= 1"}
	}
	if b.SelfHealMinIntervalSec < 0 || b.SnapshotMinIntervalSec < 0 || b.DeferredReplayIntervalSec < 0 {
		return ValidationError{Field: "broker.intervals", Message: "intervals must be >= 0"}
	}
	if b.SnapshotRetries < 1 || b.SnapshotRetries > 10 {
		return ValidationError{
			Field:   "broker.snapshot_retry_attempts",
			Value:   b.SnapshotRetries,
			Message: "must be between 1 and 10",
		}
	}
	if b.UncertainFails < 1 {
		return ValidationError{Field: "broker.uncertain_fails", Value: b.UncertainFails, Message: "must be >= 1"}
	}
	if b.SellClearEmptySnapshots < 1 || b.BuyClearEmptySnapshots < 1 {
		return ValidationError{Field: "broker.clear_empty_snapshots", Message: "hysteresis counts must be >= 1"}
	}
	if b.StateMemoryMaxItems < 1 {
		return ValidationError{
			Field:   "broker.order_state_memory_max_items",
			Value:   b.StateMemoryMaxItems,
			Message: "must be >= 1",
		}
	}
	if b.MaxRejectionDowngrades < 0 || b.MaxRejectionDowngrades > 10 {
		return ValidationError{
			Field:   "broker.max_rejection_downgrades",
			Value:   b.MaxRejectionDowngrades,
			Message: "must be between 0 and 10",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// expandEnvVars expands ${VAR} references in the raw YAML content
func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}
