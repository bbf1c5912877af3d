// Package config provides the typed, read-only-after-initialization
// configuration surface for the trading decision core. Loading itself
// (flags, env, files) stays a thin collaborator concern in cmd/; the core
// only ever consumes an already-populated *Config.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AggregatorConfig holds the aggregator's configured constants.
type AggregatorConfig struct {
	Tier2BaseFactor     float64 `mapstructure:"tier2_base_factor" json:"tier2BaseFactor"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" json:"confidenceThreshold"`
}

// WeightClamps holds the three weight clamp ranges.
type WeightClamps struct {
	BaseMin     float64 `mapstructure:"base_min" json:"baseMin"`
	BaseMax     float64 `mapstructure:"base_max" json:"baseMax"`
	HealthMin   float64 `mapstructure:"health_min" json:"healthMin"`
	HealthMax   float64 `mapstructure:"health_max" json:"healthMax"`
	LearningMin float64 `mapstructure:"learning_min" json:"learningMin"`
	LearningMax float64 `mapstructure:"learning_max" json:"learningMax"`
}

// RiskThresholds holds the operator-owned, non-learnable risk floors. No
// component may widen these at runtime.
type RiskThresholds struct {
	MaxDrawdown              float64       `mapstructure:"max_drawdown" json:"maxDrawdown"`
	DailyMaxLoss             float64       `mapstructure:"daily_max_loss" json:"dailyMaxLoss"`
	WeeklyMaxLoss            float64       `mapstructure:"weekly_max_loss" json:"weeklyMaxLoss"`
	ConsecutiveLossThreshold int           `mapstructure:"consecutive_loss_threshold" json:"consecutiveLossThreshold"`
	MaxSinglePosition        float64       `mapstructure:"max_single_position" json:"maxSinglePosition"`
	MaxTotalPosition         float64       `mapstructure:"max_total_position" json:"maxTotalPosition"`
	MaxLeverage              float64       `mapstructure:"max_leverage" json:"maxLeverage"`
	NormalCooldown           time.Duration `mapstructure:"normal_cooldown" json:"normalCooldown"`
	StopLossCooldown         time.Duration `mapstructure:"stop_loss_cooldown" json:"stopLossCooldown"`
	ConsecutiveLossCooldown  time.Duration `mapstructure:"consecutive_loss_cooldown" json:"consecutiveLossCooldown"`
}

// Config is the fully-resolved, process-level configuration for the
// trading decision core.
type Config struct {
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Weights    WeightClamps     `mapstructure:"weights"`
	Risk       RiskThresholds   `mapstructure:"risk"`

	FanoutDeadline time.Duration `mapstructure:"fanout_deadline" json:"fanoutDeadline"`
	ClaimBudget    time.Duration `mapstructure:"claim_budget" json:"claimBudget"`

	LogLevel string `mapstructure:"log_level" json:"logLevel"`
	HTTPAddr string `mapstructure:"http_addr" json:"httpAddr"`
}

// Default returns the decision core's out-of-the-box configuration.
func Default() *Config {
	return &Config{
		Aggregator: AggregatorConfig{
			Tier2BaseFactor:     0.1,
			ConfidenceThreshold: 0.6,
		},
		Weights: WeightClamps{
			BaseMin: 0.5, BaseMax: 2.0,
			HealthMin: 0.5, HealthMax: 1.2,
			LearningMin: 0.8, LearningMax: 1.2,
		},
		Risk: RiskThresholds{
			MaxDrawdown:              0.20,
			DailyMaxLoss:             0.03,
			WeeklyMaxLoss:            0.10,
			ConsecutiveLossThreshold: 3,
			MaxSinglePosition:        0.05,
			MaxTotalPosition:         0.30,
			MaxLeverage:              5,
			NormalCooldown:           600 * time.Second,
			StopLossCooldown:         1200 * time.Second,
			ConsecutiveLossCooldown:  3600 * time.Second,
		},
		FanoutDeadline: 5 * time.Second,
		ClaimBudget:    500 * time.Millisecond,
		LogLevel:       "info",
		HTTPAddr:       ":8090",
	}
}

// Loader wraps viper to produce a *Config from file/env (no command-line
// flags are bound), with an
// optional live-reload hook backed by fsnotify. The core itself never holds
// a *Loader - only cmd/ does; consumers receive an already-built *Config or,
// for live updates, a func() *Config snapshot accessor.
type Loader struct {
	v *viper.Viper
}

// NewLoader constructs a Loader seeded with Default()'s values, a config
// file name/path, and the "TRADINGCORE" environment prefix.
func NewLoader(configName, configPath string) *Loader {
	v := viper.New()
	v.SetConfigName(configName)
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("TRADINGCORE")
	v.AutomaticEnv()
	seedDefaults(v, Default())
	return &Loader{v: v}
}

func seedDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("aggregator.tier2_base_factor", c.Aggregator.Tier2BaseFactor)
	v.SetDefault("aggregator.confidence_threshold", c.Aggregator.ConfidenceThreshold)
	v.SetDefault("weights.base_min", c.Weights.BaseMin)
	v.SetDefault("weights.base_max", c.Weights.BaseMax)
	v.SetDefault("weights.health_min", c.Weights.HealthMin)
	v.SetDefault("weights.health_max", c.Weights.HealthMax)
	v.SetDefault("weights.learning_min", c.Weights.LearningMin)
	v.SetDefault("weights.learning_max", c.Weights.LearningMax)
	v.SetDefault("risk.max_drawdown", c.Risk.MaxDrawdown)
	v.SetDefault("risk.daily_max_loss", c.Risk.DailyMaxLoss)
	v.SetDefault("risk.weekly_max_loss", c.Risk.WeeklyMaxLoss)
	v.SetDefault("risk.consecutive_loss_threshold", c.Risk.ConsecutiveLossThreshold)
	v.SetDefault("risk.max_single_position", c.Risk.MaxSinglePosition)
	v.SetDefault("risk.max_total_position", c.Risk.MaxTotalPosition)
	v.SetDefault("risk.max_leverage", c.Risk.MaxLeverage)
	v.SetDefault("risk.normal_cooldown", c.Risk.NormalCooldown)
	v.SetDefault("risk.stop_loss_cooldown", c.Risk.StopLossCooldown)
	v.SetDefault("risk.consecutive_loss_cooldown", c.Risk.ConsecutiveLossCooldown)
	v.SetDefault("fanout_deadline", c.FanoutDeadline)
	v.SetDefault("claim_budget", c.ClaimBudget)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("http_addr", c.HTTPAddr)
}

// Load reads the config file (if present; a missing file is not an error,
// since defaults already cover every field) and unmarshals into a Config.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &c, nil
}

// WatchConfig re-invokes onChange with a freshly unmarshaled Config every
// time the backing file changes, so a risk-threshold edit can be picked up
// without a restart. Each call hands onChange a new *Config; a Config
// already handed out is never mutated, matching "read-only after
// initialization" from the core's perspective.
func (l *Loader) WatchConfig(onChange func(*Config)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		var c Config
		if err := l.v.Unmarshal(&c); err != nil {
			return
		}
		onChange(&c)
	})
	l.v.WatchConfig()
}
