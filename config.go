package pricing

import (
	"fmt"
	"time"
)

// Config holds configuration for the pricing pipeline.
type Config struct {
	// ForecastTimeout bounds the forecasting task.
	ForecastTimeout time.Duration `json:"forecast_timeout"`

	// RuleGenerationTimeout bounds the rule generation (analysis) task.
	RuleGenerationTimeout time.Duration `json:"rule_generation_timeout"`

	// RecommendationTimeout bounds the recommendation task.
	RecommendationTimeout time.Duration `json:"recommendation_timeout"`

	// WhatIfTimeout bounds the what-if simulation task.
	WhatIfTimeout time.Duration `json:"whatif_timeout"`

	// StoreWriteTimeout bounds every result store write so a slow store
	// cannot stall task scheduling.
	StoreWriteTimeout time.Duration `json:"store_write_timeout"`

	// HistoryLimit is the default number of runs returned by history queries.
	HistoryLimit int `json:"history_limit"`

	// MaxHistoryLimit caps the number of runs a history query may request.
	MaxHistoryLimit int `json:"max_history_limit"`

	// ChangeTriggerRate is the sustained number of change-stream triggers
	// accepted per second. Zero disables throttling.
	ChangeTriggerRate float64 `json:"change_trigger_rate"`

	// ChangeTriggerBurst is the burst size of the change-stream limiter.
	ChangeTriggerBurst int `json:"change_trigger_burst"`

	// Schedule is the cron expression for scheduled runs. Empty disables
	// the scheduler.
	Schedule string `json:"schedule"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ForecastTimeout:       60 * time.Second,
		RuleGenerationTimeout: 60 * time.Second,
		RecommendationTimeout: 90 * time.Second,
		WhatIfTimeout:         60 * time.Second,
		StoreWriteTimeout:     5 * time.Second,
		HistoryLimit:          10,
		MaxHistoryLimit:       100,
		ChangeTriggerRate:     1.0 / 60,
		ChangeTriggerBurst:    1,
		Schedule:              "@every 1h",
	}
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"forecast_timeout":        c.ForecastTimeout,
		"rule_generation_timeout": c.RuleGenerationTimeout,
		"recommendation_timeout":  c.RecommendationTimeout,
		"whatif_timeout":          c.WhatIfTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	if c.HistoryLimit <= 0 || c.MaxHistoryLimit < c.HistoryLimit {
		return fmt.Errorf("%w: history limits %d/%d", ErrInvalidConfig, c.HistoryLimit, c.MaxHistoryLimit)
	}
	if c.ChangeTriggerRate < 0 {
		return fmt.Errorf("%w: change_trigger_rate must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ClampLimit normalizes a requested history limit against the configured
// default and maximum.
func (c Config) ClampLimit(limit int) int {
	if limit <= 0 {
		return c.HistoryLimit
	}
	if c.MaxHistoryLimit > 0 && limit > c.MaxHistoryLimit {
		return c.MaxHistoryLimit
	}
	return limit
}
