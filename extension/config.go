package extension

import (
	"time"

	pricing "github.com/shivramiyer22/rideshare-sub001"
)

// Config holds configuration for the pricing Forge extension.
type Config struct {
	// BasePath is the URL prefix for the pipeline API routes. Empty mounts
	// them at the router root (/pipeline/...).
	BasePath string `json:"base_path"`

	// DisableRoutes disables the registration of HTTP routes.
	// Useful when embedding the pipeline for scheduled runs only.
	DisableRoutes bool `default:"false" json:"disable_routes"`

	// DisableMigrate disables store migrations on start.
	DisableMigrate bool `default:"false" json:"disable_migrate"`

	// DisableScheduler turns off scheduled runs.
	DisableScheduler bool `default:"false" json:"disable_scheduler"`

	// RequireConfig requires config to be present in YAML files.
	RequireConfig bool `json:"-"`

	// StoreURL selects the result store backend by URL scheme:
	// memory://, mongodb://, redis:// or postgres://.
	StoreURL string `json:"store_url"`

	// GroveDatabase names the grove.DB to resolve from the DI container.
	// Only the mongo driver is supported.
	GroveDatabase string `json:"grove_database"`

	// AgentURL is the base URL of the remote agent services. Tasks not
	// registered programmatically are bound to agents under this URL.
	AgentURL string `json:"agent_url"`

	// AgentCodec is the agent body codec: "json" (default) or "msgpack".
	AgentCodec string `json:"agent_codec"`

	// AgentTimeout bounds each agent HTTP call. Task timeouts still apply.
	AgentTimeout time.Duration `json:"agent_timeout"`

	// WatchChanges enables change-stream triggers. It requires a Mongo
	// result store; the ingestion collections live in the same database.
	WatchChanges bool `json:"watch_changes"`

	// WatchCollections overrides the watched ingestion collections.
	WatchCollections []string `json:"watch_collections"`

	// Pipeline holds the core pipeline configuration.
	Pipeline pricing.Config `json:"pipeline"`
}

// DefaultConfig returns the default extension configuration.
func DefaultConfig() Config {
	return Config{
		StoreURL:     "memory://",
		AgentCodec:   "json",
		AgentTimeout: 5 * time.Minute,
		Pipeline:     pricing.DefaultConfig(),
	}
}

// pipelineWithDefaults fills zero-valued pipeline fields with defaults.
func pipelineWithDefaults(cfg pricing.Config) pricing.Config {
	d := pricing.DefaultConfig()
	if cfg.ForecastTimeout == 0 {
		cfg.ForecastTimeout = d.ForecastTimeout
	}
	if cfg.RuleGenerationTimeout == 0 {
		cfg.RuleGenerationTimeout = d.RuleGenerationTimeout
	}
	if cfg.RecommendationTimeout == 0 {
		cfg.RecommendationTimeout = d.RecommendationTimeout
	}
	if cfg.WhatIfTimeout == 0 {
		cfg.WhatIfTimeout = d.WhatIfTimeout
	}
	if cfg.StoreWriteTimeout == 0 {
		cfg.StoreWriteTimeout = d.StoreWriteTimeout
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = d.HistoryLimit
	}
	if cfg.MaxHistoryLimit == 0 {
		cfg.MaxHistoryLimit = d.MaxHistoryLimit
	}
	if cfg.ChangeTriggerRate == 0 {
		cfg.ChangeTriggerRate = d.ChangeTriggerRate
	}
	if cfg.ChangeTriggerBurst == 0 {
		cfg.ChangeTriggerBurst = d.ChangeTriggerBurst
	}
	if cfg.Schedule == "" {
		cfg.Schedule = d.Schedule
	}
	return cfg
}
