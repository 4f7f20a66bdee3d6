package extension

import (
	"log/slog"

	"github.com/shivramiyer22/rideshare-sub001/ext"
	mw "github.com/shivramiyer22/rideshare-sub001/middleware"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/task"
	"github.com/shivramiyer22/rideshare-sub001/watcher"
)

// ExtOption configures the pricing Forge extension.
type ExtOption func(*Extension)

// WithStore sets the result store directly. It takes precedence over
// GroveDatabase and StoreURL.
func WithStore(s pipeline.Store) ExtOption {
	return func(e *Extension) {
		e.store = s
	}
}

// WithStoreURL selects the result store backend by URL.
func WithStoreURL(rawURL string) ExtOption {
	return func(e *Extension) {
		e.config.StoreURL = rawURL
	}
}

// WithTasks sets the task registry. Tasks missing from it are bound to
// remote agents when AgentURL is configured.
func WithTasks(reg *task.Registry) ExtOption {
	return func(e *Extension) {
		e.tasks = reg
	}
}

// WithAgentURL sets the base URL of the remote agent services.
func WithAgentURL(baseURL string) ExtOption {
	return func(e *Extension) {
		e.config.AgentURL = baseURL
	}
}

// WithExtension registers a pricing extension (lifecycle hooks).
func WithExtension(x ext.Extension) ExtOption {
	return func(e *Extension) {
		e.exts = append(e.exts, x)
	}
}

// WithMiddleware adds task middleware to the pricing engine.
func WithMiddleware(m mw.Middleware) ExtOption {
	return func(e *Extension) {
		e.mws = append(e.mws, m)
	}
}

// WithChangeSource sets the change source for change-stream triggers,
// overriding the Mongo source built from WatchChanges.
func WithChangeSource(src watcher.ChangeSource) ExtOption {
	return func(e *Extension) {
		e.source = src
	}
}

// WithBasePath sets the URL prefix for the pipeline routes.
func WithBasePath(path string) ExtOption {
	return func(e *Extension) {
		e.config.BasePath = path
	}
}

// WithConfig sets the extension configuration directly.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate disables store migrations on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}

// WithDisableScheduler disables scheduled runs.
func WithDisableScheduler() ExtOption {
	return func(e *Extension) {
		e.config.DisableScheduler = true
	}
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) ExtOption {
	return func(e *Extension) {
		e.config.RequireConfig = require
	}
}

// WithLogger sets the structured logger for the pricing engine.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI
// container. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) ExtOption {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
