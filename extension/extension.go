// Package extension provides the Forge extension adapter for the pricing
// pipeline.
//
// It implements the forge.Extension interface to integrate the pipeline
// into a Forge application with store discovery, remote agent wiring,
// route registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.pricing" or "pricing" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/shivramiyer22/rideshare-sub001/agent"
	"github.com/shivramiyer22/rideshare-sub001/api"
	"github.com/shivramiyer22/rideshare-sub001/engine"
	"github.com/shivramiyer22/rideshare-sub001/ext"
	"github.com/shivramiyer22/rideshare-sub001/gateway"
	mw "github.com/shivramiyer22/rideshare-sub001/middleware"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/store"
	mongostore "github.com/shivramiyer22/rideshare-sub001/store/mongo"
	"github.com/shivramiyer22/rideshare-sub001/task"
	"github.com/shivramiyer22/rideshare-sub001/watcher"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "pricing"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Pricing intelligence pipeline orchestrator for forecasting, rule generation and recommendations"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the pricing pipeline as a Forge extension. It implements
// the forge.Extension interface so the pipeline can be mounted into any
// Forge app.
type Extension struct {
	*forge.BaseExtension

	config     Config
	eng        *engine.Engine
	apiHandler *api.API
	logger     *slog.Logger
	store      pipeline.Store
	ownsStore  bool
	tasks      *task.Registry
	source     watcher.ChangeSource
	exts       []ext.Extension
	mws        []mw.Middleware
	useGrove   bool
}

// New creates a pricing Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying pricing engine.
// This is nil until Register is called.
func (e *Extension) Engine() *engine.Engine { return e.eng }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// Register implements [forge.Extension]. It resolves the store, binds the
// tasks, builds the engine, and optionally registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.init(fapp); err != nil {
		return err
	}

	// Register the engine and gateway in the DI container so other
	// extensions can trigger runs.
	if err := vessel.Provide(fapp.Container(), func() (*engine.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("pricing: register engine in container: %w", err)
	}
	if err := vessel.Provide(fapp.Container(), func() (*gateway.Gateway, error) {
		return e.eng.Gateway(), nil
	}); err != nil {
		return fmt.Errorf("pricing: register gateway in container: %w", err)
	}

	return nil
}

// init resolves the store and tasks and builds the engine.
func (e *Extension) init(fapp forge.App) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := e.resolveStore(fapp, logger); err != nil {
		return err
	}

	if err := e.bindAgents(logger); err != nil {
		return err
	}

	cfg := e.config.Pipeline
	if e.config.DisableScheduler {
		cfg.Schedule = ""
	}

	engOpts := make([]engine.Option, 0, len(e.exts)+len(e.mws)+4)
	engOpts = append(engOpts,
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
		engine.WithMetricFactory(fapp.Metrics()),
	)
	for _, x := range e.exts {
		engOpts = append(engOpts, engine.WithExtension(x))
	}
	for _, m := range e.mws {
		engOpts = append(engOpts, engine.WithMiddleware(m))
	}
	if src := e.changeSource(); src != nil {
		engOpts = append(engOpts, engine.WithChangeSource(src))
	}

	var err error
	e.eng, err = engine.Build(e.tasks, e.store, engOpts...)
	if err != nil {
		return fmt.Errorf("pricing: build engine: %w", err)
	}

	// Create the API handler.
	e.apiHandler = api.New(e.eng.Gateway(), fapp.Router())

	// Register HTTP routes unless disabled.
	if !e.config.DisableRoutes {
		e.RegisterRoutes(fapp.Router())
	}

	return nil
}

// resolveStore picks the result store: an explicit store, then a grove
// database from the container, then StoreURL.
func (e *Extension) resolveStore(fapp forge.App, logger *slog.Logger) error {
	if e.store != nil {
		return nil
	}

	if e.useGrove {
		groveDB, err := e.resolveGroveDB(fapp)
		if err != nil {
			return fmt.Errorf("pricing: %w", err)
		}
		s, err := e.buildStoreFromGroveDB(groveDB, logger)
		if err != nil {
			return err
		}
		e.store = s
		return nil
	}

	if e.config.StoreURL == "" {
		return errors.New("pricing: no store configured")
	}
	s, err := store.Open(context.Background(), e.config.StoreURL, logger)
	if err != nil {
		return fmt.Errorf("pricing: open store: %w", err)
	}
	e.store = s
	e.ownsStore = true
	return nil
}

// bindAgents binds every pipeline task missing from the registry to the
// remote agents under AgentURL.
func (e *Extension) bindAgents(logger *slog.Logger) error {
	if e.tasks == nil {
		e.tasks = task.NewRegistry()
	}
	if e.config.AgentURL == "" {
		return nil
	}

	client, err := agent.NewClient(e.config.AgentURL,
		agent.WithCodec(agent.GetCodec(e.config.AgentCodec)),
		agent.WithHTTPClient(&http.Client{Timeout: e.config.AgentTimeout}),
		agent.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("pricing: %w", err)
	}

	var missing []task.Name
	for _, name := range task.Names() {
		if _, ok := e.tasks.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		client.Register(e.tasks, missing...)
		logger.Info("pricing: tasks bound to remote agents",
			slog.String("agent_url", e.config.AgentURL),
			slog.Int("tasks", len(missing)),
		)
	}
	return nil
}

// changeSource returns the programmatic change source, or a Mongo change
// stream over the store's database when WatchChanges is set.
func (e *Extension) changeSource() watcher.ChangeSource {
	if e.source != nil {
		return e.source
	}
	if !e.config.WatchChanges {
		return nil
	}
	db, ok := store.MongoDatabase(e.store)
	if !ok {
		e.Logger().Warn("pricing: watch_changes requires a mongo store; change triggers disabled")
		return nil
	}
	return watcher.NewMongoSource(db, e.config.WatchCollections...)
}

// Start runs migrations if enabled and starts the trigger sources.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("pricing: extension not initialized")
	}

	// Run migrations unless disabled.
	if !e.config.DisableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("pricing: migration failed: %w", err)
		}
	}

	if err := e.eng.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop gracefully shuts down the pricing engine and closes a store the
// extension opened itself.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		e.MarkStopped()
		return nil
	}
	err := e.eng.Stop(ctx)
	if e.ownsStore {
		if closeErr := e.store.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	e.MarkStopped()
	return err
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("pricing: extension not initialized")
	}
	return e.store.Ping(ctx)
}

// Handler returns the HTTP handler for all API routes.
// Convenience for standalone use outside Forge.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler()
}

// RegisterRoutes registers the pipeline API routes into a Forge router,
// under BasePath when set.
func (e *Extension) RegisterRoutes(router forge.Router) {
	if e.apiHandler == nil {
		return
	}
	if e.config.BasePath != "" {
		router = router.Group(e.config.BasePath)
	}
	e.apiHandler.RegisterRoutes(router)
}

// ── Config loading ──────────────────────────────────

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("pricing: configuration is required but not found in config files; " +
				"ensure 'extensions.pricing' or 'pricing' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	// Enable grove resolution if YAML config specifies grove settings.
	if e.config.GroveDatabase != "" {
		e.useGrove = true
	}

	e.Logger().Debug("pricing: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_scheduler", e.config.DisableScheduler),
		forge.F("base_path", e.config.BasePath),
		forge.F("grove_database", e.config.GroveDatabase),
		forge.F("agent_url", e.config.AgentURL),
		forge.F("schedule", e.config.Pipeline.Schedule),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.pricing" first (namespaced pattern).
	if cm.IsSet("extensions.pricing") {
		if err := cm.Bind("extensions.pricing", &cfg); err == nil {
			e.Logger().Debug("pricing: loaded config from file",
				forge.F("key", "extensions.pricing"),
			)
			return cfg, true
		}
		e.Logger().Warn("pricing: failed to bind extensions.pricing config",
			forge.F("error", "bind failed"),
		)
	}

	// Try short "pricing" key.
	if cm.IsSet("pricing") {
		if err := cm.Bind("pricing", &cfg); err == nil {
			e.Logger().Debug("pricing: loaded config from file",
				forge.F("key", "pricing"),
			)
			return cfg, true
		}
		e.Logger().Warn("pricing: failed to bind pricing config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.StoreURL == "" {
		cfg.StoreURL = defaults.StoreURL
	}
	if cfg.AgentCodec == "" {
		cfg.AgentCodec = defaults.AgentCodec
	}
	if cfg.AgentTimeout == 0 {
		cfg.AgentTimeout = defaults.AgentTimeout
	}
	cfg.Pipeline = pipelineWithDefaults(cfg.Pipeline)
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableScheduler {
		yamlConfig.DisableScheduler = true
	}
	if programmaticConfig.WatchChanges {
		yamlConfig.WatchChanges = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.StoreURL == "" && programmaticConfig.StoreURL != "" {
		yamlConfig.StoreURL = programmaticConfig.StoreURL
	}
	if yamlConfig.GroveDatabase == "" && programmaticConfig.GroveDatabase != "" {
		yamlConfig.GroveDatabase = programmaticConfig.GroveDatabase
	}
	if yamlConfig.AgentURL == "" && programmaticConfig.AgentURL != "" {
		yamlConfig.AgentURL = programmaticConfig.AgentURL
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}

// resolveGroveDB resolves a *grove.DB from the DI container.
// If GroveDatabase is set, it looks up the named DB; otherwise it uses the default.
func (e *Extension) resolveGroveDB(fapp forge.App) (*grove.DB, error) {
	if e.config.GroveDatabase != "" {
		db, err := vessel.InjectNamed[*grove.DB](fapp.Container(), e.config.GroveDatabase)
		if err != nil {
			return nil, fmt.Errorf("grove database %q not found in container: %w", e.config.GroveDatabase, err)
		}
		return db, nil
	}
	db, err := vessel.Inject[*grove.DB](fapp.Container())
	if err != nil {
		return nil, fmt.Errorf("default grove database not found in container: %w", err)
	}
	return db, nil
}

// buildStoreFromGroveDB constructs the store backend for the grove driver.
// The relational backend uses pgx directly and is selected by StoreURL.
func (e *Extension) buildStoreFromGroveDB(db *grove.DB, logger *slog.Logger) (pipeline.Store, error) {
	driverName := db.Driver().Name()
	switch driverName {
	case "mongo":
		return mongostore.New(db, mongostore.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("pricing: unsupported grove driver %q", driverName)
	}
}
