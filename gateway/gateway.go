// Package gateway is the caller-facing surface of the pricing pipeline. It
// turns trigger requests into coordinator runs, reports "already running"
// without treating it as a failure, throttles change-stream bursts, and
// answers status and history queries.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
)

// Trigger reasons understood by the gateway. Any other reason is treated
// as a manual trigger.
const (
	ReasonManual       = "manual"
	ReasonChangeStream = "change_stream"
	ReasonScheduled    = "scheduled"
)

// Status is the outcome of a trigger request.
type Status string

const (
	// StatusAccepted means a new run was started.
	StatusAccepted Status = "accepted"
	// StatusAlreadyRunning means a run was in progress; nothing was started.
	StatusAlreadyRunning Status = "already_running"
	// StatusThrottled means a change-stream trigger exceeded the rate limit.
	StatusThrottled Status = "throttled"
)

// Request asks for a pipeline run.
type Request struct {
	// Force changes how an in-progress run is reported: as a conflict
	// error rather than a benign response. It never pre-empts a run.
	Force  bool   `json:"force"`
	Reason string `json:"reason"`
}

// Response reports the result of a trigger request.
type Response struct {
	// TriggerID identifies this request in logs.
	TriggerID id.TriggerID `json:"trigger_id"`
	RunID     id.RunID     `json:"run_id"`
	Status    Status       `json:"status"`
	Message   string       `json:"message"`
}

// StatusResponse is the pipeline state returned by Status.
type StatusResponse struct {
	pipeline.Snapshot

	// LastRun summarizes the most recent stored run, if any.
	LastRun *pipeline.Summary `json:"last_run,omitempty"`
}

// Coordinator is the part of *pipeline.Coordinator the gateway drives.
type Coordinator interface {
	Start(ctx context.Context, source pipeline.TriggerSource, reason string) (id.RunID, error)
	Snapshot() pipeline.Snapshot
}

var _ Coordinator = (*pipeline.Coordinator)(nil)

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithConfig sets the configuration used for history limits and the
// change-stream limiter.
func WithConfig(cfg pricing.Config) Option {
	return func(g *Gateway) { g.config = cfg }
}

// WithLimiter replaces the change-stream limiter. A nil limiter disables
// throttling.
func WithLimiter(l *rate.Limiter) Option {
	return func(g *Gateway) {
		g.limiter = l
		g.limiterSet = true
	}
}

// Gateway accepts triggers and serves status queries.
type Gateway struct {
	coord  Coordinator
	store  pipeline.Store
	config pricing.Config
	logger *slog.Logger

	limiter    *rate.Limiter
	limiterSet bool
}

// New creates a gateway over a coordinator and the result store it writes to.
func New(coord Coordinator, store pipeline.Store, opts ...Option) *Gateway {
	g := &Gateway{
		coord:  coord,
		store:  store,
		config: pricing.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if !g.limiterSet && g.config.ChangeTriggerRate > 0 {
		burst := g.config.ChangeTriggerBurst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(g.config.ChangeTriggerRate), burst)
	}
	return g
}

// SourceFor maps a trigger reason to the run's trigger source.
func SourceFor(reason string) pipeline.TriggerSource {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case ReasonChangeStream:
		return pipeline.SourceChangeStream
	case ReasonScheduled:
		return pipeline.SourceScheduled
	default:
		return pipeline.SourceManual
	}
}

// ──────────────────────────────────────────────────
// Trigger
// ──────────────────────────────────────────────────

// Trigger starts a run unless one is already in progress. It returns
// immediately; the run's outcome is observed through Status and History.
//
// When a run is in progress the response carries its ID with status
// already_running. With Force set the same response is returned together
// with a *pricing.AlreadyRunningError.
func (g *Gateway) Trigger(ctx context.Context, req Request) (*Response, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = ReasonManual
	}
	source := SourceFor(reason)
	trigID := id.NewTriggerID()

	if source == pipeline.SourceChangeStream && g.limiter != nil {
		snap := g.coord.Snapshot()
		if !snap.IsRunning && !g.limiter.Allow() {
			g.logger.Debug("trigger throttled",
				slog.String("trigger_id", trigID.String()),
				slog.String("source", string(source)),
				slog.String("reason", reason),
			)
			return &Response{
				TriggerID: trigID,
				RunID:     snap.LastRunID,
				Status:    StatusThrottled,
				Message:   "change-stream trigger rate exceeded, try again later",
			}, nil
		}
	}

	runID, err := g.coord.Start(ctx, source, reason)
	if err != nil {
		current, ok := pricing.RunningID(err)
		if !ok {
			return nil, fmt.Errorf("start run: %w", err)
		}
		resp := &Response{
			TriggerID: trigID,
			RunID:     current,
			Status:    StatusAlreadyRunning,
			Message:   fmt.Sprintf("pipeline already running (run %s)", current),
		}
		if req.Force {
			return resp, err
		}
		return resp, nil
	}

	g.logger.Info("pipeline triggered",
		slog.String("trigger_id", trigID.String()),
		slog.String("run_id", runID.String()),
		slog.String("source", string(source)),
		slog.String("reason", reason),
	)
	return &Response{
		TriggerID: trigID,
		RunID:     runID,
		Status:    StatusAccepted,
		Message:   "pipeline run started",
	}, nil
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Status returns the in-memory pipeline state enriched with the latest
// stored run. A store failure is logged and does not fail the query.
func (g *Gateway) Status(ctx context.Context) (*StatusResponse, error) {
	resp := &StatusResponse{Snapshot: g.coord.Snapshot()}
	if g.store == nil {
		return resp, nil
	}

	latest, err := g.store.LatestRun(ctx)
	switch {
	case err == nil:
		s := latest.Summarize()
		resp.LastRun = &s
	case errors.Is(err, pricing.ErrRunNotFound):
	default:
		g.logger.Warn("latest run lookup failed", slog.String("error", err.Error()))
	}
	return resp, nil
}

// History returns summaries of up to limit runs, most recent first. The
// limit is clamped to the configured default and maximum.
func (g *Gateway) History(ctx context.Context, limit int) ([]pipeline.Summary, error) {
	if g.store == nil {
		return nil, pricing.ErrNoStore
	}
	runs, err := g.store.ListRuns(ctx, g.config.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]pipeline.Summary, len(runs))
	for i, r := range runs {
		out[i] = r.Summarize()
	}
	return out, nil
}

// GetRun returns the full stored run.
func (g *Gateway) GetRun(ctx context.Context, runID id.RunID) (*pipeline.Run, error) {
	if g.store == nil {
		return nil, pricing.ErrNoStore
	}
	return g.store.GetRun(ctx, runID)
}
