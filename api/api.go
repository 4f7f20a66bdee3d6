// Package api exposes the pricing pipeline over HTTP with Forge handlers.
package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/shivramiyer22/rideshare-sub001/gateway"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
)

// API wires all Forge-style HTTP handlers together for the pricing pipeline.
type API struct {
	gw     *gateway.Gateway
	router forge.Router
}

// New creates an API over a trigger gateway.
func New(gw *gateway.Gateway, router forge.Router) *API {
	return &API{gw: gw, router: router}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	a.RegisterRoutes(a.router)
	return a.router.Handler()
}

// RegisterRoutes registers all pipeline API routes into the given Forge
// router with full OpenAPI metadata.
func (a *API) RegisterRoutes(router forge.Router) {
	g := router.Group("/pipeline", forge.WithGroupTags("pipeline"))

	_ = g.POST("/trigger", a.trigger,
		forge.WithSummary("Trigger pipeline run"),
		forge.WithDescription("Starts a pricing pipeline run, or reports the run already in progress. "+
			"Returns 202 when accepted, 200 when already running, 409 when already running and force is set, "+
			"and 429 when a change-stream trigger is throttled."),
		forge.WithOperationID("triggerPipeline"),
		forge.WithRequestSchema(gateway.Request{}),
		forge.WithResponseSchema(http.StatusAccepted, "Run accepted", gateway.Response{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/status", a.status,
		forge.WithSummary("Pipeline status"),
		forge.WithDescription("Returns whether a run is in progress and the latest stored run."),
		forge.WithOperationID("pipelineStatus"),
		forge.WithResponseSchema(http.StatusOK, "Pipeline status", gateway.StatusResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/history", a.history,
		forge.WithSummary("Run history"),
		forge.WithDescription("Returns run summaries, most recent first. The limit query parameter defaults to 10 and is capped at 100."),
		forge.WithOperationID("pipelineHistory"),
		forge.WithRequestSchema(HistoryRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Run summaries", []pipeline.Summary{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/runs/:runId", a.getRun,
		forge.WithSummary("Get run"),
		forge.WithDescription("Returns the full stored run document, including per-phase task outcomes."),
		forge.WithOperationID("getPipelineRun"),
		forge.WithResponseSchema(http.StatusOK, "Run details", &pipeline.Run{}),
		forge.WithErrorResponses(),
	)
}
