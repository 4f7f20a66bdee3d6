package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/gateway"
	"github.com/shivramiyer22/rideshare-sub001/id"
	"github.com/shivramiyer22/rideshare-sub001/pipeline"
)

// HistoryRequest selects how many run summaries to return.
type HistoryRequest struct {
	Limit int `json:"limit,omitempty" query:"limit" description:"Maximum summaries to return"`
}

// GetRunRequest names a stored run.
type GetRunRequest struct {
	RunID string `path:"runId" description:"Run ID"`
}

func (a *API) trigger(ctx forge.Context, req *gateway.Request) (*gateway.Response, error) {
	resp, err := a.gw.Trigger(ctx.Context(), *req)
	if err != nil && resp == nil {
		return nil, fmt.Errorf("trigger pipeline: %w", err)
	}

	code := http.StatusAccepted
	switch {
	case errors.Is(err, pricing.ErrAlreadyRunning):
		code = http.StatusConflict
	case resp.Status == gateway.StatusThrottled:
		code = http.StatusTooManyRequests
	case resp.Status == gateway.StatusAlreadyRunning:
		code = http.StatusOK
	}
	return nil, ctx.JSON(code, resp)
}

func (a *API) status(ctx forge.Context) error {
	st, err := a.gw.Status(ctx.Context())
	if err != nil {
		return fmt.Errorf("pipeline status: %w", err)
	}
	return ctx.JSON(http.StatusOK, st)
}

func (a *API) history(ctx forge.Context, req *HistoryRequest) ([]pipeline.Summary, error) {
	if req.Limit < 0 {
		return nil, forge.BadRequest(fmt.Sprintf("invalid limit %d", req.Limit))
	}

	runs, err := a.gw.History(ctx.Context(), req.Limit)
	if err != nil {
		return nil, fmt.Errorf("run history: %w", err)
	}
	return nil, ctx.JSON(http.StatusOK, runs)
}

func (a *API) getRun(ctx forge.Context, _ *GetRunRequest) (*pipeline.Run, error) {
	runID, err := id.ParseRunID(ctx.Param("runId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid run ID: %v", err))
	}

	r, err := a.gw.GetRun(ctx.Context(), runID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return nil, ctx.JSON(http.StatusOK, r)
}

// mapStoreError converts pricing sentinel errors to forge HTTP errors.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pricing.ErrRunNotFound) {
		return forge.NotFound(err.Error())
	}
	return err
}
