// Package task defines the analytical task contract used by the pricing
// pipeline: task names, typed inputs, typed payloads, task outcomes and the
// [Adapter] that invokes a task under a bounded timeout.
//
// # Tasks
//
// Four tasks exist. Each is registered as a [Func] under its [Name]:
//
//	forecasting     ForecastInput       → *ForecastResult
//	analysis        RuleInput           → *RuleSetResult
//	recommendation  RecommendationInput → *RecommendationResult
//	whatif          WhatIfInput         → *WhatIfResult
//
// Use [RegisterTyped] to register a strongly typed function:
//
//	task.RegisterTyped(registry, task.Forecasting,
//	    func(ctx context.Context, in task.ForecastInput) (*task.ForecastResult, error) {
//	        return forecaster.Predict(ctx, in.HorizonDays)
//	    },
//	)
//
// # Outcomes
//
// [Adapter.Execute] always returns an [Outcome]; it never returns an error
// and never panics. A task that returns in time yields [StatusOK] or
// [StatusError]. A task still running when its timeout elapses yields
// [StatusTimeout]; its context is cancelled and whatever it returns later
// is discarded.
//
// # Payloads
//
// [Payload] is a closed union. Outcomes serialize their output as a
// {"kind": ..., "data": ...} envelope and decode back into the concrete
// variant, so stores and API responses stay deterministic.
package task
