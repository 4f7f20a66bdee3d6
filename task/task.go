package task

import (
	"context"
	"time"
)

// Name identifies one analytical task.
type Name string

// The four tasks of the pricing pipeline.
const (
	Forecasting    Name = "forecasting"
	Analysis       Name = "analysis"
	Recommendation Name = "recommendation"
	WhatIf         Name = "whatif"
)

// Names returns every task name in execution order.
func Names() []Name {
	return []Name{Forecasting, Analysis, Recommendation, WhatIf}
}

// String returns the task name.
func (n Name) String() string { return string(n) }

// Func is the uniform call contract every analytical capability is
// normalized to.
type Func func(ctx context.Context, in Input) (Payload, error)

// Input is the typed argument passed to a task. The concrete types are
// [ForecastInput], [RuleInput], [RecommendationInput] and [WhatIfInput].
type Input interface {
	// Task returns the name of the task the input is meant for.
	Task() Name
}

// ForecastInput is the input of the forecasting task.
type ForecastInput struct {
	// HorizonDays lists the forecast horizons to compute.
	HorizonDays []int `json:"horizon_days"`
	// AsOf is the reference time of the forecast.
	AsOf time.Time `json:"as_of"`
}

// Task implements Input.
func (ForecastInput) Task() Name { return Forecasting }

// RuleInput is the input of the rule generation (analysis) task.
type RuleInput struct {
	// AsOf is the reference time of the analysis window.
	AsOf time.Time `json:"as_of"`
	// MaxRules caps the number of rules returned. Zero means no cap.
	MaxRules int `json:"max_rules,omitempty"`
}

// Task implements Input.
func (RuleInput) Task() Name { return Analysis }

// RecommendationInput is the input of the recommendation task. Either
// phase-one output may be nil when the corresponding task failed.
type RecommendationInput struct {
	Forecast *ForecastResult `json:"forecast,omitempty"`
	Rules    *RuleSetResult  `json:"rules,omitempty"`
}

// Task implements Input.
func (RecommendationInput) Task() Name { return Recommendation }

// Degraded reports whether the input is missing a phase-one output.
func (in RecommendationInput) Degraded() bool {
	return in.Forecast == nil || in.Rules == nil
}

// WhatIfInput is the input of the what-if simulation task.
type WhatIfInput struct {
	Recommendation *RecommendationResult `json:"recommendation"`
}

// Task implements Input.
func (WhatIfInput) Task() Name { return WhatIf }
