package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the variants of [Payload].
type Kind string

// Payload kinds.
const (
	KindForecast       Kind = "forecast"
	KindRuleSet        Kind = "rule_set"
	KindRecommendation Kind = "recommendation"
	KindWhatIf         Kind = "whatif"
)

// Payload is the output of a task. It is a closed union over
// *ForecastResult, *RuleSetResult, *RecommendationResult and *WhatIfResult.
type Payload interface {
	Kind() Kind
}

// ──────────────────────────────────────────────────
// Variants
// ──────────────────────────────────────────────────

// Forecast is a demand forecast for one pricing model and horizon.
type Forecast struct {
	PricingModel     string  `json:"pricing_model"`
	HorizonDays      int     `json:"horizon_days"`
	PredictedRides   float64 `json:"predicted_rides"`
	PredictedRevenue float64 `json:"predicted_revenue"`
	Confidence       float64 `json:"confidence"`
}

// ForecastResult is the output of the forecasting task.
type ForecastResult struct {
	Forecasts   []Forecast `json:"forecasts"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Kind implements Payload.
func (*ForecastResult) Kind() Kind { return KindForecast }

// PricingRule is one candidate pricing rule mined from historical data.
type PricingRule struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Condition  string  `json:"condition"`
	Multiplier float64 `json:"multiplier"`
	Score      float64 `json:"score"`
}

// RuleSetResult is the output of the rule generation task.
type RuleSetResult struct {
	Rules       []PricingRule `json:"rules"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Kind implements Payload.
func (*RuleSetResult) Kind() Kind { return KindRuleSet }

// RecommendedAction is one recommended combination of pricing rules.
type RecommendedAction struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	RuleIDs             []string `json:"rule_ids"`
	ExpectedRevenueLift float64  `json:"expected_revenue_lift"`
	ExpectedRideImpact  float64  `json:"expected_ride_impact"`
	Rationale           string   `json:"rationale,omitempty"`
}

// RecommendationResult is the output of the recommendation task.
type RecommendationResult struct {
	Recommendations []RecommendedAction `json:"recommendations"`
	// DegradedInputs names the phase-one tasks whose output was missing.
	DegradedInputs []Name    `json:"degraded_inputs,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Kind implements Payload.
func (*RecommendationResult) Kind() Kind { return KindRecommendation }

// Scenario is the simulated impact of one recommendation.
type Scenario struct {
	RecommendationID string             `json:"recommendation_id"`
	RevenueDelta     float64            `json:"revenue_delta"`
	RidesDelta       float64            `json:"rides_delta"`
	KPIs             map[string]float64 `json:"kpis,omitempty"`
}

// WhatIfResult is the output of the what-if simulation task.
type WhatIfResult struct {
	Scenarios   []Scenario `json:"scenarios"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Kind implements Payload.
func (*WhatIfResult) Kind() Kind { return KindWhatIf }

// ──────────────────────────────────────────────────
// Envelope encoding
// ──────────────────────────────────────────────────

var variants = map[Kind]func() Payload{
	KindForecast:       func() Payload { return &ForecastResult{} },
	KindRuleSet:        func() Payload { return &RuleSetResult{} },
	KindRecommendation: func() Payload { return &RecommendationResult{} },
	KindWhatIf:         func() Payload { return &WhatIfResult{} },
}

// envelope is the serialized form of a Payload.
type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalPayload encodes p as a {"kind","data"} envelope. A nil payload
// encodes as JSON null.
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	if _, ok := variants[p.Kind()]; !ok {
		return nil, fmt.Errorf("task: unknown payload kind %q", p.Kind())
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("task: marshal %s payload: %w", p.Kind(), err)
	}
	return json.Marshal(envelope{Kind: p.Kind(), Data: data})
}

// UnmarshalPayload decodes an envelope produced by MarshalPayload into the
// concrete variant named by its kind. JSON null decodes to a nil Payload.
func UnmarshalPayload(data []byte) (Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("task: unmarshal payload envelope: %w", err)
	}
	newFn, ok := variants[env.Kind]
	if !ok {
		return nil, fmt.Errorf("task: unknown payload kind %q", env.Kind)
	}
	p := newFn()
	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, fmt.Errorf("task: unmarshal %s payload: %w", env.Kind, err)
	}
	return p, nil
}

// expectedKind maps a task to the payload kind it must produce.
var expectedKind = map[Name]Kind{
	Forecasting:    KindForecast,
	Analysis:       KindRuleSet,
	Recommendation: KindRecommendation,
	WhatIf:         KindWhatIf,
}

// ExpectedKind returns the payload kind produced by the named task.
func ExpectedKind(name Name) (Kind, bool) {
	k, ok := expectedKind[name]
	return k, ok
}

// NewPayload returns an empty payload of the given kind for decoding.
func NewPayload(kind Kind) (Payload, bool) {
	newFn, ok := variants[kind]
	if !ok {
		return nil, false
	}
	return newFn(), true
}
