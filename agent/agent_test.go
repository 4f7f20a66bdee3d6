package agent_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shivramiyer22/rideshare-sub001/agent"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

var asOf = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// agentRegistry builds the registry served by the fake agent.
func agentRegistry(block chan struct{}) *task.Registry {
	reg := task.NewRegistry()
	task.RegisterTyped(reg, task.Forecasting, func(ctx context.Context, in task.ForecastInput) (*task.ForecastResult, error) {
		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		out := &task.ForecastResult{GeneratedAt: in.AsOf}
		for _, h := range in.HorizonDays {
			out.Forecasts = append(out.Forecasts, task.Forecast{
				PricingModel: "STANDARD", HorizonDays: h, PredictedRides: float64(h * 100), Confidence: 0.9,
			})
		}
		return out, nil
	})
	task.RegisterTyped(reg, task.Analysis, func(context.Context, task.RuleInput) (*task.RuleSetResult, error) {
		return nil, errors.New("historical data unavailable")
	})
	task.RegisterTyped(reg, task.Recommendation, func(_ context.Context, in task.RecommendationInput) (*task.RecommendationResult, error) {
		out := &task.RecommendationResult{Recommendations: []task.RecommendedAction{{ID: "r1", Title: "surge"}}}
		if in.Rules == nil {
			out.DegradedInputs = append(out.DegradedInputs, task.Analysis)
		}
		return out, nil
	})
	return reg
}

func setup(t *testing.T, block chan struct{}, opts ...agent.Option) *agent.Client {
	t.Helper()
	srv := httptest.NewServer(agent.NewHandler(agentRegistry(block), agent.WithPrefix("/agents")))
	t.Cleanup(srv.Close)

	c, err := agent.NewClient(srv.URL+"/agents", opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClient_RoundTrip(t *testing.T) {
	for _, codec := range []agent.Codec{agent.JSONCodec{}, agent.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			c := setup(t, nil, agent.WithCodec(codec))

			out, err := c.Call(context.Background(), task.Forecasting, task.ForecastInput{HorizonDays: []int{30, 60}, AsOf: asOf})
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			fr, ok := out.(*task.ForecastResult)
			if !ok {
				t.Fatalf("output type = %T", out)
			}
			if len(fr.Forecasts) != 2 || fr.Forecasts[1].HorizonDays != 60 || fr.Forecasts[1].PredictedRides != 6000 {
				t.Errorf("forecasts = %+v", fr.Forecasts)
			}
			if !fr.GeneratedAt.Equal(asOf) {
				t.Errorf("GeneratedAt = %v, want %v", fr.GeneratedAt, asOf)
			}
		})
	}
}

func TestClient_DegradedInputSurvivesWire(t *testing.T) {
	c := setup(t, nil, agent.WithCodec(agent.MsgpackCodec{}))

	in := task.RecommendationInput{Forecast: &task.ForecastResult{GeneratedAt: asOf}}
	out, err := c.Call(context.Background(), task.Recommendation, in)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	rr := out.(*task.RecommendationResult)
	if len(rr.DegradedInputs) != 1 || rr.DegradedInputs[0] != task.Analysis {
		t.Errorf("DegradedInputs = %v, want [analysis]", rr.DegradedInputs)
	}
}

func TestClient_RemoteError(t *testing.T) {
	c := setup(t, nil)

	_, err := c.Call(context.Background(), task.Analysis, task.RuleInput{AsOf: asOf})
	var re *agent.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *RemoteError", err)
	}
	if re.StatusCode != http.StatusInternalServerError || re.Message != "historical data unavailable" {
		t.Errorf("remote error = %+v", re)
	}
	if !agent.IsRemote(err) {
		t.Error("IsRemote = false")
	}
}

func TestClient_UnregisteredAgent(t *testing.T) {
	c := setup(t, nil)

	_, err := c.Call(context.Background(), task.WhatIf, task.WhatIfInput{})
	var re *agent.RemoteError
	if !errors.As(err, &re) || re.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 RemoteError", err)
	}
}

func TestClient_UnknownTask(t *testing.T) {
	c := setup(t, nil)
	if _, err := c.Call(context.Background(), "pricing-oracle", task.RuleInput{}); err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestClient_ContextCancelAborts(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := setup(t, block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Call(ctx, task.Forecasting, task.ForecastInput{HorizonDays: []int{30}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancel took %v", elapsed)
	}
}

func TestClient_RegisterBindsTasks(t *testing.T) {
	c := setup(t, nil)
	reg := task.NewRegistry()
	c.Register(reg, task.Forecasting)

	fn, ok := reg.Get(task.Forecasting)
	if !ok {
		t.Fatal("forecasting not registered")
	}
	if _, ok := reg.Get(task.Analysis); ok {
		t.Error("analysis registered without being named")
	}
	out, err := fn(context.Background(), task.ForecastInput{HorizonDays: []int{7}, AsOf: asOf})
	if err != nil {
		t.Fatalf("registered func: %v", err)
	}
	if out.Kind() != task.KindForecast {
		t.Errorf("kind = %s", out.Kind())
	}

	all := task.NewRegistry()
	c.Register(all)
	if got := len(all.Names()); got != 4 {
		t.Errorf("registered %d tasks, want 4", got)
	}
}

func TestNewClient_Validation(t *testing.T) {
	for _, raw := range []string{"ftp://agents", "://bad"} {
		if _, err := agent.NewClient(raw); err == nil {
			t.Errorf("NewClient(%q) expected error", raw)
		}
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(agent.NewHandler(agentRegistry(nil)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/forecasting")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestCodecForContentType(t *testing.T) {
	tests := []struct {
		ct   string
		want string
	}{
		{"application/json", agent.CodecNameJSON},
		{"application/json; charset=utf-8", agent.CodecNameJSON},
		{"application/msgpack", agent.CodecNameMsgpack},
		{"application/x-msgpack", agent.CodecNameMsgpack},
		{"", agent.CodecNameJSON},
		{"text/plain", agent.CodecNameJSON},
	}
	for _, tt := range tests {
		if got := agent.CodecForContentType(tt.ct).Name(); got != tt.want {
			t.Errorf("CodecForContentType(%q) = %s, want %s", tt.ct, got, tt.want)
		}
	}
	if agent.GetCodec("msgpack").Name() != agent.CodecNameMsgpack || agent.GetCodec("").Name() != agent.CodecNameJSON {
		t.Error("GetCodec mismatch")
	}
}
