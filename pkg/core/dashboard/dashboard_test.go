package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/prompt"
)

type MockGenerator struct {
	GenerateFunc func(ctx context.Context, agentType, prompt string, cfg agent.GenerateConfig) (string, error)
}

func (m *MockGenerator) Generate(ctx context.Context, agentType, prompt string, cfg agent.GenerateConfig) (string, error) {
	return m.GenerateFunc(ctx, agentType, prompt, cfg)
}

func newAnalyst(t *testing.T, fn func(string) (string, error)) *Analyst {
	t.Helper()
	reg, err := prompt.Default("")
	if err != nil {
		t.Fatal(err)
	}
	gen := &MockGenerator{GenerateFunc: func(_ context.Context, agentType, p string, cfg agent.GenerateConfig) (string, error) {
		if agentType != agent.Dashboard || cfg.MaxTokens != 2048 {
			t.Errorf("agent=%s cfg=%+v", agentType, cfg)
		}
		return fn(p)
	}}
	return NewAnalyst(gen, reg, nil)
}

func TestData(t *testing.T) {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(Data(), &data); err != nil {
		t.Fatalf("invalid dashboard json: %v", err)
	}
	for _, p := range Panels {
		if _, ok := data[p]; !ok {
			t.Errorf("missing panel %s", p)
		}
	}
	var arb []struct {
		Name   string `json:"name"`
		Landed int    `json:"landed"`
	}
	if err := json.Unmarshal(data[RegionalArbitrage], &arb); err != nil || len(arb) != 4 || arb[1].Landed != 23 {
		t.Errorf("regional_arbitrage = %+v, %v", arb, err)
	}

	d := Data()
	d[0] = 'x'
	if Data()[0] != '{' {
		t.Error("Data shares its buffer")
	}
}

func TestResolvePanel(t *testing.T) {
	tests := map[string]string{
		"logistics":        Logistics,
		" Rainfall_Shock ": RainfallShock,
		"unknown":          SupplyGap,
		"":                 SupplyGap,
	}
	for in, want := range tests {
		if got := ResolvePanel(in); got != want {
			t.Errorf("ResolvePanel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAnalyze(t *testing.T) {
	var gotPrompt string
	a := newAnalyst(t, func(p string) (string, error) { gotPrompt = p; return " Route via Busia. ", nil })

	res, err := a.Analyze(context.Background(), "LOGISTICS", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Panel != Logistics || res.Analysis != "Route via Busia." {
		t.Errorf("unexpected %+v", res)
	}
	if !strings.Contains(gotPrompt, DefaultQuery) {
		t.Error("default query not rendered")
	}
	if len(res.SuggestedFollowups) != 3 || !strings.Contains(res.SuggestedFollowups[0], "this logistics situation") {
		t.Errorf("followups = %v", res.SuggestedFollowups)
	}
}

func TestAnalyze_EmptyAndError(t *testing.T) {
	a := newAnalyst(t, func(string) (string, error) { return "", nil })
	res, err := a.Analyze(context.Background(), "nope", "why?")
	if err != nil || res.Analysis != NoAnalysis || res.Panel != SupplyGap {
		t.Errorf("empty: %+v, %v", res, err)
	}

	a = newAnalyst(t, func(string) (string, error) { return "", errors.New("quota") })
	if _, err := a.Analyze(context.Background(), SupplyGap, "x"); err == nil {
		t.Error("expected error")
	}
}
