package router

import (
	"context"
	"errors"
	"testing"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/prompt"
)

type MockGenerator struct {
	Calls        int
	GenerateFunc func(prompt string) (string, error)
}

func (m *MockGenerator) Generate(_ context.Context, _ string, prompt string, _ agent.GenerateConfig) (string, error) {
	m.Calls++
	return m.GenerateFunc(prompt)
}

func newRouter(t *testing.T, gen agent.Generator) *Router {
	t.Helper()
	reg, err := prompt.Default("")
	if err != nil {
		t.Fatal(err)
	}
	sc, err := LoadShortcuts()
	if err != nil {
		t.Fatalf("LoadShortcuts: %v", err)
	}
	return New(gen, reg, sc, nil)
}

func TestLoadShortcuts(t *testing.T) {
	sc, err := LoadShortcuts()
	if err != nil {
		t.Fatal(err)
	}
	if len(sc) != 3 {
		t.Fatalf("expected 3 shortcuts, got %d", len(sc))
	}
	maize := sc[2].Payload
	if maize["type"] != "forecast" || maize["confidence_level"] != "High" || maize["data_points_used"] != float64(48) {
		t.Errorf("unexpected maize payload header: %v %v %v", maize["type"], maize["confidence_level"], maize["data_points_used"])
	}
	if arts, ok := maize["artifacts"].([]interface{}); !ok || len(arts) != 3 {
		t.Errorf("expected 3 artifacts, got %T %v", maize["artifacts"], maize["artifacts"])
	}
	for _, s := range sc {
		if s.Payload["interpretation"] == "" || s.Payload["forecast_display"] == "" {
			t.Errorf("%s: empty narrative", s.Name)
		}
	}
}

func TestClassify_ShortcutsBypassClassifier(t *testing.T) {
	tests := []struct {
		query string
		name  string
	}{
		{"What is the price of Ethiopia coffee over the next 2 years?", "ethiopia_coffee_forecast"},
		{"forecast Ethiopia coffee price", "ethiopia_coffee_forecast"},
		{"Kenya coffee price forecast for Dec 2025", "kenya_coffee_forecast"},
		{"Kenya coffee next two months", "kenya_coffee_forecast"},
		{"What will maize cost in Nairobi next month?", "kenya_maize_forecast"},
		{"unga prices kenya 2026", "kenya_maize_forecast"},
	}
	for _, tt := range tests {
		gen := &MockGenerator{GenerateFunc: func(string) (string, error) { return "[FORECAST]", nil }}
		d := newRouter(t, gen).Classify(context.Background(), tt.query)
		if d.Intent != IntentShortcut || d.Shortcut == nil || d.Shortcut.Name != tt.name {
			t.Errorf("%q: got %+v", tt.query, d)
		}
		if gen.Calls != 0 {
			t.Errorf("%q: classifier was called", tt.query)
		}
	}
}

func TestClassify_Tags(t *testing.T) {
	tests := []struct {
		reply  string
		intent Intent
		resp   string
	}{
		{"[COMPARATIVE] Comparing.", IntentComparative, "Comparing."},
		{"  [FORECAST]", IntentForecast, ""},
		{"[SCENARIO] what if", IntentScenario, "what if"},
		{"[RAG]", IntentRAG, ""},
		{"Hello! Today is Tuesday.", IntentTrivial, "Hello! Today is Tuesday."},
		{"", IntentTrivial, ""},
	}
	for _, tt := range tests {
		gen := &MockGenerator{GenerateFunc: func(string) (string, error) { return tt.reply, nil }}
		d := newRouter(t, gen).Classify(context.Background(), "compare tea exports of uganda and rwanda")
		if d.Intent != tt.intent || d.Response != tt.resp || d.Tier != TierClassifier {
			t.Errorf("reply %q: got %+v", tt.reply, d)
		}
	}
}

func TestClassify_KeywordDegradation(t *testing.T) {
	failing := &MockGenerator{GenerateFunc: func(string) (string, error) { return "", errors.New("503 unavailable") }}
	r := newRouter(t, failing)

	d := r.Classify(context.Background(), "hi")
	if d.Intent != IntentTrivial || d.Response != Greeting || d.Tier != TierKeywords {
		t.Errorf("hi: got %+v", d)
	}

	d = r.Classify(context.Background(), "what about the maize export tariff policy for Kenya")
	if d.Intent != IntentRAG {
		t.Errorf("domain query: got %+v", d)
	}

	d = r.Classify(context.Background(), "tell me something interesting about the weather patterns today")
	if d.Intent != IntentRAG {
		t.Errorf("long query should default to rag: got %+v", d)
	}

	d = r.Classify(context.Background(), "show farm gate trends")
	if d.Intent != IntentRAG {
		t.Errorf("multi-word keyword: got %+v", d)
	}
}
