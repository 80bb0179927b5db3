package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/comparative"
	"zeno_agent/pkg/core/entity"
	"zeno_agent/pkg/core/forecast"
	"zeno_agent/pkg/core/normalize"
	"zeno_agent/pkg/core/prompt"
	"zeno_agent/pkg/core/retry"
	"zeno_agent/pkg/core/router"
	"zeno_agent/pkg/core/scenario"
	"zeno_agent/pkg/core/store"
)

// --- Mocks ---

type MockClassifier struct {
	ClassifyFunc func(query string) router.Decision
}

func (m *MockClassifier) Classify(_ context.Context, query string) router.Decision {
	return m.ClassifyFunc(query)
}

type MockForecaster struct {
	RunFunc func(query, fileContext string) forecast.Result
}

func (m *MockForecaster) Run(_ context.Context, query, fileContext string) forecast.Result {
	return m.RunFunc(query, fileContext)
}

type MockComparer struct {
	RunFunc func(query, fileContext string) comparative.Result
}

func (m *MockComparer) Run(_ context.Context, query, fileContext string) comparative.Result {
	return m.RunFunc(query, fileContext)
}

type MockScenario struct {
	RunFunc func(query, fileContext string) scenario.Result
}

func (m *MockScenario) Run(_ context.Context, query, fileContext string) scenario.Result {
	return m.RunFunc(query, fileContext)
}

type MockAnswerer struct {
	AskFunc func(query, fileContext string) string
}

func (m *MockAnswerer) Ask(_ context.Context, query, fileContext string) string {
	return m.AskFunc(query, fileContext)
}

type MockGenerator struct {
	GenerateFunc func(ctx context.Context, agentType, prompt string, cfg agent.GenerateConfig) (string, error)
}

func (m *MockGenerator) Generate(ctx context.Context, agentType, prompt string, cfg agent.GenerateConfig) (string, error) {
	return m.GenerateFunc(ctx, agentType, prompt, cfg)
}

type MockRecorder struct {
	Runs  []store.Run
	Steps [][]store.Step
	Err   error
}

func (m *MockRecorder) Record(_ context.Context, run store.Run, steps []store.Step) error {
	m.Runs = append(m.Runs, run)
	m.Steps = append(m.Steps, steps)
	return m.Err
}

func route(intent router.Intent) *MockClassifier {
	return &MockClassifier{ClassifyFunc: func(string) router.Decision {
		return router.Decision{Intent: intent, Tier: router.TierClassifier}
	}}
}

func newDispatcher(t *testing.T, d Deps) *Dispatcher {
	t.Helper()
	if d.Prompts == nil {
		reg, err := prompt.Default("")
		if err != nil {
			t.Fatal(err)
		}
		d.Prompts = reg
	}
	if d.Knowledge == nil {
		d.Knowledge = &MockAnswerer{AskFunc: func(string, string) string { return "kb answer" }}
	}
	return NewDispatcher(d)
}

// --- Tests ---

func TestHandle_EmptyQuery(t *testing.T) {
	rec := &MockRecorder{}
	d := newDispatcher(t, Deps{Router: route(router.IntentRAG), Recorder: rec})

	reply := d.Handle(context.Background(), Query{Text: "  ", FileContext: ""})
	if reply.Status != http.StatusBadRequest || reply.Body["error"] != MsgQueryRequired {
		t.Errorf("unexpected reply %+v", reply)
	}
	if len(rec.Runs) != 0 {
		t.Error("empty query should not be recorded")
	}
}

func TestHandle_Intents(t *testing.T) {
	tests := []struct {
		name   string
		deps   Deps
		query  string
		kind   string
		output string
	}{
		{
			name: "trivial",
			deps: Deps{Router: &MockClassifier{ClassifyFunc: func(string) router.Decision {
				return router.Decision{Intent: router.IntentTrivial, Response: "Hello there."}
			}}},
			query: "hi", kind: "trivial", output: "Hello there.",
		},
		{
			name: "comparative",
			deps: Deps{Router: route(router.IntentComparative), Comparative: &MockComparer{RunFunc: func(q, _ string) comparative.Result {
				return comparative.Result{Type: "comparative", Query: q, Entities: entity.Entities{Countries: []string{"Kenya"}}, Response: "Kenya leads."}
			}}},
			query: "compare", kind: "comparative", output: "Kenya leads.",
		},
		{
			name: "forecast",
			deps: Deps{Router: route(router.IntentForecast), Forecast: &MockForecaster{RunFunc: func(q, _ string) forecast.Result {
				return forecast.Result{Type: "forecast", Query: q, Outcome: forecast.OutcomeForecast, ForecastDisplay: "Unit Price: 1.00 KES/kg", Interpretation: "Rising."}
			}}},
			query: "forecast", kind: "forecast", output: "Unit Price: 1.00 KES/kg\n\nRising.",
		},
		{
			name: "forecast deferred without narrative",
			deps: Deps{Router: route(router.IntentForecast), Forecast: &MockForecaster{RunFunc: func(q, _ string) forecast.Result {
				return forecast.Result{Type: "forecast", Outcome: forecast.OutcomeDeferred, DeferReason: "no data"}
			}}},
			query: "forecast", kind: "forecast", output: MsgNoForecast,
		},
		{
			name: "scenario",
			deps: Deps{Router: route(router.IntentScenario), Scenario: &MockScenario{RunFunc: func(q, _ string) scenario.Result {
				return scenario.Result{Type: "scenario", Query: q, LLMAnalysis: "Prices fall.", Followup: scenario.Followup}
			}}},
			query: "what if", kind: "scenario", output: "Prices fall.",
		},
		{
			name:  "rag",
			deps:  Deps{Router: route(router.IntentRAG)},
			query: "tell me about levies", kind: "rag", output: "kb answer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := newDispatcher(t, tt.deps).Handle(context.Background(), Query{Text: tt.query})
			if reply.Status != http.StatusOK {
				t.Fatalf("status = %d, body %v", reply.Status, reply.Body)
			}
			if reply.Body["type"] != tt.kind {
				t.Errorf("type = %v, want %s", reply.Body["type"], tt.kind)
			}
			if reply.Body["final_output"] != tt.output {
				t.Errorf("final_output = %q, want %q", reply.Body["final_output"], tt.output)
			}
		})
	}
}

func TestHandle_ShortcutPayloadNotMutated(t *testing.T) {
	shortcuts, err := router.LoadShortcuts()
	if err != nil {
		t.Fatal(err)
	}
	sc := &shortcuts[0]
	d := newDispatcher(t, Deps{Router: &MockClassifier{ClassifyFunc: func(string) router.Decision {
		return router.Decision{Intent: router.IntentShortcut, Shortcut: sc, Tier: router.TierShortcut}
	}}})

	reply := d.Handle(context.Background(), Query{Text: "forecast ethiopia coffee price"})
	out, _ := reply.Body["final_output"].(string)
	if !strings.HasPrefix(out, strings.TrimSpace(sc.Payload["forecast_display"].(string))) {
		t.Errorf("final_output does not start with the display: %q", out)
	}
	if _, ok := sc.Payload["final_output"]; ok {
		t.Error("shortcut payload was mutated")
	}
}

func TestHandle_Failures(t *testing.T) {
	tests := []struct {
		name   string
		panic  any
		status int
		body   normalize.Response
	}{
		{"generic", errors.New("boom"), http.StatusInternalServerError, normalize.Response{"error": "Processing failed: boom"}},
		{"quota", errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED"), http.StatusOK, normalize.Response{"error": MsgQuotaExceeded, "type": "quota_exceeded"}},
		{"non-error value", "bad state", http.StatusInternalServerError, normalize.Response{"error": "Processing failed: bad state"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &MockRecorder{}
			d := newDispatcher(t, Deps{
				Router:   route(router.IntentRAG),
				Recorder: rec,
				Knowledge: &MockAnswerer{AskFunc: func(string, string) string {
					panic(tt.panic)
				}},
			})
			reply := d.Handle(context.Background(), Query{Text: "levies"})
			if reply.Status != tt.status {
				t.Errorf("status = %d, want %d", reply.Status, tt.status)
			}
			for k, v := range tt.body {
				if reply.Body[k] != v {
					t.Errorf("%s = %v, want %v", k, reply.Body[k], v)
				}
			}
			if len(rec.Runs) != 1 || rec.Runs[0].Status != "failed" {
				t.Errorf("runs = %+v", rec.Runs)
			}
		})
	}
}

func TestHandle_FileOnly(t *testing.T) {
	t.Run("structured summary", func(t *testing.T) {
		gen := &MockGenerator{GenerateFunc: func(_ context.Context, agentType, p string, _ agent.GenerateConfig) (string, error) {
			if agentType != agent.FileAnalysis || !strings.Contains(p, "tea_report.pdf") {
				t.Errorf("agent=%s prompt=%q", agentType, p)
			}
			return "```json\n{\"summary\": \"Tea exports rose 8%.\", \"questions\": [\"Why?\", \"Where?\", \"Next?\",]}\n```", nil
		}}
		reply := newDispatcher(t, Deps{Router: route(router.IntentRAG), Generator: gen}).
			Handle(context.Background(), Query{FileContext: "tea_report.pdf: exports rose"})

		want := "Tea exports rose 8%.\n\nSuggested questions:\n1. Why?\n2. Where?\n3. Next?"
		if reply.Body["type"] != "file_analysis" || reply.Body["final_output"] != want {
			t.Errorf("unexpected body %v", reply.Body)
		}
		if reply.Body["followup"] != MsgFileFollowup {
			t.Errorf("followup = %v", reply.Body["followup"])
		}
	})

	t.Run("generation fails", func(t *testing.T) {
		gen := &MockGenerator{GenerateFunc: func(context.Context, string, string, agent.GenerateConfig) (string, error) {
			return "", errors.New("unavailable")
		}}
		reply := newDispatcher(t, Deps{Router: route(router.IntentRAG), Generator: gen}).
			Handle(context.Background(), Query{FileContext: "doc"})
		if reply.Body["final_output"] != MsgFileFallback {
			t.Errorf("final_output = %v", reply.Body["final_output"])
		}
	})

	t.Run("unstructured text", func(t *testing.T) {
		gen := &MockGenerator{GenerateFunc: func(context.Context, string, string, agent.GenerateConfig) (string, error) {
			return "The document covers **maize** prices.", nil
		}}
		reply := newDispatcher(t, Deps{Router: route(router.IntentRAG), Generator: gen}).
			Handle(context.Background(), Query{FileContext: "doc"})
		if reply.Body["final_output"] != "The document covers maize prices." {
			t.Errorf("final_output = %v", reply.Body["final_output"])
		}
	})
}

func TestHandle_RecordsRun(t *testing.T) {
	rec := &MockRecorder{Err: errors.New("db down")}
	d := newDispatcher(t, Deps{Router: route(router.IntentRAG), Recorder: rec})

	reply := d.Handle(context.Background(), Query{Text: "levies", ConversationID: "c1"})
	if reply.Status != http.StatusOK {
		t.Fatalf("recorder failure leaked into reply: %+v", reply)
	}
	if len(rec.Runs) != 1 {
		t.Fatalf("runs = %d", len(rec.Runs))
	}
	run := rec.Runs[0]
	if run.ID == "" || run.ConversationID != "c1" || run.Status != "completed" || run.FinalOutput != "kb answer" {
		t.Errorf("run = %+v", run)
	}
	steps := rec.Steps[0]
	if len(steps) != 2 || steps[0].Type != "route" || steps[1].Type != "handler" || steps[1].Content != "rag" || steps[1].Order != 2 {
		t.Errorf("steps = %+v", steps)
	}
}

func TestHandle_RecordsToSQLite(t *testing.T) {
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	repo := store.NewRunRepo(s, retry.New(retry.Default("runs"), nil))

	var rec recorderSpy
	rec.inner = repo
	d := newDispatcher(t, Deps{Router: route(router.IntentRAG), Recorder: &rec})
	d.Handle(context.Background(), Query{Text: "levies"})

	n, err := s.CountSteps(context.Background(), rec.lastID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("steps recorded = %d, want 2", n)
	}
}

type recorderSpy struct {
	inner  Recorder
	lastID string
}

func (r *recorderSpy) Record(ctx context.Context, run store.Run, steps []store.Step) error {
	r.lastID = run.ID
	return r.inner.Record(ctx, run, steps)
}

func TestFormatFileSummary(t *testing.T) {
	if got := FormatFileSummary(FileSummary{Summary: " Only summary "}); got != "Only summary" {
		t.Errorf("got %q", got)
	}
}
