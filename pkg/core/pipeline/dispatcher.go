// Package pipeline turns one incoming query into one response: it classifies
// the query, runs the matching handler, fills final_output and records the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/comparative"
	"zeno_agent/pkg/core/forecast"
	"zeno_agent/pkg/core/llm"
	"zeno_agent/pkg/core/normalize"
	"zeno_agent/pkg/core/prompt"
	"zeno_agent/pkg/core/router"
	"zeno_agent/pkg/core/scenario"
	"zeno_agent/pkg/core/store"
	"zeno_agent/pkg/core/utils"
)

// User-facing messages.
const (
	MsgQueryRequired = "Query or file is required"
	MsgQuotaExceeded = "No response found. The system is temporarily busy. Please try again later."
	MsgNoForecast    = "No response found. Please try rephrasing your question or check back later."
	MsgFileFallback  = "I analyzed your document. Try asking about trade implications, price forecasts, or policy impacts."
	MsgFileFollowup  = "Ask one of the suggested questions!"
)

var fileConfig = agent.GenerateConfig{MaxTokens: 1024, Temperature: agent.Temp(0.2)}

// ErrEmptyQuery is returned for requests with neither text nor a document.
var ErrEmptyQuery = errors.New(MsgQueryRequired)

// Query is one user request. FileContext is the text of an uploaded document.
type Query struct {
	Text           string
	FileContext    string
	ConversationID string
}

// Reply is the response body plus the HTTP status it should be sent with.
type Reply struct {
	Status int
	Body   normalize.Response
}

type Classifier interface {
	Classify(ctx context.Context, query string) router.Decision
}

type Forecaster interface {
	Run(ctx context.Context, query, fileContext string) forecast.Result
}

type Comparer interface {
	Run(ctx context.Context, query, fileContext string) comparative.Result
}

type ScenarioRunner interface {
	Run(ctx context.Context, query, fileContext string) scenario.Result
}

type Answerer interface {
	Ask(ctx context.Context, query, fileContext string) string
}

// Recorder persists a handled query. store.RunRepo satisfies it.
type Recorder interface {
	Record(ctx context.Context, run store.Run, steps []store.Step) error
}

// Deps are the collaborators of a Dispatcher. Recorder may be nil.
type Deps struct {
	Router      Classifier
	Forecast    Forecaster
	Comparative Comparer
	Scenario    ScenarioRunner
	Knowledge   Answerer
	Generator   agent.Generator
	Prompts     *prompt.Registry
	Recorder    Recorder
	Logger      *logrus.Logger
}

type Dispatcher struct {
	d   Deps
	log *logrus.Entry
	now func() time.Time
}

func NewDispatcher(d Deps) *Dispatcher {
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	return &Dispatcher{d: d, log: d.Logger.WithField("component", "pipeline"), now: time.Now}
}

// trace collects the steps recorded for a run.
type trace struct {
	steps []store.Step
}

func (t *trace) add(kind, content string) {
	t.steps = append(t.steps, store.Step{Order: len(t.steps) + 1, Type: kind, Content: content})
}

// Handle never returns an error: validation failures, handler errors and
// panics are all rendered as replies.
func (d *Dispatcher) Handle(ctx context.Context, q Query) (reply Reply) {
	q.Text = strings.TrimSpace(q.Text)
	q.FileContext = strings.TrimSpace(q.FileContext)
	if q.Text == "" && q.FileContext == "" {
		return Reply{Status: http.StatusBadRequest, Body: normalize.Response{"error": MsgQueryRequired}}
	}

	started := d.now()
	tr := &trace{}
	defer func() {
		if p := recover(); p != nil {
			err, ok := p.(error)
			if !ok {
				err = fmt.Errorf("%v", p)
			}
			d.log.WithError(err).Error("query handler panicked")
			reply = Failure(err)
		}
		d.record(ctx, q, started, tr, reply)
	}()

	body := d.dispatch(ctx, q, tr)
	return Reply{Status: http.StatusOK, Body: normalize.Normalize(body)}
}

// Failure maps an unexpected error to the quota or generic error reply.
func Failure(err error) Reply {
	if llm.IsQuotaError(err) {
		return Reply{Status: http.StatusOK, Body: normalize.Response{"error": MsgQuotaExceeded, "type": "quota_exceeded"}}
	}
	return Reply{Status: http.StatusInternalServerError, Body: normalize.Response{"error": "Processing failed: " + err.Error()}}
}

func (d *Dispatcher) dispatch(ctx context.Context, q Query, tr *trace) normalize.Response {
	if q.Text == "" {
		tr.add("route", "file_analysis")
		return d.analyzeFile(ctx, q.FileContext)
	}

	dec := d.d.Router.Classify(ctx, q.Text)
	tr.add("route", fmt.Sprintf("%s via %s", dec.Intent, dec.Tier))
	d.log.WithFields(logrus.Fields{"intent": dec.Intent, "tier": dec.Tier}).Info("query routed")

	switch dec.Intent {
	case router.IntentShortcut:
		return normalize.Clone(dec.Shortcut.Payload)
	case router.IntentTrivial:
		return normalize.Response{"type": "trivial", "response": dec.Response}
	case router.IntentComparative:
		return mustMap(normalize.FromStruct(d.d.Comparative.Run(ctx, q.Text, q.FileContext)))
	case router.IntentForecast:
		res := d.d.Forecast.Run(ctx, q.Text, q.FileContext)
		if res.Outcome == forecast.OutcomeDeferred {
			tr.add("forecast_deferred", res.DeferReason)
			if strings.TrimSpace(res.Interpretation) == "" {
				return normalize.Response{"type": "forecast", "final_output": MsgNoForecast, "status": "completed"}
			}
		}
		return mustMap(normalize.FromStruct(res))
	case router.IntentScenario:
		return mustMap(normalize.FromStruct(d.d.Scenario.Run(ctx, q.Text, q.FileContext)))
	default:
		return normalize.Response{"type": "rag", "response": d.d.Knowledge.Ask(ctx, q.Text, q.FileContext)}
	}
}

// mustMap panics on conversion failure so the request boundary reports it.
func mustMap(r normalize.Response, err error) normalize.Response {
	if err != nil {
		panic(err)
	}
	return r
}

// FileSummary is the structured answer for a document uploaded without a
// question.
type FileSummary struct {
	Summary   string   `json:"summary"`
	Questions []string `json:"questions"`
}

func (d *Dispatcher) analyzeFile(ctx context.Context, fileContext string) normalize.Response {
	out := normalize.Response{"type": "file_analysis", "response": MsgFileFallback, "followup": MsgFileFollowup}
	if d.d.Generator == nil || d.d.Prompts == nil {
		return out
	}

	p, err := d.d.Prompts.Render(prompt.FileAnalyze, prompt.Vars{"FileContext": fileContext})
	if err != nil {
		d.log.WithError(err).Error("render file prompt")
		return out
	}
	raw, err := d.d.Generator.Generate(ctx, agent.FileAnalysis, p, fileConfig)
	if err != nil {
		d.log.WithError(err).Warn("file analysis failed")
		return out
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out
	}

	var fs FileSummary
	if err := utils.SmartParse(raw, &fs); err != nil || strings.TrimSpace(fs.Summary) == "" {
		out["response"] = utils.PlainText(raw)
		return out
	}
	out["response"] = FormatFileSummary(fs)
	out["suggested_questions"] = fs.Questions
	return out
}

// FormatFileSummary renders the summary followed by numbered questions.
func FormatFileSummary(fs FileSummary) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(fs.Summary))
	if len(fs.Questions) > 0 {
		sb.WriteString("\n\nSuggested questions:")
		for i, q := range fs.Questions {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, strings.TrimSpace(q))
		}
	}
	return sb.String()
}

func (d *Dispatcher) record(ctx context.Context, q Query, started time.Time, tr *trace, reply Reply) {
	if d.d.Recorder == nil {
		return
	}
	status := "completed"
	final, _ := reply.Body["final_output"].(string)
	if msg, ok := reply.Body["error"].(string); ok {
		status = "failed"
		final = msg
	}
	if kind, ok := reply.Body["type"].(string); ok {
		tr.add("handler", kind)
	}

	run := store.Run{
		ID:             uuid.NewString(),
		ConversationID: q.ConversationID,
		UserInput:      q.Text,
		FinalOutput:    final,
		Status:         status,
		StartedAt:      started,
		CompletedAt:    d.now(),
	}
	// The request may already be cancelled; the log entry should still land.
	if err := d.d.Recorder.Record(context.WithoutCancel(ctx), run, tr.steps); err != nil {
		d.log.WithError(err).WithField("run_id", run.ID).Warn("run not recorded")
	}
}
