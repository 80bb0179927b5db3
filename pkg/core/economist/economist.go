// Package economist writes the web-grounded narrative brief used whenever a
// structured handler cannot answer from local data.
package economist

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/sirupsen/logrus"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/prompt"
	"zeno_agent/pkg/core/websearch"
)

const (
	// MaxSearchQueries bounds how many targeted searches one brief issues.
	MaxSearchQueries = 4
	// ResultsPerQuery is the number of hits kept per search.
	ResultsPerQuery = 3

	EmptyResponse = "Dr. Zeno was unable to generate a response at this time. Please try again."
)

var briefConfig = agent.GenerateConfig{MaxTokens: 8192, Temperature: agent.Temp(0.1)}

// Request describes what the narrative should cover. AgentType selects the
// search plan and the brief structure.
type Request struct {
	Query        string
	AgentType    string
	Commodity    string
	Country      string
	ExtraContext string
}

// Narrator is the deferred-answer collaborator used by the handlers.
type Narrator interface {
	Answer(ctx context.Context, req Request) string
}

type Economist struct {
	gen     agent.Generator
	search  websearch.Searcher
	prompts *prompt.Registry
	log     *logrus.Entry
}

func New(gen agent.Generator, search websearch.Searcher, prompts *prompt.Registry, logger *logrus.Logger) *Economist {
	if logger == nil {
		logger = logrus.New()
	}
	if search == nil {
		search = websearch.Nop{}
	}
	return &Economist{
		gen:     gen,
		search:  search,
		prompts: prompts,
		log:     logger.WithField("component", "economist"),
	}
}

// SearchQueries returns the targeted web searches for a request, in priority
// order. Only the first MaxSearchQueries are issued.
func SearchQueries(req Request) []string {
	c, k := req.Commodity, req.Country
	switch req.AgentType {
	case agent.Comparative:
		return []string{
			fmt.Sprintf("%s export statistics %s annual data volumes value 2023 2024 2025", c, k),
			fmt.Sprintf("%s trade competitiveness East Africa market share global benchmark", c),
			fmt.Sprintf("%s export policy %s government strategy incentives", c, k),
			fmt.Sprintf("%s price trends %s comparison world market ICO FAO", c, k),
			fmt.Sprintf("East Africa %s trade report COMESA EAC World Bank IMF 2024", c),
		}
	case agent.Scenario:
		return []string{
			fmt.Sprintf("%s %s production statistics GDP contribution farmers 2024 2025", k, c),
			fmt.Sprintf("%s subsidy policy Africa outcomes effects case study evidence", c),
			fmt.Sprintf("%s %s export value volume market 2023 2024", k, c),
			fmt.Sprintf("%s global price trends supply demand 2025 outlook", c),
			fmt.Sprintf("%s agricultural policy %s government intervention World Bank IMF", k, c),
		}
	case agent.Forecast:
		return []string{
			fmt.Sprintf("%s price forecast 2025 2026 outlook %s projections", c, k),
			fmt.Sprintf("%s global supply demand balance 2025 USDA FAO ICO", c),
			fmt.Sprintf("%s export market trends East Africa 2025 2026", c),
			fmt.Sprintf("%s %s production yield forecast weather seasonal", k, c),
			fmt.Sprintf("ICO FAO World Bank %s commodity price outlook report 2025", c),
		}
	default:
		q := req.Query
		return []string{
			q + " East Africa economic data statistics 2024 2025",
			q + " Kenya Tanzania Uganda Ethiopia trade policy analysis",
			q + " World Bank IMF FAO African Development Bank report",
			q + " policy implications Sub-Saharan Africa economist analysis",
		}
	}
}

// Research runs the search plan and keeps unique hits that carry a snippet.
func (e *Economist) Research(ctx context.Context, req Request) []websearch.Result {
	queries := SearchQueries(req)
	if len(queries) > MaxSearchQueries {
		queries = queries[:MaxSearchQueries]
	}

	seen := make(map[string]bool)
	var results []websearch.Result
	for _, q := range queries {
		for _, r := range e.search.Search(ctx, q, ResultsPerQuery) {
			if seen[r.Link] || strings.TrimSpace(r.Snippet) == "" {
				continue
			}
			seen[r.Link] = true
			results = append(results, r)
		}
	}
	return results
}

// Answer never fails: generation errors and empty output become fixed text.
func (e *Economist) Answer(ctx context.Context, req Request) string {
	results := e.Research(ctx, req)
	e.log.WithFields(logrus.Fields{
		"agent":       req.AgentType,
		"commodity":   req.Commodity,
		"country":     req.Country,
		"web_results": len(results),
	}).Info("economist brief")

	text, err := e.brief(ctx, req, websearch.FormatResults(results))
	if err != nil {
		e.log.WithError(err).Warn("economist generation failed")
		return fmt.Sprintf("Unable to generate analysis at this time. Error: %s", errorType(err))
	}
	if strings.TrimSpace(text) == "" {
		return EmptyResponse
	}
	return strings.TrimSpace(text)
}

func (e *Economist) brief(ctx context.Context, req Request, webContent string) (string, error) {
	layout, err := e.prompts.GetPrompt(prompt.EconomistStructure(req.AgentType))
	if err != nil {
		return "", err
	}
	rendered, err := e.prompts.Render(prompt.EconomistBrief, prompt.Vars{
		"Role":         layout.SystemPrompt,
		"Query":        req.Query,
		"ExtraContext": req.ExtraContext,
		"WebContent":   webContent,
		"Structure":    layout.UserPromptTmpl,
	})
	if err != nil {
		return "", err
	}
	return e.gen.Generate(ctx, agent.Economist, rendered, briefConfig)
}

// errorType names the concrete error for the user-facing message without
// leaking its text.
func errorType(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Error"
	}
	return t.Name()
}
