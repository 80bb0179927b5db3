// Package scenario answers what-if policy questions for one commodity in one
// country.
package scenario

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/entity"
	"zeno_agent/pkg/core/prompt"
	"zeno_agent/pkg/core/store"
)

const (
	Guidance         = "Please specify a commodity (e.g., coffee, maize) and country (e.g., Kenya, Rwanda)."
	GuidanceFollowup = "Example: 'What if Kenya subsidizes coffee production?'"
	Followup         = "Try adjusting policy parameters or macroeconomic assumptions."

	NoStructuredData = "No structured economic data available."
	NoDocuments      = "No relevant policy, macroeconomic, or event documents found."

	// MacroSinceYear is the first year of macro statistics considered.
	MacroSinceYear = 2015
	evidenceTopK   = 5
)

// MacroIndicators are reported with their latest value, in this order.
var MacroIndicators = []string{"GDP", "CPI", "Inflation", "Trade Balance"}

var (
	commodityPattern = regexp.MustCompile(`(?i)(maize|coffee|tea|oil|wheat|sugar)`)
	countryPattern   = regexp.MustCompile(`(?i)(kenya|uganda|tanzania|ethiopia|rwanda)`)
)

var analysisConfig = agent.GenerateConfig{MaxTokens: 2048, Temperature: agent.Temp(0.3)}

// EvidenceSource returns merged knowledge base text for a query, or "".
type EvidenceSource interface {
	Evidence(ctx context.Context, query string, topK int) string
}

type Entities struct {
	Commodity string `json:"commodity"`
	Country   string `json:"country"`
}

// Result is the scenario handler output. Response is set only when the query
// lacks a commodity or country.
type Result struct {
	Type        string    `json:"type"`
	Query       string    `json:"query"`
	Entities    *Entities `json:"entities,omitempty"`
	LLMAnalysis string    `json:"llm_analysis,omitempty"`
	Response    string    `json:"response,omitempty"`
	Followup    string    `json:"followup"`
}

type Handler struct {
	store    store.TradeStore
	evidence EvidenceSource
	gen      agent.Generator
	prompts  *prompt.Registry
	log      *logrus.Entry
}

func New(s store.TradeStore, evidence EvidenceSource, gen agent.Generator, prompts *prompt.Registry, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		store:    s,
		evidence: evidence,
		gen:      gen,
		prompts:  prompts,
		log:      logger.WithField("component", "scenario"),
	}
}

// ExtractEntities returns the first commodity and country mentioned, lower
// cased, or "" for either when absent.
func ExtractEntities(query string) (commodity, country string) {
	if m := commodityPattern.FindStringSubmatch(query); m != nil {
		commodity = strings.ToLower(m[1])
	}
	if m := countryPattern.FindStringSubmatch(query); m != nil {
		country = strings.ToLower(m[1])
	}
	return commodity, country
}

func (h *Handler) Run(ctx context.Context, query, fileContext string) Result {
	query = strings.TrimSpace(query)
	commodity, country := ExtractEntities(query)
	if commodity == "" || country == "" {
		return Result{Type: "scenario", Query: query, Response: Guidance, Followup: GuidanceFollowup}
	}

	parts := make([]string, 0, 3)
	if fileContext != "" {
		parts = append(parts, "Uploaded document:\n"+fileContext)
	}
	parts = append(parts, "Structured Economic Data: "+h.StructuredContext(ctx, commodity, country))
	parts = append(parts, "Policy/Documents: "+h.documents(ctx, query))

	return Result{
		Type:        "scenario",
		Query:       query,
		Entities:    &Entities{Commodity: commodity, Country: country},
		LLMAnalysis: h.analyze(ctx, query, commodity, country, strings.Join(parts, "\n\n")),
		Followup:    Followup,
	}
}

// StructuredContext summarises local price, volume and macro data. Every
// lookup is optional; failures only drop the affected line.
func (h *Handler) StructuredContext(ctx context.Context, commodity, country string) string {
	if h.store == nil {
		return NoStructuredData
	}
	var parts []string

	countryID, cErr := h.store.LookupCountryID(ctx, entity.Title(country))
	if cErr != nil {
		h.log.WithError(cErr).Debug("country lookup")
	}
	productID, pErr := h.store.LookupProductID(ctx, commodity)
	if pErr != nil {
		h.log.WithError(pErr).Debug("product lookup")
	}

	if cErr == nil && pErr == nil {
		if rows := h.series(ctx, countryID, productID, "price"); len(rows) > 0 {
			if avg, ok := mean(rows, "price"); ok {
				parts = append(parts, fmt.Sprintf("Average historical price: %s %s per unit.",
					currency(rows), humanize.FormatFloat("#,###.##", avg)))
			}
		}
		if rows := h.series(ctx, countryID, productID, "quantity"); len(rows) > 0 {
			parts = append(parts, fmt.Sprintf("Historical export volume: %s units.",
				humanize.FormatFloat("#,###.", sum(rows, "quantity"))))
		}
	}

	if cErr == nil {
		for _, macro := range MacroIndicators {
			indicatorID, err := h.store.LookupIndicatorID(ctx, macro)
			if err != nil {
				continue
			}
			stats, err := h.store.GetMacroStats(ctx, countryID, indicatorID, MacroSinceYear)
			if err != nil || len(stats) == 0 {
				continue
			}
			latest := stats[0]
			for _, s := range stats[1:] {
				if s.Year > latest.Year {
					latest = s
				}
			}
			parts = append(parts, fmt.Sprintf("%s (%d): %s", macro, latest.Year, humanize.FormatFloat("#,###.##", latest.Value)))
		}
	}

	if len(parts) == 0 {
		return NoStructuredData
	}
	return strings.Join(parts, " | ")
}

func (h *Handler) series(ctx context.Context, countryID, productID int64, metric string) []store.Row {
	indicatorID, err := h.store.LookupIndicatorID(ctx, metric)
	if err != nil {
		return nil
	}
	s, err := h.store.GetTradeSeries(ctx, store.SeriesQuery{CountryID: countryID, ProductID: productID, IndicatorID: indicatorID})
	if err != nil {
		h.log.WithError(err).WithField("metric", metric).Warn("trade series query failed")
		return nil
	}
	return s.Rows
}

func (h *Handler) documents(ctx context.Context, query string) string {
	if h.evidence == nil {
		return NoDocuments
	}
	if ev := h.evidence.Evidence(ctx, query, evidenceTopK); ev != "" {
		return ev
	}
	return NoDocuments
}

func (h *Handler) analyze(ctx context.Context, query, commodity, country, fullContext string) string {
	if h.gen == nil || h.prompts == nil {
		return errorNarrative(commodity, country)
	}
	p, err := h.prompts.Render(prompt.ScenarioAnalyze, prompt.Vars{"Query": query, "Context": fullContext})
	if err != nil {
		h.log.WithError(err).Error("render scenario prompt")
		return errorNarrative(commodity, country)
	}
	out, err := h.gen.Generate(ctx, agent.Scenario, p, analysisConfig)
	if err != nil {
		h.log.WithError(err).Warn("scenario analysis failed")
		return errorNarrative(commodity, country)
	}
	if out = strings.TrimSpace(out); out == "" {
		return emptyNarrative(commodity, country)
	}
	return out
}

func emptyNarrative(commodity, country string) string {
	return fmt.Sprintf("Scenario analysis for %s in %s requires additional context. "+
		"Consider providing specific policy parameters or economic assumptions for a detailed assessment.",
		commodity, entity.Title(country))
}

func errorNarrative(commodity, country string) string {
	return fmt.Sprintf("A %s policy scenario in %s would affect production and trade flows. "+
		"Without specific parameters, general effects include: supply elasticity impacts on domestic prices, "+
		"export competitiveness changes, and fiscal implications for government budgets. "+
		"Provide specific policy details for a tailored analysis.",
		commodity, entity.Title(country))
}

func mean(rows []store.Row, col string) (float64, bool) {
	var total float64
	var n int
	for _, r := range rows {
		if v, ok := r.Float(col); ok {
			total += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return total / float64(n), true
}

func sum(rows []store.Row, col string) float64 {
	var total float64
	for _, r := range rows {
		if v, ok := r.Float(col); ok {
			total += v
		}
	}
	return total
}

func currency(rows []store.Row) string {
	if s, ok := rows[0]["currency"].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return "KES"
}
