package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/config"
	"zeno_agent/pkg/core/economist"
	"zeno_agent/pkg/core/entity"
	"zeno_agent/pkg/core/prompt"
	"zeno_agent/pkg/core/store"
	"zeno_agent/pkg/core/utils"
)

// Outcome separates a numeric forecast from a deferred narrative answer.
type Outcome string

const (
	OutcomeForecast Outcome = "forecast"
	OutcomeDeferred Outcome = "deferred"
)

const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"

	deferredDisplay = "See interpretation below."
	sourceWeb       = "web_fallback"
)

// Aliases maps query terms to store product names.
var Aliases = map[string]string{
	"maize":          "dry maize",
	"dry maize":      "dry maize",
	"green maize":    "green maize",
	"coffee_arabica": "Coffee",
	"coffee_robusta": "Coffee",
	"arabica":        "Coffee",
	"robusta":        "Coffee",
	"coffee":         "Coffee",
	"tea":            "Tea",
	"maize flour":    "Maize Flour",
}

// SupportedCountries lists the countries with forecastable trade series.
var SupportedCountries = []string{"kenya", "ethiopia", "rwanda"}

// ExchangeRates converts local currency to USD.
var ExchangeRates = map[string]float64{
	"KES": 0.0075,
	"ETB": 0.0087,
	"RWF": 0.00076,
}

// ToUSD converts value using ExchangeRates; unknown currencies pass through.
func ToUSD(value float64, currency string) float64 {
	if rate, ok := ExchangeRates[strings.ToUpper(currency)]; ok {
		return value * rate
	}
	return value
}

// DualForecast is the unit price, revenue and volume projection for one request.
type DualForecast struct {
	UnitPrice    Forecast `json:"unit_price"`
	TotalRevenue Forecast `json:"total_revenue"`
	VolumeKg     Forecast `json:"volume_kg"`
}

// Degraded reports whether any target fell back to the linear model.
func (d DualForecast) Degraded() bool {
	return d.UnitPrice.Method == MethodLinear || d.TotalRevenue.Method == MethodLinear || d.VolumeKg.Method == MethodLinear
}

// Result is the forecast handler output.
type Result struct {
	Type            string        `json:"type"`
	Query           string        `json:"query"`
	Outcome         Outcome       `json:"-"`
	Commodity       string        `json:"commodity,omitempty"`
	Country         string        `json:"country,omitempty"`
	ForecastDisplay string        `json:"forecast_display"`
	DualForecast    *DualForecast `json:"dual_forecast,omitempty"`
	Interpretation  string        `json:"interpretation"`
	ConfidenceLevel string        `json:"confidence_level"`
	DataPointsUsed  int           `json:"data_points_used"`
	Periods         int           `json:"periods,omitempty"`
	Currency        string        `json:"currency,omitempty"`
	DisplayUnit     string        `json:"display_unit,omitempty"`
	USDUnitPrice    *float64      `json:"usd_unit_price,omitempty"`
	Source          string        `json:"source,omitempty"`
	// DeferReason records why the numeric path was abandoned.
	DeferReason string `json:"-"`
}

// ContextProvider supplies knowledge base background for the interpretation.
type ContextProvider interface {
	EnhancedContext(ctx context.Context, commodity, country, metric string) string
}

type Orchestrator struct {
	store     store.TradeStore
	preparer  *Preparer
	runner    *Runner
	gen       agent.Generator
	prompts   *prompt.Registry
	narrator  economist.Narrator
	knowledge ContextProvider
	cfg       config.ForecastConfig
	log       *logrus.Entry
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store     store.TradeStore
	Generator agent.Generator
	Prompts   *prompt.Registry
	Narrator  economist.Narrator
	Knowledge ContextProvider
	Logger    *logrus.Logger
}

func NewOrchestrator(cfg config.ForecastConfig, deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	model := NewSeasonalModel(cfg.YearlyFourierOrder, cfg.IntervalWidth, cfg.MinModelPoints)
	return &Orchestrator{
		store:     deps.Store,
		preparer:  NewPreparer(deps.Store, cfg.Indicator, cfg.MinCleanRows, logger),
		runner:    NewRunner(model, cfg.FallbackBand, logger),
		gen:       deps.Generator,
		prompts:   deps.Prompts,
		narrator:  deps.Narrator,
		knowledge: deps.Knowledge,
		cfg:       cfg,
		log:       logger.WithField("component", "forecast"),
	}
}

// WithModel replaces the primary model.
func (o *Orchestrator) WithModel(m Model) *Orchestrator {
	o.runner = &Runner{primary: m, band: o.cfg.FallbackBand, log: o.runner.log}
	return o
}

// aliasKeys orders aliases longest first so "maize flour" wins over "maize".
var aliasKeys = func() []string {
	keys := make([]string, 0, len(Aliases))
	for k := range Aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// Resolve finds the commodity alias and supported country named in query.
// The commodity is returned as its store product name.
func Resolve(query string) (commodity, country string) {
	q := strings.ToLower(query)
	for _, k := range aliasKeys {
		if strings.Contains(q, k) {
			commodity = Aliases[k]
			break
		}
	}
	for _, c := range SupportedCountries {
		if strings.Contains(q, c) {
			country = c
			break
		}
	}
	return commodity, country
}

// Run produces a numeric forecast or, when any step cannot proceed, a
// deferred narrative. It never returns an error.
func (o *Orchestrator) Run(ctx context.Context, query, fileContext string) Result {
	periods := ParseTimeframe(query, o.cfg.DefaultPeriods, o.cfg.MaxPeriods)
	commodity, country := Resolve(query)
	if commodity == "" || country == "" {
		return o.deferred(ctx, query, commodity, country, "commodity or country not supported")
	}

	countryID, err := o.store.LookupCountryID(ctx, entity.Title(country))
	if err != nil {
		return o.deferred(ctx, query, commodity, country, fmt.Sprintf("country lookup: %v", err))
	}
	productID, err := o.store.LookupProductID(ctx, commodity)
	if err != nil {
		return o.deferred(ctx, query, commodity, country, fmt.Sprintf("product lookup: %v", err))
	}

	series, err := o.preparer.Prepare(ctx, countryID, productID)
	if err != nil {
		return o.deferred(ctx, query, commodity, country, fmt.Sprintf("prepare: %v", err))
	}

	dual, err := o.forecastTargets(ctx, series, periods)
	if err != nil {
		return o.deferred(ctx, query, commodity, country, fmt.Sprintf("model: %v", err))
	}

	usd := ToUSD(dual.UnitPrice.PointEstimate, series.Currency)
	res := Result{
		Type:            "forecast",
		Query:           query,
		Outcome:         OutcomeForecast,
		Commodity:       commodity,
		Country:         entity.Title(country),
		ForecastDisplay: Display(dual, series.Currency, series.DisplayUnit),
		DualForecast:    &dual,
		ConfidenceLevel: o.confidence(len(series.Points), dual),
		DataPointsUsed:  len(series.Points),
		Periods:         periods,
		Currency:        series.Currency,
		DisplayUnit:     series.DisplayUnit,
		USDUnitPrice:    &usd,
	}

	background := ""
	if o.knowledge != nil {
		background = o.knowledge.EnhancedContext(ctx, commodity, country, "price")
	}
	res.Interpretation = o.interpret(ctx, res, dual, background, fileContext)
	return res
}

// forecastTargets runs the three target series concurrently. They only read series.
func (o *Orchestrator) forecastTargets(ctx context.Context, series Series, periods int) (DualForecast, error) {
	var dual DualForecast
	g, _ := errgroup.WithContext(ctx)

	targets := []struct {
		label string
		dst   *Forecast
		value func(Point) float64
	}{
		{"unit_price", &dual.UnitPrice, func(p Point) float64 { return p.UnitPrice }},
		{"revenue", &dual.TotalRevenue, func(p Point) float64 { return p.TotalPrice }},
		{"volume", &dual.VolumeKg, func(p Point) float64 { return p.QuantityKg }},
	}
	for _, t := range targets {
		t := t
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("%s: panic: %v", t.label, rec)
				}
			}()
			f := o.runner.Run(series.Target(t.value), periods, t.label)
			if !allFinite(f.Mean) {
				return fmt.Errorf("%s: non-finite forecast", t.label)
			}
			*t.dst = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DualForecast{}, err
	}
	return dual, nil
}

func (o *Orchestrator) confidence(rows int, dual DualForecast) string {
	if rows >= o.cfg.HighConfidenceRows && !dual.Degraded() {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}

// Display renders the one-line forecast summary.
func Display(d DualForecast, currency, unit string) string {
	return fmt.Sprintf("Unit Price: %.2f %s/kg | Revenue: %.0f %s | Volume: %.0f %s",
		d.UnitPrice.PointEstimate, currency,
		d.TotalRevenue.PointEstimate, currency,
		d.VolumeKg.PointEstimate, unit)
}

func (o *Orchestrator) interpret(ctx context.Context, res Result, dual DualForecast, background, fileContext string) string {
	fallback := func(reason error) string {
		o.log.WithError(reason).Warn("interpretation failed, using economist narrative")
		return o.narrate(ctx, res.Query, res.Commodity, res.Country)
	}

	if o.cfg.RAGContextChars > 0 {
		background = utils.TruncateRunes(background, o.cfg.RAGContextChars)
	}
	rendered, err := o.prompts.Render(prompt.ForecastInterpret, prompt.Vars{
		"Commodity":   res.Commodity,
		"Country":     res.Country,
		"UnitPrice":   dual.UnitPrice.PointEstimate,
		"Currency":    res.Currency,
		"Revenue":     dual.TotalRevenue.PointEstimate,
		"Volume":      dual.VolumeKg.PointEstimate,
		"Unit":        res.DisplayUnit,
		"Periods":     res.Periods,
		"Method":      string(dual.UnitPrice.Method),
		"Context":     background,
		"FileContext": fileContext,
	})
	if err != nil {
		return fallback(err)
	}

	text, err := o.gen.Generate(ctx, agent.Forecast, rendered, agent.GenerateConfig{MaxTokens: 1024, Temperature: agent.Temp(0.3)})
	if err != nil {
		return fallback(err)
	}
	plain := utils.PlainText(text)
	if plain == "" {
		return fallback(errors.New("empty interpretation"))
	}
	return plain
}

func (o *Orchestrator) narrate(ctx context.Context, query, commodity, country string) string {
	if o.narrator == nil {
		return ""
	}
	return o.narrator.Answer(ctx, economist.Request{
		Query:     query,
		AgentType: agent.Forecast,
		Commodity: commodity,
		Country:   country,
	})
}

func (o *Orchestrator) deferred(ctx context.Context, query, commodity, country, reason string) Result {
	o.log.WithFields(logrus.Fields{"commodity": commodity, "country": country, "reason": reason}).
		Warn("forecast deferred to economist narrative")
	return Result{
		Type:            "forecast",
		Query:           query,
		Outcome:         OutcomeDeferred,
		Commodity:       commodity,
		Country:         country,
		ForecastDisplay: deferredDisplay,
		Interpretation:  o.narrate(ctx, query, commodity, country),
		ConfidenceLevel: ConfidenceMedium,
		DataPointsUsed:  0,
		Source:          sourceWeb,
		DeferReason:     reason,
	}
}
