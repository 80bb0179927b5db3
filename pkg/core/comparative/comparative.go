// Package comparative answers country-versus-country questions from local
// trade data, knowledge base evidence and a synthesis prompt.
package comparative

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/economist"
	"zeno_agent/pkg/core/entity"
	"zeno_agent/pkg/core/prompt"
	"zeno_agent/pkg/core/store"
	"zeno_agent/pkg/core/utils"
)

const (
	// Indicator is the trade metric summarised per country.
	Indicator = "exports"
	// EvidenceTopK is how many knowledge chunks back a brief.
	EvidenceTopK = 5

	fileContextChars = 2000
	noDataLine       = "No structured data in local database; supplement with expert knowledge."
)

var synthesisConfig = agent.GenerateConfig{MaxTokens: 4000, Temperature: agent.Temp(0.15)}

// EvidenceSource returns merged knowledge base text for a query, or "".
type EvidenceSource interface {
	Evidence(ctx context.Context, query string, topK int) string
}

// Result is the comparative handler output.
type Result struct {
	Type     string          `json:"type"`
	Query    string          `json:"query"`
	Entities entity.Entities `json:"entities"`
	Response string          `json:"response"`
}

// CountrySummary is the yearly roll-up of one country's trade rows. Text is
// empty when the store had nothing usable.
type CountrySummary struct {
	Country string
	Text    string
	CAGR    float64
}

type Deps struct {
	Store     store.TradeStore
	Extractor *entity.Extractor
	Evidence  EvidenceSource
	Generator agent.Generator
	Prompts   *prompt.Registry
	Narrator  economist.Narrator
	Logger    *logrus.Logger
}

type Handler struct {
	store     store.TradeStore
	extractor *entity.Extractor
	evidence  EvidenceSource
	gen       agent.Generator
	prompts   *prompt.Registry
	narrator  economist.Narrator
	log       *logrus.Entry
}

func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	if d.Extractor == nil {
		d.Extractor = entity.NewExtractor("")
	}
	return &Handler{
		store:     d.Store,
		extractor: d.Extractor,
		evidence:  d.Evidence,
		gen:       d.Generator,
		prompts:   d.Prompts,
		narrator:  d.Narrator,
		log:       d.Logger.WithField("component", "comparative"),
	}
}

// Run builds the comparative brief. It never fails: missing data and
// generation errors fall through to the economist narrative.
func (h *Handler) Run(ctx context.Context, query, fileContext string) Result {
	query = strings.TrimSpace(query)
	ents := h.extractor.Extract(query)

	summaries := h.Summaries(ctx, ents)

	var evidence string
	if h.evidence != nil {
		evidence = h.evidence.Evidence(ctx, query, EvidenceTopK)
	}
	if fileContext != "" {
		evidence = fmt.Sprintf("Uploaded document:\n%s\n\nPolicy reports:\n%s", utils.TruncateRunes(fileContext, fileContextChars), evidence)
	}

	return Result{
		Type:     "comparative",
		Query:    query,
		Entities: ents,
		Response: h.synthesize(ctx, query, ents, summaries, evidence),
	}
}

// Summaries loads the export series of each extracted country concurrently.
// Lookup or query failures leave that country's text empty.
func (h *Handler) Summaries(ctx context.Context, ents entity.Entities) []CountrySummary {
	out := make([]CountrySummary, len(ents.Countries))
	g, gctx := errgroup.WithContext(ctx)
	for i, country := range ents.Countries {
		out[i].Country = country
		g.Go(func() error {
			rows, err := h.exports(gctx, country, ents.Commodity)
			if err != nil {
				h.log.WithError(err).WithField("country", country).Warn("trade lookup failed")
				return nil
			}
			out[i].Text, out[i].CAGR = Summarize(rows)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (h *Handler) exports(ctx context.Context, country, commodity string) ([]store.Row, error) {
	if h.store == nil {
		return nil, fmt.Errorf("no trade store configured")
	}
	countryID, err := h.store.LookupCountryID(ctx, country)
	if err != nil {
		return nil, err
	}
	productID, err := h.store.LookupProductID(ctx, commodity)
	if err != nil {
		return nil, err
	}
	indicatorID, err := h.store.LookupIndicatorID(ctx, Indicator)
	if err != nil {
		return nil, err
	}
	series, err := h.store.GetTradeSeries(ctx, store.SeriesQuery{CountryID: countryID, ProductID: productID, IndicatorID: indicatorID})
	if err != nil {
		return nil, err
	}
	return series.Rows, nil
}

type yearAgg struct {
	quantity float64
	priceSum float64
	n        int
}

// Summarize rolls rows up by calendar year: quantities are summed, prices
// averaged. Rows missing a date, quantity or price are skipped. It returns
// "" when nothing survives.
func Summarize(rows []store.Row) (string, float64) {
	years := map[int]*yearAgg{}
	for _, row := range rows {
		ts, ok := row.Time("date")
		if !ok {
			continue
		}
		qty, ok := row.Float("quantity")
		if !ok {
			continue
		}
		price, ok := row.Float("price")
		if !ok {
			continue
		}
		agg := years[ts.Year()]
		if agg == nil {
			agg = &yearAgg{}
			years[ts.Year()] = agg
		}
		agg.quantity += qty
		agg.priceSum += price
		agg.n++
	}
	if len(years) == 0 {
		return "", 0
	}

	keys := make([]int, 0, len(years))
	for y := range years {
		keys = append(keys, y)
	}
	sort.Ints(keys)

	var total, priceMeans float64
	for _, y := range keys {
		total += years[y].quantity
		priceMeans += years[y].priceSum / float64(years[y].n)
	}
	avgPrice := priceMeans / float64(len(keys))

	first, last := keys[0], keys[len(keys)-1]
	var cagr float64
	if len(keys) > 1 {
		cagr = CAGR(years[first].quantity, years[last].quantity, last-first)
	}

	text := fmt.Sprintf("Period %d-%d: total %s units, avg price KES %s, CAGR %.2f%%",
		first, last, humanize.Commaf(total), humanize.FormatFloat("#,###.##", avgPrice), cagr)
	return text, cagr
}

// CAGR is the compound annual growth rate in percent. Non-positive inputs
// yield 0.
func CAGR(start, end float64, periods int) float64 {
	if start <= 0 || end <= 0 || periods <= 0 {
		return 0
	}
	return (math.Pow(end/start, 1/float64(periods)) - 1) * 100
}

// BuildContext renders the per-country lines followed by any evidence.
func BuildContext(summaries []CountrySummary, evidence string) string {
	lines := make([]string, 0, len(summaries))
	for _, s := range summaries {
		if strings.TrimSpace(s.Text) != "" {
			lines = append(lines, s.Country+": "+s.Text)
		} else {
			lines = append(lines, s.Country+": "+noDataLine)
		}
	}
	out := strings.Join(lines, "\n")
	if evidence != "" {
		out += "\n\nKnowledge base evidence:\n" + evidence
	}
	return out
}

func (h *Handler) synthesize(ctx context.Context, query string, ents entity.Entities, summaries []CountrySummary, evidence string) string {
	hasData := false
	for _, s := range summaries {
		if strings.TrimSpace(s.Text) != "" {
			hasData = true
			break
		}
	}
	if !hasData && strings.TrimSpace(evidence) == "" {
		h.log.Info("no local data, using economist narrative")
		return h.fallback(ctx, query, ents)
	}

	if h.gen == nil || h.prompts == nil {
		return h.fallback(ctx, query, ents)
	}
	p, err := h.prompts.Render(prompt.ComparativeSynthesis, prompt.Vars{
		"Query":   query,
		"Context": BuildContext(summaries, evidence),
	})
	if err != nil {
		h.log.WithError(err).Error("render synthesis prompt")
		return h.fallback(ctx, query, ents)
	}
	out, err := h.gen.Generate(ctx, agent.Comparative, p, synthesisConfig)
	if err != nil {
		h.log.WithError(err).Warn("synthesis failed")
		return h.fallback(ctx, query, ents)
	}
	if out = strings.TrimSpace(out); out == "" {
		return h.fallback(ctx, query, ents)
	}
	return out
}

func (h *Handler) fallback(ctx context.Context, query string, ents entity.Entities) string {
	if h.narrator == nil {
		return economist.EmptyResponse
	}
	return h.narrator.Answer(ctx, economist.Request{
		Query:     query,
		AgentType: agent.Comparative,
		Commodity: ents.Commodity,
		Country:   strings.Join(ents.Countries, " vs "),
	})
}
