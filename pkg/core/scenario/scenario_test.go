package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/prompt"
	"zeno_agent/pkg/core/store"
)

type MockGenerator struct {
	GenerateFunc func(ctx context.Context, agentType, prompt string, cfg agent.GenerateConfig) (string, error)
	Calls        int
}

func (m *MockGenerator) Generate(ctx context.Context, agentType, prompt string, cfg agent.GenerateConfig) (string, error) {
	m.Calls++
	return m.GenerateFunc(ctx, agentType, prompt, cfg)
}

type MockEvidence struct {
	Text string
}

func (m MockEvidence) Evidence(context.Context, string, int) string { return m.Text }

func seeded(t *testing.T) *store.SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	kenya, _ := s.AddCountry(ctx, "Kenya")
	maize, _ := s.AddProduct(ctx, "Maize")
	price, _ := s.AddIndicator(ctx, "price")
	qty, _ := s.AddIndicator(ctx, "quantity")
	gdp, _ := s.AddIndicator(ctx, "GDP")
	cpi, _ := s.AddIndicator(ctx, "CPI")

	d := func(m time.Month) time.Time { return time.Date(2023, m, 1, 0, 0, 0, 0, time.UTC) }
	recs := []store.TradeRecord{
		{CountryID: kenya, ProductID: maize, IndicatorID: price, Date: d(1), Quantity: 1, Price: 1000, Currency: "KES"},
		{CountryID: kenya, ProductID: maize, IndicatorID: price, Date: d(2), Quantity: 1, Price: 2000, Currency: "KES"},
		{CountryID: kenya, ProductID: maize, IndicatorID: qty, Date: d(1), Quantity: 1200, Price: 1, Currency: "KES"},
		{CountryID: kenya, ProductID: maize, IndicatorID: qty, Date: d(2), Quantity: 300.4, Price: 1, Currency: "KES"},
	}
	if err := s.AddTradeRecords(ctx, recs); err != nil {
		t.Fatal(err)
	}
	for _, m := range []struct {
		id   int64
		stat store.MacroStat
	}{
		{gdp, store.MacroStat{Year: 2014, Value: 1}},
		{gdp, store.MacroStat{Year: 2021, Value: 100000}},
		{gdp, store.MacroStat{Year: 2022, Value: 110000.5}},
		{cpi, store.MacroStat{Year: 2010, Value: 5}},
	} {
		if err := s.AddMacroStat(ctx, kenya, m.id, m.stat); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func registry(t *testing.T) *prompt.Registry {
	t.Helper()
	reg, err := prompt.Default("")
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestExtractEntities(t *testing.T) {
	tests := []struct {
		query, commodity, country string
	}{
		{"What if Kenya subsidizes coffee production?", "coffee", "kenya"},
		{"what if UGANDA taxes Sugar imports", "sugar", "uganda"},
		{"what if fuel prices rise", "", ""},
		{"what if maize prices double", "maize", ""},
	}
	for _, tt := range tests {
		c, k := ExtractEntities(tt.query)
		if c != tt.commodity || k != tt.country {
			t.Errorf("ExtractEntities(%q) = (%q,%q), want (%q,%q)", tt.query, c, k, tt.commodity, tt.country)
		}
	}
}

func TestRun_MissingEntities(t *testing.T) {
	gen := &MockGenerator{GenerateFunc: func(context.Context, string, string, agent.GenerateConfig) (string, error) {
		return "x", nil
	}}
	h := New(nil, nil, gen, registry(t), nil)

	res := h.Run(context.Background(), "what if maize prices double", "")
	if res.Response != Guidance || res.Followup != GuidanceFollowup || res.Entities != nil {
		t.Errorf("unexpected %+v", res)
	}
	if gen.Calls != 0 {
		t.Error("generator should not be called")
	}
}

func TestStructuredContext(t *testing.T) {
	h := New(seeded(t), nil, nil, nil, nil)
	got := h.StructuredContext(context.Background(), "maize", "kenya")
	want := "Average historical price: KES 1,500.00 per unit. | Historical export volume: 1,500 units. | GDP (2022): 110,000.50"
	if got != want {
		t.Errorf("StructuredContext =\n%q\nwant\n%q", got, want)
	}

	if got := h.StructuredContext(context.Background(), "tea", "rwanda"); got != NoStructuredData {
		t.Errorf("unknown entities gave %q", got)
	}
}

func TestRun_Analysis(t *testing.T) {
	var gotPrompt string
	gen := &MockGenerator{GenerateFunc: func(_ context.Context, agentType, p string, _ agent.GenerateConfig) (string, error) {
		if agentType != agent.Scenario {
			t.Errorf("agent type = %s", agentType)
		}
		gotPrompt = p
		return " Prices fall in year one. ", nil
	}}
	h := New(seeded(t), MockEvidence{}, gen, registry(t), nil)

	res := h.Run(context.Background(), "What if Kenya removes the maize import duty?", "Treasury memo")
	if res.LLMAnalysis != "Prices fall in year one." || res.Followup != Followup {
		t.Errorf("unexpected %+v", res)
	}
	if res.Entities == nil || res.Entities.Commodity != "maize" || res.Entities.Country != "kenya" {
		t.Errorf("entities = %+v", res.Entities)
	}
	for _, want := range []string{
		"Uploaded document:\nTreasury memo\n\nStructured Economic Data: Average historical price",
		"Policy/Documents: " + NoDocuments,
		"What if Kenya removes the maize import duty?",
	} {
		if !strings.Contains(gotPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestRun_Fallbacks(t *testing.T) {
	tests := []struct {
		name   string
		out    string
		err    error
		prefix string
	}{
		{"empty", "", nil, "Scenario analysis for coffee in Rwanda requires additional context."},
		{"error", "", errors.New("boom"), "A coffee policy scenario in Rwanda would affect production"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &MockGenerator{GenerateFunc: func(context.Context, string, string, agent.GenerateConfig) (string, error) {
				return tt.out, tt.err
			}}
			h := New(nil, MockEvidence{Text: "Coffee board reform."}, gen, registry(t), nil)
			res := h.Run(context.Background(), "what if rwanda cuts coffee levies", "")
			if !strings.HasPrefix(res.LLMAnalysis, tt.prefix) {
				t.Errorf("analysis = %q", res.LLMAnalysis)
			}
		})
	}
}
