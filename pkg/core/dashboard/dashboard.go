// Package dashboard serves the economist dashboard snapshot and generates
// commentary for its panels.
package dashboard

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/prompt"
)

// Panel names.
const (
	SupplyGap         = "supply_gap"
	ImportCollision   = "import_collision"
	PolicyHeatmap     = "policy_heatmap"
	RegionalArbitrage = "regional_arbitrage"
	RainfallShock     = "rainfall_shock"
	Logistics         = "logistics"
)

// Panels lists every panel with a commentary prompt.
var Panels = []string{SupplyGap, ImportCollision, PolicyHeatmap, RegionalArbitrage, RainfallShock, Logistics}

const (
	DefaultQuery = "Provide a full analysis of this panel."
	NoAnalysis   = "No analysis could be generated. Please try again."
)

var analysisConfig = agent.GenerateConfig{MaxTokens: 2048, Temperature: agent.Temp(0.2)}

//go:embed data.json
var snapshot []byte

// Data returns the static dashboard dataset as JSON. Key order is preserved.
func Data() []byte {
	out := make([]byte, len(snapshot))
	copy(out, snapshot)
	return out
}

// Analysis is the commentary for one panel.
type Analysis struct {
	Panel              string   `json:"panel"`
	Analysis           string   `json:"analysis"`
	SuggestedFollowups []string `json:"suggested_followups"`
}

type Analyst struct {
	gen     agent.Generator
	prompts *prompt.Registry
	log     *logrus.Entry
}

func NewAnalyst(gen agent.Generator, prompts *prompt.Registry, logger *logrus.Logger) *Analyst {
	if logger == nil {
		logger = logrus.New()
	}
	return &Analyst{gen: gen, prompts: prompts, log: logger.WithField("component", "dashboard")}
}

// ResolvePanel lower-cases name and maps unknown panels to SupplyGap.
func ResolvePanel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range Panels {
		if p == name {
			return p
		}
	}
	return SupplyGap
}

// Analyze generates commentary for panel. Generation errors are returned to
// the caller; an empty generation yields NoAnalysis.
func (a *Analyst) Analyze(ctx context.Context, panel, query string) (Analysis, error) {
	panel = ResolvePanel(panel)
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}

	p, err := a.prompts.Render(prompt.DashboardPanel(panel), prompt.Vars{"Query": query})
	if err != nil {
		return Analysis{}, fmt.Errorf("render %s prompt: %w", panel, err)
	}
	out, err := a.gen.Generate(ctx, agent.Dashboard, p, analysisConfig)
	if err != nil {
		a.log.WithError(err).WithField("panel", panel).Error("panel analysis failed")
		return Analysis{}, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		out = NoAnalysis
	}
	return Analysis{Panel: panel, Analysis: out, SuggestedFollowups: Followups(panel)}, nil
}

// Followups returns the three suggested follow-up questions for a panel.
func Followups(panel string) []string {
	label := strings.ReplaceAll(panel, "_", " ")
	return []string{
		fmt.Sprintf("What policy should Kenya adopt given this %s situation?", label),
		fmt.Sprintf("How does this compare to last year's %s data?", label),
		"Which East African country is most affected by this trend?",
	}
}
