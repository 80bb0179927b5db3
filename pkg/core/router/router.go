// Package router classifies incoming queries into handler intents.
package router

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/prompt"
)

// Intent is the closed set of query purposes.
type Intent string

const (
	IntentShortcut    Intent = "shortcut"
	IntentComparative Intent = "comparative"
	IntentForecast    Intent = "forecast"
	IntentScenario    Intent = "scenario"
	IntentRAG         Intent = "rag"
	IntentTrivial     Intent = "trivial"
)

// Tier records which layer produced a decision.
type Tier string

const (
	TierShortcut   Tier = "shortcut"
	TierClassifier Tier = "classifier"
	TierKeywords   Tier = "keywords"
)

// Greeting answers short off-topic queries when the classifier is unavailable.
const Greeting = "Hello! I specialize in East African agricultural trade data. How can I help?"

// Decision is the outcome of Classify. Response carries the direct answer for
// trivial queries; Shortcut is set for IntentShortcut.
type Decision struct {
	Intent   Intent
	Response string
	Shortcut *Shortcut
	Tier     Tier
}

var tags = []struct {
	tag    string
	intent Intent
}{
	{"[COMPARATIVE]", IntentComparative},
	{"[FORECAST]", IntentForecast},
	{"[SCENARIO]", IntentScenario},
	{"[RAG]", IntentRAG},
}

// domainKeywords keep a short query out of the trivial bucket.
var domainKeywords = []string{
	"export", "import", "price", "trade", "coffee", "maize",
	"tanzania", "kenya", "forecast", "compare", "supply", "gap",
	"collision", "arbitrage", "logistics", "rainfall", "harvest",
	"farm gate", "simulate", "policy", "shock",
}

const maxTrivialTokens = 6

type Router struct {
	gen       agent.Generator
	prompts   *prompt.Registry
	shortcuts []Shortcut
	log       *logrus.Entry
}

func New(gen agent.Generator, prompts *prompt.Registry, shortcuts []Shortcut, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.New()
	}
	return &Router{
		gen:       gen,
		prompts:   prompts,
		shortcuts: shortcuts,
		log:       logger.WithField("component", "router"),
	}
}

// MatchShortcut returns the first shortcut whose predicate accepts query.
func (r *Router) MatchShortcut(query string) (*Shortcut, bool) {
	for i := range r.shortcuts {
		if r.shortcuts[i].Match(query) {
			return &r.shortcuts[i], true
		}
	}
	return nil, false
}

// Classify never fails. Shortcuts are checked first, then the classifier,
// then the keyword heuristic if the classifier call errors.
func (r *Router) Classify(ctx context.Context, query string) Decision {
	if sc, ok := r.MatchShortcut(query); ok {
		return Decision{Intent: IntentShortcut, Shortcut: sc, Tier: TierShortcut}
	}

	raw, err := r.classify(ctx, query)
	if err != nil {
		r.log.WithError(err).Warn("classifier unavailable, using keyword heuristic")
		return KeywordDecision(query)
	}
	d := ParseClassification(raw)
	r.log.WithField("intent", d.Intent).Debug("classified")
	return d
}

func (r *Router) classify(ctx context.Context, query string) (string, error) {
	rendered, err := r.prompts.Render(prompt.RouterClassify, prompt.Vars{"Query": query})
	if err != nil {
		return "", err
	}
	return r.gen.Generate(ctx, agent.Router, rendered, agent.GenerateConfig{})
}

// ParseClassification maps a leading bracket tag to its intent. Untagged text
// is a direct answer to a trivial query.
func ParseClassification(raw string) Decision {
	text := strings.TrimSpace(raw)
	for _, t := range tags {
		if strings.HasPrefix(text, t.tag) {
			return Decision{
				Intent:   t.intent,
				Response: strings.TrimSpace(strings.TrimPrefix(text, t.tag)),
				Tier:     TierClassifier,
			}
		}
	}
	return Decision{Intent: IntentTrivial, Response: text, Tier: TierClassifier}
}

// KeywordDecision treats short queries without domain vocabulary as small
// talk and everything else as a knowledge lookup.
func KeywordDecision(query string) Decision {
	q := strings.ToLower(query)
	if len(strings.Fields(q)) <= maxTrivialTokens && !containsAny(q, domainKeywords...) {
		return Decision{Intent: IntentTrivial, Response: Greeting, Tier: TierKeywords}
	}
	return Decision{Intent: IntentRAG, Tier: TierKeywords}
}
