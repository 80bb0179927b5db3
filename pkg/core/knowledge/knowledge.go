// Package knowledge answers questions from the embedded policy and trade
// document corpus.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"zeno_agent/pkg/core/agent"
	"zeno_agent/pkg/core/llm"
	"zeno_agent/pkg/core/prompt"
	"zeno_agent/pkg/core/store"
	"zeno_agent/pkg/core/utils"
)

const (
	DefaultTopK = 5

	EmptyQuery       = "Empty query provided."
	NoDocuments      = "No relevant documents found."
	NoContext        = "No recent policy or trade context found."
	NoAnswer         = "I couldn't generate a response from the provided context."
	SynthesisFailure = "I encountered an error while synthesizing the final answer from the available context."

	sourceSeparator = "\n\n--- Knowledge Base Source ---\n\n"
	contextLimit    = 2000
)

// VectorSearcher ranks stored chunks against a query embedding.
type VectorSearcher interface {
	SearchEmbeddings(ctx context.Context, vector []float32, topK int) ([]store.Document, error)
}

type Retriever struct {
	search   VectorSearcher
	embedder llm.Embedder
	gen      agent.Generator
	prompts  *prompt.Registry
	log      *logrus.Entry
}

func NewRetriever(search VectorSearcher, embedder llm.Embedder, gen agent.Generator, prompts *prompt.Registry, logger *logrus.Logger) *Retriever {
	if logger == nil {
		logger = logrus.New()
	}
	return &Retriever{
		search:   search,
		embedder: embedder,
		gen:      gen,
		prompts:  prompts,
		log:      logger.WithField("component", "knowledge"),
	}
}

// Documents embeds query and returns the topK nearest chunks.
func (r *Retriever) Documents(ctx context.Context, query string, topK int) ([]store.Document, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	docs, err := r.search.SearchEmbeddings(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return docs, nil
}

// Evidence returns the merged content of the topK chunks, or "" on any failure.
func (r *Retriever) Evidence(ctx context.Context, query string, topK int) string {
	docs, err := r.Documents(ctx, query, topK)
	if err != nil {
		r.log.WithError(err).Warn("evidence lookup failed")
		return ""
	}
	return MergeContent(docs)
}

// Ask answers query from the knowledge base and any uploaded document text.
// Each retrieved chunk is first condensed against the query.
func (r *Retriever) Ask(ctx context.Context, query, fileContext string) string {
	return r.answer(ctx, query, fileContext, r.condensed(ctx, query))
}

func (r *Retriever) condensed(ctx context.Context, query string) []string {
	if strings.TrimSpace(query) == "" {
		return []string{EmptyQuery}
	}
	docs, err := r.Documents(ctx, query, DefaultTopK)
	if err != nil {
		r.log.WithError(err).Warn("rag query failed")
		return []string{"RAG query failed: " + err.Error()}
	}
	if len(docs) == 0 {
		return []string{NoDocuments}
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, r.summarize(ctx, query, d.Content))
	}
	return out
}

// summarize falls back to the raw chunk when generation fails.
func (r *Retriever) summarize(ctx context.Context, query, chunk string) string {
	rendered, err := r.prompts.Render(prompt.RAGSummarize, prompt.Vars{"Query": query, "Chunk": chunk})
	if err != nil {
		return chunk
	}
	text, err := r.gen.Generate(ctx, agent.RAG, rendered, agent.GenerateConfig{})
	if err != nil {
		r.log.WithError(err).Warn("chunk summarization failed")
		return chunk
	}
	if text = strings.TrimSpace(text); text == "" {
		return chunk
	}
	return text
}

func (r *Retriever) answer(ctx context.Context, query, fileContext string, chunks []string) string {
	rendered, err := r.prompts.Render(prompt.RAGAnswer, prompt.Vars{
		"Query":            query,
		"FileContext":      fileContext,
		"KnowledgeContext": strings.Join(chunks, sourceSeparator),
	})
	if err != nil {
		r.log.WithError(err).Error("render rag answer")
		return SynthesisFailure
	}
	text, err := r.gen.Generate(ctx, agent.RAG, rendered, agent.GenerateConfig{})
	if err != nil {
		r.log.WithError(err).Warn("final synthesis failed")
		return SynthesisFailure
	}
	if text = strings.TrimSpace(text); text == "" {
		return NoAnswer
	}
	return text
}

// ContextQueries are the background searches behind EnhancedContext.
func ContextQueries(commodity, country, metric string) []string {
	return []string{
		fmt.Sprintf("%s %s %s policy subsidies tariffs regulations export restrictions", commodity, metric, country),
		fmt.Sprintf("%s global market trends 2024 2025 supply demand", commodity),
		fmt.Sprintf("%s export partners %s trade agreements", country, commodity),
		fmt.Sprintf("%s production challenges %s climate drought disease", commodity, country),
	}
}

// EnhancedContext gathers policy and market background for a commodity in a
// country. Only substantial chunks that open with a capital letter are kept.
func (r *Retriever) EnhancedContext(ctx context.Context, commodity, country, metric string) string {
	seen := make(map[string]bool)
	var parts []string
	for _, q := range ContextQueries(commodity, country, metric) {
		docs, err := r.Documents(ctx, q, 2)
		if err != nil {
			r.log.WithError(err).Debug("context query failed")
			continue
		}
		for _, d := range docs {
			c := d.Content
			if len(c) <= 100 || !startsUpper(c) || seen[c] {
				continue
			}
			seen[c] = true
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return NoContext
	}
	return utils.TruncateRunes(strings.Join(parts, " "), contextLimit)
}

// MergeContent joins chunk texts, skipping fragments under 20 characters and
// chunks whose first 100 characters were already seen.
func MergeContent(docs []store.Document) string {
	seen := make(map[string]bool)
	var merged []string
	for _, d := range docs {
		c := strings.TrimSpace(d.Content)
		if len(c) < 20 {
			continue
		}
		key := c
		if len(key) > 100 {
			key = key[:100]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, c)
	}
	return strings.Join(merged, " ")
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
