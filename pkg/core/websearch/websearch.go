// Package websearch fetches organic search results used to ground narrative answers.
package websearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Result is one organic search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Searcher returns up to numResults hits for query. Implementations never
// fail: transport or parse errors yield an empty slice.
type Searcher interface {
	Search(ctx context.Context, query string, numResults int) []Result
}

// Backend is a raw search client that may fail.
type Backend interface {
	Name() string
	Query(ctx context.Context, query string, numResults int) ([]Result, error)
}

// Client rate-limits a Backend and absorbs its failures.
type Client struct {
	backend Backend
	limiter *rate.Limiter
	log     *logrus.Entry
}

// New wraps backend with a token bucket of rps requests per second.
func New(backend Backend, rps float64, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		backend: backend,
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.WithField("component", "websearch"),
	}
}

func (c *Client) Search(ctx context.Context, query string, numResults int) []Result {
	if c == nil || c.backend == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}
	results, err := c.backend.Query(ctx, query, numResults)
	if err != nil {
		c.log.WithError(err).WithField("backend", c.backend.Name()).Warn("search failed")
		return nil
	}
	if numResults > 0 && len(results) > numResults {
		results = results[:numResults]
	}
	return results
}

// Nop is a Searcher that never returns results.
type Nop struct{}

func (Nop) Search(context.Context, string, int) []Result { return nil }

// FormatResults renders hits as numbered source blocks for a prompt.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[Web Source %d] %s\n%s\nURL: %s\n\n", i+1, r.Title, r.Snippet, r.Link)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
