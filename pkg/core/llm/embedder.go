package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sirupsen/logrus"

	"zeno_agent/pkg/core/retry"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedFunc is the raw embedding call wrapped by CachedEmbedder.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// ErrEmptyText is returned when asked to embed blank input.
var ErrEmptyText = errors.New("llm: cannot embed empty text")

// CachedEmbedder memoises embeddings per text and retries failed calls.
type CachedEmbedder struct {
	embed   EmbedFunc
	cache   *ristretto.Cache
	ttl     time.Duration
	retryer *retry.Retryer
}

// NewCachedEmbedder wraps fn with a ristretto cache holding up to maxItems
// vectors for ttl each.
func NewCachedEmbedder(fn EmbedFunc, maxItems int64, ttl time.Duration, retryer *retry.Retryer) (*CachedEmbedder, error) {
	if maxItems <= 0 {
		maxItems = 2000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	if retryer == nil {
		cfg := retry.Default("embedder")
		cfg.Retryable = func(err error) bool { return !errors.Is(err, ErrMissingAPIKey) }
		retryer = retry.New(cfg, logrus.New())
	}
	return &CachedEmbedder{embed: fn, cache: cache, ttl: ttl, retryer: retryer}, nil
}

// NewGeminiEmbedder embeds with the Gemini embedding model.
func NewGeminiEmbedder(p *GeminiProvider, model string, maxItems int64, ttl time.Duration, logger *logrus.Logger) (*CachedEmbedder, error) {
	cfg := retry.Default("embedder")
	cfg.Retryable = func(err error) bool { return !errors.Is(err, ErrMissingAPIKey) }
	fn := func(ctx context.Context, text string) ([]float32, error) {
		return p.Embed(ctx, model, text)
	}
	return NewCachedEmbedder(fn, maxItems, ttl, retry.New(cfg, logger))
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if v, ok := e.cache.Get(text); ok {
		return v.([]float32), nil
	}

	var vec []float32
	err := e.retryer.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = e.embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.cache.SetWithTTL(text, vec, 1, e.ttl)
	return vec, nil
}

// Close releases the cache.
func (e *CachedEmbedder) Close() {
	e.cache.Close()
}
