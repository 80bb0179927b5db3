// Package store reads trade observations, macro statistics and knowledge
// embeddings, and records query runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a country, product or indicator lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// Row is one result row keyed by column name. Numeric columns are float64,
// dates are time.Time or string depending on the driver.
type Row map[string]any

// TradeSeries is the raw result of a trade data range query.
type TradeSeries struct {
	Columns []string
	Rows    []Row
}

// HasColumn reports whether the result carried the named column.
func (s TradeSeries) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// SeriesQuery selects trade rows. Zero years leave the range open.
type SeriesQuery struct {
	CountryID   int64
	ProductID   int64
	IndicatorID int64
	StartYear   int
	EndYear     int
}

type MacroStat struct {
	Year  int
	Value float64
}

// Document is a knowledge chunk returned by vector search.
type Document struct {
	ID      string
	Content string
	Source  string
	Score   float64
}

// TradeStore is the read side used by the analytical handlers.
type TradeStore interface {
	LookupCountryID(ctx context.Context, name string) (int64, error)
	LookupProductID(ctx context.Context, name string) (int64, error)
	LookupIndicatorID(ctx context.Context, metric string) (int64, error)
	GetTradeSeries(ctx context.Context, q SeriesQuery) (TradeSeries, error)
	GetMacroStats(ctx context.Context, countryID, indicatorID int64, startYear int) ([]MacroStat, error)
	SearchEmbeddings(ctx context.Context, vector []float32, topK int) ([]Document, error)
}

// Run is one handled query.
type Run struct {
	ID             string
	ConversationID string
	UserInput      string
	FinalOutput    string
	Status         string
	StartedAt      time.Time
	CompletedAt    time.Time
}

// Step is one stage inside a run.
type Step struct {
	RunID   string
	Order   int
	Type    string
	Content string
}

// RunWriter persists runs and their steps.
type RunWriter interface {
	InsertRun(ctx context.Context, run Run) error
	InsertStep(ctx context.Context, step Step) error
}

// EncodeVector renders a vector in pgvector's text form.
func EncodeVector(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%.12f", x)
	}
	sb.WriteByte(']')
	return sb.String()
}

func notFound(kind, name string) error {
	return fmt.Errorf("%s %q: %w", kind, name, ErrNotFound)
}
