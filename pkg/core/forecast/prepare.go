package forecast

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"zeno_agent/pkg/core/store"
)

// Point is one cleaned observation.
type Point struct {
	Time       time.Time `json:"timestamp"`
	QuantityKg float64   `json:"quantity_kg"`
	TotalPrice float64   `json:"total_price"`
	UnitPrice  float64   `json:"unit_price"`
}

// Series is the cleaned, unit-converted, date-sorted input to the models.
type Series struct {
	Points      []Point
	Currency    string
	DisplayUnit string
	UnitSymbol  string
}

// Target extracts one target column as model input.
func (s Series) Target(value func(Point) float64) []Observation {
	out := make([]Observation, len(s.Points))
	for i, p := range s.Points {
		out[i] = Observation{Time: p.Time, Value: value(p)}
	}
	return out
}

const (
	defaultCurrency   = "KES"
	defaultUnitName   = "tonnes"
	defaultUnitSymbol = "t"
)

// Preparer turns raw trade rows into a Series.
type Preparer struct {
	store     store.TradeStore
	indicator string
	minRows   int
	log       *logrus.Entry
}

func NewPreparer(s store.TradeStore, indicator string, minRows int, logger *logrus.Logger) *Preparer {
	if logger == nil {
		logger = logrus.New()
	}
	if indicator == "" {
		indicator = "exports"
	}
	if minRows < 2 {
		minRows = 8
	}
	return &Preparer{
		store:     s,
		indicator: indicator,
		minRows:   minRows,
		log:       logger.WithField("component", "forecast.prepare"),
	}
}

// Prepare fetches the export series for a country/product pair and cleans it.
func (p *Preparer) Prepare(ctx context.Context, countryID, productID int64) (Series, error) {
	indicatorID, err := p.store.LookupIndicatorID(ctx, p.indicator)
	if err != nil {
		return Series{}, fmt.Errorf("indicator %q: %w", p.indicator, err)
	}
	raw, err := p.store.GetTradeSeries(ctx, store.SeriesQuery{
		CountryID:   countryID,
		ProductID:   productID,
		IndicatorID: indicatorID,
	})
	if err != nil {
		return Series{}, err
	}
	return p.Clean(raw)
}

// Clean validates and normalizes rows already fetched from the store.
func (p *Preparer) Clean(raw store.TradeSeries) (Series, error) {
	if len(raw.Rows) == 0 {
		return Series{}, ErrNoData
	}
	var missing []string
	for _, col := range []string{"date", "quantity", "price"} {
		if !raw.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return Series{}, &SchemaError{Missing: missing}
	}

	first := raw.Rows[0]
	currency := firstString(first, "currency", defaultCurrency)
	unitName := firstString(first, "quantity_unit_name", defaultUnitName)
	unitSymbol := firstString(first, "quantity_unit_symbol", defaultUnitSymbol)
	multiplier, display := NormalizeUnit(unitName, unitSymbol)

	points := make([]Point, 0, len(raw.Rows))
	for _, row := range raw.Rows {
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
		qtyKg := qty * multiplier
		if qtyKg == 0 {
			continue
		}
		points = append(points, Point{Time: ts, QuantityKg: qtyKg, TotalPrice: price, UnitPrice: price / qtyKg})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })

	if len(points) < p.minRows {
		return Series{}, &InsufficientDataError{Rows: len(points), Min: p.minRows}
	}
	p.log.WithFields(logrus.Fields{"rows": len(points), "unit": display, "currency": currency}).Debug("series prepared")
	return Series{Points: points, Currency: currency, DisplayUnit: display, UnitSymbol: unitSymbol}, nil
}

func firstString(row store.Row, col, fallback string) string {
	if v, ok := row[col]; ok && v != nil {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return fallback
}
