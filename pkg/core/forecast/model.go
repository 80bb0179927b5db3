package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Method tags which strategy produced a Forecast.
type Method string

const (
	MethodSeasonal Method = "seasonal-model"
	MethodLinear   Method = "linear-fallback"
)

// Observation is one (timestamp, value) model input.
type Observation struct {
	Time  time.Time
	Value float64
}

// Forecast holds the projection for one target series. Lower, Upper and Mean
// always have one entry per requested period.
type Forecast struct {
	PointEstimate float64   `json:"point_estimate"`
	Lower         []float64 `json:"lower_bound"`
	Upper         []float64 `json:"upper_bound"`
	Mean          []float64 `json:"mean_trajectory"`
	Dates         []string  `json:"dates"`
	Method        Method    `json:"method"`
}

// Model fits a series and projects periods calendar months ahead.
type Model interface {
	Fit(obs []Observation, periods int) (Forecast, error)
}

const secondsPerYear = 365.25 * 24 * 3600

// SeasonalModel is an additive trend plus yearly Fourier seasonality model
// fitted by least squares, with Student-t prediction intervals.
type SeasonalModel struct {
	FourierOrder  int
	IntervalWidth float64
	MinPoints     int
}

func NewSeasonalModel(order int, width float64, minPoints int) *SeasonalModel {
	return &SeasonalModel{FourierOrder: order, IntervalWidth: width, MinPoints: minPoints}
}

func (m *SeasonalModel) Fit(obs []Observation, periods int) (Forecast, error) {
	n := len(obs)
	if n < m.MinPoints {
		return Forecast{}, &InsufficientPointsError{Points: n, Min: m.MinPoints}
	}

	// Keep at least one residual degree of freedom.
	order := m.FourierOrder
	if maxOrder := (n - 3) / 2; order > maxOrder {
		order = maxOrder
	}
	if order < 0 {
		order = 0
	}
	p := 2 + 2*order

	origin := obs[0].Time
	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, o := range obs {
		x.SetRow(i, m.features(o.Time, origin, order))
		y.SetVec(i, o.Value)
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return Forecast{}, fmt.Errorf("least squares: %w", err)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	residuals := make([]float64, n)
	floats.SubTo(residuals, y.RawVector().Data, fitted.RawVector().Data)
	dof := n - p
	sigma := math.Sqrt(floats.Dot(residuals, residuals) / float64(dof))

	width := m.IntervalWidth
	if width <= 0 || width >= 1 {
		width = 0.95
	}
	z := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}.Quantile(0.5 + width/2)

	dates := monthEnds(obs[n-1].Time, periods)
	out := Forecast{
		Lower:  make([]float64, periods),
		Upper:  make([]float64, periods),
		Mean:   make([]float64, periods),
		Dates:  formatDates(dates),
		Method: MethodSeasonal,
	}
	coef := beta.RawVector().Data
	for h, d := range dates {
		yhat := floats.Dot(m.features(d, origin, order), coef)
		spread := z * sigma * math.Sqrt(1+float64(h+1)/float64(n))
		out.Mean[h] = yhat
		out.Lower[h] = yhat - spread
		out.Upper[h] = yhat + spread
	}
	if !allFinite(out.Mean) || !allFinite(out.Lower) || !allFinite(out.Upper) {
		return Forecast{}, fmt.Errorf("seasonal model did not converge")
	}
	out.PointEstimate = stat.Mean(out.Mean, nil)
	return out, nil
}

// features returns [1, trend, sin1, cos1, ... sinK, cosK] for t.
func (m *SeasonalModel) features(t, origin time.Time, order int) []float64 {
	row := make([]float64, 2+2*order)
	row[0] = 1
	row[1] = t.Sub(origin).Seconds() / secondsPerYear
	phase := 2 * math.Pi * float64(t.Unix()) / secondsPerYear
	for k := 1; k <= order; k++ {
		row[2*k] = math.Sin(float64(k) * phase)
		row[2*k+1] = math.Cos(float64(k) * phase)
	}
	return row
}

// Linear extrapolates a least squares line over the index sequence with a
// fixed relative band. Fewer than two points give a constant forecast.
func Linear(obs []Observation, periods int, band float64) Forecast {
	n := len(obs)
	mean := make([]float64, periods)
	switch {
	case n == 0:
	case n == 1:
		for i := range mean {
			mean[i] = obs[0].Value
		}
	default:
		xs := make([]float64, n)
		ys := make([]float64, n)
		for i, o := range obs {
			xs[i] = float64(i)
			ys[i] = o.Value
		}
		intercept, slope := stat.LinearRegression(xs, ys, nil, false)
		for i := range mean {
			mean[i] = intercept + slope*float64(n+i)
		}
	}

	out := Forecast{
		Lower:  make([]float64, periods),
		Upper:  make([]float64, periods),
		Mean:   mean,
		Method: MethodLinear,
	}
	floats.ScaleTo(out.Lower, 1-band, mean)
	floats.ScaleTo(out.Upper, 1+band, mean)
	if n > 0 {
		out.Dates = formatDates(monthEnds(obs[n-1].Time, periods))
	}
	if periods > 0 {
		out.PointEstimate = stat.Mean(mean, nil)
	}
	return out
}

// Runner applies the primary model and degrades to Linear on any failure.
type Runner struct {
	primary Model
	band    float64
	log     *logrus.Entry
}

func NewRunner(primary Model, band float64, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{primary: primary, band: band, log: logger.WithField("component", "forecast.model")}
}

// Run always returns a forecast with periods entries; model errors are logged.
func (r *Runner) Run(obs []Observation, periods int, label string) Forecast {
	if periods < 1 {
		periods = 1
	}
	f, err := r.tryPrimary(obs, periods)
	if err == nil {
		return f
	}
	r.log.WithError(err).WithField("target", label).Warn("seasonal model failed, using linear fallback")
	return Linear(obs, periods, r.band)
}

func (r *Runner) tryPrimary(obs []Observation, periods int) (f Forecast, err error) {
	if r.primary == nil {
		return Forecast{}, fmt.Errorf("no primary model")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("model panic: %v", rec)
		}
	}()
	f, err = r.primary.Fit(obs, periods)
	if err == nil && len(f.Mean) != periods {
		err = fmt.Errorf("model returned %d periods, want %d", len(f.Mean), periods)
	}
	return f, err
}

// monthEnds returns the next n calendar month ends strictly after last.
func monthEnds(last time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	y, m, _ := last.Date()
	d := endOfMonth(y, m, last.Location())
	if !d.After(last) {
		d = endOfMonth(y, m+1, last.Location())
	}
	for len(out) < n {
		out = append(out, d)
		y, m, _ = d.Date()
		d = endOfMonth(y, m+1, d.Location())
	}
	return out
}

func endOfMonth(y int, m time.Month, loc *time.Location) time.Time {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc)
}

func formatDates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format("2006-01-02")
	}
	return out
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
