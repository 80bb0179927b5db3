package forecast

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoData is returned when the store has no trade rows for the pair.
var ErrNoData = errors.New("no trade data found")

// SchemaError reports required columns missing from the trade rows.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("trade data missing required columns: %s", strings.Join(e.Missing, ", "))
}

// InsufficientDataError is returned when too few rows survive cleaning.
type InsufficientDataError struct {
	Rows int
	Min  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data points (%d, need %d)", e.Rows, e.Min)
}

// InsufficientPointsError stops the seasonal model; the runner recovers it
// with the linear fallback.
type InsufficientPointsError struct {
	Points int
	Min    int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient data for forecasting (%d points, need %d)", e.Points, e.Min)
}
