package forecast

import "strings"

// Display units for normalized quantities.
const (
	UnitTonnes   = "tonnes"
	UnitKg       = "kg"
	UnitQuintals = "quintals"
)

// NormalizeUnit maps a quantity unit to its kilogram multiplier and display
// name. Rules are checked in order against "name symbol", lowercased; unknown
// units are assumed to be tonnes.
func NormalizeUnit(name, symbol string) (multiplier float64, display string) {
	combined := strings.ToLower(name + " " + symbol)
	switch {
	case strings.Contains(combined, "ton") || symbol == "t":
		return 1000, UnitTonnes
	case strings.Contains(combined, "kg"):
		return 1, UnitKg
	case strings.Contains(combined, "quintal"):
		return 100, UnitQuintals
	default:
		return 1000, UnitTonnes
	}
}
