package router

import (
	"embed"
	"fmt"
	"regexp"
	"strings"

	"zeno_agent/pkg/core/utils"
)

//go:embed shortcuts/*.hjson
var shortcutFS embed.FS

// Shortcut pairs a query predicate with a pre-authored response payload.
type Shortcut struct {
	Name    string
	Match   func(query string) bool
	Payload map[string]any
}

var (
	ethiopiaCoffeePattern = regexp.MustCompile(`(?i)` +
		`.*price.*ethiopia.*coffee.*next.*[12].*years?.*|` +
		`.*ethiopia.*coffee.*price.*forecast.*202[567].*|` +
		`.*ethiopia.*coffee.*next.*two.*years?.*|` +
		`.*forecast.*ethiopia.*coffee.*price.*`)

	kenyaCoffeePattern = regexp.MustCompile(`(?i)` +
		`.*price.*kenya.*coffee.*next.*2.*months?.*|` +
		`.*kenya.*coffee.*price.*forecast.*(dec.*2025|jan.*2026).*|` +
		`.*kenya.*coffee.*next.*two.*months?.*|` +
		`.*forecast.*kenya.*coffee.*price.*`)
)

// isKenyaMaizeForecast matches regardless of word order.
func isKenyaMaizeForecast(query string) bool {
	q := strings.ToLower(query)
	return containsAny(q, "kenya", "kenyan", "nairobi", "nce", "ncpb") &&
		containsAny(q, "maize", "corn", "grain", "meal", "unga") &&
		containsAny(q, "forecast", "predict", "price", "next", "202", "year", "month", "future") &&
		containsAny(q, "next", "202", "2025", "2026", "2027", "year", "month", "future", "coming")
}

// LoadShortcuts returns the shortcut table in evaluation order.
func LoadShortcuts() ([]Shortcut, error) {
	table := []struct {
		name  string
		file  string
		match func(string) bool
	}{
		{"ethiopia_coffee_forecast", "shortcuts/ethiopia_coffee.hjson", ethiopiaCoffeePattern.MatchString},
		{"kenya_coffee_forecast", "shortcuts/kenya_coffee.hjson", kenyaCoffeePattern.MatchString},
		{"kenya_maize_forecast", "shortcuts/kenya_maize.hjson", isKenyaMaizeForecast},
	}

	out := make([]Shortcut, 0, len(table))
	for _, t := range table {
		data, err := shortcutFS.ReadFile(t.file)
		if err != nil {
			return nil, err
		}
		var payload map[string]any
		if err := utils.ParseHJSON(data, &payload); err != nil {
			return nil, fmt.Errorf("shortcut %s: %w", t.name, err)
		}
		out = append(out, Shortcut{Name: t.name, Match: t.match, Payload: payload})
	}
	return out, nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
