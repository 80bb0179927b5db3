// Package entity pulls country and commodity mentions out of free text.
package entity

import "strings"

// DefaultCountries is the country gazetteer in match order.
var DefaultCountries = []string{"kenya", "tanzania", "uganda", "rwanda", "ethiopia", "burundi"}

// DefaultCommodities is the commodity gazetteer in match order.
var DefaultCommodities = []string{"coffee", "maize", "tea", "beans", "wheat", "rice", "sugar"}

// MaxCountries caps how many countries Extract reports.
const MaxCountries = 2

// Entities are the mentions found in a query. Countries are title-cased.
type Entities struct {
	Countries []string `json:"countries"`
	Commodity string   `json:"commodity"`
}

// Extractor matches gazetteer entries by case-insensitive substring. It holds
// no mutable state and is safe for concurrent use.
type Extractor struct {
	countries   []string
	commodities []string
	fallback    string
}

// NewExtractor uses the default gazetteers. An empty fallback means "coffee".
func NewExtractor(fallbackCommodity string) *Extractor {
	if fallbackCommodity == "" {
		fallbackCommodity = "coffee"
	}
	return &Extractor{
		countries:   DefaultCountries,
		commodities: DefaultCommodities,
		fallback:    strings.ToLower(fallbackCommodity),
	}
}

// Extract returns at most MaxCountries countries in gazetteer order, not
// query order, and the first matching commodity or the fallback.
func (e *Extractor) Extract(query string) Entities {
	q := strings.ToLower(query)

	out := Entities{Countries: []string{}, Commodity: e.fallback}
	for _, c := range e.countries {
		if len(out.Countries) == MaxCountries {
			break
		}
		if strings.Contains(q, c) {
			out.Countries = append(out.Countries, Title(c))
		}
	}
	for _, c := range e.commodities {
		if strings.Contains(q, c) {
			out.Commodity = c
			break
		}
	}
	return out
}

// Title upper-cases the first letter of each space separated word.
func Title(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
