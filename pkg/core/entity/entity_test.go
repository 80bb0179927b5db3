package entity

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	e := NewExtractor("coffee")
	tests := []struct {
		name  string
		query string
		want  Entities
	}{
		{"two countries", "Compare maize exports of Uganda and Kenya", Entities{Countries: []string{"Kenya", "Uganda"}, Commodity: "maize"}},
		{"gazetteer order cap", "Rwanda, Ethiopia, Tanzania and Kenya tea", Entities{Countries: []string{"Kenya", "Tanzania"}, Commodity: "tea"}},
		{"fallback commodity", "how is Burundi doing", Entities{Countries: []string{"Burundi"}, Commodity: "coffee"}},
		{"nothing", "hello there", Entities{Countries: []string{}, Commodity: "coffee"}},
		{"case insensitive", "KENYA SUGAR", Entities{Countries: []string{"Kenya"}, Commodity: "sugar"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract(%q) = %+v, want %+v", tt.query, got, tt.want)
			}
		})
	}
}

func TestExtractIsPure(t *testing.T) {
	e := NewExtractor("")
	q := "Ethiopia versus Kenya coffee exports"
	first, second := e.Extract(q), e.Extract(q)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated Extract differs: %+v vs %+v", first, second)
	}
}

func TestTitle(t *testing.T) {
	if got := Title("dry maize"); got != "Dry Maize" {
		t.Errorf("Title = %q", got)
	}
}
