package utils

import (
	"encoding/json"
	"fmt"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// RepairJSON fixes the usual LLM JSON faults: code fences, single quotes,
// unquoted keys, trailing commas, unclosed brackets.
func RepairJSON(malformed string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformed)
	if err != nil {
		return "", fmt.Errorf("json repair: %w", err)
	}
	return repaired, nil
}

// ParseHJSON decodes Hjson (comments, unquoted keys, multiline strings) into v.
func ParseHJSON(data []byte, v interface{}) error {
	if err := hjson.Unmarshal(data, v); err != nil {
		return fmt.Errorf("hjson: %w", err)
	}
	return nil
}

// SmartParse decodes input into v trying strict JSON, then repaired JSON,
// then Hjson.
func SmartParse(input string, v interface{}) error {
	input = CleanMarkdown(input)
	if err := json.Unmarshal([]byte(input), v); err == nil {
		return nil
	}
	if repaired, err := RepairJSON(input); err == nil {
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}
	var generic interface{}
	if err := hjson.Unmarshal([]byte(input), &generic); err == nil {
		if b, err := json.Marshal(generic); err == nil {
			if err := json.Unmarshal(b, v); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("smart parse: no strategy produced valid JSON")
}
