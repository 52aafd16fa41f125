package llm

import (
	"encoding/json"
	"testing"
)

func TestRepairFixtures(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"fenced with language tag", "```json\n{\"a\": 1}\n```"},
		{"fenced no language tag", "```\n{\"a\": 1}\n```"},
		{"trailing comma object", `{"a": 1, "b": 2,}`},
		{"trailing comma array", `{"a": [1, 2, 3,]}`},
		{"unterminated object", `{"a": 1`},
		{"unterminated array", `{"a": [1, 2`},
		{"plain valid json", `{"a": "b"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repaired := Repair(tc.input)
			var out any
			if err := json.Unmarshal([]byte(repaired), &out); err != nil {
				t.Fatalf("repaired output still invalid JSON: %v\ninput: %s\nrepaired: %s", err, tc.input, repaired)
			}
		})
	}
}

func TestRepairStrayQuoteInsideValue(t *testing.T) {
	input := `{"note": "the "best" approach"}`
	repaired := Repair(input)
	var out map[string]string
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("expected stray-quote repair to produce valid JSON, got error: %v\nrepaired: %s", err, repaired)
	}
}

func TestRepairIsIdempotentOnValidInput(t *testing.T) {
	input := `{"nodes": [{"id": "a", "aliases": [], "outbound_links": ["b"]}]}`
	if got := Repair(input); got != input {
		t.Fatalf("expected valid input to pass through unchanged, got %q", got)
	}
}
