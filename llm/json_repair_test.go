package llm

import "testing"

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripCodeFences(in); got != want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractBalancedBraces(t *testing.T) {
	span, ok := extractBalancedBraces(`prefix {"a": "b { c } d", "e": 1} suffix`)
	if !ok {
		t.Fatal("expected a balanced span to be found")
	}
	want := `{"a": "b { c } d", "e": 1}`
	if span != want {
		t.Errorf("extractBalancedBraces = %q, want %q", span, want)
	}
}

func TestExtractBalancedBraces_NoBrace(t *testing.T) {
	if _, ok := extractBalancedBraces("no braces here"); ok {
		t.Fatal("expected ok=false when there is no opening brace")
	}
}

func TestExtractBalancedBraces_Unclosed(t *testing.T) {
	if _, ok := extractBalancedBraces(`{"a": 1`); ok {
		t.Fatal("expected ok=false for an unclosed object")
	}
}

func TestRepairByTrim(t *testing.T) {
	resp, ok := repairByTrim(`{"id":"1","isCompleted":false,"fields":{"a":"b"},"nextPrompt":"cut off mid str`)
	if !ok {
		t.Fatal("expected repairByTrim to recover a valid prefix")
	}
	if resp.ID != "1" || resp.Fields["a"] != "b" {
		t.Errorf("unexpected repaired response: %+v", resp)
	}
}

func TestRepairByTrim_Unrecoverable(t *testing.T) {
	if _, ok := repairByTrim(`totally not json at all`); ok {
		t.Fatal("expected repairByTrim to give up on unrecoverable input")
	}
}

func TestParseIntentResponse_DefaultsFieldsToEmptyMap(t *testing.T) {
	resp, ok := parseIntentResponse(`{"id":"1","isCompleted":true,"fields":null,"nextPrompt":""}`)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if resp.Fields == nil {
		t.Error("expected Fields to default to an empty map, not nil")
	}
}

func TestParseIntentResponse_TotalFailure(t *testing.T) {
	if _, ok := parseIntentResponse("I'm sorry, I can't help with that."); ok {
		t.Fatal("expected ok=false when no JSON can be extracted at all")
	}
}
