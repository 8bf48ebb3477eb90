package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	errEmptyResponse = errors.New("llm: empty choices in completion response")
	errUnparseable   = errors.New("llm: response did not contain a parseable IntentResponse")
)

// parseIntentResponse runs the JSON-repair pipeline over a raw model
// response: strip markdown code fences, extract the first balanced brace
// span, attempt a strict parse, and on failure retry with progressively
// trimmed trailing content. Returns ok=false only when every stage fails,
// in which case the caller treats this as a failed attempt (and ultimately
// falls back to the adapter-default value after retries are exhausted).
func parseIntentResponse(raw string) (IntentResponse, bool) {
	candidate := stripCodeFences(raw)

	if resp, ok := strictParse(candidate); ok {
		return resp, true
	}

	span, ok := extractBalancedBraces(candidate)
	if !ok {
		// An object that opens but never closes is a truncated completion.
		if start := strings.IndexByte(candidate, '{'); start != -1 {
			return repairByTrim(candidate[start:])
		}
		return IntentResponse{}, false
	}

	if resp, ok := strictParse(span); ok {
		return resp, true
	}

	if resp, ok := repairByTrim(span); ok {
		return resp, true
	}

	return IntentResponse{}, false
}

// stripCodeFences removes a leading/trailing ```json or ``` fence before
// parsing, since chat models often wrap JSON replies in markdown even when
// asked not to. Content with no fence is returned unchanged (trimmed).
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(s[:nl])
		if firstLine == "" || strings.EqualFold(firstLine, "json") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractBalancedBraces finds the first top-level {...} span, tracking
// string/escape state so braces inside quoted field values don't confuse
// the depth counter. There is no pack analog for this stage; it is
// hand-written against stdlib encoding/json per DESIGN.md, since models
// routinely wrap valid JSON in prose ("Here's the response: {...}").
func extractBalancedBraces(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// repairByTrim handles truncated completions (the model ran out of tokens
// mid-object) by repeatedly dropping the last field/char and re-closing the
// object until it parses, or giving up after a bounded number of attempts.
func repairByTrim(span string) (IntentResponse, bool) {
	s := strings.TrimSpace(span)
	s = strings.TrimSuffix(s, "}")

	const maxAttempts = 20
	for attempt := 0; attempt < maxAttempts && len(s) > 0; attempt++ {
		lastComma := strings.LastIndexByte(s, ',')
		if lastComma == -1 {
			break
		}
		s = s[:lastComma]
		if resp, ok := strictParse(s + "}"); ok {
			return resp, true
		}
	}
	return IntentResponse{}, false
}

func strictParse(s string) (IntentResponse, bool) {
	var resp IntentResponse
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		return IntentResponse{}, false
	}
	if resp.Fields == nil {
		resp.Fields = map[string]string{}
	}
	return resp, true
}
