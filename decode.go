package convogen

import (
	"encoding/json"
	"strings"
)

// ──────────────────────────────────────────────
// Structured-response decoder — JSON-in-prose extraction
// ──────────────────────────────────────────────
//
// Models asked for JSON routinely wrap it in prose or markdown fences.
// Both the satisfaction judge and the user-reflection policy share this
// decoder. The contract: return a typed fallback, never an error that
// escapes the caller.

// ExtractJSONObject returns the first balanced {...} substring of raw,
// skipping braces inside JSON string literals. ok is false when no
// balanced object exists.
func ExtractJSONObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// DecodeReflection parses a user-reflection response. When no usable
// JSON is present the whole text becomes the next message and the
// conversation continues; the raw response is kept either way.
func DecodeReflection(raw string) Reflection {
	fallback := Reflection{
		Reasoning:      "No structured reasoning provided.",
		NextMessage:    strings.TrimSpace(raw),
		ShouldContinue: true,
		RawResponse:    raw,
	}

	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return fallback
	}

	var parsed struct {
		Reasoning      string `json:"reasoning"`
		NextMessage    string `json:"next_message"`
		ShouldContinue *bool  `json:"should_continue"`
		EndingReason   string `json:"ending_reason"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return fallback
	}

	r := Reflection{
		Reasoning:      parsed.Reasoning,
		NextMessage:    parsed.NextMessage,
		ShouldContinue: true,
		EndingReason:   parsed.EndingReason,
		RawResponse:    raw,
	}
	if r.Reasoning == "" {
		r.Reasoning = "No explicit reasoning provided."
	}
	if r.NextMessage == "" {
		r.NextMessage = "I'm not sure what to say next."
	}
	if parsed.ShouldContinue != nil {
		r.ShouldContinue = *parsed.ShouldContinue
	}
	return r
}

// Judgment is a decoded satisfaction verdict.
type Judgment struct {
	Score       float64
	Explanation string
	// OK is false when the verdict is a fallback after a decode failure.
	OK bool
}

// DecodeJudgment parses a satisfaction-evaluation response and clamps
// the score to [0.05, 0.95]; the tighter bound keeps the judge from
// issuing absolute 0/1 verdicts. On malformed or missing JSON the given
// neutral score is returned with an explanation noting the failure.
func DecodeJudgment(raw string, neutral float64) Judgment {
	fallback := Judgment{
		Score:       neutral,
		Explanation: "Satisfaction evaluation failed; using neutral score.",
	}

	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return fallback
	}

	var parsed struct {
		Score       *float64 `json:"satisfaction_score"`
		Explanation string   `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil || parsed.Score == nil {
		return fallback
	}

	return Judgment{
		Score:       clamp(*parsed.Score, 0.05, 0.95),
		Explanation: parsed.Explanation,
		OK:          true,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
