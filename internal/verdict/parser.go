package verdict

import (
	"encoding/json"
	"fmt"
	"strings"
)

// defaultTrustScore substitutes for a score the model omitted or zeroed when
// no confidence value is available either.
const defaultTrustScore = 50

// ParseError reports that no valid verdict could be recovered from the
// model's raw output. It is deliberately distinct from an endpoint failure:
// "bad answer" is not "no answer".
type ParseError struct {
	Raw   string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no valid verdict recoverable from analysis output: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// rawVerdict mirrors the model's output schema before normalization. The
// numeric fields stay raw because the model occasionally emits them as
// strings or omits them; a bad score must not discard an otherwise valid
// verdict.
type rawVerdict struct {
	Verdict        string          `json:"verdict"`
	TrustScore     json.RawMessage `json:"trust_score"`
	Confidence     json.RawMessage `json:"confidence"`
	RedFlags       []string        `json:"red_flags"`
	Analysis       string          `json:"analysis"`
	Recommendation string          `json:"recommendation"`
	Category       string          `json:"category"`
}

// Parse extracts, validates, and normalizes a verdict from raw model output.
// Recovery order: strip markdown fences, direct JSON parse, then the first-{
// to last-} slice for prose-wrapped objects. forensicText is attached to the
// result for caller transparency.
func Parse(raw, forensicText string) (*Verdict, error) {
	text := stripFences(raw)

	parsed, err := decode(text)
	if err != nil {
		slice, ok := braceSlice(text)
		if !ok {
			return nil, &ParseError{Raw: truncate(raw), Cause: err}
		}
		parsed, err = decode(slice)
		if err != nil {
			return nil, &ParseError{Raw: truncate(raw), Cause: err}
		}
	}

	label, ok := verdictSynonyms[strings.ToUpper(strings.TrimSpace(parsed.Verdict))]
	if !ok {
		if strings.TrimSpace(parsed.Verdict) == "" {
			return nil, &ParseError{
				Raw:   truncate(raw),
				Cause: fmt.Errorf("analysis output has no verdict field"),
			}
		}
		// Anything recognizable but off-script is treated as CAUTION rather
		// than guessing in either direction.
		label = Caution
	}

	v := &Verdict{
		Verdict:        label,
		TrustScore:     normalizeTrustScore(parsed.TrustScore, parsed.Confidence),
		RedFlags:       parsed.RedFlags,
		Analysis:       parsed.Analysis,
		Recommendation: parsed.Recommendation,
		Category:       parsed.Category,
		ForensicText:   forensicText,
	}
	if v.RedFlags == nil {
		v.RedFlags = []string{}
	}
	return v, nil
}

func decode(text string) (*rawVerdict, error) {
	var parsed rawVerdict
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// normalizeTrustScore guarantees a 1-100 score. A missing, zero, or
// non-numeric trust_score falls back to the model's confidence, then to the
// default.
func normalizeTrustScore(trustScore, confidence json.RawMessage) int {
	if score, ok := asScore(trustScore); ok {
		return score
	}
	if score, ok := asScore(confidence); ok {
		return score
	}
	return defaultTrustScore
}

func asScore(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		// Tolerate a quoted number
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &n); err != nil {
			return 0, false
		}
	}
	score := int(n)
	if score <= 0 {
		return 0, false
	}
	if score > 100 {
		score = 100
	}
	return score, true
}

// stripFences removes a surrounding markdown code fence, including an
// optional language tag on the opening line.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{}") {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// braceSlice returns the substring from the first '{' through the last '}',
// tolerating prose wrapped around an embedded JSON object.
func braceSlice(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func truncate(s string) string {
	const max = 512
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
