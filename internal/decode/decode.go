// Package decode recovers a JSON value from the text a generation provider
// actually returns: markdown fences, trailing commas, single quotes and
// surrounding prose are all tolerated.
package decode

import (
	"encoding/json"
	"regexp"
	"strings"

	"fateloom/internal/logging"
)

var (
	leadingFence   = regexp.MustCompile("(?i)^\\s*```[a-z0-9_-]*\\s*")
	trailingFence  = regexp.MustCompile("\\s*```\\s*$")
	trailingCommas = regexp.MustCompile(`,\s*([}\]])`)
)

// strategy rewrites the raw text into something json.Unmarshal might accept.
// ok=false means the strategy does not apply to this input.
type strategy struct {
	name    string
	rewrite func(text string) (string, bool)
}

// strategies run in this order, each against the original text.
var strategies = []strategy{
	{"as_is", func(s string) (string, bool) { return s, true }},
	{"strip_fence", stripFence},
	{"trailing_commas", func(s string) (string, bool) { return stripTrailingCommas(s), true }},
	{"single_quotes", func(s string) (string, bool) { return strings.ReplaceAll(s, "'", `"`), true }},
	{"embedded_object", embeddedObject},
}

// Decode returns the first value any strategy can parse. It never panics.
func Decode(text string) (any, bool) {
	v, _, ok := DecodeWith(text)
	return v, ok
}

// DecodeWith is Decode that also reports which strategy succeeded.
func DecodeWith(text string) (any, string, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, "", false
	}
	for _, st := range strategies {
		candidate, ok := st.rewrite(text)
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			if st.name != "as_is" {
				logging.DecodeDebug("recovered JSON via %s (%d bytes)", st.name, len(text))
			}
			return v, st.name, true
		}
	}
	logging.DecodeDebug("all strategies failed for %d bytes: %.80q", len(text), text)
	return nil, "", false
}

// Object decodes text and requires the result to be a JSON object.
func Object(text string) (map[string]any, bool) {
	v, ok := Decode(text)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func stripFence(s string) (string, bool) {
	if !strings.Contains(s, "```") {
		return "", false
	}
	s = leadingFence.ReplaceAllString(s, "")
	return trailingFence.ReplaceAllString(s, ""), true
}

func stripTrailingCommas(s string) string {
	return trailingCommas.ReplaceAllString(s, "$1")
}

// embeddedObject pulls the first balanced object out of surrounding prose.
// When braces never balance it falls back to the widest {...} span.
func embeddedObject(s string) (string, bool) {
	if obj, ok := firstBalanced(s); ok {
		obj = stripTrailingCommas(obj)
		if json.Valid([]byte(obj)) {
			return obj, true
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return stripTrailingCommas(s[start : end+1]), true
}

// firstBalanced returns the first {...} span whose braces balance, skipping
// braces inside string literals. Stray closing braces before it are ignored.
// Scanning bytes is fine: UTF-8 continuation bytes never equal an ASCII
// delimiter.
func firstBalanced(s string) (string, bool) {
	depth, open := 0, -1
	quoted, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quoted {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				quoted = false
			}
			continue
		}
		switch c {
		case '"':
			quoted = true
		case '{':
			if depth == 0 {
				open = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[open : i+1], true
			}
		}
	}
	return "", false
}
