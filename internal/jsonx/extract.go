// Package jsonx extracts JSON objects from model output that may wrap the
// payload in markdown fences or surrounding prose.
package jsonx

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrNoJSON means the text contains no object at all.
	ErrNoJSON = errors.New("no JSON object in text")
	// ErrInvalidJSON means an object start was found but nothing parseable.
	ErrInvalidJSON = errors.New("malformed JSON object in text")
)

var fenceRE = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?(.*?)```")

// ExtractObject returns the first JSON object found in text. Markdown code
// fences are stripped first; if the fenced content yields nothing, the raw
// text is scanned too, so an object in prose next to a non-JSON code fence
// still extracts.
func ExtractObject(text string) (json.RawMessage, error) {
	raw, err := extract(stripFences(text))
	if err != nil && strings.Contains(text, "```") {
		if fromRaw, rawErr := extract(text); rawErr == nil {
			return fromRaw, nil
		}
	}
	return raw, err
}

// extract parses the whole text as an object, or the substring from the
// first '{' to its balanced closing '}'.
func extract(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)

	if isObject(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	start := strings.IndexByte(trimmed, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}
	if span := balancedSpan(trimmed[start:]); span != "" && isObject(span) {
		return json.RawMessage(span), nil
	}
	return nil, ErrInvalidJSON
}

// ExtractInto extracts the first object and unmarshals it into out.
func ExtractInto(text string, out any) error {
	raw, err := ExtractObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return ErrInvalidJSON
	}
	return nil
}

func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	matches := fenceRE.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text
	}
	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(m[1])
		sb.WriteByte('\n')
	}
	return sb.String()
}

func isObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var probe map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &probe) == nil
}

// balancedSpan returns the prefix of s up to the brace that closes the
// opening '{', skipping braces inside string literals.
func balancedSpan(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
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
				return s[:i+1]
			}
		}
	}
	return ""
}
