package match

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Path evaluates a dot-notation JSONPath ($.field, $.a.b, $.items[0].title)
// against decoded JSON. found is false when any segment is missing.
func Path(doc any, path string) (value any, found bool, err error) {
	if !strings.HasPrefix(path, "$") {
		return nil, false, fmt.Errorf("JSONPath must start with $: %q", path)
	}

	rest := strings.TrimPrefix(path[1:], ".")
	if rest == "" {
		return doc, true, nil
	}

	current := doc
	for _, seg := range splitPathSegments(rest) {
		if seg == "" {
			continue
		}

		field, indexes, err := parseSegment(seg)
		if err != nil {
			return nil, false, err
		}
		if field != "" {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false, nil
			}
			if current, ok = m[field]; !ok {
				return nil, false, nil
			}
		}
		for _, idx := range indexes {
			arr, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false, nil
			}
			current = arr[idx]
		}
	}
	return current, true, nil
}

// parseSegment splits "items[1][0]" into "items" and [1 0].
func parseSegment(seg string) (string, []int, error) {
	open := strings.Index(seg, "[")
	if open < 0 {
		return seg, nil, nil
	}
	field := seg[:open]
	var indexes []int
	for rest := seg[open:]; rest != ""; {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("malformed segment %q", seg)
		}
		end := strings.Index(rest, "]")
		if end < 0 {
			return "", nil, fmt.Errorf("unterminated index in %q", seg)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, fmt.Errorf("invalid array index in %q: %w", seg, err)
		}
		indexes = append(indexes, n)
		rest = rest[end+1:]
	}
	return field, indexes, nil
}

// splitPathSegments splits "field.nested[0].name" on dots outside brackets.
func splitPathSegments(path string) []string {
	var segments []string
	var current strings.Builder
	depth := 0

	for _, ch := range path {
		switch ch {
		case '[':
			depth++
			current.WriteRune(ch)
		case ']':
			depth--
			current.WriteRune(ch)
		case '.':
			if depth == 0 {
				segments = append(segments, current.String())
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// Parse decodes a JSON body into generic values.
func Parse(body []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("body is not valid JSON: %w", err)
	}
	return doc, nil
}

// Extract returns the value at path in a JSON body.
func Extract(body []byte, path string) (any, error) {
	doc, err := Parse(body)
	if err != nil {
		return nil, err
	}
	v, found, err := Path(doc, path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}
	if !found {
		return nil, fmt.Errorf("JSONPath %q: no match found", path)
	}
	return v, nil
}
