package scenario

import (
	"fmt"
	"os"
	"strings"
)

// Expand replaces template placeholders in s:
//   - {{env.VARIABLE}} from environment variables
//   - {{name}} from vars (session, random, base_url)
func Expand(s string, vars map[string]string) (string, error) {
	result := s
	offset := 0
	for {
		start := strings.Index(result[offset:], "{{")
		if start == -1 {
			break
		}
		start += offset
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			return "", fmt.Errorf("unterminated template expression at position %d", start)
		}
		end += start + 2

		expr := strings.TrimSpace(result[start+2 : end-2])
		value, err := resolveExpr(expr, vars)
		if err != nil {
			return "", err
		}

		result = result[:start] + value + result[end:]
		offset = start + len(value)
	}
	return result, nil
}

func resolveExpr(expr string, vars map[string]string) (string, error) {
	if key, ok := strings.CutPrefix(expr, "env."); ok {
		return os.Getenv(key), nil
	}
	if val, ok := vars[expr]; ok {
		return val, nil
	}
	return "", fmt.Errorf("unresolved template expression: %q", expr)
}

// expandAny expands every string inside a decoded JSON or YAML value.
func expandAny(v any, vars map[string]string) (any, error) {
	switch t := v.(type) {
	case string:
		return Expand(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			x, err := expandAny(e, vars)
			if err != nil {
				return nil, err
			}
			out[k] = x
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			x, err := expandAny(e, vars)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	default:
		return v, nil
	}
}

// expandAction expands the string fields of a.
func expandAction(a Action, vars map[string]string) (Action, error) {
	var err error
	for _, f := range []*string{&a.URL, &a.Value, &a.Key, &a.Text} {
		if *f, err = Expand(*f, vars); err != nil {
			return a, fmt.Errorf("%s: %w", a.Type, err)
		}
	}
	return a, nil
}
