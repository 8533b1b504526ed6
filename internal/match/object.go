// Package match compares decoded JSON values: partial object matching with
// toMatchObject semantics, JSONPath extraction, and operator assertions.
package match

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// MismatchError reports the first place where actual differs from expected.
type MismatchError struct {
	Path     string
	Expected any
	Actual   any
	Reason   string
}

func (e *MismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (expected %s, got %s)", e.Path, e.Reason, show(e.Expected), show(e.Actual))
	}
	return fmt.Sprintf("%s: expected %s, got %s", e.Path, show(e.Expected), show(e.Actual))
}

// ExpectedString is the expected value as JSON.
func (e *MismatchError) ExpectedString() string { return show(e.Expected) }

// ActualString is the actual value as JSON.
func (e *MismatchError) ActualString() string { return show(e.Actual) }

func show(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Object reports whether actual matches expected as a partial object.
// Objects match when every expected key is present and matches; extra
// actual keys are ignored. Arrays must have equal length and match
// element-wise in order. Numbers compare numerically. Both values may be
// Go structs or maps; they are normalized through JSON first.
func Object(actual, expected any) error {
	return objectAt("$", actual, expected)
}

// objectAt is Object with mismatch paths rooted at root.
func objectAt(root string, actual, expected any) error {
	a, err := Normalize(actual)
	if err != nil {
		return fmt.Errorf("normalize actual: %w", err)
	}
	e, err := Normalize(expected)
	if err != nil {
		return fmt.Errorf("normalize expected: %w", err)
	}
	return compare(root, a, e)
}

// Normalize converts v into the generic shape json.Unmarshal produces
// (map[string]any, []any, float64, string, bool, nil).
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	case json.RawMessage:
		return Parse(v.(json.RawMessage))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func compare(path string, actual, expected any) error {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return &MismatchError{Path: path, Expected: expected, Actual: actual, Reason: "not an object"}
		}
		keys := make([]string, 0, len(exp))
		for k := range exp {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := path + "." + k
			av, present := act[k]
			if !present {
				return &MismatchError{Path: child, Expected: exp[k], Reason: "missing"}
			}
			if err := compare(child, av, exp[k]); err != nil {
				return err
			}
		}
		return nil

	case []any:
		act, ok := actual.([]any)
		if !ok {
			return &MismatchError{Path: path, Expected: expected, Actual: actual, Reason: "not an array"}
		}
		if len(act) != len(exp) {
			return &MismatchError{Path: path, Expected: expected, Actual: actual,
				Reason: fmt.Sprintf("length %d, want %d", len(act), len(exp))}
		}
		for i := range exp {
			if err := compare(fmt.Sprintf("%s[%d]", path, i), act[i], exp[i]); err != nil {
				return err
			}
		}
		return nil

	default:
		if !valuesEqual(actual, expected) {
			return &MismatchError{Path: path, Expected: expected, Actual: actual}
		}
		return nil
	}
}

// valuesEqual compares scalars. Numbers compare numerically; a number never
// equals a string.
func valuesEqual(actual, expected any) bool {
	an, aErr := toFloat64(actual)
	en, eErr := toFloat64(expected)
	if aErr == nil && eErr == nil {
		return an == en
	}
	if (aErr == nil) != (eErr == nil) {
		return false
	}
	return reflect.DeepEqual(actual, expected)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}
