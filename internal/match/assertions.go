package match

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Body evaluates JSONPath assertions against a JSON body. Each value is
// either an expected value (partial match) or an operator map such as
// {"gte": 1}, {"contains": "Kai"}, {"exists": false}.
func Body(body []byte, assertions map[string]any) error {
	doc, err := Parse(body)
	if err != nil {
		return err
	}
	return Doc(doc, assertions)
}

// Doc is Body for an already decoded document.
func Doc(doc any, assertions map[string]any) error {
	paths := make([]string, 0, len(assertions))
	for p := range assertions {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := evaluateOne(doc, path, assertions[path]); err != nil {
			return err
		}
	}
	return nil
}

var operators = map[string]bool{
	"exists": true, "eq": true, "gte": true, "lte": true,
	"contains": true, "regex": true, "match": true,
}

// isOperatorMap reports whether every key of v is a known operator.
func isOperatorMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !operators[k] {
			return nil, false
		}
	}
	return m, true
}

func evaluateOne(doc any, path string, expected any) error {
	actual, found, err := Path(doc, path)
	if err != nil {
		return fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}

	if ops, ok := isOperatorMap(expected); ok {
		return evaluateOperators(path, actual, found, ops)
	}
	if !found {
		return &MismatchError{Path: path, Expected: expected, Reason: "no match found"}
	}
	return objectAt(path, actual, expected)
}

func evaluateOperators(path string, actual any, found bool, ops map[string]any) error {
	if want, ok := ops["exists"]; ok {
		wantExists, ok := want.(bool)
		if !ok {
			return fmt.Errorf("JSONPath %q: 'exists' operator requires a boolean value", path)
		}
		if wantExists != found {
			return &MismatchError{Path: path, Expected: wantExists, Actual: found, Reason: "existence"}
		}
	}
	if !found {
		if len(ops) == 1 && ops["exists"] != nil {
			return nil
		}
		return &MismatchError{Path: path, Expected: ops, Reason: "no match found"}
	}

	for op, expected := range ops {
		switch op {
		case "exists":
		case "eq":
			if !valuesEqual(actual, expected) {
				return &MismatchError{Path: path, Expected: expected, Actual: actual}
			}
		case "match":
			if err := objectAt(path, actual, expected); err != nil {
				return err
			}
		case "gte", "lte":
			a, err := toFloat64(actual)
			if err != nil {
				return fmt.Errorf("JSONPath %q: %q requires numeric actual value: %w", path, op, err)
			}
			e, err := toFloat64(expected)
			if err != nil {
				return fmt.Errorf("JSONPath %q: %q requires numeric expected value: %w", path, op, err)
			}
			if (op == "gte" && a < e) || (op == "lte" && a > e) {
				return &MismatchError{Path: path, Expected: map[string]any{op: e}, Actual: a}
			}
		case "contains":
			as, es := fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected)
			if !strings.Contains(as, es) {
				return &MismatchError{Path: path, Expected: expected, Actual: actual, Reason: "does not contain"}
			}
		case "regex":
			pattern, ok := expected.(string)
			if !ok {
				return fmt.Errorf("JSONPath %q: 'regex' operator requires a string pattern", path)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("JSONPath %q: invalid regex pattern %q: %w", path, pattern, err)
			}
			if !re.MatchString(fmt.Sprintf("%v", actual)) {
				return &MismatchError{Path: path, Expected: pattern, Actual: actual, Reason: "does not match regex"}
			}
		}
	}
	return nil
}
