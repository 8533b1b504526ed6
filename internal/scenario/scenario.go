// Package scenario loads and runs browser scenarios: ordered user actions
// and assertions executed against one isolated page session with its own
// route interceptor.
package scenario

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
)

// Scenario is one ordered test case. A Scenario is never modified by a run,
// so the same value can be run again in a fresh session.
type Scenario struct {
	Name        string   `yaml:"name" json:"name" validate:"required"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Strict overrides the runner's strict mode when set.
	Strict  *bool    `yaml:"strict,omitempty" json:"strict,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Routes are registered first, in order, then the named RouteSets.
	Routes    []RouteSpec `yaml:"routes,omitempty" json:"routes,omitempty" validate:"dive"`
	RouteSets []string    `yaml:"route_sets,omitempty" json:"route_sets,omitempty"`

	Actions []Action `yaml:"actions" json:"actions" validate:"required,min=1,dive"`

	// Setup registers routes from Go code. It runs before Routes.
	Setup RouteSet `yaml:"-" json:"-"`
	// Dir resolves relative fixture paths. Set by the loader.
	Dir string `yaml:"-" json:"-"`
}

// ActionType names what an Action does.
type ActionType string

const (
	ActGoto          ActionType = "goto"
	ActClick         ActionType = "click"
	ActFill          ActionType = "fill"
	ActPress         ActionType = "press"
	ActSelect        ActionType = "select"
	ActExpectText    ActionType = "expect_text"
	ActExpectNoText  ActionType = "expect_no_text"
	ActExpectTitle   ActionType = "expect_title"
	ActExpectVisible ActionType = "expect_visible"
	ActExpectHidden  ActionType = "expect_hidden"
)

// IsAssertion reports whether t checks page state instead of changing it.
func (t ActionType) IsAssertion() bool {
	switch t {
	case ActExpectText, ActExpectNoText, ActExpectTitle, ActExpectVisible, ActExpectHidden:
		return true
	}
	return false
}

// Action is one step of a scenario.
type Action struct {
	Type   ActionType      `yaml:"type" json:"type" validate:"required,oneof=goto click fill press select expect_text expect_no_text expect_title expect_visible expect_hidden"`
	URL    string          `yaml:"url,omitempty" json:"url,omitempty"`
	Target browser.Locator `yaml:"target,omitempty" json:"target,omitempty"`
	Value  string          `yaml:"value,omitempty" json:"value,omitempty"`
	Key    string          `yaml:"key,omitempty" json:"key,omitempty"`
	Text   string          `yaml:"text,omitempty" json:"text,omitempty"`
	// Timeout bounds the action's wait. Zero uses the runner default.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Validate checks the fields each action type needs.
func (a Action) Validate() error {
	needsTarget := true
	switch a.Type {
	case ActGoto:
		if a.URL == "" {
			return fmt.Errorf("%s: url is required", a.Type)
		}
		needsTarget = false
	case ActExpectTitle:
		if a.Text == "" {
			return fmt.Errorf("%s: text is required", a.Type)
		}
		needsTarget = false
	case ActPress:
		if a.Key == "" {
			return fmt.Errorf("%s: key is required", a.Type)
		}
	case ActSelect:
		if a.Value == "" {
			return fmt.Errorf("%s: value is required", a.Type)
		}
	case ActExpectText, ActExpectNoText:
		if a.Text == "" {
			return fmt.Errorf("%s: text is required", a.Type)
		}
	case ActClick, ActFill, ActExpectVisible, ActExpectHidden:
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if needsTarget {
		if err := a.Target.Validate(); err != nil {
			return fmt.Errorf("%s: target: %w", a.Type, err)
		}
	}
	if a.Timeout < 0 {
		return fmt.Errorf("%s: negative timeout", a.Type)
	}
	return nil
}

func (a Action) String() string {
	switch a.Type {
	case ActGoto:
		return "goto " + a.URL
	case ActExpectTitle:
		return fmt.Sprintf("expect_title %q", a.Text)
	case ActFill:
		return fmt.Sprintf("fill %s %q", a.Target, a.Value)
	case ActPress:
		return fmt.Sprintf("press %s %q", a.Target, a.Key)
	case ActSelect:
		return fmt.Sprintf("select %s %q", a.Target, a.Value)
	case ActExpectText, ActExpectNoText:
		return fmt.Sprintf("%s %s %q", a.Type, a.Target, a.Text)
	default:
		return fmt.Sprintf("%s %s", a.Type, a.Target)
	}
}

// Within returns a copy of a bounded by d.
func (a Action) Within(d time.Duration) Action {
	a.Timeout = Duration(d)
	return a
}

// Goto navigates to url, relative to the base URL.
func Goto(url string) Action { return Action{Type: ActGoto, URL: url} }

// Click clicks the first element l matches.
func Click(l browser.Locator) Action { return Action{Type: ActClick, Target: l} }

// Fill replaces the value of an input.
func Fill(l browser.Locator, value string) Action {
	return Action{Type: ActFill, Target: l, Value: value}
}

// Press presses key in the element l matches.
func Press(l browser.Locator, key string) Action {
	return Action{Type: ActPress, Target: l, Key: key}
}

// Select picks the option with the given value.
func Select(l browser.Locator, value string) Action {
	return Action{Type: ActSelect, Target: l, Value: value}
}

// ExpectText waits until the text of l contains text.
func ExpectText(l browser.Locator, text string) Action {
	return Action{Type: ActExpectText, Target: l, Text: text}
}

// ExpectNoText waits until the text of l no longer contains text.
func ExpectNoText(l browser.Locator, text string) Action {
	return Action{Type: ActExpectNoText, Target: l, Text: text}
}

// ExpectTitle waits until the document title equals title.
func ExpectTitle(title string) Action { return Action{Type: ActExpectTitle, Text: title} }

// ExpectVisible waits until l is visible.
func ExpectVisible(l browser.Locator) Action { return Action{Type: ActExpectVisible, Target: l} }

// ExpectHidden waits until l is hidden or gone.
func ExpectHidden(l browser.Locator) Action { return Action{Type: ActExpectHidden, Target: l} }

// Duration is a time.Duration that reads "5s" style strings from YAML and
// JSON. Bare numbers are milliseconds.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func parseDuration(s string) (Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(v), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := parseDuration(n.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ms int64
		if err := json.Unmarshal(b, &ms); err != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }
