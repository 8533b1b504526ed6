package browser

import (
	"errors"
	"fmt"
	"strings"
)

// Locator finds elements the way a user perceives them. Exactly one of Role,
// Placeholder, Label, Text or CSS is set. Within scopes the search to the
// elements matched by a parent locator.
type Locator struct {
	Role        string   `yaml:"role,omitempty" json:"role,omitempty"`
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Placeholder string   `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Label       string   `yaml:"label,omitempty" json:"label,omitempty"`
	Text        string   `yaml:"text,omitempty" json:"text,omitempty"`
	CSS         string   `yaml:"css,omitempty" json:"css,omitempty"`
	Exact       bool     `yaml:"exact,omitempty" json:"exact,omitempty"`
	Within      *Locator `yaml:"within,omitempty" json:"within,omitempty"`
}

// Kind names the strategy of a locator.
type Kind string

const (
	KindRole        Kind = "role"
	KindPlaceholder Kind = "placeholder"
	KindLabel       Kind = "label"
	KindText        Kind = "text"
	KindCSS         Kind = "css"
)

// ByRole locates by ARIA role and, when name is non-empty, accessible name.
func ByRole(role, name string) Locator { return Locator{Role: role, Name: name} }

// ByPlaceholder locates inputs by placeholder text.
func ByPlaceholder(text string) Locator { return Locator{Placeholder: text} }

// ByLabel locates elements by their label or aria-label.
func ByLabel(text string) Locator { return Locator{Label: text} }

// ByText locates the innermost elements containing text.
func ByText(text string) Locator { return Locator{Text: text} }

// CSS locates by CSS selector.
func CSS(selector string) Locator { return Locator{CSS: selector} }

// In returns l scoped to parent.
func (l Locator) In(parent Locator) Locator {
	p := parent
	l.Within = &p
	return l
}

// Kind returns the locator strategy, or "" when none or several are set.
func (l Locator) Kind() Kind {
	var kinds []Kind
	if l.Role != "" {
		kinds = append(kinds, KindRole)
	}
	if l.Placeholder != "" {
		kinds = append(kinds, KindPlaceholder)
	}
	if l.Label != "" {
		kinds = append(kinds, KindLabel)
	}
	if l.Text != "" {
		kinds = append(kinds, KindText)
	}
	if l.CSS != "" {
		kinds = append(kinds, KindCSS)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Validate checks that exactly one strategy is set along the whole chain.
func (l Locator) Validate() error {
	if l.Kind() == "" {
		return fmt.Errorf("locator %s: set exactly one of role, placeholder, label, text, css", l)
	}
	if l.Name != "" && l.Role == "" {
		return errors.New("locator: name is only valid with role")
	}
	if l.Within != nil {
		return l.Within.Validate()
	}
	return nil
}

// Chain returns the locators from outermost parent to l.
func (l Locator) Chain() []Locator {
	var chain []Locator
	for cur := &l; cur != nil; cur = cur.Within {
		c := *cur
		c.Within = nil
		chain = append([]Locator{c}, chain...)
	}
	return chain
}

// String renders l in Playwright notation, e.g.
// getByRole("row", {name: "x"}).getByRole("button").
func (l Locator) String() string {
	parts := make([]string, 0, 2)
	for _, c := range l.Chain() {
		parts = append(parts, c.step())
	}
	return strings.Join(parts, ".")
}

func (l Locator) step() string {
	exact := ""
	if l.Exact {
		exact = ", exact: true"
	}
	switch l.Kind() {
	case KindRole:
		if l.Name == "" {
			return fmt.Sprintf("getByRole(%q)", l.Role)
		}
		return fmt.Sprintf("getByRole(%q, {name: %q%s})", l.Role, l.Name, exact)
	case KindPlaceholder:
		return fmt.Sprintf("getByPlaceholder(%q)", l.Placeholder)
	case KindLabel:
		return fmt.Sprintf("getByLabel(%q)", l.Label)
	case KindText:
		return fmt.Sprintf("getByText(%q)", l.Text)
	case KindCSS:
		return fmt.Sprintf("locator(%q)", l.CSS)
	default:
		return "invalid()"
	}
}
