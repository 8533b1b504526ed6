package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Suite is what scenario files define: scenarios and shared route sets.
type Suite struct {
	Scenarios []*Scenario
	RouteSets map[string]RouteSet
}

// document is one scenario file. A file holds either a single scenario at
// the top level or a list under "scenarios", plus optional shared routes.
type document struct {
	Scenario     `yaml:",inline"`
	Scenarios    []Scenario             `yaml:"scenarios,omitempty" json:"scenarios,omitempty"`
	SharedRoutes map[string][]RouteSpec `yaml:"shared_routes,omitempty" json:"shared_routes,omitempty"`
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// LoadFile parses a YAML or JSON scenario file. The format is detected by
// file extension.
func LoadFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}

	var doc document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported scenario format %q (expected .json, .yaml, or .yml)", ext)
	}

	dir := filepath.Dir(path)
	suite := &Suite{RouteSets: make(map[string]RouteSet)}

	names := make([]string, 0, len(doc.SharedRoutes))
	for name := range doc.SharedRoutes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		specs := doc.SharedRoutes[name]
		for i := range specs {
			if err := validateRoute(specs[i]); err != nil {
				return nil, fmt.Errorf("scenario %s: shared route %s[%d]: %w", path, name, i, err)
			}
		}
		suite.RouteSets[name] = Specs(dir, specs...)
	}

	list := doc.Scenarios
	switch {
	case doc.Name != "" && len(list) > 0:
		return nil, fmt.Errorf("scenario %s: use either a top-level scenario or a scenarios list", path)
	case doc.Name != "" || len(doc.Actions) > 0:
		list = []Scenario{doc.Scenario}
	case len(list) == 0 && len(suite.RouteSets) == 0:
		return nil, fmt.Errorf("scenario %s: no scenarios defined", path)
	}

	for i := range list {
		s := list[i]
		s.Dir = dir
		if err := Validate(&s); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", path, err)
		}
		suite.Scenarios = append(suite.Scenarios, &s)
	}
	return suite, nil
}

// LoadDir loads all .yaml, .yml, and .json scenario files from a directory.
// Duplicate scenario or route set names are an error.
func LoadDir(dir string) (*Suite, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario directory %s: %w", dir, err)
	}

	suite := &Suite{RouteSets: make(map[string]RouteSet)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		s, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if err := suite.Merge(s); err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}

	if len(suite.Scenarios) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	return suite, nil
}

// Merge adds other's scenarios and route sets to s.
func (s *Suite) Merge(other *Suite) error {
	if s.RouteSets == nil {
		s.RouteSets = make(map[string]RouteSet)
	}
	seen := make(map[string]bool, len(s.Scenarios))
	for _, sc := range s.Scenarios {
		seen[sc.Name] = true
	}
	for _, sc := range other.Scenarios {
		if seen[sc.Name] {
			return fmt.Errorf("duplicate scenario %q", sc.Name)
		}
		seen[sc.Name] = true
		s.Scenarios = append(s.Scenarios, sc)
	}
	for name, set := range other.RouteSets {
		if _, ok := s.RouteSets[name]; ok {
			return fmt.Errorf("duplicate route set %q", name)
		}
		s.RouteSets[name] = set
	}
	return nil
}

// Validate checks a scenario's fields and the per-type rules of every
// action and route.
func Validate(s *Scenario) error {
	if err := getValidator().Struct(s); err != nil {
		return fmt.Errorf("%s: %w", nameOr(s), validationError(err))
	}
	for i, a := range s.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%s: action %d: %w", nameOr(s), i, err)
		}
	}
	for i, r := range s.Routes {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: route %d: %w", nameOr(s), i, err)
		}
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%s: negative timeout", nameOr(s))
	}
	return nil
}

func validateRoute(r RouteSpec) error {
	if err := getValidator().Struct(r); err != nil {
		return validationError(err)
	}
	return r.Validate()
}

func nameOr(s *Scenario) string {
	if s.Name == "" {
		return "<unnamed>"
	}
	return s.Name
}

// validationError flattens validator errors into one readable error.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		field := strings.TrimPrefix(fe.Namespace(), "Scenario.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
