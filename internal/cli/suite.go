package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
	"github.com/wondertwin-ai/pizza-e2e/internal/browser/cdp"
	"github.com/wondertwin-ai/pizza-e2e/internal/browser/pw"
	"github.com/wondertwin-ai/pizza-e2e/internal/manifest"
	"github.com/wondertwin-ai/pizza-e2e/internal/pizza"
	"github.com/wondertwin-ai/pizza-e2e/internal/scenario"
)

// loadSuite gathers the scenarios to run. Explicit paths replace the
// manifest's scenario list and the built-in suite. The built-in route
// sets are always available to scenario files.
func loadSuite(m *manifest.Manifest, paths []string) (*scenario.Suite, error) {
	suite := &scenario.Suite{RouteSets: pizza.RouteSets()}
	if len(paths) == 0 {
		paths = m.ScenarioPaths()
		if m.Builtin {
			suite.Scenarios = pizza.Scenarios()
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("scenario path %s: %w", path, err)
		}
		var s *scenario.Suite
		if info.IsDir() {
			s, err = scenario.LoadDir(path)
		} else {
			s, err = scenario.LoadFile(path)
		}
		if err != nil {
			return nil, err
		}
		if err := suite.Merge(s); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return suite, nil
}

// checkSuite validates every scenario and its route set references.
func checkSuite(suite *scenario.Suite) error {
	var errs []error
	for _, s := range suite.Scenarios {
		if err := scenario.Validate(s); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, name := range s.RouteSets {
			if _, ok := suite.RouteSets[name]; !ok {
				errs = append(errs, fmt.Errorf("%s: unknown route set %q", s.Name, name))
			}
		}
	}
	return errors.Join(errs...)
}

// routeSetNames returns the suite's route set names in sorted order.
func routeSetNames(suite *scenario.Suite) []string {
	names := make([]string, 0, len(suite.RouteSets))
	for name := range suite.RouteSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// openDriver starts the browser driver the manifest selects.
func openDriver(m *manifest.Manifest, logger *zap.Logger) (browser.Driver, error) {
	switch m.Browser.Driver {
	case manifest.DriverChromedp:
		return cdp.New(cdp.Options{
			Headless:       m.Browser.Headless,
			ExecPath:       m.Browser.ExecPath,
			DefaultTimeout: m.Timeouts.Action,
			PollInterval:   m.Timeouts.Poll,
		}, logger), nil
	case manifest.DriverPlaywright:
		d, err := pw.New(pw.Options{
			Headless:       m.Browser.Headless,
			Install:        m.Browser.Install,
			ExecutablePath: m.Browser.ExecPath,
			SlowMo:         m.Browser.SlowMo,
			DefaultTimeout: m.Timeouts.Action,
		}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", m.Browser.Driver)
	}
}
