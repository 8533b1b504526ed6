package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
	"github.com/wondertwin-ai/pizza-e2e/internal/browser/browsertest"
	"github.com/wondertwin-ai/pizza-e2e/internal/manifest"
	"github.com/wondertwin-ai/pizza-e2e/internal/pizzaapi"
	"github.com/wondertwin-ai/pizza-e2e/pkg/twincore"
)

var (
	orderNow = browser.ByRole("button", "Order now")
	menuList = browser.CSS("ul.menu")
)

// frontEnd scripts a one-page app that loads the menu on "Order now".
func frontEnd(p *browsertest.Page) {
	p.OnGoto(func(ctx context.Context, p *browsertest.Page, url string) error {
		p.Clear()
		p.SetTitle("JWT Pizza")
		p.Show(orderNow, "Order now")
		return nil
	})
	p.On("click", orderNow, func(ctx context.Context, p *browsertest.Page) error {
		var menu []struct {
			Title string `json:"title"`
		}
		if err := p.FetchJSON(ctx, "GET", "/api/order/menu", nil, &menu); err != nil {
			p.RaiseAppError(err.Error())
			return nil
		}
		titles := make([]string, len(menu))
		for i, m := range menu {
			titles[i] = m.Title
		}
		p.Show(menuList, titles...)
		return nil
	})
}

const menuScenario = `
name: menu from mock
routes:
  - pattern: "*/**/api/order/menu"
    expect_method: GET
    body: [{id: 1, title: Veggie}, {id: 2, title: Pepperoni}]
actions:
  - {type: goto, url: /}
  - {type: expect_title, text: JWT Pizza}
  - {type: click, target: {role: button, name: Order now}}
  - {type: expect_text, target: {css: ul.menu}, text: Veggie Pepperoni}
`

const wrongMenuScenario = `
name: menu mismatch
routes:
  - pattern: "*/**/api/order/menu"
    body: [{id: 1, title: Veggie}]
actions:
  - {type: goto, url: /}
  - {type: click, target: {role: button, name: Order now}}
  - {type: expect_text, target: {css: ul.menu}, text: Margarita, timeout: 50ms}
`

const unmockedScenario = `
name: menu unmocked
actions:
  - {type: goto, url: /}
  - {type: click, target: {role: button, name: Order now}}
`

type fixture struct {
	dir    string
	driver *browsertest.Driver
	opts   *RootOptions
}

func newFixture(t *testing.T, scenarios map[string]string) *fixture {
	t.Helper()
	dir := t.TempDir()
	sdir := filepath.Join(dir, "scenarios")
	require.NoError(t, os.Mkdir(sdir, 0o755))
	for name, content := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(sdir, name), []byte(content), 0o644))
	}
	cfg := `
base_url: http://localhost:5173
builtin: false
scenarios: [scenarios]
timeouts: {action: 1s, scenario: 10s, poll: 5ms, ready: 0s}
log: {level: error}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pizza-e2e.yaml"), []byte(cfg), 0o644))

	f := &fixture{dir: dir, driver: &browsertest.Driver{Setup: frontEnd}}
	f.opts = &RootOptions{
		Version: "test",
		Environ: map[string]string{},
		NewDriver: func(m *manifest.Manifest, _ *zap.Logger) (browser.Driver, error) {
			return f.driver, nil
		},
	}
	return f
}

func (f *fixture) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(f.opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(f.dir, "pizza-e2e.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand("dev")
	for _, path := range [][]string{
		{"run"}, {"list"}, {"validate"}, {"version"},
		{"twin", "serve"}, {"twin", "status"}, {"twin", "reset"}, {"twin", "seed"}, {"twin", "state"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestRunPasses(t *testing.T) {
	f := newFixture(t, map[string]string{"menu.yaml": menuScenario})
	out, err := f.execute(t, "run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "PASS  menu from mock")
	assert.Contains(t, out, "Results: 1 passed, 0 failed, 1 total")
	assert.Len(t, f.driver.Pages(), 1)
	assert.True(t, f.driver.Pages()[0].Closed())
}

func TestRunFailureExitsOne(t *testing.T) {
	f := newFixture(t, map[string]string{
		"menu.yaml":  menuScenario,
		"wrong.yaml": wrongMenuScenario,
	})
	out, err := f.execute(t, "run", "--parallel", "2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 2 scenarios failed")
	assert.Contains(t, out, "FAIL  menu mismatch")
	assert.Contains(t, out, "AssertionMismatch at action 2")
}

func TestRunStrictModeFlag(t *testing.T) {
	f := newFixture(t, map[string]string{"unmocked.yaml": unmockedScenario})

	out, err := f.execute(t, "run")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "UnmatchedRequest")

	// Without strict mode the request continues to the network, which the
	// fake page does not have; the app reports it as an uncaught error.
	out, err = f.execute(t, "run", "--strict=false")
	require.Error(t, err)
	assert.Contains(t, out, "UnhandledApplicationError")
}

func TestRunFilterAndFormats(t *testing.T) {
	f := newFixture(t, map[string]string{
		"menu.yaml":  menuScenario,
		"wrong.yaml": wrongMenuScenario,
	})

	out, err := f.execute(t, "run", "--run", "from mock", "--format", "json")
	require.NoError(t, err, out)
	var doc struct {
		Results []struct {
			Scenario string `json:"scenario"`
			State    string `json:"state"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Results, 1)
	assert.Equal(t, "menu from mock", doc.Results[0].Scenario)
	assert.Equal(t, "Passed", doc.Results[0].State)

	junit := filepath.Join(f.dir, "report.xml")
	metricsFile := filepath.Join(f.dir, "metrics.prom")
	out, err = f.execute(t, "run", "-f", "junit", "-o", junit, "--metrics-file", metricsFile)
	require.Error(t, err)
	assert.Contains(t, out, "Results: 1 passed, 1 failed, 2 total")

	data, err := os.ReadFile(junit)
	require.NoError(t, err)
	var suite struct {
		Tests    int `xml:"tests,attr"`
		Failures int `xml:"failures,attr"`
	}
	require.NoError(t, xml.Unmarshal(data, &suite))
	assert.Equal(t, 2, suite.Tests)
	assert.Equal(t, 1, suite.Failures)

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "pizza_e2e_scenarios_total")
}

func TestRunCommandErrors(t *testing.T) {
	f := newFixture(t, map[string]string{"menu.yaml": menuScenario})

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad driver", []string{"run", "--driver", "selenium"}, "Driver: failed oneof"},
		{"bad filter", []string{"run", "--run", "("}, "invalid filter"},
		{"no match", []string{"run", "--run", "nothing"}, "no scenarios to run"},
		{"missing path", []string{"run", "nope.yaml"}, "scenario path"},
		{"unknown flag", []string{"run", "--bogus"}, "unknown flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	f.opts.NewDriver = func(*manifest.Manifest, *zap.Logger) (browser.Driver, error) {
		return nil, errors.New("no chromium")
	}
	_, err := f.execute(t, "run")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorContains(t, err, "no chromium")
}

func TestRunWaitsForFrontEnd(t *testing.T) {
	f := newFixture(t, map[string]string{"menu.yaml": menuScenario})
	srv := httptest.NewServer(nil)
	srv.Close()

	f.opts.Environ = map[string]string{"PIZZA_E2E_READY_TIMEOUT": "200ms"}
	_, err := f.execute(t, "run", "--base-url", srv.URL)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "front end unreachable")
}

func TestRunExplicitPathSkipsManifestScenarios(t *testing.T) {
	f := newFixture(t, map[string]string{"wrong.yaml": wrongMenuScenario})
	path := filepath.Join(t.TempDir(), "menu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(menuScenario), 0o644))

	out, err := f.execute(t, "run", path)
	require.NoError(t, err, out)
	assert.NotContains(t, out, "menu mismatch")
}

func TestListIncludesBuiltins(t *testing.T) {
	f := newFixture(t, map[string]string{"menu.yaml": menuScenario})
	f.opts.Environ = map[string]string{}

	cfg := filepath.Join(f.dir, "pizza-e2e.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("base_url: http://localhost:5173\nscenarios: [scenarios]\n"), 0o644))

	out, err := f.execute(t, "list", "--json")
	require.NoError(t, err)
	var entries []listEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 10)

	sources := map[string]string{}
	for _, e := range entries {
		sources[e.Name] = e.Source
	}
	assert.Equal(t, "builtin", sources["purchase with login"])
	assert.Equal(t, filepath.Join(f.dir, "scenarios"), sources["menu from mock"])

	out, err = f.execute(t, "list", "--run", "^purchase")
	require.NoError(t, err)
	assert.Contains(t, out, "purchase with login")
	assert.Contains(t, out, "pizza-mocks")
	assert.Contains(t, out, "1 scenarios")
}

func TestValidate(t *testing.T) {
	f := newFixture(t, map[string]string{"menu.yaml": menuScenario})
	out, err := f.execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 1 scenarios")
	assert.Contains(t, out, "pizza-mocks")

	bad := newFixture(t, map[string]string{
		"refs.yaml": "name: refs\nroute_sets: [missing]\nactions: [{type: goto, url: /}]",
	})
	_, err = bad.execute(t, "validate")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown route set "missing"`)

	broken := newFixture(t, map[string]string{"broken.yaml": "name: broken\nactions: [{type: click}]"})
	_, err = broken.execute(t, "validate")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestTwinCommands(t *testing.T) {
	twin, _, err := pizzaapi.NewTwin(&twincore.Config{}, zap.NewNop(), "test-secret")
	require.NoError(t, err)
	srv := httptest.NewServer(twin)
	defer srv.Close()

	f := newFixture(t, map[string]string{"menu.yaml": menuScenario})

	out, err := f.execute(t, "twin", "status", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")

	seed := filepath.Join(f.dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`{"franchises":[{"id":7,"name":"crustCo"}]}`), 0o644))
	_, err = f.execute(t, "twin", "seed", seed, "--addr", srv.URL)
	require.NoError(t, err)

	out, err = f.execute(t, "twin", "state", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "crustCo"`)

	_, err = f.execute(t, "twin", "reset", "--addr", srv.URL)
	require.NoError(t, err)
	out, err = f.execute(t, "twin", "state", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "pizzaPocket")

	srv.Close()
	_, err = f.execute(t, "twin", "status", "--addr", srv.URL)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestVersion(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("pizza-e2e version test (service twin %s)\n", pizzaapi.Version), out)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("flag")))
	wrapped := fmt.Errorf("outer: %w", NewExitError(ExitFailure, "failed"))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))

	e := WrapExitError(ExitCommandError, "loading", errors.New("boom"))
	assert.Equal(t, "loading: boom", e.Error())
	assert.EqualError(t, errors.Unwrap(e), "boom")
}

func TestExampleManifestAndScenarios(t *testing.T) {
	f := newFixture(t, nil)
	f.opts.Config = filepath.Join("..", "..", manifest.DefaultFile)
	m, _, err := f.opts.load(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Parallel)

	suite, err := loadSuite(m, nil)
	require.NoError(t, err)
	require.NoError(t, checkSuite(suite))
	assert.Len(t, suite.Scenarios, 11)
	assert.Contains(t, routeSetNames(suite), "kai-auth")
}
