// Package config resolves the run configuration: the manifest, then
// PIZZA_E2E_* environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/wondertwin-ai/pizza-e2e/internal/manifest"
)

// Env holds the environment overrides. Only variables that are set to a
// non-empty value replace manifest values.
type Env struct {
	BaseURL         string        `env:"PIZZA_E2E_BASE_URL"`
	Driver          string        `env:"PIZZA_E2E_DRIVER"`
	Headless        bool          `env:"PIZZA_E2E_HEADLESS"`
	Strict          bool          `env:"PIZZA_E2E_STRICT"`
	Parallel        int           `env:"PIZZA_E2E_PARALLEL"`
	ActionTimeout   time.Duration `env:"PIZZA_E2E_ACTION_TIMEOUT"`
	ScenarioTimeout time.Duration `env:"PIZZA_E2E_SCENARIO_TIMEOUT"`
	ReadyTimeout    time.Duration `env:"PIZZA_E2E_READY_TIMEOUT"`
	TwinAddr        string        `env:"PIZZA_E2E_TWIN_ADDR"`
	TwinSecret      string        `env:"PIZZA_E2E_TWIN_SECRET"`
	ReportFormat    string        `env:"PIZZA_E2E_REPORT_FORMAT"`
	MetricsFile     string        `env:"PIZZA_E2E_METRICS_FILE"`
	LogLevel        string        `env:"PIZZA_E2E_LOG_LEVEL"`
	LogFormat       string        `env:"PIZZA_E2E_LOG_FORMAT"`

	set map[string]bool
}

// ParseEnv reads the overrides from environ, or from the process
// environment when environ is nil.
func ParseEnv(environ map[string]string) (*Env, error) {
	e := &Env{set: make(map[string]bool)}
	opts := env.Options{
		Environment: environ,
		OnSet: func(tag string, value interface{}, isDefault bool) {
			if v, _ := value.(string); v != "" && !isDefault {
				e.set[tag] = true
			}
		},
	}
	if err := env.ParseWithOptions(e, opts); err != nil {
		return nil, fmt.Errorf("op=config.ParseEnv: %w", err)
	}
	return e, nil
}

// IsSet reports whether the variable key was present.
func (e *Env) IsSet(key string) bool { return e.set[key] }

// Apply copies the present overrides onto m.
func (e *Env) Apply(m *manifest.Manifest) {
	str := func(key, v string, dst *string) {
		if e.set[key] {
			*dst = v
		}
	}
	dur := func(key string, v time.Duration, dst *time.Duration) {
		if e.set[key] {
			*dst = v
		}
	}
	str("PIZZA_E2E_BASE_URL", e.BaseURL, &m.BaseURL)
	str("PIZZA_E2E_DRIVER", e.Driver, &m.Browser.Driver)
	str("PIZZA_E2E_TWIN_ADDR", e.TwinAddr, &m.Twin.Addr)
	str("PIZZA_E2E_TWIN_SECRET", e.TwinSecret, &m.Twin.Secret)
	str("PIZZA_E2E_REPORT_FORMAT", e.ReportFormat, &m.Report.Format)
	str("PIZZA_E2E_METRICS_FILE", e.MetricsFile, &m.Report.MetricsFile)
	str("PIZZA_E2E_LOG_LEVEL", e.LogLevel, &m.Log.Level)
	str("PIZZA_E2E_LOG_FORMAT", e.LogFormat, &m.Log.Format)
	dur("PIZZA_E2E_ACTION_TIMEOUT", e.ActionTimeout, &m.Timeouts.Action)
	dur("PIZZA_E2E_SCENARIO_TIMEOUT", e.ScenarioTimeout, &m.Timeouts.Scenario)
	dur("PIZZA_E2E_READY_TIMEOUT", e.ReadyTimeout, &m.Timeouts.Ready)
	if e.set["PIZZA_E2E_HEADLESS"] {
		m.Browser.Headless = e.Headless
	}
	if e.set["PIZZA_E2E_STRICT"] {
		m.Strict = e.Strict
	}
	if e.set["PIZZA_E2E_PARALLEL"] {
		m.Parallel = e.Parallel
	}
}

// Load reads the manifest at path (falling back to the defaults when
// path is manifest.DefaultFile and absent), applies the environment,
// and validates the result.
func Load(path string, environ map[string]string) (*manifest.Manifest, error) {
	m, err := manifest.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.Load: %w", err)
	}
	e, err := ParseEnv(environ)
	if err != nil {
		return nil, err
	}
	e.Apply(m)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("op=config.Load: %w", err)
	}
	return m, nil
}
