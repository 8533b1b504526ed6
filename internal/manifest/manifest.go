// Package manifest parses pizza-e2e.yaml run manifests.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the manifest name looked up in the working directory.
const DefaultFile = "pizza-e2e.yaml"

// Drivers.
const (
	DriverPlaywright = "pw"
	DriverChromedp   = "cdp"
)

// Browser configures the browser driver.
type Browser struct {
	Driver   string        `yaml:"driver" validate:"oneof=pw cdp"`
	Headless bool          `yaml:"headless"`
	Install  bool          `yaml:"install"`
	ExecPath string        `yaml:"exec_path"`
	SlowMo   time.Duration `yaml:"slow_mo" validate:"gte=0"`
}

// Timeouts bounds actions, scenarios, and the wait for the front end.
type Timeouts struct {
	Action   time.Duration `yaml:"action" validate:"gt=0"`
	Scenario time.Duration `yaml:"scenario" validate:"gt=0"`
	Poll     time.Duration `yaml:"poll" validate:"gt=0"`
	Ready    time.Duration `yaml:"ready" validate:"gte=0"`
}

// Twin configures the in-process JWT Pizza service twin.
type Twin struct {
	Addr   string `yaml:"addr" validate:"required"`
	Seed   string `yaml:"seed"`
	Secret string `yaml:"secret"`
}

// Report selects the report format and destinations.
type Report struct {
	Format      string `yaml:"format" validate:"oneof=text json junit"`
	Output      string `yaml:"output"`
	MetricsFile string `yaml:"metrics_file"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// Manifest represents a parsed pizza-e2e.yaml file.
type Manifest struct {
	BaseURL   string   `yaml:"base_url" validate:"required,url"`
	Strict    bool     `yaml:"strict"`
	Scope     string   `yaml:"scope"`
	Parallel  int      `yaml:"parallel" validate:"gte=1,lte=64"`
	Scenarios []string `yaml:"scenarios"`
	// Builtin runs the compiled-in JWT Pizza scenarios alongside Scenarios.
	Builtin  bool     `yaml:"builtin"`
	Browser  Browser  `yaml:"browser"`
	Timeouts Timeouts `yaml:"timeouts"`
	Twin     Twin     `yaml:"twin"`
	Report   Report   `yaml:"report"`
	Log      Log      `yaml:"log"`

	// Dir is the directory of the manifest file; scenario paths resolve
	// against it.
	Dir string `yaml:"-"`
}

// Default returns the manifest used when no file exists: the built-in
// scenarios against a Vite dev server on localhost:5173.
func Default() *Manifest {
	return &Manifest{
		BaseURL:  "http://localhost:5173",
		Strict:   true,
		Scope:    "**/api/**",
		Parallel: 1,
		Builtin:  true,
		Browser: Browser{
			Driver:   DriverPlaywright,
			Headless: true,
		},
		Timeouts: Timeouts{
			Action:   5 * time.Second,
			Scenario: 30 * time.Second,
			Poll:     100 * time.Millisecond,
			Ready:    30 * time.Second,
		},
		Twin:   Twin{Addr: "127.0.0.1:3000"},
		Report: Report{Format: "text"},
		Log:    Log{Level: "info", Format: "console"},
		Dir:    ".",
	}
}

// Load reads and parses a manifest. Fields the file leaves out keep
// their Default values.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	m := Default()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	m.Dir = filepath.Dir(path)

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// LoadOrDefault loads path. A missing file yields Default when path is
// DefaultFile, so running without a manifest works; any other missing
// path is an error.
func LoadOrDefault(path string) (*Manifest, error) {
	m, err := Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) && filepath.Clean(path) == DefaultFile {
		return Default(), nil
	}
	return m, err
}

var validate = validator.New()

// Validate checks field ranges and enumerations, and that at least one
// scenario source is configured.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %s %s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return err
	}
	if !m.Builtin && len(m.Scenarios) == 0 {
		return errors.New("no scenarios: set builtin or list scenario paths")
	}
	return nil
}

// ScenarioPaths returns Scenarios resolved against the manifest directory.
func (m *Manifest) ScenarioPaths() []string {
	paths := make([]string, 0, len(m.Scenarios))
	for _, p := range m.Scenarios {
		if !filepath.IsAbs(p) && m.Dir != "" {
			p = filepath.Join(m.Dir, p)
		}
		paths = append(paths, p)
	}
	return paths
}

// SeedPath returns the twin seed file resolved against the manifest
// directory, or "" when none is set.
func (m *Manifest) SeedPath() string {
	if m.Twin.Seed == "" || filepath.IsAbs(m.Twin.Seed) || m.Dir == "" {
		return m.Twin.Seed
	}
	return filepath.Join(m.Dir, m.Twin.Seed)
}
