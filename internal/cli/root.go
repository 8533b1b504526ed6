// Package cli implements the pizza-e2e command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
	"github.com/wondertwin-ai/pizza-e2e/internal/config"
	"github.com/wondertwin-ai/pizza-e2e/internal/logging"
	"github.com/wondertwin-ai/pizza-e2e/internal/manifest"
)

// RootOptions holds global flags and the dependencies commands share.
type RootOptions struct {
	Config    string
	LogLevel  string
	LogFormat string

	Version string
	// Environ replaces the process environment when non-nil.
	Environ map[string]string
	// NewDriver opens the browser driver named by the manifest.
	NewDriver func(m *manifest.Manifest, logger *zap.Logger) (browser.Driver, error)
}

// NewRootCommand creates the root command of the pizza-e2e CLI.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(&RootOptions{Version: version, NewDriver: openDriver})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pizza-e2e",
		Short: "Browser scenarios for the JWT Pizza front end",
		Long: `pizza-e2e drives the JWT Pizza front end through scripted user scenarios.

Every scenario runs in its own browser session with its own request
interceptor, answering API calls from mocks or from a fresh in-process
JWT Pizza service twin.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defConfig := manifest.DefaultFile
	if p := os.Getenv("PIZZA_E2E_CONFIG"); p != "" {
		defConfig = p
	}
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", defConfig, "run manifest")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (console|json)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newTwinCommand(opts))
	cmd.AddCommand(newVersionCommand(opts))
	return cmd
}

// load resolves the manifest (file, environment, global flags) and builds
// the logger. overrides applies command flags before validation.
func (o *RootOptions) load(overrides func(m *manifest.Manifest)) (*manifest.Manifest, *zap.Logger, error) {
	m, err := config.Load(o.Config, o.Environ)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "loading config", err)
	}
	if o.LogLevel != "" {
		m.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		m.Log.Format = o.LogFormat
	}
	if overrides != nil {
		overrides(m)
	}
	if err := m.Validate(); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	logger, err := logging.New(logging.Options{Level: m.Log.Level, Format: m.Log.Format})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "building logger", err)
	}
	return m, logger, nil
}
