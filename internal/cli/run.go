package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/client"
	"github.com/wondertwin-ai/pizza-e2e/internal/manifest"
	"github.com/wondertwin-ai/pizza-e2e/internal/metrics"
	"github.com/wondertwin-ai/pizza-e2e/internal/pizzaapi"
	"github.com/wondertwin-ai/pizza-e2e/internal/scenario"
)

type runOptions struct {
	baseURL     string
	driver      string
	parallel    int
	strict      bool
	headless    bool
	filter      string
	format      string
	output      string
	metricsFile string
	noWait      bool
}

func newRunCommand(root *RootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run scenarios and report the results",
		Long: `Run the built-in scenarios and the manifest's scenario files, or the
scenario files and directories given as arguments.

Exits 0 when every scenario passed, 1 when any failed, and 2 when the run
could not start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, root, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", "", "front end base URL")
	f.StringVar(&opts.driver, "driver", "", "browser driver (pw|cdp)")
	f.IntVarP(&opts.parallel, "parallel", "p", 1, "scenarios run at once")
	f.BoolVar(&opts.strict, "strict", true, "fail on requests no route matches")
	f.BoolVar(&opts.headless, "headless", true, "run the browser headless")
	f.StringVar(&opts.filter, "run", "", "only run scenarios whose name matches this regexp")
	f.StringVarP(&opts.format, "format", "f", "", "report format (text|json|junit)")
	f.StringVarP(&opts.output, "output", "o", "", "write the report to a file instead of stdout")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	f.BoolVar(&opts.noWait, "no-wait", false, "skip waiting for the front end to answer")
	return cmd
}

// overrides applies only the flags the user set.
func (o *runOptions) overrides(cmd *cobra.Command) func(m *manifest.Manifest) {
	return func(m *manifest.Manifest) {
		f := cmd.Flags()
		if f.Changed("base-url") {
			m.BaseURL = o.baseURL
		}
		if f.Changed("driver") {
			m.Browser.Driver = o.driver
		}
		if f.Changed("parallel") {
			m.Parallel = o.parallel
		}
		if f.Changed("strict") {
			m.Strict = o.strict
		}
		if f.Changed("headless") {
			m.Browser.Headless = o.headless
		}
		if f.Changed("format") {
			m.Report.Format = o.format
		}
		if f.Changed("output") {
			m.Report.Output = o.output
		}
		if f.Changed("metrics-file") {
			m.Report.MetricsFile = o.metricsFile
		}
	}
}

func runRun(cmd *cobra.Command, root *RootOptions, opts *runOptions, args []string) error {
	m, logger, err := root.load(opts.overrides(cmd))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	suite, err := loadSuite(m, args)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading scenarios", err)
	}
	if err := checkSuite(suite); err != nil {
		return WrapExitError(ExitCommandError, "invalid scenarios", err)
	}
	scenarios, err := scenario.Filter(suite.Scenarios, opts.filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "filtering scenarios", err)
	}
	if len(scenarios) == 0 {
		return NewExitError(ExitCommandError, "no scenarios to run")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.noWait && m.Timeouts.Ready > 0 {
		logger.Info("waiting for front end", zap.String("url", m.BaseURL))
		if err := client.WaitReady(ctx, m.BaseURL, m.Timeouts.Ready); err != nil {
			return WrapExitError(ExitCommandError, "front end unreachable", err)
		}
	}

	driver, err := root.NewDriver(m, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "starting browser driver", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("closing driver", zap.Error(err))
		}
	}()

	collector := metrics.New()
	runnerOpts := []scenario.Option{
		scenario.WithLogger(logger),
		scenario.WithMetrics(collector),
		scenario.WithTwin(pizzaapi.Factory(m.SeedPath(), logger.Named("twin"))),
	}
	for name, set := range suite.RouteSets {
		runnerOpts = append(runnerOpts, scenario.WithRouteSet(name, set))
	}
	runner, err := scenario.NewRunner(driver, scenario.Config{
		BaseURL:         m.BaseURL,
		Strict:          m.Strict,
		Scope:           m.Scope,
		ActionTimeout:   m.Timeouts.Action,
		ScenarioTimeout: m.Timeouts.Scenario,
		PollInterval:    m.Timeouts.Poll,
	}, runnerOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "creating runner", err)
	}

	report := scenario.NewReport()
	logger.Info("running scenarios",
		zap.String("run_id", report.RunID),
		zap.String("driver", driver.Name()),
		zap.Int("scenarios", len(scenarios)),
		zap.Int("parallel", m.Parallel),
	)
	runner.RunAll(ctx, scenarios, m.Parallel, report)

	if err := writeReport(cmd.OutOrStdout(), m.Report, report); err != nil {
		return WrapExitError(ExitCommandError, "writing report", err)
	}
	if m.Report.MetricsFile != "" {
		if err := collector.WriteTextfile(m.Report.MetricsFile); err != nil {
			return WrapExitError(ExitCommandError, "writing metrics", err)
		}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Warn("run interrupted")
	}

	if !report.OK() {
		s := report.Summary()
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", s.Failed, s.Total))
	}
	return nil
}

// writeReport writes the report to cfg.Output, or to stdout. A report
// written to a file is also summarized on stdout as text.
func writeReport(stdout io.Writer, cfg manifest.Report, report *scenario.Report) error {
	w := stdout
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	var err error
	switch cfg.Format {
	case "json":
		err = report.WriteJSON(w)
	case "junit":
		err = report.WriteJUnit(w)
	default:
		err = report.WriteText(w)
	}
	if err != nil {
		return err
	}
	if cfg.Output != "" {
		if cfg.Format != "text" {
			return report.WriteText(stdout)
		}
		_, err = fmt.Fprintf(stdout, "report written to %s\n", cfg.Output)
	}
	return err
}
