package scenario

import (
	"context"
	"fmt"
	"regexp"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunAll runs every scenario, at most parallel at a time, appending each
// result to report as it finishes. One scenario's failure, or panic, never
// stops the others.
func (r *Runner) RunAll(ctx context.Context, scenarios []*Scenario, parallel int, report *Report) {
	if parallel < 1 {
		parallel = 1
	}
	var g errgroup.Group
	g.SetLimit(parallel)
	for _, s := range scenarios {
		g.Go(func() error {
			report.Append(r.runSafe(ctx, s))
			return nil
		})
	}
	_ = g.Wait()
}

// runSafe converts a panic in a scenario into a DriverError result.
func (r *Runner) runSafe(ctx context.Context, s *Scenario) (res *Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("scenario panicked",
				zap.String("scenario", s.Name),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			res = &Result{
				Scenario: s.Name,
				State:    Failed,
				Started:  start,
				Duration: time.Since(start),
				Failure: &Failure{
					Kind:        DriverError,
					ActionIndex: -1,
					Message:     fmt.Sprintf("panic: %v", p),
				},
			}
			r.metrics.ObserveScenario(Failed.String(), string(DriverError), res.Duration)
		}
	}()
	return r.Run(ctx, s)
}

// Filter returns the scenarios whose name matches expr. An empty expr
// keeps every scenario.
func Filter(scenarios []*Scenario, expr string) ([]*Scenario, error) {
	if expr == "" {
		return scenarios, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, err)
	}
	var out []*Scenario
	for _, s := range scenarios {
		if re.MatchString(s.Name) {
			out = append(out, s)
		}
	}
	return out, nil
}
