package scenario

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
	"github.com/wondertwin-ai/pizza-e2e/internal/metrics"
	"github.com/wondertwin-ai/pizza-e2e/internal/route"
)

// Config holds the runner settings.
type Config struct {
	BaseURL string
	// Strict fails scenarios on requests no route matches.
	Strict bool
	// Scope limits interception. Empty intercepts every request.
	Scope           string
	ActionTimeout   time.Duration
	ScenarioTimeout time.Duration
	PollInterval    time.Duration
}

// Defaults match Playwright's expect and test timeouts.
const (
	DefaultActionTimeout   = 5 * time.Second
	DefaultScenarioTimeout = 30 * time.Second
	DefaultPollInterval    = 100 * time.Millisecond
)

// ActionResult records one executed action.
type ActionResult struct {
	Index    int           `json:"index"`
	Action   string        `json:"action"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Passed   bool          `json:"passed"`
}

// Result records the outcome of one scenario run.
type Result struct {
	Scenario  string         `json:"scenario"`
	SessionID string         `json:"session_id"`
	State     State          `json:"state"`
	Started   time.Time      `json:"started"`
	Duration  time.Duration  `json:"duration_ns"`
	Actions   []ActionResult `json:"actions"`
	Failure   *Failure       `json:"failure,omitempty"`
	Requests  []route.Call   `json:"requests,omitempty"`
}

// Passed reports whether the scenario passed.
func (r *Result) Passed() bool { return r.State == Passed }

// Runner executes scenarios, each in its own browser session.
type Runner struct {
	driver  browser.Driver
	cfg     Config
	scope   *route.Glob
	sets    map[string]RouteSet
	newTwin func() (http.Handler, error)
	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithMetrics records scenario, action and dispatch metrics on c.
func WithMetrics(c *metrics.Collector) Option { return func(r *Runner) { r.metrics = c } }

// WithRouteSet makes a shared route set available to scenarios by name.
func WithRouteSet(name string, set RouteSet) Option {
	return func(r *Runner) { r.sets[name] = set }
}

// WithTwin sets the factory for per-session backend twins.
func WithTwin(factory func() (http.Handler, error)) Option {
	return func(r *Runner) { r.newTwin = factory }
}

// NewRunner creates a Runner. It fails when cfg.Scope is not a valid glob.
func NewRunner(d browser.Driver, cfg Config, opts ...Option) (*Runner, error) {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.ScenarioTimeout <= 0 {
		cfg.ScenarioTimeout = DefaultScenarioTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	r := &Runner{
		driver: d,
		cfg:    cfg,
		sets:   make(map[string]RouteSet),
		logger: zap.NewNop(),
	}
	if cfg.Scope != "" {
		g, err := route.CompileGlob(cfg.Scope)
		if err != nil {
			return nil, fmt.Errorf("scope: %w", err)
		}
		r.scope = g
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// HasRouteSet reports whether name is registered.
func (r *Runner) HasRouteSet(name string) bool {
	_, ok := r.sets[name]
	return ok
}

// Run executes s in a fresh session. It never returns a nil Result; a
// failed scenario is reported through Result.Failure.
func (r *Runner) Run(ctx context.Context, s *Scenario) *Result {
	var life Lifecycle
	res := &Result{
		Scenario:  s.Name,
		SessionID: uuid.NewString(),
		Started:   time.Now(),
	}
	logger := r.logger.With(zap.String("scenario", s.Name), zap.String("session", res.SessionID))

	timeout := r.cfg.ScenarioTimeout
	if s.Timeout > 0 {
		timeout = s.Timeout.D()
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_ = life.Start()
	logger.Debug("scenario started")

	sess, page, f := r.open(sctx, s, res.SessionID, logger)
	var done []Action
	if f == nil {
		done, f = r.execute(sctx, s, sess, page, res, logger)
	}
	if page != nil {
		if f == nil {
			r.drain(sess, logger)
		}
		if err := page.Close(); err != nil {
			logger.Debug("closing page", zap.Error(err))
		}
		if f == nil {
			r.drain(sess, logger)
			f = r.settle(sess, page, res, done)
		}
	}
	if sess != nil {
		res.Requests = sess.Interceptor.Calls()
	}

	if f != nil {
		_ = life.Fail()
		res.Failure = f
	} else {
		_ = life.Pass()
	}
	res.State = life.State()
	res.Duration = time.Since(res.Started)

	kind := ""
	if f != nil {
		kind = string(f.Kind)
		logger.Info("scenario failed", zap.Duration("duration", res.Duration), zap.Error(f))
	} else {
		logger.Info("scenario passed", zap.Duration("duration", res.Duration))
	}
	r.metrics.ObserveScenario(res.State.String(), kind, res.Duration)
	return res
}

// open builds the session: interceptor, routes, page.
func (r *Runner) open(ctx context.Context, s *Scenario, id string, logger *zap.Logger) (*Session, browser.Page, *Failure) {
	strict := r.cfg.Strict
	if s.Strict != nil {
		strict = *s.Strict
	}
	icOpts := []route.InterceptorOption{
		route.Strict(strict),
		route.WithLogger(logger),
		route.WithMetrics(r.metrics),
	}
	if r.scope != nil {
		icOpts = append(icOpts, route.WithScope(r.scope))
	}

	sess := &Session{
		ID:          id,
		BaseURL:     r.cfg.BaseURL,
		Interceptor: route.New(icOpts...),
		Vars: map[string]string{
			"session":  id,
			"random":   strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
			"base_url": r.cfg.BaseURL,
		},
		Logger:  logger,
		newTwin: r.newTwin,
	}

	setup := func() error {
		if s.Setup != nil {
			if err := s.Setup(sess); err != nil {
				return fmt.Errorf("setup: %w", err)
			}
		}
		if err := Specs(s.Dir, s.Routes...)(sess); err != nil {
			return err
		}
		for _, name := range s.RouteSets {
			set, ok := r.sets[name]
			if !ok {
				return fmt.Errorf("unknown route set %q", name)
			}
			if err := set(sess); err != nil {
				return fmt.Errorf("route set %q: %w", name, err)
			}
		}
		return nil
	}
	if err := setup(); err != nil {
		return sess, nil, (&Failure{Kind: DriverError, Message: err.Error(), Err: err}).at(-1, nil)
	}

	page, err := r.driver.NewPage(ctx, browser.SessionOptions{
		ID:          id,
		BaseURL:     r.cfg.BaseURL,
		Interceptor: sess.Interceptor,
		Logger:      logger,
	})
	if err != nil {
		return sess, nil, classify(ctx, ctx, fmt.Errorf("open page: %w", err)).at(-1, nil)
	}
	return sess, page, nil
}

// execute runs the actions in order and stops at the first failure. It
// returns the expanded actions that were started.
func (r *Runner) execute(ctx context.Context, s *Scenario, sess *Session, page browser.Page, res *Result, logger *zap.Logger) ([]Action, *Failure) {
	done := make([]Action, 0, len(s.Actions))
	for i := range s.Actions {
		a, err := expandAction(s.Actions[i], sess.Vars)
		if err != nil {
			return done, (&Failure{Kind: DriverError, Message: err.Error(), Err: err}).at(i, &s.Actions[i])
		}
		done = append(done, a)

		timeout := r.cfg.ActionTimeout
		if a.Timeout > 0 {
			timeout = a.Timeout.D()
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		res.Actions = append(res.Actions, ActionResult{Index: i, Action: a.String(), Started: start})
		err = r.perform(actx, sess, page, a)
		d := time.Since(start)
		r.metrics.ObserveAction(string(a.Type), d)

		f := r.check(ctx, actx, sess, page, err)
		cancel()
		res.Actions[i].Duration = d
		res.Actions[i].Passed = f == nil
		if f != nil {
			j := r.blame(sess, res, i)
			res.Actions[j].Passed = false
			return done, f.at(j, &done[j])
		}
		logger.Debug("action done", zap.Int("index", i), zap.String("action", a.String()), zap.Duration("duration", d))
	}
	return done, nil
}

// drain waits for requests the page is still answering.
func (r *Runner) drain(sess *Session, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ActionTimeout)
	defer cancel()
	if err := sess.Interceptor.Drain(ctx); err != nil {
		logger.Warn("draining requests", zap.Error(err))
	}
}

// settle catches failures recorded after the last action completed. It runs
// once the page is closed and the interceptor drained.
func (r *Runner) settle(sess *Session, page browser.Page, res *Result, done []Action) *Failure {
	f := r.check(context.Background(), context.Background(), sess, page, nil)
	if f == nil {
		return nil
	}
	last := len(done) - 1
	if last < 0 {
		return f.at(-1, nil)
	}
	j := r.blame(sess, res, last)
	res.Actions[j].Passed = false
	return f.at(j, &done[j])
}

// blame returns the index of the action that was running when the first
// interceptor failure's request arrived, or current when there is none.
// Requests often outlive the action that issued them.
func (r *Runner) blame(sess *Session, res *Result, current int) int {
	at, err := sess.Interceptor.FirstFailure()
	if err == nil {
		return current
	}
	for j := current; j > 0; j-- {
		if !res.Actions[j].Started.After(at) {
			return j
		}
	}
	return 0
}

// check decides whether the action that returned err failed the scenario.
// Interceptor failures come first: an aborted request usually breaks the
// action too, and the recorded failure is the cause.
func (r *Runner) check(sctx, actx context.Context, sess *Session, page browser.Page, err error) *Failure {
	if ferr := sess.Interceptor.Failure(); ferr != nil {
		return fromInterceptor(ferr)
	}
	if appErrs := page.AppErrors(); len(appErrs) > 0 {
		return &Failure{
			Kind:    UnhandledApplicationError,
			Message: appErrs[0].Error(),
			Err:     errors.Join(appErrs...),
		}
	}
	if err != nil {
		return classify(sctx, actx, err)
	}
	return nil
}

func (r *Runner) perform(ctx context.Context, sess *Session, page browser.Page, a Action) error {
	switch a.Type {
	case ActGoto:
		return page.Goto(ctx, a.URL)
	case ActClick:
		return r.await(ctx, a, func() error { return page.Click(ctx, a.Target) })
	case ActFill:
		return r.await(ctx, a, func() error { return page.Fill(ctx, a.Target, a.Value) })
	case ActPress:
		return r.await(ctx, a, func() error { return page.Press(ctx, a.Target, a.Key) })
	case ActSelect:
		return r.await(ctx, a, func() error { return page.Select(ctx, a.Target, a.Value) })
	case ActExpectText, ActExpectNoText:
		want := browser.NormalizeSpace(a.Text)
		return r.expect(ctx, sess, fmt.Sprintf("%q", want), func() (bool, string, error) {
			texts, err := page.Texts(ctx, a.Target)
			if errors.Is(err, browser.ErrNotFound) {
				return a.Type == ActExpectNoText, "<no element>", nil
			}
			if err != nil {
				return false, "", err
			}
			got := browser.NormalizeSpace(strings.Join(texts, " "))
			found := strings.Contains(got, want)
			return found == (a.Type == ActExpectText), fmt.Sprintf("%q", got), nil
		}, a)
	case ActExpectTitle:
		return r.expect(ctx, sess, fmt.Sprintf("%q", a.Text), func() (bool, string, error) {
			title, err := page.Title(ctx)
			if err != nil {
				return false, "", err
			}
			return title == a.Text, fmt.Sprintf("%q", title), nil
		}, a)
	case ActExpectVisible, ActExpectHidden:
		want := "visible"
		if a.Type == ActExpectHidden {
			want = "hidden"
		}
		return r.expect(ctx, sess, want, func() (bool, string, error) {
			visible, err := page.Visible(ctx, a.Target)
			if err != nil && !errors.Is(err, browser.ErrNotFound) {
				return false, "", err
			}
			got := "hidden"
			if visible {
				got = "visible"
			}
			return got == want, got, nil
		}, a)
	}
	return fmt.Errorf("unknown action type %q", a.Type)
}

// await retries fn while the target is missing, until ctx expires.
func (r *Runner) await(ctx context.Context, a Action, fn func() error) error {
	var last error
	err := backoff.Retry(func() error {
		last = fn()
		if last == nil || errors.Is(last, browser.ErrNotFound) {
			return last
		}
		return backoff.Permanent(last)
	}, backoff.WithContext(backoff.NewConstantBackOff(r.cfg.PollInterval), ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: waiting for %s: %v", browser.ErrTimeout, a.Target, last)
	}
	return err
}

var (
	errNotYet      = errors.New("condition not met")
	errRouteFailed = errors.New("route failed")
)

// expect polls check until it holds or ctx expires. A condition that never
// holds becomes an AssertionMismatch carrying the last observed value.
// Polling stops as soon as the interceptor records a failure.
func (r *Runner) expect(ctx context.Context, sess *Session, expected string, check func() (bool, string, error), a Action) error {
	actual := "<not evaluated>"
	err := backoff.Retry(func() error {
		if sess.Interceptor.Failure() != nil {
			return backoff.Permanent(errRouteFailed)
		}
		ok, got, err := check()
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return backoff.Permanent(err)
		}
		actual = got
		if !ok {
			return errNotYet
		}
		return nil
	}, backoff.WithContext(backoff.NewConstantBackOff(r.cfg.PollInterval), ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, errNotYet) {
		f := &Failure{Kind: AssertionMismatch, Expected: expected, Actual: actual}
		switch a.Type {
		case ActExpectText, ActExpectNoText, ActExpectVisible, ActExpectHidden:
			f.Message = a.Target.String()
		}
		if a.Type == ActExpectNoText {
			f.Expected = "no " + expected
		}
		return f
	}
	return err
}
