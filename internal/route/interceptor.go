// Package route intercepts outgoing HTTP requests of an application under
// test, matches them against registered glob rules, and answers them with
// synthetic responses.
package route

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/metrics"
)

// Handler produces the response for a matched request. It runs on the
// session's flow and may block; it must return when ctx is done. A returned
// error fails the scenario.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Rule is a registered pattern, optional method filter, and handler.
type Rule struct {
	glob    *Glob
	method  string
	handler Handler
}

// Pattern returns the rule's source glob.
func (r *Rule) Pattern() string { return r.glob.String() }

// Method returns the method filter, or "" for any method.
func (r *Rule) Method() string { return r.method }

// Matches reports whether req satisfies both the pattern and the method filter.
func (r *Rule) Matches(req *Request) bool {
	if r.method != "" && r.method != req.Method {
		return false
	}
	return r.glob.Match(req.URL)
}

func (r *Rule) String() string {
	if r.method == "" {
		return r.glob.String()
	}
	return r.method + " " + r.glob.String()
}

// Option configures a Rule.
type Option func(*Rule)

// Method restricts a rule to one HTTP verb.
func Method(verb string) Option {
	return func(r *Rule) { r.method = strings.ToUpper(verb) }
}

// Action is what a driver should do with an intercepted request.
type Action int

const (
	// Continue lets the request reach the real network.
	Continue Action = iota
	// Fulfill answers the request with Verdict.Response.
	Fulfill
	// Abort fails the request at the network layer.
	Abort
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Fulfill:
		return "fulfill"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Verdict is the outcome of Intercept.
type Verdict struct {
	Action   Action
	Response *Response
	Err      error
}

// Call is one intercepted request as seen by the interceptor.
type Call struct {
	At      time.Time `json:"at"`
	Method  string    `json:"method"`
	URL     string    `json:"url"`
	Rule    string    `json:"rule,omitempty"`
	Status  int       `json:"status,omitempty"`
	Outcome string    `json:"outcome"`
}

// Interceptor holds an ordered rule list. Rules are evaluated in
// registration order and the first match wins. One Interceptor belongs to
// one session.
type Interceptor struct {
	mu       sync.Mutex
	rules    []*Rule
	failures []failure
	calls    []Call

	inflight int
	idle     chan struct{}

	strict  bool
	scope   *Glob
	logger  *zap.Logger
	metrics *metrics.Collector
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// Strict makes unmatched in-scope requests fail the scenario instead of
// passing through.
func Strict(strict bool) InterceptorOption {
	return func(i *Interceptor) { i.strict = strict }
}

// WithScope limits interception to URLs matching scope. Requests outside it
// (page assets, for example) always continue untouched.
func WithScope(scope *Glob) InterceptorOption {
	return func(i *Interceptor) { i.scope = scope }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) InterceptorOption {
	return func(i *Interceptor) { i.logger = l }
}

// WithMetrics records dispatch outcomes on c.
func WithMetrics(c *metrics.Collector) InterceptorOption {
	return func(i *Interceptor) { i.metrics = c }
}

// New creates an empty lenient Interceptor.
func New(opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// StrictMode reports whether unmatched requests fail.
func (i *Interceptor) StrictMode() bool { return i.strict }

// Register appends a rule. It fails when pattern is not a valid glob or
// handler is nil.
func (i *Interceptor) Register(pattern string, handler Handler, opts ...Option) error {
	if handler == nil {
		return fmt.Errorf("route: nil handler for %q", pattern)
	}
	g, err := CompileGlob(pattern)
	if err != nil {
		return err
	}
	r := &Rule{glob: g, handler: handler}
	for _, opt := range opts {
		opt(r)
	}

	i.mu.Lock()
	i.rules = append(i.rules, r)
	i.mu.Unlock()
	return nil
}

// MustRegister is Register that panics on error.
func (i *Interceptor) MustRegister(pattern string, handler Handler, opts ...Option) {
	if err := i.Register(pattern, handler, opts...); err != nil {
		panic(err)
	}
}

// Rules returns the registered rules in evaluation order.
func (i *Interceptor) Rules() []*Rule {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]*Rule, len(i.rules))
	copy(out, i.rules)
	return out
}

// Lookup returns the first rule matching req.
func (i *Interceptor) Lookup(req *Request) (*Rule, bool) {
	for _, r := range i.Rules() {
		if r.Matches(req) {
			return r, true
		}
	}
	return nil, false
}

// Dispatch runs the handler of the first matching rule. With no match it
// returns *UnmatchedRequestError in strict mode and ErrPassThrough otherwise.
// Handler errors are wrapped in *HandlerError.
func (i *Interceptor) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	_, resp, err := i.dispatch(ctx, req)
	return resp, err
}

func (i *Interceptor) dispatch(ctx context.Context, req *Request) (*Rule, *Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if req == nil || req.URL == nil {
		return nil, nil, ErrInvalidRequest
	}
	rule, ok := i.Lookup(req)
	if !ok {
		if i.strict {
			return nil, nil, &UnmatchedRequestError{Method: req.Method, URL: req.URL.String()}
		}
		return nil, nil, ErrPassThrough
	}

	resp, err := rule.handler(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("handler returned no response")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return rule, nil, err
		}
		return rule, nil, &HandlerError{Pattern: rule.String(), Method: req.Method, URL: req.URL.String(), Err: err}
	}
	return rule, resp.Clone(), nil
}

// Intercept is the entry point for browser drivers. Unmatched requests in
// strict mode and handler errors are recorded and the request is aborted.
func (i *Interceptor) Intercept(ctx context.Context, req *Request) Verdict {
	at := time.Now()
	i.begin()
	defer i.end()

	if req == nil || req.URL == nil {
		i.logger.Warn("invalid request", zap.Error(ErrInvalidRequest))
		i.record(ErrInvalidRequest, at)
		return Verdict{Action: Abort, Err: ErrInvalidRequest}
	}
	if i.scope != nil && !i.scope.Match(req.URL) {
		i.observe(req, "", 0, metrics.OutcomeOutOfScope)
		return Verdict{Action: Continue}
	}

	rule, resp, err := i.dispatch(ctx, req)
	var unmatched *UnmatchedRequestError
	var herr *HandlerError
	switch {
	case err == nil:
		i.observe(req, rule.String(), resp.Status, metrics.OutcomeFulfilled)
		return Verdict{Action: Fulfill, Response: resp}

	case errors.Is(err, ErrPassThrough):
		i.observe(req, "", 0, metrics.OutcomePassed)
		return Verdict{Action: Continue}

	case errors.As(err, &unmatched):
		i.logger.Warn("unmatched request", zap.String("method", req.Method), zap.String("url", req.URL.String()))
		i.record(err, at)
		i.observe(req, "", 0, metrics.OutcomeUnmatched)
		return Verdict{Action: Abort, Err: err}

	case errors.As(err, &herr):
		i.logger.Warn("route handler failed", zap.String("rule", herr.Pattern), zap.Error(herr.Err))
		i.record(err, at)
		i.observe(req, herr.Pattern, 0, metrics.OutcomeFailed)
		return Verdict{Action: Abort, Err: err}

	default:
		// Cancelled session; the runner reports the timeout itself.
		return Verdict{Action: Abort, Err: err}
	}
}

type failure struct {
	err error
	at  time.Time
}

func (i *Interceptor) record(err error, at time.Time) {
	i.mu.Lock()
	i.failures = append(i.failures, failure{err: err, at: at})
	i.mu.Unlock()
}

func (i *Interceptor) begin() {
	i.mu.Lock()
	if i.inflight == 0 {
		i.idle = make(chan struct{})
	}
	i.inflight++
	i.mu.Unlock()
}

func (i *Interceptor) end() {
	i.mu.Lock()
	i.inflight--
	if i.inflight == 0 {
		close(i.idle)
	}
	i.mu.Unlock()
}

// Drain blocks until no Intercept call is in flight or ctx is done. Drivers
// answer requests on their own goroutines, so a failure can be recorded after
// the action that caused it has returned.
func (i *Interceptor) Drain(ctx context.Context) error {
	i.mu.Lock()
	if i.inflight == 0 {
		i.mu.Unlock()
		return nil
	}
	idle := i.idle
	i.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("route: %d requests still in flight: %w", i.InFlight(), ctx.Err())
	}
}

// InFlight returns the number of Intercept calls that have not returned.
func (i *Interceptor) InFlight() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inflight
}

func (i *Interceptor) observe(req *Request, rule string, status int, outcome string) {
	i.metrics.ObserveDispatch(outcome, req.Method)
	if outcome == metrics.OutcomeOutOfScope {
		return
	}
	i.logger.Debug("intercepted",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("rule", rule),
		zap.String("outcome", outcome),
	)
	i.mu.Lock()
	i.calls = append(i.calls, Call{
		At:      time.Now(),
		Method:  req.Method,
		URL:     req.URL.String(),
		Rule:    rule,
		Status:  status,
		Outcome: outcome,
	})
	i.mu.Unlock()
}

// Failure returns the first recorded failure, or nil.
func (i *Interceptor) Failure() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.failures) == 0 {
		return nil
	}
	return i.failures[0].err
}

// FirstFailure returns the first recorded failure and when the request that
// caused it reached the interceptor.
func (i *Interceptor) FirstFailure() (at time.Time, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.failures) == 0 {
		return time.Time{}, nil
	}
	return i.failures[0].at, i.failures[0].err
}

// Failures returns every recorded failure in order.
func (i *Interceptor) Failures() []error {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]error, len(i.failures))
	for n, f := range i.failures {
		out[n] = f.err
	}
	return out
}

// Calls returns the in-scope requests seen so far.
func (i *Interceptor) Calls() []Call {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Call, len(i.calls))
	copy(out, i.calls)
	return out
}

// Reset removes all rules, failures and calls.
func (i *Interceptor) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.rules = nil
	i.failures = nil
	i.calls = nil
}
