package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
	"github.com/wondertwin-ai/pizza-e2e/internal/match"
	"github.com/wondertwin-ai/pizza-e2e/internal/route"
)

// Kind classifies a scenario failure.
type Kind string

const (
	AssertionMismatch         Kind = "AssertionMismatch"
	UnmatchedRequest          Kind = "UnmatchedRequest"
	Timeout                   Kind = "Timeout"
	UnhandledApplicationError Kind = "UnhandledApplicationError"
	// DriverError covers harness faults: a browser that cannot start, a
	// broken fixture, a cancelled run.
	DriverError Kind = "DriverError"
)

// Failure is why a scenario failed. ActionIndex is -1 when the failure
// happened while the session was being set up.
type Failure struct {
	Kind        Kind   `json:"kind"`
	ActionIndex int    `json:"action_index"`
	Action      string `json:"action,omitempty"`
	Expected    string `json:"expected,omitempty"`
	Actual      string `json:"actual,omitempty"`
	Message     string `json:"message,omitempty"`
	Err         error  `json:"-"`
}

func (f *Failure) Error() string {
	where := "during setup"
	if f.ActionIndex >= 0 {
		where = fmt.Sprintf("at action %d (%s)", f.ActionIndex, f.Action)
	}
	return fmt.Sprintf("%s %s: %s", f.Kind, where, f.Detail())
}

// Detail is the failure without its location.
func (f *Failure) Detail() string {
	switch {
	case f.Expected != "" || f.Actual != "":
		if f.Message != "" {
			return fmt.Sprintf("%s: expected %s, got %s", f.Message, f.Expected, f.Actual)
		}
		return fmt.Sprintf("expected %s, got %s", f.Expected, f.Actual)
	case f.Message != "":
		return f.Message
	case f.Err != nil:
		return f.Err.Error()
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error { return f.Err }

// at stamps the action position onto f.
func (f *Failure) at(index int, a *Action) *Failure {
	f.ActionIndex = index
	if a != nil {
		f.Action = a.String()
	}
	return f
}

// fromInterceptor turns a recorded interceptor failure into a Failure.
// Assertions raised inside handlers surface as AssertionMismatch.
func fromInterceptor(err error) *Failure {
	var unmatched *route.UnmatchedRequestError
	if errors.As(err, &unmatched) {
		return &Failure{
			Kind:    UnmatchedRequest,
			Message: fmt.Sprintf("no route for %s %s", unmatched.Method, unmatched.URL),
			Err:     err,
		}
	}
	if route.IsAssertion(err) {
		f := &Failure{Kind: AssertionMismatch, Message: err.Error(), Err: err}
		var mm *match.MismatchError
		if errors.As(err, &mm) {
			var herr *route.HandlerError
			if errors.As(err, &herr) {
				f.Message = fmt.Sprintf("request %s %s at %s", herr.Method, herr.URL, mm.Path)
			}
			f.Expected, f.Actual = mm.ExpectedString(), mm.ActualString()
		}
		return f
	}
	return &Failure{Kind: DriverError, Message: err.Error(), Err: err}
}

// classify turns an action error into a Failure. sctx is the scenario
// context and actx the action's.
func classify(sctx, actx context.Context, err error) *Failure {
	var f *Failure
	switch {
	case errors.Is(sctx.Err(), context.DeadlineExceeded):
		return &Failure{Kind: Timeout, Message: "scenario timed out", Err: err}
	case sctx.Err() != nil:
		return &Failure{Kind: DriverError, Message: "run cancelled", Err: err}
	case errors.As(err, &f):
		return f
	case actx.Err() != nil, errors.Is(err, browser.ErrTimeout):
		return &Failure{Kind: Timeout, Message: err.Error(), Err: err}
	}
	return &Failure{Kind: DriverError, Message: err.Error(), Err: err}
}
