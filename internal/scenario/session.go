package scenario

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/match"
	"github.com/wondertwin-ai/pizza-e2e/internal/route"
)

// Session is the environment of one scenario run. Nothing in it is shared
// with another session.
type Session struct {
	ID          string
	BaseURL     string
	Interceptor *route.Interceptor
	Vars        map[string]string
	Logger      *zap.Logger

	newTwin func() (http.Handler, error)
	once    sync.Once
	twin    http.Handler
	twinErr error
}

// Twin returns this session's backend twin, creating it on first use.
func (s *Session) Twin() (http.Handler, error) {
	s.once.Do(func() {
		if s.newTwin == nil {
			s.twinErr = fmt.Errorf("session %s: no backend twin configured", s.ID)
			return
		}
		s.twin, s.twinErr = s.newTwin()
	})
	return s.twin, s.twinErr
}

// RouteSet registers a group of routes on a session's interceptor.
type RouteSet func(s *Session) error

// Specs returns a RouteSet registering specs in order. Relative fixture
// paths resolve against dir.
func Specs(dir string, specs ...RouteSpec) RouteSet {
	return func(s *Session) error {
		for i, spec := range specs {
			if err := spec.Register(s, dir); err != nil {
				return fmt.Errorf("route %d (%s): %w", i, spec.Pattern, err)
			}
		}
		return nil
	}
}

// Reply is how a route answers.
type Reply struct {
	// Use "twin" serves the request through the session's backend twin.
	Use      string            `yaml:"use,omitempty" json:"use,omitempty" validate:"omitempty,oneof=twin"`
	Status   int               `yaml:"status,omitempty" json:"status,omitempty" validate:"omitempty,min=100,max=599"`
	Headers  map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body     any               `yaml:"body,omitempty" json:"body,omitempty"`
	BodyFile string            `yaml:"body_file,omitempty" json:"body_file,omitempty"`

	// ExpectBody must be contained in the JSON request body as a partial
	// object. Expect holds JSONPath assertions over the request body.
	ExpectBody any            `yaml:"expect_body,omitempty" json:"expect_body,omitempty"`
	Expect     map[string]any `yaml:"expect,omitempty" json:"expect,omitempty"`

	// Delay holds the answer back, checks included.
	Delay Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
}

// set lists the reply fields that are present.
func (r Reply) set() []string {
	var fields []string
	add := func(name string, present bool) {
		if present {
			fields = append(fields, name)
		}
	}
	add("use", r.Use != "")
	add("status", r.Status != 0)
	add("headers", len(r.Headers) > 0)
	add("body", r.Body != nil)
	add("body_file", r.BodyFile != "")
	add("expect_body", r.ExpectBody != nil)
	add("expect", len(r.Expect) > 0)
	add("delay", r.Delay != 0)
	return fields
}

// RouteSpec is a declarative route rule.
type RouteSpec struct {
	Pattern string `yaml:"pattern" json:"pattern" validate:"required"`
	// Method filters the rule to one verb.
	Method string `yaml:"method,omitempty" json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	// ExpectMethod matches any verb but fails the scenario on another one.
	ExpectMethod string `yaml:"expect_method,omitempty" json:"expect_method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`

	Reply `yaml:",inline"`

	// ByMethod answers each verb differently from one rule.
	ByMethod map[string]Reply `yaml:"by_method,omitempty" json:"by_method,omitempty" validate:"omitempty,dive"`
}

// Validate checks the constraints the struct tags cannot express.
func (r RouteSpec) Validate() error {
	if _, err := route.CompileGlob(r.Pattern); err != nil {
		return err
	}
	if len(r.ByMethod) > 0 {
		if err := r.byMethodOnly(); err != nil {
			return err
		}
		for verb, reply := range r.ByMethod {
			if verb != strings.ToUpper(verb) {
				return fmt.Errorf("by_method: verb %q must be upper case", verb)
			}
			if err := reply.validate(); err != nil {
				return fmt.Errorf("by_method %s: %w", verb, err)
			}
		}
		return nil
	}
	return r.Reply.validate()
}

// byMethodOnly rejects top-level reply fields next to by_method; each branch
// carries its own.
func (r RouteSpec) byMethodOnly() error {
	if fields := r.Reply.set(); len(fields) > 0 {
		return fmt.Errorf("by_method cannot be combined with %s; set them per method", strings.Join(fields, ", "))
	}
	return nil
}

func (r Reply) validate() error {
	if r.Delay < 0 {
		return fmt.Errorf("delay must not be negative")
	}
	n := 0
	for _, set := range []bool{r.Use != "", r.Body != nil, r.BodyFile != ""} {
		if set {
			n++
		}
	}
	if n > 1 {
		return fmt.Errorf("use, body and body_file are mutually exclusive")
	}
	if r.Use != "" && r.Status != 0 {
		return fmt.Errorf("status cannot be set with use: %s", r.Use)
	}
	return nil
}

// Register adds the rule to s.Interceptor.
func (r RouteSpec) Register(s *Session, dir string) error {
	var (
		h   route.Handler
		err error
	)
	if len(r.ByMethod) > 0 {
		if err = r.byMethodOnly(); err != nil {
			return err
		}
		branches := make(map[string]route.Handler, len(r.ByMethod))
		verbs := make([]string, 0, len(r.ByMethod))
		for verb := range r.ByMethod {
			verbs = append(verbs, verb)
		}
		sort.Strings(verbs)
		for _, verb := range verbs {
			if branches[verb], err = r.ByMethod[verb].handler(s, dir); err != nil {
				return fmt.Errorf("%s: %w", verb, err)
			}
		}
		h = route.ByMethod(branches)
	} else if h, err = r.Reply.handler(s, dir); err != nil {
		return err
	}

	if r.ExpectMethod != "" {
		h = route.Checked(h, route.MethodIs(r.ExpectMethod))
	}
	var opts []route.Option
	if r.Method != "" {
		opts = append(opts, route.Method(r.Method))
	}
	return s.Interceptor.Register(r.Pattern, h, opts...)
}

func (r Reply) handler(s *Session, dir string) (route.Handler, error) {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}

	var h route.Handler
	switch {
	case r.Use == "twin":
		twin, err := s.Twin()
		if err != nil {
			return nil, err
		}
		h = route.FromHTTPHandler(twin)
	case r.BodyFile != "":
		path := r.BodyFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading fixture: %w", err)
		}
		h = route.Fixture(status, raw)
	case r.Body != nil:
		body, err := expandAny(r.Body, s.Vars)
		if err != nil {
			return nil, err
		}
		h = route.JSON(status, body)
	default:
		h = route.Status(status)
	}

	if len(r.Headers) > 0 {
		h = withHeaders(h, r.Headers)
	}

	var checks []route.Check
	if r.ExpectBody != nil {
		expected, err := expandAny(r.ExpectBody, s.Vars)
		if err != nil {
			return nil, err
		}
		checks = append(checks, route.BodyMatches(expected))
	}
	if len(r.Expect) > 0 {
		expect, err := expandAny(r.Expect, s.Vars)
		if err != nil {
			return nil, err
		}
		checks = append(checks, bodyAssertions(expect.(map[string]any)))
	}
	if len(checks) > 0 {
		h = route.Checked(h, checks...)
	}
	if r.Delay > 0 {
		h = route.Delayed(h, r.Delay.D())
	}
	return h, nil
}

func withHeaders(next route.Handler, headers map[string]string) route.Handler {
	return func(ctx context.Context, req *route.Request) (*route.Response, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		resp = resp.Clone()
		if resp.Header == nil {
			resp.Header = http.Header{}
		}
		for k, v := range headers {
			resp.Header.Set(k, v)
		}
		return resp, nil
	}
}

func bodyAssertions(assertions map[string]any) route.Check {
	return func(req *route.Request) error {
		if err := match.Body(req.Body, assertions); err != nil {
			return &route.AssertionError{
				Message: fmt.Sprintf("%s %s request body", req.Method, req.URL.Path),
				Err:     err,
			}
		}
		return nil
	}
}
