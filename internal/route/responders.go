package route

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"time"
)

// JSON answers with v encoded as JSON. v is encoded once, when the handler
// is built.
func JSON(status int, v any) Handler {
	data, err := json.Marshal(v)
	if err != nil {
		return func(context.Context, *Request) (*Response, error) {
			return nil, fmt.Errorf("encode mock body: %w", err)
		}
	}
	return Fixture(status, data)
}

// Fixture answers with raw JSON bytes.
func Fixture(status int, raw []byte) Handler {
	body := bytes.Clone(raw)
	return func(context.Context, *Request) (*Response, error) {
		return &Response{
			Status: status,
			Header: http.Header{"Content-Type": []string{"application/json"}},
			Body:   body,
		}, nil
	}
}

// Status answers with an empty body.
func Status(status int) Handler {
	return func(context.Context, *Request) (*Response, error) {
		return &Response{Status: status, Header: http.Header{}}, nil
	}
}

// ByMethod dispatches on the request method inside one handler. A method
// without a branch fails with an *AssertionError.
func ByMethod(branches map[string]Handler) Handler {
	byVerb := make(map[string]Handler, len(branches))
	verbs := make([]string, 0, len(branches))
	for verb, h := range branches {
		v := strings.ToUpper(verb)
		byVerb[v] = h
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)

	return func(ctx context.Context, req *Request) (*Response, error) {
		h, ok := byVerb[req.Method]
		if !ok {
			return nil, Assertf("expected method %s, got %s %s", strings.Join(verbs, " or "), req.Method, req.URL)
		}
		return h(ctx, req)
	}
}

// Check is an expectation about an intercepted request.
type Check func(req *Request) error

// MethodIs expects the request method to be verb.
func MethodIs(verb string) Check {
	return func(req *Request) error { return req.ExpectMethod(verb) }
}

// BodyMatches expects the JSON body to contain expected as a partial object.
func BodyMatches(expected any) Check {
	return func(req *Request) error { return req.ExpectJSON(expected) }
}

// HeaderPresent expects the request to carry header name.
func HeaderPresent(name string) Check {
	return func(req *Request) error {
		if req.Header.Get(name) == "" {
			return Assertf("expected header %s on %s %s", name, req.Method, req.URL)
		}
		return nil
	}
}

// Checked runs every check before next. The first failed check is returned
// and next is not called.
func Checked(next Handler, checks ...Check) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		for _, check := range checks {
			if err := check(req); err != nil {
				return nil, err
			}
		}
		return next(ctx, req)
	}
}

// Delayed waits d before running next, the way a slow backend would.
func Delayed(next Handler, d time.Duration) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return next(ctx, req)
	}
}

// FromHTTPHandler answers requests by serving them in-process through h.
func FromHTTPHandler(h http.Handler) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		hr, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), bytes.NewReader(req.Body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		hr.Header = req.Header.Clone()
		hr.RequestURI = req.URL.RequestURI()

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, hr)
		res := rec.Result()
		return &Response{
			Status: res.StatusCode,
			Header: res.Header,
			Body:   rec.Body.Bytes(),
		}, nil
	}
}
