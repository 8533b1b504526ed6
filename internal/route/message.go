package route

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/wondertwin-ai/pizza-e2e/internal/match"
)

// Request is an intercepted outgoing request.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// NewRequest builds a Request from a raw URL.
func NewRequest(method, rawURL string, header http.Header, body []byte) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("route: parse url %q: %w", rawURL, err)
	}
	if header == nil {
		header = http.Header{}
	}
	return &Request{Method: strings.ToUpper(method), URL: u, Header: header, Body: body}, nil
}

// FromHTTP reads r's body and converts it into a Request.
func FromHTTP(r *http.Request) (*Request, error) {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("route: read body: %w", err)
		}
		body = b
	}
	u := *r.URL
	if u.Host == "" && r.Host != "" {
		u.Host = r.Host
		if u.Scheme == "" {
			u.Scheme = "http"
			if r.TLS != nil {
				u.Scheme = "https"
			}
		}
	}
	return &Request{Method: r.Method, URL: &u, Header: r.Header.Clone(), Body: body}, nil
}

// JSON decodes the request body into v.
func (r *Request) JSON(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("route: %s %s has no body", r.Method, r.URL)
	}
	return json.Unmarshal(r.Body, v)
}

// ExpectMethod fails with an *AssertionError unless the request uses one of verbs.
func (r *Request) ExpectMethod(verbs ...string) error {
	for _, v := range verbs {
		if strings.EqualFold(v, r.Method) {
			return nil
		}
	}
	return Assertf("expected method %s, got %s %s", strings.Join(verbs, " or "), r.Method, r.URL)
}

// ExpectJSON fails with an *AssertionError unless the JSON body contains
// expected as a partial object.
func (r *Request) ExpectJSON(expected any) error {
	var actual any
	if err := r.JSON(&actual); err != nil {
		return &AssertionError{Message: "expected a JSON request body", Err: err}
	}
	if err := match.Object(actual, expected); err != nil {
		return &AssertionError{Message: fmt.Sprintf("%s %s body mismatch", r.Method, r.URL.Path), Err: err}
	}
	return nil
}

// Response is a synthetic response. Handlers build one per call; Dispatch
// hands callers a clone so a shared Response value cannot be mutated.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   slices.Clone(r.Body),
	}
}

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Write writes r to w.
func (r *Response) Write(w http.ResponseWriter) {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(r.Body)
}

// HTTP converts r into an *http.Response for req.
func (r *Response) HTTP(req *http.Request) *http.Response {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}
