package route

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/wondertwin-ai/pizza-e2e/pkg/twincore"
)

type transport struct {
	i    *Interceptor
	next http.RoundTripper
}

// Transport returns a RoundTripper that intercepts requests of a Go HTTP
// client. Requests that continue go to next (http.DefaultTransport when nil).
func (i *Interceptor) Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &transport{i: i, next: next}
}

func (t *transport) RoundTrip(r *http.Request) (*http.Response, error) {
	req, err := FromHTTP(r)
	if err != nil {
		return nil, err
	}

	v := t.i.Intercept(r.Context(), req)
	switch v.Action {
	case Fulfill:
		return v.Response.HTTP(r), nil
	case Continue:
		out := r.Clone(r.Context())
		out.Body = http.NoBody
		out.ContentLength = 0
		if len(req.Body) > 0 {
			out.Body = io.NopCloser(bytes.NewReader(req.Body))
			out.ContentLength = int64(len(req.Body))
		}
		return t.next.RoundTrip(out)
	default:
		return nil, fmt.Errorf("route: request aborted: %w", v.Err)
	}
}

// ServeHTTP serves the rule set as a standalone mock backend. Requests that
// would continue get 404 since there is no network behind it; aborted
// requests get 502.
func (i *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := FromHTTP(r)
	if err != nil {
		twincore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	v := i.Intercept(r.Context(), req)
	switch v.Action {
	case Fulfill:
		v.Response.Write(w)
	case Continue:
		twincore.Error(w, http.StatusNotFound, fmt.Sprintf("no mock for %s %s", req.Method, req.URL.Path))
	default:
		twincore.Error(w, http.StatusBadGateway, v.Err.Error())
	}
}
