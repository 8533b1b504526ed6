package route

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/pizza-e2e/internal/metrics"
)

const base = "http://localhost:5173"

func newReq(t *testing.T, method, path, body string) *Request {
	t.Helper()
	var b []byte
	if body != "" {
		b = []byte(body)
	}
	req, err := NewRequest(method, base+path, http.Header{"Content-Type": {"application/json"}}, b)
	require.NoError(t, err)
	return req
}

func tagged(tag string) Handler {
	return JSON(http.StatusOK, map[string]string{"handler": tag})
}

func handlerTag(t *testing.T, resp *Response) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	return body["handler"]
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func TestDispatchByPatternAndMethodRegardlessOfOrder(t *testing.T) {
	type reg struct {
		pattern, method, tag string
	}
	rules := []reg{
		{"*/**/api/auth", "PUT", "login"},
		{"*/**/api/auth", "DELETE", "logout"},
		{"*/**/api/auth", "POST", "register"},
		{"*/**/api/order/menu", "GET", "menu"},
		{"*/**/api/order", "POST", "order"},
	}
	orders := [][]int{{0, 1, 2, 3, 4}, {4, 3, 2, 1, 0}, {2, 4, 0, 3, 1}}

	for _, order := range orders {
		i := New()
		for _, idx := range order {
			r := rules[idx]
			require.NoError(t, i.Register(r.pattern, tagged(r.tag), Method(r.method)))
		}
		for _, r := range rules {
			path := strings.TrimPrefix(r.pattern, "*/**")
			resp, err := i.Dispatch(context.Background(), newReq(t, r.method, path, ""))
			require.NoError(t, err)
			assert.Equal(t, r.tag, handlerTag(t, resp), "order %v, %s %s", order, r.method, path)
		}
	}
}

func TestFirstMatchWins(t *testing.T) {
	i := New()
	i.MustRegister("**/api/**", tagged("catch-all"))
	i.MustRegister("*/**/api/order/menu", tagged("menu"))

	resp, err := i.Dispatch(context.Background(), newReq(t, "GET", "/api/order/menu", ""))
	require.NoError(t, err)
	assert.Equal(t, "catch-all", handlerTag(t, resp))
}

func TestMethodFilterSkipsToNextRule(t *testing.T) {
	i := New()
	i.MustRegister("*/**/api/franchise", tagged("create"), Method("post"))
	i.MustRegister("*/**/api/franchise", tagged("any"))

	resp, err := i.Dispatch(context.Background(), newReq(t, "GET", "/api/franchise", ""))
	require.NoError(t, err)
	assert.Equal(t, "any", handlerTag(t, resp))
}

func TestUnmatchedLenientPassesThrough(t *testing.T) {
	i := New()
	i.MustRegister("*/**/api/order/menu", tagged("menu"))

	_, err := i.Dispatch(context.Background(), newReq(t, "GET", "/api/franchise", ""))
	assert.ErrorIs(t, err, ErrPassThrough)

	v := i.Intercept(context.Background(), newReq(t, "GET", "/api/franchise", ""))
	assert.Equal(t, Continue, v.Action)
	assert.NoError(t, i.Failure())
}

func TestUnmatchedStrictIsRecorded(t *testing.T) {
	i := New(Strict(true))
	i.MustRegister("*/**/api/order/menu", tagged("menu"))

	_, err := i.Dispatch(context.Background(), newReq(t, "GET", "/api/franchise", ""))
	var unmatched *UnmatchedRequestError
	require.True(t, errors.As(err, &unmatched))
	assert.Equal(t, "GET", unmatched.Method)
	assert.Equal(t, base+"/api/franchise", unmatched.URL)

	v := i.Intercept(context.Background(), newReq(t, "DELETE", "/api/auth", ""))
	assert.Equal(t, Abort, v.Action)
	require.Error(t, i.Failure())
	assert.True(t, errors.As(i.Failure(), &unmatched))
	assert.Equal(t, "DELETE", unmatched.Method)
}

func TestScopeLetsAssetsThroughInStrictMode(t *testing.T) {
	i := New(Strict(true), WithScope(MustCompileGlob("**/api/**")))

	v := i.Intercept(context.Background(), newReq(t, "GET", "/assets/index.js", ""))
	assert.Equal(t, Continue, v.Action)
	assert.NoError(t, i.Failure())
	assert.Empty(t, i.Calls())

	v = i.Intercept(context.Background(), newReq(t, "GET", "/api/franchise", ""))
	assert.Equal(t, Abort, v.Action)
	assert.Error(t, i.Failure())
}

func TestHandlerAssertionPropagates(t *testing.T) {
	i := New()
	i.MustRegister("*/**/api/auth", Checked(tagged("login"),
		MethodIs("PUT"),
		BodyMatches(map[string]any{"email": "d@jwt.com", "password": "a"}),
	))

	v := i.Intercept(context.Background(), newReq(t, "PUT", "/api/auth", `{"email":"d@jwt.com","password":"a"}`))
	require.Equal(t, Fulfill, v.Action)
	assert.NoError(t, i.Failure())

	v = i.Intercept(context.Background(), newReq(t, "PUT", "/api/auth", `{"email":"d@jwt.com","password":"wrong"}`))
	assert.Equal(t, Abort, v.Action)

	failure := i.Failure()
	require.Error(t, failure)
	assert.True(t, IsAssertion(failure))
	var herr *HandlerError
	require.True(t, errors.As(failure, &herr))
	assert.Equal(t, "*/**/api/auth", herr.Pattern)
	assert.Contains(t, failure.Error(), "$.password")

	v = i.Intercept(context.Background(), newReq(t, "POST", "/api/auth", `{}`))
	assert.Equal(t, Abort, v.Action)
	assert.Len(t, i.Failures(), 2)
}

func TestNonAssertionHandlerError(t *testing.T) {
	i := New()
	i.MustRegister("**", func(context.Context, *Request) (*Response, error) {
		return nil, errors.New("boom")
	})
	_, err := i.Dispatch(context.Background(), newReq(t, "GET", "/", ""))
	var herr *HandlerError
	require.True(t, errors.As(err, &herr))
	assert.False(t, IsAssertion(err))
}

func TestNilResponseIsHandlerError(t *testing.T) {
	i := New()
	i.MustRegister("**", func(context.Context, *Request) (*Response, error) { return nil, nil })
	_, err := i.Dispatch(context.Background(), newReq(t, "GET", "/", ""))
	var herr *HandlerError
	assert.True(t, errors.As(err, &herr))
}

func TestBlockingHandlerHonoursContext(t *testing.T) {
	i := New()
	i.MustRegister("**", func(ctx context.Context, _ *Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	v := i.Intercept(ctx, newReq(t, "GET", "/api/order", ""))
	assert.Equal(t, Abort, v.Action)
	assert.ErrorIs(t, v.Err, context.DeadlineExceeded)
	assert.NoError(t, i.Failure(), "cancellation is not a handler failure")
}

func TestDrainWaitsForInFlightRequests(t *testing.T) {
	i := New(Strict(true))
	release := make(chan struct{})
	i.MustRegister("*/**/api/order", Checked(func(ctx context.Context, _ *Request) (*Response, error) {
		<-release
		return nil, Assertf("late failure")
	}), Method("POST"))

	assert.NoError(t, i.Drain(context.Background()), "idle interceptor drains at once")

	req := newReq(t, "POST", "/api/order", `{}`)
	done := make(chan Verdict)
	go func() { done <- i.Intercept(context.Background(), req) }()
	require.Eventually(t, func() bool { return i.InFlight() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, i.Drain(ctx), context.DeadlineExceeded)
	assert.NoError(t, i.Failure())

	close(release)
	require.NoError(t, i.Drain(context.Background()))
	assert.Equal(t, 0, i.InFlight())
	assert.Equal(t, Abort, (<-done).Action)

	at, err := i.FirstFailure()
	assert.True(t, IsAssertion(err))
	assert.False(t, at.IsZero())
}

func TestDelayedHandler(t *testing.T) {
	i := New()
	i.MustRegister("**", Delayed(tagged("slow"), 20*time.Millisecond))

	start := time.Now()
	resp, err := i.Dispatch(context.Background(), newReq(t, "GET", "/api/order/menu", ""))
	require.NoError(t, err)
	assert.Equal(t, "slow", handlerTag(t, resp))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := i.Intercept(ctx, newReq(t, "GET", "/api/order/menu", ""))
	assert.ErrorIs(t, v.Err, context.Canceled)
}

func TestRequestWithoutURL(t *testing.T) {
	i := New(Strict(true), WithScope(MustCompileGlob("**/api/**")))

	_, err := i.Dispatch(context.Background(), &Request{Method: "GET"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	v := i.Intercept(context.Background(), &Request{Method: "GET"})
	assert.Equal(t, Abort, v.Action)
	assert.ErrorIs(t, v.Err, ErrInvalidRequest)
	assert.ErrorIs(t, i.Failure(), ErrInvalidRequest)

	v = i.Intercept(context.Background(), nil)
	assert.ErrorIs(t, v.Err, ErrInvalidRequest)
	assert.Equal(t, 0, i.InFlight())
}

func TestDispatchReturnsCopies(t *testing.T) {
	shared := &Response{Status: 200, Header: http.Header{"X": {"1"}}, Body: []byte(`{"a":1}`)}
	i := New()
	i.MustRegister("**", func(context.Context, *Request) (*Response, error) { return shared, nil })

	resp, err := i.Dispatch(context.Background(), newReq(t, "GET", "/", ""))
	require.NoError(t, err)
	resp.Body[0] = 'X'
	resp.Header.Set("X", "2")

	assert.Equal(t, `{"a":1}`, string(shared.Body))
	assert.Equal(t, "1", shared.Header.Get("X"))
}

func TestRegisterRejectsBadInput(t *testing.T) {
	i := New()
	assert.Error(t, i.Register("**/{a", tagged("x")))
	assert.Error(t, i.Register("**", nil))
	assert.Empty(t, i.Rules())
}

func TestCallsAndMetrics(t *testing.T) {
	c := metrics.New()
	i := New(WithMetrics(c))
	i.MustRegister("*/**/api/order/menu", tagged("menu"), Method("GET"))

	i.Intercept(context.Background(), newReq(t, "GET", "/api/order/menu", ""))
	i.Intercept(context.Background(), newReq(t, "GET", "/api/franchise", ""))

	calls := i.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "GET */**/api/order/menu", calls[0].Rule)
	assert.Equal(t, metrics.OutcomeFulfilled, calls[0].Outcome)
	assert.Equal(t, metrics.OutcomePassed, calls[1].Outcome)

	i.Reset()
	assert.Empty(t, i.Calls())
	assert.Empty(t, i.Rules())
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func TestByMethod(t *testing.T) {
	i := New()
	i.MustRegister("*/**/api/auth", ByMethod(map[string]Handler{
		"put":    tagged("login"),
		"DELETE": tagged("logout"),
	}))

	resp, err := i.Dispatch(context.Background(), newReq(t, "DELETE", "/api/auth", ""))
	require.NoError(t, err)
	assert.Equal(t, "logout", handlerTag(t, resp))

	_, err = i.Dispatch(context.Background(), newReq(t, "POST", "/api/auth", ""))
	require.Error(t, err)
	assert.True(t, IsAssertion(err))
	assert.Contains(t, err.Error(), "DELETE or PUT")
}

func TestFromHTTPHandler(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/auth", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	})

	h := FromHTTPHandler(mux)
	resp, err := h(context.Background(), newReq(t, "PUT", "/api/auth?x=1", `{"email":"d@jwt.com"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "application/json", resp.ContentType())
	assert.JSONEq(t, `{"email":"d@jwt.com"}`, string(resp.Body))
}

func TestHeaderPresent(t *testing.T) {
	req := newReq(t, "DELETE", "/api/auth", "")
	assert.Error(t, HeaderPresent("Authorization")(req))
	req.Header.Set("Authorization", "Bearer abcdef")
	assert.NoError(t, HeaderPresent("Authorization")(req))
}

// ---------------------------------------------------------------------------
// Adapters
// ---------------------------------------------------------------------------

func TestTransport(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte("upstream:" + string(body)))
	}))
	defer upstream.Close()

	i := New()
	i.MustRegister("**/api/order/menu", JSON(http.StatusOK, []map[string]any{{"id": 1, "title": "Veggie"}}))
	client := &http.Client{Transport: i.Transport(nil)}

	resp, err := client.Get(upstream.URL + "/api/order/menu")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `[{"id":1,"title":"Veggie"}]`, string(body))

	resp, err = client.Post(upstream.URL+"/other", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "upstream:hi", string(body))
}

func TestTransportAbortIsError(t *testing.T) {
	i := New(Strict(true))
	client := &http.Client{Transport: i.Transport(nil)}
	_, err := client.Get("http://localhost:1/api/franchise")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmatched request")
}

func TestServeHTTP(t *testing.T) {
	i := New()
	i.MustRegister("/api/franchise", JSON(http.StatusOK, []any{}), Method("GET"))
	srv := httptest.NewServer(i)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/franchise")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/nothing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
