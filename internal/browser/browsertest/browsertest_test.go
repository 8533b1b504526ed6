package browsertest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
	"github.com/wondertwin-ai/pizza-e2e/internal/route"
)

func TestPageScriptedElements(t *testing.T) {
	ctx := context.Background()
	p := NewPage(browser.SessionOptions{BaseURL: "http://localhost:5173"})
	login := browser.ByRole("link", "Login")

	_, err := p.Texts(ctx, login)
	assert.ErrorIs(t, err, browser.ErrNotFound)
	assert.Error(t, p.Click(ctx, login))

	p.Show(login, "Login")
	clicked := false
	p.On("click", login, func(ctx context.Context, p *Page) error {
		clicked = true
		p.Show(browser.ByPlaceholder("Email address"))
		return nil
	})
	require.NoError(t, p.Click(ctx, login))
	assert.True(t, clicked)

	email := browser.ByPlaceholder("Email address")
	require.NoError(t, p.Fill(ctx, email, "d@jwt.com"))
	assert.Equal(t, "d@jwt.com", p.Value(email))

	p.Hide(email)
	visible, err := p.Visible(ctx, email)
	require.NoError(t, err)
	assert.False(t, visible)

	require.NoError(t, p.Goto(ctx, "/menu"))
	assert.Equal(t, "http://localhost:5173/menu", p.URL())
	assert.Equal(t, []string{
		`click getByRole("link", {name: "Login"})`,
		`fill getByPlaceholder("Email address")`,
		"goto http://localhost:5173/menu",
	}, p.Actions())
}

func TestPageFetchThroughInterceptor(t *testing.T) {
	ctx := context.Background()
	ic := route.New(route.Strict(true))
	ic.MustRegister("*/**/api/order/menu", route.JSON(200, []map[string]any{{"title": "Veggie"}}))

	p := NewPage(browser.SessionOptions{BaseURL: "http://localhost:5173", Interceptor: ic})

	var menu []map[string]any
	require.NoError(t, p.FetchJSON(ctx, "GET", "/api/order/menu", nil, &menu))
	assert.Equal(t, "Veggie", menu[0]["title"])

	_, err := p.Fetch(ctx, "GET", "/api/franchise", nil)
	require.Error(t, err)
	var unmatched *route.UnmatchedRequestError
	assert.True(t, errors.As(ic.Failure(), &unmatched))
}

func TestPageSetHeader(t *testing.T) {
	ctx := context.Background()
	ic := route.New()
	var auth string
	ic.MustRegister("/api/auth", func(ctx context.Context, req *route.Request) (*route.Response, error) {
		auth = req.Header.Get("Authorization")
		return &route.Response{Status: 200}, nil
	})
	p := NewPage(browser.SessionOptions{BaseURL: "http://localhost:5173", Interceptor: ic})

	p.SetHeader("Authorization", "Bearer abcdef")
	_, err := p.Fetch(ctx, "DELETE", "/api/auth", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abcdef", auth)

	p.SetHeader("Authorization", "")
	_, err = p.Fetch(ctx, "DELETE", "/api/auth", nil)
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestPageAppErrorsAndClose(t *testing.T) {
	p := NewPage(browser.SessionOptions{})
	p.RaiseAppError("boom")
	errs := p.AppErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "boom")

	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
	assert.Error(t, p.Close())
}

func TestDriverSetup(t *testing.T) {
	d := &Driver{Setup: func(p *Page) { p.SetTitle("JWT Pizza") }}
	pg, err := d.NewPage(context.Background(), browser.SessionOptions{ID: "s1"})
	require.NoError(t, err)

	title, err := pg.Title(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "JWT Pizza", title)
	require.Len(t, d.Pages(), 1)
	assert.Equal(t, "s1", d.Pages()[0].Options().ID)
}
