// Package pw drives Chromium through playwright-go. One Playwright server
// and browser are shared by the driver; every session gets its own
// BrowserContext, so cookies, storage and routes never leak between them.
package pw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	playwright "github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
	"github.com/wondertwin-ai/pizza-e2e/internal/route"
)

// Options configures the driver.
type Options struct {
	Headless       bool
	Install        bool
	ExecutablePath string
	SlowMo         time.Duration
	// DefaultTimeout bounds calls made without a context deadline.
	DefaultTimeout time.Duration
}

// Driver is a browser.Driver backed by playwright-go.
type Driver struct {
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
}

var _ browser.Driver = (*Driver)(nil)

// New starts Playwright and launches Chromium.
func New(opts Options, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.ExecutablePath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	if opts.SlowMo > 0 {
		launch.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	b, err := pw.Chromium.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium (headless=%v): %w", opts.Headless, err)
	}

	logger.Info("playwright driver ready", zap.Bool("headless", opts.Headless))
	return &Driver{opts: opts, pw: pw, browser: b, logger: logger}, nil
}

// Name implements browser.Driver.
func (d *Driver) Name() string { return "playwright" }

// NewPage opens a fresh BrowserContext and page wired to opts.Interceptor.
func (d *Driver) NewPage(ctx context.Context, opts browser.SessionOptions) (browser.Page, error) {
	logger := opts.Logger
	if logger == nil {
		logger = d.logger
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.BaseURL != "" {
		ctxOpts.BaseURL = playwright.String(opts.BaseURL)
	}
	bctx, err := d.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &page{
		baseURL: opts.BaseURL,
		bctx:    bctx,
		cancel:  cancel,
		timeout: d.opts.DefaultTimeout,
		logger:  logger,
	}

	if opts.Interceptor != nil {
		ic := opts.Interceptor
		err := bctx.Route("**/*", func(r playwright.Route) {
			p.handleRoute(sessionCtx, ic, r)
		})
		if err != nil {
			cancel()
			_ = bctx.Close()
			return nil, fmt.Errorf("install route: %w", err)
		}
	}

	pg, err := bctx.NewPage()
	if err != nil {
		cancel()
		_ = bctx.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	pg.SetDefaultTimeout(float64(d.opts.DefaultTimeout.Milliseconds()))
	pg.OnPageError(func(err error) {
		p.addAppError(err)
	})
	p.page = pg
	return p, nil
}

// Close shuts down the browser and Playwright.
func (d *Driver) Close() error {
	var errs []error
	if d.browser != nil {
		errs = append(errs, d.browser.Close())
		d.browser = nil
	}
	if d.pw != nil {
		errs = append(errs, d.pw.Stop())
		d.pw = nil
	}
	return errors.Join(errs...)
}

type page struct {
	baseURL string
	bctx    playwright.BrowserContext
	page    playwright.Page
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	appErrs []error
}

func (p *page) addAppError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appErrs = append(p.appErrs, &browser.AppError{Message: err.Error()})
}

func (p *page) handleRoute(ctx context.Context, ic *route.Interceptor, r playwright.Route) {
	pr := r.Request()
	body, err := pr.PostDataBuffer()
	if err != nil {
		body = nil
	}
	header := http.Header{}
	for k, v := range pr.Headers() {
		header.Set(k, v)
	}

	req, err := route.NewRequest(pr.Method(), pr.URL(), header, body)
	if err != nil {
		p.logger.Warn("unparseable request url", zap.String("url", pr.URL()), zap.Error(err))
		_ = r.Continue()
		return
	}

	v := ic.Intercept(ctx, req)
	switch v.Action {
	case route.Fulfill:
		err = r.Fulfill(fulfillOptions(v.Response))
	case route.Continue:
		err = r.Continue()
	default:
		err = r.Abort("failed")
	}
	if err != nil {
		p.logger.Debug("route completion failed", zap.String("url", pr.URL()), zap.Error(err))
	}
}

func fulfillOptions(resp *route.Response) playwright.RouteFulfillOptions {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	opts := playwright.RouteFulfillOptions{
		Status:  playwright.Int(status),
		Headers: headers,
		Body:    resp.Body,
	}
	if ct := resp.ContentType(); ct != "" {
		opts.ContentType = playwright.String(ct)
	}
	return opts
}

// ms returns the playwright timeout for ctx in milliseconds.
func (p *page) ms(ctx context.Context) *float64 {
	return playwright.Float(float64(browser.Timeout(ctx, p.timeout).Milliseconds()))
}

// wrap maps playwright timeouts onto browser.ErrTimeout.
func wrap(err error) error {
	if err != nil && errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", browser.ErrTimeout, err)
	}
	return err
}

func (p *page) Goto(ctx context.Context, target string) error {
	abs, err := browser.ResolveURL(p.baseURL, target)
	if err != nil {
		return err
	}
	_, err = p.page.Goto(abs, playwright.PageGotoOptions{
		Timeout:   p.ms(ctx),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return wrap(err)
}

func (p *page) Title(ctx context.Context) (string, error) {
	return p.page.Title()
}

func (p *page) URL() string { return p.page.URL() }

// resolve builds the playwright locator for l, starting at the document root.
func (p *page) resolve(l browser.Locator) playwright.Locator {
	loc := p.page.Locator(":root")
	for _, step := range l.Chain() {
		exact := playwright.Bool(step.Exact)
		switch step.Kind() {
		case browser.KindRole:
			o := playwright.LocatorGetByRoleOptions{}
			if step.Name != "" {
				o.Name = step.Name
				o.Exact = exact
			}
			loc = loc.GetByRole(playwright.AriaRole(step.Role), o)
		case browser.KindPlaceholder:
			loc = loc.GetByPlaceholder(step.Placeholder, playwright.LocatorGetByPlaceholderOptions{Exact: exact})
		case browser.KindLabel:
			loc = loc.GetByLabel(step.Label, playwright.LocatorGetByLabelOptions{Exact: exact})
		case browser.KindText:
			loc = loc.GetByText(step.Text, playwright.LocatorGetByTextOptions{Exact: exact})
		case browser.KindCSS:
			loc = loc.Locator(step.CSS)
		}
	}
	return loc
}

func (p *page) Click(ctx context.Context, l browser.Locator) error {
	return wrap(p.resolve(l).First().Click(playwright.LocatorClickOptions{Timeout: p.ms(ctx)}))
}

func (p *page) Fill(ctx context.Context, l browser.Locator, value string) error {
	return wrap(p.resolve(l).First().Fill(value, playwright.LocatorFillOptions{Timeout: p.ms(ctx)}))
}

func (p *page) Press(ctx context.Context, l browser.Locator, key string) error {
	return wrap(p.resolve(l).First().Press(key, playwright.LocatorPressOptions{Timeout: p.ms(ctx)}))
}

func (p *page) Select(ctx context.Context, l browser.Locator, value string) error {
	_, err := p.resolve(l).First().SelectOption(
		playwright.SelectOptionValues{Values: playwright.StringSlice(value)},
		playwright.LocatorSelectOptionOptions{Timeout: p.ms(ctx)},
	)
	return wrap(err)
}

func (p *page) Texts(ctx context.Context, l browser.Locator) ([]string, error) {
	loc := p.resolve(l)
	n, err := loc.Count()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, browser.ErrNotFound
	}
	return loc.AllInnerTexts()
}

func (p *page) Visible(ctx context.Context, l browser.Locator) (bool, error) {
	return p.resolve(l).First().IsVisible()
}

func (p *page) AppErrors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]error, len(p.appErrs))
	copy(out, p.appErrs)
	return out
}

func (p *page) Close() error {
	p.cancel()
	return p.bctx.Close()
}
