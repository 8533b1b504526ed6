// Package cdp drives Chrome over the DevTools protocol with chromedp. Each
// session starts its own browser process through a dedicated allocator.
// Requests are intercepted with the Fetch domain and locators are resolved
// by an injected script.
package cdp

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
	"github.com/wondertwin-ai/pizza-e2e/internal/route"
)

//go:embed locator.js
var locatorJS string

// Options configures the driver.
type Options struct {
	Headless       bool
	ExecPath       string
	DefaultTimeout time.Duration
	PollInterval   time.Duration
}

// Driver is a browser.Driver backed by chromedp.
type Driver struct {
	opts   Options
	logger *zap.Logger
}

var _ browser.Driver = (*Driver)(nil)

// New creates a driver. Browsers start lazily, one per session.
func New(opts Options, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	return &Driver{opts: opts, logger: logger}
}

// Name implements browser.Driver.
func (d *Driver) Name() string { return "chromedp" }

// Close implements browser.Driver. Sessions own their browsers.
func (d *Driver) Close() error { return nil }

// NewPage starts a browser for one session.
func (d *Driver) NewPage(ctx context.Context, opts browser.SessionOptions) (browser.Page, error) {
	logger := opts.Logger
	if logger == nil {
		logger = d.logger
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 900),
	)
	if d.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(d.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
	)

	p := &page{
		baseURL:     opts.BaseURL,
		tabCtx:      tabCtx,
		allocCancel: allocCancel,
		tabCancel:   tabCancel,
		ic:          opts.Interceptor,
		timeout:     d.opts.DefaultTimeout,
		poll:        d.opts.PollInterval,
		logger:      logger,
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	actions := []chromedp.Action{runtime.Enable()}
	if opts.Interceptor != nil {
		actions = append(actions, fetch.Enable().WithPatterns([]*fetch.RequestPattern{
			{URLPattern: "*", RequestStage: fetch.RequestStageRequest},
		}))
	}
	startCtx, cancel := p.runCtx(ctx)
	defer cancel()
	if err := chromedp.Run(startCtx, actions...); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return p, nil
}

type page struct {
	baseURL     string
	tabCtx      context.Context
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	ic          *route.Interceptor
	timeout     time.Duration
	poll        time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	appErrs []error
}

// runCtx derives a context bound to the tab that ends with ctx or its
// deadline, whichever comes first.
func (p *page) runCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	rc, cancel := context.WithTimeout(p.tabCtx, browser.Timeout(ctx, p.timeout))
	stop := context.AfterFunc(ctx, cancel)
	return rc, func() {
		stop()
		cancel()
	}
}

func (p *page) onEvent(ev any) {
	switch e := ev.(type) {
	case *fetch.EventRequestPaused:
		go p.handlePaused(e)
	case *runtime.EventExceptionThrown:
		p.addAppError(e.ExceptionDetails)
	}
}

func (p *page) addAppError(d *runtime.ExceptionDetails) {
	if d == nil {
		return
	}
	msg := d.Text
	if d.Exception != nil && d.Exception.Description != "" {
		msg = d.Exception.Description
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appErrs = append(p.appErrs, &browser.AppError{Message: msg})
}

func (p *page) handlePaused(e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(p.tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(p.tabCtx, c.Target)

	req, err := toRouteRequest(e.Request)
	if err != nil || p.ic == nil {
		_ = fetch.ContinueRequest(e.RequestID).Do(execCtx)
		return
	}

	v := p.ic.Intercept(p.tabCtx, req)
	switch v.Action {
	case route.Fulfill:
		err = fulfill(e.RequestID, v.Response).Do(execCtx)
	case route.Continue:
		err = fetch.ContinueRequest(e.RequestID).Do(execCtx)
	default:
		err = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	}
	if err != nil {
		p.logger.Debug("fetch completion failed", zap.String("url", e.Request.URL), zap.Error(err))
	}
}

func toRouteRequest(r *network.Request) (*route.Request, error) {
	header := http.Header{}
	for k, v := range r.Headers {
		header.Set(k, fmt.Sprint(v))
	}
	var body []byte
	for _, entry := range r.PostDataEntries {
		chunk, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			return nil, fmt.Errorf("decode post data: %w", err)
		}
		body = append(body, chunk...)
	}
	return route.NewRequest(r.Method, r.URL+r.URLFragment, header, body)
}

func fulfill(id fetch.RequestID, resp *route.Response) *fetch.FulfillRequestParams {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	headers := make([]*fetch.HeaderEntry, 0, len(resp.Header))
	for k := range resp.Header {
		headers = append(headers, &fetch.HeaderEntry{Name: k, Value: resp.Header.Get(k)})
	}
	return fetch.FulfillRequest(id, int64(status)).
		WithResponseHeaders(headers).
		WithBody(base64.StdEncoding.EncodeToString(resp.Body))
}

type element struct {
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

// query runs the locator script once. A non-empty mark tags the first match
// with data-pizza-e2e=mark so chromedp selectors can target it.
func (p *page) query(ctx context.Context, l browser.Locator, mark string) ([]element, error) {
	chain, err := json.Marshal(l.Chain())
	if err != nil {
		return nil, err
	}
	markJSON, _ := json.Marshal(mark)
	var out []element
	expr := fmt.Sprintf("%s(%s, %s)", locatorJS, chain, markJSON)
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &out)); err != nil {
		return nil, err
	}
	return out, nil
}

// waitFor polls until l matches a visible element, tags it, and returns its
// selector.
func (p *page) waitFor(ctx context.Context, l browser.Locator) (string, error) {
	mark := uuid.NewString()
	op := func() error {
		els, err := p.query(ctx, l, mark)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(els) == 0 {
			return browser.ErrNotFound
		}
		if !els[0].Visible {
			return fmt.Errorf("%s is not visible", l)
		}
		return nil
	}

	var last error
	err := backoff.Retry(func() error {
		last = op()
		return last
	}, backoff.WithContext(backoff.NewConstantBackOff(p.poll), ctx))
	if err != nil {
		if last != nil {
			return "", fmt.Errorf("%s: %w", l, last)
		}
		return "", err
	}
	return fmt.Sprintf(`[data-pizza-e2e=%q]`, mark), nil
}

func (p *page) run(ctx context.Context, fn func(ctx context.Context) error) error {
	rc, cancel := p.runCtx(ctx)
	defer cancel()
	return fn(rc)
}

func (p *page) Goto(ctx context.Context, target string) error {
	abs, err := browser.ResolveURL(p.baseURL, target)
	if err != nil {
		return err
	}
	return p.run(ctx, func(rc context.Context) error {
		return chromedp.Run(rc, chromedp.Navigate(abs), chromedp.WaitReady("body", chromedp.ByQuery))
	})
}

func (p *page) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, func(rc context.Context) error {
		return chromedp.Run(rc, chromedp.Title(&title))
	})
	return title, err
}

func (p *page) URL() string {
	var loc string
	ctx, cancel := context.WithTimeout(p.tabCtx, 2*time.Second)
	defer cancel()
	_ = chromedp.Run(ctx, chromedp.Location(&loc))
	return loc
}

func (p *page) Click(ctx context.Context, l browser.Locator) error {
	return p.run(ctx, func(rc context.Context) error {
		sel, err := p.waitFor(rc, l)
		if err != nil {
			return err
		}
		return chromedp.Run(rc, chromedp.Click(sel, chromedp.ByQuery))
	})
}

func (p *page) Fill(ctx context.Context, l browser.Locator, value string) error {
	return p.run(ctx, func(rc context.Context) error {
		sel, err := p.waitFor(rc, l)
		if err != nil {
			return err
		}
		return chromedp.Run(rc,
			chromedp.Clear(sel, chromedp.ByQuery),
			chromedp.SendKeys(sel, value, chromedp.ByQuery),
		)
	})
}

var keys = map[string]string{
	"Tab":        kb.Tab,
	"Enter":      kb.Enter,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"ArrowDown":  kb.ArrowDown,
	"ArrowUp":    kb.ArrowUp,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
}

func (p *page) Press(ctx context.Context, l browser.Locator, key string) error {
	if k, ok := keys[key]; ok {
		key = k
	}
	return p.run(ctx, func(rc context.Context) error {
		sel, err := p.waitFor(rc, l)
		if err != nil {
			return err
		}
		return chromedp.Run(rc, chromedp.SendKeys(sel, key, chromedp.ByQuery))
	})
}

const selectJS = `(function (sel, value) {
  const el = document.querySelector(sel);
  if (!el) return false;
  const setter = Object.getOwnPropertyDescriptor(HTMLSelectElement.prototype, "value").set;
  setter.call(el, value);
  if (el.value !== value) return false;
  el.dispatchEvent(new Event("input", { bubbles: true }));
  el.dispatchEvent(new Event("change", { bubbles: true }));
  return true;
})(%q, %q)`

func (p *page) Select(ctx context.Context, l browser.Locator, value string) error {
	return p.run(ctx, func(rc context.Context) error {
		sel, err := p.waitFor(rc, l)
		if err != nil {
			return err
		}
		var ok bool
		if err := chromedp.Run(rc, chromedp.Evaluate(fmt.Sprintf(selectJS, sel, value), &ok)); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s has no option %q", l, value)
		}
		return nil
	})
}

func (p *page) Texts(ctx context.Context, l browser.Locator) ([]string, error) {
	var els []element
	err := p.run(ctx, func(rc context.Context) error {
		var err error
		els, err = p.query(rc, l, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, browser.ErrNotFound
	}
	texts := make([]string, len(els))
	for i, el := range els {
		texts[i] = el.Text
	}
	return texts, nil
}

func (p *page) Visible(ctx context.Context, l browser.Locator) (bool, error) {
	var els []element
	err := p.run(ctx, func(rc context.Context) error {
		var err error
		els, err = p.query(rc, l, "")
		return err
	})
	if err != nil {
		return false, err
	}
	return len(els) > 0 && els[0].Visible, nil
}

func (p *page) AppErrors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]error, len(p.appErrs))
	copy(out, p.appErrs)
	return out
}

func (p *page) Close() error {
	err := chromedp.Cancel(p.tabCtx)
	p.tabCancel()
	p.allocCancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
