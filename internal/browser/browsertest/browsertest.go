// Package browsertest provides a scripted in-memory browser.Page and
// browser.Driver for testing code that drives pages without a real browser.
package browsertest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/wondertwin-ai/pizza-e2e/internal/browser"
	"github.com/wondertwin-ai/pizza-e2e/internal/route"
)

// Element is a fake DOM element.
type Element struct {
	Text    string
	Visible bool
	Value   string
}

// Reaction runs when an action hits a locator.
type Reaction func(ctx context.Context, p *Page) error

// Page is a scripted browser.Page. Elements are keyed by the locator's
// String form, so a test sets exactly the locators the code under test uses.
type Page struct {
	mu        sync.Mutex
	opts      browser.SessionOptions
	title     string
	url       string
	elements  map[string][]*Element
	reactions map[string]Reaction
	onGoto    func(ctx context.Context, p *Page, url string) error
	actions   []string
	appErrs   []error
	header    http.Header
	closed    bool
}

var _ browser.Page = (*Page)(nil)

// NewPage creates an empty page for a session.
func NewPage(opts browser.SessionOptions) *Page {
	return &Page{
		opts:      opts,
		elements:  make(map[string][]*Element),
		reactions: make(map[string]Reaction),
		header:    make(http.Header),
	}
}

// Options returns the session options the page was opened with.
func (p *Page) Options() browser.SessionOptions { return p.opts }

// SetTitle sets the document title.
func (p *Page) SetTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
}

// Show replaces the elements matched by l with visible elements holding texts.
// With no texts, one empty visible element is created.
func (p *Page) Show(l browser.Locator, texts ...string) {
	if len(texts) == 0 {
		texts = []string{""}
	}
	els := make([]*Element, len(texts))
	for i, t := range texts {
		els[i] = &Element{Text: t, Visible: true}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[l.String()] = els
}

// Hide keeps the elements of l but makes them invisible.
func (p *Page) Hide(l browser.Locator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range p.elements[l.String()] {
		el.Visible = false
	}
}

// Remove deletes the elements of l.
func (p *Page) Remove(l browser.Locator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, l.String())
}

// Clear removes every element.
func (p *Page) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements = make(map[string][]*Element)
}

// On registers a reaction for action ("click", "fill", "press", "select")
// on l.
func (p *Page) On(action string, l browser.Locator, r Reaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions[action+" "+l.String()] = r
}

// OnGoto registers the navigation handler.
func (p *Page) OnGoto(fn func(ctx context.Context, p *Page, url string) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onGoto = fn
}

// SetHeader sets a header sent with every later Fetch, the way an app
// attaches its auth token. An empty value removes the header.
func (p *Page) SetHeader(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if value == "" {
		p.header.Del(key)
		return
	}
	p.header.Set(key, value)
}

// RaiseAppError records an uncaught application error.
func (p *Page) RaiseAppError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appErrs = append(p.appErrs, &browser.AppError{Message: msg})
}

// Actions returns the actions performed so far, e.g. `click getByRole("button")`.
func (p *Page) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.actions))
	copy(out, p.actions)
	return out
}

// Value returns the value filled or selected into l.
func (p *Page) Value(l browser.Locator) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if els := p.elements[l.String()]; len(els) > 0 {
		return els[0].Value
	}
	return ""
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Fetch simulates the application calling its backend: the request goes
// through the session's interceptor. Continued requests fail because the
// fake page has no network.
func (p *Page) Fetch(ctx context.Context, method, target string, body any) (*route.Response, error) {
	abs, err := browser.ResolveURL(p.opts.BaseURL, target)
	if err != nil {
		return nil, err
	}
	var data []byte
	if body != nil {
		if data, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}
	p.mu.Lock()
	header := p.header.Clone()
	p.mu.Unlock()
	header.Set("Content-Type", "application/json")
	req, err := route.NewRequest(method, abs, header, data)
	if err != nil {
		return nil, err
	}
	if p.opts.Interceptor == nil {
		return nil, fmt.Errorf("browsertest: no network for %s %s", method, abs)
	}

	v := p.opts.Interceptor.Intercept(ctx, req)
	switch v.Action {
	case route.Fulfill:
		return v.Response, nil
	case route.Continue:
		return nil, fmt.Errorf("browsertest: no network for %s %s", method, abs)
	default:
		return nil, fmt.Errorf("browsertest: %s %s aborted: %w", method, abs, v.Err)
	}
}

// FetchJSON is Fetch that decodes a JSON response into out.
func (p *Page) FetchJSON(ctx context.Context, method, target string, body, out any) error {
	resp, err := p.Fetch(ctx, method, target, body)
	if err != nil {
		return err
	}
	if resp.Status >= 400 {
		return fmt.Errorf("browsertest: %s %s: status %d", method, target, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(bytes.NewReader(resp.Body)).Decode(out)
}

func (p *Page) record(action string, l browser.Locator) Reaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, action+" "+l.String())
	return p.reactions[action+" "+l.String()]
}

func (p *Page) first(l browser.Locator) (*Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	els := p.elements[l.String()]
	if len(els) == 0 {
		return nil, fmt.Errorf("%s: %w", l, browser.ErrNotFound)
	}
	if !els[0].Visible {
		return nil, fmt.Errorf("%s is not visible", l)
	}
	return els[0], nil
}

func (p *Page) act(ctx context.Context, action string, l browser.Locator, apply func(*Element)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	el, err := p.first(l)
	if err != nil {
		return err
	}
	if apply != nil {
		p.mu.Lock()
		apply(el)
		p.mu.Unlock()
	}
	if r := p.record(action, l); r != nil {
		return r(ctx, p)
	}
	return nil
}

// Goto implements browser.Page.
func (p *Page) Goto(ctx context.Context, target string) error {
	abs, err := browser.ResolveURL(p.opts.BaseURL, target)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.url = abs
	p.actions = append(p.actions, "goto "+abs)
	fn := p.onGoto
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, p, abs)
	}
	return nil
}

// Title implements browser.Page.
func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

// URL implements browser.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Click implements browser.Page.
func (p *Page) Click(ctx context.Context, l browser.Locator) error {
	return p.act(ctx, "click", l, nil)
}

// Fill implements browser.Page.
func (p *Page) Fill(ctx context.Context, l browser.Locator, value string) error {
	return p.act(ctx, "fill", l, func(el *Element) { el.Value = value })
}

// Press implements browser.Page.
func (p *Page) Press(ctx context.Context, l browser.Locator, key string) error {
	return p.act(ctx, "press", l, nil)
}

// Select implements browser.Page.
func (p *Page) Select(ctx context.Context, l browser.Locator, value string) error {
	return p.act(ctx, "select", l, func(el *Element) { el.Value = value })
}

// Texts implements browser.Page.
func (p *Page) Texts(ctx context.Context, l browser.Locator) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	els := p.elements[l.String()]
	if len(els) == 0 {
		return nil, browser.ErrNotFound
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		if el.Visible {
			out = append(out, el.Text)
		}
	}
	return out, nil
}

// Visible implements browser.Page.
func (p *Page) Visible(ctx context.Context, l browser.Locator) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	els := p.elements[l.String()]
	return len(els) > 0 && els[0].Visible, nil
}

// AppErrors implements browser.Page.
func (p *Page) AppErrors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]error, len(p.appErrs))
	copy(out, p.appErrs)
	return out
}

// Close implements browser.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("browsertest: page already closed")
	}
	p.closed = true
	return nil
}

// Driver opens scripted pages. Setup, when set, scripts each new page.
type Driver struct {
	Setup func(p *Page)

	mu    sync.Mutex
	pages []*Page
}

var _ browser.Driver = (*Driver)(nil)

// Name implements browser.Driver.
func (d *Driver) Name() string { return "browsertest" }

// NewPage implements browser.Driver.
func (d *Driver) NewPage(ctx context.Context, opts browser.SessionOptions) (browser.Page, error) {
	p := NewPage(opts)
	if d.Setup != nil {
		d.Setup(p)
	}
	d.mu.Lock()
	d.pages = append(d.pages, p)
	d.mu.Unlock()
	return p, nil
}

// Pages returns every page opened so far.
func (d *Driver) Pages() []*Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Page, len(d.pages))
	copy(out, d.pages)
	return out
}

// Close implements browser.Driver.
func (d *Driver) Close() error { return nil }
