// Package browser drives a headless Chrome tab via chromedp.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/jobkontakt/crawler/internal/core"
)

// Config controls the headless browser.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	OperationTimeout  time.Duration
}

// Browser implements core.Browser over one long-lived tab. The tab is reused
// across page loads so cookies and local storage carry from item to item
// within a session.
type Browser struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	tab         context.Context
	tabCancel   context.CancelFunc

	meta *responseMeta
}

// New spawns a Chrome instance and opens the working tab.
func New(cfg Config) (*Browser, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 15 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	b := &Browser{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		tab:         tabCtx,
		tabCancel:   tabCancel,
		meta:        newResponseMeta(),
	}
	chromedp.ListenTarget(tabCtx, b.meta.captureEvent)

	if err := b.run(context.Background(), cfg.OperationTimeout, b.setupAction()); err != nil {
		b.Close()
		return nil, fmt.Errorf("start browser tab: %w", err)
	}
	return b, nil
}

// Close tears down the tab and the Chrome process.
func (b *Browser) Close() {
	b.tabCancel()
	b.allocCancel()
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// run executes actions against the shared tab, bounded by both the caller's
// context and the given timeout.
func (b *Browser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := mergeContext(b.tab, ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Goto navigates the tab and waits for the document body. The returned
// PageInfo carries the document status code and the post-redirect URL.
func (b *Browser) Goto(ctx context.Context, url string) (core.PageInfo, error) {
	b.meta.reset()

	var finalURL string
	err := b.run(ctx, b.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return core.PageInfo{}, fmt.Errorf("navigate %s: %w", url, err)
	}

	status, metaURL := b.meta.snapshot()
	if metaURL == "" {
		metaURL = finalURL
	}
	if status == 0 {
		status = 200
	}
	return core.PageInfo{StatusCode: status, FinalURL: metaURL}, nil
}

// Evaluate runs a script in the page and unmarshals its result into out.
// Pass nil to discard the result.
func (b *Browser) Evaluate(ctx context.Context, script string, out any) error {
	if out == nil {
		out = new(json.RawMessage)
	}
	if err := b.run(ctx, b.cfg.OperationTimeout, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

// Exists reports whether at least one node matches the selector right now.
// It never waits for the node to appear.
func (b *Browser) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	err := b.run(ctx, b.cfg.OperationTimeout,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return false, fmt.Errorf("query %q: %w", selector, err)
	}
	return len(nodes) > 0, nil
}

// Click clicks the first node matching the selector.
func (b *Browser) Click(ctx context.Context, selector string) error {
	if err := b.run(ctx, b.cfg.OperationTimeout,
		chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// Fill clears the matching input and types the value into it.
func (b *Browser) Fill(ctx context.Context, selector, value string) error {
	if err := b.run(ctx, b.cfg.OperationTimeout,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

// Attribute reads an attribute from the first matching node. ok is false when
// the attribute is absent.
func (b *Browser) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := b.run(ctx, b.cfg.OperationTimeout,
		chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery))
	if err != nil {
		return "", false, fmt.Errorf("read attribute %q of %q: %w", name, selector, err)
	}
	return value, ok, nil
}

// Content returns the full rendered document.
func (b *Browser) Content(ctx context.Context) (string, error) {
	var html string
	if err := b.run(ctx, b.cfg.OperationTimeout,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page content: %w", err)
	}
	return html, nil
}

// Screenshot captures the visible viewport as PNG.
func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := b.run(ctx, b.cfg.OperationTimeout,
		chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// sessionState is the on-disk shape of an exported session.
type sessionState struct {
	SavedAt time.Time              `json:"saved_at"`
	Cookies []*network.CookieParam `json:"cookies"`
}

// ExportSession serializes the tab's cookies into an opaque blob.
func (b *Browser) ExportSession(ctx context.Context) ([]byte, error) {
	var cookies []*network.Cookie
	err := b.run(ctx, b.cfg.OperationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("export cookies: %w", err)
	}

	state := sessionState{SavedAt: time.Now().UTC()}
	for _, c := range cookies {
		state.Cookies = append(state.Cookies, &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		})
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode session state: %w", err)
	}
	return blob, nil
}

// ImportSession restores cookies from a blob produced by ExportSession.
// Unknown or malformed blobs are rejected, not partially applied.
func (b *Browser) ImportSession(ctx context.Context, blob []byte) error {
	var state sessionState
	if err := json.Unmarshal(blob, &state); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}
	if len(state.Cookies) == 0 {
		return nil
	}
	err := b.run(ctx, b.cfg.OperationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(state.Cookies).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("import cookies: %w", err)
	}
	return nil
}

// mergeContext derives a run context from the tab that is also canceled when
// the caller's context ends or the timeout elapses.
func mergeContext(tab, caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(tab, timeout)
	stop := context.AfterFunc(caller, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
