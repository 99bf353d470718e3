package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeConfig tunes the headless-browser renderer. Selectors are optional;
// empty ones skip the corresponding setup step.
type ChromeConfig struct {
	// ConsentSelector is the cookie-consent accept button clicked during
	// Prepare, when present.
	ConsentSelector string
	// LocaleFormJS is executed during Prepare to switch the storefront to
	// the desired language and VAT display before any listing is rendered.
	LocaleFormJS string
	// ReadySelector gates Render: the page counts as rendered once this
	// selector is visible.
	ReadySelector string
	UserAgent     string
	PageTimeout   time.Duration
	SettleDelay   time.Duration
}

func (c *ChromeConfig) applyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	if c.PageTimeout == 0 {
		c.PageTimeout = 45 * time.Second
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
}

// ChromeRenderer implements Renderer on a shared headless Chrome instance.
// The browser context lives for the whole crawl so session cookies set
// during Prepare carry over to every Render.
type ChromeRenderer struct {
	config ChromeConfig

	// Prepare and Render drive one shared tab; mu keeps concurrent
	// callers (e.g. two rendered sites on different workers) from
	// interleaving navigations on it.
	mu sync.Mutex

	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
}

// NewChromeRenderer launches a headless browser. Callers must Close it.
func NewChromeRenderer(ctx context.Context, config ChromeConfig) (*ChromeRenderer, error) {
	config.applyDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(config.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	// Start the browser now so a missing Chrome binary fails here rather
	// than mid-crawl.
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocCancel()
		return nil, fmt.Errorf("starting headless browser: %w", err)
	}

	return &ChromeRenderer{
		config:      config,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		browserStop: browserStop,
	}, nil
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() {
	r.browserStop()
	r.allocCancel()
}

// Prepare navigates to the first page and settles session state: accepts
// the cookie banner when one appears and submits the locale/VAT form. Both
// steps are best effort; a storefront that shows neither is already usable.
func (r *ChromeRenderer) Prepare(ctx context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tabCtx, cancel := context.WithTimeout(r.browserCtx, r.config.PageTimeout)
	defer cancel()

	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(r.config.SettleDelay),
	); err != nil {
		return fmt.Errorf("preparing session at %s: %w", url, err)
	}

	if r.config.ConsentSelector != "" {
		// The banner may legitimately be absent, so the click gets its own
		// short deadline instead of failing the whole crawl.
		clickCtx, clickCancel := context.WithTimeout(tabCtx, 5*time.Second)
		_ = chromedp.Run(clickCtx,
			chromedp.Click(r.config.ConsentSelector, chromedp.ByQuery),
			chromedp.Sleep(time.Second),
		)
		clickCancel()
	}

	if r.config.LocaleFormJS != "" {
		if err := chromedp.Run(tabCtx,
			chromedp.Evaluate(r.config.LocaleFormJS, nil),
			chromedp.Sleep(r.config.SettleDelay),
		); err != nil {
			return fmt.Errorf("setting locale at %s: %w", url, err)
		}
	}

	return nil
}

// Render loads one listing page and returns its HTML once the ready
// selector is visible.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tabCtx, cancel := context.WithTimeout(r.browserCtx, r.config.PageTimeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if r.config.ReadySelector != "" {
		actions = append(actions, chromedp.WaitVisible(r.config.ReadySelector, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.Sleep(r.config.SettleDelay))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", fmt.Errorf("rendering %s: %w", url, err)
	}
	return html, nil
}
