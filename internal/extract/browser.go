package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Browser drives a headless Chrome instance for pages whose legal text
// is rendered by script. One Browser serves many page sources.
type Browser struct {
	browser *rod.Browser
	closer  func()
}

// NewBrowser launches (or connects to) a headless browser. When
// remoteURL is empty a local instance is launched and owned.
func NewBrowser(remoteURL string) (*Browser, error) {
	controlURL := remoteURL
	closer := func() {}

	if controlURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		closer = l.Cleanup
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		closer()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Browser{browser: b, closer: closer}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	err := b.browser.Close()
	b.closer()
	return err
}

// Open navigates a fresh stealth page to the URL and returns a source
// over its live DOM. The caller must Close the source.
func (b *Browser) Open(ctx context.Context, url string) (*PageSource, error) {
	page, err := stealth.Page(b.browser)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	return &PageSource{page: page, poll: 150 * time.Millisecond}, nil
}

// PageSource extracts visible text from a live browser page and signals
// when the DOM mutates.
type PageSource struct {
	page *rod.Page
	poll time.Duration
}

// Snapshot serializes the current DOM and extracts its visible text.
func (p *PageSource) Snapshot(ctx context.Context) (string, bool, error) {
	raw, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", false, fmt.Errorf("serialize page: %w", err)
	}
	text, truncated := VisibleTextFromHTML(raw)
	return text, truncated, nil
}

// Watch signals DOM change by polling the document size. Each signal
// means the page mutated since the previous poll; bursts collapse into
// the channel's single buffered slot.
func (p *PageSource) Watch(ctx context.Context) (<-chan struct{}, func()) {
	changes := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(changes)
		ticker := time.NewTicker(p.poll)
		defer ticker.Stop()

		lastSize := -1
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				obj, err := p.page.Context(ctx).Eval(`() => document.documentElement.outerHTML.length`)
				if err != nil {
					continue
				}
				size := obj.Value.Int()
				if size != lastSize {
					lastSize = size
					select {
					case changes <- struct{}{}:
					default:
					}
				}
			}
		}
	}()

	var stopped bool
	return changes, func() {
		if !stopped {
			stopped = true
			close(done)
		}
	}
}

// Close releases the page.
func (p *PageSource) Close() error {
	return p.page.Close()
}
