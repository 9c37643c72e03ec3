package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/logger"
	"github.com/mimiza/smm/internal/text"
)

// Crawler captures chart snapshots from pages that expose a copy-link
// shortcut (Alt+S on tradingview) using a headless browser. The captured
// share link is rewritten to the direct snapshot image URL.
type Crawler struct {
	log *logger.Logger

	// capture drives the browser; tests replace it.
	capture func(ctx context.Context, url string) (string, error)
}

// NewCrawler creates the crawler source.
func NewCrawler(log *logger.Logger) *Crawler {
	if log == nil {
		log = logger.Discard()
	}
	c := &Crawler{log: log}
	c.capture = c.captureSnapshotLink
	return c
}

// Fetch loads the provider URL in a headless browser and returns one item
// per captured snapshot.
func (c *Crawler) Fetch(ctx context.Context, provider *domain.FeedProvider) (*FetchResult, error) {
	if provider.URL == "" {
		return nil, errors.New("crawler: provider url is empty")
	}

	clipboard, err := c.capture(ctx, provider.URL)
	if err != nil {
		return nil, fmt.Errorf("crawler: capture %s: %w", provider.URL, err)
	}

	payload, _ := json.Marshal(map[string]string{"url": provider.URL})
	result := &FetchResult{
		Payload:    string(payload),
		Response:   clipboard,
		StatusCode: 200,
	}

	if clipboard == "" {
		return result, nil
	}

	image := text.RewriteSnapshotLinks(clipboard)
	result.Items = []Item{{
		Title: "Screenshot: " + image,
		Image: image,
	}}
	return result, nil
}

// captureSnapshotLink opens the page, sends the snapshot shortcut and reads
// the share link the page put on the clipboard.
func (c *Crawler) captureSnapshotLink(ctx context.Context, url string) (string, error) {
	controlURL, err := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("window-size", "1024,768").
		Launch()
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	grant := proto.BrowserGrantPermissions{
		Permissions: []proto.BrowserPermissionType{
			proto.BrowserPermissionTypeClipboardReadWrite,
			proto.BrowserPermissionTypeClipboardSanitizedWrite,
		},
	}
	if err := grant.Call(browser); err != nil {
		return "", fmt.Errorf("grant clipboard access: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for page: %w", err)
	}
	// Charts keep rendering after load.
	time.Sleep(3 * time.Second)

	if err := page.KeyActions().Press(input.AltLeft).Type(input.KeyS).Do(); err != nil {
		return "", fmt.Errorf("send snapshot shortcut: %w", err)
	}
	time.Sleep(10 * time.Second)

	result, err := page.Eval(`() => navigator.clipboard.readText()`)
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return result.Value.Str(), nil
}
