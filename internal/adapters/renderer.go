package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// Renderer renders JavaScript-heavy pages in a headless browser. It is
// an optional collaborator of the web adapter, gated by configuration;
// when unavailable the static HTML is used as-is.
type Renderer struct {
	userAgent string
	wait      time.Duration
	logger    arbor.ILogger
}

// NewRenderer creates a headless browser renderer
func NewRenderer(userAgent string, wait time.Duration, logger arbor.ILogger) *Renderer {
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &Renderer{userAgent: userAgent, wait: wait, logger: logger}
}

// Render navigates to the URL in a fresh headless browser context and
// returns the post-render document HTML.
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(r.userAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	start := time.Now()
	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(r.wait),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", fmt.Errorf("headless render failed: %w", err)
	}

	r.logger.Debug().
		Str("url", url).
		Int("bytes", len(html)).
		Dur("duration", time.Since(start)).
		Msg("Page rendered")

	return html, nil
}
