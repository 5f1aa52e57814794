package scraper

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders the listing in headless Chrome before returning
// its HTML. Needed for marketplaces that assemble price blocks client-side;
// markedly slower than HTTPFetcher, so it is opt-in.
type BrowserFetcher struct {
	timeout time.Duration
}

func NewBrowserFetcher(timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &BrowserFetcher{timeout: timeout}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	runCtx, cancelRun := context.WithTimeout(browserCtx, f.timeout)
	defer cancelRun()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`document.documentElement.outerHTML`, &html),
	)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return []byte(html), nil
}
