package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

var errNoDocumentResponse = errors.New("browser saw no document response")

// BrowserFetcher renders pages in headless Chrome. It sees content that
// phishing kits inject with JavaScript, at the cost of a browser start per
// fetch.
type BrowserFetcher struct {
	chromePath string
	userAgent  string
	guard      *AddressGuard
	logger     *slog.Logger
}

// NewBrowserFetcher creates a BrowserFetcher. An empty chromePath lets
// chromedp locate the browser. A non-nil guard vets the target host before
// the browser starts and every request the page makes afterwards, redirect
// hops included.
func NewBrowserFetcher(chromePath, userAgent string, guard *AddressGuard, logger *slog.Logger) *BrowserFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{chromePath: chromePath, userAgent: userAgent, guard: guard, logger: logger}
}

// Fetch navigates to u and returns the rendered document. The status code
// and redirect count come from the DevTools network events of the top-level
// document request.
func (f *BrowserFetcher) Fetch(ctx context.Context, u NormalizedURL) (*PageEvidence, error) {
	if f.guard != nil {
		if err := f.guard.CheckHost(ctx, u.Hostname()); err != nil {
			return nil, err
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.UserAgent(f.userAgent),
	)
	if f.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(f.chromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(f.logf(slog.LevelDebug)),
		chromedp.WithErrorf(f.logf(slog.LevelWarn)),
	)
	defer browserCancel()

	var (
		mu        sync.Mutex
		mainID    network.RequestID
		status    int
		redirects int
		blocked   error
	)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			// The listener must not block, so the verdict is sent from its own goroutine.
			go func() {
				err := f.guard.CheckURL(browserCtx, e.Request.URL)
				if err == nil {
					_ = chromedp.Run(browserCtx, fetch.ContinueRequest(e.RequestID))
					return
				}
				f.logger.Debug("browser request blocked",
					slog.String("component", "browser"),
					slog.String("url", e.Request.URL),
					slog.String("error", err.Error()))
				if e.ResourceType == network.ResourceTypeDocument {
					mu.Lock()
					if blocked == nil {
						blocked = err
					}
					mu.Unlock()
				}
				_ = chromedp.Run(browserCtx, fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient))
			}()
		case *network.EventRequestWillBeSent:
			mu.Lock()
			defer mu.Unlock()
			if e.Type != network.ResourceTypeDocument {
				return
			}
			if mainID == "" {
				mainID = e.RequestID
			}
			if e.RequestID == mainID && e.RedirectResponse != nil {
				redirects++
			}
		case *network.EventResponseReceived:
			mu.Lock()
			defer mu.Unlock()
			if e.RequestID == mainID && e.Response != nil {
				status = int(e.Response.Status)
			}
		}
	})

	actions := []chromedp.Action{network.Enable()}
	if f.guard != nil {
		actions = append(actions, fetch.Enable())
	}
	var html string
	actions = append(actions,
		chromedp.Navigate(u.String()),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	err := chromedp.Run(browserCtx, actions...)

	mu.Lock()
	defer mu.Unlock()
	if blocked != nil {
		return nil, blocked
	}
	if err != nil {
		return nil, err
	}
	if status == 0 {
		return nil, errNoDocumentResponse
	}
	return newPageEvidence(status, redirects, []byte(html)), nil
}

// logf adapts chromedp's printf-style hooks to the structured logger.
func (f *BrowserFetcher) logf(level slog.Level) func(string, ...interface{}) {
	return func(format string, args ...interface{}) {
		f.logger.Log(context.Background(), level, fmt.Sprintf(format, args...),
			slog.String("component", "browser"))
	}
}
