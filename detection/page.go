package detection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/PuerkitoBio/goquery"
)

// Page fetch defaults.
const (
	DefaultUserAgent   = "Mozilla/5.0"
	DefaultMaxBodySize = 5 * 1024 * 1024
	maxRedirects       = 10
)

// HTTPFetcher fetches pages with a plain GET request.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client gets an unguarded
// NewPageClient.
func NewHTTPFetcher(client *http.Client, userAgent string, maxBodySize int64) *HTTPFetcher {
	if client == nil {
		client = NewPageClient(nil)
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &HTTPFetcher{client: client, userAgent: userAgent, maxBodySize: maxBodySize}
}

// Fetch GETs u. Any HTTP response, including 4xx and 5xx, counts as
// evidence; only transport failures are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, u NormalizedURL) (*PageEvidence, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return newPageEvidence(resp.StatusCode, redirectCount(resp), body), nil
}

// redirectCount walks back through the responses that led to resp.
func redirectCount(resp *http.Response) int {
	n := 0
	for r := resp.Request.Response; r != nil; r = r.Request.Response {
		n++
	}
	return n
}

func newPageEvidence(status, redirects int, body []byte) *PageEvidence {
	page := &PageEvidence{
		StatusCode: status,
		Redirects:  redirects,
		Body:       string(body),
	}
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		page.Document = doc
	}
	return page
}
