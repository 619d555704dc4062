package detection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMaxURLLength is the longest URL accepted for classification.
const DefaultMaxURLLength = 2048

// NormalizedURL is a URL that is guaranteed to carry an http or https scheme.
// It is built once per request and never modified afterwards.
type NormalizedURL struct {
	raw    string
	parsed *url.URL
}

// ParseNormalized validates an already-schemed URL.
func ParseNormalized(raw string) (NormalizedURL, error) {
	if !hasHTTPScheme(raw) {
		return NormalizedURL{}, fmt.Errorf("%w: missing http or https scheme", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return NormalizedURL{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Host == "" {
		return NormalizedURL{}, fmt.Errorf("%w: missing host", ErrInvalidInput)
	}
	return NormalizedURL{raw: raw, parsed: u}, nil
}

// String returns the URL exactly as normalized.
func (u NormalizedURL) String() string { return u.raw }

// Scheme returns the lower-cased scheme.
func (u NormalizedURL) Scheme() string { return strings.ToLower(u.parsed.Scheme) }

// Host returns the authority without user info, including any port.
func (u NormalizedURL) Host() string { return u.parsed.Host }

// Hostname returns the host without port or IPv6 brackets.
func (u NormalizedURL) Hostname() string { return u.parsed.Hostname() }

// Port returns the explicit port, or "" when none was given.
func (u NormalizedURL) Port() string { return u.parsed.Port() }

// Path returns the decoded path.
func (u NormalizedURL) Path() string { return u.parsed.Path }

// RawQuery returns the encoded query without the leading '?'.
func (u NormalizedURL) RawQuery() string { return u.parsed.RawQuery }

func hasHTTPScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Normalizer adds a scheme to schemeless input. It probes the https form
// first and falls back to http on any failure.
type Normalizer struct {
	client       *http.Client
	probeTimeout time.Duration
	maxLength    int
	logger       *slog.Logger
}

// NewNormalizer creates a Normalizer. A nil client gets a default one.
func NewNormalizer(client *http.Client, probeTimeout time.Duration, maxLength int, logger *slog.Logger) *Normalizer {
	if client == nil {
		client = &http.Client{}
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxURLLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		client:       client,
		probeTimeout: probeTimeout,
		maxLength:    maxLength,
		logger:       logger,
	}
}

// Normalize trims and validates raw input and returns a schemed URL.
func (n *Normalizer) Normalize(ctx context.Context, raw string) (NormalizedURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NormalizedURL{}, fmt.Errorf("%w: URL is required", ErrInvalidInput)
	}
	if hasHTTPScheme(raw) {
		if err := n.checkLength(raw); err != nil {
			return NormalizedURL{}, err
		}
		return ParseNormalized(raw)
	}

	// The limit applies to the schemed URL; http:// is the shortest it can get.
	if err := n.checkLength("http://" + raw); err != nil {
		return NormalizedURL{}, err
	}
	candidate := "https://" + raw
	if !n.probe(ctx, candidate) {
		candidate = "http://" + raw
	}
	if err := n.checkLength(candidate); err != nil {
		return NormalizedURL{}, err
	}
	return ParseNormalized(candidate)
}

func (n *Normalizer) checkLength(u string) error {
	if len(u) > n.maxLength {
		return fmt.Errorf("%w: URL exceeds %d characters", ErrInvalidInput, n.maxLength)
	}
	return nil
}

// probe reports whether anything answered a HEAD request on the URL.
// The status code is irrelevant; any response proves https works.
func (n *Normalizer) probe(ctx context.Context, target string) bool {
	ctx, cancel := context.WithTimeout(ctx, n.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return false
	}
	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Debug("https probe failed, falling back to http",
			slog.String("component", "normalize"),
			slog.String("url", target),
			slog.String("error", err.Error()))
		return false
	}
	resp.Body.Close()
	return true
}
