package detection

import (
	"context"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Default evidence timeouts.
const (
	DefaultPageTimeout  = 2 * time.Second
	DefaultWhoisTimeout = 2 * time.Second
	DefaultJoinGrace    = 500 * time.Millisecond
)

// PageEvidence is what a successful page fetch observed.
type PageEvidence struct {
	StatusCode int
	Redirects  int
	Body       string

	// Document is the parsed Body. It may be nil if the body was not HTML
	// that goquery could read; content features then use their defaults.
	Document *goquery.Document
}

// RegistrationRecord holds the dates parsed from a whois response.
// Either date may be zero when the registry did not report it.
type RegistrationRecord struct {
	Domain    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Raw       string
}

// Evidence is the per-request bundle handed to the feature extractor.
// A nil Page or Registration means that branch produced nothing.
type Evidence struct {
	Page         *PageEvidence
	Registration *RegistrationRecord

	// GatheredAt is the clock reading used by age-based features.
	GatheredAt time.Time
}

// PageFetcher retrieves page content for a URL. Implementations must honor
// ctx cancellation.
type PageFetcher interface {
	Fetch(ctx context.Context, u NormalizedURL) (*PageEvidence, error)
}

// RegistrationLookup retrieves the registration record for a host.
type RegistrationLookup interface {
	Lookup(ctx context.Context, host string) (*RegistrationRecord, error)
}

// GathererConfig bounds the two evidence branches.
type GathererConfig struct {
	PageTimeout  time.Duration
	WhoisTimeout time.Duration
	Grace        time.Duration
}

// Gatherer runs the page fetch and the registration lookup concurrently.
type Gatherer struct {
	pages    PageFetcher
	registry RegistrationLookup
	cfg      GathererConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewGatherer creates a Gatherer.
func NewGatherer(pages PageFetcher, registry RegistrationLookup, cfg GathererConfig, logger *slog.Logger) *Gatherer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatherer{
		pages:    pages,
		registry: registry,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

type branchResult[T any] struct {
	value *T
	err   error
}

// Gather collects evidence for u. It never fails: a branch that errors or
// misses its window contributes nothing. The call returns no later than the
// slower branch's timeout plus the grace window.
func (g *Gatherer) Gather(ctx context.Context, u NormalizedURL) Evidence {
	start := time.Now()

	// Cancelling on return stops branches that were abandoned.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageCh := make(chan branchResult[PageEvidence], 1)
	regCh := make(chan branchResult[RegistrationRecord], 1)

	go func() {
		bctx, bcancel := context.WithTimeout(ctx, g.cfg.PageTimeout)
		defer bcancel()
		page, err := g.pages.Fetch(bctx, u)
		pageCh <- branchResult[PageEvidence]{value: page, err: err}
	}()

	go func() {
		bctx, bcancel := context.WithTimeout(ctx, g.cfg.WhoisTimeout)
		defer bcancel()
		rec, err := g.registry.Lookup(bctx, u.Hostname())
		regCh <- branchResult[RegistrationRecord]{value: rec, err: err}
	}()

	ev := Evidence{GatheredAt: g.now()}
	ev.Page = await(ctx, g, pageCh, "page", start.Add(g.cfg.PageTimeout+g.cfg.Grace))
	ev.Registration = await(ctx, g, regCh, "whois", start.Add(g.cfg.WhoisTimeout+g.cfg.Grace))
	return ev
}

func await[T any](ctx context.Context, g *Gatherer, ch <-chan branchResult[T], branch string, deadline time.Time) *T {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			g.logger.Debug("evidence branch failed",
				slog.String("component", "evidence"),
				slog.String("branch", branch),
				slog.String("error", res.err.Error()))
			return nil
		}
		return res.value
	case <-timer.C:
		g.logger.Debug("evidence branch abandoned after timeout",
			slog.String("component", "evidence"),
			slog.String("branch", branch))
		return nil
	case <-ctx.Done():
		return nil
	}
}
