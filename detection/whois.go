package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	whois "github.com/likexian/whois"
	parser "github.com/likexian/whois-parser"
	"golang.org/x/net/idna"
)

var errNoRegistrationDates = errors.New("whois response has no parseable dates")

// whoisDateLayouts covers the formats registries commonly use. They are only
// consulted when whois-parser could not convert a date itself.
var whoisDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.0Z",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
	"2006/01/02",
	"02.01.2006",
	"02-Jan-2006 15:04:05",
	"2006-01-02 15:04:05-07",
	time.ANSIC,
	"02/01/2006 15:04:05",
}

// WhoisQuery runs a raw whois query. It exists so tests can avoid the network.
type WhoisQuery func(ctx context.Context, domain string) (string, error)

// WhoisLookup resolves registration records over the whois protocol.
type WhoisLookup struct {
	query WhoisQuery
}

// NewWhoisLookup creates a WhoisLookup. A nil query uses the live whois
// client.
func NewWhoisLookup(query WhoisQuery) *WhoisLookup {
	if query == nil {
		query = queryWhois
	}
	return &WhoisLookup{query: query}
}

// Lookup queries the registrable domain of host and parses the creation and
// expiration dates.
func (l *WhoisLookup) Lookup(ctx context.Context, host string) (*RegistrationRecord, error) {
	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(strings.ToLower(host), "."))
	if err != nil {
		return nil, fmt.Errorf("idna %q: %w", host, err)
	}
	domain := registrableDomain(ascii)

	raw, err := l.query(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("whois %s: %w", domain, err)
	}

	info, err := parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse whois %s: %w", domain, err)
	}
	if info.Domain == nil {
		return nil, fmt.Errorf("parse whois %s: %w", domain, errNoRegistrationDates)
	}

	rec := &RegistrationRecord{
		Domain:    domain,
		CreatedAt: whoisDate(info.Domain.CreatedDateInTime, info.Domain.CreatedDate),
		ExpiresAt: whoisDate(info.Domain.ExpirationDateInTime, info.Domain.ExpirationDate),
		Raw:       raw,
	}
	if rec.CreatedAt.IsZero() && rec.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("whois %s: %w", domain, errNoRegistrationDates)
	}
	return rec, nil
}

// whoisDate prefers the parser's own conversion and falls back to the
// layout list for the raw string.
func whoisDate(parsed *time.Time, raw string) time.Time {
	if parsed != nil && !parsed.IsZero() {
		return *parsed
	}
	return parseWhoisDate(raw)
}

func parseWhoisDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range whoisDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// queryWhois runs the blocking whois client in its own goroutine so the
// caller can stop waiting when ctx ends. The client's own timeout is set to
// the remaining deadline so the connection is torn down as well.
func queryWhois(ctx context.Context, domain string) (string, error) {
	client := whois.NewClient()
	if deadline, ok := ctx.Deadline(); ok {
		client.SetTimeout(time.Until(deadline))
	}

	type result struct {
		raw string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		raw, err := client.Whois(domain)
		ch <- result{raw: raw, err: err}
	}()

	select {
	case r := <-ch:
		return r.raw, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
