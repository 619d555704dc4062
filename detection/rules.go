package detection

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Default rule thresholds.
const (
	DefaultLongURLThreshold     = 150
	DefaultQueryParamsThreshold = 5
	DefaultObfuscationLength    = 20
	minKeywordHits              = 2

	// MaxObfuscationLength is the largest repeat count regexp accepts.
	MaxObfuscationLength = 1000
)

// DefaultBrands are brand tokens that phishing pages commonly borrow.
var DefaultBrands = []string{
	"paypal", "amazon", "microsoft", "google", "facebook", "apple",
	"netflix", "instagram", "twitter", "linkedin", "ebay", "walmart",
	"skype", "dropbox", "adobe", "yahoo", "chase", "wellsfargo",
	"bankofamerica", "citibank", "americanexpress", "dhl", "fedex",
}

// DefaultKeywords are path tokens typical of credential harvesting pages.
var DefaultKeywords = []string{
	"login", "signin", "verify", "verification", "confirm", "update",
	"secure", "account", "banking", "suspend", "locked", "unusual",
	"activity", "restore", "recover", "validate", "authenticate",
}

var digitRun = regexp.MustCompile(`\d{3,}`)

// RuleResult is the outcome of a single syntactic check.
type RuleResult struct {
	Matched bool
	Reason  string
}

func miss() RuleResult { return RuleResult{} }

func hit(format string, args ...any) RuleResult {
	return RuleResult{Matched: true, Reason: fmt.Sprintf(format, args...)}
}

// Rule is a named pure check on a normalized URL.
type Rule struct {
	Name  string
	Check func(NormalizedURL) RuleResult
}

// RuleConfig holds the lexicons and thresholds used by the rule engine.
type RuleConfig struct {
	Brands               []string
	Keywords             []string
	LongURLThreshold     int
	QueryParamsThreshold int
	ObfuscationLength    int
}

// DefaultRuleConfig returns the built-in lexicons and thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		Brands:               DefaultBrands,
		Keywords:             DefaultKeywords,
		LongURLThreshold:     DefaultLongURLThreshold,
		QueryParamsThreshold: DefaultQueryParamsThreshold,
		ObfuscationLength:    DefaultObfuscationLength,
	}
}

// RuleEngine evaluates its rules in order and stops at the first match.
type RuleEngine struct {
	rules []Rule
}

// NewRuleEngine builds the six override checks in priority order.
func NewRuleEngine(cfg RuleConfig) *RuleEngine {
	run := min(max(cfg.ObfuscationLength, 1), MaxObfuscationLength)
	opaque := regexp.MustCompile(fmt.Sprintf(`[A-Za-z0-9]{%d,}`, run))
	brands := lowerAll(cfg.Brands)
	keywords := lowerAll(cfg.Keywords)

	return &RuleEngine{rules: []Rule{
		{Name: "brand_impersonation", Check: func(u NormalizedURL) RuleResult {
			return checkBrandImpersonation(u, brands)
		}},
		{Name: "phishing_keywords", Check: func(u NormalizedURL) RuleResult {
			return checkPhishingKeywords(u, keywords)
		}},
		{Name: "suspicious_domain", Check: checkSuspiciousDomain},
		{Name: "url_length", Check: func(u NormalizedURL) RuleResult {
			return checkURLLength(u, cfg.LongURLThreshold)
		}},
		{Name: "query_params", Check: func(u NormalizedURL) RuleResult {
			return checkQueryParams(u, cfg.QueryParamsThreshold)
		}},
		{Name: "obfuscation", Check: func(u NormalizedURL) RuleResult {
			if opaque.MatchString(u.String()) {
				return hit("Obfuscated/encoded string detected")
			}
			return miss()
		}},
	}}
}

// Rules returns the ordered checks.
func (e *RuleEngine) Rules() []Rule { return e.rules }

// Evaluate runs the checks in order and returns the first match.
// Later checks are not run once one matches.
func (e *RuleEngine) Evaluate(u NormalizedURL) RuleResult {
	for _, r := range e.rules {
		if res := r.Check(u); res.Matched {
			return res
		}
	}
	return miss()
}

func checkBrandImpersonation(u NormalizedURL, brands []string) RuleResult {
	path := strings.ToLower(u.Path())
	domain := strings.ToLower(registrableDomain(u.Hostname()))
	for _, brand := range brands {
		if strings.Contains(path, brand) && !strings.Contains(domain, brand) {
			return hit("Brand impersonation: '%s' in path but not in domain '%s'", brand, u.Host())
		}
	}
	return miss()
}

func checkPhishingKeywords(u NormalizedURL, keywords []string) RuleResult {
	path := strings.ToLower(u.Path())
	var found []string
	for _, kw := range keywords {
		if strings.Contains(path, kw) {
			found = append(found, kw)
		}
	}
	if len(found) >= minKeywordHits {
		if len(found) > 3 {
			found = found[:3]
		}
		return hit("Multiple phishing keywords: %s", strings.Join(found, ", "))
	}
	return miss()
}

func checkSuspiciousDomain(u NormalizedURL) RuleResult {
	first, _, _ := strings.Cut(u.Host(), ".")
	if digitRun.MatchString(first) {
		return hit("Suspicious domain pattern: '%s' contains random numbers", u.Host())
	}
	return miss()
}

func checkURLLength(u NormalizedURL, threshold int) RuleResult {
	if n := len(u.String()); n > threshold {
		return hit("Extremely long URL (%d characters)", n)
	}
	return miss()
}

func checkQueryParams(u NormalizedURL, threshold int) RuleResult {
	if !strings.Contains(u.String(), "?") {
		return miss()
	}
	if n := len(strings.Split(u.RawQuery(), "&")); n > threshold {
		return hit("Excessive query parameters (%d params)", n)
	}
	return miss()
}

// registrableDomain returns the eTLD+1 of host, or host itself when no
// public suffix applies (IP literals, single-label names).
func registrableDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
