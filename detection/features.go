package detection

import (
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// FeatureCount is the width of the classifier input.
const FeatureCount = 30

// FeatureVector holds one ternary score per feature in training order.
type FeatureVector [FeatureCount]int

// FeatureGroup names the evidence a feature depends on.
type FeatureGroup string

const (
	GroupStructural   FeatureGroup = "structural"
	GroupContent      FeatureGroup = "content"
	GroupRegistration FeatureGroup = "registration"
	GroupPlaceholder  FeatureGroup = "placeholder"
)

// Feature is a named pure scoring function.
type Feature struct {
	Name  string
	Group FeatureGroup
	Score func(NormalizedURL, Evidence) int
}

// Features is the scoring table. Its order is the order the classifier was
// trained on and must not change.
var Features = [FeatureCount]Feature{
	{"UsingIP", GroupStructural, usingIP},
	{"LongURL", GroupStructural, longURL},
	{"ShortURL", GroupStructural, shortURL},
	{"AtSymbol", GroupStructural, atSymbol},
	{"Redirecting", GroupStructural, redirecting},
	{"PrefixSuffix", GroupStructural, prefixSuffix},
	{"SubDomains", GroupStructural, subDomains},
	{"HTTPS", GroupStructural, httpsScheme},
	{"DomainRegLen", GroupRegistration, domainRegLen},
	{"Favicon", GroupContent, favicon},
	{"NonStdPort", GroupStructural, nonStdPort},
	{"HTTPSDomainURL", GroupStructural, httpsInHost},
	{"RequestURL", GroupContent, requestURL},
	{"AnchorURL", GroupContent, anchorURL},
	{"LinksInScriptTags", GroupContent, linksInScriptTags},
	{"ServerFormHandler", GroupContent, serverFormHandler},
	{"InfoEmail", GroupContent, infoEmail},
	{"AbnormalURL", GroupRegistration, abnormalURL},
	{"WebsiteForwarding", GroupContent, websiteForwarding},
	{"StatusBarCust", GroupContent, statusBarCust},
	{"DisableRightClick", GroupContent, disableRightClick},
	{"UsingPopupWindow", GroupContent, usingPopupWindow},
	{"IframeRedirection", GroupContent, iframeRedirection},
	{"AgeOfDomain", GroupRegistration, ageOfDomain},
	{"DNSRecording", GroupRegistration, ageOfDomain},
	{"WebsiteTraffic", GroupPlaceholder, websiteTraffic},
	{"PageRank", GroupPlaceholder, pageRank},
	{"GoogleIndex", GroupContent, googleIndex},
	{"LinksPointingToPage", GroupContent, linksPointingToPage},
	{"StatsReport", GroupStructural, statsReport},
}

// Extract scores u against ev with every feature in table order.
func Extract(u NormalizedURL, ev Evidence) FeatureVector {
	var v FeatureVector
	for i, f := range Features {
		v[i] = clampTernary(f.Score(u, ev))
	}
	return v
}

func clampTernary(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

var (
	shortenerPattern = regexp.MustCompile(`bit\.ly|goo\.gl|shorte\.st|go2l\.ink|x\.co|ow\.ly|t\.co|tinyurl|tr\.im|is\.gd|cli\.gs|` +
		`yfrog\.com|migre\.me|ff\.im|tiny\.cc|url4\.eu|twit\.ac|su\.pr|twurl\.nl|snipurl\.com|` +
		`short\.to|BudURL\.com|ping\.fm|post\.ly|Just\.as|bkite\.com|snipr\.com|fic\.kr|loopt\.us|` +
		`doiop\.com|short\.ie|kl\.am|wp\.me|rubyurl\.com|om\.ly|to\.ly|bit\.do|lnkd\.in|` +
		`db\.tt|qr\.ae|adf\.ly|bitly\.com|cur\.lv|tinyurl\.com|ity\.im|` +
		`q\.gs|po\.st|bc\.vc|twitthis\.com|u\.to|j\.mp|buzurl\.com|cutt\.us|u\.bb|yourls\.org|` +
		`prettylinkpro\.com|scrnch\.me|filoops\.info|vzturl\.com|qr\.net|1url\.com|tweez\.me|v\.gd|link\.zip\.net`)

	badHostingPattern = regexp.MustCompile(`at\.ua|usa\.cc|pe\.hu|esy\.es|hol\.es|sweddy\.com|myjino\.ru|96\.lt|ow\.ly`)
)

// Structural features need only the URL.

func usingIP(u NormalizedURL, _ Evidence) int {
	if net.ParseIP(u.Hostname()) != nil {
		return -1
	}
	return 1
}

func longURL(u NormalizedURL, _ Evidence) int {
	switch n := len(u.String()); {
	case n < 54:
		return 1
	case n <= 75:
		return 0
	}
	return -1
}

func shortURL(u NormalizedURL, _ Evidence) int {
	if shortenerPattern.MatchString(u.String()) {
		return -1
	}
	return 1
}

func atSymbol(u NormalizedURL, _ Evidence) int {
	if strings.Contains(u.String(), "@") {
		return -1
	}
	return 1
}

func redirecting(u NormalizedURL, _ Evidence) int {
	if strings.LastIndex(u.String(), "//") > 6 {
		return -1
	}
	return 1
}

func prefixSuffix(u NormalizedURL, _ Evidence) int {
	if strings.Contains(u.Host(), "-") {
		return -1
	}
	return 1
}

func subDomains(u NormalizedURL, _ Evidence) int {
	switch strings.Count(u.String(), ".") {
	case 1:
		return 1
	case 2:
		return 0
	}
	return -1
}

func httpsScheme(u NormalizedURL, _ Evidence) int {
	if u.Scheme() == "https" {
		return 1
	}
	return -1
}

func nonStdPort(u NormalizedURL, _ Evidence) int {
	switch u.Port() {
	case "", "80", "443":
		return 1
	}
	return -1
}

func httpsInHost(u NormalizedURL, _ Evidence) int {
	if strings.Contains(strings.ToLower(u.Host()), "https") {
		return -1
	}
	return 1
}

func statsReport(u NormalizedURL, _ Evidence) int {
	if badHostingPattern.MatchString(u.String()) {
		return -1
	}
	return 1
}

// Content features need the fetched page.

// isLocalRef reports whether ref points at the page's own host or is
// relative to it.
func isLocalRef(u NormalizedURL, ref string, dotSlash bool) bool {
	if strings.Contains(ref, u.Host()) || strings.HasPrefix(ref, "/") {
		return true
	}
	return dotSlash && strings.HasPrefix(ref, "./")
}

// bucketPercent maps a percentage onto -1/0/1 with two descending cut-offs.
func bucketPercent(pct, high, mid float64) int {
	switch {
	case pct >= high:
		return -1
	case pct >= mid:
		return 0
	}
	return 1
}

func percent(part, total int) float64 {
	return float64(part) / float64(total) * 100
}

// favicon defaults to -1 without a page.
func favicon(u NormalizedURL, ev Evidence) int {
	if ev.Page == nil || ev.Page.Document == nil {
		return -1
	}
	found := ev.Page.Document.Find("link[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return isLocalRef(u, href, true)
	})
	if found.Length() > 0 {
		return 1
	}
	return -1
}

// requestURL defaults to 0 without a page or without media.
func requestURL(u NormalizedURL, ev Evidence) int {
	if ev.Page == nil || ev.Page.Document == nil {
		return 0
	}
	total, local := 0, 0
	ev.Page.Document.Find("img[src], audio[src], embed[src], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		total++
		if src, _ := s.Attr("src"); isLocalRef(u, src, true) {
			local++
		}
	})
	if total == 0 {
		return 0
	}
	return bucketPercent(percent(local, total), 61, 22)
}

// anchorURL defaults to -1 without a page or without anchors.
func anchorURL(u NormalizedURL, ev Evidence) int {
	if ev.Page == nil || ev.Page.Document == nil {
		return -1
	}
	host := strings.ToLower(u.Host())
	total, unsafe := 0, 0
	ev.Page.Document.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		total++
		href, _ := s.Attr("href")
		href = strings.ToLower(href)
		switch {
		case strings.Contains(href, "#"), strings.Contains(href, "javascript"), strings.Contains(href, "mailto"):
			unsafe++
		case !strings.Contains(href, host) && !strings.HasPrefix(href, "/"):
			unsafe++
		}
	})
	if total == 0 {
		return -1
	}
	return bucketPercent(percent(unsafe, total), 67, 31)
}

// linksInScriptTags defaults to 0 without a page or without script/link tags.
func linksInScriptTags(u NormalizedURL, ev Evidence) int {
	if ev.Page == nil || ev.Page.Document == nil {
		return 0
	}
	doc := ev.Page.Document
	total, local := 0, 0
	doc.Find("link[src], script[src]").Each(func(_ int, s *goquery.Selection) {
		total++
		if src, _ := s.Attr("src"); isLocalRef(u, src, false) {
			local++
		}
	})
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		total++
		if href, _ := s.Attr("href"); isLocalRef(u, href, false) {
			local++
		}
	})
	if total == 0 {
		return 0
	}
	return bucketPercent(percent(local, total), 81, 17)
}

// serverFormHandler defaults to 1 without a page or without forms.
func serverFormHandler(u NormalizedURL, ev Evidence) int {
	if ev.Page == nil || ev.Page.Document == nil {
		return 1
	}
	score := 1
	ev.Page.Document.Find("form[action]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		action, _ := s.Attr("action")
		if action == "" || action == "about:blank" {
			score = -1
			return false
		}
		if !isLocalRef(u, action, false) {
			score = 0
			return false
		}
		return true
	})
	return score
}

// infoEmail defaults to 1 without a page.
func infoEmail(_ NormalizedURL, ev Evidence) int {
	if ev.Page == nil {
		return 1
	}
	if strings.Contains(strings.ToLower(ev.Page.Body), "mailto:") {
		return -1
	}
	return 1
}

// websiteForwarding defaults to -1 without a page.
func websiteForwarding(_ NormalizedURL, ev Evidence) int {
	if ev.Page == nil {
		return -1
	}
	switch r := ev.Page.Redirects; {
	case r <= 1:
		return 1
	case r <= 4:
		return 0
	}
	return -1
}

// bodyMarker scores 1 when any marker appears in the page body and -1
// otherwise, including when there is no page.
func bodyMarker(ev Evidence, fold bool, markers ...string) int {
	if ev.Page == nil {
		return -1
	}
	body := ev.Page.Body
	if fold {
		body = strings.ToLower(body)
	}
	for _, m := range markers {
		if strings.Contains(body, m) {
			return 1
		}
	}
	return -1
}

func statusBarCust(_ NormalizedURL, ev Evidence) int {
	return bodyMarker(ev, true, "onmouseover")
}

func disableRightClick(_ NormalizedURL, ev Evidence) int {
	return bodyMarker(ev, false, "event.button")
}

func usingPopupWindow(_ NormalizedURL, ev Evidence) int {
	return bodyMarker(ev, false, "alert(")
}

func iframeRedirection(_ NormalizedURL, ev Evidence) int {
	return bodyMarker(ev, true, "<iframe", "<frameborder")
}

// googleIndex stands in for search-index presence: a page that answers 200
// is taken as indexed. Defaults to -1 without a page.
func googleIndex(_ NormalizedURL, ev Evidence) int {
	if ev.Page != nil && ev.Page.StatusCode == 200 {
		return 1
	}
	return -1
}

// linksPointingToPage defaults to -1 without a page.
func linksPointingToPage(_ NormalizedURL, ev Evidence) int {
	if ev.Page == nil {
		return -1
	}
	switch n := strings.Count(ev.Page.Body, "<a href="); {
	case n == 0:
		return 1
	case n <= 2:
		return 0
	}
	return -1
}

// Registration features need the whois record. All default to -1.

// monthsBetween counts calendar months from a to b, ignoring days.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

func domainRegLen(_ NormalizedURL, ev Evidence) int {
	rec := ev.Registration
	if rec == nil || rec.CreatedAt.IsZero() || rec.ExpiresAt.IsZero() {
		return -1
	}
	if monthsBetween(rec.CreatedAt, rec.ExpiresAt) >= 12 {
		return 1
	}
	return -1
}

func ageOfDomain(_ NormalizedURL, ev Evidence) int {
	rec := ev.Registration
	if rec == nil || rec.CreatedAt.IsZero() {
		return -1
	}
	if monthsBetween(rec.CreatedAt, ev.GatheredAt) >= 6 {
		return 1
	}
	return -1
}

func abnormalURL(u NormalizedURL, ev Evidence) int {
	rec := ev.Registration
	if rec == nil {
		return -1
	}
	raw := strings.ToLower(rec.Raw)
	for _, name := range []string{u.Hostname(), rec.Domain} {
		if name != "" && strings.Contains(raw, strings.ToLower(name)) {
			return 1
		}
	}
	return -1
}

// Placeholders replace retired third-party signals.

// websiteTraffic is neutral since the traffic ranking service shut down.
func websiteTraffic(NormalizedURL, Evidence) int { return 0 }

// pageRank treats a dated registration record as a sign of an established
// site.
func pageRank(_ NormalizedURL, ev Evidence) int {
	if ev.Registration != nil && !ev.Registration.CreatedAt.IsZero() {
		return 1
	}
	return -1
}
