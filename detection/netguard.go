package detection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/yl2chen/cidranger"
)

// DefaultBlockedNetworks are the loopback, private, link-local and shared
// ranges that page fetches must never reach.
var DefaultBlockedNetworks = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

// ErrBlockedAddress is returned when a fetch would connect to a blocked network.
var ErrBlockedAddress = errors.New("address is in a blocked network")

// AddressGuard rejects connections to blocked networks. It is built once and
// only read afterwards.
type AddressGuard struct {
	ranger cidranger.Ranger
}

// NewAddressGuard builds a guard over the given CIDR ranges.
func NewAddressGuard(cidrs []string) (*AddressGuard, error) {
	ranger := cidranger.NewPCTrieRanger()
	for _, c := range cidrs {
		_, ipNet, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("blocked network %q: %w", c, err)
		}
		if err := ranger.Insert(cidranger.NewBasicRangerEntry(*ipNet)); err != nil {
			return nil, fmt.Errorf("blocked network %q: %w", c, err)
		}
	}
	return &AddressGuard{ranger: ranger}, nil
}

// Check returns ErrBlockedAddress if ip falls inside a blocked network.
func (g *AddressGuard) Check(ip net.IP) error {
	networks, err := g.ranger.ContainingNetworks(ip)
	if err != nil || len(networks) == 0 {
		return nil
	}
	match := networks[len(networks)-1].Network()
	return fmt.Errorf("%w: %s in %s", ErrBlockedAddress, ip, match.String())
}

// CheckHost resolves host and checks every address it maps to.
func (g *AddressGuard) CheckHost(ctx context.Context, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		return g.Check(ip)
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if err := g.Check(a.IP); err != nil {
			return err
		}
	}
	return nil
}

// CheckURL checks the host of an http or https URL. Other schemes, such as
// data: and blob:, never leave the browser and pass.
func (g *AddressGuard) CheckURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: unparseable URL", ErrBlockedAddress)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	return g.CheckHost(ctx, u.Hostname())
}

// control runs after DNS resolution, so it sees the address actually dialed,
// including for every redirect hop.
func (g *AddressGuard) control(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: unresolved address %s", ErrBlockedAddress, host)
	}
	return g.Check(ip)
}

// NewPageClient returns the HTTP client used for page fetches. It follows up
// to ten redirects. A non-nil guard vets every connection it opens.
func NewPageClient(guard *AddressGuard) *http.Client {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if guard != nil {
		dialer.Control = guard.control
		// A proxy would hide the real target from the guard.
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
