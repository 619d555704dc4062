package detection

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAddressGuard(t *testing.T) {
	t.Parallel()

	guard, err := NewAddressGuard(DefaultBlockedNetworks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		ip      string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.20.0.5", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"::1", true},
		{"fd00::1", true},
		{"93.184.216.34", false},
		{"2606:2800:220:1::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			t.Parallel()

			err := guard.Check(net.ParseIP(tt.ip))
			if got := errors.Is(err, ErrBlockedAddress); got != tt.blocked {
				t.Errorf("expected blocked=%v, got %v", tt.blocked, err)
			}
		})
	}

	if err := guard.CheckHost(context.Background(), "127.0.0.1"); !errors.Is(err, ErrBlockedAddress) {
		t.Errorf("expected literal loopback host to be blocked, got %v", err)
	}
}

func TestNewAddressGuardRejectsBadCIDR(t *testing.T) {
	t.Parallel()

	if _, err := NewAddressGuard([]string{"10.0.0.0/8", "not-a-network"}); err == nil {
		t.Error("expected error for invalid CIDR")
	}
}

func TestGuardedFetcherRefusesLoopback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("guarded fetch reached the server")
	}))
	defer server.Close()

	guard, err := NewAddressGuard(DefaultBlockedNetworks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := NewHTTPFetcher(NewPageClient(guard), "", 0)

	_, err = f.Fetch(context.Background(), mustURL(t, server.URL))
	if !errors.Is(err, ErrBlockedAddress) {
		t.Errorf("expected ErrBlockedAddress, got %v", err)
	}
}
