package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"

	"marketmate/backend/internal/domain"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; MarketMate/1.0)"
	maxPageBytes     = 5 << 20
	maxRedirects     = 5
)

var (
	ErrFetch = errors.New("listing page unavailable")
	// ErrBlockedURL rejects non-web schemes and hosts on internal networks.
	ErrBlockedURL = errors.New("listing url not allowed")

	errBlockedAddress = errors.New("address is not publicly routable")
	sharedAddrSpace   = netip.MustParsePrefix("100.64.0.0/10")
	thisNetwork       = netip.MustParsePrefix("0.0.0.0/8")
)

// Fetcher downloads listing pages and extracts them.
type Fetcher struct {
	client       *resty.Client
	allowPrivate bool
}

type FetchOption func(*Fetcher)

// AllowPrivateHosts lets the fetcher reach loopback and private networks,
// for local development against a mock marketplace.
func AllowPrivateHosts(allow bool) FetchOption {
	return func(f *Fetcher) { f.allowPrivate = allow }
}

func NewFetcher(timeout time.Duration, opts ...FetchOption) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	f := &Fetcher{}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	if !f.allowPrivate {
		dialer.Control = refusePrivateAddress
	}

	client := resty.New()
	client.SetTransport(&http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	})
	client.SetTimeout(timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects))
	client.SetResponseBodyLimit(maxPageBytes)
	client.SetHeader("User-Agent", defaultUserAgent)
	client.SetHeader("Accept", "text/html")
	f.client = client
	return f
}

// Fetch returns the raw page body.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := f.checkURL(pageURL); err != nil {
		return "", err
	}

	resp, err := f.client.R().SetContext(ctx).Get(pageURL)
	switch {
	case errors.Is(err, errBlockedAddress):
		return "", fmt.Errorf("%w: host resolves to an internal address", ErrBlockedURL)
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d", ErrFetch, resp.StatusCode())
	}
	return resp.String(), nil
}

func (f *Fetcher) FetchListing(ctx context.Context, pageURL string) (domain.Listing, error) {
	body, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return domain.Listing{}, err
	}
	return Extract(strings.NewReader(body), pageURL)
}

// checkURL rejects what can be decided before dialing. Hostnames are checked
// again on every connection, redirects included.
func (f *Fetcher) checkURL(pageURL string) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlockedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrBlockedURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrBlockedURL)
	}
	if f.allowPrivate {
		return nil
	}
	if addr, err := netip.ParseAddr(host); err == nil && !isPublicAddr(addr) {
		return fmt.Errorf("%w: %s is an internal address", ErrBlockedURL, host)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("%w: %s is an internal address", ErrBlockedURL, host)
	}
	return nil
}

func refusePrivateAddress(_ string, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errBlockedAddress, address)
	}
	if !isPublicAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", errBlockedAddress, ap.Addr())
	}
	return nil
}

func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast():
		return false
	case addr.Is4() && (sharedAddrSpace.Contains(addr) || thisNetwork.Contains(addr)):
		return false
	}
	return true
}
