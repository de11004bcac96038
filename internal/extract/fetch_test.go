package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetcherFetchListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != defaultUserAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	listing, err := NewFetcher(5*time.Second, AllowPrivateHosts(true)).FetchListing(context.Background(), srv.URL+"/marketplace/item/777/")
	if err != nil {
		t.Fatalf("fetch listing: %v", err)
	}
	if listing.ID != "777" || listing.AskingPrice != 1250 {
		t.Fatalf("unexpected listing %+v", listing)
	}
}

func TestFetcherRejectsNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewFetcher(0, AllowPrivateHosts(true)).Fetch(context.Background(), srv.URL); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch for 404 page, got %v", err)
	}
}

func TestFetcherRefusesInternalTargets(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	for _, target := range []string{
		srv.URL + "/marketplace/item/777/",
		"http://localhost:8080/marketplace/item/1/",
		"http://169.254.169.254/latest/meta-data/",
		"http://[::1]/",
		"http://10.0.0.8/item",
		"file:///etc/passwd",
		"ftp://example.com/item",
		"http:///no-host",
	} {
		if _, err := f.Fetch(context.Background(), target); !errors.Is(err, ErrBlockedURL) {
			t.Fatalf("%s: expected ErrBlockedURL, got %v", target, err)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("expected no request to reach the local server, got %d", n)
	}
}

func TestFetcherDialGuardCatchesResolvedHosts(t *testing.T) {
	if err := refusePrivateAddress("tcp", "127.0.0.1:80", nil); !errors.Is(err, errBlockedAddress) {
		t.Fatalf("expected loopback dial to be refused, got %v", err)
	}
	if err := refusePrivateAddress("tcp", "93.184.215.14:443", nil); err != nil {
		t.Fatalf("expected public dial to pass, got %v", err)
	}
}

func TestIsPublicAddr(t *testing.T) {
	for _, tc := range []struct {
		addr string
		want bool
	}{
		{"93.184.215.14", true},
		{"2606:2800:21f:cb07:6820:80da:af6b:8b2c", true},
		{"127.0.0.1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"100.64.0.1", false},
		{"0.0.0.0", false},
		{"::1", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"::ffff:127.0.0.1", false},
	} {
		if got := isPublicAddr(netip.MustParseAddr(tc.addr)); got != tc.want {
			t.Fatalf("%s: expected public=%v, got %v", tc.addr, tc.want, got)
		}
	}
}

func TestFetcherCapsPageSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.Repeat("a", maxPageBytes+1)))
	}))
	defer srv.Close()

	if _, err := NewFetcher(5*time.Second, AllowPrivateHosts(true)).Fetch(context.Background(), srv.URL); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected oversized page to fail with ErrFetch, got %v", err)
	}
}
