package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig returns a config suitable for tests with SSRF checks disabled
// to allow httptest.NewServer (127.0.0.1) to work
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.DefaultTimeout = 5 * time.Second
	cfg.SkipSSRFCheck = true
	return cfg
}

func TestFetch_Success(t *testing.T) {
	var gotUA, gotAccept, gotLanguage string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotAccept = r.Header.Get("Accept")
		gotLanguage = r.Header.Get("Accept-Language")
		w.Header().Set("Server", "nginx/1.25.3")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>Hi</title></head></html>"))
	}))
	defer ts.Close()

	page, err := New(testConfig(), nil).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "nginx/1.25.3", page.Server())
	assert.Contains(t, string(page.Body), "<title>Hi</title>")
	assert.Equal(t, BrowserUserAgent, gotUA)
	assert.Contains(t, gotAccept, "text/html")
	assert.Equal(t, acceptLanguageHeader, gotLanguage)
}

func TestFetch_BrowserHeadersOnEveryFetch(t *testing.T) {
	var accepts []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accepts = append(accepts, r.Header.Get("Accept"))
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer ts.Close()

	c := New(testConfig(), nil)
	for range 2 {
		_, err := c.Fetch(context.Background(), ts.URL)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{acceptHeader, acceptHeader}, accepts)
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("blocked"))
	}))
	defer ts.Close()

	page, err := New(testConfig(), nil).Fetch(context.Background(), ts.URL)
	assert.ErrorIs(t, err, ErrNonSuccessStatus)
	assert.Nil(t, page)
}

func TestFetch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig(), nil).Fetch(ctx, "http://example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_InvalidURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "no_scheme", url: "example.com"},
		{name: "ftp_scheme", url: "ftp://example.com"},
		{name: "no_host", url: "http://"},
	}

	c := New(testConfig(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Fetch(context.Background(), tt.url)
			assert.Error(t, err)
		})
	}
}

func TestFetch_BlocksPrivateAddresses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("should not be reached"))
	}))
	defer ts.Close()

	cfg := DefaultConfig()
	cfg.DefaultTimeout = 5 * time.Second

	_, err := New(cfg, nil).Fetch(context.Background(), ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestFetch_WrapsTransport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	var calls int32
	wrap := func(next http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return next.RoundTrip(req)
		})
	}

	_, err := New(testConfig(), wrap).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPerformanceMetrics(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte("Performance test response"))
	}))
	defer ts.Close()

	page, err := New(testConfig(), nil).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)

	assert.Greater(t, page.Performance.TTFB, int64(0))
	assert.GreaterOrEqual(t, page.ResponseTime, int64(10))
}

func TestIsBlockedIP(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		blocked bool
	}{
		{name: "loopback", addr: "127.0.0.1", blocked: true},
		{name: "private_10", addr: "10.1.2.3", blocked: true},
		{name: "link_local", addr: "169.254.169.254", blocked: true},
		{name: "cgnat", addr: "100.64.0.1", blocked: true},
		{name: "mapped_loopback", addr: "::ffff:127.0.0.1", blocked: true},
		{name: "ipv6_loopback", addr: "::1", blocked: true},
		{name: "public_v4", addr: "93.184.216.34", blocked: false},
		{name: "public_v6", addr: "2606:2800:220:1:248:1893:25c8:1946", blocked: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.blocked, IsBlockedIP(netip.MustParseAddr(tt.addr)))
		})
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
