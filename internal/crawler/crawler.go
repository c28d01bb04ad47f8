// Package crawler fetches single pages for the collectors that inspect markup.
package crawler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
)

// ErrNonSuccessStatus is wrapped by fetch errors caused by a non-2xx response.
var ErrNonSuccessStatus = errors.New("non-success status code")

// Crawler fetches pages with a browser-like request profile.
type Crawler struct {
	config     *Config
	colly      *colly.Collector
	metricsMap *sync.Map // Shared metrics storage for the transport
}

// tracingRoundTripper captures HTTP trace metrics for each request
type tracingRoundTripper struct {
	transport  http.RoundTripper
	metricsMap *sync.Map // Maps URL -> PerformanceMetrics
}

// RoundTrip implements the http.RoundTripper interface with httptrace instrumentation
func (t *tracingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	metrics := &PerformanceMetrics{}

	var dnsStartTime, connectStartTime, tlsStartTime time.Time
	requestStartTime := time.Now()

	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			dnsStartTime = time.Now()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			if !dnsStartTime.IsZero() {
				metrics.DNSLookupTime = time.Since(dnsStartTime).Milliseconds()
			}
		},
		ConnectStart: func(string, string) {
			connectStartTime = time.Now()
		},
		ConnectDone: func(_, _ string, err error) {
			if err == nil && !connectStartTime.IsZero() {
				metrics.TCPConnectionTime = time.Since(connectStartTime).Milliseconds()
			}
		},
		TLSHandshakeStart: func() {
			tlsStartTime = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil && !tlsStartTime.IsZero() {
				metrics.TLSHandshakeTime = time.Since(tlsStartTime).Milliseconds()
			}
		},
		GotFirstResponseByte: func() {
			metrics.TTFB = time.Since(requestStartTime).Milliseconds()
		},
	}

	// Retrieved in OnResponse
	t.metricsMap.Store(req.URL.String(), metrics)

	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	return t.transport.RoundTrip(req)
}

// New creates a new Crawler. If config is nil, default configuration is used.
// wrap, when non-nil, decorates the outbound transport (e.g. for tracing).
func New(config *Config, wrap func(http.RoundTripper) http.RoundTripper) *Crawler {
	if config == nil {
		config = DefaultConfig()
	}

	c := colly.NewCollector(
		colly.UserAgent(config.UserAgent),
		colly.MaxDepth(1),
		colly.Async(true),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(config.MaxBodySize),
	)
	c.ParseHTTPErrorResponse = true

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: config.MaxConcurrency,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to apply crawler limit rule")
	}

	metricsMap := &sync.Map{}

	baseTransport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	if !config.SkipSSRFCheck {
		baseTransport.DialContext = ssrfSafeDialer(config.DefaultTimeout).DialContext
	}

	var transport http.RoundTripper = &tracingRoundTripper{
		transport:  baseTransport,
		metricsMap: metricsMap,
	}
	if wrap != nil {
		transport = wrap(transport)
	}

	c.SetClient(&http.Client{
		Timeout:   config.DefaultTimeout,
		Transport: transport,
	})

	return &Crawler{
		config:     config,
		colly:      c,
		metricsMap: metricsMap,
	}
}

// Browser-like Accept headers; some sites block the colly default of "*/*".
const (
	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguageHeader = "en-US,en;q=0.9"
)

func setBrowserHeaders(r *colly.Request) {
	r.Headers.Set("Accept", acceptHeader)
	r.Headers.Set("Accept-Language", acceptLanguageHeader)

	log.Debug().
		Str("url", r.URL.String()).
		Msg("Crawler sending request")
}

// Config returns the Crawler's configuration.
func (c *Crawler) Config() *Config {
	return c.config
}

// validateFetchRequest validates the context and URL format
func validateFetchRequest(ctx context.Context, targetURL string) (*url.URL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, err
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL format: %s", targetURL)
	}

	return parsed, nil
}

// Fetch retrieves targetURL and returns the page. Transport failures,
// timeouts and non-2xx responses are all returned as errors.
func (c *Crawler) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if _, err := validateFetchRequest(ctx, targetURL); err != nil {
		return nil, err
	}

	start := time.Now()
	page := &Page{URL: targetURL}

	var (
		mu       sync.Mutex
		fetchErr error
	)

	// Clone copies settings but not callbacks.
	clone := c.colly.Clone()
	clone.OnRequest(setBrowserHeaders)

	clone.OnResponse(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()

		if metricsVal, ok := c.metricsMap.LoadAndDelete(r.Request.URL.String()); ok {
			metrics := metricsVal.(*PerformanceMetrics)
			if metrics.TTFB > 0 {
				metrics.ContentTransferTime = time.Since(start).Milliseconds() - metrics.TTFB
			}
			page.Performance = *metrics
		}

		page.ResponseTime = time.Since(start).Milliseconds()
		page.StatusCode = r.StatusCode
		page.FinalURL = r.Request.URL.String()
		if r.Headers != nil {
			page.Header = r.Headers.Clone()
		}
		page.Body = r.Body

		if r.StatusCode < 200 || r.StatusCode >= 300 {
			fetchErr = fmt.Errorf("%w: %d", ErrNonSuccessStatus, r.StatusCode)
		}
	})

	clone.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()

		fetchErr = err
		if r != nil {
			page.StatusCode = r.StatusCode
		}
		page.ResponseTime = time.Since(start).Milliseconds()
	})

	done := make(chan error, 1)

	// Visit in a goroutine so the caller's context can abandon the wait
	go func() {
		if err := clone.Visit(targetURL); err != nil {
			done <- err
			return
		}
		clone.Wait()
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn().Err(err).Str("url", targetURL).Msg("Page visit failed")
			return nil, err
		}
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Str("url", targetURL).Msg("Page fetch cancelled due to context")
		return nil, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()

	if fetchErr != nil {
		log.Warn().
			Err(fetchErr).
			Int("status", page.StatusCode).
			Str("url", targetURL).
			Int64("response_time_ms", page.ResponseTime).
			Msg("Page fetch failed")
		return nil, fetchErr
	}

	log.Debug().
		Int("status", page.StatusCode).
		Str("url", targetURL).
		Int("bytes", len(page.Body)).
		Int64("ttfb_ms", page.Performance.TTFB).
		Int64("response_time_ms", page.ResponseTime).
		Msg("Page fetch completed")

	return page, nil
}
