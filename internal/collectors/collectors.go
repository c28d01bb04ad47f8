// Package collectors assembles the six facet collectors from settings.
package collectors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Harvey-AU/site-report/internal/analysis"
	"github.com/Harvey-AU/site-report/internal/apiclient"
	"github.com/Harvey-AU/site-report/internal/crawler"
	"github.com/Harvey-AU/site-report/internal/dns"
	"github.com/Harvey-AU/site-report/internal/existence"
	"github.com/Harvey-AU/site-report/internal/hosting"
	"github.com/Harvey-AU/site-report/internal/remote"
	"github.com/Harvey-AU/site-report/internal/report"
	"github.com/Harvey-AU/site-report/internal/seo"
	"github.com/Harvey-AU/site-report/internal/techdetect"
	"github.com/Harvey-AU/site-report/internal/whois"
)

// Collector modes
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// DNS resolver choices
const (
	ResolverDirect = "direct"
	ResolverSystem = "system"
)

// Settings configures where and how the collectors reach their sources.
type Settings struct {
	Mode      string // local runs collectors in-process, remote delegates to another instance
	RemoteURL string // Base URL of the instance serving /v1/facets in remote mode
	UserAgent string // Sent to the structured services

	FetchTimeout     time.Duration
	WhoisTimeout     time.Duration
	WhoisAPIURL      string
	WhoisAPIKey      string // Structured WHOIS fallback is disabled when empty
	WaybackAPIURL    string
	GeoAPIURL        string
	GeoRatePerMinute int
	DNSResolver      string
	DNSServer        string // Nameserver for the direct resolver, defaults to resolv.conf
	DNSTimeout       time.Duration
	TechFingerprint  bool // Adds wappalyzer fingerprints to the rule table results
}

// DefaultSettings returns local-mode settings pointing at the public services.
func DefaultSettings() Settings {
	return Settings{
		Mode:             ModeLocal,
		UserAgent:        "site-report",
		FetchTimeout:     10 * time.Second,
		WhoisTimeout:     10 * time.Second,
		WhoisAPIURL:      whois.DefaultAPIURL,
		WaybackAPIURL:    existence.DefaultWaybackURL,
		GeoAPIURL:        hosting.DefaultGeoURL,
		GeoRatePerMinute: 30,
		DNSResolver:      ResolverDirect,
		DNSTimeout:       5 * time.Second,
	}
}

// Build creates the collectors for s. wrap decorates every outbound HTTP
// transport and may be nil.
func Build(s Settings, wrap func(http.RoundTripper) http.RoundTripper) (analysis.Collectors, error) {
	if wrap == nil {
		wrap = func(rt http.RoundTripper) http.RoundTripper { return rt }
	}

	switch s.Mode {
	case ModeRemote:
		return buildRemote(s, wrap)
	case ModeLocal, "":
		return buildLocal(s, wrap)
	default:
		return analysis.Collectors{}, fmt.Errorf("unknown collector mode %q", s.Mode)
	}
}

func buildRemote(s Settings, wrap func(http.RoundTripper) http.RoundTripper) (analysis.Collectors, error) {
	if s.RemoteURL == "" {
		return analysis.Collectors{}, errors.New("a remote collector URL is required in remote mode")
	}

	client := apiclient.New("remote-collector", s.RemoteURL,
		apiclient.WithTimeout(2*time.Minute),
		apiclient.WithTransport(wrap(http.DefaultTransport)),
		apiclient.WithUserAgent(s.UserAgent),
	)

	return analysis.Collectors{
		Whois:     remote.NewCollector[report.WhoisRecord](client, analysis.FacetWhois),
		TechStack: remote.NewCollector[report.TechStack](client, analysis.FacetTechStack),
		Existence: remote.NewCollector[string](client, analysis.FacetExistence),
		SEO:       remote.NewCollector[report.SEOSnapshot](client, analysis.FacetSEO),
		DNS:       remote.NewCollector[report.DNSRecordSet](client, analysis.FacetDNS),
		Hosting:   remote.NewCollector[report.HostingInfo](client, analysis.FacetHosting),
	}, nil
}

func buildLocal(s Settings, wrap func(http.RoundTripper) http.RoundTripper) (analysis.Collectors, error) {
	serviceClient := func(name, baseURL string, timeout time.Duration) *apiclient.Client {
		return apiclient.New(name, baseURL,
			apiclient.WithTimeout(timeout),
			apiclient.WithTransport(wrap(http.DefaultTransport)),
			apiclient.WithUserAgent(s.UserAgent),
		)
	}

	var resolver dns.Resolver
	switch s.DNSResolver {
	case ResolverSystem:
		resolver = dns.NewSystemResolver()
	case ResolverDirect, "":
		direct := dns.NewDirectResolver(s.DNSServer, s.DNSTimeout)
		log.Debug().Str("nameserver", direct.Server()).Msg("Using direct DNS resolver")
		resolver = direct
	default:
		return analysis.Collectors{}, fmt.Errorf("unknown DNS resolver %q", s.DNSResolver)
	}

	crawlerConfig := crawler.DefaultConfig()
	if s.FetchTimeout > 0 {
		crawlerConfig.DefaultTimeout = s.FetchTimeout
	}
	fetcher := crawler.New(crawlerConfig, wrap)

	var structured whois.StructuredLookup
	if s.WhoisAPIKey != "" {
		structured = whois.NewAPIClient(serviceClient("whois-api", s.WhoisAPIURL, s.WhoisTimeout), s.WhoisAPIKey)
	}
	whoisCollector := whois.NewCollector(whois.NewNetLookup(s.WhoisTimeout), structured)

	var fingerprinter techdetect.Fingerprinter
	if s.TechFingerprint {
		detector, err := techdetect.NewDetector()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load fingerprint database, using rule table only")
		} else {
			fingerprinter = detector
		}
	}

	geoRate := s.GeoRatePerMinute
	if geoRate <= 0 {
		geoRate = 30
	}
	geo := hosting.NewGeoClient(
		serviceClient("geolocation", s.GeoAPIURL, s.FetchTimeout),
		rate.NewLimiter(rate.Every(time.Minute/time.Duration(geoRate)), 1),
	)

	archive := existence.NewWaybackClient(serviceClient("wayback", s.WaybackAPIURL, s.FetchTimeout))

	return analysis.Collectors{
		Whois:     whoisCollector,
		TechStack: techdetect.NewClassifier(fetcher, fingerprinter),
		Existence: existence.NewEstimator(archive, whoisCollector),
		SEO:       seo.NewExtractor(fetcher),
		DNS:       dns.NewCollector(resolver),
		Hosting:   hosting.NewResolver(resolver, geo),
	}, nil
}
