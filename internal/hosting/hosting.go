// Package hosting resolves where a target is served from.
package hosting

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Harvey-AU/site-report/internal/apiclient"
	"github.com/Harvey-AU/site-report/internal/dns"
	"github.com/Harvey-AU/site-report/internal/report"
)

// DefaultGeoURL is the ipapi.co compatible geolocation service.
const DefaultGeoURL = "https://ipapi.co"

// GeoInfo is the subset of the geolocation response used in the report.
type GeoInfo struct {
	CountryName string `json:"country_name"`
	CountryCode string `json:"country_code"`
	Org         string `json:"org"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

// Geolocator looks up an IP address.
type Geolocator interface {
	Locate(ctx context.Context, ip string) (GeoInfo, error)
}

// GeoClient queries an ipapi.co style service, paced by a client-side limiter.
type GeoClient struct {
	client  *apiclient.Client
	limiter *rate.Limiter
}

// NewGeoClient creates a geolocation client. A nil limiter disables pacing.
func NewGeoClient(client *apiclient.Client, limiter *rate.Limiter) *GeoClient {
	return &GeoClient{client: client, limiter: limiter}
}

// Locate implements Geolocator.
func (g *GeoClient) Locate(ctx context.Context, ip string) (GeoInfo, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return GeoInfo{}, fmt.Errorf("geolocation rate limit wait: %w", err)
		}
	}

	var info GeoInfo
	if err := g.client.GetJSON(ctx, "/"+url.PathEscape(ip)+"/json/", nil, &info); err != nil {
		return GeoInfo{}, err
	}
	if info.Error {
		return GeoInfo{}, fmt.Errorf("geolocation service: %s", info.Reason)
	}
	return info, nil
}

// Resolver produces the hosting facet.
type Resolver struct {
	dns dns.Resolver
	geo Geolocator
}

// NewResolver creates a hosting resolver.
func NewResolver(resolver dns.Resolver, geo Geolocator) *Resolver {
	return &Resolver{dns: resolver, geo: geo}
}

// Collect resolves the first A record and geolocates it. A geolocation
// failure still returns the address with placeholder fields.
func (r *Resolver) Collect(ctx context.Context, target report.Target) (report.HostingInfo, error) {
	ip, err := r.firstIP(ctx, target.Host)
	if err != nil {
		return report.HostingInfo{}, report.NewFacetError(report.KindNoIP, "could not resolve %s: %v", target.Host, err)
	}
	if ip == "" {
		return report.HostingInfo{}, report.NewFacetError(report.KindNoIP, "no IPv4 address for %s", target.Host)
	}

	info := report.HostingInfo{
		IPAddress: ip,
		Country:   report.NotAvailable,
		ISP:       report.NotAvailable,
	}

	geo, err := r.geo.Locate(ctx, ip)
	if err != nil {
		log.Warn().Err(err).Str("facet", "hosting").Str("ip", ip).Msg("Geolocation lookup failed")
		return info, nil
	}

	info.Country = formatCountry(geo.CountryName, geo.CountryCode)
	if org := strings.TrimSpace(geo.Org); org != "" {
		info.ISP = org
	}
	return info, nil
}

func (r *Resolver) firstIP(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() != nil {
			return ip.String(), nil
		}
		return "", nil
	}
	return dns.FirstA(ctx, r.dns, host)
}

func formatCountry(name, code string) string {
	name = strings.TrimSpace(name)
	code = strings.TrimSpace(code)
	switch {
	case name != "" && code != "":
		return fmt.Sprintf("%s (%s)", name, code)
	case name != "":
		return name
	case code != "":
		return code
	default:
		return report.NotAvailable
	}
}
