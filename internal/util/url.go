package util

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/Harvey-AU/site-report/internal/report"
)

// ErrEmptyTarget is returned when no site address was supplied.
var ErrEmptyTarget = errors.New("url cannot be empty")

// NormaliseDomain removes http/https prefix, path and www. from a host string
func NormaliseDomain(domain string) string {
	domain = strings.TrimSpace(strings.ToLower(domain))
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "https://")

	if i := strings.IndexAny(domain, "/?#"); i >= 0 {
		domain = domain[:i]
	}

	return strings.TrimPrefix(domain, "www.")
}

// NormaliseTarget turns free-text input into a canonical absolute URL and host.
// Inputs without a scheme are treated as plain http.
func NormaliseTarget(raw string) (report.Target, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return report.Target{}, ErrEmptyTarget
	}

	lower := strings.ToLower(input)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.Contains(input, "://"):
		return report.Target{}, fmt.Errorf("unsupported scheme in %q", input)
	default:
		input = "http://" + input
	}

	u, err := url.Parse(input)
	if err != nil {
		log.Debug().Str("url", input).Err(err).Msg("Invalid URL format")
		return report.Target{}, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)

	host, err := canonicalHost(u.Hostname())
	if err != nil {
		return report.Target{}, err
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	return report.Target{
		RawInput:     raw,
		CanonicalURL: u.String(),
		Host:         host,
	}, nil
}

func canonicalHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", errors.New("url has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	if err := ValidateHost(ascii); err != nil {
		return "", err
	}
	return ascii, nil
}

// ValidateHost checks that host is a syntactically valid DNS name.
func ValidateHost(host string) error {
	if host == "" {
		return errors.New("host cannot be empty")
	}
	if len(host) > 253 {
		return fmt.Errorf("host %q is too long", host)
	}

	for _, part := range strings.Split(host, ".") {
		if part == "" {
			return fmt.Errorf("host %q contains empty segment", host)
		}
		if len(part) > 63 {
			return fmt.Errorf("host segment %q is too long", part)
		}
		for _, c := range part {
			isLower := c >= 'a' && c <= 'z'
			isDigit := c >= '0' && c <= '9'
			if !isLower && !isDigit && c != '-' && c != '_' {
				return fmt.Errorf("host contains invalid character: %c", c)
			}
		}
		if strings.HasPrefix(part, "-") || strings.HasSuffix(part, "-") {
			return errors.New("host segment cannot start or end with hyphen")
		}
	}

	return nil
}

// RegistrableDomain reduces host to the name a registry holds WHOIS data for,
// e.g. "blog.example.co.uk" becomes "example.co.uk". IP literals and hosts
// without a known public suffix are returned unchanged.
func RegistrableDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// ReportFilename builds the download name for an exported report.
func ReportFilename(host, ext string, now time.Time) string {
	name := NormaliseDomain(host)
	name = strings.NewReplacer(":", "-", "[", "", "]", "").Replace(name)
	if name == "" {
		name = "site"
	}
	return fmt.Sprintf("website-analysis-%s-%s.%s", name, now.Format("2006-01-02"), ext)
}
