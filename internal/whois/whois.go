// Package whois collects domain registration data.
//
// Raw WHOIS text is parsed line by line first. When that yields nothing the
// same text goes through a registry-aware parser, and as a last resort a
// structured JSON WHOIS service is queried.
package whois

import (
	"context"
	"time"

	"github.com/likexian/whois"
	"github.com/rs/zerolog/log"

	"github.com/Harvey-AU/site-report/internal/report"
	"github.com/Harvey-AU/site-report/internal/util"
)

// RawLookup returns the unstructured WHOIS response for a domain.
type RawLookup interface {
	Lookup(ctx context.Context, domain string) (string, error)
}

// StructuredLookup returns registration fields from a structured source.
type StructuredLookup interface {
	Lookup(ctx context.Context, domain string) (report.WhoisRecord, error)
}

// NetLookup performs WHOIS queries over the network.
type NetLookup struct {
	client *whois.Client
}

// NewNetLookup creates a network WHOIS lookup with the given timeout.
func NewNetLookup(timeout time.Duration) *NetLookup {
	return &NetLookup{client: whois.NewClient().SetTimeout(timeout)}
}

// Lookup queries the registry (following referrals) for domain.
func (n *NetLookup) Lookup(ctx context.Context, domain string) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		text, err := n.client.Whois(domain)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Collector produces the WHOIS facet.
type Collector struct {
	raw        RawLookup
	structured StructuredLookup
}

// NewCollector creates a WHOIS collector. structured may be nil.
func NewCollector(raw RawLookup, structured StructuredLookup) *Collector {
	return &Collector{raw: raw, structured: structured}
}

// Collect looks up the registrable domain of target.Host.
func (c *Collector) Collect(ctx context.Context, target report.Target) (report.WhoisRecord, error) {
	domain := util.RegistrableDomain(target.Host)
	logger := log.With().Str("facet", "whois").Str("domain", domain).Logger()

	raw, err := c.raw.Lookup(ctx, domain)
	if err != nil {
		logger.Warn().Err(err).Msg("WHOIS lookup failed")
		return report.WhoisRecord{}, report.NewFacetError(report.KindUnreachable, "whois lookup for %s failed: %v", domain, err)
	}

	rec := ParseText(raw)
	if !rec.Empty() {
		return rec, nil
	}

	if parsed, perr := parseStructured(raw); perr == nil && !parsed.Empty() {
		logger.Debug().Msg("WHOIS text parsed by registry-aware parser")
		return parsed, nil
	} else if perr != nil {
		logger.Debug().Err(perr).Msg("Registry-aware WHOIS parse failed")
	}

	if c.structured != nil {
		apiRec, aerr := c.structured.Lookup(ctx, domain)
		if aerr != nil {
			logger.Warn().Err(aerr).Msg("Structured WHOIS lookup failed")
		} else if !apiRec.Empty() {
			logger.Debug().Msg("WHOIS fields taken from structured service")
			return apiRec, nil
		}
	}

	return report.WhoisRecord{}, report.NewFacetError(report.KindUnparsable, "no registration fields found for %s", domain)
}
