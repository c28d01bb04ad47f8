// Package dns collects the DNS records of a target host.
package dns

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Harvey-AU/site-report/internal/report"
)

// Collector produces the DNS facet.
type Collector struct {
	resolver Resolver
}

// NewCollector creates a DNS collector.
func NewCollector(resolver Resolver) *Collector {
	return &Collector{resolver: resolver}
}

// Collect queries every record type independently. A failed type is reported
// inline and never affects the others. When the name does not exist the
// general error is set alongside the per-type entries.
func (c *Collector) Collect(ctx context.Context, target report.Target) (report.DNSRecordSet, error) {
	set := report.DNSRecordSet{Records: make(map[report.RecordType]report.DNSAnswer, len(report.RecordTypes))}

	var (
		mu       sync.Mutex
		nxdomain bool
		g        errgroup.Group
	)

	for _, rt := range report.RecordTypes {
		g.Go(func() error {
			values, err := c.resolver.Lookup(ctx, target.Host, rt)
			answer := answerFor(rt, values, err)

			mu.Lock()
			defer mu.Unlock()
			set.Records[rt] = answer
			if errors.Is(err, ErrNXDomain) {
				nxdomain = true
			}
			return nil
		})
	}
	_ = g.Wait()

	if nxdomain {
		set.Error = ErrNXDomain.Error()
	}

	failed := 0
	for _, a := range set.Records {
		if a.Failed() {
			failed++
		}
	}
	log.Debug().
		Str("facet", "dns").
		Str("host", target.Host).
		Int("failed_types", failed).
		Bool("nxdomain", nxdomain).
		Msg("DNS lookups completed")

	return set, nil
}

func answerFor(rt report.RecordType, values []string, err error) report.DNSAnswer {
	switch {
	case errors.Is(err, ErrNXDomain):
		return report.DNSAnswer{Values: []string{report.NoMatchingRecord}}
	case err != nil:
		return report.DNSAnswer{Error: fmt.Sprintf("error (%s): %v", rt, err)}
	case len(values) == 0:
		return report.DNSAnswer{Values: []string{report.NoMatchingRecord}}
	default:
		return report.DNSAnswer{Values: values}
	}
}

// FirstA returns the first IPv4 address for host, or an empty string when
// the host has none.
func FirstA(ctx context.Context, resolver Resolver, host string) (string, error) {
	values, err := resolver.Lookup(ctx, host, report.RecordA)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}
