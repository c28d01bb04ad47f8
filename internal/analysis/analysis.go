// Package analysis runs every collector for a target and assembles the report.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/Harvey-AU/site-report/internal/existence"
	"github.com/Harvey-AU/site-report/internal/observability"
	"github.com/Harvey-AU/site-report/internal/report"
)

// Facet names, shared with the facet endpoints.
const (
	FacetWhois     = "whois"
	FacetTechStack = "tech_stack"
	FacetExistence = "existence"
	FacetSEO       = "seo"
	FacetDNS       = "dns"
	FacetHosting   = "hosting"
)

// Collectors holds one collector per report facet.
type Collectors struct {
	Whois     report.Collector[report.WhoisRecord]
	TechStack report.Collector[report.TechStack]
	Existence report.Collector[string]
	SEO       report.Collector[report.SEOSnapshot]
	DNS       report.Collector[report.DNSRecordSet]
	Hosting   report.Collector[report.HostingInfo]
}

// Aggregator fans a target out to every collector and merges the results.
type Aggregator struct {
	collectors Collectors
	now        func() time.Time
}

// NewAggregator creates an aggregator over the given collectors.
func NewAggregator(collectors Collectors) *Aggregator {
	return &Aggregator{collectors: collectors, now: time.Now}
}

// Collectors returns the configured collectors.
func (a *Aggregator) Collectors() Collectors {
	return a.collectors
}

// Analyse runs all collectors concurrently and waits for every one of them.
// A failing collector only affects its own facet. Collectors are not
// cancelled once dispatched, even when ctx is.
func (a *Aggregator) Analyse(ctx context.Context, target report.Target) *report.Report {
	span := sentry.StartSpan(ctx, "analysis.analyse")
	defer span.Finish()
	span.SetTag("host", target.Host)

	runCtx := context.WithoutCancel(span.Context())
	start := time.Now()

	var (
		g         errgroup.Group
		whois     report.Facet[report.WhoisRecord]
		techStack report.Facet[report.TechStack]
		estimate  report.Facet[string]
		seo       report.Facet[report.SEOSnapshot]
		dns       report.Facet[report.DNSRecordSet]
		hosting   report.Facet[report.HostingInfo]
	)

	dispatch(runCtx, &g, FacetWhois, target, a.collectors.Whois, &whois)
	dispatch(runCtx, &g, FacetTechStack, target, a.collectors.TechStack, &techStack)
	dispatch(runCtx, &g, FacetExistence, target, a.collectors.Existence, &estimate)
	dispatch(runCtx, &g, FacetSEO, target, a.collectors.SEO, &seo)
	dispatch(runCtx, &g, FacetDNS, target, a.collectors.DNS, &dns)
	dispatch(runCtx, &g, FacetHosting, target, a.collectors.Hosting, &hosting)

	// Every task returns nil.
	_ = g.Wait()

	rep := &report.Report{
		Target:            target,
		Whois:             whois,
		TechStack:         techStack,
		ExistenceEstimate: existenceText(estimate),
		SEO:               seo,
		DNS:               dns,
		Hosting:           hosting,
		GeneratedAt:       a.now().UTC(),
	}

	failed := FailedFacets(rep)
	elapsed := time.Since(start)
	span.SetData("failed_facets", failed)
	observability.RecordAnalysis(runCtx, len(failed), elapsed)

	log.Info().
		Str("host", target.Host).
		Strs("failed_facets", failed).
		Dur("duration", elapsed).
		Msg("Analysis completed")

	return rep
}

// Run executes a single collector with the same instrumentation and panic
// handling the aggregator applies.
func Run[T any](ctx context.Context, facet string, target report.Target, c report.Collector[T]) report.Facet[T] {
	if c == nil {
		return report.Facet[T]{Error: report.NewFacetError(report.KindInternal, "%s collector not configured", facet)}
	}

	ctx, span := observability.StartCollectorSpan(ctx, observability.CollectorSpanInfo{Facet: facet, Host: target.Host})
	defer span.End()

	start := time.Now()
	value, err := collect(ctx, facet, target, c)
	result := report.FacetOf(value, err)

	outcome := "ok"
	if result.Error != nil {
		outcome = string(result.Error.Kind)
		span.SetStatus(codes.Error, result.Error.Message)
		log.Warn().
			Str("facet", facet).
			Str("host", target.Host).
			Str("kind", outcome).
			Str("error", result.Error.Message).
			Msg("Collector failed")
	}

	observability.RecordCollector(ctx, observability.CollectorMetrics{
		Facet:    facet,
		Outcome:  outcome,
		Duration: time.Since(start),
	})

	return result
}

func collect[T any](ctx context.Context, facet string, target report.Target, c report.Collector[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = report.NewFacetError(report.KindInternal, "%s collector panicked: %v", facet, r)
			sentry.CaptureException(fmt.Errorf("%s collector panicked for %s: %v", facet, target.Host, r))
		}
	}()
	return c.Collect(ctx, target)
}

func dispatch[T any](ctx context.Context, g *errgroup.Group, facet string, target report.Target, c report.Collector[T], out *report.Facet[T]) {
	g.Go(func() error {
		*out = Run(ctx, facet, target, c)
		return nil
	})
}

// existenceText keeps the existence estimate a plain string even when the
// collector itself could not run.
func existenceText(f report.Facet[string]) string {
	if f.Data != nil && *f.Data != "" {
		return *f.Data
	}
	return existence.NoSnapshot
}

// FailedFacets lists the facets of rep that hold an error, in report order.
func FailedFacets(rep *report.Report) []string {
	failed := []string{}
	if rep.Whois.Error != nil {
		failed = append(failed, FacetWhois)
	}
	if rep.TechStack.Error != nil {
		failed = append(failed, FacetTechStack)
	}
	if rep.SEO.Error != nil {
		failed = append(failed, FacetSEO)
	}
	if rep.DNS.Error != nil {
		failed = append(failed, FacetDNS)
	}
	if rep.Hosting.Error != nil {
		failed = append(failed, FacetHosting)
	}
	return failed
}
