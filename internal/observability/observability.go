// Package observability configures OpenTelemetry tracing, Prometheus metrics
// and the instruments recorded while building reports.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "site-report"

// Config controls observability initialisation.
type Config struct {
	Enabled        bool
	ServiceName    string
	Environment    string
	OTLPEndpoint   string
	OTLPHeaders    map[string]string
	OTLPInsecure   bool
	MetricsAddress string
}

// Providers holds the SDK providers created by Init.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Propagator     propagation.TextMapPropagator
	MetricsHandler http.Handler
	Shutdown       func(ctx context.Context) error
	Config         Config
}

// instruments are swapped as a unit so a re-Init never leaves a mix of old
// and new meters.
type instruments struct {
	tracer            trace.Tracer
	collectorDuration metric.Float64Histogram
	collectorTotal    metric.Int64Counter
	analysisDuration  metric.Float64Histogram
	degradedFacets    metric.Int64Histogram
	documentTotal     metric.Int64Counter
	documentDuration  metric.Float64Histogram
}

var active atomic.Pointer[instruments]

// Init sets up tracing and metrics. It returns nil providers when
// observability is disabled; every helper in this package accepts that.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = instrumentationName
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tracerProvider := newTracerProvider(ctx, cfg, res)
	otel.SetTracerProvider(tracerProvider)

	prop := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	otel.SetTextMapPropagator(prop)

	meterProvider, metricsHandler, err := newMeterProvider(res)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}
	otel.SetMeterProvider(meterProvider)

	inst, err := newInstruments(tracerProvider, meterProvider)
	if err != nil {
		log.Warn().Err(err).Msg("Report instruments unavailable, metrics will be incomplete")
	} else {
		active.Store(inst)
	}

	return &Providers{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		Propagator:     prop,
		MetricsHandler: metricsHandler,
		Shutdown: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return errors.Join(
				wrapShutdown("metric provider", meterProvider.Shutdown(ctx)),
				wrapShutdown("trace provider", tracerProvider.Shutdown(ctx)),
			)
		},
		Config: cfg,
	}, nil
}

func wrapShutdown(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s shutdown: %w", name, err)
}

// newTracerProvider exports spans over OTLP when an endpoint is set. A bad
// exporter configuration keeps tracing local rather than failing startup.
func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.OTLPEndpoint == "" {
		return sdktrace.NewTracerProvider(opts...)
	}

	clientOpts := []otlptracehttp.Option{getOTLPEndpointOption(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
	}
	if len(cfg.OTLPHeaders) > 0 {
		clientOpts = append(clientOpts, otlptracehttp.WithHeaders(cfg.OTLPHeaders))
	}

	exp, err := otlptracehttp.New(ctx, clientOpts...)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", cfg.OTLPEndpoint).Msg("OTLP exporter unavailable, spans stay local")
		return sdktrace.NewTracerProvider(opts...)
	}

	log.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("Exporting spans over OTLP")
	return sdktrace.NewTracerProvider(append(opts, sdktrace.WithBatcher(exp))...)
}

// newMeterProvider backs the OTel meter with a private Prometheus registry
// and returns the handler that serves it.
func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create Prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exporter))
	return mp, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)
	inst := &instruments{tracer: tp.Tracer(instrumentationName + "/collector")}

	var errs []error
	var err error

	inst.collectorDuration, err = meter.Float64Histogram("site.collector.duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("Time taken by a collector to produce its facet"))
	errs = append(errs, err)

	inst.collectorTotal, err = meter.Int64Counter("site.collector.total",
		metric.WithDescription("Collector runs by facet and outcome"))
	errs = append(errs, err)

	inst.analysisDuration, err = meter.Float64Histogram("site.analysis.duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("Wall time of a full report, bounded by the slowest collector"))
	errs = append(errs, err)

	inst.degradedFacets, err = meter.Int64Histogram("site.analysis.failed_facets",
		metric.WithDescription("Facets carrying an error per report"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 4, 5, 6))
	errs = append(errs, err)

	inst.documentTotal, err = meter.Int64Counter("site.export.documents.total",
		metric.WithDescription("PDF documents requested by outcome"))
	errs = append(errs, err)

	inst.documentDuration, err = meter.Float64Histogram("site.export.render.duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("Time taken to render and store a PDF"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return inst, nil
}

func getOTLPEndpointOption(endpoint string) otlptracehttp.Option {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return otlptracehttp.WithEndpointURL(endpoint)
	}
	return otlptracehttp.WithEndpoint(endpoint)
}

// WrapHandler traces inbound API requests other than health probes.
func WrapHandler(handler http.Handler, prov *Providers) http.Handler {
	if prov == nil || prov.TracerProvider == nil {
		return handler
	}

	return otelhttp.NewHandler(handler, "http.server",
		otelhttp.WithTracerProvider(prov.TracerProvider),
		otelhttp.WithPropagators(prov.Propagator),
		otelhttp.WithMeterProvider(prov.MeterProvider),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeName(r.URL.Path)
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	)
}

// routeName collapses download filenames. Facet names are a fixed set and
// stay in the span name.
func routeName(path string) string {
	if strings.HasPrefix(path, "/v1/download/") {
		return "/v1/download/{filename}"
	}
	return path
}

// WrapTransport traces outbound collector requests. A nil provider leaves
// the transport untouched.
func WrapTransport(base http.RoundTripper, prov *Providers) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if prov == nil || prov.TracerProvider == nil {
		return base
	}

	return otelhttp.NewTransport(base,
		otelhttp.WithTracerProvider(prov.TracerProvider),
		otelhttp.WithPropagators(prov.Propagator),
		otelhttp.WithMeterProvider(prov.MeterProvider),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Host
		}),
	)
}

// CollectorSpanInfo names the facet and host of a collector span.
type CollectorSpanInfo struct {
	Facet string
	Host  string
}

// CollectorMetrics describes a finished collector run. Outcome is "ok" or
// the facet error kind.
type CollectorMetrics struct {
	Facet    string
	Outcome  string
	Duration time.Duration
}

// StartCollectorSpan starts a span for one collector run. Before Init it
// falls back to the global tracer, which is a no-op by default.
func StartCollectorSpan(ctx context.Context, info CollectorSpanInfo) (context.Context, trace.Span) {
	var t trace.Tracer
	if inst := active.Load(); inst != nil {
		t = inst.tracer
	} else {
		t = otel.Tracer(instrumentationName + "/collector")
	}

	return t.Start(ctx, "collector."+info.Facet, trace.WithAttributes(
		attribute.String("collector.facet", info.Facet),
		attribute.String("target.host", info.Host),
	))
}

func RecordCollector(ctx context.Context, m CollectorMetrics) {
	inst := active.Load()
	if inst == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("collector.facet", m.Facet),
		attribute.String("collector.outcome", m.Outcome),
	)
	inst.collectorDuration.Record(ctx, millis(m.Duration), attrs)
	inst.collectorTotal.Add(ctx, 1, attrs)
}

// RecordAnalysis records a finished report and how many of its facets failed.
func RecordAnalysis(ctx context.Context, failedFacets int, d time.Duration) {
	inst := active.Load()
	if inst == nil {
		return
	}

	inst.analysisDuration.Record(ctx, millis(d),
		metric.WithAttributes(attribute.Bool("analysis.degraded", failedFacets > 0)))
	inst.degradedFacets.Record(ctx, int64(failedFacets))
}

// RecordDocument records a PDF export. Outcome is "ok", "error" or
// "unavailable"; render time is only recorded when something was attempted.
func RecordDocument(ctx context.Context, outcome string, d time.Duration) {
	inst := active.Load()
	if inst == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("export.outcome", outcome))
	inst.documentTotal.Add(ctx, 1, attrs)
	if d > 0 {
		inst.documentDuration.Record(ctx, millis(d), attrs)
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
