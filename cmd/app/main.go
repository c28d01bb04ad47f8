package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Harvey-AU/site-report/internal/analysis"
	"github.com/Harvey-AU/site-report/internal/api"
	"github.com/Harvey-AU/site-report/internal/collectors"
	"github.com/Harvey-AU/site-report/internal/export"
	"github.com/Harvey-AU/site-report/internal/observability"
)

// Config is read once from the environment at startup.
type Config struct {
	Port                 string
	Env                  string // development or production
	SentryDSN            string
	LogLevel             string
	ObservabilityEnabled bool
	MetricsAddr          string // e.g. ":9464"
	OTLPEndpoint         string
	OTLPHeaders          string // k=v,k=v
	OTLPInsecure         bool

	CollectorMode      string // local runs collectors in-process, remote delegates to another instance
	RemoteCollectorURL string // Base URL of the instance serving /v1/facets in remote mode

	FetchTimeout     time.Duration
	WhoisTimeout     time.Duration
	WhoisAPIURL      string
	WhoisAPIKey      string // Structured WHOIS fallback is disabled when empty
	WaybackAPIURL    string
	GeoAPIURL        string
	GeoRatePerMinute int
	DNSResolver      string // direct or system
	DNSServer        string // Nameserver for the direct resolver, defaults to resolv.conf
	DNSTimeout       time.Duration
	TechFingerprint  bool // Adds wappalyzer fingerprints to the rule table results

	OutputDir   string        // Transient directory for generated documents
	DocumentTTL time.Duration // How long generated documents stay downloadable
}

func loadConfig() *Config {
	defaults := collectors.DefaultSettings()

	return &Config{
		Port:                 getEnvWithDefault("PORT", "8080"),
		Env:                  getEnvWithDefault("APP_ENV", "development"),
		SentryDSN:            os.Getenv("SENTRY_DSN"),
		LogLevel:             getEnvWithDefault("LOG_LEVEL", "info"),
		ObservabilityEnabled: getEnvWithDefault("OBSERVABILITY_ENABLED", "true") == "true",
		MetricsAddr:          getEnvWithDefault("METRICS_ADDR", ":9464"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPHeaders:          os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		OTLPInsecure:         getEnvWithDefault("OTEL_EXPORTER_OTLP_INSECURE", "false") == "true",

		CollectorMode:      strings.ToLower(getEnvWithDefault("COLLECTOR_MODE", defaults.Mode)),
		RemoteCollectorURL: os.Getenv("REMOTE_COLLECTOR_URL"),

		FetchTimeout:     getEnvDuration("FETCH_TIMEOUT", defaults.FetchTimeout),
		WhoisTimeout:     getEnvDuration("WHOIS_TIMEOUT", defaults.WhoisTimeout),
		WhoisAPIURL:      getEnvWithDefault("WHOIS_API_URL", defaults.WhoisAPIURL),
		WhoisAPIKey:      os.Getenv("WHOIS_API_KEY"),
		WaybackAPIURL:    getEnvWithDefault("WAYBACK_API_URL", defaults.WaybackAPIURL),
		GeoAPIURL:        getEnvWithDefault("GEO_API_URL", defaults.GeoAPIURL),
		GeoRatePerMinute: getEnvInt("GEO_RATE_PER_MINUTE", defaults.GeoRatePerMinute),
		DNSResolver:      strings.ToLower(getEnvWithDefault("DNS_RESOLVER", defaults.DNSResolver)),
		DNSServer:        os.Getenv("DNS_SERVER"),
		DNSTimeout:       getEnvDuration("DNS_TIMEOUT", defaults.DNSTimeout),
		TechFingerprint:  getEnvWithDefault("TECH_FINGERPRINT", "false") == "true",

		OutputDir:   getEnvWithDefault("OUTPUT_DIR", filepath.Join(os.TempDir(), "site-report")),
		DocumentTTL: getEnvDuration("DOCUMENT_TTL", time.Hour),
	}
}

func main() {
	_ = godotenv.Load(".env.local", ".env")

	config := loadConfig()
	setupLogging(config)

	flush := initSentry(config)
	defer flush()

	if err := run(config); err != nil {
		sentry.CaptureException(err)
		flush()
		log.Fatal().Err(err).Msg("site-report exited")
	}
	log.Info().Msg("Server stopped")
}

// run serves the API until SIGINT or SIGTERM.
func run(config *Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, stopTelemetry := startTelemetry(ctx, config)
	defer stopTelemetry()

	handler, closeStore, err := buildHandler(config, providers)
	if err != nil {
		return err
	}
	defer closeStore()

	server := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("port", config.Port).
		Str("collector_mode", config.CollectorMode).
		Str("dns_resolver", config.DNSResolver).
		Str("output_dir", config.OutputDir).
		Msg("Starting server")

	return serve(ctx, server, shutdownTimeout)
}

// initSentry returns the flush to run on exit. Without a DSN it is a no-op.
func initSentry(config *Config) func() {
	if config.SentryDSN == "" {
		log.Warn().Msg("SENTRY_DSN not set, errors will only be logged")
		return func() {}
	}

	sampleRate := 1.0
	if config.Env == "production" {
		sampleRate = 0.1
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              config.SentryDSN,
		Environment:      config.Env,
		Release:          "site-report@" + api.Version,
		TracesSampleRate: sampleRate,
		AttachStacktrace: true,
		Debug:            config.Env == "development",
	})
	if err != nil {
		log.Warn().Err(err).Msg("Sentry disabled, client failed to initialise")
		return func() {}
	}

	log.Info().Str("environment", config.Env).Float64("traces_sample_rate", sampleRate).Msg("Sentry enabled")
	return func() { sentry.Flush(2 * time.Second) }
}

// startTelemetry sets up tracing and metrics when enabled and starts the
// metrics listener. The returned func flushes and stops both.
func startTelemetry(ctx context.Context, config *Config) (*observability.Providers, func()) {
	if !config.ObservabilityEnabled {
		return nil, func() {}
	}

	providers, err := observability.Init(ctx, observability.Config{
		Enabled:        true,
		ServiceName:    "site-report",
		Environment:    config.Env,
		OTLPEndpoint:   strings.TrimSpace(config.OTLPEndpoint),
		OTLPHeaders:    parseOTLPHeaders(config.OTLPHeaders),
		OTLPInsecure:   config.OTLPInsecure,
		MetricsAddress: config.MetricsAddr,
	})
	if err != nil || providers == nil {
		log.Warn().Err(err).Msg("Telemetry disabled, providers failed to initialise")
		return nil, func() {}
	}

	var metricsSrv *http.Server
	if providers.MetricsHandler != nil && config.MetricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              config.MetricsAddr,
			Handler:           providers.MetricsHandler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", config.MetricsAddr).Msg("Serving /metrics")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				sentry.CaptureException(err)
				log.Error().Err(err).Str("addr", config.MetricsAddr).Msg("Metrics listener stopped")
			}
		}()
	}

	return providers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("Metrics listener did not stop cleanly")
			}
		}
		if err := providers.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Telemetry flush incomplete")
		}
	}
}

// buildHandler wires collectors, the document store and the API behind the
// middleware chain. The returned func stops the store sweeper.
func buildHandler(config *Config, providers *observability.Providers) (http.Handler, func(), error) {
	wrap := func(rt http.RoundTripper) http.RoundTripper {
		return observability.WrapTransport(rt, providers)
	}

	facetCollectors, err := collectors.Build(config.collectorSettings(), wrap)
	if err != nil {
		return nil, nil, fmt.Errorf("configure collectors: %w", err)
	}

	store, err := export.NewStore(config.OutputDir, config.DocumentTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare output directory %s: %w", config.OutputDir, err)
	}
	stopSweep := make(chan struct{})
	go store.Run(time.Minute, stopSweep)

	apiHandler := api.NewHandler(
		analysis.NewAggregator(facetCollectors),
		export.NewExporter(export.NewPDFRenderer(), store),
		config.CollectorMode,
	)

	mux := http.NewServeMux()
	apiHandler.SetupRoutes(mux)

	// Innermost first; CORS answers preflights before anything else runs.
	var handler http.Handler = mux
	handler = api.LoggingMiddleware(handler)
	handler = api.RequestIDMiddleware(handler)
	handler = api.SecurityHeadersMiddleware(handler)
	handler = api.CrossOriginProtectionMiddleware(handler)
	handler = api.CORSMiddleware(handler)
	handler = observability.WrapHandler(handler, providers)

	return handler, func() { close(stopSweep) }, nil
}

// shutdownTimeout covers an in-flight analysis waiting on its slowest collector.
const shutdownTimeout = 60 * time.Second

// serve runs server until ctx is cancelled, then drains it.
func serve(ctx context.Context, server *http.Server, drain time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", server.Addr, err)
	case <-ctx.Done():
	}

	log.Info().Dur("drain", drain).Msg("Signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// collectorSettings maps the environment configuration onto collector settings.
func (c *Config) collectorSettings() collectors.Settings {
	return collectors.Settings{
		Mode:             c.CollectorMode,
		RemoteURL:        c.RemoteCollectorURL,
		UserAgent:        "site-report/" + api.Version,
		FetchTimeout:     c.FetchTimeout,
		WhoisTimeout:     c.WhoisTimeout,
		WhoisAPIURL:      c.WhoisAPIURL,
		WhoisAPIKey:      c.WhoisAPIKey,
		WaybackAPIURL:    c.WaybackAPIURL,
		GeoAPIURL:        c.GeoAPIURL,
		GeoRatePerMinute: c.GeoRatePerMinute,
		DNSResolver:      c.DNSResolver,
		DNSServer:        c.DNSServer,
		DNSTimeout:       c.DNSTimeout,
		TechFingerprint:  c.TechFingerprint,
	}
}

// getEnvWithDefault treats an empty variable as unset.
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt falls back to defaultValue, with a warning, when the value is not an integer.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Int("default", defaultValue).
			Msg("Ignoring non-integer environment value")
		return defaultValue
	}

	return result
}

// getEnvDuration accepts Go duration strings ("15s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}

	log.Warn().
		Str("key", key).
		Str("value", value).
		Dur("default", defaultValue).
		Msg("Ignoring unparsable duration")
	return defaultValue
}

func parseOTLPHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return headers
	}

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}

	return headers
}

// setupLogging writes JSON to stdout, or coloured console output in
// development. Unknown levels fall back to warn.
func setupLogging(config *Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.Env == "development" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
		return
	}

	log.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "site-report").
		Str("version", api.Version).
		Str("collector_mode", config.CollectorMode).
		Logger()
}
