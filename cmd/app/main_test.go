package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harvey-AU/site-report/internal/api"
	"github.com/Harvey-AU/site-report/internal/collectors"
	"github.com/Harvey-AU/site-report/internal/existence"
	"github.com/Harvey-AU/site-report/internal/hosting"
	"github.com/Harvey-AU/site-report/internal/whois"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "COLLECTOR_MODE", "DNS_RESOLVER", "WHOIS_API_URL", "GEO_API_URL", "WAYBACK_API_URL", "FETCH_TIMEOUT"} {
		t.Setenv(key, "")
	}

	config := loadConfig()

	assert.Equal(t, "8080", config.Port)
	assert.Equal(t, collectors.ModeLocal, config.CollectorMode)
	assert.Equal(t, "direct", config.DNSResolver)
	assert.Equal(t, whois.DefaultAPIURL, config.WhoisAPIURL)
	assert.Equal(t, hosting.DefaultGeoURL, config.GeoAPIURL)
	assert.Equal(t, existence.DefaultWaybackURL, config.WaybackAPIURL)
	assert.Equal(t, 10*time.Second, config.FetchTimeout)
	assert.False(t, config.TechFingerprint)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("COLLECTOR_MODE", "REMOTE")
	t.Setenv("REMOTE_COLLECTOR_URL", "http://collector.internal:8080")
	t.Setenv("DOCUMENT_TTL", "15m")
	t.Setenv("DNS_TIMEOUT", "3")
	t.Setenv("TECH_FINGERPRINT", "true")

	config := loadConfig()

	assert.Equal(t, collectors.ModeRemote, config.CollectorMode)
	assert.Equal(t, "http://collector.internal:8080", config.RemoteCollectorURL)
	assert.Equal(t, 15*time.Minute, config.DocumentTTL)
	assert.Equal(t, 3*time.Second, config.DNSTimeout)
	assert.True(t, config.TechFingerprint)
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", " 42 ")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 7))

	t.Setenv("TEST_INT", "forty-two")
	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "unset", value: "", want: time.Minute},
		{name: "duration_string", value: "90s", want: 90 * time.Second},
		{name: "bare_seconds", value: "20", want: 20 * time.Second},
		{name: "negative", value: "-5s", want: time.Minute},
		{name: "garbage", value: "soon", want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getEnvDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestParseOTLPHeaders(t *testing.T) {
	headers := parseOTLPHeaders(" Authorization=Bearer abc , x-team = reports ,broken, =empty")

	assert.Equal(t, map[string]string{
		"Authorization": "Bearer abc",
		"x-team":        "reports",
	}, headers)
	assert.Empty(t, parseOTLPHeaders("   "))
}

func TestCollectorSettings(t *testing.T) {
	t.Setenv("WHOIS_API_KEY", "secret")
	t.Setenv("GEO_RATE_PER_MINUTE", "12")
	t.Setenv("DNS_RESOLVER", "System")

	settings := loadConfig().collectorSettings()

	assert.Equal(t, "secret", settings.WhoisAPIKey)
	assert.Equal(t, 12, settings.GeoRatePerMinute)
	assert.Equal(t, collectors.ResolverSystem, settings.DNSResolver)
	assert.Equal(t, "site-report/"+api.Version, settings.UserAgent)

	built, err := collectors.Build(settings, nil)
	require.NoError(t, err)
	assert.NotNil(t, built.Whois)
}

func TestBuildHandler_ServesHealthThroughMiddleware(t *testing.T) {
	config := &Config{
		CollectorMode:      collectors.ModeRemote,
		RemoteCollectorURL: "http://collector.invalid",
		FetchTimeout:       time.Second,
		OutputDir:          t.TempDir(),
		DocumentTTL:        time.Minute,
	}

	handler, closeStore, err := buildHandler(config, nil)
	require.NoError(t, err)
	t.Cleanup(closeStore)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var health api.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, collectors.ModeRemote, health.Collector)
}

func TestBuildHandler_RejectsBadCollectorConfig(t *testing.T) {
	_, _, err := buildHandler(&Config{CollectorMode: collectors.ModeRemote, OutputDir: t.TempDir()}, nil)
	assert.ErrorContains(t, err, "configure collectors")
}

func TestServe_DrainsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, server, time.Second) }()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}

func TestStartTelemetry_DisabledIsNoop(t *testing.T) {
	providers, stop := startTelemetry(context.Background(), &Config{ObservabilityEnabled: false})
	assert.Nil(t, providers)
	assert.NotPanics(t, stop)
}

func TestInitSentry_WithoutDSN(t *testing.T) {
	flush := initSentry(&Config{})
	assert.NotPanics(t, flush)
}
