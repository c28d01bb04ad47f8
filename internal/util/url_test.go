package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseDomain(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with_https_and_www", input: "https://www.example.com", expected: "example.com"},
		{name: "with_path", input: "http://example.com/about?x=1", expected: "example.com"},
		{name: "uppercase", input: "WWW.Example.COM", expected: "example.com"},
		{name: "subdomain", input: "api.example.com", expected: "api.example.com"},
		{name: "with_port", input: "example.com:8080", expected: "example.com:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormaliseDomain(tt.input))
		})
	}
}

func TestNormaliseTarget(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		canonical string
		host      string
	}{
		{name: "bare_host_gets_http", input: "example.com", canonical: "http://example.com", host: "example.com"},
		{name: "keeps_https", input: "https://example.com", canonical: "https://example.com", host: "example.com"},
		{name: "trims_and_lowercases_host", input: "  https://Example.COM/Path?q=1 ", canonical: "https://example.com/Path?q=1", host: "example.com"},
		{name: "uppercase_scheme", input: "HTTP://example.com", canonical: "http://example.com", host: "example.com"},
		{name: "idn_host", input: "bücher.de", canonical: "http://xn--bcher-kva.de", host: "xn--bcher-kva.de"},
		{name: "ip_with_port", input: "192.0.2.10:8080", canonical: "http://192.0.2.10:8080", host: "192.0.2.10"},
		{name: "trailing_dot", input: "example.com.", canonical: "http://example.com", host: "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := NormaliseTarget(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.input, target.RawInput)
			assert.Equal(t, tt.canonical, target.CanonicalURL)
			assert.Equal(t, tt.host, target.Host)
		})
	}
}

func TestNormaliseTarget_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "whitespace_only", input: "   "},
		{name: "unsupported_scheme", input: "ftp://example.com"},
		{name: "missing_host", input: "http://"},
		{name: "space_in_host", input: "exa mple.com"},
		{name: "leading_hyphen", input: "-bad-.com"},
		{name: "empty_label", input: "example..com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormaliseTarget(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestNormaliseTarget_EmptyIsSentinel(t *testing.T) {
	_, err := NormaliseTarget(" ")
	assert.ErrorIs(t, err, ErrEmptyTarget)
}

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{name: "subdomain", host: "blog.example.co.uk", expected: "example.co.uk"},
		{name: "www", host: "www.example.com", expected: "example.com"},
		{name: "apex", host: "example.org", expected: "example.org"},
		{name: "ip_literal", host: "192.0.2.1", expected: "192.0.2.1"},
		{name: "single_label", host: "localhost", expected: "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RegistrableDomain(tt.host))
		})
	}
}

func TestReportFilename(t *testing.T) {
	now := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, "website-analysis-example.com-2024-05-01.json", ReportFilename("www.example.com", "json", now))
	assert.Equal(t, "website-analysis-example.com-8080-2024-05-01.pdf", ReportFilename("example.com:8080", "pdf", now))
	assert.Equal(t, "website-analysis-site-2024-05-01.json", ReportFilename("", "json", now))
}
