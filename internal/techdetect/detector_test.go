package techdetect

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Harvey-AU/site-report/internal/crawler"
	"github.com/Harvey-AU/site-report/internal/mocks"
	"github.com/Harvey-AU/site-report/internal/report"
)

const plainPage = `<!DOCTYPE html><html><head><title>Example Domain</title></head>` +
	`<body><h1>Example Domain</h1><p>This domain is for use in illustrative examples in documents.</p></body></html>`

func page(body, server string) *crawler.Page {
	header := make(http.Header)
	if server != "" {
		header.Set("Server", server)
	}
	return &crawler.Page{URL: "http://example.com", StatusCode: http.StatusOK, Header: header, Body: []byte(body)}
}

func target() report.Target {
	return report.Target{RawInput: "example.com", CanonicalURL: "http://example.com", Host: "example.com"}
}

func TestCollect_PlainPageBehindNginx(t *testing.T) {
	fetcher := &mocks.MockFetcher{}
	fetcher.On("Fetch", mock.Anything, "http://example.com").Return(page(plainPage, "nginx"), nil)

	stack, err := NewClassifier(fetcher, nil).Collect(context.Background(), target())
	require.NoError(t, err)

	assert.Equal(t, report.TechStack{
		report.ProgrammingLanguages: {"HTML"},
		report.WebServers:           {"Nginx"},
	}, stack)
	fetcher.AssertExpectations(t)
}

func TestCollect_FetchFailureIsUnreachable(t *testing.T) {
	fetcher := &mocks.MockFetcher{}
	fetcher.On("Fetch", mock.Anything, "http://example.com").Return(nil, errors.New("non-success status code: 503"))

	_, err := NewClassifier(fetcher, nil).Collect(context.Background(), target())

	var fe *report.FacetError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, report.KindUnreachable, fe.Kind)
}

func TestClassify_WordPressMarkup(t *testing.T) {
	body := `<html><head><link rel="stylesheet" href="/wp-content/themes/x/style.css"></head><body></body></html>`

	stack := NewClassifier(nil, nil).Classify(page(body, ""))

	assert.Contains(t, stack[report.CMS], "WordPress")
	assert.Contains(t, stack[report.ProgrammingLanguages], "PHP")
	assert.NotContains(t, stack, report.WebServers)
}

func TestClassify_ScriptAddsJavaScript(t *testing.T) {
	body := `<html><body><SCRIPT src="https://code.jquery.com/jquery-3.7.1.min.js"></SCRIPT></body></html>`

	stack := NewClassifier(nil, nil).Classify(page(body, ""))

	assert.Equal(t, []string{"HTML", "JavaScript"}, stack[report.ProgrammingLanguages])
	assert.Equal(t, []string{"jQuery"}, stack[report.JavaScriptFrameworks])
}

func TestClassify_MultipleHitsInOneCategory(t *testing.T) {
	body := `<script src="https://www.googletagmanager.com/gtag/js"></script>` +
		`<script src="https://static.hotjar.com/c/hotjar.js"></script>` +
		`<link href="https://cdn.jsdelivr.net/npm/x.css"><img src="https://d1.cloudfront.net/a.png">`

	stack := NewClassifier(nil, nil).Classify(page(body, ""))

	assert.Equal(t, []string{"Google Analytics", "Hotjar"}, stack[report.Analytics])
	assert.Equal(t, []string{"AWS CloudFront", "jsDelivr"}, stack[report.CDN])
}

func TestClassify_ServerHeader(t *testing.T) {
	tests := []struct {
		name    string
		server  string
		servers []string
		os      []string
	}{
		{name: "apache_ubuntu", server: "Apache/2.4.41 (Ubuntu)", servers: []string{"Apache"}, os: []string{"Ubuntu"}},
		{name: "apache_debian", server: "Apache/2.4.38 (Debian)", servers: []string{"Apache"}, os: []string{"Debian"}},
		{name: "nginx_centos", server: "nginx/1.20.1 (CentOS)", servers: []string{"Nginx"}, os: []string{"CentOS"}},
		{name: "apache_win64", server: "Apache/2.4.54 (Win64) OpenSSL/1.1.1p", servers: []string{"Apache"}, os: []string{"Windows"}},
		{name: "iis_has_no_os_token", server: "Microsoft-IIS/10.0", servers: []string{"IIS"}},
		{name: "ubuntu_beats_windows", server: "Apache (Windows) (Ubuntu)", servers: []string{"Apache"}, os: []string{"Ubuntu"}},
		{name: "unknown_server", server: "gws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := NewClassifier(nil, nil).Classify(page(plainPage, tt.server))

			assert.Equal(t, tt.servers, stack[report.WebServers])
			assert.Equal(t, tt.os, stack[report.OS])
		})
	}
}

func TestClassify_ServerHeaderDoesNotMatchMarkup(t *testing.T) {
	stack := NewClassifier(nil, nil).Classify(page(`<p>We love nginx and Ubuntu</p>`, ""))

	assert.NotContains(t, stack, report.WebServers)
	assert.NotContains(t, stack, report.OS)
}

type stubFingerprinter map[report.Category][]string

func (s stubFingerprinter) Fingerprint(http.Header, []byte) map[report.Category][]string {
	return s
}

func TestClassify_MergesFingerprints(t *testing.T) {
	fp := stubFingerprinter{
		report.CMS: {"Shopify"},
		report.OS:  {"FreeBSD"},
	}

	stack := NewClassifier(nil, fp).Classify(page(plainPage, "nginx (Ubuntu)"))

	assert.Equal(t, []string{"Shopify"}, stack[report.CMS])
	assert.Equal(t, []string{"Ubuntu"}, stack[report.OS], "rule table OS wins over fingerprint")
}

func TestApply_EmptyCategoriesDropped(t *testing.T) {
	stack := make(report.TechStack)
	Apply(DefaultRules, stack, "", "")
	assert.Empty(t, stack)
}

func TestDefaultRules_Coverage(t *testing.T) {
	markupRules := 0
	for _, r := range DefaultRules {
		require.NotEmpty(t, r.Patterns, r.Technology)
		assert.True(t, report.ValidCategory(r.Category), r.Technology)
		if r.Source == SourceMarkup {
			markupRules++
		}
	}
	assert.GreaterOrEqual(t, markupRules, 20)
}

func TestNewDetector(t *testing.T) {
	detector, err := NewDetector()
	require.NoError(t, err)
	assert.NotNil(t, detector.client)
}

func TestDetector_EmptyInputs(t *testing.T) {
	detector, err := NewDetector()
	require.NoError(t, err)

	assert.NotNil(t, detector.Fingerprint(nil, nil))
}

func TestDetector_CloudflareHeaders(t *testing.T) {
	detector, err := NewDetector()
	require.NoError(t, err)

	headers := make(http.Header)
	headers.Set("CF-Ray", "1234567890abcdef-SYD")
	headers.Set("CF-Cache-Status", "HIT")
	headers.Set("Server", "cloudflare")

	result := detector.Fingerprint(headers, nil)

	assert.Contains(t, result[report.CDN], "Cloudflare")
}
