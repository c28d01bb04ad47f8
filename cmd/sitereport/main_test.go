package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harvey-AU/site-report/internal/export"
	"github.com/Harvey-AU/site-report/internal/report"
	"github.com/Harvey-AU/site-report/internal/testutil"
)

func facetServer(t *testing.T) *httptest.Server {
	t.Helper()

	responses := map[string]string{
		"whois":      `{"data":{"domain_name":"example.com","registrar":"Example Registrar, Inc.","creation_date":"1995-08-14"}}`,
		"tech_stack": `{"data":{"ProgrammingLanguages":["HTML"],"WebServers":["Nginx"]}}`,
		"existence":  `{"data":"around 1996-12-20"}`,
		"seo":        `{"data":{"title":"Example Domain","meta_description":"not found","meta_keywords":"not found","h1_tags":["Example Domain"]}}`,
		"dns":        `{"error":{"kind":"unreachable","message":"resolver offline"}}`,
		"hosting":    `{"data":{"ip_address":"93.184.216.34","country":"United States (US)","isp":"Edgecast"}}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[strings.TrimPrefix(r.URL.Path, "/v1/facets/")]
		if !ok || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), err
}

func TestAnalyze_RejectsInvalidURL(t *testing.T) {
	_, err := execute(t, "analyze", "ftp://example.com")
	assert.ErrorContains(t, err, "invalid URL")
}

func TestAnalyze_RequiresOneArgument(t *testing.T) {
	_, err := execute(t, "analyze")
	assert.Error(t, err)
}

func TestAnalyze_RemoteJSONToStdout(t *testing.T) {
	server := facetServer(t)

	out, err := execute(t, "analyze", "Example.com", "--remote", server.URL, "--json", "-", "--no-color")
	require.NoError(t, err)

	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))

	assert.Equal(t, "example.com", rep.Target.Host)
	assert.Equal(t, "around 1996-12-20", rep.ExistenceEstimate)
	require.NotNil(t, rep.Whois.Data)
	assert.Equal(t, "Example Registrar, Inc.", rep.Whois.Data.Registrar)
	require.NotNil(t, rep.DNS.Error)
	assert.Equal(t, report.KindUnreachable, rep.DNS.Error.Kind)
}

func TestAnalyze_RemoteSummaryAndFiles(t *testing.T) {
	server := facetServer(t)
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "report.json")
	pdfPath := filepath.Join(dir, "report.pdf")

	out, err := execute(t, "analyze", "example.com", "--remote", server.URL, "--json", jsonPath, "--pdf", pdfPath, "--no-color")
	require.NoError(t, err)

	assert.Contains(t, out, export.SectionWhois)
	assert.Contains(t, out, "Example Registrar, Inc.")
	assert.Contains(t, out, "unreachable: resolver offline")
	assert.Contains(t, out, "Incomplete facets: dns")

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	pdf, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestPrintDocument(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	printDocument(&buf, export.BuildDocument(testutil.SampleReport()))
	out := buf.String()

	assert.Contains(t, out, export.SectionTechStack)
	assert.Contains(t, out, "WordPress")
	assert.Contains(t, out, export.SectionDNS)
	assert.Contains(t, out, "resolver offline")
}

func TestPrintDocument_WrappedValueUnderOneLabel(t *testing.T) {
	color.NoColor = true

	doc := export.Document{Title: "T", Sections: []export.Section{{
		Title: export.SectionSEO,
		Rows:  []export.Row{{Label: "Meta Description", Value: "first second", Lines: []string{"first", "second"}}},
	}}}

	var buf bytes.Buffer
	printDocument(&buf, doc)

	assert.Equal(t, 1, strings.Count(buf.String(), "Meta Description:"))
	assert.Contains(t, buf.String(), "first\n")
	assert.Contains(t, buf.String(), "second\n")
}
