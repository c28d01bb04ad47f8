// Package testutil holds fixtures shared by tests and benchmarks.
package testutil

import (
	"errors"
	"time"

	"github.com/Harvey-AU/site-report/internal/report"
)

// Target builds a normalised target for host without going through the
// normaliser.
func Target(host string) report.Target {
	return report.Target{RawInput: host, CanonicalURL: "http://" + host, Host: host}
}

// SampleReport returns a populated report with a failed DNS facet.
func SampleReport() *report.Report {
	stack := make(report.TechStack)
	stack.Add(report.ProgrammingLanguages, "HTML")
	stack.Add(report.ProgrammingLanguages, "PHP")
	stack.Add(report.CMS, "WordPress")
	stack.Add(report.WebServers, "Apache")

	return &report.Report{
		Target: Target("example.com"),
		Whois: report.FacetOf(report.WhoisRecord{
			DomainName:   "example.com",
			Registrar:    "Example Registrar, Inc.",
			CreationDate: "1995-08-14",
			NameServers:  report.OneOrMany{"a.iana-servers.net", "b.iana-servers.net"},
		}, nil),
		TechStack:         report.FacetOf(stack, nil),
		ExistenceEstimate: "around 1996-12-20",
		SEO: report.FacetOf(report.SEOSnapshot{
			Title:           "Example Domain",
			MetaDescription: report.NotFound,
			MetaKeywords:    report.NotFound,
			H1Tags:          []string{"Example Domain"},
		}, nil),
		DNS:         report.FacetOf(report.DNSRecordSet{}, errors.New("resolver offline")),
		Hosting:     report.FacetOf(report.HostingInfo{IPAddress: "93.184.216.34", Country: "United States (US)", ISP: "Edgecast"}, nil),
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}
