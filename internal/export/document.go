// Package export turns a finished report into a JSON download or a
// printable PDF document.
package export

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Harvey-AU/site-report/internal/report"
	"github.com/Harvey-AU/site-report/internal/util"
)

// WrapWidth is the longest value, in characters, that fits on one row.
const WrapWidth = 60

// Section titles in document order.
const (
	SectionWhois     = "Domain Information (WHOIS)"
	SectionTechStack = "Technology Stack"
	SectionExistence = "Estimated Website Age"
	SectionSEO       = "SEO Information"
	SectionDNS       = "DNS Records"
	SectionHosting   = "Server Information"
)

const noInformation = "No information available"

// Row is one labelled value. A value longer than WrapWidth keeps its wrapped
// form in Lines, drawn as continuation lines under the same label. Rows in a
// list after the first have an empty label.
type Row struct {
	Label     string
	Value     string
	Lines     []string
	Highlight bool
}

// DisplayLines returns the lines to draw for r, at least one.
func (r Row) DisplayLines() []string {
	if len(r.Lines) > 0 {
		return r.Lines
	}
	return []string{r.Value}
}

// Section is a titled group of rows.
type Section struct {
	Title string
	Rows  []Row
}

// Document is the renderer-independent layout of a report.
type Document struct {
	Title    string
	Subtitle []string
	Sections []Section
}

var categoryLabels = map[report.Category]string{
	report.JavaScriptFrameworks: "JavaScript Frameworks",
	report.WebServers:           "Web Servers",
	report.ProgrammingLanguages: "Programming Languages",
	report.CMS:                  "CMS",
	report.Analytics:            "Analytics",
	report.CDN:                  "CDN",
	report.OS:                   "Operating System",
}

// MarshalReport serialises rep in its canonical field order.
func MarshalReport(rep *report.Report) ([]byte, error) {
	return json.MarshalIndent(rep, "", "  ")
}

// Filename returns the attachment name for an export of rep.
func Filename(rep *report.Report, ext string, now time.Time) string {
	return util.ReportFilename(rep.Target.Host, ext, now)
}

// BuildDocument lays out every facet of rep in fixed order.
func BuildDocument(rep *report.Report) Document {
	doc := Document{
		Title: "Website Analysis Report",
		Subtitle: []string{
			"Analysed URL: " + rep.Target.CanonicalURL,
		},
	}
	if !rep.GeneratedAt.IsZero() {
		doc.Subtitle = append(doc.Subtitle, "Generated: "+rep.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	}

	doc.Sections = []Section{
		whoisSection(rep.Whois),
		techSection(rep.TechStack),
		{Title: SectionExistence, Rows: []Row{row("Estimated Start", orPlaceholder(rep.ExistenceEstimate, noInformation), false)}},
		seoSection(rep.SEO),
		dnsSection(rep.DNS),
		hostingSection(rep.Hosting),
	}
	return doc
}

// errorSection renders a failed facet as a single highlighted row.
func errorSection(title string, fe *report.FacetError) Section {
	return Section{Title: title, Rows: []Row{row("Error", fe.Error(), true)}}
}

func emptySection(title string) Section {
	return Section{Title: title, Rows: []Row{row("", noInformation, false)}}
}

func whoisSection(f report.Facet[report.WhoisRecord]) Section {
	if f.Error != nil {
		return errorSection(SectionWhois, f.Error)
	}
	if f.Data == nil {
		return emptySection(SectionWhois)
	}

	w := f.Data
	var out []Row
	out = append(out, row("Domain Name", orPlaceholder(w.DomainName, report.NotAvailable), false))
	out = append(out, row("Registrar", orPlaceholder(w.Registrar, report.NotAvailable), false))
	out = append(out, row("Creation Date", orPlaceholder(w.CreationDate, report.NotAvailable), false))
	out = append(out, row("Expiration Date", orPlaceholder(w.ExpirationDate, report.NotAvailable), false))
	out = append(out, row("Updated Date", orPlaceholder(w.UpdatedDate, report.NotAvailable), false))
	out = append(out, listRows("Status", w.Status, report.NotAvailable)...)
	out = append(out, listRows("Name Servers", w.NameServers, report.NotAvailable)...)
	return Section{Title: SectionWhois, Rows: out}
}

func techSection(f report.Facet[report.TechStack]) Section {
	if f.Error != nil {
		return errorSection(SectionTechStack, f.Error)
	}
	if f.Data == nil || len(*f.Data) == 0 {
		return emptySection(SectionTechStack)
	}

	var out []Row
	for _, cat := range report.Categories {
		techs := (*f.Data)[cat]
		if len(techs) == 0 {
			continue
		}
		out = append(out, row(categoryLabels[cat], strings.Join(techs, ", "), false))
	}
	return Section{Title: SectionTechStack, Rows: out}
}

func seoSection(f report.Facet[report.SEOSnapshot]) Section {
	if f.Error != nil {
		return errorSection(SectionSEO, f.Error)
	}
	if f.Data == nil {
		return emptySection(SectionSEO)
	}

	s := f.Data
	var out []Row
	out = append(out, row("Title", orPlaceholder(s.Title, report.NotFound), false))
	out = append(out, row("Meta Description", orPlaceholder(s.MetaDescription, report.NotFound), false))
	out = append(out, row("Meta Keywords", orPlaceholder(s.MetaKeywords, report.NotFound), false))
	out = append(out, listRows("H1 Tags", s.H1Tags, report.NotFound)...)
	return Section{Title: SectionSEO, Rows: out}
}

func dnsSection(f report.Facet[report.DNSRecordSet]) Section {
	if f.Error != nil {
		return errorSection(SectionDNS, f.Error)
	}
	if f.Data == nil {
		return emptySection(SectionDNS)
	}

	set := f.Data
	var out []Row
	if set.Error != "" {
		out = append(out, row("Error", set.Error, true))
	}
	for _, rt := range report.RecordTypes {
		answer, ok := set.Records[rt]
		if !ok {
			continue
		}
		label := string(rt) + " Records"
		if answer.Failed() {
			out = append(out, row(label, answer.Error, true))
			continue
		}
		out = append(out, listRows(label, answer.Values, report.NoMatchingRecord)...)
	}
	if len(out) == 0 {
		return emptySection(SectionDNS)
	}
	return Section{Title: SectionDNS, Rows: out}
}

func hostingSection(f report.Facet[report.HostingInfo]) Section {
	if f.Error != nil {
		return errorSection(SectionHosting, f.Error)
	}
	if f.Data == nil {
		return emptySection(SectionHosting)
	}

	h := f.Data
	var out []Row
	out = append(out, row("IP Address", orPlaceholder(h.IPAddress, report.NotAvailable), false))
	out = append(out, row("Country", orPlaceholder(h.Country, report.NotAvailable), false))
	out = append(out, row("ISP", orPlaceholder(h.ISP, report.NotAvailable), false))
	return Section{Title: SectionHosting, Rows: out}
}

// listRows puts each value on its own row under a single label.
func listRows(label string, values []string, placeholder string) []Row {
	if len(values) == 0 {
		return []Row{row(label, placeholder, false)}
	}
	var out []Row
	for i, v := range values {
		l := ""
		if i == 0 {
			l = label
		}
		out = append(out, row(l, v, false))
	}
	return out
}

// row wraps value to WrapWidth. Value keeps the whole text; Lines is set only
// when it needed more than one line.
func row(label, value string, highlight bool) Row {
	r := Row{Label: label, Value: strings.Join(strings.Fields(value), " "), Highlight: highlight}
	if lines := WrapText(value, WrapWidth); len(lines) > 1 {
		r.Lines = lines
	}
	return r
}

// WrapText splits s into lines of at most width characters, breaking on
// spaces where possible and hard-splitting longer words. It always returns
// at least one line.
func WrapText(s string, width int) []string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return []string{s}
	}

	var (
		lines []string
		line  []rune
	)
	flush := func() {
		if len(line) > 0 {
			lines = append(lines, string(line))
			line = line[:0]
		}
	}

	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > width {
			flush()
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(line) == 0:
			line = append(line, w...)
		case len(line)+1+len(w) <= width:
			line = append(line, ' ')
			line = append(line, w...)
		default:
			flush()
			line = append(line, w...)
		}
	}
	flush()

	return lines
}

func orPlaceholder(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}
