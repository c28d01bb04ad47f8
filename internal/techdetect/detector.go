// Package techdetect classifies the technology stack of a website from its
// markup and response headers.
package techdetect

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"

	wappalyzer "github.com/projectdiscovery/wappalyzergo"
	"github.com/rs/zerolog/log"

	"github.com/Harvey-AU/site-report/internal/crawler"
	"github.com/Harvey-AU/site-report/internal/report"
)

// Fetcher retrieves the page to classify.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*crawler.Page, error)
}

// Fingerprinter adds technologies found by a secondary detection engine.
type Fingerprinter interface {
	Fingerprint(headers http.Header, body []byte) map[report.Category][]string
}

// Classifier produces the tech stack facet.
type Classifier struct {
	fetcher       Fetcher
	rules         []Rule
	fingerprinter Fingerprinter
}

// NewClassifier creates a classifier using DefaultRules. fingerprinter may be nil.
func NewClassifier(fetcher Fetcher, fingerprinter Fingerprinter) *Classifier {
	return &Classifier{
		fetcher:       fetcher,
		rules:         DefaultRules,
		fingerprinter: fingerprinter,
	}
}

// Collect fetches the target page and classifies it.
func (c *Classifier) Collect(ctx context.Context, target report.Target) (report.TechStack, error) {
	page, err := c.fetcher.Fetch(ctx, target.CanonicalURL)
	if err != nil {
		return nil, report.NewFacetError(report.KindUnreachable, "could not fetch %s: %v", target.CanonicalURL, err)
	}

	stack := c.Classify(page)
	if len(stack) == 0 {
		return nil, report.NewFacetError(report.KindUndetected, "no technologies detected")
	}

	log.Debug().
		Str("facet", "tech_stack").
		Str("host", target.Host).
		Int("category_count", len(stack)).
		Msg("Technology classification completed")

	return stack, nil
}

// Classify applies the rule table, and the fingerprinter if configured, to a page.
func (c *Classifier) Classify(page *crawler.Page) report.TechStack {
	markup := string(page.Body)
	stack := make(report.TechStack)

	stack.Add(report.ProgrammingLanguages, "HTML")
	if strings.Contains(strings.ToLower(markup), "<script") {
		stack.Add(report.ProgrammingLanguages, "JavaScript")
	}

	Apply(c.rules, stack, markup, page.Server())

	if c.fingerprinter != nil {
		found := c.fingerprinter.Fingerprint(page.Header, page.Body)
		for _, cat := range report.Categories {
			techs := found[cat]
			if exclusiveCategories[cat] && len(stack[cat]) > 0 {
				continue
			}
			for _, tech := range techs {
				stack.Add(cat, tech)
				if exclusiveCategories[cat] {
					break
				}
			}
		}
	}

	stack.Prune()
	return stack
}

// Detector fingerprints pages with wappalyzergo.
type Detector struct {
	client *wappalyzer.Wappalyze
	mu     sync.RWMutex
}

// categoryNames maps wappalyzer category IDs to human-readable names
var categoryNames map[int]string
var categoryNamesOnce sync.Once

// wappalyzerCategories maps wappalyzer category names onto report categories.
var wappalyzerCategories = map[string]report.Category{
	"JavaScript frameworks": report.JavaScriptFrameworks,
	"JavaScript libraries":  report.JavaScriptFrameworks,
	"Web servers":           report.WebServers,
	"Programming languages": report.ProgrammingLanguages,
	"CMS":                   report.CMS,
	"Ecommerce":             report.CMS,
	"Analytics":             report.Analytics,
	"CDN":                   report.CDN,
	"Operating systems":     report.OS,
}

// NewDetector creates a new wappalyzer-backed detector
func NewDetector() (*Detector, error) {
	client, err := wappalyzer.New()
	if err != nil {
		return nil, err
	}

	// Initialise category names mapping once
	categoryNamesOnce.Do(func() {
		categoryNames = make(map[int]string)
		for id, cat := range wappalyzer.GetCategoriesMapping() {
			categoryNames[id] = cat.Name
		}
	})

	return &Detector{client: client}, nil
}

// Fingerprint identifies technologies from HTTP headers and body and groups
// them by report category. Technologies in categories outside the report are
// dropped. Names within a category are sorted for stable output.
func (d *Detector) Fingerprint(headers http.Header, body []byte) map[report.Category][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[report.Category][]string)
	fingerprints := d.client.FingerprintWithCats(headers, body)

	for tech, catInfo := range fingerprints {
		for _, catID := range catInfo.Cats {
			cat, ok := wappalyzerCategories[categoryNames[catID]]
			if !ok {
				continue
			}
			name, _, _ := strings.Cut(tech, ":")
			out[cat] = append(out[cat], name)
			break
		}
	}

	for cat := range out {
		slices.Sort(out[cat])
	}

	log.Debug().
		Int("tech_count", len(fingerprints)).
		Msg("Fingerprint detection completed")

	return out
}
