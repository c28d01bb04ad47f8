// Package seo extracts on-page metadata from a target's landing page.
package seo

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/Harvey-AU/site-report/internal/crawler"
	"github.com/Harvey-AU/site-report/internal/report"
)

// Fetcher retrieves the page to inspect.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*crawler.Page, error)
}

// Extractor produces the SEO facet.
type Extractor struct {
	fetcher Fetcher
}

// NewExtractor creates an SEO extractor.
func NewExtractor(fetcher Fetcher) *Extractor {
	return &Extractor{fetcher: fetcher}
}

// Collect fetches the target page and extracts its metadata.
func (e *Extractor) Collect(ctx context.Context, target report.Target) (report.SEOSnapshot, error) {
	page, err := e.fetcher.Fetch(ctx, target.CanonicalURL)
	if err != nil {
		return report.SEOSnapshot{}, report.NewFacetError(report.KindUnreachable, "could not fetch %s: %v", target.CanonicalURL, err)
	}

	snap, err := Extract(page.Body)
	if err != nil {
		return report.SEOSnapshot{}, report.NewFacetError(report.KindUnparsable, "could not parse markup: %v", err)
	}

	log.Debug().
		Str("facet", "seo").
		Str("host", target.Host).
		Int("h1_count", len(snap.H1Tags)).
		Msg("SEO extraction completed")

	return snap, nil
}

// Extract reads the title, description and keywords meta tags and every
// level-1 heading from markup. Missing text fields are set to report.NotFound.
func Extract(markup []byte) (report.SEOSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return report.SEOSnapshot{}, err
	}

	snap := report.SEOSnapshot{
		Title:           orNotFound(collapse(doc.Find("title").First().Text())),
		MetaDescription: orNotFound(metaContent(doc, "description")),
		MetaKeywords:    orNotFound(metaContent(doc, "keywords")),
		H1Tags:          []string{},
	}

	doc.Find("h1").Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			snap.H1Tags = append(snap.H1Tags, text)
		}
	})

	return snap, nil
}

// metaContent returns the content of the first meta tag whose name matches
// name case-insensitively.
func metaContent(doc *goquery.Document, name string) string {
	var content string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("name", "")), name) {
			return true
		}
		content = strings.TrimSpace(s.AttrOr("content", ""))
		return false
	})
	return content
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orNotFound(s string) string {
	if s == "" {
		return report.NotFound
	}
	return s
}
