package techdetect

import (
	"strings"

	"github.com/Harvey-AU/site-report/internal/report"
)

// Source is the part of the response a rule inspects.
type Source int

const (
	// SourceMarkup rules match case-sensitively against the page body.
	SourceMarkup Source = iota
	// SourceServer rules match case-insensitively against the Server header.
	SourceServer
)

// Rule maps a set of substring patterns to a technology.
//
// Rules in an exclusive category compete: only the matching rule with the
// lowest Priority is applied. In other categories every matching rule fires.
type Rule struct {
	Category   report.Category
	Technology string
	Patterns   []string
	Source     Source
	Priority   int
}

// exclusiveCategories resolve to at most one technology.
var exclusiveCategories = map[report.Category]bool{
	report.OS: true,
}

// DefaultRules is evaluated in order. Markup patterns list both casings where
// sites commonly use either.
var DefaultRules = []Rule{
	// Programming languages
	{Category: report.ProgrammingLanguages, Technology: "PHP", Patterns: []string{".php", "wordpress", "WordPress", "wp-content"}},
	{Category: report.ProgrammingLanguages, Technology: "ASP.NET", Patterns: []string{".aspx", ".asp", "__VIEWSTATE"}},
	{Category: report.ProgrammingLanguages, Technology: "Java", Patterns: []string{".jsp", "jsessionid", "JSESSIONID"}},
	{Category: report.ProgrammingLanguages, Technology: "Python", Patterns: []string{"django", "Django", "csrfmiddlewaretoken", "Flask"}},
	{Category: report.ProgrammingLanguages, Technology: "Ruby", Patterns: []string{"csrf-param", "rails-ujs"}},

	// JavaScript frameworks
	{Category: report.JavaScriptFrameworks, Technology: "React", Patterns: []string{"react", "React", "ReactDOM", "data-reactroot"}},
	{Category: report.JavaScriptFrameworks, Technology: "Next.js", Patterns: []string{"__NEXT_DATA__", "/_next/"}},
	{Category: report.JavaScriptFrameworks, Technology: "Vue.js", Patterns: []string{"vue", "Vue", "data-v-"}},
	{Category: report.JavaScriptFrameworks, Technology: "Nuxt.js", Patterns: []string{"__NUXT__", "/_nuxt/"}},
	{Category: report.JavaScriptFrameworks, Technology: "Angular", Patterns: []string{"angular", "Angular", "ng-version"}},
	{Category: report.JavaScriptFrameworks, Technology: "jQuery", Patterns: []string{"jquery", "jQuery"}},
	{Category: report.JavaScriptFrameworks, Technology: "Svelte", Patterns: []string{"svelte-", "__svelte"}},

	// CMS
	{Category: report.CMS, Technology: "WordPress", Patterns: []string{"wp-content", "wp-includes", "wordpress", "WordPress"}},
	{Category: report.CMS, Technology: "Joomla", Patterns: []string{"joomla", "Joomla"}},
	{Category: report.CMS, Technology: "Drupal", Patterns: []string{"drupal", "Drupal"}},
	{Category: report.CMS, Technology: "Magento", Patterns: []string{"magento", "Magento", "Mage.Cookies"}},
	{Category: report.CMS, Technology: "Shopify", Patterns: []string{"cdn.shopify.com", "Shopify.theme"}},
	{Category: report.CMS, Technology: "Wix", Patterns: []string{"static.wixstatic.com", "wix.com"}},
	{Category: report.CMS, Technology: "Squarespace", Patterns: []string{"squarespace.com", "Squarespace"}},
	{Category: report.CMS, Technology: "Webflow", Patterns: []string{"data-wf-page", "webflow.com"}},
	{Category: report.CMS, Technology: "Ghost", Patterns: []string{"ghost-", "content=\"Ghost"}},

	// Analytics
	{Category: report.Analytics, Technology: "Google Analytics", Patterns: []string{"google-analytics", "googletagmanager", "gtag(", "GA_TRACKING_ID"}},
	{Category: report.Analytics, Technology: "Facebook Pixel", Patterns: []string{"connect.facebook.net", "fbq("}},
	{Category: report.Analytics, Technology: "Hotjar", Patterns: []string{"static.hotjar.com", "hjSetting"}},
	{Category: report.Analytics, Technology: "Matomo", Patterns: []string{"matomo.js", "piwik.js", "_paq"}},
	{Category: report.Analytics, Technology: "Plausible", Patterns: []string{"plausible.io/js"}},

	// CDN
	{Category: report.CDN, Technology: "Cloudflare", Patterns: []string{"cloudflare", "Cloudflare", "cdnjs.cloudflare.com"}},
	{Category: report.CDN, Technology: "Akamai", Patterns: []string{"akamai", "Akamai"}},
	{Category: report.CDN, Technology: "AWS CloudFront", Patterns: []string{"cloudfront", "CloudFront"}},
	{Category: report.CDN, Technology: "Fastly", Patterns: []string{"fastly", "Fastly"}},
	{Category: report.CDN, Technology: "jsDelivr", Patterns: []string{"cdn.jsdelivr.net"}},

	// Web servers, from the Server header only
	{Category: report.WebServers, Technology: "Apache", Patterns: []string{"apache"}, Source: SourceServer},
	{Category: report.WebServers, Technology: "Nginx", Patterns: []string{"nginx"}, Source: SourceServer},
	{Category: report.WebServers, Technology: "IIS", Patterns: []string{"iis"}, Source: SourceServer},
	{Category: report.WebServers, Technology: "LiteSpeed", Patterns: []string{"litespeed"}, Source: SourceServer},
	{Category: report.WebServers, Technology: "Caddy", Patterns: []string{"caddy"}, Source: SourceServer},
	{Category: report.WebServers, Technology: "Cloudflare", Patterns: []string{"cloudflare"}, Source: SourceServer},

	// Operating system, from the Server header only
	{Category: report.OS, Technology: "Ubuntu", Patterns: []string{"ubuntu"}, Source: SourceServer, Priority: 1},
	{Category: report.OS, Technology: "Debian", Patterns: []string{"debian"}, Source: SourceServer, Priority: 2},
	{Category: report.OS, Technology: "CentOS", Patterns: []string{"centos"}, Source: SourceServer, Priority: 3},
	{Category: report.OS, Technology: "Windows", Patterns: []string{"win32", "win64", "windows"}, Source: SourceServer, Priority: 4},
}

// matches reports whether any pattern occurs in the rule's source text.
func (r Rule) matches(markup, server string) bool {
	for _, p := range r.Patterns {
		switch r.Source {
		case SourceServer:
			if server != "" && strings.Contains(server, strings.ToLower(p)) {
				return true
			}
		default:
			if strings.Contains(markup, p) {
				return true
			}
		}
	}
	return false
}

// Apply evaluates rules against a page and records hits in stack.
func Apply(rules []Rule, stack report.TechStack, markup, serverHeader string) {
	server := strings.ToLower(serverHeader)
	best := make(map[report.Category]Rule)

	for _, rule := range rules {
		if !rule.matches(markup, server) {
			continue
		}
		if exclusiveCategories[rule.Category] {
			if cur, ok := best[rule.Category]; !ok || rule.Priority < cur.Priority {
				best[rule.Category] = rule
			}
			continue
		}
		stack.Add(rule.Category, rule.Technology)
	}

	for _, cat := range report.Categories {
		if rule, ok := best[cat]; ok {
			stack.Add(cat, rule.Technology)
		}
	}
}
