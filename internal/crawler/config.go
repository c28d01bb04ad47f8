package crawler

import (
	"time"
)

// BrowserUserAgent identifies page fetches as a desktop Chrome browser so that
// sites with trivial bot filtering serve their normal markup.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config holds the configuration for a page fetcher
type Config struct {
	DefaultTimeout time.Duration // Timeout for a single page fetch
	MaxConcurrency int           // Maximum number of concurrent fetches
	MaxBodySize    int           // Response bodies beyond this many bytes are truncated
	UserAgent      string        // User agent string for requests
	SkipSSRFCheck  bool          // Skip SSRF protection (for tests only, never enable in production)
}

// DefaultConfig returns a Config instance with default values
func DefaultConfig() *Config {
	return &Config{
		DefaultTimeout: 10 * time.Second,
		MaxConcurrency: 10,
		MaxBodySize:    5 * 1024 * 1024,
		UserAgent:      BrowserUserAgent,
	}
}
