package crawler

import "net/http"

// PerformanceMetrics holds connection timings for a single fetch, in milliseconds.
type PerformanceMetrics struct {
	DNSLookupTime       int64 `json:"dns_lookup_time"`
	TCPConnectionTime   int64 `json:"tcp_connection_time"`
	TLSHandshakeTime    int64 `json:"tls_handshake_time"`
	TTFB                int64 `json:"ttfb"`
	ContentTransferTime int64 `json:"content_transfer_time"`
}

// Page is a fetched HTML document.
type Page struct {
	URL          string             `json:"url"`
	FinalURL     string             `json:"final_url"`
	StatusCode   int                `json:"status_code"`
	Header       http.Header        `json:"-"`
	Body         []byte             `json:"-"`
	ResponseTime int64              `json:"response_time"`
	Performance  PerformanceMetrics `json:"performance"`
}

// Server returns the value of the Server response header.
func (p *Page) Server() string {
	if p == nil || p.Header == nil {
		return ""
	}
	return p.Header.Get("Server")
}
