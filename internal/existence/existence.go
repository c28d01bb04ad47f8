// Package existence estimates how long a site has been online.
package existence

import (
	"context"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Harvey-AU/site-report/internal/apiclient"
	"github.com/Harvey-AU/site-report/internal/report"
)

// DefaultWaybackURL is the web archive availability endpoint host.
const DefaultWaybackURL = "https://archive.org"

// NoSnapshot is reported when neither the archive nor WHOIS give a date.
const NoSnapshot = "no archived snapshot found"

const waybackLayout = "20060102150405"

// Archive finds the earliest-known snapshot of a URL.
type Archive interface {
	ClosestSnapshot(ctx context.Context, targetURL string) (time.Time, bool, error)
}

// WaybackClient queries the Wayback Machine availability API.
type WaybackClient struct {
	client *apiclient.Client
}

// NewWaybackClient creates an archive client.
func NewWaybackClient(client *apiclient.Client) *WaybackClient {
	return &WaybackClient{client: client}
}

type availability struct {
	ArchivedSnapshots struct {
		Closest *struct {
			Available bool   `json:"available"`
			Timestamp string `json:"timestamp"`
			URL       string `json:"url"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// ClosestSnapshot implements Archive. ok is false when the archive holds no
// usable snapshot.
func (w *WaybackClient) ClosestSnapshot(ctx context.Context, targetURL string) (time.Time, bool, error) {
	var resp availability
	if err := w.client.GetJSON(ctx, "/wayback/available", url.Values{"url": {targetURL}}, &resp); err != nil {
		return time.Time{}, false, err
	}

	closest := resp.ArchivedSnapshots.Closest
	if closest == nil || len(closest.Timestamp) != len(waybackLayout) {
		return time.Time{}, false, nil
	}

	ts, err := time.Parse(waybackLayout, closest.Timestamp)
	if err != nil {
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

// Estimator produces the existence estimate. The result is always a
// descriptive string, never an error.
type Estimator struct {
	archive Archive
	whois   report.Collector[report.WhoisRecord]
}

// NewEstimator creates an estimator that falls back to WHOIS registration data.
func NewEstimator(archive Archive, whois report.Collector[report.WhoisRecord]) *Estimator {
	return &Estimator{archive: archive, whois: whois}
}

// Estimate returns "around YYYY-MM-DD", "registered: <date>" or NoSnapshot.
func (e *Estimator) Estimate(ctx context.Context, target report.Target) string {
	logger := log.With().Str("facet", "existence").Str("host", target.Host).Logger()

	ts, ok, err := e.archive.ClosestSnapshot(ctx, target.CanonicalURL)
	if err != nil {
		logger.Warn().Err(err).Msg("Archive lookup failed, falling back to WHOIS")
	}
	if ok {
		return "around " + ts.Format(time.DateOnly)
	}

	if e.whois != nil {
		rec, werr := e.whois.Collect(ctx, target)
		if werr == nil && rec.CreationDate != "" {
			return "registered: " + rec.CreationDate
		}
		if werr != nil {
			logger.Debug().Err(werr).Msg("WHOIS fallback produced no creation date")
		}
	}

	return NoSnapshot
}

// Collect adapts Estimate to the collector interface. It never returns an error.
func (e *Estimator) Collect(ctx context.Context, target report.Target) (string, error) {
	return e.Estimate(ctx, target), nil
}
