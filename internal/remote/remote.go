// Package remote implements collectors that delegate to the facet endpoints
// of another site-report instance.
package remote

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Harvey-AU/site-report/internal/apiclient"
	"github.com/Harvey-AU/site-report/internal/report"
)

// FacetRequest is the body sent to a facet endpoint.
type FacetRequest struct {
	URL string `json:"url"`
}

// Collector calls POST /v1/facets/<facet> and unwraps the returned facet.
type Collector[T any] struct {
	client *apiclient.Client
	facet  string
}

// NewCollector creates a remote collector for one facet.
func NewCollector[T any](client *apiclient.Client, facet string) *Collector[T] {
	return &Collector[T]{client: client, facet: facet}
}

// Collect implements report.Collector. Transport failures are reported as
// unreachable; a facet error from the remote side is passed through as is.
func (c *Collector[T]) Collect(ctx context.Context, target report.Target) (T, error) {
	var (
		zero T
		out  report.Facet[T]
	)

	err := c.client.PostJSON(ctx, "/v1/facets/"+c.facet, FacetRequest{URL: target.CanonicalURL}, &out)
	if err != nil {
		log.Warn().
			Err(err).
			Str("facet", c.facet).
			Str("service", c.client.Name()).
			Msg("Remote collector request failed")

		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return zero, report.NewFacetError(report.KindInternal, "remote %s rejected request: %s", c.facet, apiErr.Message)
		}
		return zero, report.NewFacetError(report.KindUnreachable, "remote %s collector unavailable: %v", c.facet, err)
	}

	if out.Error != nil {
		return zero, out.Error
	}
	if out.Data == nil {
		return zero, report.NewFacetError(report.KindInternal, "remote %s returned an empty facet", c.facet)
	}
	return *out.Data, nil
}
