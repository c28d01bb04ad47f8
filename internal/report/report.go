// Package report defines the data model shared by the collectors, the
// aggregator and the exporters.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Target is the canonical form of a user-supplied site address.
type Target struct {
	RawInput     string `json:"raw_input"`
	CanonicalURL string `json:"canonical_url"`
	Host         string `json:"host"`
}

// Collector produces one facet of a report for a target.
type Collector[T any] interface {
	Collect(ctx context.Context, target Target) (T, error)
}

// CollectorFunc adapts a plain function to the Collector interface.
type CollectorFunc[T any] func(ctx context.Context, target Target) (T, error)

// Collect calls f(ctx, target).
func (f CollectorFunc[T]) Collect(ctx context.Context, target Target) (T, error) {
	return f(ctx, target)
}

// ErrorKind classifies a facet failure.
type ErrorKind string

const (
	KindUnreachable ErrorKind = "unreachable"
	KindUnparsable  ErrorKind = "unparsable"
	KindUndetected  ErrorKind = "undetected"
	KindNoIP        ErrorKind = "no_ip"
	KindInternal    ErrorKind = "internal"
)

// FacetError is the structured failure stored in a facet slot.
type FacetError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *FacetError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewFacetError builds a FacetError with a formatted message.
func NewFacetError(kind ErrorKind, format string, args ...any) *FacetError {
	return &FacetError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFacetError converts any error into a FacetError. Errors that are not
// already facet errors are reported as internal.
func AsFacetError(err error) *FacetError {
	if err == nil {
		return nil
	}
	var fe *FacetError
	if errors.As(err, &fe) {
		return fe
	}
	return &FacetError{Kind: KindInternal, Message: err.Error()}
}

// Facet holds either a collected value or the error that prevented it.
type Facet[T any] struct {
	Data  *T          `json:"data,omitempty"`
	Error *FacetError `json:"error,omitempty"`
}

// FacetOf wraps the outcome of a collector call.
func FacetOf[T any](value T, err error) Facet[T] {
	if err != nil {
		return Facet[T]{Error: AsFacetError(err)}
	}
	return Facet[T]{Data: &value}
}

// OK reports whether the facet holds data.
func (f Facet[T]) OK() bool {
	return f.Error == nil && f.Data != nil
}

// Report is the consolidated result for one target.
type Report struct {
	Target            Target              `json:"target"`
	Whois             Facet[WhoisRecord]  `json:"whois"`
	TechStack         Facet[TechStack]    `json:"tech_stack"`
	ExistenceEstimate string              `json:"existence_estimate"`
	SEO               Facet[SEOSnapshot]  `json:"seo"`
	DNS               Facet[DNSRecordSet] `json:"dns"`
	Hosting           Facet[HostingInfo]  `json:"hosting"`
	GeneratedAt       time.Time           `json:"generated_at"`
}

// Placeholder used for SEO fields that are absent from the page.
const NotFound = "not found"

// NotAvailable is used for hosting fields the geolocation service did not supply.
const NotAvailable = "N/A"

// SEOSnapshot holds the on-page metadata of the target.
type SEOSnapshot struct {
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	MetaKeywords    string   `json:"meta_keywords"`
	H1Tags          []string `json:"h1_tags"`
}

// MarshalJSON always emits h1_tags as an array.
func (s SEOSnapshot) MarshalJSON() ([]byte, error) {
	type alias SEOSnapshot
	a := alias(s)
	if a.H1Tags == nil {
		a.H1Tags = []string{}
	}
	return json.Marshal(a)
}

// HostingInfo describes where the target is served from.
type HostingInfo struct {
	IPAddress string `json:"ip_address"`
	Country   string `json:"country"`
	ISP       string `json:"isp"`
}

// WhoisRecord holds the registration fields extracted for a domain.
type WhoisRecord struct {
	DomainName     string    `json:"domain_name,omitempty"`
	Registrar      string    `json:"registrar,omitempty"`
	CreationDate   string    `json:"creation_date,omitempty"`
	ExpirationDate string    `json:"expiration_date,omitempty"`
	UpdatedDate    string    `json:"updated_date,omitempty"`
	Status         OneOrMany `json:"status,omitempty"`
	NameServers    OneOrMany `json:"name_servers,omitempty"`
}

// Empty reports whether no field was extracted.
func (w WhoisRecord) Empty() bool {
	return w.DomainName == "" && w.Registrar == "" && w.CreationDate == "" &&
		w.ExpirationDate == "" && w.UpdatedDate == "" &&
		len(w.Status) == 0 && len(w.NameServers) == 0
}

// OneOrMany is a string list that serialises as a bare string when it holds
// exactly one value.
type OneOrMany []string

func (o OneOrMany) MarshalJSON() ([]byte, error) {
	if len(o) == 1 {
		return json.Marshal(o[0])
	}
	return json.Marshal([]string(o))
}

func (o *OneOrMany) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = OneOrMany{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*o = OneOrMany(list)
	return nil
}

// Add appends v unless it is empty or already present.
func (o *OneOrMany) Add(v string) {
	if v == "" {
		return
	}
	for _, existing := range *o {
		if existing == v {
			return
		}
	}
	*o = append(*o, v)
}
