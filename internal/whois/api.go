package whois

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/Harvey-AU/site-report/internal/apiclient"
	"github.com/Harvey-AU/site-report/internal/report"
)

// DefaultAPIURL is the structured WHOIS service used when raw output is unusable.
const DefaultAPIURL = "https://www.whoisxmlapi.com/whoisserver/WhoisService"

// APIClient queries a WhoisXML-style JSON WHOIS service.
type APIClient struct {
	client *apiclient.Client
	apiKey string
}

// NewAPIClient creates a client for the JSON WHOIS service at baseURL.
func NewAPIClient(client *apiclient.Client, apiKey string) *APIClient {
	return &APIClient{client: client, apiKey: apiKey}
}

type apiResponse struct {
	WhoisRecord *apiRecord `json:"WhoisRecord"`
}

type apiRecord struct {
	DomainName    string          `json:"domainName"`
	RegistrarName string          `json:"registrarName"`
	CreatedDate   string          `json:"createdDate"`
	ExpiresDate   string          `json:"expiresDate"`
	UpdatedDate   string          `json:"updatedDate"`
	Status        json.RawMessage `json:"status"`
	NameServers   *struct {
		HostNames []string `json:"hostNames"`
	} `json:"nameServers"`
	RegistryData *apiRecord `json:"registryData"`
}

// Lookup fetches and maps the structured record for domain.
func (a *APIClient) Lookup(ctx context.Context, domain string) (report.WhoisRecord, error) {
	query := url.Values{
		"domainName":   {domain},
		"outputFormat": {"JSON"},
	}
	if a.apiKey != "" {
		query.Set("apiKey", a.apiKey)
	}

	var resp apiResponse
	if err := a.client.GetJSON(ctx, "", query, &resp); err != nil {
		return report.WhoisRecord{}, err
	}
	if resp.WhoisRecord == nil {
		return report.WhoisRecord{}, nil
	}

	rec := mapRecord(resp.WhoisRecord)
	if rec.Empty() && resp.WhoisRecord.RegistryData != nil {
		rec = mapRecord(resp.WhoisRecord.RegistryData)
	}
	return rec, nil
}

func mapRecord(r *apiRecord) report.WhoisRecord {
	rec := report.WhoisRecord{
		DomainName:     r.DomainName,
		Registrar:      r.RegistrarName,
		CreationDate:   NormaliseDate(r.CreatedDate),
		ExpirationDate: NormaliseDate(r.ExpiresDate),
		UpdatedDate:    NormaliseDate(r.UpdatedDate),
	}

	for _, s := range decodeStatus(r.Status) {
		rec.Status.Add(s)
	}
	if r.NameServers != nil {
		for _, ns := range r.NameServers.HostNames {
			rec.NameServers.Add(strings.TrimSuffix(strings.ToLower(ns), "."))
		}
	}
	return rec
}

// decodeStatus accepts the service's status as a space separated string or a list.
func decodeStatus(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return list
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.Fields(s)
	}
	return nil
}
