package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/Harvey-AU/site-report/internal/analysis"
	"github.com/Harvey-AU/site-report/internal/export"
	"github.com/Harvey-AU/site-report/internal/report"
	"github.com/Harvey-AU/site-report/internal/util"
)

// Version is the current API version (can be set via ldflags at build time)
var Version = "0.1.0"

// maxRequestBody caps request bodies, which may carry a full report.
const maxRequestBody = 5 << 20

// Handler holds dependencies for API handlers
type Handler struct {
	Aggregator    *analysis.Aggregator
	Exporter      *export.Exporter
	CollectorMode string
}

// NewHandler creates a new API handler with dependencies
func NewHandler(aggregator *analysis.Aggregator, exporter *export.Exporter, collectorMode string) *Handler {
	return &Handler{
		Aggregator:    aggregator,
		Exporter:      exporter,
		CollectorMode: collectorMode,
	}
}

// SetupRoutes configures all API routes
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)

	mux.HandleFunc("/v1/analyze", h.Analyze)
	mux.HandleFunc("/v1/facets/{facet}", h.Facet)
	mux.HandleFunc("/v1/export/json", h.ExportJSON)
	mux.HandleFunc("/v1/export/document", h.GenerateDocument)
	mux.HandleFunc("/v1/download/{filename}", h.Download)
}

// HealthCheck handles basic health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r, http.MethodGet)
		return
	}

	WriteHealthy(w, r, "site-report", Version, h.CollectorMode)
}

// AnalyzeRequest is the body of analyze and facet requests.
type AnalyzeRequest struct {
	URL string `json:"url"`
}

// ExportRequest carries a previously produced report.
type ExportRequest struct {
	Report *report.Report `json:"report"`
}

// Analyze runs every collector against the submitted URL and returns the report.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r, http.MethodPost)
		return
	}

	target, ok := h.decodeTarget(w, r)
	if !ok {
		return
	}

	rep := h.Aggregator.Analyse(r.Context(), target)
	WriteJSON(w, r, rep, http.StatusOK)
}

// Facet runs a single collector. Other instances call this in remote
// collector mode.
func (h *Handler) Facet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r, http.MethodPost)
		return
	}

	facet := r.PathValue("facet")
	run, ok := h.facetRunners()[facet]
	if !ok {
		UnknownFacet(w, r, facet)
		return
	}

	target, ok := h.decodeTarget(w, r)
	if !ok {
		return
	}

	WriteJSON(w, r, run(context.WithoutCancel(r.Context()), target), http.StatusOK)
}

func (h *Handler) facetRunners() map[string]func(context.Context, report.Target) any {
	c := h.Aggregator.Collectors()
	return map[string]func(context.Context, report.Target) any{
		analysis.FacetWhois: func(ctx context.Context, t report.Target) any {
			return analysis.Run(ctx, analysis.FacetWhois, t, c.Whois)
		},
		analysis.FacetTechStack: func(ctx context.Context, t report.Target) any {
			return analysis.Run(ctx, analysis.FacetTechStack, t, c.TechStack)
		},
		analysis.FacetExistence: func(ctx context.Context, t report.Target) any {
			return analysis.Run(ctx, analysis.FacetExistence, t, c.Existence)
		},
		analysis.FacetSEO: func(ctx context.Context, t report.Target) any {
			return analysis.Run(ctx, analysis.FacetSEO, t, c.SEO)
		},
		analysis.FacetDNS: func(ctx context.Context, t report.Target) any {
			return analysis.Run(ctx, analysis.FacetDNS, t, c.DNS)
		},
		analysis.FacetHosting: func(ctx context.Context, t report.Target) any {
			return analysis.Run(ctx, analysis.FacetHosting, t, c.Hosting)
		},
	}
}

// decodeTarget reads {url} and normalises it, writing a 400 on failure.
func (h *Handler) decodeTarget(w http.ResponseWriter, r *http.Request) (report.Target, bool) {
	var req AnalyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		BadRequest(w, r, "Invalid request body")
		return report.Target{}, false
	}

	target, err := util.NormaliseTarget(req.URL)
	if err != nil {
		if errors.Is(err, util.ErrEmptyTarget) {
			InvalidURL(w, r, "URL is required")
		} else {
			InvalidURL(w, r, fmt.Sprintf("Invalid URL: %v", err))
		}
		return report.Target{}, false
	}

	logger := loggerWithRequest(r)
	logger.Info().Str("host", target.Host).Msg("Analysis requested")
	return target, true
}

// decodeReport reads {report}, writing a 400 when it is missing.
func (h *Handler) decodeReport(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	var req ExportRequest
	if err := decodeBody(w, r, &req); err != nil {
		BadRequest(w, r, "Invalid request body")
		return nil, false
	}
	if req.Report == nil {
		MissingReport(w, r)
		return nil, false
	}
	return req.Report, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	return json.NewDecoder(r.Body).Decode(v)
}

// ExportJSON returns the submitted report verbatim as a JSON attachment.
func (h *Handler) ExportJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r, http.MethodPost)
		return
	}

	rep, ok := h.decodeReport(w, r)
	if !ok {
		return
	}

	data, filename, err := h.Exporter.JSON(rep)
	if err != nil {
		InternalError(w, r, err)
		return
	}

	WriteAttachment(w, r, data, "application/json", filename)
}

// GenerateDocument renders the submitted report to a transient PDF.
func (h *Handler) GenerateDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r, http.MethodPost)
		return
	}

	rep, ok := h.decodeReport(w, r)
	if !ok {
		return
	}

	doc, err := h.Exporter.GenerateDocument(r.Context(), rep)
	if err != nil {
		if errors.Is(err, export.ErrRendererUnavailable) {
			ServiceUnavailable(w, r, err.Error())
			return
		}
		WriteError(w, r, err, http.StatusInternalServerError, ErrCodeRenderer)
		return
	}

	WriteJSON(w, r, DocumentResponse{
		Success:      true,
		DocumentPath: doc.Name,
		DownloadURL:  "/v1/download/" + doc.Name,
	}, http.StatusOK)
}

// Download streams a generated document as an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		MethodNotAllowed(w, r, http.MethodGet, http.MethodHead)
		return
	}

	doc, err := h.Exporter.Store().Lookup(r.PathValue("filename"))
	switch {
	case errors.Is(err, export.ErrInvalidFilename):
		BadRequest(w, r, "Invalid filename")
		return
	case errors.Is(err, export.ErrDocumentNotFound):
		DocumentNotFound(w, r)
		return
	case err != nil:
		InternalError(w, r, err)
		return
	}

	f, err := os.Open(doc.Path)
	if err != nil {
		DocumentNotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		InternalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", strings.ReplaceAll(doc.AttachmentName, `"`, "")))
	http.ServeContent(w, r, doc.Name, info.ModTime(), f)
}
