package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)

	WriteError(w, r, errors.New("renderer crashed"), http.StatusInternalServerError, ErrCodeRenderer)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	response := decodeError(t, w)
	assert.Equal(t, "RENDERER_ERROR", response.Code)
	assert.Equal(t, "renderer crashed", response.Error)
	assert.Equal(t, http.StatusInternalServerError, response.Status)
}

func TestErrorBodyUsesErrorKey(t *testing.T) {
	w := httptest.NewRecorder()
	BadRequest(w, httptest.NewRequest(http.MethodPost, "/v1/analyze", nil), "URL is required")

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "URL is required", raw["error"])
	assert.NotContains(t, raw, "message")
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter, r *http.Request)
		status int
		code   ErrorCode
	}{
		{
			name:   "bad_request",
			write:  func(w http.ResponseWriter, r *http.Request) { BadRequest(w, r, "bad") },
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
		{
			name:   "not_found",
			write:  func(w http.ResponseWriter, r *http.Request) { NotFound(w, r, "missing") },
			status: http.StatusNotFound,
			code:   ErrCodeNotFound,
		},
		{
			name:   "method_not_allowed",
			write:  func(w http.ResponseWriter, r *http.Request) { MethodNotAllowed(w, r) },
			status: http.StatusMethodNotAllowed,
			code:   ErrCodeMethodNotAllowed,
		},
		{
			name:   "invalid_url",
			write:  func(w http.ResponseWriter, r *http.Request) { InvalidURL(w, r, "Invalid URL: missing host") },
			status: http.StatusBadRequest,
			code:   ErrCodeInvalidURL,
		},
		{
			name:   "missing_report",
			write:  MissingReport,
			status: http.StatusBadRequest,
			code:   ErrCodeMissingReport,
		},
		{
			name:   "unknown_facet",
			write:  func(w http.ResponseWriter, r *http.Request) { UnknownFacet(w, r, "ssl") },
			status: http.StatusNotFound,
			code:   ErrCodeUnknownFacet,
		},
		{
			name:   "document_not_found",
			write:  DocumentNotFound,
			status: http.StatusNotFound,
			code:   ErrCodeDocumentNotFound,
		},
		{
			name:   "internal",
			write:  func(w http.ResponseWriter, r *http.Request) { InternalError(w, r, errors.New("boom")) },
			status: http.StatusInternalServerError,
			code:   ErrCodeInternal,
		},
		{
			name:   "unavailable",
			write:  func(w http.ResponseWriter, r *http.Request) { ServiceUnavailable(w, r, "down") },
			status: http.StatusServiceUnavailable,
			code:   ErrCodeServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, string(tt.code), decodeError(t, w).Code)
		})
	}
}

func TestMethodNotAllowed_SetsAllowHeader(t *testing.T) {
	w := httptest.NewRecorder()
	MethodNotAllowed(w, httptest.NewRequest(http.MethodDelete, "/v1/download/x.pdf", nil), http.MethodGet, http.MethodHead)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))
}

func TestErrorBodyOmittedForHead(t *testing.T) {
	w := httptest.NewRecorder()
	DocumentNotFound(w, httptest.NewRequest(http.MethodHead, "/v1/download/gone.pdf", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Body.Bytes())
}
