package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every non-2xx response. The message sits
// under "error" so browser front ends can show it directly.
type ErrorResponse struct {
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorCode is a stable machine-readable failure reason.
type ErrorCode string

const (
	ErrCodeBadRequest       ErrorCode = "BAD_REQUEST"
	ErrCodeInvalidURL       ErrorCode = "INVALID_URL"
	ErrCodeMissingReport    ErrorCode = "MISSING_REPORT"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeUnknownFacet     ErrorCode = "UNKNOWN_FACET"
	ErrCodeDocumentNotFound ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"

	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRenderer           ErrorCode = "RENDERER_ERROR"
)

// WriteError logs err and writes it as the response body. 5xx errors are
// also sent to Sentry, tagged with the request ID.
func WriteError(w http.ResponseWriter, r *http.Request, err error, status int, code ErrorCode) {
	logger := loggerWithRequest(r)
	logger.Error().
		Err(err).
		Int("status", status).
		Str("code", string(code)).
		Msg("Request failed")

	if status >= http.StatusInternalServerError {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetTag("request_id", GetRequestID(r))
		hub.Scope().SetTag("error_code", string(code))
		hub.CaptureException(fmt.Errorf("%s %s: %w", r.Method, r.URL.Path, err))
	}

	writeErrorBody(w, r, err.Error(), status, code)
}

// WriteErrorMessage writes a client-facing rejection. These are expected
// outcomes so they log at warn and are not reported to Sentry.
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, message string, status int, code ErrorCode) {
	logger := loggerWithRequest(r)
	logger.Warn().
		Int("status", status).
		Str("code", string(code)).
		Str("reason", message).
		Msg("Request rejected")

	writeErrorBody(w, r, message, status, code)
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, message string, status int, code ErrorCode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}

	body := ErrorResponse{
		Status:    status,
		Error:     message,
		Code:      string(code),
		RequestID: GetRequestID(r),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Int("status", status).Msg("Failed to encode error body")
	}
}

// BadRequest writes a 400 for a malformed request body.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, message, http.StatusBadRequest, ErrCodeBadRequest)
}

// InvalidURL writes a 400 for a target that could not be normalised.
func InvalidURL(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, message, http.StatusBadRequest, ErrCodeInvalidURL)
}

// MissingReport writes a 400 for an export request without report data.
func MissingReport(w http.ResponseWriter, r *http.Request) {
	WriteErrorMessage(w, r, "Report data is required", http.StatusBadRequest, ErrCodeMissingReport)
}

func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, message, http.StatusNotFound, ErrCodeNotFound)
}

// UnknownFacet writes a 404 naming the facet that was asked for.
func UnknownFacet(w http.ResponseWriter, r *http.Request, facet string) {
	WriteErrorMessage(w, r, fmt.Sprintf("unknown facet %q", facet), http.StatusNotFound, ErrCodeUnknownFacet)
}

// DocumentNotFound writes a 404 for a download that has expired or never existed.
func DocumentNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorMessage(w, r, "Document not found", http.StatusNotFound, ErrCodeDocumentNotFound)
}

// MethodNotAllowed writes a 405 and advertises the accepted methods.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	WriteErrorMessage(w, r, "Method not allowed", http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed)
}

func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, r, err, http.StatusInternalServerError, ErrCodeInternal)
}

// ServiceUnavailable writes a 503, used when a dependency such as the PDF
// renderer cannot be reached.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, message, http.StatusServiceUnavailable, ErrCodeServiceUnavailable)
}
