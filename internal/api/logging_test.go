package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	saved := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = saved })
	return &buf
}

func TestWriteError_LogsRequestContext(t *testing.T) {
	buf := captureLogs(t)

	r := httptest.NewRequest(http.MethodPost, "/v1/export/document", nil)
	r = r.WithContext(context.WithValue(r.Context(), requestIDKey, "req-42"))
	WriteError(httptest.NewRecorder(), r, errors.New("renderer crashed"), http.StatusInternalServerError, ErrCodeRenderer)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "/v1/export/document", entry["path"])
	assert.Equal(t, string(ErrCodeRenderer), entry["code"])
}

func TestWriteErrorMessage_LogsAtWarn(t *testing.T) {
	buf := captureLogs(t)

	InvalidURL(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/analyze", nil), "URL is required")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, http.MethodPost, entry["method"])
	assert.Equal(t, "URL is required", entry["reason"])
}
