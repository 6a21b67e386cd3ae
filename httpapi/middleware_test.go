package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajiwo/throttler"
)

func TestRequestIDGenerated(t *testing.T) {
	ta := newTestAPI(t)

	rec := ta.do(http.MethodGet, "/health", "")
	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestRequestIDEchoed(t *testing.T) {
	ta := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "trace-42_a")
	rec := httptest.NewRecorder()
	ta.router.ServeHTTP(rec, req)

	assert.Equal(t, "trace-42_a", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDMalformedReplaced(t *testing.T) {
	ta := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "not a valid id!")
	rec := httptest.NewRecorder()
	ta.router.ServeHTTP(rec, req)

	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	assert.NotEqual(t, "not a valid id!", id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestCORSHeaders(t *testing.T) {
	ta := newTestAPI(t)

	rec := ta.do(http.MethodGet, "/health", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSPreflight(t *testing.T) {
	ta := newTestAPI(t)

	rec := ta.do(http.MethodOptions, "/rate-limit/user123/check", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, rec.Body.Len())
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	stub := &stubLimiter{out: throttler.Outcome{
		Allowed:   true,
		Remaining: 9,
		Limit:     10,
		WindowMs:  60000,
	}}
	router := NewRouter(Config{Limiter: stub, Logger: logger, Version: "test"})

	req := httptest.NewRequest(http.MethodPost, "/rate-limit/user123/check", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "request completed", record["msg"])
	assert.Equal(t, "POST", record["method"])
	assert.Equal(t, "/rate-limit/user123/check", record["path"])
	assert.Equal(t, float64(http.StatusOK), record["status"])
	assert.NotEmpty(t, record["request_id"])
	assert.NotZero(t, record["bytes"])
}

func TestRequestLoggingWarnsOnDenial(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	stub := &stubLimiter{out: throttler.Outcome{
		Allowed:      false,
		Remaining:    0,
		Limit:        10,
		WindowMs:     60000,
		RetryAfterMs: 500,
	}}
	router := NewRouter(Config{Limiter: stub, Logger: logger, Version: "test"})

	req := httptest.NewRequest(http.MethodPost, "/rate-limit/user123/check", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "request completed with error", record["msg"])
	assert.Equal(t, float64(http.StatusTooManyRequests), record["status"])
}
