package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jptaranto/zone-bridge/internal/apperrors"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandler_WritesAppError(t *testing.T) {
	handler := RequestIDMiddleware(Handler(func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NewZoneNotFoundError("kitchen")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/zones/kitchen", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	body := decodeError(t, rec)
	require.Equal(t, "ZONE_NOT_FOUND", body.Error.Code)
	require.Equal(t, apperrors.ErrorTypeInvalidRequest, body.Error.Type)
	require.Equal(t, "kitchen", body.Error.Details["zone_id"])
	require.Equal(t, "req-123", body.RequestID)
}

func TestHandler_PlainErrorIsInternal(t *testing.T) {
	handler := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("boom")
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	require.Equal(t, apperrors.ErrorTypeAPIError, body.Error.Type)
	require.NotContains(t, body.Error.Message, "boom")
}

func TestRequestIDMiddleware_Generates(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	require.Empty(t, GetRequestID(nil))
}

func TestRecovererMiddleware(t *testing.T) {
	handler := RecovererMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Volume *float64 `json:"volume"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"volume": 42}`))
	require.NoError(t, DecodeJSON(req, &dst))
	require.NotNil(t, dst.Volume)
	require.Equal(t, 42.0, *dst.Volume)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := DecodeJSON(req, &dst)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrorCodeValidationError, appErr.Code)
	require.Equal(t, "request body is required", appErr.Message)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"volume": 1, "extra": true}`))
	require.ErrorAs(t, DecodeJSON(req, &dst), &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"volume": "loud"}`))
	require.ErrorAs(t, DecodeJSON(req, &dst), &appErr)
}

func TestWriteList(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteList(rec, "/v1/zones", []string{"a", "b"}, false))

	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "list", body["object"])
	require.Equal(t, "/v1/zones", body["url"])
	require.Equal(t, false, body["has_more"])
	require.Len(t, body["data"], 2)
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	handler := RateLimitMiddleware(0, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestGetLimiter_ReusesPerAddress(t *testing.T) {
	limiter := NewIPRateLimiter(5, 5)
	require.Same(t, limiter.GetLimiter("a"), limiter.GetLimiter("a"))
	require.NotSame(t, limiter.GetLimiter("a"), limiter.GetLimiter("b"))
}

func TestRFC3339Millis(t *testing.T) {
	require.Empty(t, RFC3339Millis(time.Time{}))
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.FixedZone("x", 3600))
	require.Equal(t, "2024-03-01T11:30:45.123Z", RFC3339Millis(ts))
}
