package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jptaranto/zone-bridge/internal/apperrors"
)

// ListResponse is the Stripe-style list response for collection endpoints.
// Example: {"object": "list", "data": [...], "has_more": false, "url": "/v1/zones"}
type ListResponse struct {
	Object  string `json:"object"`
	Data    any    `json:"data"`
	HasMore bool   `json:"has_more"`
	URL     string `json:"url"`
}

// ErrorResponse wraps errors in Stripe format.
type ErrorResponse struct {
	Error     apperrors.StripeErrorBody `json:"error"`
	RequestID string                    `json:"request_id,omitempty"`
}

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteError serializes an AppError into the Stripe-style error response.
// Response format: {"error": {"type": "...", "code": "...", "message": "..."}}
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.EnsureAppError(err)
	_ = WriteJSON(w, appErr.StatusCode, ErrorResponse{
		Error:     appErr.StripeErrorBody(),
		RequestID: GetRequestID(r),
	})
}

// WriteList writes a Stripe-style list response.
func WriteList(w http.ResponseWriter, url string, data any, hasMore bool) error {
	return WriteJSON(w, http.StatusOK, ListResponse{
		Object:  "list",
		Data:    data,
		HasMore: hasMore,
		URL:     url,
	})
}

// WriteResource writes a single resource directly. The resource should
// already carry an "object" field.
func WriteResource(w http.ResponseWriter, status int, resource any) error {
	return WriteJSON(w, status, resource)
}

// RFC3339Millis formats t in UTC with millisecond precision.
func RFC3339Millis(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
