package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jptaranto/zone-bridge/internal/api"
	"github.com/jptaranto/zone-bridge/internal/apperrors"
)

var validEventTypes = map[EventType]bool{
	EventZoneDiscovered:  true,
	EventZoneRestored:    true,
	EventZoneRenamed:     true,
	EventZoneMissing:     true,
	EventZoneUnreachable: true,
	EventZoneReachable:   true,
	EventPlaybackChanged: true,
	EventSystemStartup:   true,
}

var validEventLevels = map[string]EventLevel{
	"INFO":  EventLevelInfo,
	"WARN":  EventLevelWarn,
	"ERROR": EventLevelError,
}

// RegisterRoutes wires audit routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/audit/events", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		filters, err := parseQueryFilters(r)
		if err != nil {
			return err
		}

		events, _, hasMore, err := service.QueryEvents(filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query audit events")
		}

		formatted := make([]map[string]any, 0, len(events))
		for i := range events {
			formatted = append(formatted, formatEvent(&events[i]))
		}
		return api.WriteList(w, "/v1/audit/events", formatted, hasMore)
	}))

	router.Method(http.MethodGet, "/v1/audit/events/{eventID}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		eventID := chi.URLParam(r, "eventID")
		event, err := service.GetEvent(eventID)
		if err != nil {
			var notFound *EventNotFoundError
			if errors.As(err, &notFound) {
				return apperrors.NewNotFoundError("Event not found", map[string]any{"event_id": eventID})
			}
			return apperrors.NewInternalError("Failed to get audit event")
		}
		return api.WriteResource(w, http.StatusOK, formatEvent(event))
	}))
}

func parseQueryFilters(r *http.Request) (EventQueryFilters, error) {
	filters := EventQueryFilters{Limit: DefaultQueryLimit}
	query := r.URL.Query()

	if from := query.Get("from"); from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid 'from' datetime format, expected ISO 8601", map[string]any{"from": from})
		}
		filters.From = &parsed
	}
	if to := query.Get("to"); to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid 'to' datetime format, expected ISO 8601", map[string]any{"to": to})
		}
		filters.To = &parsed
	}

	if value := query.Get("type"); value != "" {
		eventType := EventType(value)
		if !validEventTypes[eventType] {
			return filters, apperrors.NewValidationError("invalid event type", map[string]any{"type": value})
		}
		filters.Type = &eventType
	}
	if value := query.Get("level"); value != "" {
		level, ok := validEventLevels[value]
		if !ok {
			return filters, apperrors.NewValidationError("invalid level", map[string]any{
				"level":        value,
				"valid_levels": []string{"INFO", "WARN", "ERROR"},
			})
		}
		filters.Level = &level
	}
	if zoneID := query.Get("zone_id"); zoneID != "" {
		filters.ZoneID = &zoneID
	}

	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{"limit": value})
		}
		filters.Limit = limit
	}
	if value := query.Get("offset"); value != "" {
		offset, err := strconv.Atoi(value)
		if err != nil || offset < 0 {
			return filters, apperrors.NewValidationError("invalid offset, must be >= 0", map[string]any{"offset": value})
		}
		filters.Offset = offset
	}

	return filters, nil
}

func formatEvent(event *AuditEvent) map[string]any {
	result := map[string]any{
		"object":    "audit_event",
		"event_id":  event.EventID,
		"timestamp": api.RFC3339Millis(event.Timestamp),
		"type":      string(event.Type),
		"level":     string(event.Level),
		"message":   event.Message,
	}
	if event.ZoneID != nil {
		result["zone_id"] = *event.ZoneID
	}
	if event.AccessoryID != nil {
		result["accessory_id"] = *event.AccessoryID
	}
	if len(event.Payload) > 0 {
		result["payload"] = event.Payload
	}
	return result
}
