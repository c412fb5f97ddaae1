package bridge

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jptaranto/zone-bridge/internal/api"
	"github.com/jptaranto/zone-bridge/internal/apperrors"
	"github.com/jptaranto/zone-bridge/internal/provider"
	"github.com/jptaranto/zone-bridge/internal/zones"
)

type playbackRequest struct {
	Target string `json:"target"`
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

// RegisterRoutes wires zone routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/zones", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		views := service.ListZones()
		formatted := make([]map[string]any, 0, len(views))
		for _, view := range views {
			formatted = append(formatted, formatZone(view))
		}
		return api.WriteList(w, "/v1/zones", formatted, false)
	}))

	router.Method(http.MethodPost, "/v1/zones/rescan", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		count, err := service.Rescan(r.Context())
		if err != nil {
			return mapError(err)
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":      "rescan",
			"zones_found": count,
			"provider":    service.ProviderName(),
		})
	}))

	router.Method(http.MethodGet, "/v1/zones/{zoneID}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		zoneID := chi.URLParam(r, "zoneID")
		state, err := service.GetState(r.Context(), zoneID)
		if err != nil {
			return mapError(err)
		}
		zone, err := service.GetZone(zoneID)
		if err != nil {
			return mapError(err)
		}
		return api.WriteResource(w, http.StatusOK, formatZone(ZoneView{Zone: zone, State: state, Busy: service.ZoneBusy(zone.ID)}))
	}))

	router.Method(http.MethodPost, "/v1/zones/{zoneID}/playback", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body playbackRequest
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		target, ok := provider.ParsePlaybackState(strings.ToUpper(strings.TrimSpace(body.Target)))
		if !ok {
			return apperrors.NewValidationError("target must be one of PLAYING, PAUSED, STOPPED", map[string]any{
				"target": body.Target,
			})
		}
		return writeCommandResult(w, service, chi.URLParam(r, "zoneID"), func(id string) (zones.ZoneState, error) {
			return service.SetPlayback(r.Context(), id, target)
		})
	}))

	router.Method(http.MethodPost, "/v1/zones/{zoneID}/volume", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body volumeRequest
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.Volume == nil {
			return apperrors.NewValidationError("volume is required", nil)
		}
		return writeCommandResult(w, service, chi.URLParam(r, "zoneID"), func(id string) (zones.ZoneState, error) {
			return service.SetVolume(r.Context(), id, *body.Volume)
		})
	}))

	router.Method(http.MethodPost, "/v1/zones/{zoneID}/mute", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body muteRequest
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.Muted == nil {
			return apperrors.NewValidationError("muted is required", nil)
		}
		return writeCommandResult(w, service, chi.URLParam(r, "zoneID"), func(id string) (zones.ZoneState, error) {
			return service.SetMute(r.Context(), id, *body.Muted)
		})
	}))
}

func writeCommandResult(w http.ResponseWriter, service *Service, zoneID string, run func(string) (zones.ZoneState, error)) error {
	state, err := run(zoneID)
	if err != nil {
		return mapError(err)
	}
	zone, err := service.GetZone(zoneID)
	if err != nil {
		return mapError(err)
	}
	return api.WriteResource(w, http.StatusOK, formatZone(ZoneView{Zone: zone, State: state, Busy: service.ZoneBusy(zone.ID)}))
}

func formatZone(view ZoneView) map[string]any {
	zone := view.Zone
	return map[string]any{
		"object":        "zone",
		"id":            zone.ID,
		"accessory_id":  zone.AccessoryID,
		"name":          zone.Name,
		"endpoint":      zone.Endpoint,
		"known":         zone.Known,
		"first_seen_at": api.RFC3339Millis(zone.FirstSeenAt),
		"last_seen_at":  api.RFC3339Millis(zone.LastSeenAt),
		"busy":          view.Busy,
		"state":         formatState(view.State),
	}
}

func formatState(state zones.ZoneState) map[string]any {
	return map[string]any{
		"playback":     string(state.Playback),
		"volume":       state.Volume,
		"muted":        state.Muted,
		"stale":        state.Stale,
		"last_updated": api.RFC3339Millis(state.LastUpdated),
	}
}

// mapError converts bridge and provider failures into HTTP errors.
func mapError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var cmdErr *CommandError
	zoneID := ""
	if errors.As(err, &cmdErr) {
		zoneID = cmdErr.ZoneID
	}
	details := map[string]any{}
	if zoneID != "" {
		details["zone_id"] = zoneID
	}

	switch {
	case errors.Is(err, ErrZoneNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodeZoneNotFound, "Zone not found", http.StatusNotFound, nil)
	case errors.Is(err, zones.ErrLockTimeout):
		return apperrors.NewAppError(apperrors.ErrorCodeZoneBusy, "Zone is busy with another command", http.StatusConflict, details)
	case errors.Is(err, ErrUnsupportedCommand):
		return apperrors.NewAppError(apperrors.ErrorCodeCommandUnsupported, err.Error(), http.StatusUnprocessableEntity, details)
	case errors.Is(err, ErrInvalidPlayback):
		return apperrors.NewValidationError(err.Error(), details)
	}

	var transportErr *provider.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Timeout() {
			return apperrors.NewAppError(apperrors.ErrorCodeProviderTimeout, "Provider did not respond in time", http.StatusGatewayTimeout, details)
		}
		return apperrors.NewAppError(apperrors.ErrorCodeProviderUnreachable, "Provider is unreachable", http.StatusServiceUnavailable, details)
	}

	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) {
		details["status_code"] = httpErr.StatusCode
		return apperrors.NewAppError(apperrors.ErrorCodeProviderRejected, "Provider rejected the request", http.StatusBadGateway, details)
	}

	var parseErr *provider.ParseError
	if errors.As(err, &parseErr) {
		return apperrors.NewAppError(apperrors.ErrorCodeProviderBadResponse, "Provider returned an unreadable response", http.StatusBadGateway, details)
	}

	return apperrors.NewInternalError("Internal server error")
}
