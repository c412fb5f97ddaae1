package accessory

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jptaranto/zone-bridge/internal/api"
	"github.com/jptaranto/zone-bridge/internal/apperrors"
)

// RegisterRoutes wires accessory routes to the router.
func RegisterRoutes(router chi.Router, repo *Repository) {
	router.Method(http.MethodGet, "/v1/accessories", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		items, err := repo.List()
		if err != nil {
			return apperrors.NewInternalError("Failed to load accessories")
		}
		formatted := make([]map[string]any, 0, len(items))
		for _, item := range items {
			formatted = append(formatted, formatAccessory(item))
		}
		return api.WriteList(w, "/v1/accessories", formatted, false)
	}))

	router.Method(http.MethodGet, "/v1/accessories/{accessoryID}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		accessoryID := chi.URLParam(r, "accessoryID")
		item, err := repo.Get(accessoryID)
		if err != nil {
			return apperrors.NewInternalError("Failed to load accessory")
		}
		if item == nil {
			return apperrors.NewNotFoundError("accessory not found: "+accessoryID, map[string]any{"accessory_id": accessoryID})
		}
		return api.WriteResource(w, http.StatusOK, formatAccessory(*item))
	}))
}

func formatAccessory(item Accessory) map[string]any {
	return map[string]any{
		"object":        "accessory",
		"accessory_id":  item.AccessoryID,
		"zone_id":       item.ZoneID,
		"provider":      item.Provider,
		"display_name":  item.DisplayName,
		"category":      item.Category,
		"known":         item.Known,
		"first_seen_at": api.RFC3339Millis(item.FirstSeenAt),
		"last_seen_at":  api.RFC3339Millis(item.LastSeenAt),
	}
}
