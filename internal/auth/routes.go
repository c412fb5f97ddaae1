package auth

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jptaranto/zone-bridge/internal/api"
	"github.com/jptaranto/zone-bridge/internal/apperrors"
	"github.com/jptaranto/zone-bridge/internal/config"
)

// RegisterRoutes wires auth routes to the router. Without a JWT secret the
// routes are not mounted.
func RegisterRoutes(router chi.Router, store *PairingStore, cfg config.Config) {
	if !cfg.AuthEnabled() {
		return
	}
	issuer := NewIssuer(cfg)

	router.Method(http.MethodPost, "/v1/auth/pair/start", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		requestID := api.GetRequestID(r)
		pairCode, err := store.Create(requestID)
		if err != nil {
			return apperrors.NewInternalError("Failed to generate pairing code")
		}

		log.Printf("[AUTH] pairing code generated, enter it on your device: %s", pairCode)

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":       "pairing_start",
			"pairing_hint": "Enter the pairing code shown in the bridge log on your device",
		})
	}))

	router.Method(http.MethodPost, "/v1/auth/pair/complete", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			PairCode   string `json:"pair_code"`
			DeviceName string `json:"device_name"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.PairCode == "" {
			return apperrors.NewValidationError("pair_code is required", nil)
		}
		if body.DeviceName == "" {
			return apperrors.NewValidationError("device_name is required", nil)
		}

		if !store.Consume(body.PairCode) {
			return apperrors.NewUnauthorizedError("Invalid or expired pairing code")
		}

		tokens, err := issuer.IssuePair(Device{ID: uuid.NewString(), Name: body.DeviceName})
		if err != nil {
			return apperrors.NewInternalError("Failed to generate token pair")
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_pair",
			"access_token":   tokens.AccessToken,
			"refresh_token":  tokens.RefreshToken,
			"expires_in_sec": tokens.ExpiresInSec,
		})
	}))

	router.Method(http.MethodPost, "/v1/auth/refresh", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.RefreshToken == "" {
			return apperrors.NewValidationError("refresh_token is required", nil)
		}

		accessToken, expiresIn, err := issuer.Refresh(body.RefreshToken)
		if err != nil {
			switch err {
			case ErrTokenExpired:
				return apperrors.NewUnauthorizedError("Refresh token has expired")
			case ErrTokenType:
				return apperrors.NewUnauthorizedError("Invalid token: expected refresh token")
			default:
				return apperrors.NewUnauthorizedError("Invalid refresh token")
			}
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_refresh",
			"access_token":   accessToken,
			"expires_in_sec": expiresIn,
		})
	}))
}
