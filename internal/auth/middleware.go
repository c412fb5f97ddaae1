package auth

import (
	"net/http"
	"strings"

	"github.com/jptaranto/zone-bridge/internal/api"
	"github.com/jptaranto/zone-bridge/internal/apperrors"
	"github.com/jptaranto/zone-bridge/internal/config"
)

const testModeHeader = "x-test-mode"

// Paths reachable without a token.
var publicPrefixes = []string{
	"/v1/health",
	"/v1/auth/",
}

var testDevice = Device{ID: "test-device", Name: "Test Device"}

// Middleware requires a valid access token on every non-public route.
// Without a JWT secret configured it does nothing.
func Middleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.AuthEnabled() {
			return next
		}
		issuer := NewIssuer(cfg)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if testModeAllowed(cfg, r) {
				next.ServeHTTP(w, r.WithContext(WithDevice(r.Context(), testDevice)))
				return
			}

			token, err := requestToken(r)
			if err != nil {
				api.WriteError(w, r, err)
				return
			}

			device, tokenType, err := issuer.Verify(token)
			switch {
			case err == ErrTokenExpired:
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired))
				return
			case err != nil:
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid))
				return
			case tokenType != TokenTypeAccess:
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token type", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithDevice(r.Context(), device)))
		})
	}
}

// requestToken reads the bearer token. Websocket upgrades may pass it as the
// access_token query parameter since browsers cannot set headers there.
func requestToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token), nil
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, nil
		}
	}
	if header == "" {
		return "", apperrors.NewUnauthorizedError("Missing Authorization header")
	}
	return "", apperrors.NewUnauthorizedError("Invalid Authorization header format")
}

func isPublicPath(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func testModeAllowed(cfg config.Config, r *http.Request) bool {
	return cfg.AllowTestMode && cfg.AppEnv == "development" && r.Header.Get(testModeHeader) == "true"
}
