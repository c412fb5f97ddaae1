package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/jptaranto/zone-bridge/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		AppEnv:                   "development",
		JWTSecret:                strings.Repeat("k", 32),
		JWTAccessTokenExpirySec:  3600,
		JWTRefreshTokenExpirySec: 7200,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if device, ok := DeviceFromContext(r.Context()); ok {
			w.Header().Set("x-device", device.Name)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

var phone = Device{ID: "device-1", Name: "Phone"}

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer(testConfig())

	pair, err := issuer.IssuePair(phone)
	require.NoError(t, err)
	require.Equal(t, 3600, pair.ExpiresInSec)

	device, tokenType, err := issuer.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, phone, device)
	require.Equal(t, TokenTypeAccess, tokenType)

	access, expiresIn, err := issuer.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.Equal(t, 3600, expiresIn)

	_, _, err = issuer.Refresh(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenType)
}

func TestIssuer_WrongSecretIsInvalid(t *testing.T) {
	pair, err := NewIssuer(testConfig()).IssuePair(phone)
	require.NoError(t, err)

	other := testConfig()
	other.JWTSecret = strings.Repeat("x", 32)
	_, _, err = NewIssuer(other).Verify(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, _, err = NewIssuer(other).Verify("not-a-token")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestIssuer_Expired(t *testing.T) {
	issuer := NewIssuer(testConfig())
	pair, err := issuer.IssuePair(phone)
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(90 * time.Minute) }
	_, _, err = issuer.Verify(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)

	// The refresh token outlives the access token.
	_, _, err = issuer.Verify(pair.RefreshToken)
	require.NoError(t, err)
}

func TestMiddleware_DisabledWithoutSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""

	rec := httptest.NewRecorder()
	Middleware(cfg)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/zones", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddleware_RequiresToken(t *testing.T) {
	handler := Middleware(testConfig())(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/zones", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/zones", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddleware_AcceptsAccessToken(t *testing.T) {
	cfg := testConfig()
	handler := Middleware(cfg)(okHandler())
	pair, err := NewIssuer(cfg).IssuePair(phone)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/zones", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "Phone", rec.Header().Get("x-device"))

	req = httptest.NewRequest(http.MethodGet, "/v1/zones", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_WebSocketQueryToken(t *testing.T) {
	cfg := testConfig()
	handler := Middleware(cfg)(okHandler())
	pair, err := NewIssuer(cfg).IssuePair(phone)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/events?access_token="+pair.AccessToken, nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddleware_TestMode(t *testing.T) {
	cfg := testConfig()
	cfg.AllowTestMode = true
	handler := Middleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/zones", nil)
	req.Header.Set("x-test-mode", "true")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	cfg.AppEnv = "production"
	rec = httptest.NewRecorder()
	Middleware(cfg)(okHandler()).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPairingStore(t *testing.T) {
	store := NewPairingStore(time.Minute, time.Minute)

	code, err := store.Create("req-1")
	require.NoError(t, err)
	require.Len(t, code, 6)
	require.Equal(t, 1, store.Len())

	require.True(t, store.Consume(code))
	require.False(t, store.Consume(code))
}

func TestPairingStore_ConcurrentConsume(t *testing.T) {
	store := NewPairingStore(time.Minute, time.Minute)
	code, err := store.Create("req-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var wins int32
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if store.Consume(code) {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), wins)
	require.Zero(t, store.Len())
}

func TestPairingStore_Expiry(t *testing.T) {
	store := NewPairingStore(10*time.Millisecond, time.Minute)

	code, err := store.Create("req-1")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	require.False(t, store.Consume(code))
}

func TestRoutes_PairingFlow(t *testing.T) {
	cfg := testConfig()
	store := NewPairingStore(time.Minute, time.Minute)
	router := chi.NewRouter()
	RegisterRoutes(router, store, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/pair/start", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, store.Len())

	// The code is only logged; mint one directly for the completion step.
	code, err := store.Create("req-2")
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"pair_code": code, "device_name": "Phone"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/pair/complete", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var tokens map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	require.Equal(t, "token_pair", tokens["object"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/pair/complete", bytes.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	refreshBody, _ := json.Marshal(map[string]string{"refresh_token": tokens["refresh_token"].(string)})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", bytes.NewReader(refreshBody)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_NotMountedWithoutSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""
	router := chi.NewRouter()
	RegisterRoutes(router, NewPairingStore(time.Minute, time.Minute), cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/pair/start", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
