package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jptaranto/zone-bridge/internal/accessory"
	"github.com/jptaranto/zone-bridge/internal/api"
	"github.com/jptaranto/zone-bridge/internal/audit"
	"github.com/jptaranto/zone-bridge/internal/auth"
	"github.com/jptaranto/zone-bridge/internal/bridge"
	"github.com/jptaranto/zone-bridge/internal/config"
	"github.com/jptaranto/zone-bridge/internal/db"
	"github.com/jptaranto/zone-bridge/internal/mqtt"
	"github.com/jptaranto/zone-bridge/internal/provider"
	"github.com/jptaranto/zone-bridge/internal/provider/roon"
	"github.com/jptaranto/zone-bridge/internal/provider/volumio"
	"github.com/jptaranto/zone-bridge/internal/stream"
)

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the logger.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// Options tweak handler construction, mostly for tests.
type Options struct {
	// DisableDiscovery skips starting the bridge; no zones are polled.
	DisableDiscovery bool
	// Provider overrides the adapter selected by cfg.Provider.
	Provider provider.Provider
	// Logger is used by every component; nil means log.Default().
	Logger *log.Logger
}

// NewHandler builds the HTTP handler and a shutdown func that stops every
// background task and releases the provider session.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	logger.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	requestTimeout := time.Duration(cfg.ProviderTimeoutMs) * time.Millisecond
	client := provider.NewClient(requestTimeout)

	zoneProvider := options.Provider
	if zoneProvider == nil {
		zoneProvider, err = newProvider(cfg, client)
		if err != nil {
			client.Close()
			dbPair.Close()
			return nil, nil, err
		}
	}
	logger.Printf("Using provider: %s at %s", zoneProvider.Name(), cfg.ProviderHost)

	service := bridge.NewService(zoneProvider, logger, bridge.Options{
		PollInterval:      time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		RequestTimeout:    requestTimeout,
		RefreshOnRead:     cfg.RefreshOnRead,
		DiscoverySchedule: cfg.DiscoverySchedule,
		DiscoveryRetries:  cfg.DiscoveryRetries,
		StaticZones:       staticZones(cfg.StaticZones),
	})

	accessoryRepo := accessory.NewRepository(dbPair)
	service.AddListener(accessory.NewSyncer(accessoryRepo, zoneProvider.Name(), cfg.AccessoryPostfix, logger))

	auditService := audit.NewService(dbPair, cfg.AuditRetentionDays, logger)
	service.AddListener(audit.NewRecorder(auditService, logger))

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := stream.NewHub(logger, func() any { return service.ListZones() })
	go hub.Run(hubCtx)
	service.AddListener(hub)

	var mqttClient *mqtt.Client
	if cfg.MQTTHost != "" {
		mqttClient = mqtt.NewClient(mqtt.Config{
			Host:        cfg.MQTTHost,
			Port:        cfg.MQTTPort,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, service, logger)
		// Connect retries in the background; don't hold up startup.
		go func() {
			if err := mqttClient.Connect(); err != nil {
				logger.Printf("[MQTT] %v", err)
			}
		}()
		service.AddListener(mqttClient)
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(api.RateLimitMiddleware(cfg.RateLimitPerSec, cfg.RateLimitBurst))
	router.Use(auth.Middleware(cfg))

	registerHealthRoutes(router, service, auditService, hub, mqttClient)

	pairingStore := auth.NewPairingStore(5*time.Minute, time.Minute)
	auth.RegisterRoutes(router, pairingStore, cfg)

	bridge.RegisterRoutes(router, service)
	accessory.RegisterRoutes(router, accessoryRepo)
	audit.RegisterRoutes(router, auditService)
	router.Get("/v1/events", hub.ServeWS)

	if _, err := auditService.RecordEvent(audit.WriteEventInput{
		Type:    audit.EventSystemStartup,
		Message: "zone-bridge started",
		Payload: map[string]any{"provider": zoneProvider.Name()},
	}); err != nil {
		logger.Printf("[AUDIT] %v", err)
	}
	auditService.StartPruneJob()

	if !options.DisableDiscovery {
		service.Start()
	}

	shutdown := func(ctx context.Context) error {
		service.Stop()
		auditService.StopPruneJob()
		hubCancel()
		pairingStore.Clear()
		if mqttClient != nil {
			mqttClient.Disconnect()
		}
		client.Close()
		return dbPair.Close()
	}

	return router, shutdown, nil
}

func newProvider(cfg config.Config, client *provider.Client) (provider.Provider, error) {
	switch cfg.Provider {
	case volumio.Name:
		return volumio.New(client, cfg.ProviderHost), nil
	case roon.Name:
		return roon.New(client, cfg.ProviderHost), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

func staticZones(items []config.StaticZone) []provider.ZoneRecord {
	records := make([]provider.ZoneRecord, 0, len(items))
	for _, item := range items {
		records = append(records, provider.ZoneRecord{ID: item.ID, Host: item.Host, Name: item.Name})
	}
	return records
}

func registerHealthRoutes(router chi.Router, service *bridge.Service, auditService *audit.Service, hub *stream.Hub, mqttClient *mqtt.Client) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		lastSuccess, lastErr := service.LastDiscovery()
		discovery := map[string]any{
			"last_success": api.RFC3339Millis(lastSuccess),
		}
		if lastErr != nil {
			discovery["last_error"] = lastErr.Error()
		}

		status := "healthy"
		if !service.IsHealthy() {
			status = "degraded"
		}

		response := map[string]any{
			"status":         status,
			"service":        "zone-bridge",
			"provider":       service.ProviderName(),
			"zones":          len(service.ListZones()),
			"polling_zones":  service.PollingZones(),
			"discovery":      discovery,
			"audit_healthy":  auditService.IsHealthy(),
			"stream_clients": hub.ClientCount(),
			"mqtt_connected": mqttClient != nil && mqttClient.IsConnected(),
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if !service.IsHealthy() {
			return api.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
