package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the base server configuration.
type Config struct {
	Host                     string
	Port                     string
	SQLiteDBPath             string
	AppEnv                   string
	AllowTestMode            bool
	JWTSecret                string
	JWTAccessTokenExpirySec  int
	JWTRefreshTokenExpirySec int

	// Provider selects the vendor adapter: "volumio" or "roon".
	Provider          string
	ProviderHost      string
	ProviderTimeoutMs int
	PollIntervalMs    int
	RefreshOnRead     bool
	DiscoverySchedule string
	DiscoveryRetries  int
	AccessoryPostfix  string
	StaticZones       []StaticZone

	RateLimitPerSec float64
	RateLimitBurst  int

	// AuditRetentionDays bounds the zone event log; 0 keeps everything.
	AuditRetentionDays int

	// MQTT publishing is disabled when MQTTHost is empty.
	MQTTHost        string
	MQTTPort        int
	MQTTUsername    string
	MQTTPassword    string
	MQTTClientID    string
	MQTTTopicPrefix string
}

// StaticZone is a zone that is always present regardless of discovery.
type StaticZone struct {
	ID   string `yaml:"id"`
	Host string `yaml:"host"`
	Name string `yaml:"name"`
}

// fileConfig is the optional YAML overlay read from CONFIG_FILE.
type fileConfig struct {
	Provider          string       `yaml:"provider"`
	ProviderHost      string       `yaml:"provider_host"`
	AccessoryPostfix  *string      `yaml:"accessory_postfix"`
	DiscoverySchedule string       `yaml:"discovery_schedule"`
	StaticZones       []StaticZone `yaml:"static_zones"`
}

// Load reads configuration from environment variables with defaults, then
// applies the YAML file named by CONFIG_FILE if set.
func Load() (Config, error) {
	cfg := Config{
		Host:                     envString("HOST", "0.0.0.0"),
		Port:                     envString("PORT", "9000"),
		SQLiteDBPath:             envString("SQLITE_DB_PATH", "./data/zone-bridge.db"),
		AppEnv:                   envString("APP_ENV", "development"),
		AllowTestMode:            envBool("ALLOW_TEST_MODE", false),
		JWTSecret:                envString("JWT_SECRET", ""),
		JWTAccessTokenExpirySec:  envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		JWTRefreshTokenExpirySec: envInt("JWT_REFRESH_TOKEN_EXPIRY", 2592000),
		Provider:                 strings.ToLower(envString("PROVIDER", "volumio")),
		ProviderHost:             envString("PROVIDER_HOST", ""),
		ProviderTimeoutMs:        envInt("PROVIDER_TIMEOUT_MS", 5000),
		PollIntervalMs:           envInt("POLL_INTERVAL_MS", 3000),
		RefreshOnRead:            envBool("REFRESH_ON_READ", true),
		DiscoverySchedule:        envString("DISCOVERY_SCHEDULE", "@every 60s"),
		DiscoveryRetries:         envInt("DISCOVERY_RETRIES", 2),
		AccessoryPostfix:         envStringAllowEmpty("ACCESSORY_POSTFIX", "Speaker"),
		StaticZones:              parseStaticZones(envCSV("STATIC_ZONES")),
		RateLimitPerSec:          envFloat("RATE_LIMIT_PER_SEC", 20),
		RateLimitBurst:           envInt("RATE_LIMIT_BURST", 40),
		AuditRetentionDays:       envInt("AUDIT_RETENTION_DAYS", 30),
		MQTTHost:                 envString("MQTT_HOST", ""),
		MQTTPort:                 envInt("MQTT_PORT", 1883),
		MQTTUsername:             envString("MQTT_USERNAME", ""),
		MQTTPassword:             envString("MQTT_PASSWORD", ""),
		MQTTClientID:             envString("MQTT_CLIENT_ID", "zone-bridge"),
		MQTTTopicPrefix:          envString("MQTT_TOPIC_PREFIX", "zone-bridge"),
	}

	if path := envString("CONFIG_FILE", ""); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AuthEnabled reports whether bearer tokens are required.
func (cfg Config) AuthEnabled() bool {
	return cfg.JWTSecret != ""
}

func (cfg Config) validate() error {
	if cfg.JWTSecret != "" && len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	switch cfg.Provider {
	case "volumio", "roon":
	default:
		return fmt.Errorf("unsupported PROVIDER %q (want volumio or roon)", cfg.Provider)
	}
	if cfg.ProviderHost == "" && len(cfg.StaticZones) == 0 {
		return fmt.Errorf("PROVIDER_HOST is required")
	}
	if cfg.ProviderTimeoutMs <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT_MS must be positive")
	}
	if cfg.PollIntervalMs <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if cfg.AuditRetentionDays < 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must not be negative")
	}
	for i, zone := range cfg.StaticZones {
		if zone.ID == "" || zone.Host == "" {
			return fmt.Errorf("static_zones[%d] needs both id and host", i)
		}
	}
	return nil
}

func applyFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	var file fileConfig
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if file.Provider != "" {
		cfg.Provider = strings.ToLower(file.Provider)
	}
	if file.ProviderHost != "" {
		cfg.ProviderHost = file.ProviderHost
	}
	if file.AccessoryPostfix != nil {
		cfg.AccessoryPostfix = *file.AccessoryPostfix
	}
	if file.DiscoverySchedule != "" {
		cfg.DiscoverySchedule = file.DiscoverySchedule
	}
	if len(file.StaticZones) > 0 {
		cfg.StaticZones = file.StaticZones
	}
	return nil
}

// parseStaticZones reads "id=host" entries; the id doubles as the name.
func parseStaticZones(entries []string) []StaticZone {
	zones := make([]StaticZone, 0, len(entries))
	for _, entry := range entries {
		id, host, ok := strings.Cut(entry, "=")
		if !ok {
			id, host = entry, ""
		}
		id = strings.TrimSpace(id)
		zones = append(zones, StaticZone{ID: id, Host: strings.TrimSpace(host), Name: id})
	}
	return zones
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// envStringAllowEmpty distinguishes an unset variable from one set to "".
func envStringAllowEmpty(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func envCSV(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
