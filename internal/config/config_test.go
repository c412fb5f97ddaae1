package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PROVIDER_HOST", "volumio.local")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "volumio", cfg.Provider)
	require.Equal(t, 5000, cfg.ProviderTimeoutMs)
	require.Equal(t, 3000, cfg.PollIntervalMs)
	require.True(t, cfg.RefreshOnRead)
	require.Equal(t, "@every 60s", cfg.DiscoverySchedule)
	require.Equal(t, "Speaker", cfg.AccessoryPostfix)
	require.False(t, cfg.AuthEnabled())
	require.Empty(t, cfg.StaticZones)
}

func TestLoad_RequiresProviderHost(t *testing.T) {
	t.Setenv("PROVIDER_HOST", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsShortJWTSecret(t *testing.T) {
	t.Setenv("PROVIDER_HOST", "volumio.local")
	t.Setenv("JWT_SECRET", "short")
	_, err := Load()
	require.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.AuthEnabled())
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("PROVIDER_HOST", "x")
	t.Setenv("PROVIDER", "airplay")
	_, err := Load()
	require.ErrorContains(t, err, "unsupported PROVIDER")
}

func TestLoad_EmptyPostfixIsKept(t *testing.T) {
	t.Setenv("PROVIDER_HOST", "volumio.local")
	t.Setenv("ACCESSORY_POSTFIX", "")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "", cfg.AccessoryPostfix)
}

func TestLoad_StaticZonesFromEnv(t *testing.T) {
	t.Setenv("STATIC_ZONES", "garage=10.0.0.9, patio=http://10.0.0.10")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []StaticZone{
		{ID: "garage", Host: "10.0.0.9", Name: "garage"},
		{ID: "patio", Host: "http://10.0.0.10", Name: "patio"},
	}, cfg.StaticZones)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: roon
provider_host: roon.local:3001
accessory_postfix: ""
discovery_schedule: "@every 5m"
static_zones:
  - id: "1601"
    host: http://roon.local:3001
    name: Lounge
`), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "roon", cfg.Provider)
	require.Equal(t, "roon.local:3001", cfg.ProviderHost)
	require.Equal(t, "", cfg.AccessoryPostfix)
	require.Equal(t, "@every 5m", cfg.DiscoverySchedule)
	require.Len(t, cfg.StaticZones, 1)
	require.Equal(t, "Lounge", cfg.StaticZones[0].Name)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unterminated"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PROVIDER_HOST", "x")

	_, err := Load()
	require.ErrorContains(t, err, "parse config file")
}

func TestLoad_StaticZoneNeedsHost(t *testing.T) {
	t.Setenv("STATIC_ZONES", "garage")
	_, err := Load()
	require.ErrorContains(t, err, "static_zones[0]")
}
