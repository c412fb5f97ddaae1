// Package roon implements a provider backed by a Roon HTTP bridge extension.
// The bridge only exposes a play/pause toggle for transport control.
package roon

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/jptaranto/zone-bridge/internal/provider"
)

// Name identifies this provider in configuration.
const Name = "roon"

type zonesResponse struct {
	Zones []zoneResponse `json:"zones"`
}

type zoneResponse struct {
	ZoneID      string   `json:"zone_id"`
	DisplayName string   `json:"display_name"`
	State       string   `json:"state"`
	Volume      *float64 `json:"volume"`
	IsMuted     bool     `json:"is_muted"`
}

// Provider talks to a single Roon HTTP bridge; every zone shares its base URL.
type Provider struct {
	client  *provider.Client
	baseURL string
}

// New creates a Roon provider for the bridge at baseURL.
func New(client *provider.Client, baseURL string) *Provider {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL != "" && !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Provider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *Provider) Name() string {
	return Name
}

// Capabilities reports toggle-only transport control.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Toggle: true}
}

func (p *Provider) ListZones(ctx context.Context) ([]provider.ZoneRecord, error) {
	var resp zonesResponse
	if err := p.client.DecodeJSON(ctx, p.baseURL+"/roonAPI/listZones", &resp); err != nil {
		return nil, err
	}
	records := make([]provider.ZoneRecord, 0, len(resp.Zones))
	for _, zone := range resp.Zones {
		records = append(records, provider.ZoneRecord{
			ID:   zone.ZoneID,
			Host: p.baseURL,
			Name: zone.DisplayName,
		})
	}
	return records, nil
}

func (p *Provider) FetchState(ctx context.Context, zone provider.ZoneRef) (provider.Status, error) {
	resp, err := p.zoneCall(ctx, zone, "getZone", nil)
	if err != nil {
		return provider.Status{}, err
	}
	return toStatus(resp), nil
}

// SendTransport only accepts the toggle primitive; the bridge answers with
// the zone after the change.
func (p *Provider) SendTransport(ctx context.Context, zone provider.ZoneRef, command provider.Command) (provider.Ack, error) {
	if command != provider.CommandToggle {
		return provider.Ack{}, &provider.HTTPError{URL: p.baseURL + "/roonAPI/" + string(command), StatusCode: 501}
	}
	resp, err := p.zoneCall(ctx, zone, "play_pause", nil)
	if err != nil {
		return provider.Ack{}, err
	}
	status := toStatus(resp)
	return provider.Ack{Playback: &status.Playback}, nil
}

func (p *Provider) SetVolume(ctx context.Context, zone provider.ZoneRef, volume int) (provider.Ack, error) {
	resp, err := p.zoneCall(ctx, zone, "change_volume", url.Values{"volume": {strconv.Itoa(volume)}})
	if err != nil {
		return provider.Ack{}, err
	}
	applied := volume
	if resp.Volume != nil {
		applied = provider.ClampVolume(*resp.Volume)
	}
	return provider.Ack{Volume: &applied}, nil
}

func (p *Provider) SetMute(ctx context.Context, zone provider.ZoneRef, muted bool) (provider.Ack, error) {
	how := "unmute"
	if muted {
		how = "mute"
	}
	if _, err := p.zoneCall(ctx, zone, "mute", url.Values{"how": {how}}); err != nil {
		return provider.Ack{}, err
	}
	return provider.Ack{Muted: &muted}, nil
}

func (p *Provider) zoneCall(ctx context.Context, zone provider.ZoneRef, action string, query url.Values) (zoneResponse, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("zoneId", zone.ID)

	base := p.baseURL
	if zone.Endpoint != "" {
		base = strings.TrimRight(zone.Endpoint, "/")
	}

	var resp zoneResponse
	err := p.client.DecodeJSON(ctx, base+"/roonAPI/"+action+"?"+query.Encode(), &resp)
	return resp, err
}

func toStatus(zone zoneResponse) provider.Status {
	status := provider.Status{
		Playback: StatusToPlayback(zone.State),
		Muted:    zone.IsMuted,
	}
	if zone.Volume != nil {
		status.Volume = provider.ClampVolume(*zone.Volume)
	}
	return status
}
