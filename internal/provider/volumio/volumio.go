// Package volumio implements the Volumio REST API provider.
package volumio

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/jptaranto/zone-bridge/internal/provider"
)

// Name identifies this provider in configuration.
const Name = "volumio"

type zonesResponse struct {
	Zones []zoneRecord `json:"zones"`
}

type zoneRecord struct {
	ID     string `json:"id"`
	Host   string `json:"host"`
	Name   string `json:"name"`
	IsSelf bool   `json:"isSelf"`
}

type stateResponse struct {
	Status string   `json:"status"`
	Volume *float64 `json:"volume"`
	Mute   bool     `json:"mute"`
}

type commandResponse struct {
	Time     int64  `json:"time"`
	Response string `json:"response"`
}

// Provider talks to one or more Volumio devices. Zones are listed from the
// configured host; each zone is then addressed on its own host.
type Provider struct {
	client *provider.Client
	host   string
}

// New creates a Volumio provider rooted at host (with or without scheme).
func New(client *provider.Client, host string) *Provider {
	return &Provider{
		client: client,
		host:   normalizeHost(host),
	}
}

func (p *Provider) Name() string {
	return Name
}

// Capabilities reports that Volumio exposes explicit transport verbs.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Play: true, Pause: true, Stop: true, Toggle: true}
}

func (p *Provider) ListZones(ctx context.Context) ([]provider.ZoneRecord, error) {
	var resp zonesResponse
	if err := p.client.DecodeJSON(ctx, p.host+"/api/v1/getzones", &resp); err != nil {
		return nil, err
	}

	records := make([]provider.ZoneRecord, 0, len(resp.Zones))
	for _, zone := range resp.Zones {
		host := zone.Host
		if host == "" && zone.IsSelf {
			host = p.host
		}
		records = append(records, provider.ZoneRecord{
			ID:   zone.ID,
			Host: normalizeHost(host),
			Name: zone.Name,
		})
	}
	return records, nil
}

func (p *Provider) FetchState(ctx context.Context, zone provider.ZoneRef) (provider.Status, error) {
	var resp stateResponse
	if err := p.client.DecodeJSON(ctx, p.endpoint(zone)+"/api/v1/getState", &resp); err != nil {
		return provider.Status{}, err
	}

	status := provider.Status{
		Playback: StatusToPlayback(resp.Status),
		Muted:    resp.Mute,
	}
	if resp.Volume != nil {
		status.Volume = provider.ClampVolume(*resp.Volume)
	}
	return status, nil
}

func (p *Provider) SendTransport(ctx context.Context, zone provider.ZoneRef, command provider.Command) (provider.Ack, error) {
	resp, err := p.command(ctx, zone, url.Values{"cmd": {string(command)}})
	if err != nil {
		return provider.Ack{}, err
	}
	playback := CommandResultToPlayback(resp.Response)
	return provider.Ack{Playback: &playback}, nil
}

func (p *Provider) SetVolume(ctx context.Context, zone provider.ZoneRef, volume int) (provider.Ack, error) {
	if _, err := p.command(ctx, zone, url.Values{"cmd": {"volume"}, "volume": {strconv.Itoa(volume)}}); err != nil {
		return provider.Ack{}, err
	}
	return provider.Ack{Volume: &volume}, nil
}

func (p *Provider) SetMute(ctx context.Context, zone provider.ZoneRef, muted bool) (provider.Ack, error) {
	value := "unmute"
	if muted {
		value = "mute"
	}
	if _, err := p.command(ctx, zone, url.Values{"cmd": {"volume"}, "volume": {value}}); err != nil {
		return provider.Ack{}, err
	}
	return provider.Ack{Muted: &muted}, nil
}

func (p *Provider) command(ctx context.Context, zone provider.ZoneRef, query url.Values) (commandResponse, error) {
	var resp commandResponse
	err := p.client.DecodeJSON(ctx, p.endpoint(zone)+"/api/v1/commands/?"+query.Encode(), &resp)
	return resp, err
}

func (p *Provider) endpoint(zone provider.ZoneRef) string {
	if zone.Endpoint == "" {
		return p.host
	}
	return normalizeHost(zone.Endpoint)
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return strings.TrimRight(host, "/")
}
