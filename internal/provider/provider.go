package provider

import "context"

// Command is a transport primitive understood by a provider.
type Command string

const (
	CommandPlay   Command = "play"
	CommandPause  Command = "pause"
	CommandStop   Command = "stop"
	CommandToggle Command = "toggle"
)

// Capabilities lists the transport primitives a provider exposes.
type Capabilities struct {
	Play   bool
	Pause  bool
	Stop   bool
	Toggle bool
}

// Supports reports whether the command is available.
func (c Capabilities) Supports(command Command) bool {
	switch command {
	case CommandPlay:
		return c.Play
	case CommandPause:
		return c.Pause
	case CommandStop:
		return c.Stop
	case CommandToggle:
		return c.Toggle
	}
	return false
}

// ZoneRecord is one entry of a provider's zone listing.
type ZoneRecord struct {
	ID   string
	Host string
	Name string
}

// ZoneRef addresses a zone for state and command requests.
type ZoneRef struct {
	ID       string
	Endpoint string
}

// Status is a translated state payload.
type Status struct {
	Playback PlaybackState
	Volume   int
	Muted    bool
}

// Ack is a translated command acknowledgement. Nil fields were not reported
// by the provider and must not overwrite cached values.
type Ack struct {
	Playback *PlaybackState
	Volume   *int
	Muted    *bool
}

// Provider is the capability interface implemented per vendor.
// Implementations translate their own vocabulary; nothing vendor-specific
// leaves the implementing package.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	ListZones(ctx context.Context) ([]ZoneRecord, error)
	FetchState(ctx context.Context, zone ZoneRef) (Status, error)
	SendTransport(ctx context.Context, zone ZoneRef, command Command) (Ack, error)
	SetVolume(ctx context.Context, zone ZoneRef, volume int) (Ack, error)
	SetMute(ctx context.Context, zone ZoneRef, muted bool) (Ack, error)
}
