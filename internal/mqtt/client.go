package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/jptaranto/zone-bridge/internal/provider"
	"github.com/jptaranto/zone-bridge/internal/zones"
)

const (
	qosAtLeastOnce   = 1
	publishWait      = 5 * time.Second
	commandTimeout   = 10 * time.Second
	stateTopicLeaf   = "state"
	setTopicLeaf     = "set"
	availabilityLeaf = "availability"
)

// Config holds MQTT connection settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
}

// Commander applies commands received on set topics.
type Commander interface {
	SetPlayback(ctx context.Context, id string, target provider.PlaybackState) (zones.ZoneState, error)
	SetVolume(ctx context.Context, id string, volume float64) (zones.ZoneState, error)
	SetMute(ctx context.Context, id string, muted bool) (zones.ZoneState, error)
}

// publisher is the subset of paho.Client used for publishing.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// StatePayload is the retained JSON published per zone.
type StatePayload struct {
	ZoneID      string                 `json:"zone_id"`
	AccessoryID string                 `json:"accessory_id"`
	Name        string                 `json:"name"`
	Known       bool                   `json:"known"`
	Playback    provider.PlaybackState `json:"playback"`
	Volume      int                    `json:"volume"`
	Muted       bool                   `json:"muted"`
	Stale       bool                   `json:"stale"`
	LastUpdated time.Time              `json:"last_updated"`
}

// SetPayload is accepted on <prefix>/<accessory id>/set. Exactly one field
// should be present; if several are, all are applied in field order.
type SetPayload struct {
	Playback *string  `json:"playback,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
	Muted    *bool    `json:"muted,omitempty"`
}

// Client publishes zone state to an MQTT broker. It implements
// bridge.StateListener.
type Client struct {
	client    paho.Client
	pub       publisher
	prefix    string
	commander Commander
	logger    *log.Logger

	mu        sync.RWMutex
	connected bool
}

// NewClient creates a new MQTT client. commander may be nil to disable set
// topics.
func NewClient(cfg Config, commander Commander, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	c := &Client{
		prefix:    strings.Trim(cfg.TopicPrefix, "/"),
		commander: commander,
		logger:    logger,
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetWill(c.topic(availabilityLeaf), "offline", qosAtLeastOnce, true)

	opts.SetOnConnectHandler(func(client paho.Client) {
		c.logger.Printf("[MQTT] connected")
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		client.Publish(c.topic(availabilityLeaf), qosAtLeastOnce, true, "online")
		c.subscribeCommands(client)
	})

	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		c.logger.Printf("[MQTT] connection lost: %v", err)
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	})

	c.client = paho.NewClient(opts)
	c.pub = c.client
	return c
}

// Connect starts the MQTT connection.
func (c *Client) Connect() error {
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect failed: %w", err)
	}
	return nil
}

// Disconnect publishes offline availability and closes the connection.
func (c *Client) Disconnect() {
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	token := c.client.Publish(c.topic(availabilityLeaf), qosAtLeastOnce, true, "offline")
	token.WaitTimeout(publishWait)
	c.client.Disconnect(250)
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ZoneStateChanged implements bridge.StateListener.
func (c *Client) ZoneStateChanged(zone zones.Zone, state zones.ZoneState) {
	c.publishState(zone, state)
}

// ZonesChanged implements bridge.StateListener. Removed zones get a retained
// update with known=false so subscribers see them go away.
func (c *Client) ZonesChanged(all []zones.Zone, changes zones.Changes) {
	for _, zone := range changes.Removed {
		c.publishState(zone, zones.ZoneState{Playback: provider.PlaybackStopped, Stale: true})
	}
}

// StateTopic returns the retained state topic for an accessory.
func (c *Client) StateTopic(accessoryID string) string {
	return c.topic(accessoryID, stateTopicLeaf)
}

func (c *Client) publishState(zone zones.Zone, state zones.ZoneState) {
	payload, err := json.Marshal(StatePayload{
		ZoneID:      zone.ID,
		AccessoryID: zone.AccessoryID,
		Name:        zone.Name,
		Known:       zone.Known,
		Playback:    state.Playback,
		Volume:      state.Volume,
		Muted:       state.Muted,
		Stale:       state.Stale,
		LastUpdated: state.LastUpdated,
	})
	if err != nil {
		c.logger.Printf("[MQTT] failed to encode state for %s: %v", zone.ID, err)
		return
	}

	topic := c.StateTopic(zone.AccessoryID)
	token := c.pub.Publish(topic, qosAtLeastOnce, true, payload)
	// Don't wait on the token; listeners must not block.
	go func() {
		if !token.WaitTimeout(publishWait) {
			c.logger.Printf("[MQTT] publish to %s timed out", topic)
			return
		}
		if err := token.Error(); err != nil {
			c.logger.Printf("[MQTT] publish to %s failed: %v", topic, err)
		}
	}()
}

func (c *Client) subscribeCommands(client paho.Client) {
	if c.commander == nil {
		return
	}
	topic := c.topic("+", setTopicLeaf)
	token := client.Subscribe(topic, qosAtLeastOnce, func(_ paho.Client, msg paho.Message) {
		c.handleSet(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		c.logger.Printf("[MQTT] failed to subscribe to %s: %v", topic, err)
		return
	}
	c.logger.Printf("[MQTT] subscribed to %s", topic)
}

// handleSet applies a set payload to the accessory named in the topic.
func (c *Client) handleSet(topic string, raw []byte) error {
	accessoryID, ok := c.accessoryFromSetTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	var payload SetPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Printf("[MQTT] ignoring malformed command on %s: %v", topic, err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if payload.Playback != nil {
		target, ok := provider.ParsePlaybackState(strings.ToUpper(*payload.Playback))
		if !ok {
			err := fmt.Errorf("invalid playback %q", *payload.Playback)
			c.logger.Printf("[MQTT] %s: %v", topic, err)
			return err
		}
		if _, err := c.commander.SetPlayback(ctx, accessoryID, target); err != nil {
			c.logger.Printf("[MQTT] playback command for %s failed: %v", accessoryID, err)
			return err
		}
	}
	if payload.Volume != nil {
		if _, err := c.commander.SetVolume(ctx, accessoryID, *payload.Volume); err != nil {
			c.logger.Printf("[MQTT] volume command for %s failed: %v", accessoryID, err)
			return err
		}
	}
	if payload.Muted != nil {
		if _, err := c.commander.SetMute(ctx, accessoryID, *payload.Muted); err != nil {
			c.logger.Printf("[MQTT] mute command for %s failed: %v", accessoryID, err)
			return err
		}
	}
	return nil
}

func (c *Client) accessoryFromSetTopic(topic string) (string, bool) {
	rest := strings.TrimPrefix(topic, c.prefix+"/")
	if c.prefix == "" {
		rest = topic
	} else if rest == topic {
		return "", false
	}
	accessoryID, leaf, ok := strings.Cut(rest, "/")
	if !ok || leaf != setTopicLeaf || accessoryID == "" {
		return "", false
	}
	return accessoryID, true
}

func (c *Client) topic(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, "/")
	}
	return c.prefix + "/" + strings.Join(parts, "/")
}
