package accessory

import (
	"strings"
	"time"
)

// CategorySpeaker is the accessory category advertised for every zone.
const CategorySpeaker = 26

// Accessory is the persisted identity of a zone exposed to the home platform.
type Accessory struct {
	AccessoryID string    `json:"accessory_id"`
	ZoneID      string    `json:"zone_id"`
	Provider    string    `json:"provider"`
	DisplayName string    `json:"display_name"`
	Category    int       `json:"category"`
	Known       bool      `json:"known"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// DisplayName appends the postfix to a zone name. An empty postfix leaves
// the name unchanged.
func DisplayName(zoneName, postfix string) string {
	name := strings.TrimSpace(zoneName)
	postfix = strings.TrimSpace(postfix)
	if postfix == "" {
		return name
	}
	if name == "" {
		return postfix
	}
	return name + " " + postfix
}
