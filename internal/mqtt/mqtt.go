// Package mqtt provides MQTT publishing and command intake with abstraction
// for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/garage-door/internal/door"
)

// TopicPrefix is the root of the per-door topics.
const TopicPrefix = "garage/door"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "garage/system"

// CommandSubscription matches every door's command topic.
const CommandSubscription = TopicPrefix + "/+/set"

// StatusTopic is where a door's retained status is published.
func StatusTopic(doorName string) string {
	return TopicPrefix + "/" + Slug(doorName) + "/status"
}

// CommandTopic is where commands for a door are received.
func CommandTopic(doorName string) string {
	return TopicPrefix + "/" + Slug(doorName) + "/set"
}

// Slug converts a door name into a topic segment: "Left Door" -> "left-door".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Publisher publishes door status and system events to MQTT.
type Publisher interface {
	// PublishStatus sends a door's status. It is retained so that
	// subscribers see the current status on connect.
	// Returns error if publishing fails (should not crash the process).
	PublishStatus(u door.Update) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandSource delivers door commands received from the broker.
type CommandSource interface {
	Commands() <-chan Command
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT status message payload structure.
type Payload struct {
	Door DoorPayload `json:"door"`
}

// DoorPayload contains one door's status.
type DoorPayload struct {
	Name         string `json:"name"`
	Timestamp    string `json:"timestamp"`
	State        string `json:"state"`
	Status       string `json:"status"`
	Label        string `json:"label"`
	HomeKitState int    `json:"homekit_state"`
	On           bool   `json:"on"`
	Locked       bool   `json:"locked"`
	Obstruction  bool   `json:"obstruction"`
}

// FormatPayload creates the JSON payload for a door status update. "on" is
// true only when the door is closed, locked or not.
func FormatPayload(u door.Update) ([]byte, error) {
	payload := Payload{
		Door: DoorPayload{
			Name:         u.Door,
			Timestamp:    u.Time.UTC().Format(time.RFC3339),
			State:        u.State.String(),
			Status:       string(u.Status),
			Label:        u.Label,
			HomeKitState: u.State.HomeKit(),
			On:           u.State == door.StateClosed,
			Locked:       u.Locked,
			Obstruction:  u.State == door.StateObstructed,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Action is a door command verb.
type Action string

const (
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
	ActionToggle Action = "toggle"
	ActionLock   Action = "lock"
	ActionUnlock Action = "unlock"
)

// Command is a request received on a door's command topic. Door is the
// topic slug; the caller maps it to a configured door.
type Command struct {
	Door   string
	Action Action
}

// ParseCommand decodes a message received on a command topic. The payload
// is the bare action, case-insensitive.
func ParseCommand(topic string, payload []byte) (Command, error) {
	parts := strings.Split(topic, "/")
	prefix := strings.Split(TopicPrefix, "/")
	if len(parts) != len(prefix)+2 || strings.Join(parts[:len(prefix)], "/") != TopicPrefix || parts[len(parts)-1] != "set" {
		return Command{}, fmt.Errorf("not a command topic: %q", topic)
	}
	slug := parts[len(prefix)]
	if slug == "" {
		return Command{}, fmt.Errorf("empty door in topic %q", topic)
	}

	action := Action(strings.ToLower(strings.TrimSpace(string(payload))))
	switch action {
	case ActionOpen, ActionClose, ActionToggle, ActionLock, ActionUnlock:
	default:
		return Command{}, fmt.Errorf("unknown command %q for door %s", string(payload), slug)
	}
	return Command{Door: slug, Action: action}, nil
}
