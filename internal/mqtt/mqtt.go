// Package mqtt bridges the controller to an MQTT broker with an abstraction
// for testing. Button presses and indicator states are published; command
// payloads received on the command topic are handed to a CommandHandler.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/whackamole/internal/logic"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "whackamole"

// Topics are the topics used by the bridge.
type Topics struct {
	Events  string // button presses, not retained
	State   string // indicator states, retained
	System  string // lifecycle events, retained
	Command string // inbound commands
}

// NewTopics derives all topics from prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Events:  prefix + "/events",
		State:   prefix + "/state",
		System:  prefix + "/system",
		Command: prefix + "/command",
	}
}

// Publisher publishes controller events to MQTT.
type Publisher interface {
	// PublishPress sends an accepted button press.
	// Returns error if publishing fails (should not crash the process).
	PublishPress(event PressEvent) error

	// PublishState sends the indicator states.
	PublishState(event StateEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandHandler receives the raw payload of a command message.
type CommandHandler func(payload []byte)

// PressEvent is a button press drained from the controller.
type PressEvent struct {
	Timestamp time.Time
	Button    logic.ButtonIndex
}

// StateEvent is a snapshot of all indicators.
type StateEvent struct {
	Timestamp  time.Time
	Indicators logic.Indicators
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// PressPayload is the MQTT payload for a button press.
type PressPayload struct {
	Press PressInner `json:"press"`
}

// PressInner contains the press details.
type PressInner struct {
	Timestamp string `json:"timestamp"`
	Button    int    `json:"button"`
	Color     string `json:"color"`
	Message   string `json:"message"`
}

// FormatPressPayload creates the JSON payload for a button press.
func FormatPressPayload(event PressEvent) ([]byte, error) {
	return json.Marshal(PressPayload{Press: PressInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Button:    int(event.Button),
		Color:     event.Button.Color(),
		Message:   logic.FormatEvent(event.Button),
	}})
}

// StatePayload is the MQTT payload for indicator states.
type StatePayload struct {
	LEDs StateInner `json:"leds"`
}

// StateInner contains the indicator states.
type StateInner struct {
	Timestamp string `json:"timestamp"`
	Red       bool   `json:"red"`
	Blue      bool   `json:"blue"`
	Green     bool   `json:"green"`
	Yellow    bool   `json:"yellow"`
	Message   string `json:"message"`
}

// FormatStatePayload creates the JSON payload for indicator states.
func FormatStatePayload(event StateEvent) ([]byte, error) {
	s := event.Indicators
	return json.Marshal(StatePayload{LEDs: StateInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Red:       s[logic.Red],
		Blue:      s[logic.Blue],
		Green:     s[logic.Green],
		Yellow:    s[logic.Yellow],
		Message:   logic.FormatStatus(s),
	}})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{System: SystemPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}})
}

// WillPayload is the last-will message the broker publishes on our behalf
// when the connection drops without a clean disconnect.
func WillPayload() string {
	data, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{
		Event:  "OFFLINE",
		Reason: "CONNECTION_LOST",
	}})
	return string(data)
}
