package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/whackamole/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Ready         bool            `json:"ready"`
	LEDs          map[string]bool `json:"leds"`
	Pending       *PendingJSON    `json:"pending,omitempty"`
	Presses       map[string]int  `json:"presses"`
	Overwritten   int             `json:"overwritten"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Config        ConfigJSON      `json:"config"`
}

// PendingJSON is the undrained press, if any.
type PendingJSON struct {
	Button int    `json:"button"`
	Color  string `json:"color"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip       string `json:"chip"`
	ButtonPins []int  `json:"button_pins"`
	LEDPins    []int  `json:"led_pins"`
	DebounceMs int64  `json:"debounce_ms"`
	PollMs     int64  `json:"poll_ms"`
	ReadMode   string `json:"read_mode"`
	Broker     string `json:"broker,omitempty"`
	HTTPAddr   string `json:"http_addr,omitempty"`
	MQTTPrefix string `json:"mqtt_prefix,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	leds := make(map[string]bool, logic.NumButtons)
	presses := make(map[string]int, logic.NumButtons)
	for b := logic.ButtonIndex(0); b < logic.NumButtons; b++ {
		leds[b.Color()] = snap.Store.Indicators[b]
		presses[b.Color()] = snap.Store.Presses[b]
	}

	inner := StatusInner{
		Ready:         snap.Running,
		LEDs:          leds,
		Presses:       presses,
		Overwritten:   snap.Store.Overwritten,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Chip:       snap.Config.Chip,
			ButtonPins: snap.Config.ButtonPins,
			LEDPins:    snap.Config.LEDPins,
			DebounceMs: snap.Config.DebounceMs,
			PollMs:     snap.Config.PollMs,
			ReadMode:   snap.Config.ReadMode,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
			MQTTPrefix: snap.Config.MQTTPrefix,
		},
	}
	if p := snap.Store.Pending; p != nil {
		inner.Pending = &PendingJSON{Button: int(*p), Color: p.Color()}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
