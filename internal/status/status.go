// Package status provides a thread-safe status tracker for the whackamole
// daemon. It is read by HTTP handlers and MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/whackamole/internal/store"
)

// Config contains daemon configuration for display.
type Config struct {
	Chip       string
	ButtonPins []int
	LEDPins    []int
	DebounceMs int64
	PollMs     int64
	ReadMode   string
	Broker     string
	HTTPAddr   string
	MQTTPrefix string
}

// Source supplies live controller state.
type Source interface {
	Snapshot() store.Snapshot
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Store         store.Snapshot
	Running       bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. Indicator and press
// state is read live from the Source on every Snapshot.
type Tracker struct {
	src Source
	now func() time.Time

	mu            sync.RWMutex
	startTime     time.Time
	config        Config
	running       bool
	mqttConnected bool
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(src Source, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		src:       src,
		now:       time.Now,
		startTime: startTime,
		config:    cfg,
	}
}

// SetRunning records whether the controller is initialized.
func (t *Tracker) SetRunning(running bool) {
	t.mu.Lock()
	t.running = running
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.mqttConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := Snapshot{
		Running:       t.running,
		StartTime:     t.startTime,
		MQTTConnected: t.mqttConnected,
		Config:        t.config,
	}
	t.mu.RUnlock()
	if t.src != nil {
		s.Store = t.src.Snapshot()
	}
	s.Now = t.now()
	return s
}
