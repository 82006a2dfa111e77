package mqtt

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	// Presses contains all button presses that were published.
	Presses []PressEvent

	// States contains all indicator state events that were published.
	States []StateEvent

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// Payloads contains every JSON payload in publish order.
	Payloads [][]byte

	// PublishError, if set, will be returned by PublishPress and PublishState.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// OnCommand is the handler inbound commands are delivered to.
	OnCommand CommandHandler
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishPress records the press.
func (f *FakePublisher) PublishPress(event PressEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPressPayload(event)
	if err != nil {
		return err
	}
	f.Presses = append(f.Presses, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishState records the state event.
func (f *FakePublisher) PublishState(event StateEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatStatePayload(event)
	if err != nil {
		return err
	}
	f.States = append(f.States, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Deliver simulates a message arriving on the command topic.
// It reports whether a handler was set.
func (f *FakePublisher) Deliver(payload []byte) bool {
	if f.OnCommand == nil {
		return false
	}
	f.OnCommand(payload)
	return true
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded events and injected errors.
func (f *FakePublisher) Reset() {
	f.Presses = nil
	f.States = nil
	f.SystemEvents = nil
	f.Payloads = nil
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Closed = false
	f.Connected = false
}
