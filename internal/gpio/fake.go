package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// FakeChip is a test double that tracks every line and watch it hands out,
// so tests can assert that nothing leaks.
type FakeChip struct {
	mu sync.Mutex

	// Lines is the number of valid offsets (0..Lines-1).
	Lines int

	// FailRequest, if set for an offset, is returned by RequestInput/RequestOutput.
	FailRequest map[int]error

	// FailWatch, if set for an offset, is returned by Input.Watch.
	FailWatch map[int]error

	// FailSet, if set for an offset, is returned by Output.SetValue.
	FailSet map[int]error

	// Closed tracks if Close was called.
	Closed bool

	inputs  map[int]*fakeInput
	outputs map[int]*fakeOutput
	watches map[int]EdgeHandler
	seq     time.Duration
}

// NewFakeChip creates a FakeChip with the given number of lines.
func NewFakeChip(lines int) *FakeChip {
	return &FakeChip{
		Lines:       lines,
		FailRequest: map[int]error{},
		FailWatch:   map[int]error{},
		FailSet:     map[int]error{},
		inputs:      map[int]*fakeInput{},
		outputs:     map[int]*fakeOutput{},
		watches:     map[int]EdgeHandler{},
	}
}

// Valid reports whether offset is within 0..Lines-1.
func (c *FakeChip) Valid(offset int) bool {
	return offset >= 0 && offset < c.Lines
}

// RequestInput claims offset as an input.
func (c *FakeChip) RequestInput(offset int) (Input, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.claim(offset); err != nil {
		return nil, err
	}
	in := &fakeInput{chip: c, offset: offset}
	c.inputs[offset] = in
	return in, nil
}

// RequestOutput claims offset as an output at the initial level.
func (c *FakeChip) RequestOutput(offset int, initial bool) (Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.claim(offset); err != nil {
		return nil, err
	}
	out := &fakeOutput{chip: c, offset: offset, value: initial}
	c.outputs[offset] = out
	return out, nil
}

func (c *FakeChip) claim(offset int) error {
	if !c.Valid(offset) {
		return fmt.Errorf("request pin %d: invalid offset", offset)
	}
	if err := c.FailRequest[offset]; err != nil {
		return err
	}
	if _, ok := c.inputs[offset]; ok {
		return fmt.Errorf("request pin %d: busy", offset)
	}
	if _, ok := c.outputs[offset]; ok {
		return fmt.Errorf("request pin %d: busy", offset)
	}
	return nil
}

// Close marks the chip as closed.
func (c *FakeChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// OpenLines returns the number of requested lines not yet closed.
func (c *FakeChip) OpenLines() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inputs) + len(c.outputs)
}

// ActiveWatches returns the number of registered edge handlers.
func (c *FakeChip) ActiveWatches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.watches)
}

// IsOpen reports whether offset is currently requested.
func (c *FakeChip) IsOpen(offset int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, in := c.inputs[offset]
	_, out := c.outputs[offset]
	return in || out
}

// Level returns the current level of an output line.
func (c *FakeChip) Level(offset int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.outputs[offset]
	if !ok {
		return false, fmt.Errorf("pin %d is not an open output", offset)
	}
	return out.value, nil
}

// Trigger delivers an edge on offset synchronously, as the event goroutine
// of a real chip would. It reports whether a handler was registered.
// Timestamps count delivered edges, one microsecond apart.
func (c *FakeChip) Trigger(offset int) bool {
	c.mu.Lock()
	h := c.watches[offset]
	if h != nil {
		c.seq += time.Microsecond
	}
	ts := c.seq
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(Edge{Offset: offset, Timestamp: ts})
	return true
}

type fakeInput struct {
	chip   *FakeChip
	offset int
	closed bool
}

func (in *fakeInput) Offset() int { return in.offset }

// Value reports the idle (pulled-up) level.
func (in *fakeInput) Value() (bool, error) {
	return true, nil
}

func (in *fakeInput) Watch(h EdgeHandler) (Watch, error) {
	c := in.chip
	c.mu.Lock()
	defer c.mu.Unlock()
	if in.closed {
		return nil, errors.New("watch closed line")
	}
	if err := c.FailWatch[in.offset]; err != nil {
		return nil, err
	}
	if _, ok := c.watches[in.offset]; ok {
		return nil, fmt.Errorf("watch pin %d: already watched", in.offset)
	}
	c.watches[in.offset] = h
	return &fakeWatch{chip: c, offset: in.offset}, nil
}

func (in *fakeInput) Close() error {
	c := in.chip
	c.mu.Lock()
	defer c.mu.Unlock()
	if in.closed {
		return fmt.Errorf("close pin %d: already closed", in.offset)
	}
	in.closed = true
	delete(c.inputs, in.offset)
	return nil
}

type fakeWatch struct {
	chip   *FakeChip
	offset int
	once   sync.Once
}

func (w *fakeWatch) Close() error {
	w.once.Do(func() {
		w.chip.mu.Lock()
		delete(w.chip.watches, w.offset)
		w.chip.mu.Unlock()
	})
	return nil
}

type fakeOutput struct {
	chip   *FakeChip
	offset int
	value  bool
	closed bool
}

func (o *fakeOutput) Offset() int { return o.offset }

func (o *fakeOutput) Value() (bool, error) {
	o.chip.mu.Lock()
	defer o.chip.mu.Unlock()
	return o.value, nil
}

func (o *fakeOutput) SetValue(on bool) error {
	c := o.chip
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.closed {
		return fmt.Errorf("set pin %d: closed", o.offset)
	}
	if err := c.FailSet[o.offset]; err != nil {
		return err
	}
	o.value = on
	return nil
}

func (o *fakeOutput) Close() error {
	c := o.chip
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.closed {
		return fmt.Errorf("close pin %d: already closed", o.offset)
	}
	o.closed = true
	delete(c.outputs, o.offset)
	return nil
}
