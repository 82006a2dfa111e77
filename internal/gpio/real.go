//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "whackamole"

// RealChip hands out lines on an actual GPIO character device.
type RealChip struct {
	chip *gpiocdev.Chip
}

// NewRealChip opens the named chip, e.g. "gpiochip0".
func NewRealChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealChip{chip: chip}, nil
}

// Valid reports whether offset is within the chip's line range.
func (c *RealChip) Valid(offset int) bool {
	return offset >= 0 && offset < c.chip.Lines()
}

// RequestInput requests the line as input with pull-up and falling-edge
// detection. Buttons pull the line low when pressed.
// Edges arriving before Watch is called are discarded.
func (c *RealChip) RequestInput(offset int) (Input, error) {
	in := &realInput{}
	line, err := c.chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(in.dispatch),
	)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", offset, err)
	}
	in.line = line
	return in, nil
}

// RequestOutput requests the line as an output at the given level.
func (c *RealChip) RequestOutput(offset int, initial bool) (Output, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(level(initial)))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	return &realOutput{line: line}, nil
}

// Close releases the chip.
func (c *RealChip) Close() error {
	if err := c.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

type realInput struct {
	line *gpiocdev.Line

	mu      sync.RWMutex
	handler EdgeHandler
}

func (in *realInput) dispatch(evt gpiocdev.LineEvent) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.handler != nil {
		in.handler(Edge{Offset: evt.Offset, Timestamp: evt.Timestamp})
	}
}

func (in *realInput) Offset() int {
	return in.line.Offset()
}

func (in *realInput) Value() (bool, error) {
	v, err := in.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", in.line.Offset(), err)
	}
	return v != 0, nil
}

func (in *realInput) Watch(h EdgeHandler) (Watch, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.handler != nil {
		return nil, fmt.Errorf("watch pin %d: already watched", in.line.Offset())
	}
	in.handler = h
	return &realWatch{in: in}, nil
}

// Close reconfigures the line to a plain input before releasing it, matching
// the Pi boot default.
func (in *realInput) Close() error {
	var errs []error
	if err := in.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithoutEdges); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", in.line.Offset(), err))
	}
	if err := in.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", in.line.Offset(), err))
	}
	return errors.Join(errs...)
}

type realWatch struct {
	in   *realInput
	once sync.Once
}

func (w *realWatch) Close() error {
	w.once.Do(func() {
		w.in.mu.Lock()
		w.in.handler = nil
		w.in.mu.Unlock()
	})
	return nil
}

type realOutput struct {
	line *gpiocdev.Line
}

func (o *realOutput) Offset() int {
	return o.line.Offset()
}

func (o *realOutput) Value() (bool, error) {
	v, err := o.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", o.line.Offset(), err)
	}
	return v != 0, nil
}

func (o *realOutput) SetValue(on bool) error {
	if err := o.line.SetValue(level(on)); err != nil {
		return fmt.Errorf("set pin %d: %w", o.line.Offset(), err)
	}
	return nil
}

// Close drives the indicator off and reverts the line to an input.
func (o *realOutput) Close() error {
	var errs []error
	if err := o.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("clear pin %d: %w", o.line.Offset(), err))
	}
	if err := o.line.Reconfigure(gpiocdev.AsInput); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", o.line.Offset(), err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", o.line.Offset(), err))
	}
	return errors.Join(errs...)
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
