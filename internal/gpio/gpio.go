// Package gpio provides button and indicator lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// DefaultChip is the GPIO chip used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Pin definitions (BCM numbering), indexed red, blue, green, yellow.
var (
	DefaultButtonPins = [4]int{18, 23, 12, 16}
	DefaultLEDPins    = [4]int{4, 17, 22, 6}
)

// Edge is a qualifying transition on an input line.
type Edge struct {
	Offset int
	// Timestamp is the kernel event time; only ordering within a line is meaningful.
	Timestamp time.Duration
}

// EdgeHandler is called for every edge on a watched input line.
// It runs on the provider's event goroutine, never on the caller's.
type EdgeHandler func(Edge)

// Chip hands out input and output lines.
type Chip interface {
	// Valid reports whether offset names a line on this chip.
	Valid(offset int) bool

	// RequestInput claims offset as an edge-capable input.
	RequestInput(offset int) (Input, error)

	// RequestOutput claims offset as an output driven to initial.
	RequestOutput(offset int, initial bool) (Output, error)

	// Close releases the chip. Lines must be closed first.
	Close() error
}

// Input is a button line.
type Input interface {
	Offset() int
	Value() (bool, error)

	// Watch registers h for edges on this line. At most one watch may be
	// active per line.
	Watch(h EdgeHandler) (Watch, error)

	Close() error
}

// Output is an indicator line.
type Output interface {
	Offset() int
	Value() (bool, error)
	SetValue(on bool) error
	Close() error
}

// Watch is an active edge registration.
type Watch interface {
	// Close unregisters the handler. No calls are made after Close returns.
	Close() error
}
