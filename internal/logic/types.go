// Package logic contains the pure rules of the button/indicator controller:
// button identities, the debounce gate, the command vocabulary and the
// response formats.
// This package has NO external dependencies (no GPIO, MQTT or OS).
// Time is always injectable via time.Time parameters.
package logic

import "fmt"

// NumButtons is the number of button/indicator pairs.
const NumButtons = 4

// ButtonIndex identifies a button/indicator pair, 0..NumButtons-1.
type ButtonIndex int

// Button indices in the fixed color order shared with clients.
const (
	Red ButtonIndex = iota
	Blue
	Green
	Yellow
)

var colorNames = [NumButtons]string{"red", "blue", "green", "yellow"}

// Valid reports whether b names a configured button.
func (b ButtonIndex) Valid() bool {
	return b >= 0 && b < NumButtons
}

// Color returns the lower-case color name, e.g. "green".
func (b ButtonIndex) Color() string {
	if !b.Valid() {
		return fmt.Sprintf("button%d", int(b))
	}
	return colorNames[b]
}

func (b ButtonIndex) String() string {
	return b.Color()
}

// Indicators holds the on/off state of every indicator line.
type Indicators [NumButtons]bool

// PressCounts tracks accepted presses per button since startup.
type PressCounts [NumButtons]int

// Total returns the sum of all presses.
func (c PressCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}
