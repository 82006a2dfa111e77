//go:build !linux

package gpio

import "errors"

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// NewRealChip returns an error on non-Linux platforms.
func NewRealChip(name string) (*RealChip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Valid always reports false on non-Linux platforms.
func (c *RealChip) Valid(offset int) bool {
	return false
}

// RequestInput is not implemented on non-Linux platforms.
func (c *RealChip) RequestInput(offset int) (Input, error) {
	return nil, errors.New("gpio: not supported")
}

// RequestOutput is not implemented on non-Linux platforms.
func (c *RealChip) RequestOutput(offset int, initial bool) (Output, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is a no-op on non-Linux platforms.
func (c *RealChip) Close() error {
	return nil
}
