// Package controller wires button inputs, indicator outputs, the debounce
// gate and the shared store together, and owns their lifecycle.
package controller

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/whackamole/internal/gpio"
	"github.com/sweeney/whackamole/internal/logic"
	"github.com/sweeney/whackamole/internal/store"
)

var (
	// ErrConfiguration is returned by Init when a line number is invalid.
	// No line is requested in that case.
	ErrConfiguration = errors.New("invalid line configuration")

	// ErrResourceAcquisition is returned by Init when a line or edge
	// registration cannot be acquired. Everything acquired so far is released.
	ErrResourceAcquisition = errors.New("resource acquisition failed")

	// ErrRunning is returned by Init on a controller that is already running.
	ErrRunning = errors.New("controller already running")
)

// Pins maps each button to its input and indicator line offsets.
type Pins struct {
	Buttons [logic.NumButtons]int
	LEDs    [logic.NumButtons]int
}

// DefaultPins returns the Raspberry Pi wiring.
func DefaultPins() Pins {
	return Pins{Buttons: gpio.DefaultButtonPins, LEDs: gpio.DefaultLEDPins}
}

// Options configures a Controller.
type Options struct {
	Pins       Pins
	Refractory time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

type button struct {
	input  gpio.Input
	output gpio.Output
	watch  gpio.Watch
}

// Controller owns the line pairs of every button.
type Controller struct {
	chip  gpio.Chip
	pins  Pins
	gate  *logic.Gate
	store *store.Store
	now   func() time.Time
	log   logrus.FieldLogger

	mu      sync.Mutex
	buttons [logic.NumButtons]button
	running bool
}

// New creates a Controller. Nothing is requested until Init.
func New(chip gpio.Chip, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Refractory == 0 {
		opts.Refractory = logic.DefaultRefractory
	}
	return &Controller{
		chip:  chip,
		pins:  opts.Pins,
		gate:  logic.NewGate(opts.Refractory, opts.Now()),
		store: store.New(),
		now:   opts.Now,
		log:   opts.Logger,
	}
}

// Store returns the shared store read by command channels.
func (c *Controller) Store() *store.Store {
	return c.store
}

// Gate returns the debounce gate shared by all buttons.
func (c *Controller) Gate() *logic.Gate {
	return c.gate
}

// Pins returns the line mapping.
func (c *Controller) Pins() Pins {
	return c.pins
}

// Init requests every line pair in index order and registers the edge
// dispatcher for each button. Indicators start off.
//
// All line numbers are validated before anything is requested. On any
// failure every line and registration acquired by this call is released in
// reverse order before Init returns.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrRunning
	}

	for b := logic.ButtonIndex(0); b < logic.NumButtons; b++ {
		btn, led := c.pins.Buttons[b], c.pins.LEDs[b]
		if !c.chip.Valid(btn) || !c.chip.Valid(led) {
			c.log.WithFields(logrus.Fields{"button": int(b), "btn_pin": btn, "led_pin": led}).
				Error("invalid gpio")
			return fmt.Errorf("%w: %s button pin %d or led pin %d", ErrConfiguration, b.Color(), btn, led)
		}
	}

	for b := logic.ButtonIndex(0); b < logic.NumButtons; b++ {
		if err := c.setup(b); err != nil {
			c.log.WithError(err).WithField("button", int(b)).Error("button setup failed, releasing")
			return errors.Join(
				fmt.Errorf("%w: %s button: %w", ErrResourceAcquisition, b.Color(), err),
				c.unwind(b),
			)
		}
		c.log.WithFields(logrus.Fields{
			"button":  int(b),
			"color":   b.Color(),
			"btn_pin": c.pins.Buttons[b],
			"led_pin": c.pins.LEDs[b],
		}).Info("button ready")
	}
	c.running = true
	return nil
}

// setup acquires one button's resources. On failure, whatever it acquired
// for this button is already released. Caller holds c.mu.
func (c *Controller) setup(b logic.ButtonIndex) error {
	in, err := c.chip.RequestInput(c.pins.Buttons[b])
	if err != nil {
		return fmt.Errorf("request input: %w", err)
	}
	out, err := c.chip.RequestOutput(c.pins.LEDs[b], false)
	if err != nil {
		return errors.Join(fmt.Errorf("request output: %w", err), in.Close())
	}
	if err := c.store.Attach(b, out, false); err != nil {
		return errors.Join(err, out.Close(), in.Close())
	}

	idx := b
	w, err := in.Watch(func(gpio.Edge) { c.HandleEdge(idx) })
	if err != nil {
		c.store.Detach(b)
		return errors.Join(fmt.Errorf("register edge handler: %w", err), out.Close(), in.Close())
	}
	c.buttons[b] = button{input: in, output: out, watch: w}
	return nil
}

// unwind releases buttons [0, upto) in reverse order. Caller holds c.mu.
func (c *Controller) unwind(upto logic.ButtonIndex) error {
	var errs []error
	for b := upto - 1; b >= 0; b-- {
		if err := c.release(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// release frees one button: registration first, then indicator, then input.
func (c *Controller) release(b logic.ButtonIndex) error {
	btn := c.buttons[b]
	c.buttons[b] = button{}
	var errs []error
	if btn.watch != nil {
		if err := btn.watch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("unregister %s: %w", b.Color(), err))
		}
	}
	c.store.Detach(b)
	if btn.output != nil {
		if err := btn.output.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release %s indicator: %w", b.Color(), err))
		}
	}
	if btn.input != nil {
		if err := btn.input.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release %s button: %w", b.Color(), err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown releases every button in reverse index order. It is a no-op on a
// controller that is not running.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	err := c.unwind(logic.NumButtons)
	if err != nil {
		c.log.WithError(err).Warn("shutdown incomplete")
	} else {
		c.log.Info("all buttons released")
	}
	return err
}

// Running reports whether Init succeeded and Shutdown has not been called.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
