package controller

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/whackamole/internal/gpio"
	"github.com/sweeney/whackamole/internal/logic"
)

// testPins uses offsets 0..3 for buttons and 4..7 for LEDs.
var testPins = Pins{
	Buttons: [logic.NumButtons]int{0, 1, 2, 3},
	LEDs:    [logic.NumButtons]int{4, 5, 6, 7},
}

// clock is a virtual clock advanced explicitly by tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestController(t *testing.T, chip *gpio.FakeChip) (*Controller, *clock, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	clk := newClock()
	c := New(chip, Options{Pins: testPins, Now: clk.Now, Logger: logger})
	return c, clk, hook
}

func TestInitAcquiresAllLines(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	c, _, _ := newTestController(t, chip)

	require.NoError(t, c.Init())
	assert.True(t, c.Running())
	assert.Equal(t, 8, chip.OpenLines())
	assert.Equal(t, 4, chip.ActiveWatches())
	for _, led := range testPins.LEDs {
		on, err := chip.Level(led)
		require.NoError(t, err)
		assert.False(t, on, "indicator %d should start off", led)
	}

	assert.ErrorIs(t, c.Init(), ErrRunning)

	require.NoError(t, c.Shutdown())
	assert.False(t, c.Running())
	assert.Equal(t, 0, chip.OpenLines())
	assert.Equal(t, 0, chip.ActiveWatches())

	require.NoError(t, c.Shutdown(), "second shutdown is a no-op")
}

func TestInitInvalidLineRequestsNothing(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	logger, _ := logtest.NewNullLogger()
	pins := testPins
	pins.LEDs[3] = 42
	c := New(chip, Options{Pins: pins, Logger: logger})

	err := c.Init()
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.NotErrorIs(t, err, ErrResourceAcquisition)
	assert.False(t, c.Running())
	assert.Equal(t, 0, chip.OpenLines())
}

func TestInitWatchFailureUnwinds(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	chip.FailWatch[testPins.Buttons[2]] = errors.New("simulated irq failure")
	c, _, hook := newTestController(t, chip)

	err := c.Init()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResourceAcquisition)
	assert.False(t, c.Running())

	assert.Equal(t, 0, chip.OpenLines(), "every line acquired before the failure is released")
	assert.Equal(t, 0, chip.ActiveWatches(), "every registration before the failure is released")
	for i := 0; i < 3; i++ {
		assert.False(t, chip.IsOpen(testPins.Buttons[i]))
		assert.False(t, chip.IsOpen(testPins.LEDs[i]))
	}

	found := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "button setup failed, releasing" {
			found = true
		}
	}
	assert.True(t, found, "setup failure should be logged")

	// The same controller can be initialized once the fault clears.
	delete(chip.FailWatch, testPins.Buttons[2])
	require.NoError(t, c.Init())
	require.NoError(t, c.Shutdown())
}

func TestInitRequestFailureUnwinds(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	chip.FailRequest[testPins.LEDs[1]] = errors.New("simulated busy")
	c, _, _ := newTestController(t, chip)

	err := c.Init()
	assert.ErrorIs(t, err, ErrResourceAcquisition)
	assert.Equal(t, 0, chip.OpenLines())
	assert.Equal(t, 0, chip.ActiveWatches())
}

func TestEdgeTogglesAndRecords(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	c, clk, _ := newTestController(t, chip)
	require.NoError(t, c.Init())
	defer c.Shutdown()

	clk.Advance(time.Second)
	require.True(t, chip.Trigger(testPins.Buttons[logic.Green]))

	assert.Equal(t, logic.Indicators{logic.Green: true}, c.Store().SnapshotStates())
	on, err := chip.Level(testPins.LEDs[logic.Green])
	require.NoError(t, err)
	assert.True(t, on)

	b, ok := c.Store().DrainEvent()
	require.True(t, ok)
	assert.Equal(t, logic.Green, b)
}

func TestEdgeDebounceAcrossButtons(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	c, clk, hook := newTestController(t, chip)
	require.NoError(t, c.Init())
	defer c.Shutdown()

	clk.Advance(time.Second)
	chip.Trigger(testPins.Buttons[logic.Red])
	clk.Advance(100 * time.Millisecond)
	chip.Trigger(testPins.Buttons[logic.Blue]) // inside red's window
	chip.Trigger(testPins.Buttons[logic.Red])  // same button, inside window

	assert.Equal(t, logic.Indicators{logic.Red: true}, c.Store().SnapshotStates())
	b, ok := c.Store().DrainEvent()
	require.True(t, ok)
	assert.Equal(t, logic.Red, b)
	_, ok = c.Store().DrainEvent()
	assert.False(t, ok)

	debounced := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "edge debounced" {
			debounced++
		}
	}
	assert.Equal(t, 2, debounced)

	clk.Advance(200 * time.Millisecond)
	chip.Trigger(testPins.Buttons[logic.Blue])
	assert.Equal(t, logic.Indicators{logic.Red: true, logic.Blue: true}, c.Store().SnapshotStates())
}

func TestEdgeWriteFailureDropped(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	c, clk, hook := newTestController(t, chip)
	require.NoError(t, c.Init())
	defer c.Shutdown()

	chip.FailSet[testPins.LEDs[logic.Yellow]] = errors.New("simulated write fault")
	clk.Advance(time.Second)
	chip.Trigger(testPins.Buttons[logic.Yellow])

	assert.Equal(t, logic.Indicators{}, c.Store().SnapshotStates())
	_, ok := c.Store().DrainEvent()
	assert.False(t, ok)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "edge dropped", entry.Message)
	assert.Equal(t, "yellow", entry.Data["color"])
}

func TestEdgeToggleTracksLineLevel(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	c, clk, _ := newTestController(t, chip)
	require.NoError(t, c.Init())
	defer c.Shutdown()

	led := testPins.LEDs[logic.Blue]
	for i := 0; i < 5; i++ {
		if i == 2 {
			chip.FailSet[led] = errors.New("simulated write fault")
		} else {
			delete(chip.FailSet, led)
		}
		clk.Advance(time.Second)
		chip.Trigger(testPins.Buttons[logic.Blue])

		on, err := chip.Level(led)
		require.NoError(t, err)
		assert.Equal(t, on, c.Store().SnapshotStates()[logic.Blue], "press %d", i)
	}
	on, err := chip.Level(led)
	require.NoError(t, err)
	assert.False(t, on, "four successful toggles")
}

func TestNoEdgesAfterShutdown(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	c, clk, _ := newTestController(t, chip)
	require.NoError(t, c.Init())
	require.NoError(t, c.Shutdown())

	clk.Advance(time.Second)
	assert.False(t, chip.Trigger(testPins.Buttons[0]), "handler must be unregistered")
}

func TestDefaultPins(t *testing.T) {
	p := DefaultPins()
	assert.Equal(t, [logic.NumButtons]int{18, 23, 12, 16}, p.Buttons)
	assert.Equal(t, [logic.NumButtons]int{4, 17, 22, 6}, p.LEDs)
}
