package internal

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/whackamole/internal/channel"
	"github.com/sweeney/whackamole/internal/controller"
	"github.com/sweeney/whackamole/internal/gpio"
	"github.com/sweeney/whackamole/internal/logic"
	"github.com/sweeney/whackamole/internal/mqtt"
	"github.com/sweeney/whackamole/internal/status"
	"github.com/sweeney/whackamole/internal/web"
)

var pins = controller.Pins{
	Buttons: [logic.NumButtons]int{0, 1, 2, 3},
	LEDs:    [logic.NumButtons]int{4, 5, 6, 7},
}

type clock struct {
	mu  sync.Mutex
	now time.Time
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

func start(t *testing.T, chip *gpio.FakeChip) (*controller.Controller, *clock) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	ctrl := controller.New(chip, controller.Options{Pins: pins, Now: clk.Now, Logger: logger})
	require.NoError(t, ctrl.Init())
	t.Cleanup(func() { ctrl.Shutdown() })
	return ctrl, clk
}

// press fires an edge on button b after the debounce window has passed.
func press(chip *gpio.FakeChip, clk *clock, b logic.ButtonIndex) {
	clk.Advance(logic.DefaultRefractory + time.Millisecond)
	chip.Trigger(pins.Buttons[b])
}

// TestIntegrationGreenPressScenario: an edge on green flips its indicator,
// an event read reports it once, and the next read is empty.
func TestIntegrationGreenPressScenario(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	ctrl, clk := start(t, chip)
	ch := channel.New(ctrl.Store(), channel.ModeEvent, nil)

	press(chip, clk, logic.Green)

	assert.Equal(t, logic.Indicators{logic.Green: true}, ctrl.Store().SnapshotStates())
	on, err := chip.Level(pins.LEDs[logic.Green])
	require.NoError(t, err)
	assert.True(t, on, "green LED line driven high")

	resp, err := ch.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, "Button 2 pressed", resp)

	resp, err = ch.ReadResponse()
	require.NoError(t, err)
	assert.Empty(t, resp)
}

// TestIntegrationInitFailureReleasesEverything: the third button's watch
// fails, so the first two buttons are fully released.
func TestIntegrationInitFailureReleasesEverything(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	chip.FailWatch[pins.Buttons[logic.Green]] = errors.New("irq busy")
	logger, _ := logtest.NewNullLogger()
	ctrl := controller.New(chip, controller.Options{Pins: pins, Logger: logger})

	err := ctrl.Init()
	require.Error(t, err)
	assert.ErrorIs(t, err, controller.ErrResourceAcquisition)
	assert.False(t, ctrl.Running())
	assert.Zero(t, chip.OpenLines())
	assert.Zero(t, chip.ActiveWatches())

	// A later edge on a released line reaches nobody.
	assert.False(t, chip.Trigger(pins.Buttons[logic.Red]))
	assert.Equal(t, logic.Indicators{}, ctrl.Store().SnapshotStates())
}

// TestIntegrationDebounceAcrossButtons: presses closer than the refractory
// window are dropped regardless of which button fired.
func TestIntegrationDebounceAcrossButtons(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	ctrl, clk := start(t, chip)
	ch := channel.New(ctrl.Store(), channel.ModeEvent, nil)

	press(chip, clk, logic.Red)
	clk.Advance(100 * time.Millisecond)
	chip.Trigger(pins.Buttons[logic.Blue])
	clk.Advance(149 * time.Millisecond)
	chip.Trigger(pins.Buttons[logic.Red])

	assert.Equal(t, logic.Indicators{logic.Red: true}, ctrl.Store().SnapshotStates())
	resp, err := ch.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, "Button 0 pressed", resp)

	clk.Advance(2 * time.Millisecond)
	chip.Trigger(pins.Buttons[logic.Blue])
	assert.Equal(t, logic.Indicators{logic.Red: true, logic.Blue: true}, ctrl.Store().SnapshotStates())
}

// TestIntegrationEventsNeverRepeat interleaves presses and reads: each read
// yields the latest unreturned press or nothing.
func TestIntegrationEventsNeverRepeat(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	ctrl, clk := start(t, chip)
	ch := channel.New(ctrl.Store(), channel.ModeEvent, nil)

	seq := []logic.ButtonIndex{logic.Red, logic.Yellow, logic.Blue, logic.Green, logic.Red}
	var got []string
	for _, b := range seq {
		press(chip, clk, b)
		for i := 0; i < 2; i++ {
			resp, err := ch.ReadResponse()
			require.NoError(t, err)
			got = append(got, resp)
		}
	}
	assert.Equal(t, []string{
		"Button 0 pressed", "",
		"Button 3 pressed", "",
		"Button 1 pressed", "",
		"Button 2 pressed", "",
		"Button 0 pressed", "",
	}, got)

	snap := ctrl.Store().Snapshot()
	assert.Equal(t, 5, snap.Presses.Total())
	assert.Zero(t, snap.Overwritten)
}

// TestIntegrationOverwrittenPress: an unread press replaced by a newer one
// is counted.
func TestIntegrationOverwrittenPress(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	ctrl, clk := start(t, chip)
	ch := channel.New(ctrl.Store(), channel.ModeEvent, nil)

	press(chip, clk, logic.Red)
	press(chip, clk, logic.Yellow)

	resp, err := ch.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, "Button 3 pressed", resp)
	assert.Equal(t, 1, ctrl.Store().Snapshot().Overwritten)
}

// TestIntegrationCommandsAndStatus covers LED_OFF idempotence and the
// red_ON status round trip.
func TestIntegrationCommandsAndStatus(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	ctrl, clk := start(t, chip)
	st := channel.New(ctrl.Store(), channel.ModeStatus, nil)

	press(chip, clk, logic.Blue)
	for i := 0; i < 2; i++ {
		_, err := st.Write([]byte(logic.CmdAllOff))
		require.NoError(t, err)
		assert.Equal(t, logic.Indicators{}, ctrl.Store().SnapshotStates())
	}

	_, err := st.Write([]byte(logic.CmdRedOn))
	require.NoError(t, err)
	resp, err := st.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, "LED States - RED: 1, BLUE: 0, GREEN: 0, YELLOW: 0", resp)

	for b := logic.ButtonIndex(0); b < logic.NumButtons; b++ {
		on, err := chip.Level(pins.LEDs[b])
		require.NoError(t, err)
		assert.Equal(t, b == logic.Red, on, b.Color())
	}

	_, err = st.Write([]byte(strings.Repeat("x", channel.MaxCommandLen+1)))
	assert.ErrorIs(t, err, channel.ErrInvalidRequest)
	n, err := st.Write([]byte(strings.Repeat("x", channel.MaxCommandLen)))
	require.NoError(t, err)
	assert.Equal(t, channel.MaxCommandLen, n)
	assert.Equal(t, logic.Indicators{logic.Red: true}, ctrl.Store().SnapshotStates())
}

// TestIntegrationMQTTCommand delivers a command over the fake broker and
// checks it reaches the hardware.
func TestIntegrationMQTTCommand(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	ctrl, _ := start(t, chip)
	ch := channel.New(ctrl.Store(), channel.ModeEvent, nil)

	pub := mqtt.NewFakePublisher()
	var rejected []error
	pub.OnCommand = func(p []byte) {
		if _, err := ch.Write(p); err != nil {
			rejected = append(rejected, err)
		}
	}

	require.True(t, pub.Deliver([]byte(logic.CmdYellowOn)))
	on, err := chip.Level(pins.LEDs[logic.Yellow])
	require.NoError(t, err)
	assert.True(t, on)

	pub.Deliver([]byte("this command is far too long"))
	require.Len(t, rejected, 1)
	assert.ErrorIs(t, rejected[0], channel.ErrInvalidRequest)
}

// TestIntegrationHTTPChannel drives the controller through the status
// server the way the score-keeping client does.
func TestIntegrationHTTPChannel(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	ctrl, clk := start(t, chip)
	logger, _ := logtest.NewNullLogger()

	tracker := status.NewTracker(ctrl.Store(), clk.Now(), status.Config{Chip: "fake", ReadMode: "event"})
	tracker.SetRunning(true)
	srv := web.New(":0", tracker, channel.New(ctrl.Store(), channel.ModeEvent, logger), logger)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/channel", "text/plain", strings.NewReader(logic.CmdGreenOn))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	press(chip, clk, logic.Blue)

	resp, err = http.Get(ts.URL + "/channel")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "Button 1 pressed", string(body))

	resp, err = http.Get(ts.URL + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))
	assert.True(t, sj.Status.LEDs["green"])
	assert.True(t, sj.Status.LEDs["blue"])
	assert.False(t, sj.Status.LEDs["red"])
	assert.Nil(t, sj.Status.Pending, "press already consumed")
	assert.Equal(t, 1, sj.Status.Presses["blue"])
}

// TestIntegrationShutdownStopsEdges: after shutdown no edge reaches the
// store and every line is back with the chip.
func TestIntegrationShutdownStopsEdges(t *testing.T) {
	chip := gpio.NewFakeChip(8)
	ctrl, clk := start(t, chip)

	press(chip, clk, logic.Red)
	require.NoError(t, ctrl.Shutdown())
	assert.Zero(t, chip.OpenLines())

	clk.Advance(time.Second)
	assert.False(t, chip.Trigger(pins.Buttons[logic.Green]))
	assert.Equal(t, 1, ctrl.Store().Snapshot().Presses.Total())
}
