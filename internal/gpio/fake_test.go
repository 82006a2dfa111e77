package gpio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeChipRequestAndClose(t *testing.T) {
	c := NewFakeChip(8)

	in, err := c.RequestInput(2)
	require.NoError(t, err)
	out, err := c.RequestOutput(3, false)
	require.NoError(t, err)

	assert.Equal(t, 2, c.OpenLines())
	assert.True(t, c.IsOpen(2))
	assert.True(t, c.IsOpen(3))

	require.NoError(t, in.Close())
	require.NoError(t, out.Close())
	assert.Equal(t, 0, c.OpenLines())

	assert.Error(t, in.Close(), "double close should fail")
}

func TestFakeChipInvalidOffset(t *testing.T) {
	c := NewFakeChip(4)

	assert.False(t, c.Valid(4))
	assert.False(t, c.Valid(-1))
	_, err := c.RequestInput(4)
	assert.Error(t, err)
}

func TestFakeChipBusy(t *testing.T) {
	c := NewFakeChip(4)

	_, err := c.RequestInput(1)
	require.NoError(t, err)
	_, err = c.RequestOutput(1, false)
	assert.Error(t, err)
}

func TestFakeChipFailRequest(t *testing.T) {
	c := NewFakeChip(4)
	c.FailRequest[0] = errors.New("simulated busy")

	_, err := c.RequestOutput(0, false)
	assert.EqualError(t, err, "simulated busy")
	assert.Equal(t, 0, c.OpenLines())
}

func TestFakeChipOutputLevel(t *testing.T) {
	c := NewFakeChip(4)

	out, err := c.RequestOutput(1, true)
	require.NoError(t, err)

	on, err := c.Level(1)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, out.SetValue(false))
	v, err := out.Value()
	require.NoError(t, err)
	assert.False(t, v)

	c.FailSet[1] = errors.New("simulated write fault")
	assert.Error(t, out.SetValue(true))
	on, _ = c.Level(1)
	assert.False(t, on, "failed write must not change level")
}

func TestFakeChipWatchAndTrigger(t *testing.T) {
	c := NewFakeChip(4)
	in, err := c.RequestInput(2)
	require.NoError(t, err)

	assert.False(t, c.Trigger(2), "no handler before watch")

	var got []Edge
	w, err := in.Watch(func(e Edge) { got = append(got, e) })
	require.NoError(t, err)
	assert.Equal(t, 1, c.ActiveWatches())

	_, err = in.Watch(func(Edge) {})
	assert.Error(t, err, "second watch on same line should fail")

	assert.True(t, c.Trigger(2))
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Offset)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "watch close is idempotent")
	assert.Equal(t, 0, c.ActiveWatches())
	assert.False(t, c.Trigger(2))
	assert.Len(t, got, 1)
}

func TestFakeChipTriggerTimestamps(t *testing.T) {
	c := NewFakeChip(4)
	var got []Edge
	for _, off := range []int{1, 3} {
		in, err := c.RequestInput(off)
		require.NoError(t, err)
		_, err = in.Watch(func(e Edge) { got = append(got, e) })
		require.NoError(t, err)
	}

	c.Trigger(1)
	c.Trigger(0)
	c.Trigger(3)
	c.Trigger(1)

	require.Len(t, got, 3)
	assert.Equal(t, time.Microsecond, got[0].Timestamp)
	assert.Equal(t, 2*time.Microsecond, got[1].Timestamp)
	assert.Equal(t, 3*time.Microsecond, got[2].Timestamp)
	assert.Equal(t, []int{1, 3, 1}, []int{got[0].Offset, got[1].Offset, got[2].Offset})
}

func TestFakeChipFailWatch(t *testing.T) {
	c := NewFakeChip(4)
	c.FailWatch[3] = errors.New("simulated irq failure")
	in, err := c.RequestInput(3)
	require.NoError(t, err)

	_, err = in.Watch(func(Edge) {})
	assert.EqualError(t, err, "simulated irq failure")
	assert.Equal(t, 0, c.ActiveWatches())
}

func TestFakeChipClose(t *testing.T) {
	c := NewFakeChip(1)
	assert.False(t, c.Closed)
	require.NoError(t, c.Close())
	assert.True(t, c.Closed)
}
