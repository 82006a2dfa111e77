package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupCommand(t *testing.T) {
	tests := []struct {
		cmd    string
		ok     bool
		kind   ActionKind
		button ButtonIndex
	}{
		{"red_ON", true, ActionIndicatorOn, Red},
		{"blue_ON", true, ActionIndicatorOn, Blue},
		{"green_ON", true, ActionIndicatorOn, Green},
		{"yellow_ON", true, ActionIndicatorOn, Yellow},
		{"LED_OFF", true, ActionAllOff, 0},
		{"RED_ON", false, ActionNone, 0},
		{"red_on", false, ActionNone, 0},
		{"red_ON\n", false, ActionNone, 0},
		{"GAME_START", false, ActionNone, 0},
		{"", false, ActionNone, 0},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			a, ok := LookupCommand(tt.cmd)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, a.Kind)
			if tt.kind == ActionIndicatorOn {
				assert.Equal(t, tt.button, a.Button)
			}
		})
	}
}

func TestOnCommandMatchesVocabulary(t *testing.T) {
	for b := ButtonIndex(0); b < NumButtons; b++ {
		a, ok := LookupCommand(OnCommand(b))
		assert.True(t, ok, "button %d", b)
		assert.Equal(t, b, a.Button)
	}
}

func TestFormatEvent(t *testing.T) {
	assert.Equal(t, "Button 2 pressed", FormatEvent(Green))
	assert.Equal(t, "Button 0 pressed", FormatEvent(Red))
}

func TestParseEvent(t *testing.T) {
	b, ok := ParseEvent("Button 3 pressed")
	assert.True(t, ok)
	assert.Equal(t, Yellow, b)

	_, ok = ParseEvent("")
	assert.False(t, ok)

	_, ok = ParseEvent("Button 9 pressed")
	assert.False(t, ok, "out of range index")

	_, ok = ParseEvent("LED States - RED: 1, BLUE: 0, GREEN: 0, YELLOW: 0")
	assert.False(t, ok)
}

func TestFormatStatus(t *testing.T) {
	assert.Equal(t, "LED States - RED: 0, BLUE: 0, GREEN: 0, YELLOW: 0", FormatStatus(Indicators{}))
	assert.Equal(t, "LED States - RED: 1, BLUE: 0, GREEN: 1, YELLOW: 0",
		FormatStatus(Indicators{Red: true, Green: true}))
}

func TestButtonColor(t *testing.T) {
	assert.Equal(t, "red", Red.Color())
	assert.Equal(t, "yellow", Yellow.String())
	assert.Equal(t, "button7", ButtonIndex(7).Color())
	assert.False(t, ButtonIndex(-1).Valid())
	assert.False(t, ButtonIndex(NumButtons).Valid())
}

func TestPressCountsTotal(t *testing.T) {
	assert.Equal(t, 6, PressCounts{1, 2, 0, 3}.Total())
}
