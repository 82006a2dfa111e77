package logic

import (
	"fmt"
	"regexp"
	"strconv"
)

// ActionKind is what a recognized command does.
type ActionKind int

const (
	// ActionNone is the result for unrecognized commands.
	ActionNone ActionKind = iota
	// ActionIndicatorOn switches a single indicator on.
	ActionIndicatorOn
	// ActionAllOff switches every indicator off.
	ActionAllOff
)

// Action is a parsed command.
type Action struct {
	Kind   ActionKind
	Button ButtonIndex // ActionIndicatorOn only
}

// Command strings, matched exactly and case-sensitively.
const (
	CmdRedOn    = "red_ON"
	CmdBlueOn   = "blue_ON"
	CmdGreenOn  = "green_ON"
	CmdYellowOn = "yellow_ON"
	CmdAllOff   = "LED_OFF"
)

// Commands sent by clients that carry no meaning for the controller.
const (
	CmdGameStart = "GAME_START"
	CmdGameStop  = "GAME_STOP"
)

var commands = map[string]Action{
	CmdRedOn:    {Kind: ActionIndicatorOn, Button: Red},
	CmdBlueOn:   {Kind: ActionIndicatorOn, Button: Blue},
	CmdGreenOn:  {Kind: ActionIndicatorOn, Button: Green},
	CmdYellowOn: {Kind: ActionIndicatorOn, Button: Yellow},
	CmdAllOff:   {Kind: ActionAllOff},
}

// LookupCommand maps a command string to its action. Unknown commands yield
// ActionNone and ok=false.
func LookupCommand(cmd string) (Action, bool) {
	a, ok := commands[cmd]
	return a, ok
}

// OnCommand returns the command that switches b's indicator on.
func OnCommand(b ButtonIndex) string {
	return b.Color() + "_ON"
}

// FormatEvent renders a press as read by event-mode clients.
func FormatEvent(b ButtonIndex) string {
	return fmt.Sprintf("Button %d pressed", int(b))
}

var eventRe = regexp.MustCompile(`Button (\d+) pressed`)

// ParseEvent extracts the button index from an event response.
func ParseEvent(s string) (ButtonIndex, bool) {
	m := eventRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	b := ButtonIndex(n)
	if !b.Valid() {
		return 0, false
	}
	return b, true
}

// FormatStatus renders indicator states as read by status-mode clients.
func FormatStatus(s Indicators) string {
	return fmt.Sprintf("LED States - RED: %d, BLUE: %d, GREEN: %d, YELLOW: %d",
		bit(s[Red]), bit(s[Blue]), bit(s[Green]), bit(s[Yellow]))
}

func bit(on bool) int {
	if on {
		return 1
	}
	return 0
}
