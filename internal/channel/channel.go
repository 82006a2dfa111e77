// Package channel implements the textual command channel: writes switch
// indicators, reads return either the pending press or the indicator states.
//
// The channel behaves like a small pseudo-file. A read at position 0 yields
// one complete response; any later position yields end of data. Responses
// are never truncated.
package channel

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/whackamole/internal/logic"
	"github.com/sweeney/whackamole/internal/store"
)

// MaxCommandLen is the longest accepted command in bytes.
const MaxCommandLen = 19

// MaxResponseLen is the size of the response buffer used by sessions.
const MaxResponseLen = 100

var (
	// ErrInvalidRequest is returned for commands longer than MaxCommandLen.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTransferFault is returned when the command cannot be copied in.
	ErrTransferFault = errors.New("transfer fault")

	// ErrWouldOverflow is returned when a response does not fit the
	// caller's buffer. Nothing is written and nothing is consumed.
	ErrWouldOverflow = errors.New("response would overflow buffer")
)

// Mode selects what a read returns. A channel has exactly one mode.
type Mode int

const (
	// ModeEvent reads drain the pending press: "Button <n> pressed".
	ModeEvent Mode = iota
	// ModeStatus reads report every indicator:
	// "LED States - RED: <0|1>, BLUE: <0|1>, GREEN: <0|1>, YELLOW: <0|1>".
	ModeStatus
)

func (m Mode) String() string {
	switch m {
	case ModeEvent:
		return "event"
	case ModeStatus:
		return "status"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses "event" or "status".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "event", "":
		return ModeEvent, nil
	case "status":
		return ModeStatus, nil
	}
	return 0, fmt.Errorf("unknown read mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Channel is safe for concurrent use; all shared state lives in the store.
type Channel struct {
	store *store.Store
	mode  Mode
	log   logrus.FieldLogger
}

// New creates a Channel over s. A nil logger uses the logrus standard logger.
func New(s *store.Store, mode Mode, log logrus.FieldLogger) *Channel {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Channel{store: s, mode: mode, log: log.WithField("mode", mode.String())}
}

// Mode returns the read mode.
func (c *Channel) Mode() Mode {
	return c.mode
}

// Write executes one command. Unrecognized commands are consumed without
// effect. The returned count is len(cmd) on success.
func (c *Channel) Write(cmd []byte) (int, error) {
	if len(cmd) > MaxCommandLen {
		return 0, fmt.Errorf("%w: command is %d bytes, max %d", ErrInvalidRequest, len(cmd), MaxCommandLen)
	}
	// Commands are compared as NUL-terminated strings.
	s := string(cmd)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}

	action, ok := logic.LookupCommand(s)
	if !ok {
		c.log.WithField("command", s).Debug("ignoring unknown command")
		return len(cmd), nil
	}
	var err error
	switch action.Kind {
	case logic.ActionIndicatorOn:
		err = c.store.SetIndicator(action.Button, true)
	case logic.ActionAllOff:
		err = c.store.SetAllIndicators(false)
	}
	if err != nil {
		return 0, fmt.Errorf("command %s: %w", s, err)
	}
	c.log.WithField("command", s).Debug("command applied")
	return len(cmd), nil
}

// WriteFrom reads a single command from r and executes it. Errors reading r
// are reported as ErrTransferFault with no state change.
func (c *Channel) WriteFrom(r io.Reader) (int, error) {
	buf, err := io.ReadAll(io.LimitReader(r, MaxCommandLen+1))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransferFault, err)
	}
	return c.Write(buf)
}

// Read fills buf with the response for a read at pos. It returns io.EOF
// when there is nothing to read: pos > 0, or no pending press in event mode.
func (c *Channel) Read(buf []byte, pos int64) (int, error) {
	if pos > 0 {
		return 0, io.EOF
	}
	switch c.mode {
	case ModeStatus:
		resp := logic.FormatStatus(c.store.SnapshotStates())
		if len(resp) > len(buf) {
			return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrWouldOverflow, len(resp), len(buf))
		}
		return copy(buf, resp), nil
	default:
		var resp string
		_, taken := c.store.DrainEventIf(func(b logic.ButtonIndex) bool {
			resp = logic.FormatEvent(b)
			return len(resp) <= len(buf)
		})
		if resp == "" {
			return 0, io.EOF
		}
		if !taken {
			return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrWouldOverflow, len(resp), len(buf))
		}
		return copy(buf, resp), nil
	}
}

// Open starts a session: one read of the channel followed by end of data,
// the way a reader sees a freshly opened pseudo-file.
func (c *Channel) Open() *Session {
	return &Session{ch: c}
}

// Session is one open of the channel. It is not safe for concurrent use.
type Session struct {
	ch  *Channel
	pos int64
}

// Read implements io.Reader. The first call produces the whole response;
// later calls return io.EOF.
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.ch.Read(p, s.pos)
	s.pos += int64(n)
	return n, err
}

// Write implements io.Writer; each call is one command.
func (s *Session) Write(p []byte) (int, error) {
	return s.ch.Write(p)
}

// ReadResponse opens a session and returns its full response, or "" when
// there is nothing to read.
func (c *Channel) ReadResponse() (string, error) {
	buf := make([]byte, MaxResponseLen)
	n, err := c.Open().Read(buf)
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}
