// Package store holds the state shared between the edge dispatcher and
// command channel readers: the single pending press and the indicator states.
//
// Only one press is held at a time. A press that is not drained before the
// next accepted press is overwritten and lost; Overwritten counts those.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/whackamole/internal/gpio"
	"github.com/sweeney/whackamole/internal/logic"
)

var (
	// ErrInvalidButton is returned for indices outside 0..NumButtons-1.
	ErrInvalidButton = errors.New("invalid button index")

	// ErrNotAttached is returned when a button has no indicator line.
	ErrNotAttached = errors.New("indicator line not attached")
)

// Snapshot is a point-in-time view of the store.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Indicators  logic.Indicators
	Pending     *logic.ButtonIndex
	Presses     logic.PressCounts
	Overwritten int
}

// Store is the mutex-guarded shared buffer.
type Store struct {
	mu          sync.Mutex
	lines       [logic.NumButtons]gpio.Output
	states      logic.Indicators
	pending     logic.ButtonIndex
	hasPending  bool
	presses     logic.PressCounts
	overwritten int
}

// New creates an empty Store with no indicator lines attached.
func New() *Store {
	return &Store{}
}

// Attach binds the indicator line for b. The line's current level becomes
// the logical state.
func (s *Store) Attach(b logic.ButtonIndex, line gpio.Output, on bool) error {
	if !b.Valid() {
		return fmt.Errorf("attach %d: %w", int(b), ErrInvalidButton)
	}
	s.mu.Lock()
	s.lines[b] = line
	s.states[b] = on
	s.mu.Unlock()
	return nil
}

// Detach unbinds the indicator line for b and returns it.
func (s *Store) Detach(b logic.ButtonIndex) gpio.Output {
	if !b.Valid() {
		return nil
	}
	s.mu.Lock()
	line := s.lines[b]
	s.lines[b] = nil
	s.states[b] = false
	if s.hasPending && s.pending == b {
		s.hasPending = false
	}
	s.mu.Unlock()
	return line
}

// apply writes on to b's line and, only if that succeeds, records it.
// Caller must hold s.mu.
func (s *Store) apply(b logic.ButtonIndex, on bool) error {
	line := s.lines[b]
	if line == nil {
		return fmt.Errorf("%s: %w", b.Color(), ErrNotAttached)
	}
	if err := line.SetValue(on); err != nil {
		return fmt.Errorf("set %s indicator: %w", b.Color(), err)
	}
	s.states[b] = on
	return nil
}

// ToggleAndRecord flips b's indicator and records b as the pending press.
// If the line write fails nothing is recorded.
func (s *Store) ToggleAndRecord(b logic.ButtonIndex) error {
	if !b.Valid() {
		return fmt.Errorf("toggle %d: %w", int(b), ErrInvalidButton)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.apply(b, !s.states[b]); err != nil {
		return err
	}
	if s.hasPending {
		s.overwritten++
	}
	s.pending = b
	s.hasPending = true
	s.presses[b]++
	return nil
}

// SetIndicator switches b's indicator on or off.
func (s *Store) SetIndicator(b logic.ButtonIndex, on bool) error {
	if !b.Valid() {
		return fmt.Errorf("set %d: %w", int(b), ErrInvalidButton)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(b, on)
}

// SetAllIndicators switches every indicator. A failing line does not stop
// the others; all failures are returned joined.
func (s *Store) SetAllIndicators(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for b := logic.ButtonIndex(0); b < logic.NumButtons; b++ {
		if err := s.apply(b, on); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DrainEvent returns the pending press and clears it.
func (s *Store) DrainEvent() (logic.ButtonIndex, bool) {
	return s.DrainEventIf(nil)
}

// DrainEventIf clears and returns the pending press only if take reports
// true for it (a nil take always takes). take runs under the lock and must
// be quick. If a press is pending but not taken, it is returned with ok=false
// and left in place.
func (s *Store) DrainEventIf(take func(logic.ButtonIndex) bool) (b logic.ButtonIndex, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasPending {
		return 0, false
	}
	if take != nil && !take(s.pending) {
		return s.pending, false
	}
	s.hasPending = false
	return s.pending, true
}

// SnapshotStates returns a copy of the indicator states.
func (s *Store) SnapshotStates() logic.Indicators {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states
}

// Snapshot returns a copy of everything the store holds.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Indicators:  s.states,
		Presses:     s.presses,
		Overwritten: s.overwritten,
	}
	if s.hasPending {
		p := s.pending
		snap.Pending = &p
	}
	return snap
}
