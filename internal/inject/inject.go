// Package inject defines the input-injection collaborator (C6). The actual
// platform-specific cursor/keyboard injection primitive is out of scope
// (spec §1); this package fixes the narrow interface the host dispatcher
// drives, plus a recording implementation used in tests.
package inject

import (
	"sync"

	"github.com/yawning/relaydesk/internal/control"
)

// Injector performs best-effort, synchronous input injection. Individual
// failures (unknown key name, OS refusal) must not propagate; callers log
// and continue (spec §4.6, §7 "Injection").
type Injector interface {
	MoveCursor(x, y int)
	PressButton(button string)
	ReleaseButton(button string)
	PressKey(name string)
	ReleaseKey(name string)
}

// Recording is an Injector that records calls instead of touching the OS
// input subsystem, standing in for the platform-specific primitive in
// tests. Key presses and releases whose name is not a valid symbolic key
// name are ignored and not recorded.
type Recording struct {
	mu      sync.Mutex
	Moves   []Move
	Buttons []ButtonEvent
	Keys    []KeyEvent
}

type Move struct{ X, Y int }
type ButtonEvent struct {
	Button  string
	Pressed bool
}
type KeyEvent struct {
	Name    string
	Pressed bool
}

func NewRecording() *Recording {
	return &Recording{}
}

func (r *Recording) MoveCursor(x, y int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Moves = append(r.Moves, Move{X: x, Y: y})
}

func (r *Recording) PressButton(button string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Buttons = append(r.Buttons, ButtonEvent{Button: button, Pressed: true})
}

func (r *Recording) ReleaseButton(button string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Buttons = append(r.Buttons, ButtonEvent{Button: button, Pressed: false})
}

func (r *Recording) PressKey(name string) {
	if !control.IsValidKeyName(name) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Keys = append(r.Keys, KeyEvent{Name: name, Pressed: true})
}

func (r *Recording) ReleaseKey(name string) {
	if !control.IsValidKeyName(name) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Keys = append(r.Keys, KeyEvent{Name: name, Pressed: false})
}

// MoveCount returns the number of recorded cursor moves, synchronized
// against concurrent MoveCursor calls from the dispatcher goroutine.
func (r *Recording) MoveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Moves)
}

// LastMove returns the most recent recorded cursor move, if any.
func (r *Recording) LastMove() (Move, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Moves) == 0 {
		return Move{}, false
	}
	return r.Moves[len(r.Moves)-1], true
}
