package vcommit

import (
	"fmt"
	"sync/atomic"
)

// State is a step of the flush state machine:
//
//	Idle -> Staged -> Marked -> Merged -> Idle
//
// Staged means header and payload are durable but the marker is not; Marked
// means the virtual commit is durable and the merged eras may be deleted;
// Merged means the mapped store reflects the virtual commit.
type State uint32

const (
	StateIdle State = iota
	StateStaged
	StateMarked
	StateMerged
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStaged:
		return "staged"
	case StateMarked:
		return "marked"
	case StateMerged:
		return "merged"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// allowed lists the legal successors of each state. Staged may fall back to
// Idle when staging is abandoned before the marker was written.
var allowed = map[State][]State{
	StateIdle:   {StateStaged},
	StateStaged: {StateMarked, StateIdle},
	StateMarked: {StateMerged},
	StateMerged: {StateIdle},
}

// Machine tracks the flush state. Reads are lock free so that properties can
// be reported while a flush is running.
type Machine struct {
	state atomic.Uint32
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Transition moves from the current state to next.
func (m *Machine) Transition(next State) error {
	cur := m.State()
	for _, s := range allowed[cur] {
		if s == next {
			if !m.state.CompareAndSwap(uint32(cur), uint32(next)) {
				return fmt.Errorf("%w: state changed concurrently from %s", ErrInvalidTransition, cur)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
}

// Restore sets the state found on disk at open, bypassing the transition
// rules. Only Idle and Marked can be observed on disk.
func (m *Machine) Restore(s State) {
	m.state.Store(uint32(s))
}
