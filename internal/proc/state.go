package proc

import (
	"fmt"
	"sync/atomic"
)

// State is where a process is in its life.
type State int32

const (
	// StateLoading is set from creation until the load handshake resolves.
	StateLoading State = iota

	// StateRunning means user code may be executing.
	StateRunning

	// StateExited means Exit has run; the process will never run again.
	StateExited

	// StateFailed means the image never loaded.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

type stateMachine struct {
	state atomic.Int32
}

func (sm *stateMachine) load() State {
	return State(sm.state.Load())
}

func (sm *stateMachine) set(s State) {
	sm.state.Store(int32(s))
}

// transition moves from one state to another and reports whether the
// process was in from.
func (sm *stateMachine) transition(from, to State) bool {
	return sm.state.CompareAndSwap(int32(from), int32(to))
}
