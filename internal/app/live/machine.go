// Package live keeps a client in sync with one event, preferring server push and
// falling back to polling while push is unavailable.
package live

import (
	"errors"
	"fmt"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StatePush         State = "push"
	StatePolling      State = "polling"
)

// Signal is an input to the Machine.
type Signal string

const (
	SignalStart              Signal = "start"
	SignalPushConnected      Signal = "push_connected"
	SignalPushFailed         Signal = "push_failed"
	SignalPushLost           Signal = "push_lost"
	SignalReconnectSucceeded Signal = "reconnect_succeeded"
	SignalStop               Signal = "stop"
)

var ErrInvalidTransition = errors.New("invalid live transition")

// Machine is the connection state machine. It holds no timers and performs no I/O;
// the Watcher feeds it signals. It is not safe for concurrent use.
type Machine struct {
	state      State
	connecting bool
}

func NewMachine() *Machine {
	return &Machine{state: StateDisconnected}
}

func (m *Machine) State() State { return m.state }

// Connecting reports whether Start was fired and the first push attempt has not resolved.
func (m *Machine) Connecting() bool { return m.connecting }

// Fire applies sig and returns the resulting state. Invalid signals leave the
// state unchanged and return ErrInvalidTransition.
func (m *Machine) Fire(sig Signal) (State, error) {
	next, ok := m.next(sig)
	if !ok {
		return m.state, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, sig, m.state)
	}
	switch sig {
	case SignalStart:
		m.connecting = true
	case SignalPushConnected, SignalPushFailed, SignalStop:
		m.connecting = false
	}
	m.state = next
	return next, nil
}

func (m *Machine) next(sig Signal) (State, bool) {
	if sig == SignalStop {
		return StateDisconnected, true
	}
	switch m.state {
	case StateDisconnected:
		switch {
		case sig == SignalStart && !m.connecting:
			return StateDisconnected, true
		case sig == SignalPushConnected && m.connecting:
			return StatePush, true
		case sig == SignalPushFailed && m.connecting:
			return StatePolling, true
		}
	case StatePush:
		if sig == SignalPushLost {
			return StatePolling, true
		}
	case StatePolling:
		switch sig {
		case SignalReconnectSucceeded:
			return StatePush, true
		case SignalPushFailed:
			// A failed reconnect keeps polling.
			return StatePolling, true
		}
	}
	return m.state, false
}
