package control

import (
	"fmt"
	"time"

	"rlsim-bridge/internal/wire"
)

// State is the control server's connection state.
type State int32

const (
	StateListening State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Status is a point-in-time view of the server for the admin API.
type Status struct {
	State string     `json:"state"`
	Peer  string     `json:"peer,omitempty"`
	Run   *RunStatus `json:"run,omitempty"`
}

// RunStatus describes the live run.
type RunStatus struct {
	ID        string                    `json:"id"`
	State     string                    `json:"state"`
	SimTime   float64                   `json:"sim_time"`
	StartedAt time.Time                 `json:"started_at"`
	Params    wire.SimulationParameters `json:"params"`
}
