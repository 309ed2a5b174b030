// Package device tracks the fleet roster and each device's connection
// state. Each Record carries its own mutex so a slow or unhealthy device
// never blocks status checks or step runs on the rest of the fleet.
package device

import (
	"sync"
	"time"

	"github.com/srg/adbfleet/internal/adb"
)

// State is where a device sits in the connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateUnhealthy    State = "unhealthy"
)

// Record is one roster entry plus its live connection state.
type Record struct {
	mu sync.Mutex

	ID   string // "host:port" or serial
	Name string

	State              State
	LastConnectAttempt time.Time
	ConnectionAttempts int
	CurrentAction      string
	Info               adb.Info
}

// WithAction runs fn with CurrentAction set to label, restoring whatever
// tag was in place beforehand on every exit path including panic -- so a
// device-level action called from inside a step-level tag restores the
// step's tag instead of clearing it.
func (r *Record) WithAction(label string, fn func()) {
	r.mu.Lock()
	prev := r.CurrentAction
	r.CurrentAction = label
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.CurrentAction = prev
		r.mu.Unlock()
	}()

	fn()
}

// SetState updates r's lifecycle state.
func (r *Record) SetState(s State) {
	r.mu.Lock()
	r.State = s
	r.mu.Unlock()
}

// Snapshot returns a value copy of r's fields, safe to read without holding
// any lock afterward.
func (r *Record) Snapshot() Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Record{
		ID:                 r.ID,
		Name:               r.Name,
		State:              r.State,
		LastConnectAttempt: r.LastConnectAttempt,
		ConnectionAttempts: r.ConnectionAttempts,
		CurrentAction:      r.CurrentAction,
		Info:               r.Info,
	}
}

// IsConnected reports whether r is in StateConnected.
func (r *Record) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.State == StateConnected
}

func (r *Record) recordAttempt() {
	r.mu.Lock()
	r.LastConnectAttempt = time.Now()
	r.ConnectionAttempts++
	r.mu.Unlock()
}

func (r *Record) resetAttempts() {
	r.mu.Lock()
	r.ConnectionAttempts = 0
	r.mu.Unlock()
}

func (r *Record) setInfo(info adb.Info) {
	r.mu.Lock()
	r.Info = info
	r.mu.Unlock()
}
