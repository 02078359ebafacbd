// Package session owns the per-tenant session lifecycle: the registry that
// guarantees at most one live connection per tenant, and the controller that
// drives each connection through initialization, authentication, and
// reconnection.
package session

import "time"

// State is a session's position in the lifecycle machine.
type State string

// Session states.
const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateAwaitingScan  State = "awaiting_scan"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	StateDisconnected  State = "disconnected"
	StateFailed        State = "failed"
)

// Active reports whether the state holds the single-connection guard: a
// second start request must be rejected while a tenant is in any of these.
func (s State) Active() bool {
	switch s {
	case StateInitializing, StateAwaitingScan, StateConnected, StateDisconnecting:
		return true
	}
	return false
}

// Record describes a tenant's current session. Registry methods return it
// by value; the authoritative copy is mutated only under the registry lock.
type Record struct {
	TenantID string
	State    State
	// Phone is the resolved account identifier, set while connected.
	Phone string
	// LastQR is the rendered scan code image, non-empty only in AwaitingScan.
	LastQR string
	// EverConnected is latched true by the first completed handshake and
	// never reset; it drives the reconnection policy.
	EverConnected bool
	// QRShown tracks whether a scan code was produced in the current
	// connection attempt. Reset at the start of every attempt.
	QRShown bool
	// RetryPending is true while a reconnection timer is armed.
	RetryPending bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
