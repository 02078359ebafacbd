package session

import (
	"errors"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/engine"
)

// ErrAlreadyActive is returned by Begin when the tenant already holds the
// initializing-or-connected guard. A conflict signal, not a failure.
var ErrAlreadyActive = errors.New("session: already active")

// ErrNoActiveSession is returned when an operation needs a connected
// session and the tenant has none.
var ErrNoActiveSession = errors.New("session: no active session")

// entry is the registry's authoritative state for one tenant.
type entry struct {
	rec   Record
	conn  engine.Conn
	retry *time.Timer
	// gen increments on every accepted attempt; mutators carry the caller's
	// generation and no-op when a newer attempt has superseded it.
	gen int
}

// Registry maps tenant ids to their session records and connection handles.
// It is the only structure shared across tenants; every mutation happens
// under its lock, which is what makes Begin atomic for concurrent callers.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Begin atomically claims the session guard for a tenant. Exactly one of
// any set of concurrent callers wins; the rest get ErrAlreadyActive with no
// side effects. A tenant whose previous attempt ended (terminal or retry
// pending) is re-claimed: the pending retry timer, if any, is cancelled and
// this attempt supersedes it.
func (r *Registry) Begin(tenantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	e, ok := r.entries[tenantID]
	if !ok {
		e = &entry{rec: Record{
			TenantID:  tenantID,
			State:     StateUninitialized,
			CreatedAt: now,
		}}
		r.entries[tenantID] = e
	}
	if e.rec.State.Active() {
		return 0, ErrAlreadyActive
	}
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	e.gen++
	e.rec.State = StateInitializing
	e.rec.LastQR = ""
	e.rec.Phone = ""
	e.rec.QRShown = false
	e.rec.RetryPending = false
	e.rec.UpdatedAt = now
	return e.gen, nil
}

// BeginRetry claims the guard for a scheduled reconnection attempt. It
// succeeds only if the tenant is still waiting on the retry that fired;
// an intervening disconnect or manual start makes it a no-op.
func (r *Registry) BeginRetry(tenantID string, gen int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tenantID]
	if !ok || e.gen != gen || !e.rec.RetryPending {
		return 0, false
	}
	e.retry = nil
	e.gen++
	e.rec.State = StateInitializing
	e.rec.LastQR = ""
	e.rec.Phone = ""
	e.rec.QRShown = false
	e.rec.RetryPending = false
	e.rec.UpdatedAt = time.Now()
	return e.gen, true
}

// AttachConn associates the live connection handle with the attempt.
func (r *Registry) AttachConn(tenantID string, gen int, conn engine.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.current(tenantID, gen)
	if !ok {
		return false
	}
	e.conn = conn
	return true
}

// Get returns a copy of the tenant's session record.
func (r *Registry) Get(tenantID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tenantID]
	if !ok {
		return Record{}, false
	}
	return e.rec, true
}

// Conn returns the tenant's connection handle, only while Connected.
func (r *Registry) Conn(tenantID string) (engine.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tenantID]
	if !ok || e.rec.State != StateConnected || e.conn == nil {
		return nil, ErrNoActiveSession
	}
	return e.conn, nil
}

// SetScanCode records a rendered scan code and moves to AwaitingScan.
func (r *Registry) SetScanCode(tenantID string, gen int, image string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.current(tenantID, gen)
	if !ok {
		return false
	}
	e.rec.State = StateAwaitingScan
	e.rec.LastQR = image
	e.rec.QRShown = true
	e.rec.UpdatedAt = time.Now()
	return true
}

// SetConnected records a completed handshake: scan code cleared, phone
// resolved, EverConnected latched.
func (r *Registry) SetConnected(tenantID string, gen int, phone string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.current(tenantID, gen)
	if !ok {
		return Record{}, false
	}
	e.rec.State = StateConnected
	e.rec.Phone = phone
	e.rec.LastQR = ""
	e.rec.EverConnected = true
	e.rec.UpdatedAt = time.Now()
	return e.rec, true
}

// CloseInfo returns the record the close-outcome decision needs, only if
// gen is still the live generation.
func (r *Registry) CloseInfo(tenantID string, gen int) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.current(tenantID, gen)
	if !ok {
		return Record{}, false
	}
	return e.rec, true
}

// ScheduleRetry releases the connection, marks the tenant disconnected with
// a retry pending, and arms the timer, all under one lock so an explicit
// disconnect can never race past a half-armed retry. A tenant already in
// Disconnecting is refused: the disconnect request landed after the close
// decision was made, and it wins.
func (r *Registry) ScheduleRetry(tenantID string, gen int, delay time.Duration, fire func(gen int)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.current(tenantID, gen)
	if !ok || e.rec.State == StateDisconnecting {
		return false
	}
	e.conn = nil
	e.rec.State = StateDisconnected
	e.rec.LastQR = ""
	e.rec.RetryPending = true
	e.rec.UpdatedAt = time.Now()
	g := e.gen
	e.retry = time.AfterFunc(delay, func() { fire(g) })
	return true
}

// MarkTerminal releases the connection and settles the tenant in
// Disconnected with no retry.
func (r *Registry) MarkTerminal(tenantID string, gen int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.current(tenantID, gen)
	if !ok {
		return false
	}
	r.settle(e, StateDisconnected)
	return true
}

// MarkFailed settles the tenant in Failed after an attempt that could not
// open a connection at all.
func (r *Registry) MarkFailed(tenantID string, gen int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.current(tenantID, gen)
	if !ok {
		return false
	}
	r.settle(e, StateFailed)
	return true
}

// Disconnect handles an explicit disconnect request: it cancels any pending
// retry and returns the live connection handle for the controller to tear
// down. A nil handle with nil error means the tenant was settled in place
// (retry cancelled, nothing live to terminate).
func (r *Registry) Disconnect(tenantID string) (engine.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tenantID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	if e.rec.RetryPending {
		r.settle(e, StateDisconnected)
		return nil, nil
	}
	if !e.rec.State.Active() || e.conn == nil {
		return nil, ErrNoActiveSession
	}
	conn := e.conn
	e.rec.State = StateDisconnecting
	e.rec.UpdatedAt = time.Now()
	return conn, nil
}

// Remove drops a tenant's record entirely.
func (r *Registry) Remove(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[tenantID]; ok {
		if e.retry != nil {
			e.retry.Stop()
		}
		delete(r.entries, tenantID)
	}
}

// All returns a copy of every tenant's record.
func (r *Registry) All() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.rec)
	}
	return out
}

// Conns returns every live connection handle, for shutdown.
func (r *Registry) Conns() []engine.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []engine.Conn
	for _, e := range r.entries {
		if e.retry != nil {
			e.retry.Stop()
			e.retry = nil
			e.rec.RetryPending = false
		}
		if e.conn != nil {
			out = append(out, e.conn)
		}
	}
	return out
}

// current returns the entry only if gen is still the live generation.
func (r *Registry) current(tenantID string, gen int) (*entry, bool) {
	e, ok := r.entries[tenantID]
	if !ok || e.gen != gen {
		return nil, false
	}
	return e, true
}

// settle clears the connection, timers, and scan code, leaving the record
// in a terminal state. Caller holds the lock.
func (r *Registry) settle(e *entry, s State) {
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	e.conn = nil
	e.rec.State = s
	e.rec.LastQR = ""
	e.rec.QRShown = false
	e.rec.RetryPending = false
	e.rec.UpdatedAt = time.Now()
}
