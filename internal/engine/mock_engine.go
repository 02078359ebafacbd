package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockEngine implements Engine for testing. Each Open records the seeded
// credentials and hands back a MockConn whose events the test scripts via
// the Emit helpers.
type MockEngine struct {
	mu      sync.Mutex
	conns   []*MockConn
	openErr error
}

// NewMockEngine creates a MockEngine.
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

// FailOpen makes subsequent Open calls return err.
func (e *MockEngine) FailOpen(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openErr = err
}

// Open records the call and returns a fresh MockConn.
func (e *MockEngine) Open(ctx context.Context, creds []byte, opts OpenOpts) (Conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.openErr != nil {
		return nil, e.openErr
	}
	c := &MockConn{
		tenantID: opts.TenantID,
		creds:    append([]byte(nil), creds...),
		events:   make(chan Event, 100),
	}
	e.conns = append(e.conns, c)
	return c, nil
}

// OpenCount returns how many connections have been opened.
func (e *MockEngine) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}

// Conn returns the i-th opened connection, or nil.
func (e *MockEngine) Conn(i int) *MockConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.conns) {
		return nil
	}
	return e.conns[i]
}

// WaitConn blocks until at least n connections have been opened, returning
// the latest. Fails the wait after two seconds.
func (e *MockEngine) WaitConn(n int) (*MockConn, error) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.mu.Lock()
		if len(e.conns) >= n {
			c := e.conns[n-1]
			e.mu.Unlock()
			return c, nil
		}
		e.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	return nil, fmt.Errorf("mock engine: %d connections not opened in time", n)
}

// SentMessage records one Send call on a MockConn.
type SentMessage struct {
	Recipient string
	Text      string
}

// MockConn implements Conn for testing.
type MockConn struct {
	tenantID string
	creds    []byte

	mu        sync.Mutex
	events    chan Event
	closeOnce sync.Once
	sent      []SentMessage
	sendErr   error
	loggedOut bool
	closed    bool
}

// Events returns the scripted event channel.
func (c *MockConn) Events() <-chan Event { return c.events }

// Send records the outbound message.
func (c *MockConn) Send(ctx context.Context, recipient, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("mock conn: closed")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, SentMessage{Recipient: recipient, Text: text})
	return nil
}

// Logout marks the conn as logged out and emits a terminal close.
func (c *MockConn) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.loggedOut = true
	c.mu.Unlock()
	c.EmitClosed(ReasonLoggedOut)
	return nil
}

// Close closes the event channel. Idempotent.
func (c *MockConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.events) })
	return nil
}

// SeededCreds returns the credentials this conn was opened with.
func (c *MockConn) SeededCreds() []byte {
	return append([]byte(nil), c.creds...)
}

// FailSend makes subsequent Send calls return err.
func (c *MockConn) FailSend(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Sent returns a copy of all recorded sends.
func (c *MockConn) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// LoggedOut reports whether Logout was called.
func (c *MockConn) LoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

// --- Event scripting helpers ---

// Emit pushes a raw event into the stream.
func (c *MockConn) Emit(ev Event) {
	c.events <- ev
}

// EmitCredentials emits a credential-update event.
func (c *MockConn) EmitCredentials(blob []byte) {
	c.Emit(Event{Kind: EventCredentials, Credentials: blob})
}

// EmitScanCode emits a scan-code event.
func (c *MockConn) EmitScanCode(code string) {
	c.Emit(Event{Kind: EventScanCode, ScanCode: code})
}

// EmitOpened emits a handshake-open event.
func (c *MockConn) EmitOpened(phone string) {
	c.Emit(Event{Kind: EventOpened, Phone: phone})
}

// EmitMessage emits an inbound message event.
func (c *MockConn) EmitMessage(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.Emit(Event{Kind: EventMessage, Message: &msg})
}

// EmitClosed emits a close event and then closes the event channel, matching
// the Conn contract that EventClosed is final.
func (c *MockConn) EmitClosed(reason string) {
	c.closeOnce.Do(func() {
		c.events <- Event{Kind: EventClosed, Reason: reason}
		close(c.events)
	})
}
