package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

// Simulator is a development engine. It behaves like the real protocol
// engine at the boundary: a fresh identity gets a scan code which is
// "approved" after a configurable delay, a seeded identity reconnects
// directly, and every Send is echoed back as an inbound message so frontend
// work can proceed without a live account.
type Simulator struct {
	// ApprovalDelay is how long a scan code stays pending before the
	// simulated user approves it.
	ApprovalDelay time.Duration
	// EchoDelay is how long after a Send the echoed reply arrives.
	EchoDelay time.Duration
}

// NewSimulator creates a Simulator with the given approval delay.
func NewSimulator(approvalDelay time.Duration) *Simulator {
	if approvalDelay <= 0 {
		approvalDelay = 3 * time.Second
	}
	return &Simulator{
		ApprovalDelay: approvalDelay,
		EchoDelay:     500 * time.Millisecond,
	}
}

// Open starts a simulated connection for the tenant.
func (s *Simulator) Open(ctx context.Context, creds []byte, opts OpenOpts) (Conn, error) {
	if opts.TenantID == "" {
		return nil, fmt.Errorf("sim: tenant id is required")
	}
	c := &simConn{
		tenantID:  opts.TenantID,
		echoDelay: s.EchoDelay,
		events:    make(chan Event, 100),
	}
	go c.run(creds, s.ApprovalDelay)
	return c, nil
}

type simConn struct {
	tenantID  string
	echoDelay time.Duration

	mu        sync.Mutex
	events    chan Event
	closeOnce sync.Once
	closed    bool
}

// run plays the connection lifecycle: credentials, optional scan code,
// then open.
func (c *simConn) run(creds []byte, approvalDelay time.Duration) {
	fresh := len(creds) == 0
	if fresh {
		creds = []byte(fmt.Sprintf(`{"sim_identity":%q}`, randomToken()))
	}
	c.emit(Event{Kind: EventCredentials, Credentials: creds})

	if fresh {
		c.emit(Event{Kind: EventScanCode, ScanCode: "sim-pair:" + randomToken()})
		time.Sleep(approvalDelay)
	}
	c.emit(Event{Kind: EventOpened, Phone: c.phone()})
}

// phone derives a stable fake account number from the tenant id.
func (c *simConn) phone() string {
	h := fnv.New32a()
	h.Write([]byte(c.tenantID))
	return fmt.Sprintf("52155%07d", h.Sum32()%10000000)
}

func (c *simConn) Events() <-chan Event { return c.events }

func (c *simConn) Send(ctx context.Context, recipient, text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("sim: connection closed")
	}
	c.mu.Unlock()

	// Echo the message back from the recipient after a short delay.
	go func() {
		time.Sleep(c.echoDelay)
		c.emit(Event{Kind: EventMessage, Message: &Message{
			From:      recipient,
			Text:      "echo: " + text,
			Timestamp: time.Now(),
		}})
	}()
	return nil
}

func (c *simConn) Logout(ctx context.Context) error {
	log.Printf("sim: tenant %s logged out", c.tenantID)
	c.closeWith(ReasonLoggedOut)
	return nil
}

func (c *simConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.events) })
	return nil
}

// emit delivers an event unless the conn has been closed.
func (c *simConn) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		log.Printf("sim: tenant %s event buffer full, dropping %s", c.tenantID, ev.Kind)
	}
}

// closeWith emits a final close event and closes the stream.
func (c *simConn) closeWith(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() {
		c.events <- Event{Kind: EventClosed, Reason: reason}
		close(c.events)
	})
}

func randomToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
