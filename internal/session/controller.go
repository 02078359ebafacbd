package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/engine"
	"github.com/zulandar/switchboard/internal/qr"
	"github.com/zulandar/switchboard/internal/store"
)

// Close outcomes. The split is what keeps the controller from looping on a
// dead login: a drop before any scan code was shown is a transient
// handshake failure worth retrying, a drop after the scan code appeared
// means the scan was abandoned or expired, and an explicit logout must
// never reconnect on its own.
const (
	outcomeRetry    = "retry"
	outcomeTerminal = "terminal"
)

// closeOutcome decides what a connection-closed event means, as a pure
// function of the close reason and the attempt's history.
func closeOutcome(reason string, everConnected, qrShown bool) string {
	if reason == engine.ReasonLoggedOut {
		return outcomeTerminal
	}
	if everConnected || !qrShown {
		return outcomeRetry
	}
	return outcomeTerminal
}

// InboundHandler receives inbound protocol messages from live connections.
// The message relay implements it.
type InboundHandler interface {
	HandleInbound(tenantID string, msg engine.Message)
}

// Controller drives every tenant's session state machine. Each tenant's
// connection events are processed sequentially by one goroutine; tenants
// are fully parallel to each other.
type Controller struct {
	reg     *Registry
	eng     engine.Engine
	store   *store.Store
	bus     *bus.Bus
	inbound InboundHandler

	// reconnectDelay applies after a drop once a handshake has completed;
	// retryDelay applies to a first attempt that stalled before showing a
	// scan code.
	reconnectDelay time.Duration
	retryDelay     time.Duration
}

// ControllerOpts holds parameters for creating a Controller.
type ControllerOpts struct {
	Registry       *Registry
	Engine         engine.Engine
	Store          *store.Store
	Bus            *bus.Bus
	Inbound        InboundHandler // optional; inbound messages are dropped without it
	ReconnectDelay time.Duration  // defaults to 3s
	RetryDelay     time.Duration  // defaults to 5s
}

// NewController creates a Controller.
func NewController(opts ControllerOpts) (*Controller, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("session: controller: registry is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("session: controller: engine is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("session: controller: store is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("session: controller: bus is required")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	return &Controller{
		reg:            opts.Registry,
		eng:            opts.Engine,
		store:          opts.Store,
		bus:            opts.Bus,
		inbound:        opts.Inbound,
		reconnectDelay: opts.ReconnectDelay,
		retryDelay:     opts.RetryDelay,
	}, nil
}

// Start begins a session for a tenant. Returns ErrAlreadyActive if the
// tenant already holds the guard, or the engine's error if the connection
// could not be opened at all.
func (c *Controller) Start(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("session: tenant id is required")
	}
	gen, err := c.reg.Begin(tenantID)
	if err != nil {
		return err
	}
	if err := c.open(ctx, tenantID, gen); err != nil {
		c.reg.MarkFailed(tenantID, gen)
		return err
	}
	return nil
}

// open loads credentials, opens a connection, and starts the event pump for
// one attempt. The caller must hold the guard (a successful Begin/BeginRetry).
func (c *Controller) open(ctx context.Context, tenantID string, gen int) error {
	creds, err := c.store.LoadCredentials(tenantID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		// A store outage degrades to a fresh login rather than blocking.
		log.Printf("session: tenant %s: load credentials: %v", tenantID, err)
		creds = nil
	}

	rec, _ := c.reg.Get(tenantID)
	if err := c.store.UpsertStatus(tenantID, string(StateInitializing), "", rec.EverConnected); err != nil {
		log.Printf("session: tenant %s: persist status: %v", tenantID, err)
	}

	conn, err := c.eng.Open(ctx, creds, engine.OpenOpts{TenantID: tenantID})
	if err != nil {
		return fmt.Errorf("session: open connection for %s: %w", tenantID, err)
	}
	if !c.reg.AttachConn(tenantID, gen, conn) {
		// Superseded while opening; this attempt no longer owns the tenant.
		conn.Close()
		return nil
	}

	log.Printf("session: tenant %s: connection opened (gen %d, prior identity: %t)", tenantID, gen, creds != nil)
	go c.pump(tenantID, gen, conn)
	return nil
}

// pump processes one connection's events in emission order until the stream
// ends. A panic while handling an event is logged and the state machine
// stays at its last known-good state.
func (c *Controller) pump(tenantID string, gen int, conn engine.Conn) {
	sawClose := false
	for ev := range conn.Events() {
		if ev.Kind == engine.EventClosed {
			sawClose = true
		}
		c.handleEvent(tenantID, gen, ev)
	}
	if !sawClose {
		// Stream ended without a close event (engine tore down abruptly).
		// Run the close path with a synthetic reason so the tenant is never
		// stranded in an active state.
		c.handleEvent(tenantID, gen, engine.Event{
			Kind:   engine.EventClosed,
			Reason: engine.ReasonConnectionLost,
		})
	}
	conn.Close()
}

// handleEvent dispatches a single connection event through the state
// machine.
func (c *Controller) handleEvent(tenantID string, gen int, ev engine.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session: tenant %s: panic handling %s event: %v", tenantID, ev.Kind, r)
		}
	}()

	switch ev.Kind {
	case engine.EventCredentials:
		// Saved unconditionally on every emission, whatever the state; the
		// engine re-emits periodically, so a failed save self-heals.
		if err := c.store.SaveCredentials(tenantID, ev.Credentials); err != nil {
			log.Printf("session: tenant %s: save credentials: %v", tenantID, err)
		}

	case engine.EventScanCode:
		image, err := qr.Render(ev.ScanCode)
		if err != nil {
			log.Printf("session: tenant %s: render scan code: %v", tenantID, err)
			return
		}
		if !c.reg.SetScanCode(tenantID, gen, image) {
			return
		}
		log.Printf("session: tenant %s: scan code ready", tenantID)
		c.bus.Publish(tenantID, bus.Event{Kind: bus.KindScanCodeReady, Image: image})

	case engine.EventOpened:
		rec, ok := c.reg.SetConnected(tenantID, gen, ev.Phone)
		if !ok {
			return
		}
		if err := c.store.UpsertStatus(tenantID, string(StateConnected), rec.Phone, true); err != nil {
			log.Printf("session: tenant %s: persist status: %v", tenantID, err)
		}
		log.Printf("session: tenant %s: connected as %s", tenantID, rec.Phone)
		c.bus.Publish(tenantID, bus.Event{Kind: bus.KindSessionConnected, Phone: rec.Phone})

	case engine.EventMessage:
		if ev.Message == nil || ev.Message.FromSelf {
			return
		}
		if c.inbound == nil {
			return
		}
		c.inbound.HandleInbound(tenantID, *ev.Message)

	case engine.EventClosed:
		c.handleClosed(tenantID, gen, ev.Reason)

	default:
		log.Printf("session: tenant %s: ignoring unknown event kind %q", tenantID, ev.Kind)
	}
}

// handleClosed runs the retry/terminal decision for a closed connection.
func (c *Controller) handleClosed(tenantID string, gen int, reason string) {
	rec, ok := c.reg.CloseInfo(tenantID, gen)
	if !ok {
		return
	}
	everConnected := rec.EverConnected

	outcome := closeOutcome(reason, everConnected, rec.QRShown)
	if rec.State == StateDisconnecting {
		// The tenant asked for this teardown; never auto-reconnect from it.
		outcome = outcomeTerminal
	}

	switch outcome {
	case outcomeRetry:
		delay := c.retryDelay
		if everConnected {
			delay = c.reconnectDelay
		}
		if !c.reg.ScheduleRetry(tenantID, gen, delay, func(g int) { c.retry(tenantID, g) }) {
			// A disconnect request can land between the close decision and
			// arming the timer; the registry refuses the retry then, and the
			// disconnect wins.
			if rec, ok := c.reg.CloseInfo(tenantID, gen); ok && rec.State == StateDisconnecting {
				c.settleTerminal(tenantID, gen, reason, everConnected)
			}
			return
		}
		log.Printf("session: tenant %s: connection closed (%s), reconnecting in %s", tenantID, reason, delay)

	case outcomeTerminal:
		c.settleTerminal(tenantID, gen, reason, everConnected)
	}
}

// settleTerminal finishes a close that must not reconnect: the record goes
// to Disconnected, the status is persisted, and SessionClosed is published.
func (c *Controller) settleTerminal(tenantID string, gen int, reason string, everConnected bool) {
	if !c.reg.MarkTerminal(tenantID, gen) {
		return
	}
	if reason == engine.ReasonLoggedOut {
		// The identity is gone on the remote side; a stale blob would
		// just make the next start fail its handshake.
		if err := c.store.DeleteCredentials(tenantID); err != nil {
			log.Printf("session: tenant %s: delete credentials: %v", tenantID, err)
		}
	}
	if err := c.store.UpsertStatus(tenantID, string(StateDisconnected), "", everConnected); err != nil {
		log.Printf("session: tenant %s: persist status: %v", tenantID, err)
	}
	log.Printf("session: tenant %s: connection closed (%s), not reconnecting", tenantID, reason)
	c.bus.Publish(tenantID, bus.Event{Kind: bus.KindSessionClosed})
}

// retry runs a scheduled reconnection attempt.
func (c *Controller) retry(tenantID string, gen int) {
	newGen, ok := c.reg.BeginRetry(tenantID, gen)
	if !ok {
		return
	}
	log.Printf("session: tenant %s: reconnecting (gen %d)", tenantID, newGen)
	if err := c.open(context.Background(), tenantID, newGen); err != nil {
		// The network may still be down; keep trying on the stalled-attempt
		// cadence instead of giving up.
		log.Printf("session: tenant %s: reconnect failed: %v", tenantID, err)
		c.reg.ScheduleRetry(tenantID, newGen, c.retryDelay, func(g int) { c.retry(tenantID, g) })
	}
}

// Disconnect explicitly ends a tenant's session: any pending retry is
// cancelled and the live connection, if any, is logged out and torn down.
func (c *Controller) Disconnect(ctx context.Context, tenantID string) error {
	conn, err := c.reg.Disconnect(tenantID)
	if err != nil {
		return err
	}
	if conn == nil {
		// Retry was pending; the registry settled the record in place.
		rec, _ := c.reg.Get(tenantID)
		if err := c.store.UpsertStatus(tenantID, string(StateDisconnected), "", rec.EverConnected); err != nil {
			log.Printf("session: tenant %s: persist status: %v", tenantID, err)
		}
		log.Printf("session: tenant %s: pending reconnect cancelled", tenantID)
		c.bus.Publish(tenantID, bus.Event{Kind: bus.KindSessionClosed})
		return nil
	}
	if err := conn.Logout(ctx); err != nil {
		log.Printf("session: tenant %s: logout: %v", tenantID, err)
		// Force the teardown; the pump settles the record when the stream ends.
		conn.Close()
	}
	return nil
}

// Status reports a tenant's current record. Tenants with no session report
// a default disconnected record rather than an error.
func (c *Controller) Status(tenantID string) Record {
	if rec, ok := c.reg.Get(tenantID); ok {
		return rec
	}
	return Record{TenantID: tenantID, State: StateDisconnected}
}

// Shutdown tears down every live connection without logging anyone out, so
// credentials stay valid for the next process start.
func (c *Controller) Shutdown() {
	for _, conn := range c.reg.Conns() {
		conn.Close()
	}
}
