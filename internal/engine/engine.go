// Package engine defines the boundary to the wire-level messaging protocol
// engine. Switchboard drives one Conn per tenant through this interface; the
// engine owns connecting, encryption, and framing against the remote
// messaging network.
package engine

import (
	"context"
	"time"
)

// Event kinds emitted by a Conn.
const (
	EventCredentials = "credentials"
	EventScanCode    = "scan_code"
	EventOpened      = "opened"
	EventClosed      = "closed"
	EventMessage     = "message"
)

// Close reasons carried by EventClosed. ReasonLoggedOut means the account
// was explicitly logged out on the remote side; everything else is treated
// as a network-level drop.
const (
	ReasonConnectionLost = "connection_lost"
	ReasonLoggedOut      = "logged_out"
	ReasonEngineError    = "engine_error"
)

// Event is a single lifecycle or message event from a connection. Kind
// selects which payload fields are set.
type Event struct {
	Kind        string
	Credentials []byte   // EventCredentials: updated opaque credential blob
	ScanCode    string   // EventScanCode: pairing code to render for the user
	Phone       string   // EventOpened: resolved account identifier
	Reason      string   // EventClosed: one of the Reason constants
	Message     *Message // EventMessage
}

// Message is an inbound protocol message.
type Message struct {
	From         string // counterparty address in the engine's form
	FromSelf     bool   // authored by the tenant's own account
	Text         string // primary text content
	ExtendedText string // extended-text variant (links, quotes)
	Timestamp    time.Time
}

// OpenOpts carries per-tenant settings for opening a connection.
type OpenOpts struct {
	TenantID string
}

// Engine opens connections seeded with previously persisted credentials.
// An empty creds slice means no prior identity; the engine starts a fresh
// login and emits a scan code.
type Engine interface {
	Open(ctx context.Context, creds []byte, opts OpenOpts) (Conn, error)
}

// Conn is one live connection for a tenant. Events are emitted in the order
// the engine produces them; the channel is closed after EventClosed or Close.
// Ownership is exclusive to the lifecycle controller that opened it.
type Conn interface {
	// Events returns the connection's event stream.
	Events() <-chan Event

	// Send delivers a text message to a recipient address.
	Send(ctx context.Context, recipient, text string) error

	// Logout invalidates the account's credentials on the remote side.
	// The engine follows up with EventClosed carrying ReasonLoggedOut.
	Logout(ctx context.Context) error

	// Close tears down the network connection without logging out.
	Close() error
}
