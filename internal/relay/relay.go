// Package relay translates between the HTTP surface and the protocol
// engine: outbound send requests become connection calls, inbound protocol
// messages become persisted records and bus events.
package relay

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/engine"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
	"github.com/zulandar/switchboard/internal/store"
)

// Relay routes messages for all tenants. It implements
// session.InboundHandler for the inbound direction.
type Relay struct {
	reg   *session.Registry
	store *store.Store
	bus   *bus.Bus
	// domainSuffix is appended to bare recipient identifiers, e.g.
	// "521555" -> "521555@s.whatsapp.net".
	domainSuffix string
}

// Opts holds parameters for creating a Relay.
type Opts struct {
	Registry     *session.Registry
	Store        *store.Store
	Bus          *bus.Bus
	DomainSuffix string
}

// New creates a Relay.
func New(opts Opts) (*Relay, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("relay: registry is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("relay: store is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("relay: bus is required")
	}
	return &Relay{
		reg:          opts.Registry,
		store:        opts.Store,
		bus:          opts.Bus,
		domainSuffix: opts.DomainSuffix,
	}, nil
}

// Send delivers a text message through a tenant's connected session.
// Returns session.ErrNoActiveSession when the tenant has no Connected
// handle; nothing is persisted in that case.
func (r *Relay) Send(ctx context.Context, tenantID, recipient, text string) error {
	if recipient == "" {
		return fmt.Errorf("relay: recipient is required")
	}
	conn, err := r.reg.Conn(tenantID)
	if err != nil {
		return err
	}

	to := r.NormalizeRecipient(recipient)
	if err := conn.Send(ctx, to, text); err != nil {
		return fmt.Errorf("relay: send for %s: %w", tenantID, err)
	}

	// The message is on the wire; a store outage must not fail the request.
	rec := &models.ChatMessage{
		TenantID:     tenantID,
		Counterparty: to,
		Direction:    models.DirectionOutgoing,
		Text:         text,
		Read:         true,
	}
	if err := r.store.AppendMessage(rec); err != nil {
		log.Printf("relay: tenant %s: persist outgoing message: %v", tenantID, err)
	}
	return nil
}

// NormalizeRecipient converts a bare identifier into the engine's
// addressing form. Identifiers that already carry a domain pass through.
func (r *Relay) NormalizeRecipient(recipient string) string {
	if r.domainSuffix == "" || strings.Contains(recipient, "@") {
		return recipient
	}
	return recipient + r.domainSuffix
}

// HandleInbound persists an inbound protocol message and publishes it to
// the tenant's subscribers. Implements session.InboundHandler.
func (r *Relay) HandleInbound(tenantID string, msg engine.Message) {
	text := extractText(msg)

	rec := &models.ChatMessage{
		TenantID:     tenantID,
		Counterparty: msg.From,
		Direction:    models.DirectionIncoming,
		Text:         text,
		Timestamp:    msg.Timestamp,
	}
	if err := r.store.AppendMessage(rec); err != nil {
		// Receipt continues; history just has a gap.
		log.Printf("relay: tenant %s: persist incoming message: %v", tenantID, err)
	}

	r.bus.Publish(tenantID, bus.Event{
		Kind: bus.KindMessageReceived,
		From: msg.From,
		Text: text,
		Time: msg.Timestamp,
	})
}

// extractText picks the message's plain text content: the primary field
// when present, the extended-text variant otherwise, else empty.
func extractText(msg engine.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.ExtendedText
}
