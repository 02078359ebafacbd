// Package bus provides the in-process event bus that fans session lifecycle
// and message events out to subscribers, keyed by tenant id.
package bus

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds published on the bus.
const (
	KindScanCodeReady    = "scan_code_ready"
	KindSessionConnected = "session_connected"
	KindSessionClosed    = "session_closed"
	KindMessageReceived  = "message_received"
)

// Event is a single bus event. Kind selects which payload fields are set.
type Event struct {
	Kind     string    `json:"kind"`
	TenantID string    `json:"tenant_id"`
	Image    string    `json:"image,omitempty"`     // KindScanCodeReady: rendered scan code
	Phone    string    `json:"phone,omitempty"`     // KindSessionConnected
	From     string    `json:"from,omitempty"`      // KindMessageReceived
	Text     string    `json:"text,omitempty"`      // KindMessageReceived
	Time     time.Time `json:"timestamp,omitzero"` // KindMessageReceived
}

// subBuffer is the per-subscriber channel capacity. Delivery is best-effort:
// a subscriber that falls this far behind starts losing events.
const subBuffer = 64

// Subscription is a registered delivery target. Receive from C; call
// Bus.Unsubscribe when done.
type Subscription struct {
	ID       uuid.UUID
	TenantID string // empty for wildcard subscriptions
	C        chan Event
	all      bool
}

// Bus is a concurrency-safe publish/subscribe hub. A publish with zero
// subscribers is a no-op.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[uuid.UUID]*Subscription // tenant id -> subscriptions
	all  map[uuid.UUID]*Subscription            // wildcard subscriptions
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[string]map[uuid.UUID]*Subscription),
		all:  make(map[uuid.UUID]*Subscription),
	}
}

// Subscribe registers a listener for one tenant's events.
func (b *Bus) Subscribe(tenantID string) *Subscription {
	sub := &Subscription{
		ID:       uuid.New(),
		TenantID: tenantID,
		C:        make(chan Event, subBuffer),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[tenantID] == nil {
		b.subs[tenantID] = make(map[uuid.UUID]*Subscription)
	}
	b.subs[tenantID][sub.ID] = sub
	return sub
}

// SubscribeAll registers a listener for every tenant's events. Used by
// operational sinks that watch the whole fleet.
func (b *Bus) SubscribeAll() *Subscription {
	sub := &Subscription{
		ID:  uuid.New(),
		C:   make(chan Event, subBuffer),
		all: true,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.all {
		if _, ok := b.all[sub.ID]; !ok {
			return
		}
		delete(b.all, sub.ID)
	} else {
		tenantSubs, ok := b.subs[sub.TenantID]
		if !ok {
			return
		}
		if _, ok := tenantSubs[sub.ID]; !ok {
			return
		}
		delete(tenantSubs, sub.ID)
		if len(tenantSubs) == 0 {
			delete(b.subs, sub.TenantID)
		}
	}
	close(sub.C)
}

// Publish delivers an event to the tenant's subscribers and all wildcard
// subscribers. Delivery is at-most-once per live subscriber; slow
// subscribers are skipped rather than blocking the publisher.
func (b *Bus) Publish(tenantID string, ev Event) {
	ev.TenantID = tenantID

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[tenantID] {
		deliver(sub, ev)
	}
	for _, sub := range b.all {
		deliver(sub, ev)
	}
}

func deliver(sub *Subscription, ev Event) {
	select {
	case sub.C <- ev:
	default:
		log.Printf("bus: subscriber %s behind, dropping %s for tenant %s", sub.ID, ev.Kind, ev.TenantID)
	}
}

// SubscriberCount returns the number of live subscriptions for a tenant,
// not counting wildcards.
func (b *Bus) SubscriberCount(tenantID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[tenantID])
}
