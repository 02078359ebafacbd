// Package notify pushes operational notifications to chat sinks: session
// lifecycle changes as they happen, and a scheduled daily activity digest.
// Inbound customer messages are deliberately not forwarded here; they go to
// the tenant's own event stream.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/store"
)

// Notifier delivers one formatted notification to a sink.
type Notifier interface {
	Notify(title, body string) error
}

// Daemon consumes lifecycle events from the bus and fans them out to every
// configured sink. It also runs the digest scheduler when a cron expression
// is set.
type Daemon struct {
	bus      *bus.Bus
	store    *store.Store
	sinks    []Notifier
	digestAt string
}

// Opts holds parameters for creating a Daemon.
type Opts struct {
	Bus   *bus.Bus
	Store *store.Store
	Sinks []Notifier
	// DigestCron is a 5-field cron expression; empty disables the digest.
	DigestCron string
}

// New creates a Daemon.
func New(opts Opts) (*Daemon, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("notify: bus is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("notify: store is required")
	}
	return &Daemon{
		bus:      opts.Bus,
		store:    opts.Store,
		sinks:    opts.Sinks,
		digestAt: opts.DigestCron,
	}, nil
}

// Run consumes the bus until ctx is cancelled. Blocks; callers run it in a
// goroutine.
func (d *Daemon) Run(ctx context.Context) {
	sub := d.bus.SubscribeAll()
	defer d.bus.Unsubscribe(sub)

	if d.digestAt != "" {
		go d.runDigestScheduler(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			d.handleEvent(ev)
		}
	}
}

func (d *Daemon) handleEvent(ev bus.Event) {
	title, body, ok := formatLifecycle(ev)
	if !ok {
		return
	}
	d.deliver(title, body)
}

func (d *Daemon) deliver(title, body string) {
	for _, sink := range d.sinks {
		if err := sink.Notify(title, body); err != nil {
			log.Printf("notify: deliver %q: %v", title, err)
		}
	}
}

// formatLifecycle renders a lifecycle event for the ops channel. Message
// traffic returns ok=false.
func formatLifecycle(ev bus.Event) (title, body string, ok bool) {
	switch ev.Kind {
	case bus.KindSessionConnected:
		title = "Session connected"
		body = fmt.Sprintf("Tenant %s is connected as %s.", ev.TenantID, ev.Phone)
	case bus.KindSessionClosed:
		title = "Session closed"
		body = fmt.Sprintf("Tenant %s is disconnected.", ev.TenantID)
	case bus.KindScanCodeReady:
		title = "Scan code waiting"
		body = fmt.Sprintf("Tenant %s has a fresh scan code pending approval.", ev.TenantID)
	default:
		return "", "", false
	}
	return title, body, true
}

// runDigestScheduler fires the daily digest on the configured cron schedule
// until ctx is cancelled.
func (d *Daemon) runDigestScheduler(ctx context.Context) {
	for {
		wait := nextCronDuration(d.digestAt)
		if wait == 0 {
			log.Printf("notify: invalid digest cron %q, scheduler stopped", d.digestAt)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			d.SendDigest()
		}
	}
}

// SendDigest builds and delivers the activity digest for the last 24 hours.
// Quiet days are suppressed.
func (d *Daemon) SendDigest() {
	title, body, err := BuildDigest(d.store, time.Now().Add(-24*time.Hour))
	if err != nil {
		log.Printf("notify: build digest: %v", err)
		return
	}
	if title == "" {
		return
	}
	d.deliver(title, body)
}
