package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/crmgateway/internal/models"
)

// SubscriberFinder looks up the endpoints an event goes to.
type SubscriberFinder interface {
	Subscribers(ctx context.Context, tenantID uuid.UUID, event string) ([]models.Webhook, error)
}

// Dispatcher publishes events without blocking the request that caused them.
// Events are buffered and processed by a single loop; when the buffer is full
// new events are dropped with a warning.
type Dispatcher struct {
	finder    SubscriberFinder
	deliverer Deliverer
	timeout   time.Duration
	events    chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(finder SubscriberFinder, deliverer Deliverer, timeout time.Duration, buffer int) *Dispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if buffer <= 0 {
		buffer = 1000
	}
	d := &Dispatcher{
		finder:    finder,
		deliverer: deliverer,
		timeout:   timeout,
		events:    make(chan Event, buffer),
		done:      make(chan struct{}),
	}
	go d.processLoop()
	return d
}

// Publish queues an event for tenantID. It never blocks and never fails.
func (d *Dispatcher) Publish(tenantID uuid.UUID, name string, data any) {
	ev := Event{TenantID: tenantID, Name: name, Data: data, CreatedAt: time.Now().UTC()}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.events <- ev:
	default:
		slog.Warn("webhook event queue full, dropping", "tenant_id", tenantID, "event", name)
	}
}

// Close stops accepting events and waits for buffered ones to be handed off.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) processLoop() {
	defer close(d.done)
	for ev := range d.events {
		d.dispatch(ev)
	}
}

func (d *Dispatcher) dispatch(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	hooks, err := d.finder.Subscribers(ctx, ev.TenantID, ev.Name)
	if err != nil {
		slog.Error("webhook subscriber lookup failed", "error", err, "event", ev.Name)
		return
	}
	if len(hooks) == 0 {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal webhook event", "error", err, "event", ev.Name)
		return
	}

	for _, h := range hooks {
		job := Job{WebhookID: h.ID, URL: h.URL, Secret: h.Secret, Event: ev.Name, Payload: payload}
		if err := d.deliverer.Deliver(ctx, job); err != nil {
			slog.Error("webhook delivery failed", "error", err, "webhook_id", h.ID, "event", ev.Name)
		}
	}
}
