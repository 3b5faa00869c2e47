package webhook

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/crmgateway/internal/models"
)

type fakeFinder struct {
	hooks map[uuid.UUID][]models.Webhook
	err   error
}

func (f *fakeFinder) Subscribers(_ context.Context, tenantID uuid.UUID, event string) ([]models.Webhook, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Webhook
	for _, h := range f.hooks[tenantID] {
		for _, e := range h.Events {
			if e == event {
				out = append(out, h)
			}
		}
	}
	return out, nil
}

type fakeDeliverer struct {
	mu   sync.Mutex
	jobs []Job
}

func (f *fakeDeliverer) Deliver(_ context.Context, job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func TestDispatcher_FansOutToSubscribers(t *testing.T) {
	tenantA, tenantB := uuid.New(), uuid.New()
	hookA := models.Webhook{ID: uuid.New(), TenantID: tenantA, URL: "https://a.example/hook", Secret: "sa", Events: []string{EventContactCreated, EventDealUpdated}}
	hookB := models.Webhook{ID: uuid.New(), TenantID: tenantB, URL: "https://b.example/hook", Secret: "sb", Events: []string{EventContactCreated}}

	finder := &fakeFinder{hooks: map[uuid.UUID][]models.Webhook{tenantA: {hookA}, tenantB: {hookB}}}
	deliverer := &fakeDeliverer{}
	d := NewDispatcher(finder, deliverer, time.Second, 10)

	d.Publish(tenantA, EventContactCreated, map[string]any{"id": "c1"})
	d.Publish(tenantA, EventTaskCreated, map[string]any{"id": "t1"})
	d.Close()

	require.Len(t, deliverer.jobs, 1)
	job := deliverer.jobs[0]
	assert.Equal(t, hookA.ID, job.WebhookID)
	assert.Equal(t, "sa", job.Secret)
	assert.Equal(t, EventContactCreated, job.Event)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(job.Payload, &ev))
	assert.Equal(t, EventContactCreated, ev["event"])
	assert.Equal(t, tenantA.String(), ev["tenant_id"])
	assert.Equal(t, map[string]any{"id": "c1"}, ev["data"])
}

func TestDispatcher_LookupFailureIsLogged(t *testing.T) {
	deliverer := &fakeDeliverer{}
	d := NewDispatcher(&fakeFinder{err: errors.New("db down")}, deliverer, time.Second, 10)

	d.Publish(uuid.New(), EventDealCreated, nil)
	d.Close()
	assert.Empty(t, deliverer.jobs)
}

func TestDispatcher_PublishAfterClose(t *testing.T) {
	d := NewDispatcher(&fakeFinder{}, &fakeDeliverer{}, time.Second, 1)
	d.Close()

	assert.NotPanics(t, func() {
		d.Publish(uuid.New(), EventContactDeleted, nil)
	})
	assert.NotPanics(t, d.Close)
}
