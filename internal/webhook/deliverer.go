package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-faster/errors"
)

// Deliverer hands a Job to its endpoint, directly or through a queue.
type Deliverer interface {
	Deliver(ctx context.Context, job Job) error
}

// DeliveryRecorder stores delivery attempts.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, job Job, status int)
}

// HTTPDeliverer POSTs signed payloads. A non-2xx response is an error so a
// queue can retry it.
type HTTPDeliverer struct {
	httpClient *http.Client
	recorder   DeliveryRecorder
}

var _ Deliverer = (*HTTPDeliverer)(nil)

func NewHTTPDeliverer(recorder DeliveryRecorder, timeout time.Duration) *HTTPDeliverer {
	return &HTTPDeliverer{
		httpClient: &http.Client{Timeout: timeout},
		recorder:   recorder,
	}
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, job Job) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, job.URL, bytes.NewReader(job.Payload))
	if err != nil {
		d.record(ctx, job, 0)
		return errors.Wrap(err, "create webhook request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Webhook-Event", job.Event)
	httpReq.Header.Set("X-Webhook-Signature", Sign(job.Payload, job.Secret))
	httpReq.Header.Set("X-Webhook-ID", job.WebhookID.String())

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		d.record(ctx, job, 0)
		return errors.Wrap(err, "deliver webhook")
	}
	defer resp.Body.Close()

	d.record(ctx, job, resp.StatusCode)

	if !Delivered(resp.StatusCode) {
		slog.Warn("webhook received non-success response", "status", resp.StatusCode, "webhook_id", job.WebhookID)
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Delivered reports whether an endpoint response counts as a delivery. Only
// 2xx does; anything else is retried.
func Delivered(status int) bool {
	return status >= 200 && status < 300
}

func (d *HTTPDeliverer) record(ctx context.Context, job Job, status int) {
	if d.recorder != nil {
		d.recorder.RecordDelivery(ctx, job, status)
	}
}

// Sign returns the X-Webhook-Signature value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
