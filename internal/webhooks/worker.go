package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"rasd/internal/metrics"
	"rasd/internal/store"
)

// Worker drains the delivery queue on a ticker, signing each payload and
// backing off exponentially on failure.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
}

func NewWorker(s store.Store) *Worker {
	max := 10
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			max = n
		}
	}
	return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, Stop: make(chan struct{}), MaxAttempts: max}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	due, err := w.Store.DueWebhooks(ctx, time.Now(), 50)
	if err != nil {
		return
	}
	for _, d := range due {
		w.deliver(ctx, d)
	}
}

func (w *Worker) deliver(ctx context.Context, d store.WebhookDelivery) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Body))
	if err != nil {
		_ = w.Store.MarkWebhookDelivery(ctx, d.ID, false, nil, err.Error(), 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", d.EventType)
	if d.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(d.Secret, d.Body))
	}
	resp, err := w.HTTP.Do(req)
	if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_ = resp.Body.Close()
		_ = w.Store.MarkWebhookDelivery(ctx, d.ID, true, nil, "", resp.StatusCode)
		metrics.WebhookDeliveries.WithLabelValues(d.EventType, "ok").Inc()
		return
	}
	code := 0
	errMsg := "unreachable"
	if err != nil {
		errMsg = err.Error()
	} else {
		code = resp.StatusCode
		errMsg = resp.Status
		_ = resp.Body.Close()
	}
	if d.Attempts+1 >= w.MaxAttempts {
		// Exhausted: mark done so the queue does not churn forever.
		_ = w.Store.MarkWebhookDelivery(ctx, d.ID, false, nil, errMsg, code)
		metrics.WebhookDeliveries.WithLabelValues(d.EventType, "dead").Inc()
		return
	}
	backoff := time.Duration(1<<uint(d.Attempts)) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	next := time.Now().Add(backoff)
	_ = w.Store.MarkWebhookDelivery(ctx, d.ID, false, &next, errMsg, code)
	metrics.WebhookDeliveries.WithLabelValues(d.EventType, "retry").Inc()
}
