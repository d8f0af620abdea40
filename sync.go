package swcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Pending is a queued write waiting for background sync.
type Pending struct {
	Body     json.RawMessage
	Enqueued time.Time
}

type outbox struct {
	mu    sync.Mutex
	items []*Pending
}

// Enqueue queues v (JSON-encoded) for the next sync of the worker's tag.
func (w *Worker) Enqueue(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("swcache: encode pending data: %w", err)
	}
	w.outbox.mu.Lock()
	w.outbox.items = append(w.outbox.items, &Pending{Body: b, Enqueued: time.Now()})
	w.outbox.mu.Unlock()
	return nil
}

// Pending returns a copy of the queued items, oldest first.
func (w *Worker) Pending() []Pending {
	w.outbox.mu.Lock()
	defer w.outbox.mu.Unlock()
	out := make([]Pending, len(w.outbox.items))
	for i, p := range w.outbox.items {
		out[i] = *p
	}
	return out
}

// Sync replays queued items as JSON POSTs to the sync endpoint when tag is
// the worker's sync tag; other tags are ignored. Delivered items leave the
// queue, failed ones stay for the next sync.
func (w *Worker) Sync(ctx context.Context, tag string) error {
	if tag != w.syncTag {
		w.log.Debug("ignored sync tag", Fields{"tag": tag})
		return nil
	}
	w.outbox.mu.Lock()
	batch := append([]*Pending(nil), w.outbox.items...)
	w.outbox.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	endpoint := w.resolve(w.syncPath)
	delivered := make(map[*Pending]struct{}, len(batch))
	var errs []error
	for _, p := range batch {
		bo := backoff.WithContext(backoff.WithMaxRetries(w.newBackoff(), w.syncTries), ctx)
		err := backoff.Retry(func() error { return w.deliver(ctx, endpoint, p.Body) }, bo)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		delivered[p] = struct{}{}
	}

	w.outbox.mu.Lock()
	kept := w.outbox.items[:0]
	for _, p := range w.outbox.items {
		if _, ok := delivered[p]; !ok {
			kept = append(kept, p)
		}
	}
	w.outbox.items = kept
	w.outbox.mu.Unlock()

	w.log.Info("background sync finished", Fields{"tag": tag, "delivered": len(delivered), "failed": len(errs)})
	return errors.Join(errs...)
}

func (w *Worker) deliver(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	drain(resp)
	switch {
	case ok2xx(resp):
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("swcache: sync %s: %w: %d", endpoint, errNetworkStatus, resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("swcache: sync %s: %w: %d", endpoint, errNetworkStatus, resp.StatusCode))
	}
}
