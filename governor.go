package swcache

import (
	"context"
	"errors"
	"fmt"
)

// MessageCacheCleanup asks the worker to trim its bounded partitions.
const MessageCacheCleanup = "CACHE_CLEANUP"

// Message is a control message posted by a client.
type Message struct {
	Type string `json:"type"`
}

// PostMessage handles a client message. Unknown types are ignored.
func (w *Worker) PostMessage(ctx context.Context, m Message) error {
	if m.Type != MessageCacheCleanup {
		w.log.Debug("ignored message", Fields{"type": m.Type})
		return nil
	}
	return w.Trim(ctx)
}

// Trim runs one governor cycle: the image partition and the dynamic
// partition (shared by api and page) are cut down to their limits by
// deleting their oldest entries. Order is insertion order, not access order.
func (w *Worker) Trim(ctx context.Context) error {
	bounds := []struct {
		name string
		max  int
	}{
		{w.names.Image, w.images.MaxEntries},
		{w.names.Dynamic, w.api.MaxEntries + w.pages.MaxEntries},
	}
	var errs []error
	for _, b := range bounds {
		n, err := w.limit(ctx, b.name, b.max)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n > 0 {
			w.hooks.Trimmed(b.name, n)
			w.log.Info("trimmed partition", Fields{"partition": b.name, "removed": n, "max": b.max})
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) limit(ctx context.Context, name string, maxEntries int) (int, error) {
	part, err := w.store.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	keys, err := part.Keys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) <= maxEntries {
		return 0, nil
	}
	excess := keys[:len(keys)-maxEntries]
	if err := part.Delete(ctx, excess...); err != nil {
		return 0, fmt.Errorf("swcache: trim %q: %w", name, err)
	}
	return len(excess), nil
}
