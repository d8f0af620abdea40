package swcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/unkn0wn-root/swcache/storage"
)

func (w *Worker) route(ctx context.Context, req *http.Request, class Class) (*http.Response, error) {
	switch class {
	case ClassImage:
		return w.cacheFirst(ctx, req, class, w.names.Image, w.images.MaxAge)
	case ClassStatic:
		return w.cacheFirst(ctx, req, class, w.names.Static, w.static.MaxAge)
	case ClassAPI:
		return w.networkFirst(ctx, req, class, w.api.MaxAge)
	case ClassPage:
		return w.networkFirst(ctx, req, class, w.pages.MaxAge)
	default:
		resp, err := w.fetcher.Fetch(ctx, req)
		if err != nil {
			w.hooks.NetworkError(class.String(), req.URL.String(), err)
			return nil, err
		}
		return markMiss(resp), nil
	}
}

// cacheFirst serves a stored copy when there is one. Image hits also start a
// background refresh; static hits are assumed immutable.
func (w *Worker) cacheFirst(ctx context.Context, req *http.Request, class Class, name string, ttl time.Duration) (*http.Response, error) {
	part, err := w.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	key := req.URL.String()
	e, ok, err := part.Match(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		w.hooks.CacheHit(class.String(), key)
		if class == ClassImage {
			w.revalidate(req, part, class, ttl)
		}
		return entryResponse(req, e), nil
	}
	w.hooks.CacheMiss(class.String(), key)

	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		w.networkError(class, key, err)
		return w.strategyFallback(ctx, req, class)
	}
	out, _, err := w.put(ctx, part, class, key, resp, ttl)
	return out, err
}

// networkFirst prefers the live response and falls back to the stored copy,
// then to the class fallback, only when the network fails.
func (w *Worker) networkFirst(ctx context.Context, req *http.Request, class Class, ttl time.Duration) (*http.Response, error) {
	part, err := w.store.Open(ctx, w.names.Dynamic)
	if err != nil {
		return nil, err
	}
	key := req.URL.String()

	resp, err := w.fetcher.Fetch(ctx, req)
	if err == nil {
		if class == ClassAPI && req.Method != http.MethodGet {
			return markMiss(resp), nil
		}
		out, _, err := w.put(ctx, part, class, key, resp, ttl)
		return out, err
	}
	w.networkError(class, key, err)

	e, ok, err := part.Match(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		w.hooks.CacheHit(class.String(), key)
		return entryResponse(req, e), nil
	}
	w.hooks.CacheMiss(class.String(), key)
	return w.strategyFallback(ctx, req, class)
}

// put stores a successful response and returns the response to hand to the
// caller. Non-2xx and oversized images pass through unbuffered. A failed
// write is logged and the live response is still returned.
func (w *Worker) put(ctx context.Context, part *storage.Partition, class Class, key string, resp *http.Response, ttl time.Duration) (*http.Response, bool, error) {
	if !ok2xx(resp) {
		return markMiss(resp), false, nil
	}
	if class == ClassImage {
		if n := contentLength(resp); n >= w.maxImage {
			w.hooks.StoreSkipped(part.Name(), key, "oversize")
			w.log.Debug("image too large to cache", Fields{"url": key, "bytes": n})
			return markMiss(resp), false, nil
		}
	}
	e, out, err := capture(resp)
	if err != nil {
		return nil, false, fmt.Errorf("swcache: %s: %w", key, err)
	}
	if err := part.Put(ctx, key, e, ttl); err != nil {
		reason := "error"
		if errors.Is(err, storage.ErrRejected) {
			reason = "rejected"
		}
		w.hooks.StoreSkipped(part.Name(), key, reason)
		w.log.Warn("cache write failed", Fields{"partition": part.Name(), "url": key, "err": err})
		return markMiss(out), false, nil
	}
	w.hooks.Stored(part.Name(), key, len(e.Body))
	return markMiss(out), true, nil
}

// revalidate refreshes a stored image after a hit. The caller's response is
// already decided; the refresh outlives the request context.
func (w *Worker) revalidate(req *http.Request, part *storage.Partition, class Class, ttl time.Duration) {
	ctx := context.WithoutCancel(req.Context())
	r := req.Clone(ctx)
	key := req.URL.String()

	w.bgMu.Lock()
	defer w.bgMu.Unlock()
	if w.closed.Load() {
		return
	}
	w.bg.Go(func() {
		resp, err := w.fetcher.Fetch(ctx, r)
		if err != nil {
			w.hooks.Revalidated(part.Name(), key, err)
			return
		}
		status := resp.StatusCode
		out, _, err := w.put(ctx, part, class, key, resp, ttl)
		drain(out)
		if err == nil && (status < 200 || status >= 300) {
			err = fmt.Errorf("%w: %d", errNetworkStatus, status)
		}
		w.hooks.Revalidated(part.Name(), key, err)
	})
}

func (w *Worker) networkError(class Class, key string, err error) {
	w.hooks.NetworkError(class.String(), key, err)
	w.log.Debug("network request failed", Fields{"class": class.String(), "url": key, "err": err})
}
