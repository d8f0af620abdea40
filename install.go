package swcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/swcache/storage"
)

const prefetchConcurrency = 4

// addAll fetches every path and writes them all, or writes nothing. A store
// failure rolls back the entries already written. Install entries carry no
// TTL: they live as long as their versioned partition.
func (w *Worker) addAll(ctx context.Context, name string, paths []string) error {
	part, err := w.store.Open(ctx, name)
	if err != nil {
		return &InstallError{StoreErr: err}
	}

	entries := make([]storage.Entry, len(paths))
	failed := make([]*AssetError, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		g.Go(func() error {
			u := w.resolve(p)
			e, err := w.fetchAsset(ctx, u)
			if err != nil {
				failed[i] = err
				return nil
			}
			e.URL = u
			entries[i] = e
			return nil
		})
	}
	_ = g.Wait()

	var ie InstallError
	for _, f := range failed {
		if f != nil {
			ie.Assets = append(ie.Assets, f)
		}
	}
	if len(ie.Assets) > 0 {
		return &ie
	}

	written := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := part.Put(ctx, e.URL, e, 0); err != nil {
			ie.StoreErr = err
			if derr := part.Delete(ctx, written...); derr != nil {
				ie.StoreErr = errors.Join(err, derr)
			}
			return &ie
		}
		written = append(written, e.URL)
		w.hooks.Stored(name, e.URL, len(e.Body))
	}
	return nil
}

func (w *Worker) fetchAsset(ctx context.Context, u string) (storage.Entry, *AssetError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return storage.Entry{}, &AssetError{URL: u, Err: err}
	}
	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		return storage.Entry{}, &AssetError{URL: u, Err: err}
	}
	if !ok2xx(resp) {
		drain(resp)
		return storage.Entry{}, &AssetError{URL: u, Status: resp.StatusCode, Err: errNetworkStatus}
	}
	e, _, err := capture(resp)
	if err != nil {
		return storage.Entry{}, &AssetError{URL: u, Err: err}
	}
	return e, nil
}

// prefetchAll warms the optional manifest. Each failure is reported and
// otherwise ignored.
func (w *Worker) prefetchAll(ctx context.Context, name string, paths []string) {
	part, err := w.store.Open(ctx, name)
	if err != nil {
		w.log.Warn("prefetch skipped", Fields{"partition": name, "err": err})
		return
	}
	p := pool.New().WithMaxGoroutines(prefetchConcurrency)
	for _, path := range paths {
		u := w.resolve(path)
		p.Go(func() {
			e, aerr := w.fetchAsset(ctx, u)
			if aerr != nil {
				w.hooks.PrefetchFailed(u, aerr)
				w.log.Debug("prefetch failed", Fields{"url": u, "err": aerr})
				return
			}
			if err := part.Put(ctx, u, e, 0); err != nil {
				w.hooks.PrefetchFailed(u, fmt.Errorf("store: %w", err))
				return
			}
			w.hooks.Stored(name, u, len(e.Body))
		})
	}
	p.Wait()
}
