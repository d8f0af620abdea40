// Package asynchook moves Hooks calls off the fetch path onto a bounded queue.
// Events are dropped, and counted, when the queue is full.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{LookupEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	w, _ := swcache.New(swcache.Options{
//	    Origin: "https://app.myfithero.com",
//	    Hooks:  hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/swcache"
)

type Hooks struct {
	inner   swcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ swcache.Hooks = (*Hooks)(nil)

func New(inner swcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events raised after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost the race with Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) CacheHit(c, k string)  { h.try(func() { h.inner.CacheHit(c, k) }) }
func (h *Hooks) CacheMiss(c, k string) { h.try(func() { h.inner.CacheMiss(c, k) }) }
func (h *Hooks) Stored(p, k string, n int) {
	h.try(func() { h.inner.Stored(p, k, n) })
}
func (h *Hooks) StoreSkipped(p, k, r string) {
	h.try(func() { h.inner.StoreSkipped(p, k, r) })
}
func (h *Hooks) NetworkError(c, k string, err error) {
	h.try(func() { h.inner.NetworkError(c, k, err) })
}
func (h *Hooks) Fallback(c, k string) { h.try(func() { h.inner.Fallback(c, k) }) }
func (h *Hooks) Revalidated(p, k string, err error) {
	h.try(func() { h.inner.Revalidated(p, k, err) })
}
func (h *Hooks) PartitionPurged(name string) { h.try(func() { h.inner.PartitionPurged(name) }) }
func (h *Hooks) Trimmed(p string, n int)     { h.try(func() { h.inner.Trimmed(p, n) }) }
func (h *Hooks) PrefetchFailed(u string, err error) {
	h.try(func() { h.inner.PrefetchFailed(u, err) })
}
