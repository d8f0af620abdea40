// Package sloghooks logs swcache.Hooks events through log/slog.
package sloghooks

import (
	"context"
	"log/slog"
	"net/url"
	"sync/atomic"

	"github.com/unkn0wn-root/swcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	LookupEvery  uint64 // cache hits and misses
	NetworkEvery uint64 // network errors
	// Optional URL redactor. Defaults to dropping query and fragment, which
	// is where API tokens travel.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	lookupCtr  atomic.Uint64
	networkCtr atomic.Uint64
}

var _ swcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	u, err := url.Parse(k)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) CacheHit(class, key string) {
	if h.l == nil || !sample(h.opts.LookupEvery, &h.lookupCtr) {
		return
	}
	h.l.Debug("swcache.cache_hit", "class", class, "url", h.redact(key))
}

func (h *Hooks) CacheMiss(class, key string) {
	if h.l == nil || !sample(h.opts.LookupEvery, &h.lookupCtr) {
		return
	}
	h.l.Debug("swcache.cache_miss", "class", class, "url", h.redact(key))
}

func (h *Hooks) Stored(partition, key string, size int) {
	if h.l == nil {
		return
	}
	h.l.Debug("swcache.stored",
		"partition", partition,
		"url", h.redact(key),
		"bytes", size)
}

func (h *Hooks) StoreSkipped(partition, key, reason string) {
	if h.l == nil {
		return
	}
	lvl := slog.LevelWarn
	if reason == "oversize" {
		lvl = slog.LevelInfo
	}
	h.l.Log(context.Background(), lvl, "swcache.store_skipped",
		"partition", partition,
		"url", h.redact(key),
		"reason", reason)
}

func (h *Hooks) NetworkError(class, key string, err error) {
	if h.l == nil || !sample(h.opts.NetworkEvery, &h.networkCtr) {
		return
	}
	h.l.Warn("swcache.network_error",
		"class", class,
		"url", h.redact(key),
		"err", err)
}

func (h *Hooks) Fallback(class, key string) {
	if h.l == nil {
		return
	}
	h.l.Info("swcache.fallback", "class", class, "url", h.redact(key))
}

func (h *Hooks) Revalidated(partition, key string, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Debug("swcache.revalidate_failed",
			"partition", partition,
			"url", h.redact(key),
			"err", err)
		return
	}
	h.l.Debug("swcache.revalidated", "partition", partition, "url", h.redact(key))
}

func (h *Hooks) PartitionPurged(name string) {
	if h.l == nil {
		return
	}
	h.l.Info("swcache.partition_purged", "partition", name)
}

func (h *Hooks) Trimmed(partition string, removed int) {
	if h.l == nil {
		return
	}
	h.l.Info("swcache.trimmed", "partition", partition, "removed", removed)
}

func (h *Hooks) PrefetchFailed(u string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swcache.prefetch_failed", "url", h.redact(u), "err", err)
}
