// Package promhooks exports swcache.Hooks events as Prometheus counters.
// Call sites only increment counters, so the hooks are safe on the fetch path
// without hooks/async.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/swcache"
)

type Hooks struct {
	lookups     *prometheus.CounterVec // class, result
	stored      *prometheus.CounterVec // partition
	storedBytes *prometheus.CounterVec // partition
	skipped     *prometheus.CounterVec // partition, reason
	netErrors   *prometheus.CounterVec // class
	fallbacks   *prometheus.CounterVec // class
	revalidated *prometheus.CounterVec // partition, result
	purged      prometheus.Counter
	trimmed     *prometheus.CounterVec // partition
	prefetch    prometheus.Counter
}

var _ swcache.Hooks = (*Hooks)(nil)

// New registers the counters on reg under namespace ("" => "swcache").
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	if namespace == "" {
		namespace = "swcache"
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	single := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	h := &Hooks{
		lookups:     counter("lookups_total", "Cache lookups by class and result.", "class", "result"),
		stored:      counter("stored_total", "Responses written to a partition.", "partition"),
		storedBytes: counter("stored_bytes_total", "Body bytes written to a partition.", "partition"),
		skipped:     counter("store_skipped_total", "Cacheable responses not written.", "partition", "reason"),
		netErrors:   counter("network_errors_total", "Failed origin fetches.", "class"),
		fallbacks:   counter("fallbacks_total", "Synthetic offline responses served.", "class"),
		revalidated: counter("revalidations_total", "Background image revalidations.", "partition", "result"),
		purged:      single("partitions_purged_total", "Stale partitions deleted on activation."),
		trimmed:     counter("trimmed_entries_total", "Entries removed by the size governor.", "partition"),
		prefetch:    single("prefetch_failures_total", "Optional install assets that failed."),
	}
	for _, c := range []prometheus.Collector{
		h.lookups, h.stored, h.storedBytes, h.skipped, h.netErrors,
		h.fallbacks, h.revalidated, h.purged, h.trimmed, h.prefetch,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) CacheHit(class, _ string)  { h.lookups.WithLabelValues(class, "hit").Inc() }
func (h *Hooks) CacheMiss(class, _ string) { h.lookups.WithLabelValues(class, "miss").Inc() }

func (h *Hooks) Stored(partition, _ string, size int) {
	h.stored.WithLabelValues(partition).Inc()
	h.storedBytes.WithLabelValues(partition).Add(float64(size))
}

func (h *Hooks) StoreSkipped(partition, _, reason string) {
	h.skipped.WithLabelValues(partition, reason).Inc()
}

func (h *Hooks) NetworkError(class, _ string, _ error) { h.netErrors.WithLabelValues(class).Inc() }
func (h *Hooks) Fallback(class, _ string)              { h.fallbacks.WithLabelValues(class).Inc() }

func (h *Hooks) Revalidated(partition, _ string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.revalidated.WithLabelValues(partition, result).Inc()
}

func (h *Hooks) PartitionPurged(string)          { h.purged.Inc() }
func (h *Hooks) Trimmed(partition string, n int) { h.trimmed.WithLabelValues(partition).Add(float64(n)) }
func (h *Hooks) PrefetchFailed(string, error)    { h.prefetch.Inc() }
