package swcache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: the worker calls them on the
// fetch path. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A lookup in a strategy's partition hit or missed.
	CacheHit(class, key string)
	CacheMiss(class, key string)

	// A response was written to a partition.
	Stored(partition, key string, size int)
	// A cacheable response was not written.
	// reason ∈ {"oversize", "rejected", "error"}
	StoreSkipped(partition, key, reason string)

	// The network fetch failed (transport error or open breaker).
	NetworkError(class, key string, err error)
	// A synthetic fallback response was served.
	Fallback(class, key string)

	// A background image revalidation finished. err is nil on success.
	Revalidated(partition, key string, err error)

	// Activation deleted a partition outside the valid set.
	PartitionPurged(name string)
	// A trim cycle removed entries from a bounded partition.
	Trimmed(partition string, removed int)

	// An optional prefetch asset failed during install (swallowed).
	PrefetchFailed(url string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheHit(string, string)             {}
func (NopHooks) CacheMiss(string, string)            {}
func (NopHooks) Stored(string, string, int)          {}
func (NopHooks) StoreSkipped(string, string, string) {}
func (NopHooks) NetworkError(string, string, error)  {}
func (NopHooks) Fallback(string, string)             {}
func (NopHooks) Revalidated(string, string, error)   {}
func (NopHooks) PartitionPurged(string)              {}
func (NopHooks) Trimmed(string, int)                 {}
func (NopHooks) PrefetchFailed(string, error)        {}
