package index

import "context"

// Index keeps the ordered key manifest of every partition. Providers are plain
// byte stores without enumeration, so partition listing, wholesale deletion and
// oldest-first trimming all go through an Index.
//
// Use Local (default) for in-process manifests, or Redis to share manifests
// across replicas next to a Redis provider.
type Index interface {
	// Register records a partition; existing partitions keep their position.
	Register(ctx context.Context, partition string) error
	// Partitions returns partition names in creation order.
	Partitions(ctx context.Context) ([]string, error)
	// Add records key in partition (registering the partition if needed).
	// Re-adding an existing key moves it to the newest position, the way a
	// cache put replaces the old entry and appends the new one.
	Add(ctx context.Context, partition, key string) error
	// Keys returns the partition's keys oldest-first. Missing partition => empty.
	Keys(ctx context.Context, partition string) ([]string, error)
	// Remove forgets keys and reports how many were present; unknown keys
	// are ignored.
	Remove(ctx context.Context, partition string, keys ...string) (int, error)
	// Drop forgets a partition and all its keys; reports whether it existed.
	Drop(ctx context.Context, partition string) (bool, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
