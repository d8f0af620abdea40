package index

import (
	"context"
	"sort"
	"sync"
)

type manifest struct {
	seq  uint64
	keys map[string]uint64 // key -> insertion seq
}

// Local keeps manifests in-process. Ordering uses a monotonically increasing
// sequence number stamped on every Add, so it is a last-write order and NOT
// an access order.
type Local struct {
	mu    sync.RWMutex
	seq   uint64
	parts map[string]*manifest
}

var _ Index = (*Local)(nil)

func NewLocal() *Local {
	return &Local{parts: make(map[string]*manifest)}
}

func (l *Local) next() uint64 {
	l.seq++
	return l.seq
}

func (l *Local) register(partition string) *manifest {
	m, ok := l.parts[partition]
	if !ok {
		m = &manifest{seq: l.next(), keys: make(map[string]uint64)}
		l.parts[partition] = m
	}
	return m
}

func (l *Local) Register(_ context.Context, partition string) error {
	l.mu.Lock()
	l.register(partition)
	l.mu.Unlock()
	return nil
}

func (l *Local) Partitions(_ context.Context) ([]string, error) {
	l.mu.RLock()
	names := make([]string, 0, len(l.parts))
	for name := range l.parts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return l.parts[names[i]].seq < l.parts[names[j]].seq })
	l.mu.RUnlock()
	return names, nil
}

func (l *Local) Add(_ context.Context, partition, key string) error {
	l.mu.Lock()
	m := l.register(partition)
	m.keys[key] = l.next()
	l.mu.Unlock()
	return nil
}

func (l *Local) Keys(_ context.Context, partition string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.parts[partition]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(m.keys))
	for k := range m.keys {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return m.keys[keys[i]] < m.keys[keys[j]] })
	return keys, nil
}

func (l *Local) Remove(_ context.Context, partition string, keys ...string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.parts[partition]
	if !ok {
		return 0, nil
	}
	n := 0
	for _, k := range keys {
		if _, ok := m.keys[k]; ok {
			delete(m.keys, k)
			n++
		}
	}
	return n, nil
}

func (l *Local) Drop(_ context.Context, partition string) (bool, error) {
	l.mu.Lock()
	_, ok := l.parts[partition]
	delete(l.parts, partition)
	l.mu.Unlock()
	return ok, nil
}

func (l *Local) Close(context.Context) error { return nil }
