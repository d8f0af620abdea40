package memory

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	expirable "github.com/hashicorp/golang-lru/v2/expirable"

	pr "github.com/unkn0wn-root/swcache/provider"
)

// Provider is an in-process LRU byte store, the default backend.
//
// Capacity is a hard item bound enforced by the LRU itself, independent of
// the trim cycle; size it above the sum of the partition limits.
type Provider struct {
	lru       *expirable.LRU[string, []byte]
	evictions atomic.Int64
}

var (
	_ pr.Provider      = (*Provider)(nil)
	_ pr.PrefixDeleter = (*Provider)(nil)
)

type Config struct {
	MaxItems int           // 0 => 10000
	TTL      time.Duration // global TTL; 0 => no expiry. Per-call TTLs are ignored.
}

func New(cfg Config) *Provider {
	size := cfg.MaxItems
	if size <= 0 {
		size = 10000
	}
	p := &Provider{}
	p.lru = expirable.NewLRU[string, []byte](size, func(string, []byte) {
		p.evictions.Add(1)
	}, cfg.TTL)
	return p
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.lru.Add(key, value)
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.lru.Remove(key)
	return nil
}

// DelPrefix walks the LRU's key snapshot; keys added during the walk may
// survive.
func (p *Provider) DelPrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for _, k := range p.lru.Keys() {
		if strings.HasPrefix(k, prefix) && p.lru.Remove(k) {
			n++
		}
	}
	return n, nil
}

func (p *Provider) Close(context.Context) error {
	p.lru.Purge()
	return nil
}

// Len returns the number of stored frames.
func (p *Provider) Len() int { return p.lru.Len() }

// Evictions counts frames leaving the LRU for any reason: the item bound, TTL
// expiry, Del and DelPrefix.
func (p *Provider) Evictions() int64 { return p.evictions.Load() }
