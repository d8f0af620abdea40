// Package storage implements named cache partitions (the Cache Storage model)
// on top of a plain byte Provider and an ordered key Index.
//
// Keys:
//
//	sw:<ns>:<partition>:<xxhash(url)>  - one framed entry per request URL
//
// A frame carries the full request URL, so a hash collision reads as a miss
// rather than as another URL's response.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	c "github.com/unkn0wn-root/swcache/codec"
	"github.com/unkn0wn-root/swcache/index"
	"github.com/unkn0wn-root/swcache/internal/util"
	"github.com/unkn0wn-root/swcache/internal/wire"
	pr "github.com/unkn0wn-root/swcache/provider"
)

var (
	// ErrRejected is returned by Put when the provider refused the write.
	ErrRejected = errors.New("storage: write rejected by provider")
	// ErrInvalidKey is returned for empty keys or keys longer than 65535 bytes.
	ErrInvalidKey = errors.New("storage: invalid request key")
	// ErrInvalidName is returned by Open for empty names or names containing ':'.
	ErrInvalidName = errors.New("storage: invalid partition name")
)

// Reasons passed to HealFunc.
const (
	HealCorrupt   = "corrupt"      // frame failed to decode
	HealDecode    = "value_decode" // codec rejected the payload
	HealExpired   = "expired"      // provider no longer holds the frame
	HealCollision = "collision"    // slot holds another URL's frame
)

// HealFunc observes manifest keys removed on read.
type HealFunc func(partition, key, reason string)

type Options struct {
	// Required
	Provider pr.Provider

	Namespace string         // provider key namespace; "" => "swcache"
	Index     index.Index    // nil => index.NewLocal()
	Codec     c.Codec[Entry] // nil => codec.JSON[Entry]
	OnHeal    HealFunc       // optional
	Now       func() time.Time
}

// Storage is safe for concurrent use. Partition handles are cheap and may be
// reopened freely; they hold no state of their own.
type Storage struct {
	ns       string
	provider pr.Provider
	index    index.Index
	codec    c.Codec[Entry]
	onHeal   HealFunc
	now      func() time.Time

	opened sync.Map // partition name -> struct{}; registered with the index
}

func New(opts Options) (*Storage, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("storage: provider is required")
	}
	s := &Storage{
		ns:       opts.Namespace,
		provider: opts.Provider,
		index:    opts.Index,
		codec:    opts.Codec,
		onHeal:   opts.OnHeal,
		now:      opts.Now,
	}
	if s.ns == "" {
		s.ns = "swcache"
	}
	if s.index == nil {
		s.index = index.NewLocal()
	}
	if s.codec == nil {
		s.codec = c.JSON[Entry]{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Open returns the named partition, creating it if needed. The index is asked
// to register a name only the first time this Storage opens it.
func (s *Storage) Open(ctx context.Context, name string) (*Partition, error) {
	if name == "" || strings.Contains(name, ":") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, ok := s.opened.Load(name); !ok {
		if err := s.index.Register(ctx, name); err != nil {
			return nil, fmt.Errorf("storage: open %q: %w", name, err)
		}
		s.opened.Store(name, struct{}{})
	}
	return &Partition{name: name, s: s}, nil
}

// Names lists partitions in creation order.
func (s *Storage) Names(ctx context.Context) ([]string, error) {
	names, err := s.index.Partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: list partitions: %w", err)
	}
	return names, nil
}

func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes a partition with all of its entries and reports whether it
// existed. Entry deletion is best-effort; the manifest is dropped regardless.
//
// Providers implementing provider.PrefixDeleter are purged by key prefix, which
// also catches frames the manifest lost track of. Others are purged key by key
// from the manifest.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	var errs []error
	if pd, ok := s.provider.(pr.PrefixDeleter); ok {
		if _, err := pd.DelPrefix(ctx, util.PartitionPrefix(s.ns, name)); err != nil {
			errs = append(errs, err)
		}
	} else {
		keys, err := s.index.Keys(ctx, name)
		if err != nil {
			return false, fmt.Errorf("storage: delete %q: %w", name, err)
		}
		for _, k := range keys {
			if err := s.provider.Del(ctx, util.EntryKey(s.ns, name, k)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	s.opened.Delete(name)
	existed, err := s.index.Drop(ctx, name)
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return existed, fmt.Errorf("storage: delete %q: %w", name, errors.Join(errs...))
	}
	return existed, nil
}

func (s *Storage) Close(ctx context.Context) error {
	return errors.Join(s.index.Close(ctx), s.provider.Close(ctx))
}

// Partition is a named bucket of request key -> Entry.
type Partition struct {
	name string
	s    *Storage
}

func (p *Partition) Name() string { return p.name }

// Match returns the entry stored for key. Every miss self-heals: corrupt
// frames are deleted, and a manifest key whose frame the provider dropped
// (TTL, capacity eviction) is forgotten so trimming never counts it.
func (p *Partition) Match(ctx context.Context, key string) (Entry, bool, error) {
	pk := util.EntryKey(p.s.ns, p.name, key)
	raw, ok, err := p.s.provider.Get(ctx, pk)
	if err != nil {
		return Entry{}, false, fmt.Errorf("storage: match %q in %q: %w", key, p.name, err)
	}
	if !ok {
		p.forget(ctx, key, HealExpired)
		return Entry{}, false, nil
	}
	f, err := wire.Decode(raw)
	if err != nil {
		p.heal(ctx, pk, key, HealCorrupt)
		return Entry{}, false, nil
	}
	if f.Key != key {
		// the slot belongs to another URL; leave its frame alone
		p.forget(ctx, key, HealCollision)
		return Entry{}, false, nil
	}
	e, err := p.s.codec.Decode(f.Payload)
	if err != nil {
		p.heal(ctx, pk, key, HealDecode)
		return Entry{}, false, nil
	}
	e.URL = f.Key
	e.StoredAt = time.Unix(0, f.StoredAt)
	return e, true, nil
}

// Put stores e under key, replacing any previous entry. The key moves to the
// newest position in the partition manifest.
func (p *Partition) Put(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	if len(key) == 0 || len(key) > 0xFFFF {
		return ErrInvalidKey
	}
	payload, err := p.s.codec.Encode(e)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	frame := wire.Encode(wire.Frame{Key: key, StoredAt: p.s.now().UnixNano(), Payload: payload})
	pk := util.EntryKey(p.s.ns, p.name, key)
	ok, err := p.s.provider.Set(ctx, pk, frame, int64(len(frame)), ttl)
	if err != nil {
		return fmt.Errorf("storage: put %q in %q: %w", key, p.name, err)
	}
	if !ok {
		return ErrRejected
	}
	if err := p.s.index.Add(ctx, p.name, key); err != nil {
		return fmt.Errorf("storage: index %q in %q: %w", key, p.name, err)
	}
	return nil
}

// Delete removes key from the partition.
func (p *Partition) Delete(ctx context.Context, keys ...string) error {
	var errs []error
	for _, k := range keys {
		if err := p.s.provider.Del(ctx, util.EntryKey(p.s.ns, p.name, k)); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := p.s.index.Remove(ctx, p.name, keys...); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("storage: delete from %q: %w", p.name, errors.Join(errs...))
	}
	return nil
}

// Keys returns the partition's request keys oldest-first by last write. This
// is not an access order: hits do not move a key.
func (p *Partition) Keys(ctx context.Context) ([]string, error) {
	keys, err := p.s.index.Keys(ctx, p.name)
	if err != nil {
		return nil, fmt.Errorf("storage: keys of %q: %w", p.name, err)
	}
	return keys, nil
}

func (p *Partition) heal(ctx context.Context, providerKey, key, reason string) {
	_ = p.s.provider.Del(ctx, providerKey)
	p.forget(ctx, key, reason)
}

// forget drops key from the manifest and reports it only when it was there;
// a plain miss for a never-stored URL stays silent.
func (p *Partition) forget(ctx context.Context, key, reason string) {
	n, err := p.s.index.Remove(ctx, p.name, key)
	if err != nil || n == 0 {
		return
	}
	if p.s.onHeal != nil {
		p.s.onHeal(p.name, key, reason)
	}
}
