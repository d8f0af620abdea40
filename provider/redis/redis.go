package redis

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/swcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

const defaultScanCount = 512

// Redis stores entry frames as string values under the storage keyspace
// ("sw:<ns>:<partition>:<hash>"). Pair it with index.Redis so partition
// manifests live next to the entries and replicas share one cache.
//
// Partition purges use SCAN MATCH on the partition prefix and UNLINK in
// batches, so frames survive neither a lost manifest entry nor a replica that
// wrote without updating the shared index.
type Redis struct {
	rdb         goredis.UniversalClient
	scanCount   int64
	closeClient bool
}

var (
	_ pr.Provider      = (*Redis)(nil)
	_ pr.PrefixDeleter = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	ScanCount   int64 // SCAN COUNT hint for DelPrefix; 0 => 512
	CloseClient bool  // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	n := cfg.ScanCount
	if n <= 0 {
		n = defaultScanCount
	}
	return &Redis{rdb: cfg.Client, scanCount: n, closeClient: cfg.CloseClient}, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

// Set writes the frame with the partition TTL; ttl <= 0 keeps the frame until
// a trim or a partition purge removes it.
func (p *Redis) Set(ctx context.Context, key string, frame []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	if err := p.rdb.Set(ctx, key, frame, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

// DelPrefix purges every frame under prefix. On a cluster client the scan
// covers each master.
func (p *Redis) DelPrefix(ctx context.Context, prefix string) (int, error) {
	match := escapeGlob(prefix) + "*"
	if cc, ok := p.rdb.(*goredis.ClusterClient); ok {
		var total atomic.Int64
		err := cc.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
			n, err := p.purge(ctx, node, match)
			total.Add(n)
			return err
		})
		return int(total.Load()), err
	}
	n, err := p.purge(ctx, p.rdb, match)
	return int(n), err
}

func (p *Redis) purge(ctx context.Context, c goredis.Cmdable, match string) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := c.Scan(ctx, cursor, match, p.scanCount).Result()
		if err != nil {
			return total, err
		}
		if len(keys) > 0 {
			n, err := c.Unlink(ctx, keys...).Result()
			total += n
			if err != nil {
				return total, err
			}
		}
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

// Close releases the underlying client only when this provider owns it.
func (p *Redis) Close(context.Context) error {
	if !p.closeClient {
		return nil
	}
	if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

// escapeGlob quotes the SCAN MATCH metacharacters in a literal prefix.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
