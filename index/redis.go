package index

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis shares manifests across processes and survives restarts.
// Layout (ns should match storage.Options.Namespace):
//
//	swidx:<ns>:seq         INCR counter used as ordering score
//	swidx:<ns>:partitions  ZSET partition -> creation seq
//	swidx:<ns>:p:<name>    ZSET key -> insertion seq
type Redis struct {
	rdb         redis.UniversalClient
	ns          string
	closeClient bool
}

var _ Index = (*Redis)(nil)

// NewRedis creates a Redis-backed index. closeClient should be true only when
// the index exclusively owns the client.
func NewRedis(client redis.UniversalClient, namespace string, closeClient bool) *Redis {
	return &Redis{rdb: client, ns: namespace, closeClient: closeClient}
}

func (r *Redis) seqKey() string             { return "swidx:" + r.ns + ":seq" }
func (r *Redis) partsKey() string           { return "swidx:" + r.ns + ":partitions" }
func (r *Redis) partKey(name string) string { return "swidx:" + r.ns + ":p:" + name }

func (r *Redis) Register(ctx context.Context, partition string) error {
	seq, err := r.rdb.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return err
	}
	return r.rdb.ZAddNX(ctx, r.partsKey(), redis.Z{Score: float64(seq), Member: partition}).Err()
}

func (r *Redis) Partitions(ctx context.Context) ([]string, error) {
	return r.rdb.ZRange(ctx, r.partsKey(), 0, -1).Result()
}

// Add pipelines the partition registration and the key insertion in one
// round-trip. The partition keeps its first score (NX); the key always takes
// the new one so a rewrite moves it to the end.
func (r *Redis) Add(ctx context.Context, partition, key string) error {
	seq, err := r.rdb.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return err
	}
	z := float64(seq)
	_, err = r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAddNX(ctx, r.partsKey(), redis.Z{Score: z, Member: partition})
		p.ZAdd(ctx, r.partKey(partition), redis.Z{Score: z, Member: key})
		return nil
	})
	return err
}

func (r *Redis) Keys(ctx context.Context, partition string) ([]string, error) {
	return r.rdb.ZRange(ctx, r.partKey(partition), 0, -1).Result()
}

func (r *Redis) Remove(ctx context.Context, partition string, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	n, err := r.rdb.ZRem(ctx, r.partKey(partition), members...).Result()
	return int(n), err
}

func (r *Redis) Drop(ctx context.Context, partition string) (bool, error) {
	var rem *redis.IntCmd
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.partKey(partition))
		rem = p.ZRem(ctx, r.partsKey(), partition)
		return nil
	})
	if err != nil {
		return false, err
	}
	return rem.Val() > 0, nil
}

// Close releases the client only when this index owns it.
func (r *Redis) Close(context.Context) error {
	if r.closeClient {
		if err := r.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			return err
		}
	}
	return nil
}
