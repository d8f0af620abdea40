package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/klauspost/compress/zstd"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/swcache"
	"github.com/unkn0wn-root/swcache/codec"
	"github.com/unkn0wn-root/swcache/index"
	logruslog "github.com/unkn0wn-root/swcache/log/logrus"
	zaplog "github.com/unkn0wn-root/swcache/log/zap"
	"github.com/unkn0wn-root/swcache/origin"
	"github.com/unkn0wn-root/swcache/provider"
	"github.com/unkn0wn-root/swcache/provider/bigcache"
	"github.com/unkn0wn-root/swcache/provider/memory"
	rp "github.com/unkn0wn-root/swcache/provider/redis"
	"github.com/unkn0wn-root/swcache/provider/ristretto"
	"github.com/unkn0wn-root/swcache/storage"
)

// newLogger returns the configured swcache logger and a flush func.
func newLogger(cfg Config) (swcache.Logger, func(), error) {
	switch cfg.LogFormat {
	case "", "zap":
		zl, err := zaplog.Build(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("build zap logger: %w", err)
		}
		return zaplog.New(zl), func() { _ = zl.Sync() }, nil
	case "logrus":
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		lvl, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		l.SetLevel(lvl)
		return logruslog.New(l), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
}

// redisClient is created lazily and shared by the provider and the index.
type redisClient struct {
	cfg RedisConfig
	c   goredis.UniversalClient
}

func (r *redisClient) get() goredis.UniversalClient {
	if r.c == nil {
		r.c = goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    []string{r.cfg.Addr},
			Password: r.cfg.Password,
			DB:       r.cfg.DB,
		})
	}
	return r.c
}

func (r *redisClient) close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}

func newProvider(ctx context.Context, cfg Config, rc *redisClient) (provider.Provider, error) {
	p := cfg.Provider
	switch p.Kind {
	case "", "memory":
		return memory.New(memory.Config{MaxItems: p.MaxItems, TTL: p.TTL}), nil
	case "bigcache":
		return bigcache.New(ctx, bigcache.Config{
			LifeWindow:         p.TTL,
			Shards:             p.Shards,
			HardMaxCacheSizeMB: p.MaxSizeMB,
		})
	case "ristretto":
		return ristretto.New(ristretto.Config{MaxCost: p.MaxCost})
	case "redis":
		return rp.New(rp.Config{Client: rc.get()})
	default:
		return nil, fmt.Errorf("unknown provider %q", p.Kind)
	}
}

func newIndex(cfg Config, rc *redisClient) (index.Index, error) {
	switch cfg.Index {
	case "", "local":
		return index.NewLocal(), nil
	case "redis":
		return index.NewRedis(rc.get(), cfg.Namespace, false), nil
	default:
		return nil, fmt.Errorf("unknown index %q", cfg.Index)
	}
}

// newCodec returns the entry codec and a release func for codec resources.
func newCodec(cfg CodecConfig) (codec.Codec[storage.Entry], func(), error) {
	var c codec.Codec[storage.Entry]
	switch cfg.Kind {
	case "", "json":
		c = codec.JSON[storage.Entry]{}
	case "cbor":
		cb, err := codec.NewCBOR[storage.Entry](false)
		if err != nil {
			return nil, nil, err
		}
		c = cb
	case "msgpack":
		c = codec.Msgpack[storage.Entry]{}
	case "proto":
		c = storage.ProtoCodec{}
	default:
		return nil, nil, fmt.Errorf("unknown codec %q", cfg.Kind)
	}
	release := func() {}
	if cfg.Zstd {
		z, err := codec.NewZstd(c, zstd.EncoderLevelFromZstd(cfg.ZstdLevel))
		if err != nil {
			return nil, nil, err
		}
		c, release = z, z.Close
	}
	if cfg.MaxDecode > 0 {
		c = codec.Limit[storage.Entry]{Inner: c, MaxDecode: cfg.MaxDecode}
	}
	return c, release, nil
}

type app struct {
	worker  *swcache.Worker
	log     swcache.Logger
	cleanup []func() error
}

func (a *app) close(ctx context.Context) error {
	errs := []error{a.worker.Close(ctx)}
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		errs = append(errs, a.cleanup[i]())
	}
	return errors.Join(errs...)
}

// newApp wires storage, transport and the worker from cfg.
func newApp(ctx context.Context, cfg Config, hooks swcache.Hooks) (*app, error) {
	log, flush, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{log: log, cleanup: []func() error{func() error { flush(); return nil }}}
	fail := func(err error) (*app, error) {
		for i := len(a.cleanup) - 1; i >= 0; i-- {
			_ = a.cleanup[i]()
		}
		return nil, err
	}

	rc := &redisClient{cfg: cfg.Redis}
	a.cleanup = append(a.cleanup, rc.close)

	prov, err := newProvider(ctx, cfg, rc)
	if err != nil {
		return fail(err)
	}
	idx, err := newIndex(cfg, rc)
	if err != nil {
		_ = prov.Close(ctx)
		return fail(err)
	}
	cd, release, err := newCodec(cfg.Codec)
	if err != nil {
		_ = prov.Close(ctx)
		return fail(err)
	}
	a.cleanup = append(a.cleanup, func() error { release(); return nil })

	st, err := storage.New(storage.Options{
		Provider:  prov,
		Namespace: cfg.Namespace,
		Index:     idx,
		Codec:     cd,
		OnHeal:    swcache.LogHeals(log),
	})
	if err != nil {
		_ = prov.Close(ctx)
		return fail(err)
	}

	fetcher := origin.New(origin.Config{
		HTTPClient:       &http.Client{Timeout: cfg.Breaker.RequestTimeout},
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		OnStateChange: func(name, from, to string) {
			log.Warn("origin breaker state changed", swcache.Fields{"breaker": name, "from": from, "to": to})
		},
	})

	w, err := swcache.New(swcache.Options{
		Origin:       cfg.Origin,
		Storage:      st,
		Fetcher:      fetcher,
		Images:       cfg.Strategies.Images.options(),
		API:          cfg.Strategies.API.options(),
		Static:       cfg.Strategies.Static.options(),
		Pages:        cfg.Strategies.Pages.options(),
		TrimInterval: cfg.TrimInterval,
		ControlPath:  cfg.ControlPath,
		Logger:       log,
		Hooks:        hooks,
	})
	if err != nil {
		_ = st.Close(ctx)
		return fail(err)
	}
	a.worker = w
	return a, nil
}
