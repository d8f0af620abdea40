package cmd

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/unkn0wn-root/swcache"
)

const envPrefix = "SWCACHE"

// Config is the file/env/flag configuration of the binary. Keys are
// snake_case in YAML and SWCACHE_<KEY> in the environment (dots become
// underscores, e.g. SWCACHE_REDIS_ADDR).
type Config struct {
	Listen       string        `mapstructure:"listen"`
	Origin       string        `mapstructure:"origin"`
	Namespace    string        `mapstructure:"namespace"`
	ControlPath  string        `mapstructure:"control_path"`
	TrimInterval time.Duration `mapstructure:"trim_interval"`
	Metrics      bool          `mapstructure:"metrics"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
	Index        string        `mapstructure:"index"`

	Provider   ProviderConfig   `mapstructure:"provider"`
	Codec      CodecConfig      `mapstructure:"codec"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Strategies StrategiesConfig `mapstructure:"strategies"`
}

type ProviderConfig struct {
	Kind      string        `mapstructure:"kind"`
	MaxItems  int           `mapstructure:"max_items"`   // memory
	TTL       time.Duration `mapstructure:"ttl"`         // memory, bigcache life window
	Shards    int           `mapstructure:"shards"`      // bigcache
	MaxSizeMB int           `mapstructure:"max_size_mb"` // bigcache hard limit
	MaxCost   int64         `mapstructure:"max_cost"`    // ristretto, bytes
}

type CodecConfig struct {
	Kind      string `mapstructure:"kind"`
	Zstd      bool   `mapstructure:"zstd"`
	ZstdLevel int    `mapstructure:"zstd_level"`
	MaxDecode int    `mapstructure:"max_decode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// StrategiesConfig bounds each resource class. Zero values keep the worker's
// entry limits and leave entries without a TTL.
type StrategiesConfig struct {
	Images StrategyConfig `mapstructure:"images"`
	API    StrategyConfig `mapstructure:"api"`
	Static StrategyConfig `mapstructure:"static"`
	Pages  StrategyConfig `mapstructure:"pages"`
}

type StrategyConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

func (s StrategyConfig) options() swcache.StrategyConfig {
	return swcache.StrategyConfig{MaxEntries: s.MaxEntries, MaxAge: s.MaxAge}
}

// setDefaults registers defaults and binds every Config key to its
// environment variable. Unmarshal only sees keys viper knows about, so a key
// without a default, flag or binding would ignore its env var.
func setDefaults(v *viper.Viper) {
	bindEnv(v, reflect.TypeOf(Config{}), "")

	v.SetDefault("listen", ":8080")
	v.SetDefault("namespace", "swcache")
	v.SetDefault("control_path", "/__sw")
	v.SetDefault("metrics", true)
	v.SetDefault("provider.max_items", 10000)
	v.SetDefault("provider.shards", 64)
	v.SetDefault("provider.max_cost", 256<<20)
	v.SetDefault("codec.zstd_level", 3)
	v.SetDefault("codec.max_decode", 16<<20)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.open_timeout", "30s")
	v.SetDefault("breaker.request_timeout", "30s")
}

func bindEnv(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + tag
		if f.Type.Kind() == reflect.Struct {
			bindEnv(v, f.Type, key+".")
			continue
		}
		_ = v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
}

func loadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Origin == "" {
		return cfg, fmt.Errorf("origin is required (--origin, SWCACHE_ORIGIN or origin: in the config file)")
	}
	return cfg, nil
}
