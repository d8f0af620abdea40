package swcache

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/unkn0wn-root/swcache/origin"
	"github.com/unkn0wn-root/swcache/provider/memory"
	"github.com/unkn0wn-root/swcache/storage"
)

// PartitionNames are the cache partitions of one worker version. Changing a
// name on deploy makes activation purge the old partition.
type PartitionNames struct {
	Current string // "" => "myfithero-v2"
	Static  string // "" => "myfithero-static-v2"
	Dynamic string // "" => "myfithero-dynamic-v2"
	Image   string // "" => "myfithero-images-v2"
}

// Valid returns every partition name activation keeps.
func (n PartitionNames) Valid() []string {
	return []string{n.Current, n.Static, n.Dynamic, n.Image}
}

func (n PartitionNames) withDefaults() PartitionNames {
	return PartitionNames{
		Current: coalesce(n.Current, "myfithero-v2"),
		Static:  coalesce(n.Static, "myfithero-static-v2"),
		Dynamic: coalesce(n.Dynamic, "myfithero-dynamic-v2"),
		Image:   coalesce(n.Image, "myfithero-images-v2"),
	}
}

// StrategyConfig bounds one resource class. MaxEntries feeds the size
// governor. MaxAge is an opt-in provider TTL for entries the strategies write
// for the class; 0 keeps them until a trim or a partition purge removes them.
type StrategyConfig struct {
	MaxEntries int
	MaxAge     time.Duration
}

// Per-class ages advertised by the MyFitHero worker. None is applied unless
// set as a StrategyConfig.MaxAge.
const (
	ImageMaxAge  = 7 * 24 * time.Hour
	APIMaxAge    = 5 * time.Minute
	StaticMaxAge = 30 * 24 * time.Hour
	PageMaxAge   = 24 * time.Hour
)

var (
	defaultCriticalAssets = []string{
		"/",
		"/index.html",
		"/manifest.json",
		"/icons/icon-192.svg",
		"/icons/icon-512.svg",
		"/offline.html",
	}
	defaultPrefetchAssets = []string{
		"/assets/dashboard-icons.svg",
		"/assets/workout-icons.svg",
		"/assets/nutrition-icons.svg",
	}
)

const (
	defaultMaxImageBytes = 5 << 20
	defaultSyncTag       = "background-sync-fitness-data"
	defaultSyncEndpoint  = "/api/sync-fitness-data"
	defaultControlPath   = "/__sw"
)

// Options configure a Worker. Only Origin is required.
type Options struct {
	// Required. Scheme and host of the application; requests to other
	// origins are only intercepted when they are images.
	Origin string

	Storage *storage.Storage // nil => in-memory LRU storage
	Fetcher Fetcher          // nil => origin.New with default settings

	Partitions PartitionNames
	Classifier ClassifierConfig

	// Asset manifests written on install. Paths resolve against Origin.
	CriticalAssets []string // nil => app shell list; all must succeed
	PrefetchAssets []string // nil => dashboard icon sprites; best-effort
	OfflinePage    string   // "" => "/offline.html", looked up in the static partition

	MaxImageBytes int64 // 0 => 5 MiB; images at or above are served but never stored

	// MaxEntries 0 => 100, 50, 200 and 20. MaxAge 0 => no expiry.
	Images StrategyConfig
	API    StrategyConfig
	Static StrategyConfig
	Pages  StrategyConfig

	TrimInterval time.Duration // 0 => trim only on CACHE_CLEANUP messages

	SyncTag        string // "" => "background-sync-fitness-data"
	SyncEndpoint   string // "" => "/api/sync-fitness-data"
	SyncMaxRetries uint64 // 0 => 3

	ControlPath string // "" => "/__sw"; handler endpoints for messages and state

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

func (s StrategyConfig) withDefaults(entries int) StrategyConfig {
	return StrategyConfig{
		MaxEntries: coalesce(s.MaxEntries, entries),
		MaxAge:     max(s.MaxAge, 0),
	}
}

// New builds a Worker in StateParsed. Call Start (or Install then Activate)
// before it intercepts fetches.
func New(opts Options) (*Worker, error) {
	if opts.Origin == "" {
		return nil, fmt.Errorf("swcache: origin is required")
	}
	base, err := url.Parse(opts.Origin)
	if err != nil {
		return nil, fmt.Errorf("swcache: parse origin: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("swcache: origin %q must be absolute", opts.Origin)
	}
	base = &url.URL{Scheme: base.Scheme, Host: base.Host}

	control := strings.TrimSuffix(coalesce(opts.ControlPath, defaultControlPath), "/")
	if !strings.HasPrefix(control, "/") {
		return nil, fmt.Errorf("swcache: control path %q must start with /", opts.ControlPath)
	}

	cls, err := NewClassifier(opts.Classifier)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		origin:     base,
		classifier: cls,
		names:      opts.Partitions.withDefaults(),
		critical:   orDefault(opts.CriticalAssets, defaultCriticalAssets),
		prefetch:   orDefault(opts.PrefetchAssets, defaultPrefetchAssets),
		offline:    coalesce(opts.OfflinePage, "/offline.html"),
		maxImage:   coalesce[int64](opts.MaxImageBytes, defaultMaxImageBytes),
		images:     opts.Images.withDefaults(100),
		api:        opts.API.withDefaults(50),
		static:     opts.Static.withDefaults(200),
		pages:      opts.Pages.withDefaults(20),
		trimEvery:  opts.TrimInterval,
		syncTag:    coalesce(opts.SyncTag, defaultSyncTag),
		syncPath:   coalesce(opts.SyncEndpoint, defaultSyncEndpoint),
		syncTries:  coalesce[uint64](opts.SyncMaxRetries, 3),
		control:    control,
		log:        coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:      coalesce[Hooks](opts.Hooks, NopHooks{}),
		fetcher:    opts.Fetcher,
		store:      opts.Storage,
		stop:       make(chan struct{}),
	}
	if w.fetcher == nil {
		w.fetcher = origin.New(origin.Config{})
	}
	if w.store == nil {
		st, err := storage.New(storage.Options{
			Provider: memory.New(memory.Config{}),
			OnHeal:   w.healed,
		})
		if err != nil {
			return nil, err
		}
		w.store = st
	}
	w.initDispatch()
	return w, nil
}
