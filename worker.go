package swcache

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/swcache/storage"
)

// State is the lifecycle state of a Worker.
type State int32

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant // install failed
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// EventType names an entry point of the Worker.
type EventType string

const (
	EventInstall  EventType = "install"
	EventActivate EventType = "activate"
	EventFetch    EventType = "fetch"
	EventMessage  EventType = "message"
	EventSync     EventType = "sync"
)

// Event is the input of Dispatch. Request is used by fetch, Message by
// message, Tag by sync.
type Event struct {
	Type    EventType
	Request *http.Request
	Message Message
	Tag     string
}

type eventHandler func(ctx context.Context, ev Event) (*http.Response, error)

// Worker is an offline-first cache in front of one origin. It is safe for
// concurrent use.
type Worker struct {
	origin     *url.URL
	classifier *Classifier
	names      PartitionNames
	critical   []string
	prefetch   []string
	offline    string
	maxImage   int64

	images StrategyConfig
	api    StrategyConfig
	static StrategyConfig
	pages  StrategyConfig

	trimEvery time.Duration
	syncTag   string
	syncPath  string
	syncTries uint64
	control   string

	log     Logger
	hooks   Hooks
	fetcher Fetcher
	store   *storage.Storage

	dispatch map[EventType]eventHandler

	lifecycle  sync.Mutex // serializes install and activate
	state      atomic.Int32
	controlled atomic.Bool // clients claimed; fetches are intercepted

	bgMu   sync.Mutex
	bg     conc.WaitGroup // background revalidations
	closed atomic.Bool

	stop   chan struct{}
	loopWG sync.WaitGroup

	outbox     outbox
	newBackoff func() backoff.BackOff
}

func (w *Worker) initDispatch() {
	w.dispatch = map[EventType]eventHandler{
		EventInstall: func(ctx context.Context, _ Event) (*http.Response, error) {
			return nil, w.Install(ctx)
		},
		EventActivate: func(ctx context.Context, _ Event) (*http.Response, error) {
			return nil, w.Activate(ctx)
		},
		EventFetch: func(ctx context.Context, ev Event) (*http.Response, error) {
			return w.Fetch(ctx, ev.Request)
		},
		EventMessage: func(ctx context.Context, ev Event) (*http.Response, error) {
			return nil, w.PostMessage(ctx, ev.Message)
		},
		EventSync: func(ctx context.Context, ev Event) (*http.Response, error) {
			return nil, w.Sync(ctx, ev.Tag)
		},
	}
	w.newBackoff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	if w.trimEvery > 0 {
		w.loopWG.Add(1)
		go w.trimLoop()
	}
}

// Dispatch routes ev to its handler. Only fetch events produce a response.
func (w *Worker) Dispatch(ctx context.Context, ev Event) (*http.Response, error) {
	h, ok := w.dispatch[ev.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return h(ctx, ev)
}

func (w *Worker) State() State { return State(w.state.Load()) }

// Controlling reports whether activation has claimed clients.
func (w *Worker) Controlling() bool { return w.controlled.Load() }

// Storage exposes the worker's partitions.
func (w *Worker) Storage() *storage.Storage { return w.store }

// Partitions returns the effective partition names.
func (w *Worker) Partitions() PartitionNames { return w.names }

// Start installs and activates the worker.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	return w.Activate(ctx)
}

// Install pre-caches the critical asset manifest into the static partition
// and prefetches the optional manifest into the dynamic one. Any critical
// failure returns an *InstallError and leaves the worker redundant; prefetch
// failures are reported to Hooks only. A successful install is immediately
// eligible for activation.
func (w *Worker) Install(ctx context.Context) error {
	if w.closed.Load() {
		return ErrWorkerClosed
	}
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	switch s := w.State(); s {
	case StateParsed, StateRedundant:
	default:
		return fmt.Errorf("%w (state %s)", ErrInstalled, s)
	}
	w.state.Store(int32(StateInstalling))
	w.log.Info("install started", Fields{"critical": len(w.critical), "prefetch": len(w.prefetch)})

	var g errgroup.Group
	g.Go(func() error { return w.addAll(ctx, w.names.Static, w.critical) })
	g.Go(func() error {
		w.prefetchAll(ctx, w.names.Dynamic, w.prefetch)
		return nil
	})
	if err := g.Wait(); err != nil {
		w.state.Store(int32(StateRedundant))
		w.log.Error("install failed", Fields{"err": err})
		return err
	}
	w.state.Store(int32(StateInstalled))
	w.log.Info("install finished", nil)
	return nil
}

// Activate deletes every partition whose name is not one of the current
// names and claims clients, so that subsequent fetches are intercepted.
// Running it again is allowed and deletes nothing new.
func (w *Worker) Activate(ctx context.Context) error {
	if w.closed.Load() {
		return ErrWorkerClosed
	}
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	switch s := w.State(); s {
	case StateInstalled, StateActivated:
	default:
		return fmt.Errorf("%w (state %s)", ErrNotInstalled, s)
	}
	prev := w.State()
	w.state.Store(int32(StateActivating))
	w.log.Info("activate started", nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.purgeStale(gctx) })
	g.Go(func() error {
		w.controlled.Store(true)
		return nil
	})
	if err := g.Wait(); err != nil {
		w.state.Store(int32(prev))
		w.log.Error("activate failed", Fields{"err": err})
		return err
	}
	w.state.Store(int32(StateActivated))
	w.log.Info("activate finished", nil)
	return nil
}

func (w *Worker) purgeStale(ctx context.Context) error {
	names, err := w.store.Names(ctx)
	if err != nil {
		return err
	}
	valid := make(map[string]struct{}, 4)
	for _, n := range w.names.Valid() {
		valid[n] = struct{}{}
	}
	for _, n := range names {
		if _, ok := valid[n]; ok {
			continue
		}
		if _, err := w.store.Delete(ctx, n); err != nil {
			return err
		}
		w.hooks.PartitionPurged(n)
		w.log.Info("deleted stale partition", Fields{"partition": n})
	}
	return nil
}

// Fetch answers req. Requests the worker does not intercept (before
// activation, non-GET, cross-origin non-image) go straight to the Fetcher
// and its error, if any, is returned as is. Intercepted requests never fail:
// network and storage errors become a cached copy or an offline fallback.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (resp *http.Response, err error) {
	if req == nil || req.URL == nil {
		return nil, ErrNilRequest
	}
	if w.closed.Load() {
		return nil, ErrWorkerClosed
	}
	req = w.absolute(ctx, req)
	if !w.intercepts(req) {
		return w.fetcher.Fetch(ctx, req)
	}

	class := w.classifier.Classify(req)
	defer func() {
		if p := recover(); p != nil {
			w.log.Error("fetch handler panicked", Fields{"url": req.URL.String(), "class": class.String(), "panic": p})
			resp, err = w.offlineFallback(ctx, req), nil
		}
	}()
	resp, err = w.route(ctx, req, class)
	if err != nil {
		w.log.Warn("fetch handler failed", Fields{"url": req.URL.String(), "class": class.String(), "err": err})
		return w.offlineFallback(ctx, req), nil
	}
	return resp, nil
}

func (w *Worker) intercepts(req *http.Request) bool {
	if !w.controlled.Load() || req.Method != http.MethodGet {
		return false
	}
	return w.sameOrigin(req.URL) || w.classifier.IsImage(req)
}

func (w *Worker) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, w.origin.Scheme) && strings.EqualFold(u.Host, w.origin.Host)
}

// absolute resolves a relative request URL against the origin.
func (w *Worker) absolute(ctx context.Context, req *http.Request) *http.Request {
	if req.URL.IsAbs() {
		return req
	}
	out := req.Clone(ctx)
	out.URL = w.origin.ResolveReference(req.URL)
	out.Host = w.origin.Host
	out.RequestURI = ""
	return out
}

func (w *Worker) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return w.origin.String() + path
	}
	return w.origin.ResolveReference(ref).String()
}

// Wait blocks until background revalidations started so far have finished.
func (w *Worker) Wait() {
	if r := w.bg.WaitAndRecover(); r != nil {
		w.log.Error("background revalidation panicked", Fields{"panic": r.String()})
	}
}

// Close stops the trim loop, waits for background work and closes storage.
// Fetches after Close return ErrWorkerClosed.
func (w *Worker) Close(ctx context.Context) error {
	w.bgMu.Lock()
	already := w.closed.Swap(true)
	w.bgMu.Unlock()
	if already {
		return nil
	}
	close(w.stop)
	w.loopWG.Wait()
	w.Wait()
	return w.store.Close(ctx)
}

func (w *Worker) trimLoop() {
	defer w.loopWG.Done()
	t := time.NewTicker(w.trimEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := w.Trim(context.Background()); err != nil {
				w.log.Warn("periodic trim failed", Fields{"err": err})
			}
		case <-w.stop:
			return
		}
	}
}

func (w *Worker) healed(partition, key, reason string) {
	LogHeals(w.log)(partition, key, reason)
}

// LogHeals returns a storage.HealFunc that reports self-heals through log.
// Expired frames are routine and go to Debug.
func LogHeals(log Logger) storage.HealFunc {
	return func(partition, key, reason string) {
		f := Fields{"partition": partition, "url": key, "reason": reason}
		if reason == storage.HealExpired {
			log.Debug("dropped expired entry from manifest", f)
			return
		}
		log.Warn("removed unreadable entry", f)
	}
}
