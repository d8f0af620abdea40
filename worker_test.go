package swcache

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/unkn0wn-root/swcache/storage"
)

func TestNewValidatesOptions(t *testing.T) {
	for _, o := range []Options{
		{},
		{Origin: "/relative"},
		{Origin: testOrigin, ControlPath: "sw"},
		{Origin: testOrigin, Classifier: ClassifierConfig{ImagePatterns: []string{"[a-"}}},
	} {
		if _, err := New(o); err == nil {
			t.Fatalf("New(%+v): expected error", o)
		}
	}
}

func TestStartInstallsAndActivates(t *testing.T) {
	f := newFakeOrigin()
	h := newCountingHooks()
	w := newTestWorker(t, f, func(o *Options) { o.Hooks = h })
	if w.State() != StateParsed {
		t.Fatalf("initial state = %s", w.State())
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if w.State() != StateActivated || !w.Controlling() {
		t.Fatalf("state = %s controlling = %v", w.State(), w.Controlling())
	}

	keys := partitionKeys(t, w, w.Partitions().Static)
	if len(keys) != len(defaultCriticalAssets) {
		t.Fatalf("static keys = %v", keys)
	}
	for _, p := range defaultCriticalAssets {
		if e, ok := cached(t, w, w.Partitions().Static, p); !ok || string(e.Body) != f.routes[p].body {
			t.Fatalf("critical asset %s not cached (ok=%v)", p, ok)
		}
	}
	if n := len(partitionKeys(t, w, w.Partitions().Dynamic)); n != len(defaultPrefetchAssets) {
		t.Fatalf("dynamic keys = %d, want %d prefetched", n, len(defaultPrefetchAssets))
	}
}

func TestInstallFailsOnCriticalAsset(t *testing.T) {
	f := newFakeOrigin()
	f.set("/manifest.json", 404, "gone")
	w := newTestWorker(t, f, nil)

	err := w.Install(context.Background())
	var ie *InstallError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InstallError, got %v", err)
	}
	if len(ie.Assets) != 1 || ie.Assets[0].URL != testOrigin+"/manifest.json" || ie.Assets[0].Status != 404 {
		t.Fatalf("unexpected asset errors: %+v", ie.Assets)
	}
	if w.State() != StateRedundant {
		t.Fatalf("state = %s, want redundant", w.State())
	}
	if keys := partitionKeys(t, w, w.Partitions().Static); len(keys) != 0 {
		t.Fatalf("partial install wrote %v", keys)
	}
	if err := w.Activate(context.Background()); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("Activate after failed install: %v", err)
	}

	// the manifest is back; a redundant worker may install again
	f.set("/manifest.json", 200, "{}")
	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	if err := w.Install(context.Background()); !errors.Is(err, ErrInstalled) {
		t.Fatalf("second install: %v", err)
	}
}

func TestInstallFailsWhenOffline(t *testing.T) {
	f := newFakeOrigin()
	f.setOffline(true)
	w := newTestWorker(t, f, nil)

	err := w.Install(context.Background())
	var ie *InstallError
	if !errors.As(err, &ie) || len(ie.Assets) != len(defaultCriticalAssets) {
		t.Fatalf("expected every critical asset to fail, got %v", err)
	}
	if !errors.Is(err, errOffline) {
		t.Fatalf("install error does not wrap the network error: %v", err)
	}
}

func TestInstallSwallowsPrefetchFailures(t *testing.T) {
	f := newFakeOrigin()
	f.set("/assets/workout-icons.svg", 500, "")
	h := newCountingHooks()
	w := newTestWorker(t, f, func(o *Options) { o.Hooks = h })

	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(h.prefetch) != 1 || h.prefetch[0] != testOrigin+"/assets/workout-icons.svg" {
		t.Fatalf("prefetch failures = %v", h.prefetch)
	}
	if n := len(partitionKeys(t, w, w.Partitions().Dynamic)); n != 2 {
		t.Fatalf("dynamic keys = %d, want 2", n)
	}
}

func TestActivatePurgesStalePartitionsOnce(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t, nil)
	for _, name := range []string{"myfithero-static-v1", "myfithero-images-v2", "scratch"} {
		p, err := st.Open(ctx, name)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := p.Put(ctx, testOrigin+"/x", storage.Entry{Status: 200}, 0); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	h := newCountingHooks()
	w := startedWorker(t, newFakeOrigin(), func(o *Options) {
		o.Storage = st
		o.Hooks = h
	})
	if !reflect.DeepEqual(h.purged, []string{"myfithero-static-v1", "scratch"}) {
		t.Fatalf("purged = %v", h.purged)
	}
	for _, name := range []string{"myfithero-static-v1", "scratch"} {
		if ok, _ := st.Has(ctx, name); ok {
			t.Fatalf("stale partition %q survived", name)
		}
	}
	if _, ok := cached(t, w, "myfithero-images-v2", "/x"); !ok {
		t.Fatalf("valid partition lost its entry")
	}

	if err := w.Activate(ctx); err != nil {
		t.Fatalf("second Activate: %v", err)
	}
	if len(h.purged) != 2 {
		t.Fatalf("second activation deleted more partitions: %v", h.purged)
	}
}

func TestFetchBeforeActivationPassesThrough(t *testing.T) {
	f := newFakeOrigin()
	f.set("/assets/app.css", 200, "css")
	w := newTestWorker(t, f, nil)
	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}

	readBody(t, get(t, w, "/assets/app.css"))
	if _, ok := cached(t, w, w.Partitions().Static, "/assets/app.css"); ok {
		t.Fatalf("uncontrolled fetch was cached")
	}

	f.setOffline(true)
	req, _ := http.NewRequest(http.MethodGet, testOrigin+"/assets/app.css", nil)
	if _, err := w.Fetch(context.Background(), req); !errors.Is(err, errOffline) {
		t.Fatalf("expected raw network error before activation, got %v", err)
	}
}

func TestFetchBypassRules(t *testing.T) {
	f := newFakeOrigin()
	f.set("/lib.js", 200, "js")
	f.set("/pic.png", 200, "png")
	w := startedWorker(t, f, nil)

	// cross-origin non-image: never intercepted
	for i := 0; i < 2; i++ {
		readBody(t, get(t, w, "https://cdn.other.test/lib.js"))
	}
	if n := f.count("/lib.js"); n != 2 {
		t.Fatalf("cross-origin script fetched %d times, want 2", n)
	}
	f.setOffline(true)
	req, _ := http.NewRequest(http.MethodGet, "https://cdn.other.test/lib.js", nil)
	if _, err := w.Fetch(context.Background(), req); !errors.Is(err, errOffline) {
		t.Fatalf("bypassed request should surface its network error, got %v", err)
	}
	f.setOffline(false)

	// cross-origin image: cached
	readBody(t, get(t, w, "https://cdn.other.test/pic.png"))
	part, _ := w.Storage().Open(context.Background(), w.Partitions().Image)
	if _, ok, _ := part.Match(context.Background(), "https://cdn.other.test/pic.png"); !ok {
		t.Fatalf("cross-origin image was not cached")
	}
}

func TestFetchResolvesRelativeURLs(t *testing.T) {
	f := newFakeOrigin()
	f.set("/assets/app.css", 200, "css")
	w := startedWorker(t, f, nil)

	req, _ := http.NewRequest(http.MethodGet, "/assets/app.css", nil)
	resp, err := w.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	readBody(t, resp)
	if _, ok := cached(t, w, w.Partitions().Static, "/assets/app.css"); !ok {
		t.Fatalf("relative request not cached under its absolute URL")
	}
}

func TestFetchErrors(t *testing.T) {
	w := startedWorker(t, newFakeOrigin(), nil)
	if _, err := w.Fetch(context.Background(), nil); !errors.Is(err, ErrNilRequest) {
		t.Fatalf("nil request: %v", err)
	}
	if err := w.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, testOrigin+"/", nil)
	if _, err := w.Fetch(context.Background(), req); !errors.Is(err, ErrWorkerClosed) {
		t.Fatalf("fetch after close: %v", err)
	}
	if err := w.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	f := newFakeOrigin()
	f.set("/assets/app.css", 200, "css")
	w := newTestWorker(t, f, nil)

	for _, ev := range []Event{{Type: EventInstall}, {Type: EventActivate}} {
		if _, err := w.Dispatch(ctx, ev); err != nil {
			t.Fatalf("dispatch %s: %v", ev.Type, err)
		}
	}
	req, _ := http.NewRequest(http.MethodGet, testOrigin+"/assets/app.css", nil)
	resp, err := w.Dispatch(ctx, Event{Type: EventFetch, Request: req})
	if err != nil || resp == nil {
		t.Fatalf("dispatch fetch: resp=%v err=%v", resp, err)
	}
	readBody(t, resp)
	if _, err := w.Dispatch(ctx, Event{Type: EventMessage, Message: Message{Type: MessageCacheCleanup}}); err != nil {
		t.Fatalf("dispatch message: %v", err)
	}
	if _, err := w.Dispatch(ctx, Event{Type: EventSync, Tag: "other"}); err != nil {
		t.Fatalf("dispatch sync: %v", err)
	}
	if _, err := w.Dispatch(ctx, Event{Type: "push"}); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("unknown event: %v", err)
	}
}

func fill(t *testing.T, w *Worker, name string, n int) []string {
	t.Helper()
	ctx := context.Background()
	part, err := w.Storage().Open(ctx, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	keys := make([]string, n)
	for i := range keys {
		keys[i] = testOrigin + "/item/" + strconv.Itoa(i)
		if err := part.Put(ctx, keys[i], storage.Entry{Status: 200, Body: []byte("x")}, 0); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	return keys
}

func TestCleanupMessageTrimsOldestExcess(t *testing.T) {
	h := newCountingHooks()
	w := startedWorker(t, newFakeOrigin(), func(o *Options) {
		o.Images = StrategyConfig{MaxEntries: 3}
		o.API = StrategyConfig{MaxEntries: 2}
		o.Pages = StrategyConfig{MaxEntries: 2}
		o.PrefetchAssets = []string{}
		o.Hooks = h
	})
	names := w.Partitions()
	images := fill(t, w, names.Image, 5)
	dynamic := fill(t, w, names.Dynamic, 9)
	static := fill(t, w, names.Static, 10)

	if err := w.PostMessage(context.Background(), Message{Type: MessageCacheCleanup}); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if got := partitionKeys(t, w, names.Image); !reflect.DeepEqual(got, images[2:]) {
		t.Fatalf("image keys = %v, want %v", got, images[2:])
	}
	if got := partitionKeys(t, w, names.Dynamic); !reflect.DeepEqual(got, dynamic[5:]) {
		t.Fatalf("dynamic keys = %v, want %v", got, dynamic[5:])
	}
	if got := partitionKeys(t, w, names.Static); len(got) != len(static)+len(defaultCriticalAssets) {
		t.Fatalf("static partition is not bounded but lost entries: %d", len(got))
	}
	if h.trimmed[names.Image] != 2 || h.trimmed[names.Dynamic] != 5 {
		t.Fatalf("trimmed = %v", h.trimmed)
	}
	if _, ok := cached(t, w, names.Image, "/item/0"); ok {
		t.Fatalf("trimmed entry still readable")
	}

	// under the bound: nothing to do
	if err := w.Trim(context.Background()); err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if h.trimmed[names.Image] != 2 {
		t.Fatalf("second trim removed entries: %v", h.trimmed)
	}
}

func TestUnknownMessageIsIgnored(t *testing.T) {
	h := newCountingHooks()
	w := startedWorker(t, newFakeOrigin(), func(o *Options) {
		o.Images = StrategyConfig{MaxEntries: 1}
		o.Hooks = h
	})
	fill(t, w, w.Partitions().Image, 3)
	if err := w.PostMessage(context.Background(), Message{Type: "SKIP_WAITING"}); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if n := len(partitionKeys(t, w, w.Partitions().Image)); n != 3 {
		t.Fatalf("unknown message trimmed the cache: %d keys left", n)
	}
}

func TestTrimIntervalRunsGovernor(t *testing.T) {
	h := newCountingHooks()
	w := startedWorker(t, newFakeOrigin(), func(o *Options) {
		o.Images = StrategyConfig{MaxEntries: 1}
		o.TrimInterval = 10 * time.Millisecond
		o.Hooks = h
	})
	fill(t, w, w.Partitions().Image, 4)
	waitFor(t, func() bool { return len(partitionKeys(t, w, w.Partitions().Image)) == 1 })
}

func TestTrimKeepsMostRecentlyWrittenImage(t *testing.T) {
	f := newFakeOrigin()
	f.set("/img/a.png", 200, "a")
	f.set("/img/b.png", 200, "b")
	w := startedWorker(t, f, func(o *Options) { o.Images = StrategyConfig{MaxEntries: 1} })

	readBody(t, get(t, w, "/img/a.png"))
	readBody(t, get(t, w, "/img/b.png"))
	// the hit on a.png rewrites it through background revalidation
	readBody(t, get(t, w, "/img/a.png"))
	w.Wait()

	if err := w.Trim(context.Background()); err != nil {
		t.Fatalf("Trim: %v", err)
	}
	keys := partitionKeys(t, w, w.Partitions().Image)
	if len(keys) != 1 || keys[0] != testOrigin+"/img/a.png" {
		t.Fatalf("image keys after trim = %v, want only the revalidated a.png", keys)
	}
}
