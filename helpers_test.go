package swcache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	pr "github.com/unkn0wn-root/swcache/provider"
	"github.com/unkn0wn-root/swcache/provider/memory"
	"github.com/unkn0wn-root/swcache/storage"
)

const testOrigin = "https://app.test"

var errOffline = errors.New("dial tcp: network is unreachable")

type route struct {
	status int
	body   string
	header http.Header
}

// fakeOrigin is a scripted Fetcher keyed by URL path.
type fakeOrigin struct {
	mu      sync.Mutex
	offline bool
	routes  map[string]route
	calls   map[string]int
	posts   []string
	panicOn string
}

func newFakeOrigin() *fakeOrigin {
	f := &fakeOrigin{routes: make(map[string]route), calls: make(map[string]int)}
	for _, p := range defaultCriticalAssets {
		f.routes[p] = route{status: 200, body: "asset " + p}
	}
	for _, p := range defaultPrefetchAssets {
		f.routes[p] = route{status: 200, body: "<svg/>"}
	}
	f.routes["/offline.html"] = route{status: 200, body: "<h1>offline</h1>", header: http.Header{"Content-Type": {"text/html"}}}
	return f
}

func (f *fakeOrigin) set(path string, status int, body string) {
	f.mu.Lock()
	f.routes[path] = route{status: status, body: body}
	f.mu.Unlock()
}

func (f *fakeOrigin) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeOrigin) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeOrigin) postBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts...)
}

func (f *fakeOrigin) Fetch(_ context.Context, req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.URL.Path]++
	if f.panicOn != "" && req.URL.Path == f.panicOn {
		panic("boom")
	}
	if f.offline {
		return nil, errOffline
	}
	if req.Method == http.MethodPost && req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		f.posts = append(f.posts, string(b))
	}
	r, ok := f.routes[req.URL.Path]
	if !ok {
		r = route{status: http.StatusNotFound, body: "not found"}
	}
	h := r.header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set("Content-Length", strconv.Itoa(len(r.body)))
	return &http.Response{
		StatusCode:    r.status,
		Header:        h,
		Body:          io.NopCloser(strings.NewReader(r.body)),
		ContentLength: int64(len(r.body)),
		Request:       req,
	}, nil
}

// countingHooks records events for assertions.
type countingHooks struct {
	NopHooks
	mu          sync.Mutex
	hits        int
	misses      int
	stored      int
	skipped     map[string]int
	fallbacks   map[string]int
	purged      []string
	trimmed     map[string]int
	prefetch    []string
	revalidated int
}

func newCountingHooks() *countingHooks {
	return &countingHooks{
		skipped:   make(map[string]int),
		fallbacks: make(map[string]int),
		trimmed:   make(map[string]int),
	}
}

func (h *countingHooks) CacheHit(string, string) {
	h.mu.Lock()
	h.hits++
	h.mu.Unlock()
}

func (h *countingHooks) CacheMiss(string, string) {
	h.mu.Lock()
	h.misses++
	h.mu.Unlock()
}

func (h *countingHooks) Stored(string, string, int) {
	h.mu.Lock()
	h.stored++
	h.mu.Unlock()
}

func (h *countingHooks) StoreSkipped(_, _, reason string) {
	h.mu.Lock()
	h.skipped[reason]++
	h.mu.Unlock()
}

func (h *countingHooks) Fallback(class, _ string) {
	h.mu.Lock()
	h.fallbacks[class]++
	h.mu.Unlock()
}

func (h *countingHooks) Revalidated(string, string, error) {
	h.mu.Lock()
	h.revalidated++
	h.mu.Unlock()
}

func (h *countingHooks) PartitionPurged(name string) {
	h.mu.Lock()
	h.purged = append(h.purged, name)
	h.mu.Unlock()
}

func (h *countingHooks) Trimmed(partition string, n int) {
	h.mu.Lock()
	h.trimmed[partition] += n
	h.mu.Unlock()
}

func (h *countingHooks) PrefetchFailed(url string, _ error) {
	h.mu.Lock()
	h.prefetch = append(h.prefetch, url)
	h.mu.Unlock()
}

// failingProvider errors on every read once broken is set.
type failingProvider struct {
	pr.Provider
	mu     sync.Mutex
	broken bool
}

func (p *failingProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	broken := p.broken
	p.mu.Unlock()
	if broken {
		return nil, false, errors.New("storage unavailable")
	}
	return p.Provider.Get(ctx, key)
}

func (p *failingProvider) breakReads() {
	p.mu.Lock()
	p.broken = true
	p.mu.Unlock()
}

func newMemoryProvider() pr.Provider { return memory.New(memory.Config{}) }

func newTestStorage(t *testing.T, p pr.Provider) *storage.Storage {
	t.Helper()
	if p == nil {
		p = newMemoryProvider()
	}
	st, err := storage.New(storage.Options{Provider: p, Namespace: "test"})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	return st
}

// newTestWorker builds an unstarted worker over f. Close runs on cleanup.
func newTestWorker(t *testing.T, f Fetcher, optsOpt func(*Options)) *Worker {
	t.Helper()
	opts := Options{
		Origin:  testOrigin,
		Fetcher: f,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	if opts.Storage == nil {
		opts.Storage = newTestStorage(t, nil)
	}
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.newBackoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	t.Cleanup(func() { _ = w.Close(context.Background()) })
	return w
}

func startedWorker(t *testing.T, f Fetcher, optsOpt func(*Options)) *Worker {
	t.Helper()
	w := newTestWorker(t, f, optsOpt)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return w
}

func get(t *testing.T, w *Worker, path string, header ...string) *http.Response {
	t.Helper()
	target := path
	if strings.HasPrefix(path, "/") {
		target = testOrigin + path
	}
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := w.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch %s: %v", path, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func partitionKeys(t *testing.T, w *Worker, name string) []string {
	t.Helper()
	part, err := w.Storage().Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open %s: %v", name, err)
	}
	keys, err := part.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys %s: %v", name, err)
	}
	return keys
}

func cached(t *testing.T, w *Worker, name, path string) (storage.Entry, bool) {
	t.Helper()
	part, err := w.Storage().Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open %s: %v", name, err)
	}
	e, ok, err := part.Match(context.Background(), testOrigin+path)
	if err != nil {
		t.Fatalf("Match %s: %v", path, err)
	}
	return e, ok
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
