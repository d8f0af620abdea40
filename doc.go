// Package swcache implements an offline-first HTTP cache worker: the cache
// strategy engine of a PWA service worker, as a Go component that sits between
// clients and an origin.
//
// Components:
//   - Classifier: maps a request to a Class (image, api, page, static, other),
//     first match wins in that order.
//   - Strategies: Cache-First (image, static; images revalidate in the
//     background) and Network-First (api, page) with class fallbacks.
//   - Lifecycle: Install (pre-cache critical assets, best-effort prefetch),
//     Activate (purge stale partitions, claim clients), Fetch, PostMessage,
//     Sync, dispatched through a table keyed by EventType.
//   - Governor: on a CACHE_CLEANUP message, trims bounded partitions
//     oldest-first (insertion order, not LRU).
//
// Partitions live in a storage.Storage over any provider.Provider
// (memory, BigCache, Ristretto, Redis).
//
// Typical use:
//
//	st, _ := storage.New(storage.Options{Provider: memory.New(memory.Config{})})
//	w, _ := swcache.New(swcache.Options{Origin: "https://app.myfithero.com", Storage: st})
//	if err := w.Start(ctx); err != nil { ... } // install + activate
//	http.ListenAndServe(":8080", w.Handler())
package swcache
