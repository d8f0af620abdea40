package swcache

import (
	"context"
	"fmt"
	"net/http"
)

const (
	textPlain = "text/plain; charset=utf-8"

	placeholderSVG = `<svg width="200" height="150" xmlns="http://www.w3.org/2000/svg">
  <rect width="100%%" height="100%%" fill="#f3f4f6"/>
  <text x="50%%" y="50%%" text-anchor="middle" dy=".3em" fill="#9ca3af">%s</text>
</svg>`

	apiOfflineBody = `{"error":"Connexion indisponible","offline":true,"message":"Données mises en cache non disponibles"}`
)

// strategyFallback answers a request whose strategy found neither network
// nor cache.
func (w *Worker) strategyFallback(ctx context.Context, req *http.Request, class Class) (*http.Response, error) {
	w.hooks.Fallback(class.String(), req.URL.String())
	switch class {
	case ClassImage:
		return imagePlaceholder(req, "Image non disponible"), nil
	case ClassAPI:
		return syntheticResponse(req, http.StatusServiceUnavailable, "application/json", apiOfflineBody), nil
	case ClassPage:
		return w.offlinePage(ctx, req)
	case ClassStatic:
		return syntheticResponse(req, http.StatusServiceUnavailable, textPlain, "Ressource non disponible"), nil
	default:
		return syntheticResponse(req, http.StatusServiceUnavailable, textPlain, "Contenu non disponible hors ligne"), nil
	}
}

// offlineFallback is the last resort for errors escaping a strategy. It
// tests page before image, and never fails.
func (w *Worker) offlineFallback(ctx context.Context, req *http.Request) *http.Response {
	switch {
	case w.classifier.isPage(req, ""):
		w.hooks.Fallback(ClassPage.String(), req.URL.String())
		resp, err := w.offlinePage(ctx, req)
		if err != nil {
			w.log.Warn("offline page lookup failed", Fields{"err": err})
			return syntheticResponse(req, http.StatusServiceUnavailable, textPlain, "Hors ligne")
		}
		return resp
	case w.classifier.IsImage(req):
		w.hooks.Fallback(ClassImage.String(), req.URL.String())
		return imagePlaceholder(req, "Hors ligne")
	default:
		w.hooks.Fallback(ClassOther.String(), req.URL.String())
		return syntheticResponse(req, http.StatusServiceUnavailable, textPlain, "Contenu non disponible hors ligne")
	}
}

// offlinePage serves the pre-cached offline document from the static
// partition, or a bare 503.
func (w *Worker) offlinePage(ctx context.Context, req *http.Request) (*http.Response, error) {
	part, err := w.store.Open(ctx, w.names.Static)
	if err != nil {
		return nil, err
	}
	e, ok, err := part.Match(ctx, w.resolve(w.offline))
	if err != nil {
		return nil, err
	}
	if !ok {
		return syntheticResponse(req, http.StatusServiceUnavailable, textPlain, "Hors ligne"), nil
	}
	resp := entryResponse(req, e)
	resp.Header.Set(CacheHeader, cacheOffline)
	return resp, nil
}

func imagePlaceholder(req *http.Request, text string) *http.Response {
	return syntheticResponse(req, http.StatusOK, "image/svg+xml", fmt.Sprintf(placeholderSVG, text))
}
