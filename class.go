package swcache

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Class is the resource class a request is routed by. It is derived per
// request and never stored.
type Class uint8

const (
	ClassOther Class = iota
	ClassImage
	ClassAPI
	ClassPage
	ClassStatic
)

func (c Class) String() string {
	switch c {
	case ClassImage:
		return "image"
	case ClassAPI:
		return "api"
	case ClassPage:
		return "page"
	case ClassStatic:
		return "static"
	default:
		return "other"
	}
}

// DestinationHeader carries the request destination (Fetch Metadata).
const DestinationHeader = "Sec-Fetch-Dest"

var (
	defaultImagePatterns  = []string{"**/*.{jpg,jpeg,png,gif,webp,svg}"}
	defaultStaticPatterns = []string{"**/*.{css,js,woff,woff2,ttf,eot}"}
	defaultStaticPrefixes = []string{"/assets/"}
	defaultAPIPrefixes    = []string{"/api/", "/rest/"}
)

type classRule struct {
	class Class
	match func(r *http.Request, path string) bool
}

// Classifier maps requests to a Class. Rules are evaluated in priority order
// image, api, page, static and the first match wins: cross-origin images must
// classify as images before the api host check can claim them.
type Classifier struct {
	apiHost        string
	apiPrefixes    []string
	imagePatterns  []string
	staticPatterns []string
	staticPrefixes []string
	rules          []classRule
}

// ClassifierConfig lists the classification inputs. Zero fields use defaults.
type ClassifierConfig struct {
	APIHostSubstring   string   // "" => "supabase"
	APIPathPrefixes    []string // nil => /api/, /rest/
	ImagePatterns      []string // doublestar globs over the lower-cased path
	StaticPatterns     []string
	StaticPathPrefixes []string // nil => /assets/
}

func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	c := &Classifier{
		apiHost:        strings.ToLower(coalesce(cfg.APIHostSubstring, "supabase")),
		apiPrefixes:    orDefault(cfg.APIPathPrefixes, defaultAPIPrefixes),
		imagePatterns:  orDefault(cfg.ImagePatterns, defaultImagePatterns),
		staticPatterns: orDefault(cfg.StaticPatterns, defaultStaticPatterns),
		staticPrefixes: orDefault(cfg.StaticPathPrefixes, defaultStaticPrefixes),
	}
	for _, p := range append(append([]string(nil), c.imagePatterns...), c.staticPatterns...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("swcache: invalid path pattern %q", p)
		}
	}
	c.rules = []classRule{
		{ClassImage, c.isImage},
		{ClassAPI, c.isAPI},
		{ClassPage, c.isPage},
		{ClassStatic, c.isStatic},
	}
	return c, nil
}

// Classify returns exactly one Class for r. It has no side effects.
func (c *Classifier) Classify(r *http.Request) Class {
	path := strings.ToLower(r.URL.EscapedPath())
	for _, rule := range c.rules {
		if rule.match(r, path) {
			return rule.class
		}
	}
	return ClassOther
}

// IsImage is exposed separately because the fetch filter needs it before
// classification: cross-origin requests are intercepted only for images.
func (c *Classifier) IsImage(r *http.Request) bool {
	return c.isImage(r, strings.ToLower(r.URL.EscapedPath()))
}

func (c *Classifier) isImage(r *http.Request, path string) bool {
	return destination(r) == "image" || matchAny(c.imagePatterns, path)
}

func (c *Classifier) isAPI(r *http.Request, path string) bool {
	if strings.Contains(strings.ToLower(r.URL.Hostname()), c.apiHost) {
		return true
	}
	return hasAnyPrefix(path, c.apiPrefixes)
}

func (c *Classifier) isPage(r *http.Request, _ string) bool {
	return destination(r) == "document" || strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (c *Classifier) isStatic(_ *http.Request, path string) bool {
	return matchAny(c.staticPatterns, path) || hasAnyPrefix(path, c.staticPrefixes)
}

func destination(r *http.Request) string {
	return strings.ToLower(r.Header.Get(DestinationHeader))
}

func matchAny(patterns []string, path string) bool {
	name := strings.TrimPrefix(path, "/")
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
