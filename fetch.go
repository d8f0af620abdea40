package swcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/unkn0wn-root/swcache/storage"
)

// Fetcher performs network requests to the origin. An error means the network
// failed; any HTTP status, including 5xx, is a successful fetch.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// CacheHeader reports where a response came from: HIT, MISS or OFFLINE.
const CacheHeader = "X-Cache"

const (
	cacheHit     = "HIT"
	cacheMiss    = "MISS"
	cacheOffline = "OFFLINE"
)

func ok2xx(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// contentLength returns the declared body size, or -1 when absent.
func contentLength(resp *http.Response) int64 {
	if v := resp.Header.Get("Content-Length"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return -1
		}
		return n
	}
	if resp.ContentLength >= 0 && resp.Body != nil && resp.Body != http.NoBody {
		return resp.ContentLength
	}
	return -1
}

// capture buffers a network response so it can be both stored and returned.
// The returned response replaces resp; resp.Body is closed.
func capture(resp *http.Response) (storage.Entry, *http.Response, error) {
	var body []byte
	if resp.Body != nil {
		b, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return storage.Entry{}, nil, fmt.Errorf("read body: %w", err)
		}
		body = b
	}
	e := storage.Entry{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}
	out := *resp
	out.Header = resp.Header.Clone()
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	return e, &out, nil
}

func entryResponse(req *http.Request, e storage.Entry) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set(CacheHeader, cacheHit)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func syntheticResponse(req *http.Request, status int, contentType, body string) *http.Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	h.Set(CacheHeader, cacheOffline)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func markMiss(resp *http.Response) *http.Response {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(CacheHeader, cacheMiss)
	return resp
}

func drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}
