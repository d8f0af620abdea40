// Package origin is the network side of the worker: an HTTP client guarded by
// a circuit breaker. Only transport failures count against the breaker; an
// HTTP 5xx is a response, not an outage.
package origin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable is wrapped into errors returned while the breaker is open
// or probing.
var ErrUnavailable = errors.New("origin: unavailable")

type Config struct {
	HTTPClient       *http.Client  // nil => client with a 30s timeout
	Name             string        // breaker name; "" => "origin"
	FailureThreshold uint32        // consecutive transport errors before opening; 0 => 5
	OpenTimeout      time.Duration // open -> half-open; 0 => 30s
	HalfOpenRequests uint32        // probes allowed while half-open; 0 => 1
	OnStateChange    func(name, from, to string)
}

// Client implements the worker's Fetcher.
type Client struct {
	http *http.Client
	cb   *gobreaker.CircuitBreaker[*http.Response]
}

func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	name := cfg.Name
	if name == "" {
		name = "origin"
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openFor := cfg.OpenTimeout
	if openFor == 0 {
		openFor = 30 * time.Second
	}
	probes := cfg.HalfOpenRequests
	if probes == 0 {
		probes = 1
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: probes,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// a caller giving up is not an origin failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if cfg.OnStateChange != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnStateChange(name, from.String(), to.String())
		}
	}
	return &Client{http: hc, cb: gobreaker.NewCircuitBreaker[*http.Response](st)}
}

// Fetch sends req. Any returned error is a network failure; the response of a
// nil error may carry any status.
func (c *Client) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	resp, err := c.cb.Execute(func() (*http.Response, error) {
		return c.http.Do(out)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, req.URL.Host, err)
		}
		return nil, fmt.Errorf("origin: %s %s: %w", req.Method, req.URL, err)
	}
	return resp, nil
}

// State reports the breaker state: "closed", "half-open" or "open".
func (c *Client) State() string { return c.cb.State().String() }
