package origin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchReturnsServerErrorsAsResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{FailureThreshold: 1})
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/x", nil)
		resp, err := c.Fetch(context.Background(), req)
		if err != nil {
			t.Fatalf("fetch %d: unexpected error %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", resp.StatusCode)
		}
	}
	if got := c.State(); got != "closed" {
		t.Fatalf("breaker state = %q after 5xx responses, want closed", got)
	}
}

func TestBreakerOpensOnTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close() // every dial now fails

	var changes []string
	c := New(Config{
		FailureThreshold: 2,
		OpenTimeout:      time.Hour,
		OnStateChange: func(_, from, to string) {
			changes = append(changes, from+"->"+to)
		},
	})
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, addr+"/", nil)
		if _, err := c.Fetch(context.Background(), req); err == nil {
			t.Fatalf("fetch %d: expected transport error", i)
		} else if errors.Is(err, ErrUnavailable) {
			t.Fatalf("fetch %d: breaker opened too early: %v", i, err)
		}
	}
	req, _ := http.NewRequest(http.MethodGet, addr+"/", nil)
	_, err := c.Fetch(context.Background(), req)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable once open, got %v", err)
	}
	if c.State() != "open" {
		t.Fatalf("breaker state = %q, want open", c.State())
	}
	if len(changes) != 1 || changes[0] != "closed->open" {
		t.Fatalf("state changes = %v", changes)
	}
}

func TestFetchClearsRequestURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/dashboard", nil)
	req.RequestURI = "/dashboard" // as set on server-side requests
	resp, err := New(Config{}).Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
