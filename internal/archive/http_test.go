package archive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header")
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	body, err := c.Get(context.Background(), srv.URL+"/thing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("unexpected body %q", body)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestGetGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	_, err := c.Get(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected StatusError 500, got %v", err)
	}
	if se.Body != "boom" {
		t.Errorf("expected body in error, got %q", se.Body)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Get(context.Background(), srv.URL)
	if !IsNotFoundError(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{" 12 ", 12 * time.Second},
		{"-1", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tc := range tests {
		if got := parseRetryAfter(tc.in); got != tc.want {
			t.Errorf("parseRetryAfter(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestThrottleBackOffFloor(t *testing.T) {
	tb := &throttleBackOff{BackOff: &constantBackOff{d: time.Millisecond}}
	tb.floor = 3 * time.Second
	if got := tb.NextBackOff(); got != 3*time.Second {
		t.Errorf("expected floor to apply, got %v", got)
	}
	if got := tb.NextBackOff(); got != time.Millisecond {
		t.Errorf("floor should reset after use, got %v", got)
	}
	if tb.attempt != 2 {
		t.Errorf("expected attempt 2, got %d", tb.attempt)
	}
}

type constantBackOff struct{ d time.Duration }

func (c *constantBackOff) NextBackOff() time.Duration { return c.d }
func (c *constantBackOff) Reset()                     {}

func TestNewClientRejectsBadScheme(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "ftp://archive.example"}); err == nil {
		t.Error("expected error for non-http base URL")
	}
	c, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient with defaults failed: %v", err)
	}
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL = %q; want default", c.BaseURL())
	}
}
