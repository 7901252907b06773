package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestAllowedRespectsDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	}))
	defer srv.Close()

	c := NewChecker("harvestbot", WithClient(srv.Client()))

	if !c.Allowed(context.Background(), srv.URL+"/public/page") {
		t.Error("public path was denied")
	}
	if c.Allowed(context.Background(), srv.URL+"/private/secret") {
		t.Error("disallowed path was allowed")
	}
}

func TestAllowedCachesPerHost(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte("User-agent: *\nAllow: /\n"))
	}))
	defer srv.Close()

	c := NewChecker("harvestbot", WithClient(srv.Client()), WithTTL(time.Minute))

	for i := 0; i < 5; i++ {
		c.Allowed(context.Background(), srv.URL+"/page")
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", got)
	}
}

func TestAllowedOnFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	srv.Close() // connection refused from here on

	c := NewChecker("harvestbot")
	if !c.Allowed(context.Background(), srv.URL+"/anything") {
		t.Error("fetch failure should allow, not deny")
	}
}

func TestAllowedOnMissingRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewChecker("harvestbot", WithClient(srv.Client()))
	if !c.Allowed(context.Background(), srv.URL+"/page") {
		t.Error("404 robots.txt should allow everything")
	}
}

func TestAllowedOnUnparsableURL(t *testing.T) {
	c := NewChecker("harvestbot")
	if !c.Allowed(context.Background(), "://not-a-url") {
		t.Error("unparsable URL should allow")
	}
}
