package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchReturnsBodyAndRecordsEtag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Hive-CDN-Key") != "test-key" {
			t.Errorf("unexpected X-Hive-CDN-Key: %s", r.Header.Get("X-Hive-CDN-Key"))
		}
		w.Header().Set("ETag", "v7")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("supergraph-v7"))
	}))
	defer server.Close()

	f, err := New(Config{Endpoints: []string{server.URL}, Key: "test-key"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "supergraph-v7" {
		t.Fatalf("expected supergraph-v7, got %q", body)
	}
	if f.currentEtag() != "v7" {
		t.Fatalf("expected etag v7, got %q", f.currentEtag())
	}
}

func TestFetchSendsIfNoneMatchOnSubsequentCall(t *testing.T) {
	var secondRequestETag string
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("ETag", "v7")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("supergraph-v7"))
			return
		}
		secondRequestETag = r.Header.Get("If-None-Match")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	f, err := New(Config{Endpoints: []string{server.URL}, Key: "test-key"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "" {
		t.Fatalf("expected empty body on 304, got %q", body)
	}
	if secondRequestETag != "v7" {
		t.Fatalf("expected If-None-Match: v7, got %q", secondRequestETag)
	}
	if f.currentEtag() != "v7" {
		t.Fatalf("expected etag to remain v7 after 304, got %q", f.currentEtag())
	}
}

func TestFetchFailsOverToHealthyMirror(t *testing.T) {
	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer unhealthy.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", "v7")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("supergraph-v7"))
	}))
	defer healthy.Close()

	f, err := New(Config{Endpoints: []string{unhealthy.URL, healthy.URL}, Key: "test-key"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected success from healthy mirror, got %v", err)
	}
	if body != "supergraph-v7" {
		t.Fatalf("expected supergraph-v7, got %q", body)
	}
}

func TestNewRequiresEndpointsAndKey(t *testing.T) {
	if _, err := New(Config{Key: "k"}, nil); err != ErrMissingEndpoints {
		t.Fatalf("expected ErrMissingEndpoints, got %v", err)
	}
	if _, err := New(Config{Endpoints: []string{"https://example.com"}}, nil); err != ErrMissingKey {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestNormalizeEndpointAppendsSupergraphSuffix(t *testing.T) {
	cases := map[string]string{
		"https://cdn.example.com":             "https://cdn.example.com/supergraph",
		"https://cdn.example.com/":             "https://cdn.example.com/supergraph",
		"https://cdn.example.com/supergraph":   "https://cdn.example.com/supergraph",
	}
	for in, want := range cases {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}
