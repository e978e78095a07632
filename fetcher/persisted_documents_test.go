package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPersistedDocumentCacheFetchesThenCaches(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{ me { id } }"))
	}))
	defer server.Close()

	cache, err := NewPersistedDocumentCache(PersistedDocumentCacheConfig{
		Endpoint: server.URL,
		Key:      "cdn-key",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := cache.Resolve(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.Resolve(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Fatalf("expected cached document to match: %q vs %q", first, second)
	}
	if requests != 1 {
		t.Fatalf("expected exactly 1 CDN request, got %d", requests)
	}
}

func TestPersistedDocumentCacheNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cache, err := NewPersistedDocumentCache(PersistedDocumentCacheConfig{
		Endpoint: server.URL,
		Key:      "cdn-key",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = cache.Resolve(context.Background(), "missing")
	if err != ErrPersistedDocumentNotFound {
		t.Fatalf("expected ErrPersistedDocumentNotFound, got %v", err)
	}
}
