package shipper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.hive.dev/agent/report"
)

func TestSendSuccessOnFirstAttempt(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)

		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("unexpected Authorization header: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Usage-API-Version") != "2" {
			t.Errorf("unexpected X-Usage-API-Version header: %s", r.Header.Get("X-Usage-API-Version"))
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(Config{Endpoint: server.URL, Token: "test-token"}, nil)

	err := s.Send(context.Background(), report.Report{Size: 0, Map: map[string]report.OperationMapEntry{}})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if atomic.LoadInt32(&requests) != 1 {
		t.Fatalf("expected exactly 1 request, got %d", requests)
	}
}

func TestSendUnauthorizedDoesNotRetry(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	s := New(Config{Endpoint: server.URL, Token: "bad-token"}, nil)

	err := s.Send(context.Background(), report.Report{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if atomic.LoadInt32(&requests) != 1 {
		t.Fatalf("expected exactly 1 request (no retry on 401), got %d", requests)
	}
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(Config{Endpoint: server.URL, Token: "test-token", MaxRetries: 3}, nil)

	err := s.Send(context.Background(), report.Report{})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if atomic.LoadInt32(&requests) != 2 {
		t.Fatalf("expected exactly 2 requests, got %d", requests)
	}
}

func TestSendOtherClientErrorDoesNotRetry(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := New(Config{Endpoint: server.URL, Token: "test-token"}, nil)

	err := s.Send(context.Background(), report.Report{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if atomic.LoadInt32(&requests) != 1 {
		t.Fatalf("expected exactly 1 request (400 is permanent), got %d", requests)
	}
}
