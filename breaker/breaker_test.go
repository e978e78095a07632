package breaker

import (
	"context"
	"errors"
	"testing"
)

func TestExecutePassesThroughSuccess(t *testing.T) {
	b := New(DefaultConfig("test"))

	result, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected \"ok\", got %v", result)
	}
}

func TestExecuteTripsOpenAfterRepeatedFailures(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.MinRequests = 2
	cfg.FailureRatio = 0.5
	b := New(cfg)

	failing := func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	}

	for i := 0; i < 2; i++ {
		_, _ = b.Execute(context.Background(), failing)
	}

	_, err := b.Execute(context.Background(), failing)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected once breaker is open, got %v", err)
	}
}
