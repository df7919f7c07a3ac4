package metrics

import (
	"context"
	"testing"
	"time"
)

// TestDisabledConfigNeverDialsOTLP verifies that a disabled config never
// attempts an OTLP connection: an unreachable endpoint must not surface
// as an error from New.
func TestDisabledConfigNeverDialsOTLP(t *testing.T) {
	cfg := Config{
		Enabled:          false,
		OTLPEndpoint:     "invalid-host:9999",
		ExportIntervalMS: 1000,
		ServiceName:      "test-service",
		ServiceVersion:   "1.0.0",
	}

	r, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New with Enabled=false should not error, got: %v", err)
	}
	if r == nil {
		t.Fatal("New should return a usable no-op Recorder, not nil")
	}
	if r.provider != nil {
		t.Errorf("no-op Recorder should carry a nil provider")
	}
}

func TestRecorderMethodsAreNilSafe(t *testing.T) {
	var r *Recorder
	ctx := context.Background()

	// None of these should panic on a nil receiver.
	r.RecordDispatch(ctx, "node0", "image", false)
	r.RecordRefresh(ctx, "node0", 10*time.Millisecond, nil)
	r.AdjustInFlight(ctx, "node0", 1)
	r.RecordScore(ctx, "node0", "qwen-image", 1.5)
	if err := r.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown on nil Recorder returned error: %v", err)
	}
}

func TestNoopRecorderRecordsWithoutError(t *testing.T) {
	cfg := Config{Enabled: false}
	r, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	r.RecordDispatch(ctx, "node0", "chat", true)
	r.RecordRefresh(ctx, "node0", 5*time.Millisecond, nil)
	r.AdjustInFlight(ctx, "node0", -1)
	r.RecordScore(ctx, "node0", "model", 0.5)

	if err := r.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown on no-op Recorder returned error: %v", err)
	}
}
