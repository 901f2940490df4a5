package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/fbaster/mcsupervisor/internal/history"
)

func TestNewFailsOnUnreachableAddress(t *testing.T) {
	// New creates the event table up front, so constructing a sink
	// against a host with nothing listening must fail rather than defer
	// the error to the first flush.
	if _, err := New("127.0.0.1:1", "lifecycle_events"); err == nil {
		t.Fatal("New against an unreachable ClickHouse address should return an error")
	}
}

func TestSendBuffersUntilTheBatchFills(t *testing.T) {
	// No connection is needed below the batch threshold: Send only
	// buffers. The flush path is exercised against a real server.
	s := &Sink{table: "lifecycle_events", batchSize: 8}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e := history.Event{Nick: "survival", Kind: history.EventTick, OccurredAt: time.Now()}
		if err := s.Send(ctx, e); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) != 3 {
		t.Fatalf("pending = %d, want 3 buffered events", len(s.pending))
	}
}

func TestBoolU8(t *testing.T) {
	if boolU8(true) != 1 || boolU8(false) != 0 {
		t.Fatal("boolU8 must map true→1, false→0")
	}
}
