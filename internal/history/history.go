// Package history defines the lifecycle event record exported to optional
// external sinks (SQLite, PostgreSQL, ClickHouse, OpenSearch) for audit and
// analytics, and the Sink interface every backend implements.
package history

import (
	"context"
	"time"
)

// EventKind identifies the supervisor transition a LifecycleEvent records.
type EventKind string

const (
	EventStart       EventKind = "start"
	EventStop        EventKind = "stop"
	EventRestart     EventKind = "restart"
	EventCull        EventKind = "cull"
	EventProbeFailed EventKind = "probe_failed"
	EventTick        EventKind = "tick"
)

// Event is an immutable record of one supervisor state transition for a
// single target, handed to a Sink on a best-effort basis.
type Event struct {
	Nick           string    `json:"nick"`
	Kind           EventKind `json:"kind"`
	Desired        bool      `json:"desired"`
	ObservedOnline bool      `json:"observed_online"`
	Detail         string    `json:"detail,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Sink is a destination for lifecycle events. Implementations must be safe
// for concurrent use; a Send failure is always logged and swallowed by the
// caller, never allowed to block a supervisor tick. Close releases the
// sink's resources and flushes anything it still buffers — the lifecycle
// root owns it, the supervisors only ever call Send.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// NopSink discards every event. Used when no history DSN is configured.
type NopSink struct{}

func (NopSink) Send(context.Context, Event) error { return nil }

func (NopSink) Close() error { return nil }
