// Package clickhouse implements a history.Sink backed by ClickHouse's
// native protocol client. ClickHouse strongly prefers batched inserts
// over row-at-a-time writes, so events accumulate in memory and are
// flushed through the driver's batch API once enough have gathered (or
// when the sink closes). An event log is best-effort by contract, so a
// crash losing an unflushed tail is an accepted trade.
package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/fbaster/mcsupervisor/internal/history"
)

const (
	defaultBatchSize = 32
	setupTimeout     = 10 * time.Second
)

// ddl uses MergeTree ordered by (nick, occurred_at), the natural read
// pattern for per-target audit queries.
const ddl = `CREATE TABLE IF NOT EXISTS %s (
	occurred_at DateTime,
	nick String,
	kind String,
	desired UInt8,
	observed_online UInt8,
	detail String
) ENGINE = MergeTree() ORDER BY (nick, occurred_at)`

// Sink sends lifecycle events to ClickHouse in batches.
type Sink struct {
	conn      driver.Conn
	table     string
	batchSize int

	mu      sync.Mutex
	pending []history.Event
}

// New connects to ClickHouse at addr and ensures the event table exists.
func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{Database: "default", Username: "default"},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse history: open %s: %w", addr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if err := conn.Exec(ctx, fmt.Sprintf(ddl, table)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse history: ensure table %s: %w", table, err)
	}

	return &Sink{conn: conn, table: table, batchSize: defaultBatchSize}, nil
}

// Send buffers e, flushing the accumulated batch once it reaches the
// batch size. The returned error, if any, belongs to the flush — a
// buffered event itself cannot fail.
func (s *Sink) Send(ctx context.Context, e history.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, e)
	if len(s.pending) < s.batchSize {
		return nil
	}
	return s.flushLocked(ctx)
}

func (s *Sink) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 || s.conn == nil {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		`INSERT INTO %s (occurred_at, nick, kind, desired, observed_online, detail)`, s.table))
	if err != nil {
		return fmt.Errorf("clickhouse history: prepare batch: %w", err)
	}
	for _, e := range s.pending {
		if err := batch.Append(
			e.OccurredAt.UTC(), e.Nick, string(e.Kind),
			boolU8(e.Desired), boolU8(e.ObservedOnline), e.Detail,
		); err != nil {
			return fmt.Errorf("clickhouse history: append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		// Keep the batch for the next attempt; dropping it here would
		// turn one transient outage into silent data loss.
		return fmt.Errorf("clickhouse history: send batch of %d: %w", len(s.pending), err)
	}

	s.pending = s.pending[:0]
	return nil
}

// Close flushes any buffered events, then drops the connection.
func (s *Sink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	s.mu.Lock()
	flushErr := s.flushLocked(ctx)
	s.mu.Unlock()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			return err
		}
	}
	return flushErr
}

func boolU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
