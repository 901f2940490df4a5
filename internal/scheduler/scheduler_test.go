package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"testing"
	"time"
)

func TestSchedulerFiresInDeadlineOrder(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string

	record := func(name string) Action {
		return func(ctx context.Context, _ *Scheduler) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	s.Enter(30*time.Millisecond, 0, record("third"))
	s.Enter(10*time.Millisecond, 0, record("first"))
	s.Enter(20*time.Millisecond, 0, record("second"))

	go s.Run(ctx)

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for all events to fire, got %v", order)
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("fire order = %v, want %v", order, want)
		}
	}
}

func TestSchedulerTiesBreakOnPriorityThenInsertionOrder(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string
	record := func(name string) Action {
		return func(ctx context.Context, _ *Scheduler) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	fireAt := 10 * time.Millisecond
	handles := []Handle{
		s.Enter(fireAt, 5, record("low-priority")),
		s.Enter(fireAt, 1, record("high-priority")),
		s.Enter(fireAt, 1, record("high-priority-second")),
	}

	// Enter stamps each event with its own time.Now(), so equal delays are
	// not equal deadlines; pin all three to one instant to make a real tie.
	s.mu.Lock()
	at := time.Now().Add(fireAt)
	for _, h := range handles {
		s.byHandle[h].fireAt = at
	}
	heap.Init(&s.heap)
	s.mu.Unlock()

	go s.Run(ctx)

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out, got %v", order)
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high-priority", "high-priority-second", "low-priority"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("fire order = %v, want %v", order, want)
		}
	}
}

func TestCancelRemovesAPendingEvent(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	h := s.Enter(20*time.Millisecond, 0, func(ctx context.Context, _ *Scheduler) {
		fired <- struct{}{}
	})

	if err := s.Cancel(h); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if err := s.Cancel(h); err != ErrUnknownHandle {
		t.Fatalf("second Cancel = %v, want ErrUnknownHandle", err)
	}

	go s.Run(ctx)

	select {
	case <-fired:
		t.Fatal("cancelled event fired")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestEnterDuringRunCanPreemptAnEarlierWait(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string
	record := func(name string) Action {
		return func(ctx context.Context, _ *Scheduler) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	s.Enter(200*time.Millisecond, 0, record("late"))
	go s.Run(ctx)

	time.Sleep(10 * time.Millisecond)
	s.Enter(10*time.Millisecond, 0, record("early"))

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the preempting event")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "early" {
		t.Fatalf("first fired = %q, want %q", order[0], "early")
	}
}

func TestPendingReflectsQueueSize(t *testing.T) {
	s := New()
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", s.Pending())
	}
	h := s.Enter(time.Hour, 0, func(context.Context, *Scheduler) {})
	if s.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", s.Pending())
	}
	_ = s.Cancel(h)
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0 after cancel", s.Pending())
	}
}
