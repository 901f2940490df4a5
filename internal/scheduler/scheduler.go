// Package scheduler is the single process-wide priority queue of
// scheduled actions shared by every supervisor: one heap ordered by
// (fireAt, priority, insertion order), one worker goroutine, and a
// mutex-guarded enter/cancel API safe to call concurrently with a running
// callback. Callbacks run serially on the worker, so a long check or
// restart delays every later event rather than overlapping with it.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

// Handle identifies a scheduled event for later cancellation. Handles are
// never reused.
type Handle int64

// Action is a scheduled callback. It receives the scheduler so it may
// re-arm itself or schedule siblings.
type Action func(ctx context.Context, s *Scheduler)

// ErrUnknownHandle is returned by Cancel when the handle has already
// fired or was never valid. Callers are expected to discard it silently.
var ErrUnknownHandle = errors.New("scheduler: unknown handle")

type event struct {
	fireAt   time.Time
	priority int
	seq      int64
	handle   Handle
	action   Action
	index    int // heap index, maintained by container/heap
}

// eventHeap is a min-heap ordered by (fireAt, priority, seq).
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if !a.fireAt.Equal(b.fireAt) {
		return a.fireAt.Before(b.fireAt)
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	e := x.(*event)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is the single process-wide event queue. Zero value is not
// usable; construct with New.
type Scheduler struct {
	mu         sync.Mutex
	heap       eventHeap
	byHandle   map[Handle]*event
	nextSeq    int64
	nextHandle int64
	wake       chan struct{}
}

// New builds an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		byHandle: make(map[Handle]*event),
		wake:     make(chan struct{}, 1),
	}
}

// Enter schedules action to fire after delay, ordered against other
// events by priority (lower fires first among ties) then insertion order.
// It is safe to call from any goroutine, including from a running
// Action.
func (s *Scheduler) Enter(delay time.Duration, priority int, action Action) Handle {
	s.mu.Lock()
	s.nextHandle++
	h := Handle(s.nextHandle)
	s.nextSeq++
	e := &event{
		fireAt:   time.Now().Add(delay),
		priority: priority,
		seq:      s.nextSeq,
		handle:   h,
		action:   action,
	}
	heap.Push(&s.heap, e)
	s.byHandle[h] = e
	s.mu.Unlock()

	s.notify()
	return h
}

// Cancel removes a scheduled event by handle. Cancelling an already-fired
// or unknown handle returns ErrUnknownHandle; callers are expected to
// discard this error. Safe to call from any goroutine, including from a
// running Action (e.g. cancelling a sibling).
func (s *Scheduler) Cancel(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byHandle[h]
	if !ok {
		return ErrUnknownHandle
	}
	heap.Remove(&s.heap, e.index)
	delete(s.byHandle, h)
	return nil
}

// Run blocks the calling goroutine, firing due events synchronously on
// this goroutine, one at a time, until ctx is cancelled. An empty queue
// does not end Run: it waits for the next Enter or for ctx. A callback may
// call Enter to re-arm itself, which is the normal way ticks and restart
// groups keep running.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.heap) == 0 {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		next := s.heap[0]
		wait := time.Until(next.fireAt)
		s.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.wake:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		s.mu.Lock()
		if len(s.heap) == 0 {
			s.mu.Unlock()
			continue
		}
		top := s.heap[0]
		if time.Now().Before(top.fireAt) {
			// A closer event was enqueued while we waited; loop to re-evaluate.
			s.mu.Unlock()
			continue
		}
		heap.Pop(&s.heap)
		delete(s.byHandle, top.handle)
		s.mu.Unlock()

		top.action(ctx, s)
	}
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of events currently queued. Test/diagnostic
// helper only.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// FireAt returns the scheduled fire time of a pending handle, or false if
// it has already fired or was cancelled. Test/diagnostic helper only.
func (s *Scheduler) FireAt(h Handle) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byHandle[h]
	if !ok {
		return time.Time{}, false
	}
	return e.fireAt, true
}
