// ABOUTME: Bounded, time-limited record of handled dispatch ids
// ABOUTME: Reports replays of messages and interactions after a session resume

package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const (
	defaultTTL      = 10 * time.Minute
	defaultCapacity = 10_000
	minPruneEvery   = time.Second
)

// Key builds the window key for a dispatch of the given kind.
func Key(kind, id string) string {
	return kind + ":" + id
}

type record struct {
	key    string
	seenAt time.Time
}

// Window remembers keys for ttl, holding at most capacity of them. The oldest
// key is forgotten first when the window is full.
type Window struct {
	mu       sync.Mutex
	records  map[string]*list.Element
	order    *list.List // oldest at front
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// New creates a window. Non-positive arguments fall back to defaults.
func New(ttl time.Duration, capacity int) *Window {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Window{
		records:  make(map[string]*list.Element),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Seen records key and reports whether it was already recorded within the
// window. Check and record happen under one lock.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.pruneLocked(now)

	if elem, ok := w.records[key]; ok {
		rec := elem.Value.(*record)
		rec.seenAt = now
		w.order.MoveToBack(elem)
		return true
	}

	if w.order.Len() >= w.capacity {
		w.dropFrontLocked()
	}
	w.records[key] = w.order.PushBack(&record{key: key, seenAt: now})
	return false
}

// Len returns the number of keys currently remembered.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}

// Run prunes expired keys periodically until ctx ends.
func (w *Window) Run(ctx context.Context) {
	every := w.ttl / 2
	if every < minPruneEvery {
		every = minPruneEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			w.pruneLocked(w.now())
			w.mu.Unlock()
		}
	}
}

// pruneLocked drops expired keys from the front. Refreshing a key moves it to
// the back, so the list stays ordered by seenAt.
func (w *Window) pruneLocked(now time.Time) {
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		if now.Sub(front.Value.(*record).seenAt) < w.ttl {
			return
		}
		w.dropFrontLocked()
	}
}

func (w *Window) dropFrontLocked() {
	front := w.order.Front()
	if front == nil {
		return
	}
	w.order.Remove(front)
	delete(w.records, front.Value.(*record).key)
}
