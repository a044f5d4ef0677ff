package orchestrator

import (
	"context"
	"sync"
)

// threadLocks serializes turns that share a thread id. Entries are dropped
// once no turn holds or waits for them.
type threadLocks struct {
	mu    sync.Mutex
	slots map[string]*threadSlot
}

type threadSlot struct {
	ch   chan struct{}
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{slots: make(map[string]*threadSlot)}
}

// Acquire blocks until the thread is free or ctx is done. The returned
// release func must be called exactly once.
func (l *threadLocks) Acquire(ctx context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[threadID]
	if !ok {
		slot = &threadSlot{ch: make(chan struct{}, 1)}
		l.slots[threadID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(threadID, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.unref(threadID, slot)
		})
	}, nil
}

func (l *threadLocks) unref(threadID string, slot *threadSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, threadID)
	}
}

func (l *threadLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
