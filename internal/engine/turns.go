package engine

import (
	"context"
	"sync"
)

// turnQueue orders work per key. Turns are reserved synchronously in arrival order;
// a turn may start only once the previous turn on the same key has been released.
type turnQueue struct {
	mu    sync.Mutex
	tails map[string]*turn
}

type turn struct {
	q    *turnQueue
	key  string
	prev chan struct{}
	done chan struct{}
}

func newTurnQueue() *turnQueue {
	return &turnQueue{tails: make(map[string]*turn)}
}

// reserve appends a turn for key.
func (q *turnQueue) reserve(key string) *turn {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := &turn{q: q, key: key, done: make(chan struct{})}
	if prev, ok := q.tails[key]; ok {
		t.prev = prev.done
	}
	q.tails[key] = t
	return t
}

// pending returns the number of keys with an unreleased turn.
func (q *turnQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}

// queued reports whether the turn was reserved behind another turn on the same key.
func (t *turn) queued() bool {
	if t.prev == nil {
		return false
	}
	select {
	case <-t.prev:
		return false
	default:
		return true
	}
}

// wait blocks until the previous turn on the key is released.
func (t *turn) wait(ctx context.Context) error {
	if t.prev == nil {
		return nil
	}
	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release lets the next turn on the key run.
func (t *turn) release() {
	t.q.mu.Lock()
	if t.q.tails[t.key] == t {
		delete(t.q.tails, t.key)
	}
	t.q.mu.Unlock()
	close(t.done)
}

// abandon gives up a turn that never ran. The chain stays intact: the release happens
// once the previous turn is done.
func (t *turn) abandon() {
	if t.prev == nil {
		t.release()
		return
	}
	go func() {
		<-t.prev
		t.release()
	}()
}
