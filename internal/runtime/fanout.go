package runtime

import "sync"

// Fanout broadcasts events to any number of subscribers, each behind its
// own SubQueue. New subscribers first receive a snapshot, then live events.
type Fanout[T any] struct {
	limit  int
	mu     sync.Mutex
	subs   map[int]*SubQueue[T]
	nextID int
	closed bool
}

// NewFanout creates a Fanout whose subscriber queues hold at most limit
// pending events.
func NewFanout[T any](limit int) *Fanout[T] {
	return &Fanout[T]{
		limit: limit,
		subs:  make(map[int]*SubQueue[T]),
	}
}

// Subscribe registers a subscriber. The snapshot events are delivered
// before any event broadcast after registration.
func (f *Fanout[T]) Subscribe(snapshot []T) (<-chan T, func()) {
	sub := NewSubQueue[T](len(snapshot)+8, f.limit)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		sub.Close()
		return sub.Chan(), func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	for _, ev := range snapshot {
		sub.SendSnapshot(ev)
	}
	sub.SetPaused(false)

	unsub := func() {
		f.mu.Lock()
		if q, ok := f.subs[id]; ok {
			delete(f.subs, id)
			q.Close()
		}
		f.mu.Unlock()
	}
	return sub.Chan(), unsub
}

func (f *Fanout[T]) Broadcast(ev T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		sub.Enqueue(ev)
	}
}

// Len returns the number of live subscribers.
func (f *Fanout[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close closes every subscriber channel. Later subscribers get a closed
// channel.
func (f *Fanout[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, q := range f.subs {
		q.Close()
		delete(f.subs, id)
	}
}
