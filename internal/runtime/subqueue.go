package runtime

import (
	"sync"
)

// SubQueue decouples a producer from a single slow consumer. Enqueue never
// blocks; once more than limit events are waiting, the oldest are dropped.
type SubQueue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []T
	limit   int
	dropped int
	closed  bool

	outCh  chan T // consumer reads from this
	done   chan struct{}
	paused bool // gate dispatch until snapshot sent
}

// NewSubQueue starts a paused queue. A limit of zero or less means unbounded.
func NewSubQueue[T any](outBuf, limit int) *SubQueue[T] {
	sq := &SubQueue[T]{
		outCh:  make(chan T, outBuf),
		done:   make(chan struct{}),
		limit:  limit,
		paused: true,
	}
	sq.cond = sync.NewCond(&sq.mu)
	go sq.dispatch()
	return sq
}

// Channel exposed to subscriber.
func (sq *SubQueue[T]) Chan() <-chan T { return sq.outCh }

// Enqueue appends to the in-memory queue and wakes dispatcher.
func (sq *SubQueue[T]) Enqueue(ev T) {
	sq.mu.Lock()
	if !sq.closed {
		sq.queue = append(sq.queue, ev)
		if sq.limit > 0 && len(sq.queue) > sq.limit {
			over := len(sq.queue) - sq.limit
			sq.queue = append(sq.queue[:0], sq.queue[over:]...)
			sq.dropped += over
		}
		sq.cond.Signal()
	}
	sq.mu.Unlock()
}

// Dropped returns how many events were discarded because the consumer lagged.
func (sq *SubQueue[T]) Dropped() int {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return sq.dropped
}

// Pause/Resume gates dispatching (used to hold back live events during snapshot).
func (sq *SubQueue[T]) SetPaused(v bool) {
	sq.mu.Lock()
	sq.paused = v
	sq.cond.Broadcast()
	sq.mu.Unlock()
}

// SendSnapshot pushes a message directly to the subscriber channel,
// bypassing the queue. Use ONLY while the sub is paused and the channel
// has room for the whole snapshot.
func (sq *SubQueue[T]) SendSnapshot(ev T) {
	sq.outCh <- ev
}

// Close stops the dispatcher and closes the out channel, even if the
// consumer has stopped reading.
func (sq *SubQueue[T]) Close() {
	sq.mu.Lock()
	if !sq.closed {
		sq.closed = true
		close(sq.done)
	}
	sq.cond.Broadcast()
	sq.mu.Unlock()
}

func (sq *SubQueue[T]) dispatch() {
	for {
		sq.mu.Lock()
		for !sq.closed && (sq.paused || len(sq.queue) == 0) {
			sq.cond.Wait()
		}
		if sq.closed {
			sq.mu.Unlock()
			close(sq.outCh)
			return
		}
		ev := sq.queue[0]
		// pop
		copy(sq.queue, sq.queue[1:])
		sq.queue = sq.queue[:len(sq.queue)-1]
		sq.mu.Unlock()

		select {
		case sq.outCh <- ev:
		case <-sq.done:
			close(sq.outCh)
			return
		}
	}
}
