package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// BufferCapacity is the bounded per-subscriber queue depth (spec §4.9).
const BufferCapacity = 1000

// Receiver is one subscriber's view of the bus: its own cursor over the
// event stream, delivered through Events until Close or bus shutdown.
type Receiver struct {
	id       int64
	ch       chan Event
	mu       sync.Mutex
	lagCount int
	closed   chan struct{}
	once     sync.Once
}

// Events returns the channel events are delivered on. It is closed when the
// receiver is closed or the owning bus shuts down.
func (r *Receiver) Events() <-chan Event {
	return r.ch
}

// Close detaches the receiver from the bus. Safe to call more than once.
func (r *Receiver) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		close(r.closed)
		close(r.ch)
	})
}

func (r *Receiver) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// deliver enqueues ev, non-blocking. If the subscriber's buffer is full it
// drops ev and records a lag count; the next delivery attempt first tries to
// flush a single synthetic "lagged by N" marker before resuming the normal
// stream (spec §4.9: "a single synthetic notification, then resumes").
func (r *Receiver) deliver(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isClosed() {
		return false
	}

	if r.lagCount > 0 {
		marker := lagEvent(r.lagCount)

		select {
		case r.ch <- marker:
			r.lagCount = 0
		default:
			r.lagCount++

			return false
		}
	}

	select {
	case r.ch <- ev:
		return true
	default:
		r.lagCount++

		return false
	}
}

func lagEvent(n int) Event {
	return Event{
		Type:    "lagged",
		Payload: map[string]int{"lagged_by": n},
	}
}

// Bus is a process-wide multi-producer multi-consumer broadcast. The zero
// value is not usable; construct with New.
type Bus struct {
	mu        sync.RWMutex
	receivers map[int64]*Receiver
	nextID    int64
	closed    bool
}

// New returns a ready Bus.
func New() *Bus {
	return &Bus{receivers: make(map[int64]*Receiver)}
}

// Subscribe registers a new Receiver with its own bounded queue.
func (b *Bus) Subscribe() (*Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("eventbus: closed")
	}

	id := atomic.AddInt64(&b.nextID, 1)
	r := &Receiver{
		id:     id,
		ch:     make(chan Event, BufferCapacity),
		closed: make(chan struct{}),
	}
	b.receivers[id] = r

	go b.reap(r)

	return r, nil
}

// reap removes r from the subscriber set once it closes, so a slow consumer
// that never calls Close doesn't leak a map entry forever once it disconnects.
func (b *Bus) reap(r *Receiver) {
	<-r.closed

	b.mu.Lock()
	delete(b.receivers, r.id)
	b.mu.Unlock()
}

// Send broadcasts event to every current subscriber and returns how many
// received it (not counting receivers currently lagged-dropped). Zero
// subscribers is not an error (spec §4.9).
func (b *Bus) Send(event Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0

	for _, r := range b.receivers {
		if r.isClosed() {
			continue
		}

		if r.deliver(event) {
			delivered++
		}
	}

	return delivered
}

// Close closes every receiver; subsequent Subscribe calls fail.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, r := range b.receivers {
		r.Close()
	}
}
