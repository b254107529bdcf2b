package session

import (
	"encoding/json"
	"sync"

	"github.com/nevil-robotics/audio-core/pkg/telemetry"
)

// outboundQueue is the bounded, drop-oldest-on-overflow outbound event
// queue. A plain channel cannot implement drop-oldest (only reject-newest),
// so this is a mutex/condvar-backed ring of pending events.
type outboundQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []json.Marshaler
	capacity int
	closed   bool
}

func newOutboundQueue(capacity int) *outboundQueue {
	if capacity <= 0 {
		capacity = defaultOutboundCapacity
	}
	q := &outboundQueue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends event, dropping the oldest pending event with a logged
// warning if the queue is already at capacity.
func (q *outboundQueue) push(event json.Marshaler, logger telemetry.Logger) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		logger.Warn("outbound queue overflow, dropped oldest event")
	}
	q.items = append(q.items, event)
	q.cond.Signal()
}

// pushFront re-queues event at the head, used to requeue a send that failed
// mid-flight so it is retried first after reconnect.
func (q *outboundQueue) pushFront(event json.Marshaler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append([]json.Marshaler{event}, q.items...)
	q.cond.Signal()
}

// pop blocks until an event is available, the queue is closed, or stop
// fires, returning ok=false in the latter two cases once drained.
func (q *outboundQueue) pop(stop <-chan struct{}) (json.Marshaler, bool) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-stop:
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		select {
		case <-stop:
			return nil, false
		default:
		}
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *outboundQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
