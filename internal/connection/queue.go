package connection

import "sync"

// sendQueue is an ordered outbound pipe. Enqueue never blocks the
// caller; items are consumed in strict FIFO order by exactly one drain
// loop at a time. The queue outlives individual transports, so work
// queued during a reconnect is kept.
type sendQueue struct {
	kind MessageKind

	mu     sync.Mutex
	items  []OutboundEnvelope
	closed bool

	wake chan struct{} // buffered 1; nudges a waiting drain loop
}

func newSendQueue(kind MessageKind) *sendQueue {
	return &sendQueue{
		kind: kind,
		wake: make(chan struct{}, 1),
	}
}

// enqueue appends an envelope. Never blocks.
func (q *sendQueue) enqueue(env OutboundEnvelope) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, env)
	q.mu.Unlock()
	q.nudge()
	return nil
}

// pushFront puts an envelope at the head of the queue. Used to requeue
// an item whose write failed and to put the handshake envelope ahead of
// traffic queued while disconnected.
func (q *sendQueue) pushFront(env OutboundEnvelope) {
	q.mu.Lock()
	if !q.closed {
		q.items = append([]OutboundEnvelope{env}, q.items...)
	}
	q.mu.Unlock()
	q.nudge()
}

// next blocks until an item is available. ok is false when the queue is
// closed and drained, or done is closed.
func (q *sendQueue) next(done <-chan struct{}) (env OutboundEnvelope, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			env = q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return env, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return OutboundEnvelope{}, false
		}

		select {
		case <-done:
			return OutboundEnvelope{}, false
		case <-q.wake:
		}
	}
}

// close stops accepting new items. Items already queued remain
// drainable until the consuming loop's done channel fires.
func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.nudge()
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *sendQueue) nudge() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
