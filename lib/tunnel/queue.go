package tunnel

import "time"

// queuedItem is one entry in the manager's dispatch queue. Exactly one
// of the two fields is set: frame carries a raw tunnel data frame to
// route by tunnel ID, reply carries a build response to match against
// the pending table. Recognizing which I2NP message type an arriving
// envelope is belongs to the Codec collaborator; PostTunnelData and
// PostBuildResponse are the two entry points a caller that has already
// demultiplexed the message type uses.
type queuedItem struct {
	frame []byte
	reply *buildReply
}

type buildReply struct {
	replyID ReplyMessageID
	resp    *BuildResponse
}

// dispatchQueue is the manager's inbound message queue: multiple
// producers (the transport receive path, the build-response parser)
// post items, one consumer (the manager's worker) drains them. Backed
// by a buffered channel, which already gives Go the MPSC semantics and
// a built-in wake-up via close.
type dispatchQueue struct {
	items chan queuedItem
	done  chan struct{}
}

func newDispatchQueue(capacity int) *dispatchQueue {
	return &dispatchQueue{
		items: make(chan queuedItem, capacity),
		done:  make(chan struct{}),
	}
}

// Put enqueues item. While the buffer is full it blocks until the
// consumer takes an item or the queue is woken up for shutdown; an item
// put after WakeUp may be discarded. Safe from any goroutine.
func (q *dispatchQueue) Put(item queuedItem) {
	select {
	case q.items <- item:
	case <-q.done:
	}
}

// GetWithTimeout blocks for up to timeout waiting for an item, or
// until the queue is woken up for shutdown. ok is false on timeout or
// shutdown.
func (q *dispatchQueue) GetWithTimeout(timeout time.Duration) (item queuedItem, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item = <-q.items:
		return item, true
	case <-timer.C:
		return queuedItem{}, false
	case <-q.done:
		return queuedItem{}, false
	}
}

// TryGet drains one more item without blocking, if one is immediately
// available. Used to drain the queue fully once GetWithTimeout returns
// a first item.
func (q *dispatchQueue) TryGet() (item queuedItem, ok bool) {
	select {
	case item = <-q.items:
		return item, true
	default:
		return queuedItem{}, false
	}
}

// WakeUp unblocks any goroutine parked in GetWithTimeout, used at
// shutdown. Safe to call more than once.
func (q *dispatchQueue) WakeUp() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}
