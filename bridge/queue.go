package bridge

import (
	"sync"

	"github.com/pithecene-io/jsbridge/types"
)

// QueueState is the lifecycle state of a StartupQueue.
type QueueState int

const (
	// QueueBuffering holds outbound envelopes until the script context is ready.
	QueueBuffering QueueState = iota
	// QueueDrained passes envelopes straight through. Terminal.
	QueueDrained
)

func (s QueueState) String() string {
	if s == QueueDrained {
		return "drained"
	}
	return "buffering"
}

// StartupQueue buffers outbound envelopes until the script-side runtime is
// ready, then releases them once in FIFO order. It is unbounded.
//
// Send and Drain hold the same lock while dispatching, so an envelope sent
// concurrently with the drain is never delivered ahead of buffered ones.
// dispatch must not block or call back into the queue.
type StartupQueue struct {
	mu      sync.Mutex
	state   QueueState
	pending []*types.Envelope
}

// NewStartupQueue creates a queue in the buffering state.
func NewStartupQueue() *StartupQueue {
	return &StartupQueue{}
}

// Send buffers env while the queue is buffering and dispatches it otherwise.
// It reports whether env was buffered.
func (q *StartupQueue) Send(env *types.Envelope, dispatch func(*types.Envelope)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == QueueBuffering {
		q.pending = append(q.pending, env)
		return true
	}
	dispatch(env)
	return false
}

// Drain dispatches every buffered envelope in order and retires the queue.
// Only the first call drains; later calls return 0, false.
func (q *StartupQueue) Drain(dispatch func(*types.Envelope)) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == QueueDrained {
		return 0, false
	}
	pending := q.pending
	q.pending = nil
	q.state = QueueDrained
	for _, env := range pending {
		dispatch(env)
	}
	return len(pending), true
}

// State returns the current state.
func (q *StartupQueue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Len returns the number of buffered envelopes.
func (q *StartupQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
