package bridge

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// ResponseCallback receives the reply data of an outbound call.
type ResponseCallback func(data string)

type pendingCallback struct {
	cb      ResponseCallback
	created time.Time
}

// CallbackRegistry maps generated callback ids to pending response callbacks.
// Each callback is consumed at most once.
type CallbackRegistry struct {
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	next    uint64
	pending map[string]pendingCallback
}

// NewCallbackRegistry creates a registry whose ids are prefix followed by a
// counter starting at 1.
func NewCallbackRegistry(prefix string) *CallbackRegistry {
	return &CallbackRegistry{
		prefix:  prefix,
		now:     time.Now,
		pending: make(map[string]pendingCallback),
	}
}

// Register stores cb under a fresh id and returns the id.
func (r *CallbackRegistry) Register(cb ResponseCallback) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.prefix + strconv.FormatUint(r.next, 10)
	r.pending[id] = pendingCallback{cb: cb, created: r.now()}
	return id
}

// Take removes and returns the callback for id.
func (r *CallbackRegistry) Take(id string) (ResponseCallback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	delete(r.pending, id)
	return p.cb, true
}

// Resolve removes the callback for id and invokes it with data outside the
// lock. Unknown or already-resolved ids are ignored and report false.
func (r *CallbackRegistry) Resolve(id, data string) bool {
	cb, ok := r.Take(id)
	if !ok {
		return false
	}
	if cb != nil {
		cb(data)
	}
	return true
}

// Len returns the number of pending callbacks.
func (r *CallbackRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// IDs returns the pending callback ids, sorted.
func (r *CallbackRegistry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Expire removes callbacks registered more than ttl ago and returns their
// ids. Expired callbacks are never invoked. A non-positive ttl expires nothing.
func (r *CallbackRegistry) Expire(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	var expired []string
	for id, p := range r.pending {
		if p.created.Before(cutoff) {
			expired = append(expired, id)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	sort.Strings(expired)
	return expired
}
