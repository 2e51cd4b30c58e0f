// Package rendezvous implements the Rendezvous Registry (spec §4.5): the
// single synchronization point that lets a worker inside an executor
// issue a request to an observer (prompt the user, speak text, evaluate
// a client-side script) and block until the observer replies.
//
// Grounded on the teacher's pkg/observer (Observer/Manager fan-out
// pattern) for the dispatch side, and on the scheduler's cooperative
// cancellation model (spec §4.4) for release_all. Request IDs use
// github.com/google/uuid, the teacher's own choice for execution/record
// identifiers.
package rendezvous

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Category partitions the registry for diagnostics; semantics are
// identical across categories (spec §4.5).
type Category string

const (
	CategoryInputPrompt     Category = "input-prompt"
	CategoryTTS             Category = "tts"
	CategoryClientScriptEval Category = "client-script-eval"
	CategoryMediaPlayback   Category = "media-playback"
	CategoryImageView       Category = "image-view"
)

// Reply is the observer-supplied (or synthetic) payload delivered to a
// waiting worker.
type Reply map[string]interface{}

// TimeoutError is returned by AwaitReply when the deadline elapses
// before a reply arrives.
type TimeoutError struct {
	RequestID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rendezvous: request %s timed out", e.RequestID)
}

type slot struct {
	category Category
	ready    chan Reply
	once     sync.Once
}

func (s *slot) fire(r Reply) {
	s.once.Do(func() { s.ready <- r })
}

// DispatchFunc sends a request payload to the observer side, keyed by
// requestID. The registry calls it synchronously from Dispatch; the
// caller is expected to return quickly (e.g. enqueue onto a channel).
type DispatchFunc func(category Category, requestID string, payload interface{})

// Registry correlates worker requests with observer replies. One
// Registry belongs to exactly one run, mirroring the Execution Context's
// single-writer-per-run discipline.
type Registry struct {
	mu       sync.Mutex
	slots    map[string]*slot
	dispatch DispatchFunc
}

// New creates a Registry. dispatch may be nil if the caller only ever
// calls Register/AwaitReply/DeliverReply directly in tests.
func New(dispatch DispatchFunc) *Registry {
	return &Registry{
		slots:    make(map[string]*slot),
		dispatch: dispatch,
	}
}

// Register allocates a new slot for category and returns its request id.
// The caller must eventually call AwaitReply with this id exactly once
// (spec P2): the registry removes the slot on AwaitReply's return
// regardless of outcome (reply, timeout, or cancellation).
func (r *Registry) Register(category Category) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.slots[id] = &slot{category: category, ready: make(chan Reply, 1)}
	r.mu.Unlock()
	return id
}

// Dispatch sends payload to the observer side for requestID. It is the
// caller's responsibility to invoke this after Register and before
// AwaitReply.
func (r *Registry) Dispatch(requestID string, payload interface{}) {
	r.mu.Lock()
	s, ok := r.slots[requestID]
	fn := r.dispatch
	r.mu.Unlock()
	if !ok || fn == nil {
		return
	}
	fn(s.category, requestID, payload)
}

// AwaitReply blocks until either a reply is delivered, the deadline
// elapses, or ctx is cancelled — then removes the slot unconditionally.
func (r *Registry) AwaitReply(ctx context.Context, requestID string, deadline time.Duration) (Reply, error) {
	r.mu.Lock()
	s, ok := r.slots[requestID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("rendezvous: unknown request id %s", requestID)
	}
	defer r.remove(requestID)

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case reply := <-s.ready:
		return reply, nil
	case <-timer.C:
		return nil, &TimeoutError{RequestID: requestID}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) remove(requestID string) {
	r.mu.Lock()
	delete(r.slots, requestID)
	r.mu.Unlock()
}

// DeliverReply stores reply and wakes the waiting AwaitReply call.
// Unknown ids are ignored — the observer may have replied after the
// worker's deadline already removed the slot.
func (r *Registry) DeliverReply(requestID string, reply Reply) {
	r.mu.Lock()
	s, ok := r.slots[requestID]
	r.mu.Unlock()
	if !ok {
		return
	}
	s.fire(reply)
}

// ReleaseAll fires every live slot with a synthetic cancellation reply,
// used when the scheduler observes cancel_signaled (spec §4.4). It does
// not remove slots itself — each corresponding AwaitReply call removes
// its own slot when it wakes, preserving the register/remove pairing.
func (r *Registry) ReleaseAll(reason string) {
	r.mu.Lock()
	slots := make([]*slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.mu.Unlock()

	for _, s := range slots {
		s.fire(Reply{"cancelled": true, "reason": reason})
	}
}

// Pending reports how many slots are currently awaited, for telemetry
// (rpacore_rendezvous_pending gauge) and for tests asserting P2 (no
// leaked slots once a run ends).
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
