// Package ssehub implements the per-branch SSE multicaster (§4.7):
// attach/detach of subscribers, ordered fan-out from the Turn engine
// (C6), unicast delivery for workspace-hint/initial-state, and the
// 15-second ping keep-alive. It satisfies turn.Broadcaster so an
// Engine can be built directly against a Hub.
package ssehub

import (
	"github.com/agentserver/agentserver/internal/logging"
	"github.com/agentserver/agentserver/internal/turn"
)

// subscriberBuffer bounds how far a slow consumer may lag before the
// hub starts dropping its events rather than blocking the Turn
// engine goroutine driving the whole cycle — the same trade-off the
// teacher's sse.go makes with its size-10 event channel.
const subscriberBuffer = 64

// Hub is the per-branch multicaster. The zero value is not usable;
// construct with New.
type Hub struct {
	mu       chan struct{} // 1-buffered mutex; see lock/unlock
	branches map[string]*branchState
}

type branchState struct {
	subs map[*Subscription]struct{}
	// active reports whether a generation cycle is currently
	// broadcasting on this branch. Attach consults it so the caller
	// knows whether to wait on live events or build a fresh initial
	// state itself from persisted history (§4.7's "late subscribers
	// get a fresh attach ... via event 1").
	active bool
}

// Subscription is one attached listener's ordered event sink.
type Subscription struct {
	branchID string
	ch       chan turn.Event
}

// Events returns the subscriber's ordered channel; closed once the
// hub detaches it.
func (s *Subscription) Events() <-chan turn.Event { return s.ch }

// BranchID returns the branch this subscription is attached to.
func (s *Subscription) BranchID() string { return s.branchID }

// New builds an empty Hub.
func New() *Hub {
	h := &Hub{mu: make(chan struct{}, 1), branches: make(map[string]*branchState)}
	h.mu <- struct{}{}
	return h
}

func (h *Hub) lock()   { <-h.mu }
func (h *Hub) unlock() { h.mu <- struct{}{} }

// Attach begins receiving events for branchID from this point
// onward. active reports whether a generation cycle currently owns
// the branch; when false the caller must fetch persisted history and
// Send a fresh `1` before handing control to Serve.
func (h *Hub) Attach(branchID string) (sub *Subscription, active bool) {
	h.lock()
	defer h.unlock()

	bs := h.branchLocked(branchID)
	sub = &Subscription{branchID: branchID, ch: make(chan turn.Event, subscriberBuffer)}
	bs.subs[sub] = struct{}{}
	return sub, bs.active
}

// Detach removes a subscriber, closing its channel. Idempotent.
func (h *Hub) Detach(sub *Subscription) {
	h.lock()
	defer h.unlock()

	bs, ok := h.branches[sub.branchID]
	if !ok {
		return
	}
	if _, present := bs.subs[sub]; !present {
		return
	}
	delete(bs.subs, sub)
	close(sub.ch)
	h.pruneLocked(sub.branchID, bs)
}

// branchLocked returns branchID's state, creating it if this is the
// first Attach or Broadcast to ever mention it. Caller holds h.mu.
func (h *Hub) branchLocked(branchID string) *branchState {
	bs, ok := h.branches[branchID]
	if !ok {
		bs = &branchState{subs: make(map[*Subscription]struct{})}
		h.branches[branchID] = bs
	}
	return bs
}

// pruneLocked drops a branch's bookkeeping once it has neither
// subscribers nor an in-flight cycle, so idle branches don't
// accumulate empty entries forever (§4.7's acquire/release
// refcounting, expressed here as "no subs and not active" rather
// than an explicit counter since Attach/Detach already track
// membership exactly).
func (h *Hub) pruneLocked(branchID string, bs *branchState) {
	if len(bs.subs) == 0 && !bs.active {
		delete(h.branches, branchID)
	}
}

// Broadcast fans event out to every subscriber currently attached to
// branchID. This is the method the Turn engine calls through
// turn.Broadcaster. A terminal event type (Q, E, or P) clears the
// branch's active flag, per §4.7: the hub "removes the branch's
// in-flight context" on stream close.
func (h *Hub) Broadcast(branchID string, event turn.Event) {
	h.lock()
	bs := h.branchLocked(branchID)

	switch event.Type {
	case turn.EventComplete, turn.EventError, turn.EventPendingConfirmation:
		bs.active = false
	default:
		bs.active = true
	}

	subs := make([]*Subscription, 0, len(bs.subs))
	for sub := range bs.subs {
		subs = append(subs, sub)
	}
	h.pruneLocked(branchID, bs)
	h.unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			logging.Warn().
				Str("branchId", branchID).
				Str("eventType", string(rune(event.Type))).
				Msg("ssehub: dropping event, subscriber channel full")
		}
	}
}

// Send unicasts event to exactly one subscriber: the hub's
// load-existing-session path, where the HTTP layer builds a fresh
// `1` or `W` itself instead of waiting on a live cycle to supply one.
func (h *Hub) Send(sub *Subscription, event turn.Event) {
	select {
	case sub.ch <- event:
	default:
		logging.Warn().
			Str("branchId", sub.branchID).
			Str("eventType", string(rune(event.Type))).
			Msg("ssehub: dropping unicast, subscriber channel full")
	}
}
