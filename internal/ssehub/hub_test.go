package ssehub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/turn"
)

func recv(t *testing.T, sub *Subscription) turn.Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return turn.Event{}
	}
}

func TestAttachReceivesBroadcastEvents(t *testing.T) {
	h := New()

	sub, active := h.Attach("branch-1")
	assert.False(t, active)

	h.Broadcast("branch-1", turn.Event{Type: turn.EventAck, Payload: "1"})
	h.Broadcast("branch-1", turn.Event{Type: turn.EventModelText, Payload: "1\nhello"})

	assert.Equal(t, turn.Event{Type: turn.EventAck, Payload: "1"}, recv(t, sub))
	assert.Equal(t, turn.Event{Type: turn.EventModelText, Payload: "1\nhello"}, recv(t, sub))
}

func TestBroadcastTracksActiveAcrossTerminalEvents(t *testing.T) {
	h := New()

	h.Broadcast("branch-1", turn.Event{Type: turn.EventAck, Payload: "1"})
	_, active := h.Attach("branch-1")
	assert.True(t, active, "a non-terminal broadcast should leave the branch active")

	h.Broadcast("branch-1", turn.Event{Type: turn.EventComplete})
	_, active = h.Attach("branch-1")
	assert.False(t, active, "Q must clear the branch's active flag")
}

func TestPendingConfirmationClearsActive(t *testing.T) {
	h := New()
	h.Broadcast("branch-1", turn.Event{Type: turn.EventFunctionCall, Payload: "1\nwrite_file\n{}"})
	h.Broadcast("branch-1", turn.Event{Type: turn.EventPendingConfirmation, Payload: `{"name":"write_file"}`})

	_, active := h.Attach("branch-1")
	assert.False(t, active)
}

func TestDetachStopsDeliveryAndClosesChannel(t *testing.T) {
	h := New()
	sub, _ := h.Attach("branch-1")

	h.Detach(sub)

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed after Detach")

	// Broadcasting after detach must not panic or block.
	h.Broadcast("branch-1", turn.Event{Type: turn.EventComplete})
}

func TestSendUnicastsToOneSubscriberOnly(t *testing.T) {
	h := New()
	subA, _ := h.Attach("branch-1")
	subB, _ := h.Attach("branch-1")

	h.Send(subA, turn.Event{Type: turn.EventInitialStateIdle, Payload: "{}"})

	assert.Equal(t, turn.Event{Type: turn.EventInitialStateIdle, Payload: "{}"}, recv(t, subA))

	select {
	case <-subB.Events():
		t.Fatal("subB should not have received the unicast event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMultipleSubscribersAllReceiveBroadcast(t *testing.T) {
	h := New()
	subA, _ := h.Attach("branch-1")
	subB, _ := h.Attach("branch-1")

	h.Broadcast("branch-1", turn.Event{Type: turn.EventComplete})

	assert.Equal(t, turn.Event{Type: turn.EventComplete}, recv(t, subA))
	assert.Equal(t, turn.Event{Type: turn.EventComplete}, recv(t, subB))
}

func TestBranchPrunedOnceIdleAndUnsubscribed(t *testing.T) {
	h := New()
	sub, _ := h.Attach("branch-1")
	h.Broadcast("branch-1", turn.Event{Type: turn.EventComplete})
	h.Detach(sub)

	h.lock()
	_, exists := h.branches["branch-1"]
	h.unlock()
	assert.False(t, exists, "an idle branch with no subscribers should be pruned")
}

func TestBranchNotPrunedWhileActive(t *testing.T) {
	h := New()
	sub, _ := h.Attach("branch-1")
	h.Broadcast("branch-1", turn.Event{Type: turn.EventAck, Payload: "1"})
	h.Detach(sub)

	h.lock()
	_, exists := h.branches["branch-1"]
	h.unlock()
	assert.True(t, exists, "an active branch must stay tracked even with no current subscribers")
}
