package ssehub

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/turn"
)

type noopFlusher struct{ flushes int }

func (f *noopFlusher) Flush() error { f.flushes++; return nil }

func TestServeWritesWireFormatAndStopsOnClose(t *testing.T) {
	h := New()
	sub, _ := h.Attach("branch-1")

	var buf bytes.Buffer
	flusher := &noopFlusher{}

	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), &buf, flusher, sub)
	}()

	h.Broadcast("branch-1", turn.Event{Type: turn.EventAck, Payload: "42"})
	h.Broadcast("branch-1", turn.Event{Type: turn.EventModelText, Payload: "7\nhello\nworld"})
	h.Detach(sub)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Detach closed the subscription")
	}

	want := "data: A\ndata: 42\n\n" + "data: M\ndata: 7\ndata: hello\ndata: world\n\n"
	assert.Equal(t, want, buf.String())
	assert.GreaterOrEqual(t, flusher.flushes, 2)
}

func TestServeSendsPingOnIdle(t *testing.T) {
	original := pingInterval
	pingInterval = 20 * time.Millisecond
	defer func() { pingInterval = original }()

	h := New()
	sub, _ := h.Attach("branch-1")
	defer h.Detach(sub)

	var buf bytes.Buffer
	flusher := &noopFlusher{}

	ctx, cancel := context.WithTimeout(context.Background(), pingInterval+200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, &buf, flusher, sub)
	}()

	<-done
	assert.Contains(t, buf.String(), "data: .\n\n")
}

func TestServeStopsOnContextCancel(t *testing.T) {
	h := New()
	sub, _ := h.Attach("branch-1")
	defer h.Detach(sub)

	ctx, cancel := context.WithCancel(context.Background())
	var buf bytes.Buffer
	flusher := &noopFlusher{}

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, &buf, flusher, sub)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
