package ssehub

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/agentserver/agentserver/internal/turn"
)

// pingInterval is §4.7's 15-second idle keep-alive, a third the
// teacher's 30-second SSEHeartbeatInterval: this protocol's `.` ping
// is a bare marker byte rather than a JSON heartbeat comment, cheap
// enough to send more often for faster dead-connection detection.
// Var rather than const so tests can shrink it instead of waiting out
// a real 15 seconds.
var pingInterval = 15 * time.Second

// Flusher is the minimal surface Serve needs from the HTTP response
// writer it drains a subscription into; http.ResponseController and
// http.Flusher both satisfy it trivially.
type Flusher interface {
	Flush() error
}

// Serve writes sub's events to w in the §6.1 wire format until ctx is
// cancelled, the subscription is closed by Detach, or a write fails
// (the client disconnected). It owns the 15-second ping ticker; the
// caller is responsible for calling Detach once Serve returns so the
// hub's bookkeeping doesn't leak.
func Serve(ctx context.Context, w io.Writer, flusher Flusher, sub *Subscription) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.ch:
			if !ok {
				return nil
			}
			if err := writeEvent(w, event); err != nil {
				return err
			}
			if err := flusher.Flush(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := writeEvent(w, turn.Event{Type: turn.EventPing}); err != nil {
				return err
			}
			if err := flusher.Flush(); err != nil {
				return err
			}
		}
	}
}

// writeEvent encodes one Event per §6.1: `data: <TYPE>` followed by
// one `data: ` line per line of Payload (so embedded newlines survive
// the SSE line-oriented wire format), then the blank-line terminator.
func writeEvent(w io.Writer, event turn.Event) error {
	var b strings.Builder
	b.WriteString("data: ")
	b.WriteByte(byte(event.Type))
	if event.Payload != "" {
		for _, line := range strings.Split(event.Payload, "\n") {
			b.WriteString("\ndata: ")
			b.WriteString(line)
		}
	}
	b.WriteString("\n\n")
	_, err := fmt.Fprint(w, b.String())
	return err
}
