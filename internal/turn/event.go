// Package turn implements the central driver of one conversational
// turn: it takes a user message, drives the LLM adapter (C5) to
// completion while interleaving tool execution (C4) and persistence
// (C2), and emits the SSE event sequence (see §6.1) a subscriber of
// the branch observes.
package turn

import (
	"encoding/json"
	"strconv"
	"strings"
)

// EventType is the single-character SSE event tag from §6.1.
type EventType byte

const (
	EventWorkspaceHint        EventType = 'W'
	EventInitialStateActive   EventType = '0'
	EventInitialStateIdle     EventType = '1'
	EventAck                  EventType = 'A'
	EventThought              EventType = 'T'
	EventModelText            EventType = 'M'
	EventFunctionCall         EventType = 'F'
	EventFunctionResponse     EventType = 'R'
	EventInlineData           EventType = 'I'
	EventCumulTokenCount      EventType = 'C'
	EventPendingConfirmation  EventType = 'P'
	EventGenerationChanged    EventType = 'G'
	EventSessionName          EventType = 'N'
	EventComplete             EventType = 'Q'
	EventPing                 EventType = '.'
	EventError                EventType = 'E'
)

// Event is one SSE event destined for a branch's subscribers. Payload
// is the already-joined body (embedded newlines intact); the wire
// encoder is responsible for splitting it across `data:` lines.
type Event struct {
	Type    EventType
	Payload string
}

// Broadcaster is the shape the SSE hub (C7) exposes to the Turn
// engine. The Turn engine is written against this interface rather
// than a concrete hub so it can be built, and tested, independently
// of C7: a no-op or recording Broadcaster is enough to exercise a
// generation cycle in isolation.
type Broadcaster interface {
	Broadcast(branchID string, event Event)
}

// NopBroadcaster discards every event. Useful as a default when a
// caller only wants the persisted side effects of a turn.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(string, Event) {}

// field joins parts with the single-newline separator §6.1 specifies
// for multi-part payloads (message_id\ntext, etc).
func field(parts ...string) string {
	return strings.Join(parts, "\n")
}

func intField(n int64) string {
	return strconv.FormatInt(n, 10)
}

func jsonField(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Marshaling our own well-typed payload structs never fails;
		// a failure here means a struct holds an unmarshalable type.
		return "{}"
	}
	return string(b)
}

// InitialState is the JSON payload carried by events `0` and `1`.
type InitialState struct {
	SessionID             string             `json:"sessionId"`
	History               []HistoryMessage   `json:"history"`
	SystemPrompt          string             `json:"systemPrompt"`
	WorkspaceID           string             `json:"workspaceId"`
	PrimaryBranchID       string             `json:"primaryBranchId"`
	CallElapsedTimeSeconds *float64          `json:"callElapsedTimeSeconds,omitempty"`
	PendingConfirmation   *string            `json:"pendingConfirmation,omitempty"`
}

// HistoryMessage is the wire shape of one persisted message inside an
// InitialState payload or a GET history page.
type HistoryMessage struct {
	ID              int64          `json:"id"`
	BranchID        string         `json:"branchId"`
	ParentMessageID *int64         `json:"parentMessageId,omitempty"`
	Text            string         `json:"text"`
	Type            string         `json:"type"`
	Attachments     []AttachmentDTO `json:"attachments,omitempty"`
	CumulTokenCount int64          `json:"cumulTokenCount"`
	Model           string         `json:"model,omitempty"`
	CreatedAt       int64          `json:"createdAt"`
}

// AttachmentDTO is the wire shape of a file attachment.
type AttachmentDTO struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Hash     string `json:"hash"`
}

// FunctionResponsePayload is the JSON body of an `R` event.
type FunctionResponsePayload struct {
	Response    map[string]any  `json:"response"`
	Attachments []AttachmentDTO `json:"attachments,omitempty"`
}

// InlineDataPayload is the JSON body of an `I` event.
type InlineDataPayload struct {
	MessageID   int64           `json:"messageId"`
	Attachments []AttachmentDTO `json:"attachments"`
}

// GenerationChangedPayload is the JSON body half of a `G` event
// (the message id is the other half, newline-joined ahead of it).
type GenerationChangedPayload struct {
	Path string `json:"path"`
}
