package types

// MessageType enumerates the kinds of entries that can appear in a branch.
type MessageType string

const (
	MessageUser             MessageType = "user"
	MessageModel            MessageType = "model"
	MessageThought          MessageType = "thought"
	MessageFunctionCall     MessageType = "function_call"
	MessageFunctionResponse MessageType = "function_response"
	MessageSystemPrompt     MessageType = "system_prompt"
	MessageEnvChanged       MessageType = "env_changed"
	MessageCompression      MessageType = "compression"
	MessageModelError       MessageType = "model_error"
	MessageError            MessageType = "error"
	MessageCommand          MessageType = "command"
)

// Role returns the conversational role a message type is pinned to.
func (t MessageType) Role() string {
	switch t {
	case MessageUser, MessageCommand:
		return "user"
	case MessageModel, MessageFunctionCall, MessageModelError, MessageError, MessageCompression:
		return "model"
	case MessageThought:
		return "thought"
	case MessageFunctionResponse:
		return "function"
	case MessageSystemPrompt:
		return "system"
	case MessageEnvChanged:
		return "system"
	default:
		return "model"
	}
}

// Curated reports whether a message type belongs in the curated prompt
// history built for the next LLM call. Thoughts are excluded by default.
func (t MessageType) Curated() bool {
	switch t {
	case MessageThought:
		return false
	default:
		return true
	}
}

// FileAttachment references content-addressed bytes living in the blob
// store.
type FileAttachment struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Hash     string `json:"hash"`
}

// Message is one atomic entry in a branch.
type Message struct {
	ID              int64            `json:"id"`
	BranchID        string           `json:"branchId"`
	ParentMessageID *int64           `json:"parentMessageId,omitempty"`
	ChosenNextID    *int64           `json:"chosenNextId,omitempty"`
	Text            string           `json:"text"`
	Type            MessageType      `json:"type"`
	Attachments     []FileAttachment `json:"attachments,omitempty"`
	CumulTokenCount int64            `json:"cumulTokenCount"`
	Model           string           `json:"model,omitempty"`
	CreatedAt       int64            `json:"createdAt"`
	Generation      int              `json:"generation"`
	Indexed         bool             `json:"indexed"`
}
