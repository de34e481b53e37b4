package httpapi

import (
	"encoding/json"

	"github.com/agentserver/agentserver/internal/turn"
	"github.com/agentserver/agentserver/pkg/types"
)

func toHistoryMessage(m *types.Message) turn.HistoryMessage {
	var attachments []turn.AttachmentDTO
	for _, a := range m.Attachments {
		attachments = append(attachments, turn.AttachmentDTO{FileName: a.FileName, MimeType: a.MimeType, Hash: a.Hash})
	}
	return turn.HistoryMessage{
		ID:              m.ID,
		BranchID:        m.BranchID,
		ParentMessageID: m.ParentMessageID,
		Text:            m.Text,
		Type:            string(m.Type),
		Attachments:     attachments,
		CumulTokenCount: m.CumulTokenCount,
		Model:           m.Model,
		CreatedAt:       m.CreatedAt,
	}
}

// jsonMarshal encodes v, falling back to an empty object on a failure
// that can only mean a caller handed it an unmarshalable type.
func jsonMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
