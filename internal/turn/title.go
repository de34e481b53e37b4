package turn

import (
	"context"
	"strings"

	"github.com/agentserver/agentserver/internal/provider"
)

// titleSystemPrompt asks for a single-line, filename/number-preserving
// title rather than a summary.
const titleSystemPrompt = `You are a title generator. You output ONLY a thread title. Nothing else.

Rules:
- A single line, <= 50 characters
- No explanations, no surrounding quotes
- Use -ing verbs for actions (Debugging, Implementing, Analyzing)
- Keep exact: technical terms, numbers, filenames
- Remove: the, this, my, a, an`

const titleMaxTokens = 50

// inferTitle generates a short session name from the first assistant
// reply and, on success, persists it and broadcasts it (§4.6.1). It
// runs detached from the request that triggered it: failures here
// never fail the turn that produced lastAssistantText.
func (e *Engine) inferTitle(ctx context.Context, sessionID, lastAssistantText, branchID string) {
	prov, model, err := e.resolveModel(e.titleModel)
	if err != nil {
		return
	}

	stream, err := prov.Generate(ctx, &provider.GenerateRequest{
		Model:        model.ID,
		SystemPrompt: titleSystemPrompt,
		Messages:     []provider.Part{provider.UserText("Title this reply:\n\n" + lastAssistantText)},
		MaxTokens:    titleMaxTokens,
	})
	if err != nil {
		return
	}

	var text strings.Builder
	for part := range stream {
		switch part.Type {
		case provider.PartText:
			text.WriteString(part.Text)
		case provider.PartError:
			return
		}
	}

	name := firstLine(text.String())
	if name == "" {
		return
	}

	if err := e.db.RenameSession(ctx, sessionID, name); err != nil {
		return
	}
	session, err := e.db.GetSession(ctx, sessionID)
	if err != nil {
		return
	}

	e.broadcaster.Broadcast(branchID, Event{Type: EventSessionName, Payload: field(sessionID, name)})
	publishSessionUpdated(session)
}

// firstLine trims the response to its first non-empty line, capped at
// 100 characters, matching the teacher's title cleanup pass.
func firstLine(s string) string {
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 100 {
			line = line[:97] + "..."
		}
		return line
	}
	return ""
}
