package turn

import (
	"context"
	"encoding/json"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/internal/provider"
	"github.com/agentserver/agentserver/pkg/types"
)

// Confirm resolves a branch's parked pending_confirmation: approved
// executes the call through the Tool registry, denied synthesizes a
// `{status:"denied"}` function-response (§7's tool-denied recovery).
// Either way the field is cleared and generation resumes from the
// function-response point.
func (e *Engine) Confirm(ctx context.Context, branchID string, approved bool, modifiedArgs map[string]any) error {
	release, err := e.locks.tryAcquire(branchID)
	if err != nil {
		return err
	}
	defer release()

	branch, err := e.db.GetBranch(ctx, branchID)
	if err != nil {
		return err
	}
	if branch.PendingConfirmation == nil || *branch.PendingConfirmation == "" {
		return apierror.BadRequest("branch %q has no pending confirmation", branchID)
	}

	var call provider.FunctionCall
	if err := json.Unmarshal([]byte(*branch.PendingConfirmation), &call); err != nil {
		return apierror.Wrap(apierror.KindInternal, "decode pending confirmation", err)
	}
	if modifiedArgs != nil {
		call.Args = modifiedArgs
	}

	session, err := e.db.GetSession(ctx, branch.SessionID)
	if err != nil {
		return err
	}

	tail, err := e.branchTail(ctx, branchID)
	if err != nil {
		return err
	}

	var (
		respID      int64
		response    map[string]any
		attachments []types.FileAttachment
	)
	if approved {
		prov, _, modelErr := e.resolveModel("")
		if modelErr != nil {
			return modelErr
		}
		respID, response, attachments, err = e.executeTool(ctx, session.ID, branchID, &tail, prov, &call, true)
		if err != nil {
			return err
		}
	} else {
		response = map[string]any{"status": "denied"}
		fr := provider.FunctionResponse{ID: call.ID, Name: call.Name, Response: response}
		respID, err = e.persist(ctx, branchID, &tail, types.Message{Text: jsonField(fr), Type: types.MessageFunctionResponse})
		if err != nil {
			return err
		}
	}

	empty := ""
	if err := e.db.SetPendingConfirmation(ctx, branchID, &empty); err != nil {
		return err
	}
	e.broadcaster.Broadcast(branchID, Event{Type: EventFunctionResponse, Payload: field(intField(respID), call.Name, jsonField(FunctionResponsePayload{Response: response, Attachments: toAttachmentDTOs(attachments)}))})

	return e.runCycle(ctx, cycleParams{
		session:      session,
		branchID:     branchID,
		systemPrompt: session.SystemPrompt,
	})
}

// Edit clones branchID from immediately before targetMessageID,
// substitutes newText for that message, and restarts generation on
// the clone. The original branch is left untouched.
func (e *Engine) Edit(ctx context.Context, targetMessageID int64, newText string, attachments []types.FileAttachment, model string) (newBranchID string, err error) {
	target, err := e.db.GetMessage(ctx, targetMessageID)
	if err != nil {
		return "", err
	}
	if target.ParentMessageID == nil {
		return "", apierror.BadRequest("message %d has no predecessor to fork before", targetMessageID)
	}

	newBranchID, err = e.db.ForkBranch(ctx, *target.ParentMessageID, nowMillis())
	if err != nil {
		return "", err
	}
	branchReady(ctx, newBranchID)

	release, err := e.locks.tryAcquire(newBranchID)
	if err != nil {
		return "", err
	}
	defer release()

	editedMsg := types.Message{
		BranchID:    newBranchID,
		Text:        newText,
		Type:        types.MessageUser,
		Attachments: attachments,
		CreatedAt:   nowMillis(),
	}
	newUserID, err := e.db.AppendMessage(ctx, newBranchID, target.ParentMessageID, editedMsg)
	if err != nil {
		return "", err
	}

	branch, err := e.db.GetBranch(ctx, newBranchID)
	if err != nil {
		return "", err
	}
	session, err := e.db.GetSession(ctx, branch.SessionID)
	if err != nil {
		return "", err
	}

	if err := e.runCycle(ctx, cycleParams{
		session:      session,
		branchID:     newBranchID,
		ackMessageID: &newUserID,
		systemPrompt: session.SystemPrompt,
		model:        model,
	}); err != nil {
		return "", err
	}
	return newBranchID, nil
}

// Retry forks a sibling branch rooted at originalUserMessageID (the
// user message whose reply is being redone) and regenerates from it
// without re-persisting the user's text — it is already part of the
// shared message chain the new branch inherits up to the fork point.
func (e *Engine) Retry(ctx context.Context, originalUserMessageID int64, model string) (newBranchID string, err error) {
	userMsg, err := e.db.GetMessage(ctx, originalUserMessageID)
	if err != nil {
		return "", err
	}
	if userMsg.Type.Role() != "user" {
		return "", apierror.BadRequest("message %d is not a user message", originalUserMessageID)
	}

	newBranchID, err = e.db.ForkBranch(ctx, originalUserMessageID, nowMillis())
	if err != nil {
		return "", err
	}
	branchReady(ctx, newBranchID)

	release, err := e.locks.tryAcquire(newBranchID)
	if err != nil {
		return "", err
	}
	defer release()

	branch, err := e.db.GetBranch(ctx, newBranchID)
	if err != nil {
		return "", err
	}
	session, err := e.db.GetSession(ctx, branch.SessionID)
	if err != nil {
		return "", err
	}

	if err := e.runCycle(ctx, cycleParams{
		session:      session,
		branchID:     newBranchID,
		ackMessageID: &originalUserMessageID,
		systemPrompt: session.SystemPrompt,
		model:        model,
	}); err != nil {
		return "", err
	}
	return newBranchID, nil
}

// ErrorRetry forks at the last non-error anchor (the most recent
// message that isn't itself a model_error/error record) and resumes
// generation from there, the same shape as Retry but anchored
// wherever the failed turn last made real progress rather than always
// at the triggering user message.
func (e *Engine) ErrorRetry(ctx context.Context, branchID string, model string) (newBranchID string, err error) {
	history, err := e.db.GetHistory(ctx, branchID, nil, 1)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", apierror.BadRequest("branch %q has no messages", branchID)
	}

	anchor := history[0]
	for anchor != nil && (anchor.Type == types.MessageModelError || anchor.Type == types.MessageError) {
		if anchor.ParentMessageID == nil {
			return "", apierror.BadRequest("branch %q has no non-error anchor", branchID)
		}
		anchor, err = e.db.GetMessage(ctx, *anchor.ParentMessageID)
		if err != nil {
			return "", err
		}
	}

	newBranchID, err = e.db.ForkBranch(ctx, anchor.ID, nowMillis())
	if err != nil {
		return "", err
	}
	branchReady(ctx, newBranchID)

	release, err := e.locks.tryAcquire(newBranchID)
	if err != nil {
		return "", err
	}
	defer release()

	branch, err := e.db.GetBranch(ctx, newBranchID)
	if err != nil {
		return "", err
	}
	session, err := e.db.GetSession(ctx, branch.SessionID)
	if err != nil {
		return "", err
	}

	return newBranchID, e.runCycle(ctx, cycleParams{
		session:      session,
		branchID:     newBranchID,
		systemPrompt: session.SystemPrompt,
		model:        model,
	})
}
