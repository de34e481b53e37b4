package turn

import (
	"context"
	"encoding/json"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/internal/provider"
	"github.com/agentserver/agentserver/internal/tool"
	"github.com/agentserver/agentserver/pkg/types"
)

type stepOutcome int

const (
	outcomeContinue stepOutcome = iota
	outcomeNeedsConfirmation
	outcomeTerminal
)

type stepResult struct {
	persisted               []*types.Message
	outcome                 stepOutcome
	pendingConfirmationJSON string
	lastAssistantText       string
}

// runStep invokes the LLM adapter once (retrying idempotently on
// transient-net failures per §7) and drains its stream, persisting
// and broadcasting every Part as step 4 of §4.6 describes, then
// executing any function call per step 5. tail is advanced in place
// as messages are appended so the caller can keep chaining steps.
func (e *Engine) runStep(ctx context.Context, prov provider.Provider, req *provider.GenerateRequest, sessionID, branchID string, tail **int64) (*stepResult, error) {
	out := &stepResult{outcome: outcomeTerminal}

	stream, err := e.connectWithRetry(ctx, prov, req)
	if err != nil {
		return nil, err
	}

	// Accumulates streamed text fragments by message id so repeated M
	// events for the same id extend one persisted message instead of
	// creating a new one each fragment.
	var textMessageID *int64
	var textAccum string

	markPersisted := func(id int64) error {
		msg, err := e.db.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		out.persisted = append(out.persisted, msg)
		return nil
	}

	for part := range stream {
		switch part.Type {
		case provider.PartThought:
			id, perr := e.persist(ctx, branchID, tail, types.Message{Text: part.Text, Type: types.MessageThought})
			if perr != nil {
				return nil, perr
			}
			if perr := markPersisted(id); perr != nil {
				return nil, perr
			}
			e.broadcaster.Broadcast(branchID, Event{Type: EventThought, Payload: field(intField(id), part.Text)})

		case provider.PartText:
			if textMessageID == nil {
				id, perr := e.persist(ctx, branchID, tail, types.Message{Text: part.Text, Type: types.MessageModel})
				if perr != nil {
					return nil, perr
				}
				textMessageID = &id
				textAccum = part.Text
				out.persisted = append(out.persisted, nil) // placeholder, filled in by finalizeText
			} else {
				textAccum += part.Text
				if uerr := e.updateMessageText(ctx, *textMessageID, textAccum); uerr != nil {
					return nil, uerr
				}
			}
			e.broadcaster.Broadcast(branchID, Event{Type: EventModelText, Payload: field(intField(*textMessageID), part.Text)})

		case provider.PartFunctionCall:
			callJSON := jsonField(part.FunctionCall)
			id, perr := e.persist(ctx, branchID, tail, types.Message{Text: callJSON, Type: types.MessageFunctionCall})
			if perr != nil {
				return nil, perr
			}
			if perr := markPersisted(id); perr != nil {
				return nil, perr
			}
			e.broadcaster.Broadcast(branchID, Event{Type: EventFunctionCall, Payload: field(intField(id), part.FunctionCall.Name, jsonField(part.FunctionCall.Args))})

			if e.tools.RequiresConfirmation(part.FunctionCall.Name) {
				out.outcome = outcomeNeedsConfirmation
				out.pendingConfirmationJSON = callJSON
				return finalizeText(out, textMessageID, textAccum, e, ctx)
			}

			respID, response, attachments, callErr := e.executeTool(ctx, sessionID, branchID, tail, prov, part.FunctionCall, false)
			if callErr != nil {
				return nil, callErr
			}
			if perr := markPersisted(respID); perr != nil {
				return nil, perr
			}
			e.broadcaster.Broadcast(branchID, Event{Type: EventFunctionResponse, Payload: field(intField(respID), part.FunctionCall.Name, jsonField(FunctionResponsePayload{Response: response, Attachments: toAttachmentDTOs(attachments)}))})
			out.outcome = outcomeContinue

		case provider.PartInlineData:
			if textMessageID != nil {
				e.broadcaster.Broadcast(branchID, Event{Type: EventInlineData, Payload: jsonField(InlineDataPayload{MessageID: *textMessageID, Attachments: toAttachmentDTOs(part.Attachments)})})
			}

		case provider.PartTokenCount:
			if textMessageID != nil {
				if uerr := e.updateCumulTokenCount(ctx, *textMessageID, part.TokenCount); uerr != nil {
					return nil, uerr
				}
				e.broadcaster.Broadcast(branchID, Event{Type: EventCumulTokenCount, Payload: field(intField(*textMessageID), intField(part.TokenCount))})
			}

		case provider.PartFinishReason:
			// Carried informationally; the terminal/continue decision
			// is driven by whether a function call arrived, not by
			// the raw provider finish reason string.

		case provider.PartError:
			return nil, classifyStreamError(part.Err)
		}
	}

	return finalizeText(out, textMessageID, textAccum, e, ctx)
}

// finalizeText fills in the placeholder persisted-message slot for
// the accumulated text message (if any) now that its final contents
// are known, and records it as the cycle's last assistant text for
// §4.6.1's name-inference dispatch.
func finalizeText(out *stepResult, textMessageID *int64, textAccum string, e *Engine, ctx context.Context) (*stepResult, error) {
	if textMessageID == nil {
		return out, nil
	}
	msg, err := e.db.GetMessage(ctx, *textMessageID)
	if err != nil {
		return nil, err
	}
	for i, m := range out.persisted {
		if m == nil {
			out.persisted[i] = msg
		}
	}
	out.lastAssistantText = textAccum
	return out, nil
}

func (e *Engine) persist(ctx context.Context, branchID string, tail **int64, msg types.Message) (int64, error) {
	msg.BranchID = branchID
	msg.CreatedAt = nowMillis()
	id, err := e.db.AppendMessage(ctx, branchID, *tail, msg)
	if err != nil {
		return 0, err
	}
	*tail = &id
	return id, nil
}

func (e *Engine) updateMessageText(ctx context.Context, messageID int64, text string) error {
	return e.db.UpdateMessageText(ctx, messageID, text)
}

func (e *Engine) updateCumulTokenCount(ctx context.Context, messageID int64, count int64) error {
	return e.db.UpdateCumulTokenCount(ctx, messageID, count)
}

// executeTool dispatches a function call through the Tool registry
// and persists its function_response, synthesizing a denial-shaped
// response if the handler itself reports a tool-denied error so the
// model can react instead of the turn aborting (§7).
func (e *Engine) executeTool(ctx context.Context, sessionID, branchID string, tail **int64, prov provider.Provider, call *provider.FunctionCall, confirmed bool) (respID int64, response map[string]any, attachments []types.FileAttachment, err error) {
	argsJSON, merr := json.Marshal(call.Args)
	if merr != nil {
		return 0, nil, nil, apierror.Wrap(apierror.KindInternal, "marshal function call args", merr)
	}

	tc := &tool.Context{Ctx: ctx, DB: e.db, SessionID: sessionID, BranchID: branchID, ModelName: prov.ID(), ConfirmationReceived: confirmed}
	result, callErr := e.tools.Call(tc, call.Name, argsJSON)

	if callErr != nil {
		kind := apierror.KindOf(callErr)
		switch kind {
		case apierror.KindToolDenied:
			response = map[string]any{"status": "denied", "reason": callErr.Error()}
		default:
			response = map[string]any{"status": "error", "error": callErr.Error()}
		}
	} else {
		response = map[string]any{"status": "ok", "result": result.Value}
		attachments = result.Attachments
	}

	fr := provider.FunctionResponse{ID: call.ID, Name: call.Name, Response: response}
	id, perr := e.persist(ctx, branchID, tail, types.Message{
		Text:        jsonField(fr),
		Type:        types.MessageFunctionResponse,
		Attachments: attachments,
	})
	if perr != nil {
		return 0, nil, nil, perr
	}
	return id, response, attachments, nil
}

// connectWithRetry calls Generate, retrying the connection attempt
// itself (never anything already streamed) up to the small bounded
// count §7 allows for transient-net failures.
func (e *Engine) connectWithRetry(ctx context.Context, prov provider.Provider, req *provider.GenerateRequest) (<-chan provider.Part, error) {
	var stream <-chan provider.Part
	op := func() error {
		s, err := prov.Generate(ctx, req)
		if err != nil {
			if apierror.KindOf(err) != apierror.KindTransientNet {
				return backoff.Permanent(err)
			}
			return err
		}
		stream = s
		return nil
	}
	if err := backoff.Retry(op, newCycleBackoff(ctx)); err != nil {
		return nil, err
	}
	return stream, nil
}

func classifyStreamError(err error) error {
	if err == nil {
		return apierror.Internal(nil)
	}
	if _, ok := apierror.As(err); ok {
		return err
	}
	return apierror.Wrap(apierror.KindInternal, "llm stream error", err)
}
