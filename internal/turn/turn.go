package turn

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/internal/blobstore"
	"github.com/agentserver/agentserver/internal/event"
	"github.com/agentserver/agentserver/internal/provider"
	"github.com/agentserver/agentserver/internal/sessiondb"
	"github.com/agentserver/agentserver/internal/tool"
	"github.com/agentserver/agentserver/pkg/types"
)

// Retry tuning for transient-net reconnects at the generation-cycle
// level (§7: "reconnect up to small bounded count on the same logical
// call"). Separate from, and much shorter than, the idempotent
// within-request retry a provider already performs before its first
// streamed Part.
const (
	// maxCycleSteps bounds the number of model-call/tool-call round
	// trips a single turn may take before it is treated as runaway,
	// mirroring the teacher's agentic-loop step ceiling.
	maxCycleSteps = 50

	maxCycleRetries      = 2
	cycleRetryInitial    = 250 * time.Millisecond
	cycleRetryMax        = 2 * time.Second
	cycleRetryMaxElapsed = 10 * time.Second
)

func newCycleBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cycleRetryInitial
	b.MaxInterval = cycleRetryMax
	b.MaxElapsedTime = cycleRetryMaxElapsed
	b.RandomizationFactor = 0.5
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, maxCycleRetries), ctx)
}

// Engine drives turns: it is the one piece of the system that writes
// messages to a branch and advances its generation state. Exactly one
// Engine call may be in flight on a given branch at a time (§5).
type Engine struct {
	db          *sessiondb.DB
	blobs       *blobstore.Store
	providers   *provider.Registry
	tools       *tool.Registry
	broadcaster Broadcaster
	locks       *branchLocks

	// titleModel, when set, pins the provider/model string used for
	// session-name inference; empty means "use the registry default".
	titleModel string
}

// New builds an Engine. broadcaster may be NopBroadcaster{} in tests
// or callers that only care about persisted side effects.
func New(db *sessiondb.DB, blobs *blobstore.Store, providers *provider.Registry, tools *tool.Registry, broadcaster Broadcaster) *Engine {
	return &Engine{
		db:          db,
		blobs:       blobs,
		providers:   providers,
		tools:       tools,
		broadcaster: broadcaster,
		locks:       newBranchLocks(),
	}
}

// SetTitleModel overrides the provider/model string used for
// session-name inference (§4.6.1); an empty string restores the
// registry default.
func (e *Engine) SetTitleModel(model string) { e.titleModel = model }

func nowMillis() int64 { return time.Now().UnixMilli() }

// SendInput is what callers supply to begin a generation cycle.
type SendInput struct {
	SessionID    string
	BranchID     string
	Text         string
	Attachments  []types.FileAttachment
	Model        string // "provider/model"; empty uses the registry default
	SystemPrompt string // overrides session.SystemPrompt when non-empty
}

// Start atomically creates a session and its primary branch, persists
// the system prompt, then proceeds exactly as Send does.
func (e *Engine) Start(ctx context.Context, systemPrompt, workspaceID string, in SendInput) (sessionID, branchID string, err error) {
	sessionID, branchID, err = e.db.CreateSession(ctx, systemPrompt, workspaceID, nowMillis())
	if err != nil {
		return "", "", err
	}
	branchReady(ctx, branchID)
	in.SessionID = sessionID
	in.BranchID = branchID
	if in.SystemPrompt == "" {
		in.SystemPrompt = systemPrompt
	}
	if err := e.Send(ctx, in); err != nil {
		return "", "", err
	}
	return sessionID, branchID, nil
}

// Send appends the user message to branchID and runs a generation
// cycle to completion (or to a parked/errored stop).
func (e *Engine) Send(ctx context.Context, in SendInput) error {
	release, err := e.locks.tryAcquire(in.BranchID)
	if err != nil {
		return err
	}
	defer release()

	branch, err := e.db.GetBranch(ctx, in.BranchID)
	if err != nil {
		return err
	}
	if branch.PendingConfirmation != nil && *branch.PendingConfirmation != "" {
		return apierror.Conflict("branch %q is awaiting confirmation", in.BranchID)
	}

	session, err := e.db.GetSession(ctx, in.SessionID)
	if err != nil {
		return err
	}

	tail, err := e.branchTail(ctx, in.BranchID)
	if err != nil {
		return err
	}

	userMsg := types.Message{
		BranchID:    in.BranchID,
		Text:        in.Text,
		Type:        types.MessageUser,
		Attachments: in.Attachments,
		CreatedAt:   nowMillis(),
	}
	userID, err := e.db.AppendMessage(ctx, in.BranchID, tail, userMsg)
	if err != nil {
		return err
	}
	_ = e.db.Touch(ctx, in.SessionID, nowMillis())

	systemPrompt := in.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = session.SystemPrompt
	}

	return e.runCycle(ctx, cycleParams{
		session:      session,
		branchID:     in.BranchID,
		ackMessageID: &userID,
		systemPrompt: systemPrompt,
		model:        in.Model,
	})
}

// branchTail returns the id of the message currently at the head of
// branchID's spine (the one with no chosen_next_id), or nil if the
// branch is empty.
func (e *Engine) branchTail(ctx context.Context, branchID string) (*int64, error) {
	history, err := e.db.GetHistory(ctx, branchID, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}
	return &history[0].ID, nil
}

// curatedHistory loads every message on the branch, oldest first,
// filtered to types.MessageType.Curated().
func (e *Engine) curatedHistory(ctx context.Context, branchID string) ([]*types.Message, error) {
	all, err := e.db.GetHistory(ctx, branchID, nil, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	// GetHistory returns newest-first; reverse to oldest-first and
	// drop anything the prompt excludes (thoughts, by default).
	out := make([]*types.Message, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Type.Curated() {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func toHistoryDTO(m *types.Message) HistoryMessage {
	return HistoryMessage{
		ID:              m.ID,
		BranchID:        m.BranchID,
		ParentMessageID: m.ParentMessageID,
		Text:            m.Text,
		Type:            string(m.Type),
		Attachments:     toAttachmentDTOs(m.Attachments),
		CumulTokenCount: m.CumulTokenCount,
		Model:           m.Model,
		CreatedAt:       m.CreatedAt,
	}
}

func toAttachmentDTOs(in []types.FileAttachment) []AttachmentDTO {
	if len(in) == 0 {
		return nil
	}
	out := make([]AttachmentDTO, len(in))
	for i, a := range in {
		out[i] = AttachmentDTO{FileName: a.FileName, MimeType: a.MimeType, Hash: a.Hash}
	}
	return out
}

// cycleParams bundles what one generation cycle needs beyond the
// resolved branch: the session it belongs to (name-inference dispatch
// reads/writes session.Name), an optional ack-worthy message id (set
// only when this cycle starts from a fresh Send, not a resumed
// Confirm), the system prompt to prompt-build with, and the model
// string to use.
type cycleParams struct {
	session      *types.Session
	branchID     string
	ackMessageID *int64
	systemPrompt string
	model        string
}

// runCycle is the generation cycle of §4.6: build the prompt, emit
// the ack/initial-state pair, drive the LLM adapter, persist and
// broadcast every Part, execute function calls through the Tool
// registry, and loop until a terminal state.
func (e *Engine) runCycle(ctx context.Context, p cycleParams) error {
	prov, model, err := e.resolveModel(p.model)
	if err != nil {
		return err
	}

	history, err := e.curatedHistory(ctx, p.branchID)
	if err != nil {
		return err
	}

	if p.ackMessageID != nil {
		e.broadcaster.Broadcast(p.branchID, Event{Type: EventAck, Payload: intField(*p.ackMessageID)})
	}

	dtoHistory := make([]HistoryMessage, len(history))
	for i, m := range history {
		dtoHistory[i] = toHistoryDTO(m)
	}
	e.broadcaster.Broadcast(p.branchID, Event{Type: EventInitialStateActive, Payload: jsonField(InitialState{
		SessionID:       p.session.ID,
		History:         dtoHistory,
		SystemPrompt:    p.systemPrompt,
		WorkspaceID:     p.session.WorkspaceID,
		PrimaryBranchID: p.session.PrimaryBranchID,
	})})

	tail, err := e.branchTail(ctx, p.branchID)
	if err != nil {
		return err
	}

	firstAssistantTurn := !hasAssistantMessage(history)

	for step := 0; step < maxCycleSteps; step++ {
		parts, err := e.curatedPartsForPrompt(history)
		if err != nil {
			return err
		}

		req := &provider.GenerateRequest{
			Model:        model.ID,
			Messages:     parts,
			Tools:        e.toolInfos(),
			SystemPrompt: p.systemPrompt,
		}

		stepResult, err := e.runStep(ctx, prov, req, p.session.ID, p.branchID, &tail)
		if err != nil {
			e.finishWithError(ctx, p.branchID, tail, err)
			return err
		}

		history = append(history, stepResult.persisted...)

		switch stepResult.outcome {
		case outcomeNeedsConfirmation:
			payload := stepResult.pendingConfirmationJSON
			if err := e.db.SetPendingConfirmation(ctx, p.branchID, &payload); err != nil {
				return err
			}
			e.broadcaster.Broadcast(p.branchID, Event{Type: EventPendingConfirmation, Payload: payload})
			return nil
		case outcomeContinue:
			continue
		case outcomeTerminal:
			e.finishTerminal(ctx, p.session, p.branchID, firstAssistantTurn, stepResult.lastAssistantText)
			return nil
		}
	}

	err = apierror.New(apierror.KindInternal, "turn exceeded the maximum number of tool-call steps")
	e.finishWithError(ctx, p.branchID, tail, err)
	return err
}

func hasAssistantMessage(history []*types.Message) bool {
	for _, m := range history {
		if m.Type == types.MessageModel {
			return true
		}
	}
	return false
}

// curatedPartsForPrompt converts persisted messages into the flat
// Part shape Generate expects. function_call and function_response
// messages are decoded from the JSON persisted for them, which carries
// the call's ID and name.
func (e *Engine) curatedPartsForPrompt(history []*types.Message) ([]provider.Part, error) {
	out := make([]provider.Part, 0, len(history))
	for _, m := range history {
		switch m.Type {
		case types.MessageUser, types.MessageCommand:
			out = append(out, provider.UserText(m.Text, m.Attachments...))
		case types.MessageModel:
			out = append(out, provider.ModelText(m.Text))
		case types.MessageFunctionCall:
			var fc provider.FunctionCall
			if err := json.Unmarshal([]byte(m.Text), &fc); err != nil {
				return nil, apierror.Wrap(apierror.KindInternal, "decode persisted function call", err)
			}
			out = append(out, provider.Part{Type: provider.PartFunctionCall, Role: "model", FunctionCall: &fc})
		case types.MessageFunctionResponse:
			var fr provider.FunctionResponse
			if err := json.Unmarshal([]byte(m.Text), &fr); err != nil {
				return nil, apierror.Wrap(apierror.KindInternal, "decode persisted function response", err)
			}
			out = append(out, provider.Part{Type: provider.PartFunctionResponse, Role: "function", FunctionResponse: &fr, Attachments: m.Attachments})
		case types.MessageCompression:
			out = append(out, provider.ModelText(m.Text))
		}
	}
	return out, nil
}

func (e *Engine) toolInfos() []provider.ToolInfo {
	defs := e.tools.List()
	out := make([]provider.ToolInfo, len(defs))
	for i, d := range defs {
		out[i] = provider.ToolInfo{Name: d.Name, Description: d.Description, Schema: d.Schema}
	}
	return out
}

func (e *Engine) resolveModel(modelStr string) (provider.Provider, *provider.Model, error) {
	var providerID, modelID string
	if modelStr != "" {
		providerID, modelID = provider.ParseModelString(modelStr)
	}
	if providerID == "" {
		m, err := e.providers.DefaultModel()
		if err != nil {
			return nil, nil, err
		}
		providerID, modelID = m.ProviderID, m.ID
	}
	prov, err := e.providers.Get(providerID)
	if err != nil {
		return nil, nil, err
	}
	model, err := e.providers.GetModel(providerID, modelID)
	if err != nil {
		return nil, nil, err
	}
	return prov, model, nil
}

// finishWithError marks any dangling assistant work on the branch as
// errored, broadcasts E, and releases nothing itself — the caller's
// deferred release() handles that. Branch-level state is never left
// half-mutated (§7): pending_confirmation is always cleared here too,
// since an error mid-cycle means there is no parked call to honor.
func (e *Engine) finishWithError(ctx context.Context, branchID string, tail *int64, cause error) {
	msg := cause.Error()
	_, _ = e.db.AppendMessage(ctx, branchID, tail, types.Message{
		BranchID:  branchID,
		Text:      msg,
		Type:      types.MessageModelError,
		CreatedAt: nowMillis(),
	})
	empty := ""
	_ = e.db.SetPendingConfirmation(ctx, branchID, &empty)
	e.broadcaster.Broadcast(branchID, Event{Type: EventError, Payload: msg})
}

// finishTerminal emits Q and, on the session's first successful
// assistant turn, dispatches async name inference.
func (e *Engine) finishTerminal(ctx context.Context, session *types.Session, branchID string, firstAssistantTurn bool, lastAssistantText string) {
	if firstAssistantTurn && session.Name == "" && lastAssistantText != "" {
		go e.inferTitle(context.WithoutCancel(ctx), session.ID, lastAssistantText, branchID)
	}
	e.broadcaster.Broadcast(branchID, Event{Type: EventComplete, Payload: ""})
}

// publishSessionUpdated mirrors the teacher's pattern of broadcasting
// a session.updated domain event alongside the SSE-level N event, so
// any in-process listener (e.g. a workspace-list UI) observing the
// event bus rather than an SSE stream still sees the rename.
func publishSessionUpdated(s *types.Session) {
	event.Publish(event.Event{Type: event.SessionUpdated, Data: event.SessionUpdatedData{Info: s}})
}
