package httpapi

import (
	"context"
	"math"
	"net/http"

	"github.com/agentserver/agentserver/internal/ssehub"
	"github.com/agentserver/agentserver/internal/turn"
)

// sseHeaders sets the headers every SSE response shares.
func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

// attachResult is what either attach path (known branch id, or a
// branch the operation is about to create) produces.
type attachResult struct {
	sub    *ssehub.Subscription
	active bool
}

// streamTurn drives op — any of Start/Send/Confirm/Edit/Retry/
// ErrorRetry — while piping its broadcasts to w as an SSE response.
// knownBranchID is the branch to attach to immediately when the
// caller already has one (Send, Confirm); leave it empty when op
// itself creates the branch (Start, Edit, Retry, ErrorRetry) — in that
// case op is always called with a context carrying
// turn.WithBranchReadyHook, and streamTurn attaches the instant that
// hook fires, before op can broadcast anything on the new id.
//
// op runs detached from the request's cancellation: a disconnecting
// client stops this handler from writing further, but per §5's
// cancellation model the in-flight generation keeps running and a
// later re-attach still observes it.
func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, knownBranchID string, op func(ctx context.Context) error) {
	runCtx := context.WithoutCancel(r.Context())
	attachedCh := make(chan attachResult, 1)

	if knownBranchID != "" {
		sub, active := s.hub.Attach(knownBranchID)
		attachedCh <- attachResult{sub, active}
	} else {
		runCtx = turn.WithBranchReadyHook(runCtx, func(branchID string) {
			sub, active := s.hub.Attach(branchID)
			attachedCh <- attachResult{sub, active}
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- op(runCtx) }()

	var res attachResult
	select {
	case res = <-attachedCh:
	case err := <-errCh:
		// op never reached branch creation/attach at all: nothing was
		// ever streamed, so a plain JSON error is still honest.
		writeErr(w, err)
		return
	}
	sub := res.sub

	go func() {
		if err := <-errCh; err != nil {
			s.hub.Broadcast(sub.BranchID(), turn.Event{Type: turn.EventError, Payload: err.Error()})
		}
		s.hub.Detach(sub)
	}()

	sseHeaders(w)
	flusher := http.NewResponseController(w)
	_ = ssehub.Serve(r.Context(), w, flusher, sub)
}

// streamLoad serves the "load existing" sequence of §6.1:
// `W -> (1 | (0 -> events... -> (Q|E)))`. It never starts a
// generation cycle itself; it only observes one already in flight, or
// reports the persisted idle state.
func (s *Server) streamLoad(w http.ResponseWriter, r *http.Request, workspaceID, branchID string) {
	ctx := r.Context()
	sub, active := s.hub.Attach(branchID)

	sseHeaders(w)
	flusher := http.NewResponseController(w)

	s.hub.Send(sub, turn.Event{Type: turn.EventWorkspaceHint, Payload: workspaceID})

	if !active {
		state, err := s.loadInitialState(ctx, branchID)
		if err != nil {
			s.hub.Detach(sub)
			return
		}
		s.hub.Send(sub, turn.Event{Type: turn.EventInitialStateIdle, Payload: jsonMarshal(state)})
		s.hub.Detach(sub)
		_ = ssehub.Serve(ctx, w, flusher, sub)
		return
	}

	state, err := s.loadInitialState(ctx, branchID)
	if err == nil {
		s.hub.Send(sub, turn.Event{Type: turn.EventInitialStateActive, Payload: jsonMarshal(state)})
	}
	defer s.hub.Detach(sub)
	_ = ssehub.Serve(ctx, w, flusher, sub)
}

// loadInitialState reconstructs the §6.1 InitialState JSON from what's
// currently persisted on branchID, for either half of streamLoad.
func (s *Server) loadInitialState(ctx context.Context, branchID string) (turn.InitialState, error) {
	branch, err := s.db.GetBranch(ctx, branchID)
	if err != nil {
		return turn.InitialState{}, err
	}
	session, err := s.db.GetSession(ctx, branch.SessionID)
	if err != nil {
		return turn.InitialState{}, err
	}
	history, err := s.db.GetHistory(ctx, branchID, nil, math.MaxInt32)
	if err != nil {
		return turn.InitialState{}, err
	}
	dto := make([]turn.HistoryMessage, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		dto = append(dto, toHistoryMessage(history[i]))
	}
	return turn.InitialState{
		SessionID:           session.ID,
		History:             dto,
		SystemPrompt:        session.SystemPrompt,
		WorkspaceID:         session.WorkspaceID,
		PrimaryBranchID:     session.PrimaryBranchID,
		PendingConfirmation: branch.PendingConfirmation,
	}, nil
}
