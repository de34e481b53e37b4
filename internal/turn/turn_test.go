package turn

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/blobstore"
	"github.com/agentserver/agentserver/internal/provider"
	"github.com/agentserver/agentserver/internal/sessiondb"
	"github.com/agentserver/agentserver/internal/tool"
	"github.com/agentserver/agentserver/pkg/types"
)

// fakeProvider replays a fixed script of Parts, one slice per call to
// Generate, so a test can script a multi-step tool-call/reply turn.
type fakeProvider struct {
	script [][]provider.Part
	calls  int
}

func (p *fakeProvider) ID() string            { return "fake" }
func (p *fakeProvider) Name() string          { return "Fake" }
func (p *fakeProvider) Models() []provider.Model {
	return []provider.Model{{ID: "model-1", ProviderID: "fake", Name: "Fake Model"}}
}

func (p *fakeProvider) Generate(ctx context.Context, req *provider.GenerateRequest) (<-chan provider.Part, error) {
	if p.calls >= len(p.script) {
		panic("fakeProvider: script exhausted")
	}
	parts := p.script[p.calls]
	p.calls++
	ch := make(chan provider.Part, len(parts))
	for _, part := range parts {
		ch <- part
	}
	close(ch)
	return ch, nil
}

// recordingBroadcaster captures every event per branch in arrival order.
type recordingBroadcaster struct {
	events map[string][]Event
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{events: make(map[string][]Event)}
}

func (r *recordingBroadcaster) Broadcast(branchID string, event Event) {
	r.events[branchID] = append(r.events[branchID], event)
}

func (r *recordingBroadcaster) types(branchID string) []EventType {
	var out []EventType
	for _, e := range r.events[branchID] {
		out = append(out, e.Type)
	}
	return out
}

func newTestEngine(t *testing.T, script [][]provider.Part) (*Engine, *sessiondb.DB, *recordingBroadcaster) {
	t.Helper()
	dir := t.TempDir()
	db, err := sessiondb.Open(filepath.Join(dir, "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := blobstore.New(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	providers := provider.NewRegistry(&types.Config{DefaultModel: "fake/model-1"})
	providers.Register(&fakeProvider{script: script})

	tools := tool.NewRegistry()
	tools.RegisterBuiltin(&tool.Definition{
		Name:                 "write_file",
		RequiresConfirmation: true,
		Handler: func(tc *tool.Context, args json.RawMessage) (*tool.Result, error) {
			return &tool.Result{Value: map[string]any{"written": true}}, nil
		},
	})

	broadcaster := newRecordingBroadcaster()
	engine := New(db, blobs, providers, tools, broadcaster)
	// Disable async title inference so it never races against test
	// assertions or consumes the fakeProvider's scripted calls.
	engine.SetTitleModel("nonexistent/model")
	return engine, db, broadcaster
}

func TestSendHappyPath(t *testing.T) {
	ctx := context.Background()
	engine, db, bc := newTestEngine(t, [][]provider.Part{
		{{Type: provider.PartText, Text: "hello"}},
	})

	sessionID, branchID, err := engine.Start(ctx, "", "ws-1", SendInput{Text: "hi"})
	require.NoError(t, err)

	history, err := db.GetHistory(ctx, branchID, nil, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, types.MessageModel, history[0].Type)
	assert.Equal(t, "hi", history[1].Text)
	assert.Equal(t, types.MessageUser, history[1].Type)

	assert.Equal(t, []EventType{EventAck, EventInitialStateActive, EventModelText, EventComplete}, bc.types(branchID))

	session, err := db.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "ws-1", session.WorkspaceID)
}

func TestConfirmationGateAndDenial(t *testing.T) {
	ctx := context.Background()
	engine, db, bc := newTestEngine(t, [][]provider.Part{
		{{Type: provider.PartFunctionCall, FunctionCall: &provider.FunctionCall{ID: "call-1", Name: "write_file", Args: map[string]any{"file_path": "x"}}}},
		{{Type: provider.PartText, Text: "ok, I won't write it"}},
	})

	_, branchID, err := engine.Start(ctx, "", "", SendInput{Text: "please write a file"})
	require.NoError(t, err)

	branch, err := db.GetBranch(ctx, branchID)
	require.NoError(t, err)
	require.NotNil(t, branch.PendingConfirmation)
	assert.Contains(t, *branch.PendingConfirmation, "write_file")
	assert.Equal(t, []EventType{EventAck, EventInitialStateActive, EventFunctionCall, EventPendingConfirmation}, bc.types(branchID))

	// A second Send while confirmation is pending must be rejected.
	err = engine.Send(ctx, SendInput{SessionID: branch.SessionID, BranchID: branchID, Text: "go ahead anyway"})
	require.Error(t, err)

	require.NoError(t, engine.Confirm(ctx, branchID, false, nil))

	branch, err = db.GetBranch(ctx, branchID)
	require.NoError(t, err)
	assert.Nil(t, branch.PendingConfirmation)

	history, err := db.GetHistory(ctx, branchID, nil, 10)
	require.NoError(t, err)
	require.Len(t, history, 4) // user, function_call, function_response, model reply
	assert.Equal(t, types.MessageFunctionResponse, history[1].Type)
	assert.Contains(t, history[1].Text, "denied")
}

func TestRetryForksSiblingBranchWithoutTouchingOriginal(t *testing.T) {
	ctx := context.Background()
	engine, db, bc := newTestEngine(t, [][]provider.Part{
		{{Type: provider.PartText, Text: "first reply"}},
		{{Type: provider.PartText, Text: "second reply"}},
	})

	_, originalBranch, err := engine.Start(ctx, "", "", SendInput{Text: "hi"})
	require.NoError(t, err)

	originalHistory, err := db.GetHistory(ctx, originalBranch, nil, 10)
	require.NoError(t, err)
	require.Len(t, originalHistory, 2)
	userMessageID := originalHistory[1].ID

	newBranch, err := engine.Retry(ctx, userMessageID, "")
	require.NoError(t, err)
	assert.NotEqual(t, originalBranch, newBranch)

	// The original branch's spine is untouched by the retry.
	originalAfter, err := db.GetHistory(ctx, originalBranch, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, originalHistory[0].ID, originalAfter[0].ID)
	assert.Equal(t, "first reply", originalAfter[0].Text)

	newHistory, err := db.GetHistory(ctx, newBranch, nil, 10)
	require.NoError(t, err)
	require.Len(t, newHistory, 2)
	assert.Equal(t, "second reply", newHistory[0].Text)
	assert.Equal(t, userMessageID, newHistory[1].ID)

	assert.Equal(t, []EventType{EventAck, EventInitialStateActive, EventModelText, EventComplete}, bc.types(newBranch))
}
