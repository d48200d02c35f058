package studio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gamesmith/studio/internal/bundle"
	"gamesmith/studio/internal/diff"
	"gamesmith/studio/internal/errinfo"
	"gamesmith/studio/internal/llm"
	"gamesmith/studio/internal/project"
)

// stateRecorder captures notifications from both the RPC goroutine and the
// async console path.
type stateRecorder struct {
	mu      sync.Mutex
	methods []string
	states  []string
}

func (r *stateRecorder) notify(method string, params any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods = append(r.methods, method)
	if method == "GenerationState" {
		r.states = append(r.states, params.(map[string]any)["state"].(string))
	}
}

func (r *stateRecorder) stateSequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func (r *stateRecorder) sawMethod(method string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.methods {
		if m == method {
			return true
		}
	}
	return false
}

func validEdit(t *testing.T, explanation, script string) string {
	t.Helper()
	return editPayload(t, explanation, map[string]string{
		"index.html": "<!DOCTYPE html><html><body><script src=\"game.js\"></script></body></html>",
		"game.js":    script,
	})
}

func sendPrompt(t *testing.T, eng *Engine, workspaceID, prompt string) turnResult {
	t.Helper()
	res, errInfo := eng.WorkspaceSendPrompt(context.Background(), mustJSON(t, map[string]any{
		"workspace_id": workspaceID,
		"prompt":       prompt,
	}))
	if errInfo != nil {
		t.Fatalf("send prompt: %v", errInfo)
	}
	return res.(turnResult)
}

func TestSendPromptAppliesEdit(t *testing.T) {
	client := &scriptedClient{}
	client.reply(validEdit(t, "Built a paddle and a ball.", "console.log('pong ready');"))
	eng := newTestEngine(t, client)

	recorder := &stateRecorder{}
	eng.SetNotifier(recorder.notify)
	ws := createWorkspace(t, eng, "Pong", project.Type2D)

	result := sendPrompt(t, eng, ws.ID, "make pong")
	if result.Status != StateApplied {
		t.Fatalf("status = %q, want %q", result.Status, StateApplied)
	}
	if result.Message.Role != project.RoleModel || result.Message.Text != "Built a paddle and a ball." {
		t.Fatalf("unexpected reply message: %+v", result.Message)
	}
	if result.Strategy != bundle.StrategyInline {
		t.Fatalf("strategy = %q, want %q", result.Strategy, bundle.StrategyInline)
	}

	if len(ws.ChatHistory) != 2 {
		t.Fatalf("chat history = %d entries, want 2", len(ws.ChatHistory))
	}
	if ws.ChatHistory[0].Role != project.RoleUser || ws.ChatHistory[0].Text != "make pong" {
		t.Fatalf("first entry not the prompt: %+v", ws.ChatHistory[0])
	}
	if ws.ChatHistory[1].FullResponse == "" {
		t.Fatalf("model entry lost its raw payload")
	}
	if content, ok := ws.File("game.js"); !ok || !strings.Contains(content, "pong ready") {
		t.Fatalf("files not replaced: %q", content)
	}

	req := client.lastRequest(t)
	if len(req.History) != 0 {
		t.Fatalf("first turn should replay empty history, got %d turns", len(req.History))
	}
	if req.Prompt != "make pong" {
		t.Fatalf("prompt = %q", req.Prompt)
	}
	if !strings.Contains(req.SystemInstruction, "canvas") {
		t.Fatalf("2D instruction missing canvas rules")
	}
	if req.Model != ModelGeminiFlashID {
		t.Fatalf("model = %q", req.Model)
	}

	states := recorder.stateSequence()
	if len(states) != 2 || states[0] != StateAwaitingResponse || states[1] != StateApplied {
		t.Fatalf("state sequence = %v", states)
	}
	if !recorder.sawMethod("PreviewUpdated") {
		t.Fatalf("missing PreviewUpdated notification")
	}
}

func TestSendPromptUses3DInstruction(t *testing.T) {
	client := &scriptedClient{}
	client.reply(validEdit(t, "Scene up.", "console.log('cube');"))
	eng := newTestEngine(t, client)
	ws := createWorkspace(t, eng, "Cube", project.Type3D)

	sendPrompt(t, eng, ws.ID, "spinning cube")
	req := client.lastRequest(t)
	if !strings.Contains(req.SystemInstruction, "three.js") || !strings.Contains(req.SystemInstruction, "importmap") {
		t.Fatalf("3D instruction missing module rules")
	}
}

func TestSendPromptSecondTurnReplaysRawHistory(t *testing.T) {
	client := &scriptedClient{}
	first := validEdit(t, "Board drawn.", "console.log('turn one');")
	client.reply(first)
	client.reply(validEdit(t, "Added scoring.", "console.log('turn two');"))
	eng := newTestEngine(t, client)
	ws := createWorkspace(t, eng, "Snake", project.Type2D)

	sendPrompt(t, eng, ws.ID, "draw the board")
	sendPrompt(t, eng, ws.ID, "add scoring")

	req := client.lastRequest(t)
	if len(req.History) != 2 {
		t.Fatalf("history = %d turns, want 2", len(req.History))
	}
	if req.History[0].Role != llm.RoleUser || req.History[0].Text != "draw the board" {
		t.Fatalf("history[0] = %+v", req.History[0])
	}
	if req.History[1].Role != llm.RoleModel || req.History[1].Text != first {
		t.Fatalf("history[1] should carry the raw payload verbatim")
	}
}

func TestSendPromptValidation(t *testing.T) {
	eng := newTestEngine(t, &scriptedClient{})
	ws := createWorkspace(t, eng, "Empty", project.Type2D)

	_, errInfo := eng.WorkspaceSendPrompt(context.Background(), mustJSON(t, map[string]any{"workspace_id": ws.ID, "prompt": "   "}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeValidationFailed {
		t.Fatalf("expected VALIDATION_FAILED for blank prompt, got %v", errInfo)
	}

	_, errInfo = eng.WorkspaceSendPrompt(context.Background(), mustJSON(t, map[string]any{"workspace_id": "nope", "prompt": "hi"}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeWorkspaceNotFound {
		t.Fatalf("expected WORKSPACE_NOT_FOUND, got %v", errInfo)
	}
}

func TestMalformedReplyThenRetrySucceeds(t *testing.T) {
	client := &scriptedClient{}
	client.reply("Sure! I would start by sketching the physics. Let me describe it instead of writing code.")
	client.reply(validEdit(t, "Here it is for real.", "console.log('fixed');"))
	eng := newTestEngine(t, client)
	ws := createWorkspace(t, eng, "Flappy", project.Type2D)
	templateScript, _ := ws.File("game.js")

	result := sendPrompt(t, eng, ws.ID, "make flappy bird")
	if result.Status != StateFixableError {
		t.Fatalf("status = %q, want %q", result.Status, StateFixableError)
	}
	if result.ErrorInfo == nil || result.ErrorInfo.ErrorCode != errinfo.CodeMalformedResponse {
		t.Fatalf("missing malformed-response info: %+v", result.ErrorInfo)
	}
	if !result.Message.IsFixable || result.Message.OriginalPrompt != "make flappy bird" {
		t.Fatalf("error entry not retryable: %+v", result.Message)
	}
	if len(ws.ChatHistory) != 2 {
		t.Fatalf("history = %d entries, want prompt + error", len(ws.ChatHistory))
	}
	if content, _ := ws.File("game.js"); content != templateScript {
		t.Fatalf("failed turn must not touch files")
	}

	retryRes, errInfo := eng.WorkspaceRetry(context.Background(), mustJSON(t, map[string]any{"workspace_id": ws.ID}))
	if errInfo != nil {
		t.Fatalf("retry: %v", errInfo)
	}
	if retryRes.(turnResult).Status != StateApplied {
		t.Fatalf("retry status = %q", retryRes.(turnResult).Status)
	}

	req := client.lastRequest(t)
	if req.Prompt != "make flappy bird" {
		t.Fatalf("retry must re-send the original prompt, got %q", req.Prompt)
	}
	if len(req.History) != 0 {
		t.Fatalf("retry replay must exclude the pending prompt and error entry, got %d turns", len(req.History))
	}

	// prompt, fixable error, applied reply
	if len(ws.ChatHistory) != 3 {
		t.Fatalf("history after retry = %d entries, want 3", len(ws.ChatHistory))
	}
	if ws.ChatHistory[2].FullResponse == "" {
		t.Fatalf("applied retry lost its raw payload")
	}
}

func TestSecondFailureIsFatal(t *testing.T) {
	client := &scriptedClient{}
	client.reply("no json here")
	client.reply("still no json")
	eng := newTestEngine(t, client)
	ws := createWorkspace(t, eng, "Doomed", project.Type2D)

	sendPrompt(t, eng, ws.ID, "make tetris")
	retryRes, errInfo := eng.WorkspaceRetry(context.Background(), mustJSON(t, map[string]any{"workspace_id": ws.ID}))
	if errInfo != nil {
		t.Fatalf("retry: %v", errInfo)
	}
	result := retryRes.(turnResult)
	if result.Status != StateFatalError {
		t.Fatalf("status = %q, want %q", result.Status, StateFatalError)
	}
	if result.Message.IsFixable {
		t.Fatalf("fatal entry must not be retryable")
	}

	// prompt, fixable error, fatal error; no duplicate prompt entry
	if len(ws.ChatHistory) != 3 {
		t.Fatalf("history = %d entries, want 3", len(ws.ChatHistory))
	}
	if ws.ChatHistory[0].Role != project.RoleUser || ws.ChatHistory[1].Role != project.RoleModel {
		t.Fatalf("unexpected history shape")
	}

	_, errInfo = eng.WorkspaceRetry(context.Background(), mustJSON(t, map[string]any{"workspace_id": ws.ID}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeValidationFailed {
		t.Fatalf("retry after fatal should fail validation, got %v", errInfo)
	}
}

func TestSamePromptResubmissionActsAsRetry(t *testing.T) {
	client := &scriptedClient{}
	client.reply("prose, not an edit")
	client.reply(validEdit(t, "Worked this time.", "console.log('ok');"))
	eng := newTestEngine(t, client)
	ws := createWorkspace(t, eng, "Racer", project.Type2D)

	sendPrompt(t, eng, ws.ID, "make a racer")
	result := sendPrompt(t, eng, ws.ID, "make a racer")
	if result.Status != StateApplied {
		t.Fatalf("status = %q", result.Status)
	}
	// prompt, fixable error, applied reply; resubmission adds no second prompt
	if len(ws.ChatHistory) != 3 {
		t.Fatalf("history = %d entries, want 3", len(ws.ChatHistory))
	}
}

func TestDifferentPromptAfterFixableStartsFresh(t *testing.T) {
	client := &scriptedClient{}
	client.reply("prose, not an edit")
	client.reply(validEdit(t, "New direction.", "console.log('maze');"))
	eng := newTestEngine(t, client)
	ws := createWorkspace(t, eng, "Maze", project.Type2D)

	sendPrompt(t, eng, ws.ID, "make a racer")
	result := sendPrompt(t, eng, ws.ID, "make a maze instead")
	if result.Status != StateApplied {
		t.Fatalf("status = %q", result.Status)
	}
	// racer prompt, fixable error, maze prompt, applied reply
	if len(ws.ChatHistory) != 4 {
		t.Fatalf("history = %d entries, want 4", len(ws.ChatHistory))
	}
	req := client.lastRequest(t)
	if len(req.History) != 1 || req.History[0].Text != "make a racer" {
		t.Fatalf("fresh prompt should replay the prior user turn only, got %+v", req.History)
	}
}

func TestTransportErrorLeavesChatUntouched(t *testing.T) {
	client := &scriptedClient{}
	client.fail(fmt.Errorf("gemini: %w", llm.ErrRateLimited))
	eng := newTestEngine(t, client)
	recorder := &stateRecorder{}
	eng.SetNotifier(recorder.notify)
	ws := createWorkspace(t, eng, "Stalled", project.Type2D)

	_, errInfo := eng.WorkspaceSendPrompt(context.Background(), mustJSON(t, map[string]any{"workspace_id": ws.ID, "prompt": "make pong"}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeRateLimited {
		t.Fatalf("expected PROVIDER_RATE_LIMITED, got %v", errInfo)
	}
	if len(ws.ChatHistory) != 0 {
		t.Fatalf("transport failure must not record chat entries, got %d", len(ws.ChatHistory))
	}
	states := recorder.stateSequence()
	if len(states) != 2 || states[1] != StateIdle {
		t.Fatalf("state sequence = %v, want awaiting then idle", states)
	}
}

// blockingClient parks inside GenerateEdit until released.
type blockingClient struct {
	entered chan struct{}
	release chan struct{}
	raw     string
}

func (c *blockingClient) ValidateKey(_ context.Context, _ string) error { return nil }

func (c *blockingClient) GenerateEdit(_ context.Context, _ string, _ llm.GenerateRequest) (*llm.GenerateResponse, error) {
	c.entered <- struct{}{}
	<-c.release
	return &llm.GenerateResponse{RawText: c.raw}, nil
}

func TestConcurrentPromptRejected(t *testing.T) {
	client := &blockingClient{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		raw:     validEdit(t, "Done.", "console.log('slow');"),
	}
	eng := newTestEngine(t, client)
	ws := createWorkspace(t, eng, "Busy", project.Type2D)

	done := make(chan turnResult, 1)
	go func() {
		done <- sendPrompt(t, eng, ws.ID, "slow turn")
	}()

	select {
	case <-client.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("collaborator never entered")
	}

	_, errInfo := eng.WorkspaceSendPrompt(context.Background(), mustJSON(t, map[string]any{"workspace_id": ws.ID, "prompt": "second"}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeGenerationBusy {
		t.Fatalf("expected GENERATION_IN_FLIGHT, got %v", errInfo)
	}

	close(client.release)
	select {
	case result := <-done:
		if result.Status != StateApplied {
			t.Fatalf("first turn status = %q", result.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("first turn never finished")
	}
}

func TestRateMessage(t *testing.T) {
	ctx := context.Background()
	client := &scriptedClient{}
	client.reply(validEdit(t, "Rated reply.", "console.log('rate');"))
	eng := newTestEngine(t, client)
	ws := createWorkspace(t, eng, "Rated", project.Type2D)

	sendPrompt(t, eng, ws.ID, "make pong")
	userID := ws.ChatHistory[0].ID
	modelID := ws.ChatHistory[1].ID

	if _, errInfo := eng.WorkspaceRateMessage(ctx, mustJSON(t, map[string]any{"workspace_id": ws.ID, "message_id": modelID, "rated": true})); errInfo != nil {
		t.Fatalf("rate: %v", errInfo)
	}
	if ws.ChatHistory[1].Rated == nil || !*ws.ChatHistory[1].Rated {
		t.Fatalf("rating not stored")
	}

	if _, errInfo := eng.WorkspaceRateMessage(ctx, mustJSON(t, map[string]any{"workspace_id": ws.ID, "message_id": modelID, "rated": nil})); errInfo != nil {
		t.Fatalf("clear rating: %v", errInfo)
	}
	if ws.ChatHistory[1].Rated != nil {
		t.Fatalf("rating not cleared")
	}

	_, errInfo := eng.WorkspaceRateMessage(ctx, mustJSON(t, map[string]any{"workspace_id": ws.ID, "message_id": userID, "rated": true}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeValidationFailed {
		t.Fatalf("rating a user message should fail, got %v", errInfo)
	}
}

func TestGetTurnDiff(t *testing.T) {
	ctx := context.Background()
	client := &scriptedClient{}
	client.reply(validEdit(t, "First.", "console.log('one');"))
	client.reply(validEdit(t, "Second.", "console.log('two');"))
	eng := newTestEngine(t, client)
	ws := createWorkspace(t, eng, "Diffed", project.Type2D)

	sendPrompt(t, eng, ws.ID, "first")
	sendPrompt(t, eng, ws.ID, "second")

	firstReply := ws.ChatHistory[1].ID
	secondReply := ws.ChatHistory[3].ID

	res, errInfo := eng.WorkspaceGetTurnDiff(ctx, mustJSON(t, map[string]any{"workspace_id": ws.ID, "message_id": firstReply}))
	if errInfo != nil {
		t.Fatalf("first diff: %v", errInfo)
	}
	statuses := changeStatuses(res)
	// Template ships style.css; the first applied turn drops it.
	if statuses["style.css"] != diff.StatusRemoved {
		t.Fatalf("style.css = %q, want removed (statuses %v)", statuses["style.css"], statuses)
	}
	if statuses["game.js"] != diff.StatusModified {
		t.Fatalf("game.js = %q, want modified vs template", statuses["game.js"])
	}

	res, errInfo = eng.WorkspaceGetTurnDiff(ctx, mustJSON(t, map[string]any{"workspace_id": ws.ID, "message_id": secondReply}))
	if errInfo != nil {
		t.Fatalf("second diff: %v", errInfo)
	}
	statuses = changeStatuses(res)
	if statuses["game.js"] != diff.StatusModified {
		t.Fatalf("game.js = %q, want modified between turns", statuses["game.js"])
	}
	if statuses["index.html"] != diff.StatusUnchanged {
		t.Fatalf("index.html = %q, want unchanged between turns", statuses["index.html"])
	}

	_, errInfo = eng.WorkspaceGetTurnDiff(ctx, mustJSON(t, map[string]any{"workspace_id": ws.ID, "message_id": ws.ChatHistory[0].ID}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeValidationFailed {
		t.Fatalf("diff of a user message should fail, got %v", errInfo)
	}
}

func changeStatuses(res any) map[string]string {
	statuses := map[string]string{}
	for _, change := range res.(map[string]any)["changes"].([]diff.FileChange) {
		statuses[change.Path] = change.Status
	}
	return statuses
}

func TestFakeCollaboratorMarkers(t *testing.T) {
	eng := newTestEngine(t, newFakeGemini())
	ws := createWorkspace(t, eng, "Markers", project.Type2D)

	_, errInfo := eng.WorkspaceSendPrompt(context.Background(), mustJSON(t, map[string]any{
		"workspace_id": ws.ID,
		"prompt":       "[[unavailable]] make pong",
	}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeProviderUnavailable {
		t.Fatalf("expected PROVIDER_UNAVAILABLE, got %v", errInfo)
	}

	result := sendPrompt(t, eng, ws.ID, "[[malformed]] make pong")
	if result.Status != StateFixableError {
		t.Fatalf("malformed marker status = %q", result.Status)
	}

	result = sendPrompt(t, eng, ws.ID, "make pong for real")
	if result.Status != StateApplied {
		t.Fatalf("plain prompt status = %q", result.Status)
	}
	if content, ok := ws.File("game.js"); !ok || !strings.Contains(content, "make pong for real") {
		t.Fatalf("fake edit should echo the prompt, got %q", content)
	}
}

func TestConsoleEventNotificationFlows(t *testing.T) {
	client := &scriptedClient{}
	client.reply(validEdit(t, "Logs on boot.", "console.log('boot message for test');"))
	eng := newTestEngine(t, client)

	type consoleNote struct {
		workspaceID string
		message     string
	}
	notes := make(chan consoleNote, 64)
	eng.SetNotifier(func(method string, params any) {
		if method != "ConsoleEvent" {
			return
		}
		p := params.(map[string]any)
		notes <- consoleNote{workspaceID: p["workspace_id"].(string), message: p["message"].(string)}
	})

	ws := createWorkspace(t, eng, "Noisy", project.Type2D)
	sendPrompt(t, eng, ws.ID, "make noise")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case note := <-notes:
			if strings.Contains(note.message, "boot message for test") {
				if note.workspaceID != ws.ID {
					t.Fatalf("console event tagged %q, want %q", note.workspaceID, ws.ID)
				}
				return
			}
		case <-deadline:
			t.Fatalf("console notification never arrived")
		}
	}
}
