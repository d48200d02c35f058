package studio

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gamesmith/studio/internal/bundle"
	"gamesmith/studio/internal/errinfo"
	"gamesmith/studio/internal/extract"
	"gamesmith/studio/internal/llm"
	"gamesmith/studio/internal/metrics"
	"gamesmith/studio/internal/project"
)

// Generation states pushed over the GenerationState notification.
const (
	StateAwaitingResponse = "awaiting_response"
	StateApplied          = "applied"
	StateFixableError     = "fixable_error"
	StateFatalError       = "fatal_error"
	StateIdle             = "idle"
)

const (
	fixableErrorText = "I couldn't turn that reply into a project update. Retry to send the same prompt again."
	fatalErrorText   = "The retry failed as well. Adjust your prompt and send it again."
)

type turnResult struct {
	Status    string              `json:"status"`
	Message   project.ChatMessage `json:"message"`
	Strategy  string              `json:"strategy,omitempty"`
	Warnings  []bundle.Warning    `json:"warnings,omitempty"`
	ErrorInfo *errinfo.ErrorInfo  `json:"error_info,omitempty"`
}

func (e *Engine) WorkspaceSendPrompt(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
		Prompt      string `json:"prompt"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseGeneration, "invalid params")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseGeneration, "empty prompt")
	}
	return e.runTurn(ctx, req.WorkspaceID, prompt)
}

// WorkspaceRetry re-issues the exact prompt recorded on the trailing fixable
// error entry. A second failure of the same prompt is terminal.
func (e *Engine) WorkspaceRetry(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseGeneration, "invalid params")
	}

	e.mu.Lock()
	ws := e.state.Workspace(req.WorkspaceID)
	if ws == nil {
		e.mu.Unlock()
		return nil, errinfo.WorkspaceNotFound(req.WorkspaceID)
	}
	n := len(ws.ChatHistory)
	if n == 0 {
		e.mu.Unlock()
		return nil, errinfo.ValidationFailed(errinfo.PhaseGeneration, "no fixable error to retry")
	}
	last := ws.ChatHistory[n-1]
	if last.Role != project.RoleModel || !last.IsFixable || last.OriginalPrompt == "" {
		e.mu.Unlock()
		return nil, errinfo.ValidationFailed(errinfo.PhaseGeneration, "no fixable error to retry")
	}
	prompt := last.OriginalPrompt
	e.mu.Unlock()

	e.logger.Info("studio.retry", "workspace_id", req.WorkspaceID)
	return e.runTurn(ctx, req.WorkspaceID, prompt)
}

// runTurn drives one generation turn end to end. The collaborator call holds
// only the per-workspace in-flight guard, never the state lock, so listing
// and console reads stay responsive while a turn is outstanding.
func (e *Engine) runTurn(ctx context.Context, workspaceID, prompt string) (any, *errinfo.ErrorInfo) {
	e.mu.Lock()
	ws := e.state.Workspace(workspaceID)
	if ws == nil {
		e.mu.Unlock()
		return nil, errinfo.WorkspaceNotFound(workspaceID)
	}
	wsType := ws.Type
	turns := replayTurns(ws, pendingRetry(ws, prompt))
	e.mu.Unlock()

	key, errInfo := e.requireKey(errinfo.PhaseGeneration)
	if errInfo != nil {
		return nil, errInfo
	}

	if !e.beginGeneration(workspaceID) {
		return nil, errinfo.GenerationBusy(workspaceID)
	}
	defer e.endGeneration(workspaceID)

	modelID := e.defaultModel()
	e.notifyState(workspaceID, StateAwaitingResponse)
	e.logger.Info("studio.generate",
		"workspace_id", workspaceID,
		"model_id", modelID,
		"history_turns", len(turns),
	)

	started := time.Now()
	resp, err := e.client.GenerateEdit(ctx, key, llm.GenerateRequest{
		Model:             modelID,
		SystemInstruction: systemInstruction(wsType),
		History:           turns,
		Prompt:            prompt,
	})
	if err != nil {
		e.notifyState(workspaceID, StateIdle)
		metrics.RecordGeneration("transport_error", time.Since(started))
		e.logger.Warn("studio.generate_failed", "workspace_id", workspaceID, "error", err.Error())
		return nil, mapLLMError(errinfo.PhaseGeneration, err)
	}

	edit, parseErr := parseEditResponse(resp.RawText)
	if parseErr != nil {
		return e.recordFailedTurn(workspaceID, prompt, parseErr, started)
	}
	return e.applyTurn(workspaceID, prompt, edit, resp.RawText, started)
}

func parseEditResponse(rawText string) (*extract.Edit, error) {
	raw, ok := extract.Extract(rawText)
	if !ok {
		return nil, extract.ErrNoJSON
	}
	return extract.ParseEdit(raw)
}

// applyTurn commits a structurally valid edit: files replaced wholesale,
// prompt and reply appended, state persisted, preview reinstalled.
func (e *Engine) applyTurn(workspaceID, prompt string, edit *extract.Edit, rawText string, started time.Time) (any, *errinfo.ErrorInfo) {
	e.mu.Lock()
	ws := e.state.Workspace(workspaceID)
	if ws == nil {
		e.mu.Unlock()
		return nil, errinfo.WorkspaceNotFound(workspaceID)
	}
	if err := ws.ReplaceFiles(edit.Files); err != nil {
		e.mu.Unlock()
		return e.recordFailedTurn(workspaceID, prompt, err, started)
	}
	if !pendingRetry(ws, prompt) {
		ws.AppendMessage(project.NewUserMessage(prompt))
	}
	reply := project.NewModelMessage(edit.Explanation, rawText)
	ws.AppendMessage(reply)
	files := ws.FileMap()
	if err := e.store.Save(e.state); err != nil {
		e.logger.Error("studio.persist_failed", "error", err.Error())
	}
	e.mu.Unlock()

	e.setPreviewWorkspace(workspaceID)
	artifact, sandboxErr := e.preview.Install(files)
	if sandboxErr != nil {
		e.logger.Warn("studio.sandbox_start_failed",
			"workspace_id", workspaceID,
			"error", sandboxErr.Error(),
		)
	}

	e.notifyState(workspaceID, StateApplied)
	e.notifyPreview(workspaceID, artifact)
	metrics.RecordGeneration("applied", time.Since(started))
	e.logger.Info("studio.turn_applied",
		"workspace_id", workspaceID,
		"files", len(edit.Files),
		"strategy", artifact.Strategy,
		"warnings", len(artifact.Warnings),
	)
	return turnResult{
		Status:   StateApplied,
		Message:  reply,
		Strategy: artifact.Strategy,
		Warnings: artifact.Warnings,
	}, nil
}

// recordFailedTurn records the defined-failure outcome of a turn whose reply
// could not be applied. The first failure for a prompt is fixable; a failure
// while that prompt's fixable entry is still trailing is terminal.
func (e *Engine) recordFailedTurn(workspaceID, prompt string, cause error, started time.Time) (any, *errinfo.ErrorInfo) {
	e.mu.Lock()
	ws := e.state.Workspace(workspaceID)
	if ws == nil {
		e.mu.Unlock()
		return nil, errinfo.WorkspaceNotFound(workspaceID)
	}
	second := pendingRetry(ws, prompt)
	var entry project.ChatMessage
	if second {
		entry = project.NewErrorMessage(fatalErrorText, false, prompt)
	} else {
		ws.AppendMessage(project.NewUserMessage(prompt))
		entry = project.NewErrorMessage(fixableErrorText, true, prompt)
	}
	ws.AppendMessage(entry)
	if err := e.store.Save(e.state); err != nil {
		e.logger.Error("studio.persist_failed", "error", err.Error())
	}
	e.mu.Unlock()

	status := StateFixableError
	outcome := "fixable"
	info := errinfo.MalformedResponse(failureSubphase(cause), cause.Error())
	if second {
		status = StateFatalError
		outcome = "fatal"
		info = errinfo.MalformedResponseFatal(failureSubphase(cause), cause.Error())
	}
	e.notifyState(workspaceID, status)
	metrics.RecordGeneration(outcome, time.Since(started))
	e.logger.Warn("studio.turn_rejected",
		"workspace_id", workspaceID,
		"terminal", second,
		"error", cause.Error(),
	)
	return turnResult{Status: status, Message: entry, ErrorInfo: info}, nil
}

// failureSubphase maps a turn-rejection cause to the pipeline stage it
// surfaced in.
func failureSubphase(cause error) string {
	switch {
	case errors.Is(cause, extract.ErrNoJSON):
		return errinfo.SubphaseExtract
	case errors.Is(cause, project.ErrInvalidPath),
		errors.Is(cause, project.ErrDuplicatePath),
		errors.Is(cause, project.ErrNoFiles):
		return errinfo.SubphaseApply
	default:
		return errinfo.SubphaseSchema
	}
}

// pendingRetry reports whether the trailing chat entry is the fixable error
// recorded for exactly this prompt text. While it trails, the prompt's user
// message is already in history and the next failure is terminal.
func pendingRetry(ws *project.Workspace, prompt string) bool {
	n := len(ws.ChatHistory)
	if n == 0 {
		return false
	}
	last := ws.ChatHistory[n-1]
	return last.Role == project.RoleModel && last.IsFixable && last.OriginalPrompt == prompt
}

// replayTurns rebuilds the conversation the collaborator sees: every prior
// user prompt verbatim and the raw payload of every applied model turn.
// Error entries carry no payload and are skipped. When resuming a pending
// retry the trailing user message is the prompt being re-sent, so it is
// excluded here and travels as the new prompt instead.
func replayTurns(ws *project.Workspace, resumingRetry bool) []llm.Turn {
	msgs := ws.ChatHistory
	if resumingRetry {
		i := len(msgs) - 1
		for i >= 0 && msgs[i].Role == project.RoleModel && msgs[i].FullResponse == "" {
			i--
		}
		if i >= 0 && msgs[i].Role == project.RoleUser {
			msgs = msgs[:i]
		}
	}
	var turns []llm.Turn
	for _, m := range msgs {
		switch {
		case m.Role == project.RoleUser:
			turns = append(turns, llm.Turn{Role: llm.RoleUser, Text: m.Text})
		case m.FullResponse != "":
			turns = append(turns, llm.Turn{Role: llm.RoleModel, Text: m.FullResponse})
		}
	}
	return turns
}

func (e *Engine) notifyPreview(workspaceID string, artifact *bundle.Artifact) {
	if e.notify == nil {
		return
	}
	e.notify("PreviewUpdated", map[string]any{
		"workspace_id":  workspaceID,
		"strategy":      artifact.Strategy,
		"warnings":      artifact.Warnings,
		"entry_missing": artifact.EntryMissing,
	})
}
