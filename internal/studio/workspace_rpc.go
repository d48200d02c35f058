package studio

import (
	"context"
	"encoding/json"

	"gamesmith/studio/internal/diff"
	"gamesmith/studio/internal/errinfo"
	"gamesmith/studio/internal/extract"
	"gamesmith/studio/internal/metrics"
	"gamesmith/studio/internal/project"
)

type workspaceSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	LastModified string `json:"last_modified"`
	FileCount    int    `json:"file_count"`
	MessageCount int    `json:"message_count"`
	Active       bool   `json:"active"`
}

func (e *Engine) WorkspaceCreate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	_ = json.Unmarshal(params, &req)

	// Creation requires a working collaborator: a workspace you can never
	// prompt against is a dead end for the host UI.
	if _, errInfo := e.requireKey(errinfo.PhaseWorkspace); errInfo != nil {
		return nil, errInfo
	}

	ws, err := project.New(req.Name, req.Type)
	if err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseWorkspace, err.Error())
	}

	e.mu.Lock()
	e.state.Workspaces = append(e.state.Workspaces, ws)
	e.state.ActiveWorkspaceID = ws.ID
	count := len(e.state.Workspaces)
	errInfo := e.persistLocked()
	e.mu.Unlock()
	if errInfo != nil {
		return nil, errInfo
	}

	metrics.SetWorkspaceCount(count)
	e.logger.Info("workspace.create", "workspace_id", ws.ID, "name", ws.Name, "type", ws.Type)
	return map[string]any{"workspace": ws}, nil
}

func (e *Engine) WorkspaceList(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()

	summaries := make([]workspaceSummary, 0, len(e.state.Workspaces))
	for _, ws := range e.state.Workspaces {
		summaries = append(summaries, workspaceSummary{
			ID:           ws.ID,
			Name:         ws.Name,
			Type:         ws.Type,
			LastModified: ws.LastModified,
			FileCount:    len(ws.Files),
			MessageCount: len(ws.ChatHistory),
			Active:       ws.ID == e.state.ActiveWorkspaceID,
		})
	}
	e.logger.Debug("workspace.list", "count", len(summaries))
	return map[string]any{
		"workspaces":          summaries,
		"active_workspace_id": e.state.ActiveWorkspaceID,
	}, nil
}

func (e *Engine) WorkspaceGet(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseWorkspace, "invalid params")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ws := e.state.Workspace(req.WorkspaceID)
	if ws == nil {
		return nil, errinfo.WorkspaceNotFound(req.WorkspaceID)
	}
	return map[string]any{"workspace": ws}, nil
}

func (e *Engine) WorkspaceSetActive(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseWorkspace, "invalid params")
	}

	e.mu.Lock()
	ws := e.state.Workspace(req.WorkspaceID)
	if ws == nil {
		e.mu.Unlock()
		return nil, errinfo.WorkspaceNotFound(req.WorkspaceID)
	}
	e.state.ActiveWorkspaceID = ws.ID
	errInfo := e.persistLocked()
	e.mu.Unlock()
	if errInfo != nil {
		return nil, errInfo
	}

	e.logger.Info("workspace.set_active", "workspace_id", ws.ID)
	return map[string]any{}, nil
}

func (e *Engine) WorkspaceDelete(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseWorkspace, "invalid params")
	}

	e.mu.Lock()
	if !e.state.Remove(req.WorkspaceID) {
		e.mu.Unlock()
		return nil, errinfo.WorkspaceNotFound(req.WorkspaceID)
	}
	count := len(e.state.Workspaces)
	errInfo := e.persistLocked()
	e.mu.Unlock()
	if errInfo != nil {
		return nil, errInfo
	}

	if e.previewWorkspace() == req.WorkspaceID {
		e.setPreviewWorkspace("")
		e.preview.Close()
	}
	metrics.SetWorkspaceCount(count)
	e.logger.Info("workspace.delete", "workspace_id", req.WorkspaceID)
	return map[string]any{}, nil
}

func (e *Engine) WorkspaceRateMessage(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
		MessageID   string `json:"message_id"`
		Rated       *bool  `json:"rated"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseWorkspace, "invalid params")
	}

	e.mu.Lock()
	ws := e.state.Workspace(req.WorkspaceID)
	if ws == nil {
		e.mu.Unlock()
		return nil, errinfo.WorkspaceNotFound(req.WorkspaceID)
	}
	msg := ws.Message(req.MessageID)
	if msg == nil || msg.Role != project.RoleModel {
		e.mu.Unlock()
		return nil, errinfo.ValidationFailed(errinfo.PhaseWorkspace, "message is not a model reply")
	}
	msg.Rated = req.Rated
	errInfo := e.persistLocked()
	e.mu.Unlock()
	if errInfo != nil {
		return nil, errInfo
	}

	e.logger.Debug("workspace.rate_message", "workspace_id", req.WorkspaceID, "message_id", req.MessageID)
	return map[string]any{}, nil
}

// WorkspaceGetTurnDiff reconstructs the per-file line diff for one applied
// turn. File state is not versioned separately: each applied model reply's
// raw payload carries the complete file set, so the turn before it is either
// the previous applied reply or the starter template.
func (e *Engine) WorkspaceGetTurnDiff(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
		MessageID   string `json:"message_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseWorkspace, "invalid params")
	}

	e.mu.Lock()
	ws := e.state.Workspace(req.WorkspaceID)
	if ws == nil {
		e.mu.Unlock()
		return nil, errinfo.WorkspaceNotFound(req.WorkspaceID)
	}

	target := -1
	for i, msg := range ws.ChatHistory {
		if msg.ID == req.MessageID {
			target = i
			break
		}
	}
	if target == -1 || ws.ChatHistory[target].Role != project.RoleModel || ws.ChatHistory[target].FullResponse == "" {
		e.mu.Unlock()
		return nil, errinfo.ValidationFailed(errinfo.PhaseWorkspace, "message is not an applied turn")
	}

	afterRaw := ws.ChatHistory[target].FullResponse
	beforeRaw := ""
	for i := target - 1; i >= 0; i-- {
		msg := ws.ChatHistory[i]
		if msg.Role == project.RoleModel && msg.FullResponse != "" {
			beforeRaw = msg.FullResponse
			break
		}
	}
	wsType := ws.Type
	e.mu.Unlock()

	after, err := filesFromRaw(afterRaw)
	if err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseWorkspace, "stored turn payload no longer parses: "+err.Error())
	}
	var before map[string]string
	if beforeRaw != "" {
		before, err = filesFromRaw(beforeRaw)
		if err != nil {
			return nil, errinfo.ValidationFailed(errinfo.PhaseWorkspace, "stored turn payload no longer parses: "+err.Error())
		}
	} else {
		before = templateFileMap(wsType)
	}

	changes := diff.ChangeSet(before, after)
	e.logger.Debug("workspace.turn_diff", "workspace_id", req.WorkspaceID, "message_id", req.MessageID, "changes", len(changes))
	return map[string]any{"changes": changes}, nil
}

func filesFromRaw(rawText string) (map[string]string, error) {
	raw, ok := extract.Extract(rawText)
	if !ok {
		return nil, extract.ErrNoJSON
	}
	edit, err := extract.ParseEdit(raw)
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(edit.Files))
	for _, f := range edit.Files {
		files[project.NormalizePath(f.Path)] = f.Content
	}
	return files, nil
}

func templateFileMap(workspaceType string) map[string]string {
	entries := project.Template(workspaceType)
	files := make(map[string]string, len(entries))
	for _, f := range entries {
		files[f.Path] = f.Content
	}
	return files
}
