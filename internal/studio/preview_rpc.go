package studio

import (
	"context"
	"encoding/json"

	"gamesmith/studio/internal/bundle"
	"gamesmith/studio/internal/errinfo"
)

type previewResult struct {
	WorkspaceID  string             `json:"workspace_id"`
	Strategy     string             `json:"strategy"`
	EntryMissing bool               `json:"entry_missing"`
	Warnings     []bundle.Warning   `json:"warnings,omitempty"`
	AssetCount   int                `json:"asset_count"`
	ErrorInfo    *errinfo.ErrorInfo `json:"error_info,omitempty"`
}

// PreviewBuild rebuilds the preview from the workspace's current files. An
// absent index.html is reported inside the result, not as a call failure:
// the placeholder document still installs and the host UI stays usable.
func (e *Engine) PreviewBuild(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	return e.installPreview(params, false)
}

// PreviewRefresh rebuilds like PreviewBuild but starts the console over, so
// the ring only shows output from the run it belongs to.
func (e *Engine) PreviewRefresh(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	return e.installPreview(params, true)
}

func (e *Engine) installPreview(params json.RawMessage, clearConsole bool) (any, *errinfo.ErrorInfo) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
	}
	_ = json.Unmarshal(params, &req)

	e.mu.Lock()
	id := req.WorkspaceID
	if id == "" {
		id = e.state.ActiveWorkspaceID
	}
	if id == "" {
		e.mu.Unlock()
		return nil, errinfo.ValidationFailed(errinfo.PhasePreview, "no workspace selected")
	}
	ws := e.state.Workspace(id)
	if ws == nil {
		e.mu.Unlock()
		return nil, errinfo.WorkspaceNotFound(id)
	}
	files := ws.FileMap()
	e.mu.Unlock()

	if clearConsole {
		e.preview.ClearConsole()
		e.logger.Debug("preview.refresh", "workspace_id", id)
	}
	e.setPreviewWorkspace(id)
	artifact, sandboxErr := e.preview.Install(files)
	e.notifyPreview(id, artifact)

	result := previewResult{
		WorkspaceID:  id,
		Strategy:     artifact.Strategy,
		EntryMissing: artifact.EntryMissing,
		Warnings:     artifact.Warnings,
		AssetCount:   artifact.Assets.Len(),
	}
	if artifact.EntryMissing {
		result.ErrorInfo = errinfo.EntryPointMissing(id)
	} else if sandboxErr != nil {
		result.ErrorInfo = errinfo.SandboxFailed(sandboxErr.Error())
	}
	return result, nil
}

func (e *Engine) PreviewGetDocument(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{"document": e.preview.Document()}, nil
}

func (e *Engine) PreviewGetConsole(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{"entries": e.preview.Console()}, nil
}

func (e *Engine) PreviewClearConsole(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	e.preview.ClearConsole()
	return map[string]any{}, nil
}
