// Package mcptools exposes the studio engine to MCP clients, so an agent can
// drive the same workspace and generation operations the host UI uses.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"gamesmith/studio/internal/errinfo"
	"gamesmith/studio/internal/studio"
)

// StudioTools holds the engine reference shared by all tool handlers.
type StudioTools struct {
	Engine *studio.Engine
}

// --- Input types ---

type CreateWorkspaceInput struct {
	Name string `json:"name,omitempty" jsonschema:"Display name for the new game project"`
	Type string `json:"type" jsonschema:"Project type: 2D (canvas) or 3D (three.js)"`
}

type GetFilesInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"ID of the workspace to read"`
}

type SendPromptInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"ID of the workspace to prompt against"`
	Prompt      string `json:"prompt" jsonschema:"Instruction for the game collaborator"`
}

type RetryInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"ID of the workspace with a pending fixable error"`
}

// --- Handlers ---

func (t *StudioTools) ListWorkspaces(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	return t.call(ctx, t.Engine.WorkspaceList, nil)
}

func (t *StudioTools) CreateWorkspace(ctx context.Context, _ *mcp.CallToolRequest, input CreateWorkspaceInput) (*mcp.CallToolResult, any, error) {
	if input.Type == "" {
		return toolError("Project type is required (2D or 3D)"), nil, nil
	}
	return t.call(ctx, t.Engine.WorkspaceCreate, input)
}

func (t *StudioTools) GetFiles(ctx context.Context, _ *mcp.CallToolRequest, input GetFilesInput) (*mcp.CallToolResult, any, error) {
	if input.WorkspaceID == "" {
		return toolError("workspace_id is required"), nil, nil
	}
	return t.call(ctx, t.Engine.WorkspaceGet, input)
}

func (t *StudioTools) SendPrompt(ctx context.Context, _ *mcp.CallToolRequest, input SendPromptInput) (*mcp.CallToolResult, any, error) {
	if input.WorkspaceID == "" || input.Prompt == "" {
		return toolError("workspace_id and prompt are required"), nil, nil
	}
	return t.call(ctx, t.Engine.WorkspaceSendPrompt, input)
}

func (t *StudioTools) Retry(ctx context.Context, _ *mcp.CallToolRequest, input RetryInput) (*mcp.CallToolResult, any, error) {
	if input.WorkspaceID == "" {
		return toolError("workspace_id is required"), nil, nil
	}
	return t.call(ctx, t.Engine.WorkspaceRetry, input)
}

func (t *StudioTools) PreviewConsole(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	return t.call(ctx, t.Engine.PreviewGetConsole, nil)
}

// --- Helpers ---

type engineHandler func(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo)

// call bridges a typed tool input into the engine's RawMessage handler shape
// and renders the outcome the way MCP clients expect: JSON text on success,
// IsError text on a structured failure.
func (t *StudioTools) call(ctx context.Context, handler engineHandler, input any) (*mcp.CallToolResult, any, error) {
	var params json.RawMessage
	if input != nil {
		data, err := json.Marshal(input)
		if err != nil {
			return toolError("Failed to encode tool input: %v", err), nil, nil
		}
		params = data
	}
	result, errInfo := handler(ctx, params)
	if errInfo != nil {
		detail := errInfo.Detail
		if detail == "" {
			detail = errInfo.Phase
		}
		return toolError("%s: %s", errInfo.ErrorCode, detail), nil, nil
	}
	return toolJSON(result)
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
