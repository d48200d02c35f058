package mcptools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"gamesmith/studio/internal/studio"
)

// setupSession connects a client to the tool server over in-memory
// transports, with the engine running against the offline collaborator.
func setupSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	t.Setenv("GAMESMITH_FAKE_GEMINI", "1")

	engine, err := studio.New(studio.WithDataDir(t.TempDir()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(engine.Close)

	srv := NewServer(engine)
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func TestStudioToolFlow(t *testing.T) {
	session := setupSession(t)

	text, isErr := callTool(t, session, "studio_list_workspaces", nil)
	if isErr || !strings.Contains(text, "workspaces") {
		t.Fatalf("list: isErr=%v text=%s", isErr, text)
	}

	text, isErr = callTool(t, session, "studio_create_workspace", map[string]any{
		"name": "Tool Game",
		"type": "2D",
	})
	if isErr {
		t.Fatalf("create failed: %s", text)
	}
	var created struct {
		Workspace struct {
			ID string `json:"id"`
		} `json:"workspace"`
	}
	if err := json.Unmarshal([]byte(text), &created); err != nil || created.Workspace.ID == "" {
		t.Fatalf("create result not decodable: %s", text)
	}
	wsID := created.Workspace.ID

	text, isErr = callTool(t, session, "studio_send_prompt", map[string]any{
		"workspace_id": wsID,
		"prompt":       "make pong",
	})
	if isErr || !strings.Contains(text, "applied") {
		t.Fatalf("send prompt: isErr=%v text=%s", isErr, text)
	}

	text, isErr = callTool(t, session, "studio_get_files", map[string]any{"workspace_id": wsID})
	if isErr || !strings.Contains(text, "game.js") || !strings.Contains(text, "make pong") {
		t.Fatalf("get files: isErr=%v", isErr)
	}

	if _, isErr = callTool(t, session, "studio_preview_console", nil); isErr {
		t.Fatalf("preview console errored")
	}

	// Nothing failed, so there is nothing to retry.
	text, isErr = callTool(t, session, "studio_retry", map[string]any{"workspace_id": wsID})
	if !isErr || !strings.Contains(text, "VALIDATION_FAILED") {
		t.Fatalf("retry without pending error: isErr=%v text=%s", isErr, text)
	}
}

func TestStudioToolValidation(t *testing.T) {
	session := setupSession(t)

	text, isErr := callTool(t, session, "studio_create_workspace", map[string]any{"name": "No Type"})
	if !isErr {
		t.Fatalf("create without type should fail, got %s", text)
	}
	text, isErr = callTool(t, session, "studio_send_prompt", map[string]any{"workspace_id": "ghost", "prompt": "hi"})
	if !isErr || !strings.Contains(text, "WORKSPACE_NOT_FOUND") {
		t.Fatalf("prompt against ghost workspace: isErr=%v text=%s", isErr, text)
	}
}
