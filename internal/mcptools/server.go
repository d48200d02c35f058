package mcptools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"gamesmith/studio/internal/studio"
)

// NewServer builds the MCP server with every studio tool registered.
func NewServer(engine *studio.Engine) *mcp.Server {
	t := &StudioTools{Engine: engine}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "gamesmith-mcp",
		Version: studio.EngineVersion,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "studio_list_workspaces",
		Description: "List all game workspaces with file and message counts",
	}, t.ListWorkspaces)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "studio_create_workspace",
		Description: "Create a new game workspace from the 2D or 3D starter template",
	}, t.CreateWorkspace)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "studio_get_files",
		Description: "Get a workspace with its full file contents and chat history",
	}, t.GetFiles)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "studio_send_prompt",
		Description: "Send a prompt to the game collaborator and apply the resulting edit",
	}, t.SendPrompt)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "studio_retry",
		Description: "Retry the last prompt after a fixable generation error",
	}, t.Retry)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "studio_preview_console",
		Description: "Read the captured console output of the current preview run",
	}, t.PreviewConsole)

	return srv
}
