package llm

import "context"

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one replayed conversation entry. Model turns carry the raw reply
// payload of that turn, never the display explanation.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// GenerateRequest describes a single structured-edit generation call: the
// system instruction, the full prior conversation, and the new user prompt.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	History           []Turn
	Prompt            string
}

// GenerateResponse carries the collaborator's reply verbatim. Recovering the
// structured edit from it is the extractor's job, not the client's.
type GenerateResponse struct {
	RawText string
}

// Client is the generative collaborator boundary.
type Client interface {
	GenerateEdit(ctx context.Context, apiKey string, req GenerateRequest) (*GenerateResponse, error)
	ValidateKey(ctx context.Context, apiKey string) error
}
