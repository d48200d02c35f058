package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gamesmith/studio/internal/llm"
)

// Directive markers recognized by the fake collaborator. A prompt containing
// one produces the matching failure shape instead of a valid edit.
const (
	fakeUnavailableMarker = "[[unavailable]]"
	fakeMalformedMarker   = "[[malformed]]"
	fakeTruncatedMarker   = "[[truncated]]"
)

func newFakeGemini() llm.Client {
	return &fakeGemini{}
}

// fakeGemini is the offline collaborator behind GAMESMITH_FAKE_GEMINI. It
// echoes a deterministic complete project derived from the prompt, so demos
// and tests exercise the full extract-apply-preview pipeline without egress.
type fakeGemini struct{}

func (f *fakeGemini) ValidateKey(_ context.Context, _ string) error {
	return nil
}

func (f *fakeGemini) GenerateEdit(_ context.Context, _ string, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if strings.Contains(req.Prompt, fakeUnavailableMarker) {
		return nil, fmt.Errorf("fake collaborator: %w", llm.ErrUnavailable)
	}
	if strings.Contains(req.Prompt, fakeMalformedMarker) {
		return &llm.GenerateResponse{
			RawText: "Sounds fun! I would start with a canvas element and a game loop, but let me think about the physics first.",
		}, nil
	}
	if strings.Contains(req.Prompt, fakeTruncatedMarker) {
		return &llm.GenerateResponse{
			RawText: "```json\n{\"files\":[{\"path\":\"index.html\",\"content\":\"<!DOCTYPE html>\n",
		}, nil
	}

	turn := 1
	for _, t := range req.History {
		if t.Role == llm.RoleUser {
			turn++
		}
	}
	payload := struct {
		Files []struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		} `json:"files"`
		Explanation string `json:"explanation"`
	}{
		Files: []struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}{
			{Path: "index.html", Content: fakeIndexHTML},
			{Path: "game.js", Content: fmt.Sprintf(fakeGameJS, turn, req.Prompt)},
			{Path: "style.css", Content: fakeStyleCSS},
		},
		Explanation: fmt.Sprintf("Turn %d: built the game for %q.", turn, req.Prompt),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("fake collaborator: %w", err)
	}
	return &llm.GenerateResponse{RawText: string(raw)}, nil
}

const fakeIndexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Fake Game</title>
  <link rel="stylesheet" href="style.css">
</head>
<body>
  <canvas id="game" width="640" height="480"></canvas>
  <script src="game.js"></script>
</body>
</html>
`

const fakeGameJS = `// Turn %d
var prompt = %q;
console.log('fake game ready: ' + prompt);
`

const fakeStyleCSS = `canvas { display: block; margin: 2rem auto; background: #123; }
`
