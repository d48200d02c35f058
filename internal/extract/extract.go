// Package extract pulls the structured edit payload out of raw collaborator
// text. Replies are requested as pure JSON but arrive with markdown fences,
// prose preambles, or trailing chatter often enough that the parser has to
// tolerate all three.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gamesmith/studio/internal/project"
)

var (
	ErrNoJSON      = errors.New("no JSON payload found in response")
	ErrInvalidEdit = errors.New("invalid edit payload")
)

// Extract locates the JSON payload inside raw reply text. It strips a
// markdown fence when one is present, discards any prose before the first
// '{' or '[', and then requires the remainder to parse as exactly one JSON
// value. Trailing text after the value fails the whole extraction rather
// than risk applying a half-read edit.
func Extract(text string) (json.RawMessage, bool) {
	candidate := text
	if block, ok := fenceInterior(text); ok {
		candidate = block
	}

	start := strings.IndexAny(candidate, "{[")
	if start < 0 {
		return nil, false
	}
	tail := strings.TrimSpace(candidate[start:])

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(tail), &raw); err != nil {
		return nil, false
	}
	return raw, true
}

// fenceInterior returns the body of the first ``` fence whose language tag is
// empty or "json". Fences with other tags are skipped so a reply that quotes
// project code before the payload still extracts.
func fenceInterior(text string) (string, bool) {
	for len(text) > 0 {
		start := strings.Index(text, "```")
		if start < 0 {
			return "", false
		}
		remaining := text[start+3:]
		newline := strings.Index(remaining, "\n")
		if newline < 0 {
			return "", false
		}
		lang := strings.TrimSpace(remaining[:newline])
		contentAndTail := remaining[newline+1:]
		end := strings.Index(contentAndTail, "```")
		if end < 0 {
			return "", false
		}
		if lang == "" || strings.EqualFold(lang, "json") {
			return strings.TrimSpace(contentAndTail[:end]), true
		}
		text = contentAndTail[end+3:]
	}
	return "", false
}

// Edit is one accepted generation result: the complete replacement file set
// plus the display text for the conversation.
type Edit struct {
	Files       []project.FileEntry
	Explanation string
	Thinking    string
}

type editPayload struct {
	Files       []filePayload `json:"files"`
	Explanation string        `json:"explanation"`
	Thinking    string        `json:"thinking"`
}

type filePayload struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

// ParseEdit validates the extracted payload against the edit shape. Files
// must be present, non-empty, and unique after path normalization; content
// must be a string for every file. A missing explanation is tolerated since
// the conversation can fall back to a stock line, but a bad file set never
// is.
func ParseEdit(raw json.RawMessage) (*Edit, error) {
	var payload editPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	if len(payload.Files) == 0 {
		return nil, fmt.Errorf("%w: files array is empty", ErrInvalidEdit)
	}

	files := make([]project.FileEntry, 0, len(payload.Files))
	for _, file := range payload.Files {
		if file.Content == nil {
			return nil, fmt.Errorf("%w: file %q has no string content", ErrInvalidEdit, file.Path)
		}
		files = append(files, project.FileEntry{Path: file.Path, Content: *file.Content})
	}
	if err := project.ValidateFiles(files); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}

	return &Edit{
		Files:       files,
		Explanation: payload.Explanation,
		Thinking:    payload.Thinking,
	}, nil
}
