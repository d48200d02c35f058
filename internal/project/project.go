package project

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Type2D = "2D"
	Type3D = "3D"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

var (
	ErrInvalidType   = errors.New("invalid workspace type")
	ErrInvalidPath   = errors.New("invalid file path")
	ErrDuplicatePath = errors.New("duplicate file path")
	ErrNoFiles       = errors.New("file set is empty")
)

// EntryPoint is the one path a workspace must contain to be previewable.
const EntryPoint = "index.html"

// FileEntry is one project file. Content is always text; binary assets are
// referenced by external URL, never stored as files.
type FileEntry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ChatMessage is one conversation entry. Role discriminates the union: user
// messages carry only Text; model messages additionally carry the raw reply
// payload and the error/retry markers.
type ChatMessage struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Text string `json:"text"`

	// FullResponse is the exact raw reply text received for this turn. It is
	// what gets replayed to the collaborator on every later turn, independent
	// of the display text.
	FullResponse   string `json:"full_response,omitempty"`
	Rated          *bool  `json:"rated,omitempty"`
	IsFixable      bool   `json:"is_fixable,omitempty"`
	OriginalPrompt string `json:"original_prompt,omitempty"`
}

// Workspace is one project: an ordered file set plus its conversation.
type Workspace struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	Files        []FileEntry   `json:"files"`
	ChatHistory  []ChatMessage `json:"chat_history"`
	LastModified string        `json:"last_modified"`
}

// State is the whole persisted studio document.
type State struct {
	Workspaces        []*Workspace `json:"workspaces"`
	ActiveWorkspaceID string       `json:"active_workspace_id,omitempty"`
}

func ValidType(workspaceType string) bool {
	return workspaceType == Type2D || workspaceType == Type3D
}

// NormalizePath strips one leading "./" or a single leading "/" so lookups
// and rewrites agree on the same key for every spelling a reference can use.
func NormalizePath(path string) string {
	if strings.HasPrefix(path, "./") {
		return path[2:]
	}
	if strings.HasPrefix(path, "/") {
		return path[1:]
	}
	return path
}

func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrInvalidPath
	}
	if strings.Contains(path, "\\") || strings.Contains(path, "..") {
		return ErrInvalidPath
	}
	return nil
}

// ValidateFiles checks an incoming file set: non-empty, valid paths, unique
// after normalization.
func ValidateFiles(files []FileEntry) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	seen := make(map[string]bool, len(files))
	for _, file := range files {
		if err := validatePath(file.Path); err != nil {
			return err
		}
		key := NormalizePath(file.Path)
		if seen[key] {
			return ErrDuplicatePath
		}
		seen[key] = true
	}
	return nil
}

func New(name, workspaceType string) (*Workspace, error) {
	if !ValidType(workspaceType) {
		return nil, ErrInvalidType
	}
	if strings.TrimSpace(name) == "" {
		name = "Untitled Game"
	}
	ws := &Workspace{
		ID:           uuid.New().String(),
		Name:         name,
		Type:         workspaceType,
		Files:        Template(workspaceType),
		LastModified: now(),
	}
	return ws, nil
}

// ReplaceFiles swaps the whole file set as one assignment. Accepted edits are
// wholesale replacements, never merges.
func (w *Workspace) ReplaceFiles(files []FileEntry) error {
	if err := ValidateFiles(files); err != nil {
		return err
	}
	replacement := make([]FileEntry, len(files))
	copy(replacement, files)
	w.Files = replacement
	w.LastModified = now()
	return nil
}

// FileMap returns normalized path -> content for reference resolution.
func (w *Workspace) FileMap() map[string]string {
	result := make(map[string]string, len(w.Files))
	for _, file := range w.Files {
		result[NormalizePath(file.Path)] = file.Content
	}
	return result
}

func (w *Workspace) File(path string) (string, bool) {
	key := NormalizePath(path)
	for _, file := range w.Files {
		if NormalizePath(file.Path) == key {
			return file.Content, true
		}
	}
	return "", false
}

func (w *Workspace) HasEntryPoint() bool {
	_, ok := w.File(EntryPoint)
	return ok
}

func (w *Workspace) AppendMessage(msg ChatMessage) {
	w.ChatHistory = append(w.ChatHistory, msg)
	w.LastModified = now()
}

func (w *Workspace) Message(id string) *ChatMessage {
	for i := range w.ChatHistory {
		if w.ChatHistory[i].ID == id {
			return &w.ChatHistory[i]
		}
	}
	return nil
}

func NewUserMessage(text string) ChatMessage {
	return ChatMessage{ID: uuid.New().String(), Role: RoleUser, Text: text}
}

func NewModelMessage(text, fullResponse string) ChatMessage {
	return ChatMessage{ID: uuid.New().String(), Role: RoleModel, Text: text, FullResponse: fullResponse}
}

// NewErrorMessage records a failed turn. Fixable entries keep the prompt that
// produced them so a retry can re-issue exactly that text.
func NewErrorMessage(text string, fixable bool, originalPrompt string) ChatMessage {
	return ChatMessage{
		ID:             uuid.New().String(),
		Role:           RoleModel,
		Text:           text,
		IsFixable:      fixable,
		OriginalPrompt: originalPrompt,
	}
}

func (s *State) Workspace(id string) *Workspace {
	for _, ws := range s.Workspaces {
		if ws.ID == id {
			return ws
		}
	}
	return nil
}

func (s *State) Remove(id string) bool {
	for i, ws := range s.Workspaces {
		if ws.ID == id {
			s.Workspaces = append(s.Workspaces[:i], s.Workspaces[i+1:]...)
			if s.ActiveWorkspaceID == id {
				s.ActiveWorkspaceID = ""
			}
			return true
		}
	}
	return false
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
