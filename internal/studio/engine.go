// Package studio is the orchestrator: it owns the workspace state, drives
// generation turns against the collaborator, applies accepted edits
// atomically, and keeps the preview in step with the active workspace.
package studio

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gamesmith/studio/internal/appdirs"
	"gamesmith/studio/internal/envutil"
	"gamesmith/studio/internal/errinfo"
	"gamesmith/studio/internal/gemini"
	"gamesmith/studio/internal/llm"
	"gamesmith/studio/internal/logging"
	"gamesmith/studio/internal/metrics"
	"gamesmith/studio/internal/preview"
	"gamesmith/studio/internal/project"
	"gamesmith/studio/internal/secrets"
	"gamesmith/studio/internal/settings"
	"gamesmith/studio/internal/store"
)

const (
	EngineVersion = "0.1.0"
	APIVersion    = "1"
)

type Notifier func(method string, params any)

type Engine struct {
	dataDir  string
	settings *settings.Store
	secrets  *secrets.Store
	store    *store.Store
	preview  *preview.Host
	client   llm.Client
	notify   Notifier
	logger   *slog.Logger

	// fakeCollaborator marks an injected or env-selected fake client; the
	// credential requirement is waived for it.
	fakeCollaborator bool

	mu    sync.Mutex
	state *project.State

	previewMu sync.Mutex
	previewWS string

	flightMu sync.Mutex
	inflight map[string]bool
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithDataDir(dir string) Option {
	return func(e *Engine) {
		if dir != "" {
			e.dataDir = dir
		}
	}
}

// WithCollaborator injects the generative client. Used by tests and offline
// runs; the injected client is exempt from the API key requirement.
func WithCollaborator(client llm.Client) Option {
	return func(e *Engine) {
		if client != nil {
			e.client = client
			e.fakeCollaborator = true
		}
	}
}

func New(opts ...Option) (*Engine, error) {
	engine := &Engine{logger: logging.Nop()}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.dataDir == "" {
		dataDir, err := appdirs.DataDir()
		if err != nil {
			return nil, err
		}
		engine.dataDir = dataDir
	}
	if err := os.MkdirAll(engine.dataDir, 0o755); err != nil {
		return nil, err
	}

	engine.settings = settings.NewStore(filepath.Join(engine.dataDir, "settings.json"))
	engine.secrets = secrets.NewStore(
		filepath.Join(engine.dataDir, "secrets.enc"),
		filepath.Join(engine.dataDir, "master.key"),
	)

	st, err := store.Open(engine.dataDir, engine.logger)
	if err != nil {
		return nil, err
	}
	state, err := st.Load()
	if err != nil {
		st.Close()
		return nil, err
	}
	engine.store = st
	engine.state = state

	settingsData, err := engine.settings.Load()
	if err != nil {
		st.Close()
		return nil, err
	}

	if engine.client == nil {
		if envutil.Bool("GAMESMITH_FAKE_GEMINI") {
			engine.client = newFakeGemini()
			engine.fakeCollaborator = true
		} else {
			engine.client = gemini.NewClient()
		}
	}

	engine.inflight = make(map[string]bool)
	engine.preview = preview.NewHost(preview.Options{
		Logger:        engine.logger,
		SandboxBudget: time.Duration(settingsData.SandboxTimeoutMS) * time.Millisecond,
		OnConsole:     engine.onConsoleEntry,
	})

	engine.bootstrapKey()
	metrics.SetWorkspaceCount(len(state.Workspaces))
	engine.logger.Debug("studio.init",
		"data_dir", engine.dataDir,
		"workspaces", len(state.Workspaces),
		"fake_collaborator", engine.fakeCollaborator,
	)
	return engine, nil
}

// bootstrapKey copies GEMINI_API_KEY into the secrets store on first run so
// the env var only has to be present once.
func (e *Engine) bootstrapKey() {
	key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if key == "" {
		return
	}
	stored, err := e.secrets.GetGeminiKey()
	if err != nil || stored != "" {
		return
	}
	if err := e.secrets.SetGeminiKey(key); err != nil {
		e.logger.Warn("studio.bootstrap_key_failed", "error", err.Error())
		return
	}
	e.logger.Info("studio.bootstrap_key_stored")
}

func (e *Engine) SetNotifier(notify Notifier) {
	e.notify = notify
}

// PreviewHost exposes the preview for the optional HTTP server.
func (e *Engine) PreviewHost() *preview.Host {
	return e.preview
}

// PreviewAddr returns the listen address for the preview HTTP server, empty
// when it should not be started. The env var overrides the stored setting.
func (e *Engine) PreviewAddr() string {
	if addr := envutil.String("GAMESMITH_PREVIEW_ADDR", ""); addr != "" {
		return addr
	}
	data, err := e.settings.Load()
	if err != nil {
		return ""
	}
	return data.PreviewAddr
}

func (e *Engine) Close() {
	e.preview.Close()
	if err := e.store.Close(); err != nil {
		e.logger.Warn("studio.store_close_failed", "error", err.Error())
	}
}

func (e *Engine) EngineGetInfo(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{
		"engine_version": EngineVersion,
		"api_version":    APIVersion,
	}, nil
}

// requireKey returns the stored Gemini key, or the configuration error that
// blocks workspace creation and generation until a key is set. Fake
// collaborators run keyless.
func (e *Engine) requireKey(phase string) (string, *errinfo.ErrorInfo) {
	if e.fakeCollaborator {
		return "", nil
	}
	key, err := e.secrets.GetGeminiKey()
	if err != nil {
		return "", errinfo.PersistenceFailed(err.Error())
	}
	if strings.TrimSpace(key) == "" {
		return "", errinfo.ProviderNotConfigured(phase)
	}
	return key, nil
}

func (e *Engine) beginGeneration(workspaceID string) bool {
	e.flightMu.Lock()
	defer e.flightMu.Unlock()
	if e.inflight[workspaceID] {
		return false
	}
	e.inflight[workspaceID] = true
	return true
}

func (e *Engine) endGeneration(workspaceID string) {
	e.flightMu.Lock()
	delete(e.inflight, workspaceID)
	e.flightMu.Unlock()
}

func (e *Engine) setPreviewWorkspace(workspaceID string) {
	e.previewMu.Lock()
	e.previewWS = workspaceID
	e.previewMu.Unlock()
}

func (e *Engine) previewWorkspace() string {
	e.previewMu.Lock()
	defer e.previewMu.Unlock()
	return e.previewWS
}

func (e *Engine) onConsoleEntry(entry preview.LogEntry) {
	if e.notify == nil {
		return
	}
	e.notify("ConsoleEvent", map[string]any{
		"workspace_id": e.previewWorkspace(),
		"type":         entry.Level,
		"message":      entry.Message,
	})
}

func (e *Engine) notifyState(workspaceID, state string) {
	if e.notify == nil {
		return
	}
	e.notify("GenerationState", map[string]any{
		"workspace_id": workspaceID,
		"state":        state,
	})
}

// persistLocked saves the state document. Callers hold e.mu.
func (e *Engine) persistLocked() *errinfo.ErrorInfo {
	if err := e.store.Save(e.state); err != nil {
		e.logger.Error("studio.persist_failed", "error", err.Error())
		return errinfo.PersistenceFailed(err.Error())
	}
	return nil
}

// defaultModel resolves the model for the next generation call, falling back
// to the shipped default when settings are unreadable or name an unknown id.
func (e *Engine) defaultModel() string {
	data, err := e.settings.Load()
	if err != nil {
		return settings.DefaultModelID
	}
	if _, ok := getModel(data.DefaultModelID); !ok {
		return settings.DefaultModelID
	}
	return data.DefaultModelID
}
