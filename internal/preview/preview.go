// Package preview owns the live preview of the active workspace: the bundled
// document, the asset registry serving it, the headless diagnostics run, and
// the retained console history. Installing a new pass atomically replaces the
// previous one; its asset URLs die and its sandbox is shut down on every
// path out of Install.
package preview

import (
	"log/slog"
	"sync"
	"time"

	"gamesmith/studio/internal/bundle"
	"gamesmith/studio/internal/logging"
	"gamesmith/studio/internal/metrics"
	"gamesmith/studio/internal/project"
	"gamesmith/studio/internal/sandbox"
)

// Options configures a Host.
type Options struct {
	Logger        *slog.Logger
	SandboxBudget time.Duration

	// OnConsole, when set, receives every accepted console entry. Used to
	// forward entries as engine notifications.
	OnConsole func(LogEntry)
}

type Host struct {
	registry *bundle.Registry
	ring     *Ring
	events   *Broadcaster
	logger   *slog.Logger
	budget   time.Duration
	onentry  func(LogEntry)

	mu      sync.Mutex
	current *bundle.Artifact
	box     *sandbox.Context
}

func NewHost(opts Options) *Host {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.SandboxBudget <= 0 {
		opts.SandboxBudget = sandbox.DefaultBudget
	}
	return &Host{
		registry: bundle.NewRegistry(),
		ring:     NewRing(RingCapacity),
		events:   NewBroadcaster(),
		logger:   opts.Logger,
		budget:   opts.SandboxBudget,
		onentry:  opts.OnConsole,
	}
}

// Install bundles the given file set and makes it the current preview. The
// previous pass's assets are released and its sandbox closed no matter how
// the new pass turns out. The headless diagnostics run starts in the
// background; console events stream as they happen. The returned error
// reports only a diagnostics run that could not start; the document and
// assets are installed either way.
func (h *Host) Install(files map[string]string) (*bundle.Artifact, error) {
	artifact := bundle.Build(files, h.registry)

	var box *sandbox.Context
	if !artifact.EntryMissing {
		box = sandbox.NewContext(sandbox.Options{
			Budget:  h.budget,
			Logger:  h.logger,
			OnEvent: h.onConsoleEvent,
		})
	}

	h.mu.Lock()
	prevArtifact, prevBox := h.current, h.box
	h.current = artifact
	h.box = box
	h.mu.Unlock()

	if prevBox != nil {
		prevBox.Close()
	}
	if prevArtifact != nil {
		prevArtifact.Assets.Release()
	}

	metrics.RecordPreviewBuild(buildOutcome(artifact))
	metrics.SetPreviewAssetsActive(artifact.Assets.Len())
	metrics.RecordPreviewWarnings(len(artifact.Warnings))
	h.events.Publish(StreamEvent{Type: StreamUpdated})

	var runErr error
	if box != nil {
		entry := ""
		for p, content := range files {
			if project.NormalizePath(p) == project.EntryPoint {
				entry = content
				break
			}
		}
		if runErr = box.Run(entry, files); runErr != nil {
			h.logger.Warn("preview.sandbox_start_failed", "error", runErr.Error())
		}
	}

	h.logger.Debug("preview.installed",
		"strategy", artifact.Strategy,
		"assets", artifact.Assets.Len(),
		"warnings", len(artifact.Warnings),
		"entry_missing", artifact.EntryMissing,
	)
	return artifact, runErr
}

func buildOutcome(artifact *bundle.Artifact) string {
	if artifact.EntryMissing {
		return "entry_missing"
	}
	return artifact.Strategy
}

func (h *Host) onConsoleEvent(e sandbox.Event) {
	entry := h.ring.Append(e.Payload.Type, e.Payload.Message)
	metrics.RecordConsoleEvent(e.Payload.Type)
	h.events.Publish(StreamEvent{Type: StreamConsole, Data: entry})
	if h.onentry != nil {
		h.onentry(entry)
	}
}

// Document returns the current preview document, or the placeholder when
// nothing has been installed yet.
func (h *Host) Document() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return bundle.PlaceholderDocument("Open a workspace and build a preview to see it here.")
	}
	return h.current.Document
}

// Current returns the installed artifact, or nil before the first install.
func (h *Host) Current() *bundle.Artifact {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Resolve serves a pass asset by pass id and path.
func (h *Host) Resolve(pass, path string) ([]byte, string, bool) {
	return h.registry.Resolve(pass, path)
}

func (h *Host) Console() []LogEntry {
	return h.ring.Snapshot()
}

func (h *Host) ClearConsole() {
	h.ring.Clear()
}

func (h *Host) Events() *Broadcaster {
	return h.events
}

// Close shuts down the current pass. The Host is reusable afterwards; a
// later Install starts a fresh pass.
func (h *Host) Close() {
	h.mu.Lock()
	artifact, box := h.current, h.box
	h.current = nil
	h.box = nil
	h.mu.Unlock()

	if box != nil {
		box.Close()
	}
	if artifact != nil {
		artifact.Assets.Release()
		metrics.SetPreviewAssetsActive(0)
	}
}
