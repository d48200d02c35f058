package preview

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"gamesmith/studio/internal/logging"
	"gamesmith/studio/internal/metrics"
)

// Server exposes a Host over HTTP: the bundled document, pass assets, the
// retained console snapshot, and a server-sent event stream for live
// updates.
type Server struct {
	host   *Host
	logger *slog.Logger
}

func NewServer(host *Host, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{host: host, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /preview/{$}", s.handleDocument)
	mux.HandleFunc("GET /preview/assets/{pass}/{path...}", s.handleAsset)
	mux.HandleFunc("GET /api/v1/console", s.handleConsole)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	io.WriteString(w, s.host.Document())
}

// handleAsset serves one pass asset. Assets from released passes are gone;
// a stale iframe asking for them gets a 404, never an old file.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	pass := r.PathValue("pass")
	path := r.PathValue("path")
	content, mimeType, ok := s.host.Resolve(pass, path)
	if !ok {
		s.logger.Debug("preview.asset_miss", "pass", pass, "path", path)
		s.sendError(w, http.StatusNotFound, "asset not found")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(content)
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entries": s.host.Console()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.host.Events().Subscribe()
	defer s.host.Events().Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"error": message, "code": code})
}
