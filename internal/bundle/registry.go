package bundle

import (
	"sync"

	"github.com/google/uuid"
)

// AssetURLPrefix is the URL space the preview server reserves for bundled
// project files. Everything under it is addressed as prefix/pass/path.
const AssetURLPrefix = "/preview/assets/"

type asset struct {
	content []byte
	mime    string
}

// Registry holds the files minted for live preview passes. Each bundling
// pass gets its own pass id, and releasing a pass drops every URL it minted
// so stale references resolve to nothing instead of stale content.
type Registry struct {
	mu     sync.RWMutex
	passes map[string]map[string]asset
}

func NewRegistry() *Registry {
	return &Registry{passes: make(map[string]map[string]asset)}
}

// NewSet opens a fresh pass.
func (r *Registry) NewSet() *AssetSet {
	id := uuid.New().String()
	r.mu.Lock()
	r.passes[id] = make(map[string]asset)
	r.mu.Unlock()
	return &AssetSet{registry: r, id: id}
}

// Resolve returns the content and media type minted under a pass, or false
// when the pass was released or never existed.
func (r *Registry) Resolve(pass, path string) ([]byte, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	files, ok := r.passes[pass]
	if !ok {
		return nil, "", false
	}
	entry, ok := files[path]
	if !ok {
		return nil, "", false
	}
	return entry.content, entry.mime, true
}

// AssetSet is the handle for one pass. The owner of the current preview
// holds it and must call Release before installing a replacement.
type AssetSet struct {
	registry *Registry
	id       string

	mu       sync.Mutex
	released bool
	count    int
}

func (s *AssetSet) put(path string, content []byte, mime string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.registry.mu.Lock()
	if files, ok := s.registry.passes[s.id]; ok {
		if _, exists := files[path]; !exists {
			s.count++
		}
		files[path] = asset{content: content, mime: mime}
	}
	s.registry.mu.Unlock()
}

// URL returns the served location of a file within this pass.
func (s *AssetSet) URL(path string) string {
	return AssetURLPrefix + s.id + "/" + path
}

func (s *AssetSet) ID() string {
	return s.id
}

// Len reports how many files this pass serves.
func (s *AssetSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Release drops every URL minted by this pass. Safe to call more than once.
func (s *AssetSet) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.mu.Unlock()

	s.registry.mu.Lock()
	delete(s.registry.passes, s.id)
	s.registry.mu.Unlock()
}
