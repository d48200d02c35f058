package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const schemaVersion = 1

const (
	// DefaultModelID is the model used when the user never picked one.
	DefaultModelID = "gemini-2.5-flash"

	// DefaultSandboxTimeoutMS bounds one headless diagnostics pass.
	DefaultSandboxTimeoutMS = 3000
)

type Settings struct {
	SchemaVersion    int    `json:"schema_version"`
	DefaultModelID   string `json:"default_model_id,omitempty"`
	PreviewAddr      string `json:"preview_addr,omitempty"`
	SandboxTimeoutMS int    `json:"sandbox_timeout_ms,omitempty"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultSettings(), nil
		}
		return nil, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	backfillSettings(&settings)
	return &settings, nil
}

func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backfillSettings(settings)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *Store) Update(fn func(*Settings)) (*Settings, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	fn(settings)
	return settings, s.Save(settings)
}

func defaultSettings() *Settings {
	return &Settings{
		SchemaVersion:    schemaVersion,
		DefaultModelID:   DefaultModelID,
		SandboxTimeoutMS: DefaultSandboxTimeoutMS,
	}
}

func backfillSettings(settings *Settings) {
	if settings.SchemaVersion == 0 {
		settings.SchemaVersion = schemaVersion
	}
	if settings.DefaultModelID == "" {
		settings.DefaultModelID = DefaultModelID
	}
	if settings.SandboxTimeoutMS <= 0 {
		settings.SandboxTimeoutMS = DefaultSandboxTimeoutMS
	}
}
