package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettingsRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.DefaultModelID != DefaultModelID {
		t.Fatalf("expected default model %q, got %q", DefaultModelID, settings.DefaultModelID)
	}
	if settings.SandboxTimeoutMS != DefaultSandboxTimeoutMS {
		t.Fatalf("expected default sandbox timeout, got %d", settings.SandboxTimeoutMS)
	}

	settings.DefaultModelID = "gemini-2.5-pro"
	settings.PreviewAddr = "127.0.0.1:8931"
	settings.SandboxTimeoutMS = 5000
	if err := store.Save(settings); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.DefaultModelID != "gemini-2.5-pro" {
		t.Fatalf("expected saved model, got %q", loaded.DefaultModelID)
	}
	if loaded.PreviewAddr != "127.0.0.1:8931" {
		t.Fatalf("expected saved preview addr, got %q", loaded.PreviewAddr)
	}
	if loaded.SandboxTimeoutMS != 5000 {
		t.Fatalf("expected saved sandbox timeout, got %d", loaded.SandboxTimeoutMS)
	}
}

func TestLoadBackfillsMissingFields(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "settings.json")
	legacy := `{"schema_version": 0, "sandbox_timeout_ms": -1}`
	if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
		t.Fatalf("write legacy settings: %v", err)
	}

	store := NewStore(path)
	settings, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.SchemaVersion != schemaVersion {
		t.Fatalf("expected schema backfill, got %d", settings.SchemaVersion)
	}
	if settings.DefaultModelID != DefaultModelID {
		t.Fatalf("expected model backfill, got %q", settings.DefaultModelID)
	}
	if settings.SandboxTimeoutMS != DefaultSandboxTimeoutMS {
		t.Fatalf("expected timeout backfill, got %d", settings.SandboxTimeoutMS)
	}
}

func TestUpdate(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "settings.json"))
	updated, err := store.Update(func(s *Settings) {
		s.DefaultModelID = "gemini-2.5-pro"
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DefaultModelID != "gemini-2.5-pro" {
		t.Fatalf("expected update applied, got %q", updated.DefaultModelID)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.DefaultModelID != "gemini-2.5-pro" {
		t.Fatalf("expected update persisted, got %q", loaded.DefaultModelID)
	}
}
