package secrets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSecretsRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "secrets.enc"), filepath.Join(root, "master.key"))
	if err := store.SetGeminiKey("gm-test"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	key, err := store.GetGeminiKey()
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if key != "gm-test" {
		t.Fatalf("expected key roundtrip")
	}
}

func TestSecretsEncryptedAtRest(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "secrets.enc")
	store := NewStore(path, filepath.Join(root, "master.key"))
	if err := store.SetGeminiKey("gm-plaintext-leak"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read secrets file: %v", err)
	}
	if strings.Contains(string(data), "gm-plaintext-leak") {
		t.Fatalf("secret stored in plaintext")
	}
	var payload encryptedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("expected encrypted payload envelope: %v", err)
	}
	if payload.Nonce == "" || payload.Ciphertext == "" {
		t.Fatalf("expected nonce and ciphertext, got %+v", payload)
	}
}

func TestClearGeminiKey(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "secrets.enc"), filepath.Join(root, "master.key"))
	if err := store.SetGeminiKey("gm-test"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	if err := store.ClearGeminiKey(); err != nil {
		t.Fatalf("clear key: %v", err)
	}
	key, err := store.GetGeminiKey()
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if key != "" {
		t.Fatalf("expected cleared key, got %q", key)
	}
}
