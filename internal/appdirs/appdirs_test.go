package appdirs

import (
	"os"
	"testing"
)

func TestDataDirOverride(t *testing.T) {
	os.Setenv("GAMESMITH_DATA_DIR", "/tmp/gamesmith-test")
	defer os.Unsetenv("GAMESMITH_DATA_DIR")
	path, err := DataDir()
	if err != nil {
		t.Fatalf("data dir: %v", err)
	}
	if path != "/tmp/gamesmith-test" {
		t.Fatalf("expected override path, got %s", path)
	}
}
