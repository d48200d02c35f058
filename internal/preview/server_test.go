package preview

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) (*Host, *httptest.Server) {
	t.Helper()
	h := NewHost(Options{SandboxBudget: 2 * time.Second})
	srv := httptest.NewServer(NewServer(h, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return h, srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return resp, string(body)
}

func TestServerServesDocument(t *testing.T) {
	h, srv := newTestServer(t)
	artifact := mustInstall(t, h, previewProject())

	resp, body := get(t, srv.URL+"/preview/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type %q", ct)
	}
	if !strings.Contains(body, artifact.Assets.ID()) {
		t.Fatal("document does not reference the current pass")
	}
}

func TestServerServesAndExpiresAssets(t *testing.T) {
	h, srv := newTestServer(t)
	first := mustInstall(t, h, previewProject())

	url := srv.URL + first.Assets.URL("game.js")
	resp, body := get(t, url)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d for live asset", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/javascript" {
		t.Fatalf("content type %q", ct)
	}
	if body != "console.log('preview ready');" {
		t.Fatalf("unexpected asset body %q", body)
	}

	mustInstall(t, h, previewProject())
	resp, _ = get(t, url)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d for released asset, want 404", resp.StatusCode)
	}
}

func TestServerConsoleSnapshot(t *testing.T) {
	h, srv := newTestServer(t)

	ch := h.Events().Subscribe()
	defer h.Events().Unsubscribe(ch)
	mustInstall(t, h, previewProject())
	waitForConsole(t, ch, "preview ready")

	resp, body := get(t, srv.URL+"/api/v1/console")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var payload struct {
		Entries []LogEntry `json:"entries"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decode console snapshot: %v", err)
	}
	found := false
	for _, e := range payload.Entries {
		if strings.Contains(e.Message, "preview ready") {
			found = true
		}
	}
	if !found {
		t.Fatalf("snapshot does not contain the logged line: %s", body)
	}
}

func TestServerHealth(t *testing.T) {
	_, srv := newTestServer(t)
	resp, body := get(t, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"ok"`) {
		t.Fatalf("unexpected health body %q", body)
	}
}

func TestServerEventStream(t *testing.T) {
	h, srv := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = h.Install(previewProject())
	}()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before preview_updated: %v", err)
		}
		if strings.TrimSpace(line) == "event: "+StreamUpdated {
			return
		}
	}
}
