package logging

import "testing"

func TestRedactValue(t *testing.T) {
	if got := RedactValue("sk-abcdef123456"); got != "****3456" {
		t.Fatalf("RedactValue = %q", got)
	}
	if got := RedactValue("Bearer sk-abcdef123456"); got != "Bearer ****3456" {
		t.Fatalf("RedactValue bearer = %q", got)
	}
	if got := RedactValue("abc"); got != "****" {
		t.Fatalf("RedactValue short = %q", got)
	}
	if got := RedactValue("   "); got != "" {
		t.Fatalf("RedactValue blank = %q", got)
	}
}

func TestRedactAny(t *testing.T) {
	in := map[string]any{
		"api_key": "sk-abcdef123456",
		"nested": map[string]any{
			"token": "tok-abcdef123456",
			"model": "gemini-2.0-flash",
		},
	}
	out, ok := RedactAny(in).(map[string]any)
	if !ok {
		t.Fatal("expected map result")
	}
	if out["api_key"] != "****3456" {
		t.Fatalf("api_key = %v", out["api_key"])
	}
	nested := out["nested"].(map[string]any)
	if nested["token"] != "****3456" {
		t.Fatalf("token = %v", nested["token"])
	}
	if nested["model"] != "gemini-2.0-flash" {
		t.Fatalf("model = %v, want untouched", nested["model"])
	}
}

func TestRedactURL(t *testing.T) {
	raw := "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent?key=secretvalue1234&alt=json"
	got := RedactURL(raw)
	want := "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent?key=****1234&alt=json"
	if got != want {
		t.Fatalf("RedactURL = %q, want %q", got, want)
	}
	plain := "https://example.com/path"
	if got := RedactURL(plain); got != plain {
		t.Fatalf("RedactURL without query = %q", got)
	}
}
