package envutil

import "testing"

func TestParseBool(t *testing.T) {
	cases := map[string]bool{
		"1":     true,
		"true":  true,
		"TRUE":  true,
		"yes":   true,
		"on":    true,
		"false": false,
		"0":     false,
		"":      false,
	}
	for input, want := range cases {
		if got := ParseBool(input); got != want {
			t.Fatalf("ParseBool(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestString(t *testing.T) {
	t.Setenv("GAMESMITH_TEST_STRING", "  value  ")
	if got := String("GAMESMITH_TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("String = %q, want trimmed value", got)
	}
	t.Setenv("GAMESMITH_TEST_STRING", "   ")
	if got := String("GAMESMITH_TEST_STRING", "fallback"); got != "fallback" {
		t.Fatalf("String = %q, want fallback for blank", got)
	}
	if got := String("GAMESMITH_TEST_STRING_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("String = %q, want fallback for unset", got)
	}
}
