package id

import (
	"strings"
	"testing"
)

func TestNewID32_IsValid(t *testing.T) {
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		got := NewID32()
		if !Valid(got) {
			t.Fatalf("NewID32() = %q is not a valid id", got)
		}
		if _, dup := seen[got]; dup {
			t.Fatalf("duplicate id after %d iterations: %q", i, got)
		}
		seen[got] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		strings.Repeat("a", 32):                true,
		"0123456789abcdef0123456789abcdef":     true,
		strings.Repeat("A", 32):                false,
		strings.Repeat("a", 31):                false,
		strings.Repeat("a", 33):                false,
		"0123456789abcdef0123456789abcdeg":     false,
		"01234567-89ab-cdef-0123-456789abcdef": false,
		"":                                     false,
	}
	for in, want := range cases {
		if got := Valid(in); got != want {
			t.Errorf("Valid(%q) = %v, want %v", in, got, want)
		}
	}
}
