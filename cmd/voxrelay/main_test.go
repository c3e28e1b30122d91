package main

import (
	"testing"
	"unicode/utf8"
)

func TestClip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "murf", n: 19, want: "murf"},
		{name: "exact", in: "abcdefghijklmnopqrs", n: 19, want: "abcdefghijklmnopqrs"},
		{name: "ascii cut", in: "gemini / gemini-1.5-flash", n: 19, want: "gemini / gemini-1.…"},
		{name: "multibyte cut", in: "ollama / 通义千问-长上下文模型-最新版本", n: 19, want: "ollama / 通义千问-长上下文…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := clip(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("clip(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("clip produced invalid UTF-8: %q", got)
			}
			if n := utf8.RuneCountInString(got); n > tt.n {
				t.Errorf("clip produced %d runes, limit %d", n, tt.n)
			}
		})
	}
}
