package store

import (
	"strings"
	"testing"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "short message verbatim",
			text: "What's on my calendar today?",
			want: "What's on my calendar today?",
		},
		{
			name: "long message truncated to eight words",
			text: "Can you look through my inbox and summarize everything that arrived since Monday morning",
			want: "Can you look through my inbox and summarize...",
		},
		{
			name: "whitespace collapsed",
			text: "  hello\n\t world  ",
			want: "hello world",
		},
		{
			name: "empty input",
			text: "",
			want: "New conversation",
		},
		{
			name: "only whitespace",
			text: " \n\t ",
			want: "New conversation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.text); got != tt.want {
				t.Errorf("DeriveTitle(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestDeriveTitleCapsRunes(t *testing.T) {
	long := strings.Repeat("x", 200)
	got := DeriveTitle(long)

	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncation marker, got %q", got)
	}
	if n := len([]rune(got)); n > titleMaxRunes+3 {
		t.Errorf("title too long: %d runes", n)
	}
}
