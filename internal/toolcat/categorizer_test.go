package toolcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCategorize(t *testing.T) {
	c := NewCategorizer(DefaultRules())

	tests := []struct {
		name string
		text string
		want []Category
	}{
		{
			name: "email keywords",
			text: "check my Gmail inbox for anything urgent",
			want: []Category{CategoryEmail},
		},
		{
			name: "calendar keywords",
			text: "what meetings do I have tomorrow",
			want: []Category{CategoryCalendar},
		},
		{
			name: "web search",
			text: "search for the latest release notes",
			want: []Category{CategoryWeb},
		},
		{
			name: "multiple categories",
			text: "search my email for the meeting invite",
			want: []Category{CategoryEmail, CategoryWeb, CategoryCalendar},
		},
		{
			name: "case insensitive",
			text: "OPEN THE GITHUB REPO",
			want: []Category{CategoryCode},
		},
		{
			name: "no match",
			text: "tell me a joke",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Categorize(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("position %d: expected %s, got %s", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestLabel(t *testing.T) {
	c := NewCategorizer(DefaultRules())

	if got := c.Label(CategoryEmail); got != "Working with email" {
		t.Errorf("unexpected email label %q", got)
	}
	if got := c.Label(Category("unknown")); got != "Using a tool" {
		t.Errorf("expected the fallback label, got %q", got)
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	content := `rules:
  - category: email
    label: "Checking mail"
    keywords: ["imap", "mailbox"]
  - category: web
    label: "Browsing"
    keywords: ["http"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(rules.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules.Rules))
	}

	c := NewCategorizer(rules)
	if got := c.Categorize("check the mailbox"); len(got) != 1 || got[0] != CategoryEmail {
		t.Errorf("custom rules not applied: %v", got)
	}
	if got := c.Label(CategoryEmail); got != "Checking mail" {
		t.Errorf("custom label not applied: %q", got)
	}
}

func TestLoadRulesRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("rules: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadRules(path); err == nil {
		t.Error("expected an error for a rule set with no rules")
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
