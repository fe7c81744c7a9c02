package toolcat

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Category is a semantic grouping of tools used to produce human-readable
// phase labels ("Searching the web", "Reading your email", ...).
type Category string

const (
	CategoryEmail    Category = "email"
	CategoryWeb      Category = "web"
	CategoryDocs     Category = "docs"
	CategoryCalendar Category = "calendar"
	CategoryCode     Category = "code"
	CategoryData     Category = "data"
)

// Rule maps a category to the keywords that select it. Keywords are matched
// case-insensitively against tool names, provider names, and message text.
type Rule struct {
	Category Category `yaml:"category"`
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Rules is the full categorizer rule set, loadable from YAML.
type Rules struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns the built-in rule set. It covers the providers the
// dashboard ships integrations for.
func DefaultRules() Rules {
	return Rules{Rules: []Rule{
		{
			Category: CategoryEmail,
			Label:    "Working with email",
			Keywords: []string{"gmail", "outlook", "email", "mail", "inbox", "smtp"},
		},
		{
			Category: CategoryWeb,
			Label:    "Searching the web",
			Keywords: []string{"search", "web", "browse", "serp", "exa", "url", "scrape"},
		},
		{
			Category: CategoryDocs,
			Label:    "Reading documents",
			Keywords: []string{"docs", "document", "notion", "drive", "sheet", "pdf", "file"},
		},
		{
			Category: CategoryCalendar,
			Label:    "Checking the calendar",
			Keywords: []string{"calendar", "schedule", "meeting", "event", "availability"},
		},
		{
			Category: CategoryCode,
			Label:    "Working with code",
			Keywords: []string{"github", "git", "repo", "code", "pull request", "issue"},
		},
		{
			Category: CategoryData,
			Label:    "Querying data",
			Keywords: []string{"sql", "database", "query", "csv", "spreadsheet", "table"},
		},
	}}
}

// LoadRules reads a rule set from a YAML file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rules file: %w", err)
	}

	if len(rules.Rules) == 0 {
		return Rules{}, fmt.Errorf("rules file %s contains no rules", path)
	}

	return rules, nil
}

// Categorizer maps tool/provider names or free-text messages to categories.
// It is stateless after construction and safe for concurrent use.
type Categorizer struct {
	rules  []Rule
	labels map[Category]string
}

// NewCategorizer creates a categorizer from the given rule set.
func NewCategorizer(rules Rules) *Categorizer {
	labels := make(map[Category]string, len(rules.Rules))
	for _, r := range rules.Rules {
		labels[r.Category] = r.Label
	}

	return &Categorizer{
		rules:  rules.Rules,
		labels: labels,
	}
}

// Categorize returns the categories whose keywords appear in text.
// Returns nil when nothing matches; callers treat that as "no tool inferred".
func (c *Categorizer) Categorize(text string) []Category {
	lowered := strings.ToLower(text)

	var matched []Category
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				matched = append(matched, rule.Category)
				break
			}
		}
	}

	return matched
}

// Label returns the human-readable phase label for a category.
func (c *Categorizer) Label(cat Category) string {
	if label, ok := c.labels[cat]; ok {
		return label
	}
	return "Using a tool"
}
