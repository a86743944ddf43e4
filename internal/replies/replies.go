// Package replies holds the exact-match auto-reply table.
package replies

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule maps an exact message body to a canned reply.
type Rule struct {
	Match string `yaml:"match"`
	Reply string `yaml:"reply"`
}

type repliesFile struct {
	Replies []Rule `yaml:"replies"`
}

// Table is an immutable set of reply rules. Matching is exact and
// case-sensitive ("Hola" replies, "hola" does not).
type Table struct {
	rules map[string]string
}

// Default returns the built-in table: "Hola" → "¡Hola!".
func Default() *Table {
	return &Table{rules: map[string]string{"Hola": "¡Hola!"}}
}

// Load reads reply rules from a YAML file:
//
//	replies:
//	  - match: "Hola"
//	    reply: "¡Hola!"
//
// An empty path or a missing file yields Default().
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f repliesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(f.Replies) == 0 {
		return Default(), nil
	}

	t := &Table{rules: make(map[string]string, len(f.Replies))}
	for _, r := range f.Replies {
		if r.Match == "" {
			continue
		}
		t.rules[r.Match] = r.Reply
	}
	return t, nil
}

// Has reports whether body matches a rule.
func (t *Table) Has(body string) bool {
	_, ok := t.rules[body]
	return ok
}

// Reply returns the canned reply for body.
func (t *Table) Reply(body string) (string, bool) {
	reply, ok := t.rules[body]
	return reply, ok
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}
