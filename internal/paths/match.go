// Package paths provides the matchers and output path calculators that bind
// input files to processing rules.
package paths

import (
	"fmt"
	"path/filepath"
	"regexp"

	"git.home.luguber.info/inful/sitepress/internal/custody"
)

// Match carries the captures of a successful path match. Named groups are
// meaningful to path calculators: "ext" and "stem" let a rule work with
// extensions filepath does not reflect, like ".tar.gz".
type Match struct {
	Groups map[string]string
}

// Group returns a named capture, or "" if absent.
func (m *Match) Group(name string) string {
	if m == nil {
		return ""
	}
	return m.Groups[name]
}

// Matcher decides whether a rule applies to a path.
type Matcher interface {
	Match(roots custody.Roots, path string) (*Match, bool)
}

// REMatcher matches paths with a regular expression anchored at the start.
// With a parent root set, matching happens against the path relative to that
// root; this avoids pitfalls with unexpected characters in the configured
// directories themselves.
type REMatcher struct {
	re     *regexp.Regexp
	parent custody.Root
}

// NewREMatcher compiles expr. parent may be empty to match whole paths.
func NewREMatcher(expr string, parent custody.Root) (*REMatcher, error) {
	re, err := regexp.Compile("^(?:" + expr + ")")
	if err != nil {
		return nil, fmt.Errorf("compile rule pattern %q: %w", expr, err)
	}
	return &REMatcher{re: re, parent: parent}, nil
}

func (m *REMatcher) Match(roots custody.Roots, p string) (*Match, bool) {
	target := filepath.ToSlash(p)
	if m.parent != "" {
		if !roots.Contains(m.parent, p) {
			return nil, false
		}
		dir, err := roots.Dir(m.parent)
		if err != nil {
			return nil, false
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil, false
		}
		target = filepath.ToSlash(rel)
	}

	sub := m.re.FindStringSubmatch(target)
	if sub == nil {
		return nil, false
	}
	groups := map[string]string{}
	for i, name := range m.re.SubexpNames() {
		if name != "" && i < len(sub) {
			groups[name] = sub[i]
		}
	}
	return &Match{Groups: groups}, true
}
