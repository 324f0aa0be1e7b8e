package custody

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
)

// Root names one of the fixed directories a build operates on. Custody keys
// for filesystem resources start with a root name so the persisted graph is
// portable across machines and run directories.
type Root string

const (
	RootInput   Root = "input"
	RootOutput  Root = "output"
	RootWorking Root = "working"
)

// rootOrder fixes the matching order for genericization. Input is tried
// first so that an output directory nested inside the input tree cannot
// shadow input keys.
var rootOrder = [...]Root{RootInput, RootOutput, RootWorking}

// Roots binds the three named roots to concrete directories. The custody
// graph is meaningless without all three bound.
type Roots struct {
	Input   string
	Output  string
	Working string
}

// Dir resolves a root name to its configured directory.
func (r Roots) Dir(root Root) (string, error) {
	switch root {
	case RootInput:
		return r.Input, nil
	case RootOutput:
		return r.Output, nil
	case RootWorking:
		return r.Working, nil
	}
	return "", fmt.Errorf("unknown root %q", string(root))
}

// Validate checks that every root directory is bound.
func (r Roots) Validate() error {
	for _, root := range rootOrder {
		dir, _ := r.Dir(root)
		if dir == "" {
			return builderr.ConfigRequired("roots." + string(root))
		}
	}
	return nil
}

// Genericize converts an absolute path into a portable custody key: the
// path relative to the first root that contains it, prefixed with the root
// name, in slash form. Paths outside every root keep their own (slashified)
// path as the key; such keys cannot be degenericized.
func (r Roots) Genericize(p string) string {
	for _, root := range rootOrder {
		dir, _ := r.Dir(root)
		if dir == "" {
			continue
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return path.Join(string(root), filepath.ToSlash(rel))
	}
	return filepath.ToSlash(p)
}

// Degenericize reconstructs an absolute path from a custody key produced by
// Genericize. Keys whose leading segment is not a configured root yield an
// error rather than a silently misresolved path.
func (r Roots) Degenericize(key string) (string, error) {
	first, rest, _ := strings.Cut(key, "/")
	dir, err := r.Dir(Root(first))
	if err != nil {
		return "", builderr.UnknownRoot(key)
	}
	if rest == "" {
		return dir, nil
	}
	return filepath.Join(dir, filepath.FromSlash(rest)), nil
}

// Contains reports whether p lives under the given root.
func (r Roots) Contains(root Root, p string) bool {
	dir, err := r.Dir(root)
	if err != nil || dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
