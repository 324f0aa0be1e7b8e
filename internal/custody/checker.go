package custody

import (
	"errors"
	"io/fs"
	"os"

	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
)

// Checker decides whether a historical entry still matches current reality.
// Returning an error aborts the run; a checker must never guess. Checkers for
// new resource kinds (remote URLs, git remotes, database rows) plug in via
// RegisterChecker without changes to the graph or the decision logic.
type Checker func(Entry) (bool, error)

// checkerRegistry maps entry types to their staleness predicates.
type checkerRegistry map[string]Checker

// register installs a checker for an entry type. With override=false an
// existing registration wins, which lets a default-provided checker survive
// unless explicitly replaced.
func (r checkerRegistry) register(entryType string, fn Checker, override bool) {
	if !override {
		if _, ok := r[entryType]; ok {
			return
		}
	}
	r[entryType] = fn
}

// check looks up the checker for the entry's type and invokes it. A missing
// checker is a fatal configuration error: a resource type was recorded
// without anyone teaching the system how to validate it.
func (r checkerRegistry) check(entry Entry) (bool, error) {
	fn, ok := r[entry.Type]
	if !ok {
		return false, builderr.MissingChecker(entry.Type)
	}
	return fn(entry)
}

// RegisterChecker installs a staleness checker for a specific entry type.
func (c *Custodian) RegisterChecker(entryType string, fn Checker, override bool) {
	c.checkers.register(entryType, fn, override)
}

// checkPath is the default checksum-based checker for filesystem entries:
// fresh iff the path still exists and its current checksum matches the
// recorded one.
func (c *Custodian) checkPath(entry Entry) (bool, error) {
	want, err := entry.StringField(FieldSHA1)
	if err != nil {
		return false, builderr.MetaMalformed(entry.Key, err)
	}
	abs, err := c.roots.Degenericize(entry.Key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	got, err := c.checksum(abs)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
