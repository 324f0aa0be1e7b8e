package pipeline

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/util/sets"
)

// purge removes the output root, the working root, and the state file,
// forcing a from-scratch build.
func (p *Pipeline) purge() error {
	p.logger.Info("Purging build products")
	for _, target := range []string{p.settings.Roots.Output, p.settings.Roots.Working} {
		if err := os.RemoveAll(target); err != nil {
			return builderr.Wrap(err, builderr.CategoryFileSystem, builderr.SeverityFatal,
				"purging build root")
		}
	}
	if err := os.Remove(p.settings.StateFile); err != nil && !os.IsNotExist(err) {
		return builderr.Wrap(err, builderr.CategoryFileSystem, builderr.SeverityFatal,
			"purging state file")
	}
	return nil
}

// removeOrphans deletes files under the output and working roots that the
// custody graph no longer claims, then prunes directories left empty. This
// keeps products of deleted inputs from lingering in the output tree.
func (p *Pipeline) removeOrphans(logger *slog.Logger) error {
	keepList, err := p.cust.AllPaths()
	if err != nil {
		return err
	}
	keep := sets.New[string]()
	for _, path := range keepList {
		keep.Add(path)
	}
	keep.Add(p.settings.StateFile)

	for _, root := range []string{p.settings.Roots.Output, p.settings.Roots.Working} {
		logger.Debug("Scanning for orphans", logfields.Root(root))
		if err := removeUnclaimed(root, keep, logger); err != nil {
			return err
		}
		if err := pruneEmptyDirs(root); err != nil {
			return err
		}
	}
	return nil
}

func removeUnclaimed(root string, keep sets.Set[string], logger *slog.Logger) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return builderr.Wrap(err, builderr.CategoryFileSystem, builderr.SeverityFatal,
				"scanning for orphans")
		}
		if d.IsDir() {
			// Directories claimed as outputs (unpack targets) shield their
			// contents from removal.
			if path != root && keep.Has(path) {
				return fs.SkipDir
			}
			return nil
		}
		if keep.Has(path) {
			return nil
		}
		logger.Info("Removing orphan", logfields.Path(path))
		if err := os.Remove(path); err != nil {
			return builderr.Wrap(err, builderr.CategoryFileSystem, builderr.SeverityFatal,
				"removing orphan")
		}
		return nil
	})
}

// pruneEmptyDirs removes empty directories bottom-up, keeping the root itself.
func pruneEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Deepest first so nested empties collapse in one pass.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			return builderr.Wrap(err, builderr.CategoryFileSystem, builderr.SeverityFatal,
				"pruning empty directory")
		}
	}
	return nil
}
