// Package steps provides the built-in processing steps rules can run.
package steps

import (
	"io/fs"
	"os"
	"path/filepath"

	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
	"git.home.luguber.info/inful/sitepress/internal/pipeline"
)

// Built-in step names as referenced from configuration.
const (
	NameCopy         = "copy"
	NameMarkdown     = "markdown"
	NameRewriteLinks = "rewrite-links"
	NameFetch        = "fetch"
	NameUnpack       = "unpack"
	NameGitSource    = "git-source"
)

// New returns a fresh instance of the named built-in step.
func New(name string) (pipeline.Step, error) {
	switch name {
	case NameCopy:
		return &CopyStep{}, nil
	case NameMarkdown:
		return NewMarkdownStep(), nil
	case NameRewriteLinks:
		return &RewriteLinksStep{FromExt: ".md", ToExt: ".html"}, nil
	case NameFetch:
		return &FetchStep{}, nil
	case NameUnpack:
		return &UnpackStep{}, nil
	case NameGitSource:
		return &GitSourceStep{}, nil
	}
	return nil, builderr.StepUnavailable(name, Available())
}

// Available lists the built-in step names.
func Available() []string {
	return []string{NameCopy, NameMarkdown, NameRewriteLinks, NameFetch, NameUnpack, NameGitSource}
}

// collectFiles lists every file under root, skipping subdirectories whose
// name appears in skip.
func collectFiles(root string, skip ...string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			for _, name := range skip {
				if path != root && d.Name() == name {
					return fs.SkipDir
				}
			}
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// writeOutputs writes data to every output path, creating parent directories.
func writeOutputs(outputs []string, data []byte) error {
	for _, out := range outputs {
		if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
