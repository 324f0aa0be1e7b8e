package paths

import (
	"fmt"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitepress/internal/custody"
)

// Transform rewrites a root-relative path before it is joined onto the
// destination directory.
type Transform func(rel string) string

// PathCalc computes an output path for a matched source path.
type PathCalc interface {
	Calc(roots custody.Roots, source string, m *Match) (string, error)
}

// DirPathCalc makes its input paths children of a destination directory,
// optionally replacing the extension and applying a transform. If the match
// captured explicit extension information ("stem" or "ext" groups), that is
// honored first, so multi-part extensions like ".tar.gz" survive.
type DirPathCalc struct {
	Dest      custody.Root // named root destination; takes precedence
	DestDir   string       // literal directory, used when Dest is empty
	Ext       string       // replacement extension including the dot; "" keeps
	Transform Transform
}

// OutputDirCalc targets the output root.
func OutputDirCalc(ext string) DirPathCalc {
	return DirPathCalc{Dest: custody.RootOutput, Ext: ext}
}

// WorkingDirCalc targets the working root.
func WorkingDirCalc(ext string) DirPathCalc {
	return DirPathCalc{Dest: custody.RootWorking, Ext: ext}
}

func (c DirPathCalc) Calc(roots custody.Roots, source string, m *Match) (string, error) {
	dest := c.DestDir
	if c.Dest != "" {
		dir, err := roots.Dir(c.Dest)
		if err != nil {
			return "", err
		}
		dest = dir
	}
	if dest == "" {
		return "", fmt.Errorf("path calc for %s: no destination configured", source)
	}

	trimmed := trimMatchedExt(source, m)

	var base string
	switch {
	case roots.Contains(custody.RootInput, trimmed):
		base = roots.Input
	case roots.Contains(custody.RootWorking, trimmed):
		base = roots.Working
	default:
		return "", fmt.Errorf("path calc: %s is under neither the input nor the working root", source)
	}
	rel, err := filepath.Rel(base, trimmed)
	if err != nil {
		return "", err
	}

	if c.Transform != nil {
		rel = filepath.FromSlash(c.Transform(filepath.ToSlash(rel)))
	}

	out := filepath.Join(dest, rel)
	if c.Ext != "" {
		out = strings.TrimSuffix(out, filepath.Ext(out)) + c.Ext
	}
	return out, nil
}

// trimMatchedExt strips the extension information captured by the matcher:
// a "stem" group replaces the file stem outright, an "ext" group is removed
// from the end of the name.
func trimMatchedExt(p string, m *Match) string {
	if stem := m.Group("stem"); stem != "" {
		ext := filepath.Ext(p)
		return filepath.Join(filepath.Dir(p), stem+ext)
	}
	if ext := m.Group("ext"); ext != "" && strings.HasSuffix(p, ext) {
		return p[:len(p)-len(ext)]
	}
	return p
}

// WebIndexCalc nests output paths into an index structure so file extensions
// can be omitted in URLs: a/b.c becomes a/b/index.c, while a/index.c is left
// alone.
type WebIndexCalc struct {
	Inner     DirPathCalc
	IndexBase string
}

// NewWebIndexCalc wraps inner with the index transform.
func NewWebIndexCalc(inner DirPathCalc, indexBase string) WebIndexCalc {
	if indexBase == "" {
		indexBase = "index"
	}
	return WebIndexCalc{Inner: inner, IndexBase: indexBase}
}

func (c WebIndexCalc) Calc(roots custody.Roots, source string, m *Match) (string, error) {
	inner := c.Inner
	userTransform := inner.Transform
	inner.Transform = func(rel string) string {
		if userTransform != nil {
			rel = userTransform(rel)
		}
		return c.webTransform(rel)
	}
	return inner.Calc(roots, source, m)
}

func (c WebIndexCalc) webTransform(rel string) string {
	ext := pathExt(rel)
	stem := strings.TrimSuffix(pathBase(rel), ext)
	if stem == c.IndexBase {
		return rel
	}
	dir := pathDir(rel)
	if dir == "." {
		return stem + "/" + c.IndexBase + ext
	}
	return dir + "/" + stem + "/" + c.IndexBase + ext
}

// Slash-path helpers: transforms operate on slash form regardless of OS.
func pathExt(p string) string {
	base := pathBase(p)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return base[i:]
	}
	return ""
}

func pathBase(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

func pathDir(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return "."
}
