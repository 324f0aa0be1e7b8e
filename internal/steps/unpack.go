package steps

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitepress/internal/pipeline"
)

// UnpackStep extracts a zip archive into its declared output directory. The
// directory and every extracted file join the custody record, so a member
// lost or corrupted between runs marks the unpack stale.
type UnpackStep struct{}

func (*UnpackStep) Name() string                  { return NameUnpack }
func (*UnpackStep) Bind(*pipeline.Pipeline) error { return nil }

func (*UnpackStep) Run(_ context.Context, source string, outputs []string) (*pipeline.Result, error) {
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unpack expects exactly one output directory, got %d", len(outputs))
	}
	dest := outputs[0]

	// Stale archive contents from an earlier extraction must not survive.
	if err := os.RemoveAll(dest); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return nil, err
	}

	r, err := zip.OpenReader(source)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	members := make([]string, 0, len(r.File))
	for _, f := range r.File {
		target, err := extractFile(f, dest)
		if err != nil {
			return nil, err
		}
		if target != "" {
			members = append(members, target)
		}
	}
	return &pipeline.Result{Outputs: append([]string{dest}, members...)}, nil
}

// extractFile writes one archive entry and returns the created file path,
// or "" for directory entries.
func extractFile(f *zip.File, dest string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(f.Name))
	// Reject entries that escape the destination.
	if rel, err := filepath.Rel(dest, target); err != nil ||
		rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", f.Name)
	}

	if f.FileInfo().IsDir() {
		return "", os.MkdirAll(target, 0o750)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", err
	}

	src, err := f.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", err
	}
	return target, out.Close()
}
