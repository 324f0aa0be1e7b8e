package steps

import (
	"bytes"
	"context"
	"os"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"git.home.luguber.info/inful/sitepress/internal/pipeline"
)

// MarkdownStep renders a markdown source to HTML.
type MarkdownStep struct {
	md goldmark.Markdown
}

// NewMarkdownStep builds the step with GitHub-flavored extensions enabled.
func NewMarkdownStep() *MarkdownStep {
	return &MarkdownStep{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (*MarkdownStep) Name() string                  { return NameMarkdown }
func (*MarkdownStep) Bind(*pipeline.Pipeline) error { return nil }

func (s *MarkdownStep) Run(_ context.Context, source string, outputs []string) (*pipeline.Result, error) {
	src, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.md.Convert(src, &buf); err != nil {
		return nil, err
	}
	if err := writeOutputs(outputs, buf.Bytes()); err != nil {
		return nil, err
	}
	return nil, nil
}
