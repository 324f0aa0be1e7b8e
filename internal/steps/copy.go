package steps

import (
	"context"
	"os"

	"git.home.luguber.info/inful/sitepress/internal/pipeline"
)

// CopyStep duplicates the source file into every declared output. The
// workhorse for static assets.
type CopyStep struct{}

func (*CopyStep) Name() string                  { return NameCopy }
func (*CopyStep) Bind(*pipeline.Pipeline) error { return nil }

func (*CopyStep) Run(_ context.Context, source string, outputs []string) (*pipeline.Result, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	if err := writeOutputs(outputs, data); err != nil {
		return nil, err
	}
	return nil, nil
}
