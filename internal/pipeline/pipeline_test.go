package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitepress/internal/custody"
	"git.home.luguber.info/inful/sitepress/internal/events"
	"git.home.luguber.info/inful/sitepress/internal/paths"
)

// copyStep duplicates its source into every declared output.
type copyStep struct{}

func (copyStep) Name() string          { return "copy" }
func (copyStep) Bind(*Pipeline) error  { return nil }
func (copyStep) Run(_ context.Context, source string, outputs []string) (*Result, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	for _, out := range outputs {
		if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
			return nil, err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// failStep always errors.
type failStep struct{}

func (failStep) Name() string         { return "fail" }
func (failStep) Bind(*Pipeline) error { return nil }
func (failStep) Run(context.Context, string, []string) (*Result, error) {
	return nil, errors.New("boom")
}

// recordingPublisher captures events for assertions.
type recordingPublisher struct {
	events []events.Event
}

func (r *recordingPublisher) Publish(ev events.Event) error {
	r.events = append(r.events, ev)
	return nil
}
func (r *recordingPublisher) Close() error { return nil }

type fixture struct {
	t     *testing.T
	roots custody.Roots
	state string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		t: t,
		roots: custody.Roots{
			Input:   filepath.Join(base, "site"),
			Output:  filepath.Join(base, "out"),
			Working: filepath.Join(base, "work"),
		},
		state: filepath.Join(base, "state.json"),
	}
	require.NoError(t, os.MkdirAll(f.roots.Input, 0o750))
	return f
}

func (f *fixture) write(rel, content string) string {
	f.t.Helper()
	abs := filepath.Join(f.roots.Input, filepath.FromSlash(rel))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(abs), 0o750))
	require.NoError(f.t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}

func (f *fixture) rule(pattern string, parent custody.Root, calc paths.PathCalc, step Step, final bool) Rule {
	f.t.Helper()
	m, err := paths.NewREMatcher(pattern, parent)
	require.NoError(f.t, err)
	return Rule{Name: pattern, Matcher: m, Calcs: []paths.PathCalc{calc}, Step: step, Final: final}
}

func (f *fixture) pipeline(rules ...Rule) *Pipeline {
	f.t.Helper()
	p, err := New(Settings{Roots: f.roots, StateFile: f.state}, rules)
	require.NoError(f.t, err)
	return p
}

func TestRunBuildsThenSkips(t *testing.T) {
	f := newFixture(t)
	f.write("a.txt", "alpha")
	f.write("docs/b.txt", "beta")
	p := f.pipeline(f.rule(`.*\.txt$`, custody.RootInput, paths.OutputDirCalc(""), copyStep{}, true))

	out, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, out.StepsRun)
	assert.Equal(t, 0, out.StepsSkipped)
	assert.FileExists(t, filepath.Join(f.roots.Output, "a.txt"))
	assert.FileExists(t, filepath.Join(f.roots.Output, "docs", "b.txt"))

	out, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, out.StepsRun)
	assert.Equal(t, 2, out.StepsSkipped)

	f.write("a.txt", "alpha changed")
	out, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.StepsRun)
	assert.Equal(t, 1, out.StepsSkipped)
}

func TestMultiStageRulesCompose(t *testing.T) {
	f := newFixture(t)
	f.write("page.src", "content")
	p := f.pipeline(
		f.rule(`.*\.src$`, custody.RootInput, paths.WorkingDirCalc(".mid"), copyStep{}, true),
		f.rule(`.*\.mid$`, custody.RootWorking, paths.OutputDirCalc(".html"), copyStep{}, true),
	)

	out, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, out.StepsRun, "intermediate product is fed back through the rules")
	assert.FileExists(t, filepath.Join(f.roots.Working, "page.mid"))
	assert.FileExists(t, filepath.Join(f.roots.Output, "page.html"))

	out, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, out.StepsRun)
	assert.Equal(t, 2, out.StepsSkipped)
}

// explodeStep produces a directory with two files, like an archive unpack.
type explodeStep struct{}

func (explodeStep) Name() string         { return "explode" }
func (explodeStep) Bind(*Pipeline) error { return nil }
func (explodeStep) Run(_ context.Context, source string, outputs []string) (*Result, error) {
	dir := outputs[0]
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	members := make([]string, 0, 2)
	for _, name := range []string{"a.txt", "b.txt"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			return nil, err
		}
		members = append(members, path)
	}
	return &Result{Outputs: append([]string{dir}, members...)}, nil
}

func TestDirectoryProductsFeedRules(t *testing.T) {
	f := newFixture(t)
	f.write("pack", "bundle")
	p := f.pipeline(
		f.rule(`pack$`, custody.RootInput, paths.WorkingDirCalc(""), explodeStep{}, true),
		f.rule(`.*\.txt$`, custody.RootWorking, paths.OutputDirCalc(""), copyStep{}, true),
	)

	out, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, out.StepsRun, "the directory product and each file inside it")
	assert.FileExists(t, filepath.Join(f.roots.Output, "pack", "a.txt"))
	assert.FileExists(t, filepath.Join(f.roots.Output, "pack", "b.txt"))

	out, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, out.StepsRun)
	assert.Equal(t, 3, out.StepsSkipped)
}

func TestProductMemberLossRebuilds(t *testing.T) {
	f := newFixture(t)
	f.write("pack", "bundle")
	p := f.pipeline(
		f.rule(`pack$`, custody.RootInput, paths.WorkingDirCalc(""), explodeStep{}, true),
		f.rule(`.*\.txt$`, custody.RootWorking, paths.OutputDirCalc(""), copyStep{}, true),
	)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	final := filepath.Join(f.roots.Output, "pack", "a.txt")
	require.FileExists(t, final)

	// A member vanishing from the working tree must not look up to date.
	require.NoError(t, os.Remove(filepath.Join(f.roots.Working, "pack", "a.txt")))
	out, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.StepsRun, "losing a produced member reruns the producing step")
	assert.Equal(t, 2, out.StepsSkipped)
	assert.FileExists(t, final)
	assert.FileExists(t, filepath.Join(f.roots.Working, "pack", "a.txt"))
}

func TestIgnoreRuleDropsMatches(t *testing.T) {
	f := newFixture(t)
	f.write("draft.txt", "wip")
	f.write("page.txt", "done")

	ignore, err := paths.NewREMatcher(`draft.*`, custody.RootInput)
	require.NoError(t, err)
	p := f.pipeline(
		Rule{Name: "drafts", Matcher: ignore},
		f.rule(`.*\.txt$`, custody.RootInput, paths.OutputDirCalc(""), copyStep{}, true),
	)

	out, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.StepsRun)
	assert.NoFileExists(t, filepath.Join(f.roots.Output, "draft.txt"))
	assert.FileExists(t, filepath.Join(f.roots.Output, "page.txt"))
}

func TestOrphanRemoval(t *testing.T) {
	f := newFixture(t)
	f.write("keep.txt", "k")
	f.write("drop/gone.txt", "g")
	p := f.pipeline(f.rule(`.*\.txt$`, custody.RootInput, paths.OutputDirCalc(""), copyStep{}, true))

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	orphan := filepath.Join(f.roots.Output, "drop", "gone.txt")
	require.FileExists(t, orphan)

	require.NoError(t, os.Remove(filepath.Join(f.roots.Input, "drop", "gone.txt")))
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	assert.NoFileExists(t, orphan)
	assert.NoDirExists(t, filepath.Join(f.roots.Output, "drop"), "emptied directories are pruned")
	assert.FileExists(t, filepath.Join(f.roots.Output, "keep.txt"))
}

func TestPurgeForcesFullRebuild(t *testing.T) {
	f := newFixture(t)
	f.write("a.txt", "alpha")
	p := f.pipeline(f.rule(`.*\.txt$`, custody.RootInput, paths.OutputDirCalc(""), copyStep{}, true))
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	p2, err := New(Settings{Roots: f.roots, StateFile: f.state, Purge: true},
		[]Rule{f.rule(`.*\.txt$`, custody.RootInput, paths.OutputDirCalc(""), copyStep{}, true)})
	require.NoError(t, err)
	out, err := p2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.StepsRun, "purge discards all prior custody state")
}

func TestStepFailureAbortsRun(t *testing.T) {
	f := newFixture(t)
	f.write("a.txt", "alpha")
	p := f.pipeline(f.rule(`.*\.txt$`, custody.RootInput, paths.OutputDirCalc(""), failStep{}, true))

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.NoFileExists(t, f.state, "state is not persisted for failed runs")
}

func TestParameterChangeRebuildsAll(t *testing.T) {
	f := newFixture(t)
	f.write("a.txt", "alpha")
	rule := f.rule(`.*\.txt$`, custody.RootInput, paths.OutputDirCalc(""), copyStep{}, true)

	p, err := New(Settings{Roots: f.roots, StateFile: f.state,
		Parameters: map[string]any{"theme": "light"}}, []Rule{rule})
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	p2, err := New(Settings{Roots: f.roots, StateFile: f.state,
		Parameters: map[string]any{"theme": "dark"}}, []Rule{rule})
	require.NoError(t, err)
	out, err := p2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.StepsRun)
}

func TestEventsPublished(t *testing.T) {
	f := newFixture(t)
	f.write("a.txt", "alpha")
	pub := &recordingPublisher{}
	p := f.pipeline(f.rule(`.*\.txt$`, custody.RootInput, paths.OutputDirCalc(""), copyStep{}, true)).
		WithEvents(pub)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	types := make([]string, len(pub.events))
	for i, ev := range pub.events {
		types[i] = ev.Type
	}
	assert.Equal(t, []string{events.TypeRunStarted, events.TypeStepRun, events.TypeRunFinished}, types)
	assert.Equal(t, "success", pub.events[2].Outcome)
	assert.NotEmpty(t, pub.events[0].RunID)
}
