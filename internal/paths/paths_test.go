package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitepress/internal/custody"
)

func testRoots(t *testing.T) custody.Roots {
	t.Helper()
	base := t.TempDir()
	return custody.Roots{
		Input:   filepath.Join(base, "site"),
		Output:  filepath.Join(base, "out"),
		Working: filepath.Join(base, "work"),
	}
}

func TestREMatcherWholePath(t *testing.T) {
	roots := testRoots(t)
	m, err := NewREMatcher(`.*\.md$`, "")
	require.NoError(t, err)

	_, ok := m.Match(roots, filepath.Join(roots.Input, "doc.md"))
	assert.True(t, ok)
	_, ok = m.Match(roots, filepath.Join(roots.Input, "doc.txt"))
	assert.False(t, ok)
}

func TestREMatcherParentRootScoping(t *testing.T) {
	roots := testRoots(t)
	m, err := NewREMatcher(`posts/.*\.md$`, custody.RootInput)
	require.NoError(t, err)

	_, ok := m.Match(roots, filepath.Join(roots.Input, "posts", "a.md"))
	assert.True(t, ok)
	// Same relative layout under the working root must not match.
	_, ok = m.Match(roots, filepath.Join(roots.Working, "posts", "a.md"))
	assert.False(t, ok)
	// Pattern is relative to the root, not the absolute path.
	_, ok = m.Match(roots, filepath.Join(roots.Input, "drafts", "a.md"))
	assert.False(t, ok)
}

func TestREMatcherNamedGroups(t *testing.T) {
	roots := testRoots(t)
	m, err := NewREMatcher(`.*?(?P<ext>\.tar\.gz)$`, "")
	require.NoError(t, err)

	match, ok := m.Match(roots, filepath.Join(roots.Input, "bundle.tar.gz"))
	require.True(t, ok)
	assert.Equal(t, ".tar.gz", match.Group("ext"))
}

func TestDirPathCalcBasic(t *testing.T) {
	roots := testRoots(t)
	calc := OutputDirCalc(".html")

	out, err := calc.Calc(roots, filepath.Join(roots.Input, "posts", "a.md"), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(roots.Output, "posts", "a.html"), out)
}

func TestDirPathCalcWorkingSource(t *testing.T) {
	roots := testRoots(t)
	calc := OutputDirCalc("")

	out, err := calc.Calc(roots, filepath.Join(roots.Working, "stage", "a.css"), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(roots.Output, "stage", "a.css"), out)
}

func TestDirPathCalcMultiPartExtension(t *testing.T) {
	roots := testRoots(t)
	m, err := NewREMatcher(`.*?(?P<ext>\.tar\.gz)$`, "")
	require.NoError(t, err)
	src := filepath.Join(roots.Input, "assets.tar.gz")
	match, ok := m.Match(roots, src)
	require.True(t, ok)

	calc := WorkingDirCalc("")
	out, err := calc.Calc(roots, src, match)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(roots.Working, "assets"), out)
}

func TestDirPathCalcOutsideRootsErrors(t *testing.T) {
	roots := testRoots(t)
	calc := OutputDirCalc("")
	_, err := calc.Calc(roots, filepath.Join(t.TempDir(), "stray.txt"), nil)
	require.Error(t, err)
}

func TestWebIndexCalc(t *testing.T) {
	roots := testRoots(t)
	calc := NewWebIndexCalc(OutputDirCalc(".html"), "")

	out, err := calc.Calc(roots, filepath.Join(roots.Input, "about.md"), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(roots.Output, "about", "index.html"), out)

	// An existing index file is not nested again.
	out, err = calc.Calc(roots, filepath.Join(roots.Input, "docs", "index.md"), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(roots.Output, "docs", "index.html"), out)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello World":     "hello-world",
		"Crème_Brûlée":    "creme-brulee",
		"Already-Good":    "already-good",
		"  padded  ":      "padded",
		"v1.2.3 Release!": "v1.2.3-release",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestSlugTransformPreservesStructureAndExt(t *testing.T) {
	assert.Equal(t, "my-posts/first-post.md", SlugTransform("My Posts/First Post.md"))
}
